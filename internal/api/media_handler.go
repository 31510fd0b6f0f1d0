package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/storyloop/backend/internal/storage"
	"github.com/storyloop/backend/pkg/response"
	"github.com/storyloop/backend/pkg/validator"
)

// MediaHandler hands out presigned URLs; media bytes go straight to the
// bucket.
type MediaHandler struct {
	store  storage.MediaStorage
	logger *zap.Logger
}

func NewMediaHandler(store storage.MediaStorage, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{
		store:  store,
		logger: logger,
	}
}

// PresignUploadRequest represents the upload slot request body
type PresignUploadRequest struct {
	ContentType string `json:"content_type"`
}

// PresignUpload returns a presigned PUT URL and the media key to reference
// when creating the story.
func (h *MediaHandler) PresignUpload(w http.ResponseWriter, r *http.Request) {
	var req PresignUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	target, err := h.store.PresignUpload(r.Context(), req.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			response.BadRequest(w, "unsupported content type")
			return
		}
		h.logger.Error("presign upload failed", zap.Error(err))
		response.InternalError(w, "failed to create upload url")
		return
	}

	response.OK(w, target)
}

// PresignDownload returns a temporary GET URL for a media key.
func (h *MediaHandler) PresignDownload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if !validator.ValidateMediaKey(key) {
		response.BadRequest(w, "invalid media key")
		return
	}

	url, err := h.store.PresignDownload(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrMediaNotFound) {
			response.NotFound(w, "media not found")
			return
		}
		h.logger.Error("presign download failed", zap.Error(err))
		response.InternalError(w, "failed to create download url")
		return
	}

	response.OK(w, map[string]string{"download_url": url})
}

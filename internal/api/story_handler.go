package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storyloop/backend/internal/domain"
	"github.com/storyloop/backend/internal/middleware"
	"github.com/storyloop/backend/pkg/response"
	"github.com/storyloop/backend/pkg/validator"
)

// StoryHandler handles the story endpoints: create, fetch, feed, views,
// reactions, delete, stats.
type StoryHandler struct {
	storyService *domain.StoryService
	idempotency  *middleware.IdempotencyStore
	logger       *zap.Logger
}

func NewStoryHandler(storyService *domain.StoryService, idempotency *middleware.IdempotencyStore, logger *zap.Logger) *StoryHandler {
	return &StoryHandler{
		storyService: storyService,
		idempotency:  idempotency,
		logger:       logger,
	}
}

// CreateStoryRequest represents the story creation request body
type CreateStoryRequest struct {
	Text       *string `json:"text,omitempty"`
	MediaKey   *string `json:"media_key,omitempty"`
	Visibility string  `json:"visibility"`
}

// CreateStory handles creating a new story. An Idempotency-Key header makes
// retries return the original response instead of posting twice.
func (h *StoryHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if body, ok := h.idempotency.Get(r.Context(), idemKey, userID); ok {
			response.Raw(w, http.StatusCreated, body)
			return
		}
	}

	var req CreateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if req.MediaKey != nil && *req.MediaKey != "" && !validator.ValidateMediaKey(*req.MediaKey) {
		response.BadRequest(w, "invalid media key")
		return
	}

	visibility := domain.Visibility(req.Visibility)
	if req.Visibility == "" {
		visibility = domain.VisibilityPublic
	}

	story, err := h.storyService.Create(r.Context(), domain.CreateStoryParams{
		AuthorID:   userID,
		Text:       req.Text,
		MediaKey:   req.MediaKey,
		Visibility: visibility,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyStory):
			response.BadRequest(w, "story must have text or media")
		case errors.Is(err, domain.ErrTextTooLong):
			response.BadRequest(w, "story text exceeds 500 characters")
		case errors.Is(err, domain.ErrBadVisibility):
			response.BadRequest(w, "visibility must be public, friends or private")
		default:
			h.logger.Error("create story failed", zap.Error(err))
			response.InternalError(w, "failed to create story")
		}
		return
	}

	if idemKey != "" && h.idempotency != nil {
		if body, err := json.Marshal(response.Response{Success: true, Data: story}); err == nil {
			h.idempotency.Set(r.Context(), idemKey, userID, body)
		}
	}

	response.Created(w, story)
}

// GetStory returns a single story with counts. A story the caller may not
// see returns 404, same as one that does not exist.
func (h *StoryHandler) GetStory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	storyID, err := uuid.Parse(chi.URLParam(r, "storyId"))
	if err != nil {
		response.BadRequest(w, "invalid story id")
		return
	}

	story, err := h.storyService.Get(r.Context(), storyID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrStoryNotFound) {
			response.NotFound(w, "story not found")
			return
		}
		h.logger.Error("get story failed", zap.Error(err))
		response.InternalError(w, "failed to get story")
		return
	}

	response.OK(w, story)
}

// GetFeed handles fetching the story feed
func (h *StoryHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	stories, err := h.storyService.GetFeed(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("get feed failed", zap.Error(err))
		response.InternalError(w, "failed to get feed")
		return
	}

	response.OK(w, stories)
}

// RecordView registers the caller as a viewer of the story. Repeat views
// return the original record.
func (h *StoryHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	storyID, err := uuid.Parse(chi.URLParam(r, "storyId"))
	if err != nil {
		response.BadRequest(w, "invalid story id")
		return
	}

	view, err := h.storyService.RecordView(r.Context(), storyID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrStoryNotFound) {
			response.NotFound(w, "story not found")
			return
		}
		h.logger.Error("record view failed", zap.Error(err))
		response.InternalError(w, "failed to record view")
		return
	}

	response.OK(w, view)
}

// ReactRequest represents the reaction request body
type ReactRequest struct {
	Emoji string `json:"emoji"`
}

// React adds an emoji reaction to the story. The same (user, story, emoji)
// triple reacts once; retries return the existing reaction.
func (h *StoryHandler) React(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	storyID, err := uuid.Parse(chi.URLParam(r, "storyId"))
	if err != nil {
		response.BadRequest(w, "invalid story id")
		return
	}

	var req ReactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	reaction, err := h.storyService.AddReaction(r.Context(), storyID, userID, req.Emoji)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidEmoji):
			response.BadRequest(w, "unsupported emoji")
		case errors.Is(err, domain.ErrStoryNotFound):
			response.NotFound(w, "story not found")
		default:
			h.logger.Error("add reaction failed", zap.Error(err))
			response.InternalError(w, "failed to add reaction")
		}
		return
	}

	if reaction.IsNew {
		response.Created(w, reaction)
		return
	}
	response.OK(w, reaction)
}

// DeleteStory soft-deletes the caller's own story.
func (h *StoryHandler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	storyID, err := uuid.Parse(chi.URLParam(r, "storyId"))
	if err != nil {
		response.BadRequest(w, "invalid story id")
		return
	}

	if err := h.storyService.Delete(r.Context(), storyID, userID); err != nil {
		if errors.Is(err, domain.ErrStoryNotFound) {
			response.NotFound(w, "story not found")
			return
		}
		h.logger.Error("delete story failed", zap.Error(err))
		response.InternalError(w, "failed to delete story")
		return
	}

	response.NoContent(w)
}

// Stats returns the caller's posting and engagement aggregates.
func (h *StoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	stats, err := h.storyService.Stats(r.Context(), userID, days)
	if err != nil {
		h.logger.Error("get stats failed", zap.Error(err))
		response.InternalError(w, "failed to get stats")
		return
	}

	response.OK(w, stats)
}

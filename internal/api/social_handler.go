package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storyloop/backend/internal/domain"
	"github.com/storyloop/backend/internal/middleware"
	"github.com/storyloop/backend/pkg/response"
)

// SocialHandler handles the follow-graph endpoints.
type SocialHandler struct {
	followService *domain.FollowService
	logger        *zap.Logger
}

func NewSocialHandler(followService *domain.FollowService, logger *zap.Logger) *SocialHandler {
	return &SocialHandler{
		followService: followService,
		logger:        logger,
	}
}

// Follow creates a follow edge from the caller to the target user.
// Following someone you already follow returns the existing edge.
func (h *SocialHandler) Follow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	follow, err := h.followService.Follow(r.Context(), userID, targetID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSelfFollow):
			response.BadRequest(w, "cannot follow yourself")
		case errors.Is(err, domain.ErrUserNotFound):
			response.NotFound(w, "user not found")
		default:
			h.logger.Error("follow failed", zap.Error(err))
			response.InternalError(w, "failed to follow user")
		}
		return
	}

	if follow.IsNew {
		response.Created(w, follow)
		return
	}
	response.OK(w, follow)
}

// Unfollow removes the follow edge. Unfollowing someone you do not follow
// is a 404.
func (h *SocialHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	removed, err := h.followService.Unfollow(r.Context(), userID, targetID)
	if err != nil {
		h.logger.Error("unfollow failed", zap.Error(err))
		response.InternalError(w, "failed to unfollow user")
		return
	}
	if !removed {
		response.NotFound(w, "not following this user")
		return
	}

	response.NoContent(w)
}

// Followers lists users following the caller.
func (h *SocialHandler) Followers(w http.ResponseWriter, r *http.Request) {
	h.listFollows(w, r, h.followService.GetFollowers)
}

// Following lists users the caller follows.
func (h *SocialHandler) Following(w http.ResponseWriter, r *http.Request) {
	h.listFollows(w, r, h.followService.GetFollowing)
}

// Mutuals lists users who follow the caller and are followed back.
func (h *SocialHandler) Mutuals(w http.ResponseWriter, r *http.Request) {
	h.listFollows(w, r, h.followService.GetMutuals)
}

type listFunc func(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.FollowUser, error)

func (h *SocialHandler) listFollows(w http.ResponseWriter, r *http.Request, list listFunc) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, err := list(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("list follows failed", zap.Error(err))
		response.InternalError(w, "failed to list users")
		return
	}

	response.OK(w, users)
}

// FollowCounts holds follower/following totals for a user.
type FollowCounts struct {
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
}

// Counts returns follower and following totals for the caller.
func (h *SocialHandler) Counts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	followers, following, err := h.followService.Counts(r.Context(), userID)
	if err != nil {
		h.logger.Error("follow counts failed", zap.Error(err))
		response.InternalError(w, "failed to get counts")
		return
	}

	response.OK(w, FollowCounts{Followers: followers, Following: following})
}

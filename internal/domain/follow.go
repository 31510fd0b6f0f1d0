package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrSelfFollow = errors.New("cannot follow yourself")

// Follow is a directional edge in the social graph. IsNew mirrors the
// insert-or-fetch semantics of views and reactions.
type Follow struct {
	FollowerID uuid.UUID `json:"follower_id"`
	FolloweeID uuid.UUID `json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
	IsNew      bool      `json:"is_new"`
}

// FollowUser is a user as seen in follower/following listings.
type FollowUser struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	FollowedAt time.Time `json:"followed_at"`
}

// FollowChecker is the single-lookup contract the visibility engine needs
// for friends-only stories.
type FollowChecker interface {
	IsFollowing(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
}

// FollowRepository is the content-store contract for the social graph.
type FollowRepository interface {
	FollowChecker

	Follow(ctx context.Context, followerID, followeeID uuid.UUID) (*Follow, error)
	Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	GetFolloweeIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	GetFollowers(ctx context.Context, userID uuid.UUID, limit, offset int) ([]FollowUser, error)
	GetFollowing(ctx context.Context, userID uuid.UUID, limit, offset int) ([]FollowUser, error)
	GetMutuals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]FollowUser, error)
	CountFollowers(ctx context.Context, userID uuid.UUID) (int64, error)
	CountFollowing(ctx context.Context, userID uuid.UUID) (int64, error)
}

// FollowService manages follow edges and keeps the follower's caches
// coherent with the graph.
type FollowService struct {
	repo  FollowRepository
	cache CacheInvalidator
}

func NewFollowService(repo FollowRepository, cache CacheInvalidator) *FollowService {
	return &FollowService{repo: repo, cache: cache}
}

// Follow creates the edge and invalidates the follower's followee and feed
// caches. Re-following is a no-op that returns the existing edge.
func (s *FollowService) Follow(ctx context.Context, followerID, followeeID uuid.UUID) (*Follow, error) {
	if followerID == followeeID {
		return nil, ErrSelfFollow
	}

	follow, err := s.repo.Follow(ctx, followerID, followeeID)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateFollowees(ctx, followerID)
	s.cache.InvalidateFeed(ctx, followerID)

	return follow, nil
}

// Unfollow removes the edge. Returns false if it did not exist.
func (s *FollowService) Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	removed, err := s.repo.Unfollow(ctx, followerID, followeeID)
	if err != nil {
		return false, err
	}

	s.cache.InvalidateFollowees(ctx, followerID)
	s.cache.InvalidateFeed(ctx, followerID)

	return removed, nil
}

func (s *FollowService) GetFollowers(ctx context.Context, userID uuid.UUID, limit, offset int) ([]FollowUser, error) {
	return s.repo.GetFollowers(ctx, userID, clampPageSize(limit, 50), maxInt(offset, 0))
}

func (s *FollowService) GetFollowing(ctx context.Context, userID uuid.UUID, limit, offset int) ([]FollowUser, error) {
	return s.repo.GetFollowing(ctx, userID, clampPageSize(limit, 50), maxInt(offset, 0))
}

func (s *FollowService) GetMutuals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]FollowUser, error) {
	return s.repo.GetMutuals(ctx, userID, clampPageSize(limit, 50), maxInt(offset, 0))
}

func (s *FollowService) Counts(ctx context.Context, userID uuid.UUID) (followers, following int64, err error) {
	followers, err = s.repo.CountFollowers(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	following, err = s.repo.CountFollowing(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	return followers, following, nil
}

func clampPageSize(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func maxInt(v, min int) int {
	if v < min {
		return min
	}
	return v
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storyloop/backend/internal/domain"
)

const (
	// DefaultFolloweesTTL bounds staleness of the cached social graph.
	DefaultFolloweesTTL = 300 * time.Second
	// DefaultFeedTTL bounds staleness of cached feed pages. Followers'
	// pages are never invalidated eagerly when an author posts; this TTL
	// is the sole convergence mechanism for third-party feeds.
	DefaultFeedTTL = 60 * time.Second
)

// Metrics receives cache hit/miss counters, labelled by cache name.
type Metrics interface {
	CacheHit(cache string)
	CacheMiss(cache string)
}

// NopMetrics drops all counters.
type NopMetrics struct{}

func (NopMetrics) CacheHit(string)  {}
func (NopMetrics) CacheMiss(string) {}

// StoryCache caches followee-id lists and feed pages. Both caches are
// strictly advisory: any store failure is logged and reported as a miss so
// callers fall back to the content store.
type StoryCache struct {
	store        Store
	logger       *zap.Logger
	metrics      Metrics
	followeesTTL time.Duration
	feedTTL      time.Duration
}

func NewStoryCache(store Store, logger *zap.Logger, metrics Metrics, followeesTTL, feedTTL time.Duration) *StoryCache {
	if followeesTTL <= 0 {
		followeesTTL = DefaultFolloweesTTL
	}
	if feedTTL <= 0 {
		feedTTL = DefaultFeedTTL
	}
	return &StoryCache{
		store:        store,
		logger:       logger,
		metrics:      metrics,
		followeesTTL: followeesTTL,
		feedTTL:      feedTTL,
	}
}

func followeesKey(userID uuid.UUID) string {
	return "followees:" + userID.String()
}

func feedKey(userID uuid.UUID, limit, offset int) string {
	return fmt.Sprintf("feed:%s:%d:%d", userID, limit, offset)
}

func feedPrefix(userID uuid.UUID) string {
	return fmt.Sprintf("feed:%s:", userID)
}

// GetFollowees returns the cached followee-id list, or ok=false on miss or
// cache failure.
func (c *StoryCache) GetFollowees(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, bool) {
	data, err := c.store.Get(ctx, followeesKey(userID))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("followees cache read failed", zap.Error(err))
		}
		c.metrics.CacheMiss("followees")
		return nil, false
	}

	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		c.logger.Warn("followees cache entry corrupt", zap.Error(err))
		c.metrics.CacheMiss("followees")
		return nil, false
	}

	c.metrics.CacheHit("followees")
	return ids, true
}

func (c *StoryCache) SetFollowees(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, followeesKey(userID), data, c.followeesTTL); err != nil {
		c.logger.Warn("followees cache write failed", zap.Error(err))
	}
}

// GetFeedPage returns the cached page for (user, limit, offset), or
// ok=false on miss or cache failure.
func (c *StoryCache) GetFeedPage(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.StorySummary, bool) {
	data, err := c.store.Get(ctx, feedKey(userID, limit, offset))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("feed cache read failed", zap.Error(err))
		}
		c.metrics.CacheMiss("feed")
		return nil, false
	}

	var stories []domain.StorySummary
	if err := json.Unmarshal(data, &stories); err != nil {
		c.logger.Warn("feed cache entry corrupt", zap.Error(err))
		c.metrics.CacheMiss("feed")
		return nil, false
	}

	c.metrics.CacheHit("feed")
	return stories, true
}

func (c *StoryCache) SetFeedPage(ctx context.Context, userID uuid.UUID, limit, offset int, stories []domain.StorySummary) {
	if stories == nil {
		stories = []domain.StorySummary{}
	}
	data, err := json.Marshal(stories)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, feedKey(userID, limit, offset), data, c.feedTTL); err != nil {
		c.logger.Warn("feed cache write failed", zap.Error(err))
	}
}

// InvalidateFollowees drops the cached followee list. Called synchronously
// on every follow/unfollow by that follower.
func (c *StoryCache) InvalidateFollowees(ctx context.Context, userID uuid.UUID) {
	if err := c.store.Delete(ctx, followeesKey(userID)); err != nil {
		c.logger.Warn("followees cache invalidation failed",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// InvalidateFeed drops every cached feed page for the user. The (limit,
// offset) key space per user is unbounded, so this is a prefix delete.
func (c *StoryCache) InvalidateFeed(ctx context.Context, userID uuid.UUID) {
	if err := c.store.DeletePrefix(ctx, feedPrefix(userID)); err != nil {
		c.logger.Warn("feed cache invalidation failed",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
}

var _ domain.FeedCache = (*StoryCache)(nil)

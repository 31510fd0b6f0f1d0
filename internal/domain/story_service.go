package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FeedCache is the advisory cache consulted by the feed resolver. Misses
// and cache-store failures are both reported as "not ok"; the resolver
// always has the content store to fall back on.
type FeedCache interface {
	CacheInvalidator

	GetFollowees(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, bool)
	SetFollowees(ctx context.Context, userID uuid.UUID, ids []uuid.UUID)
	GetFeedPage(ctx context.Context, userID uuid.UUID, limit, offset int) ([]StorySummary, bool)
	SetFeedPage(ctx context.Context, userID uuid.UUID, limit, offset int, stories []StorySummary)
}

// EventPusher delivers best-effort real-time events to a user's live
// connections. Implementations must never block the caller on a slow peer.
type EventPusher interface {
	Push(userID uuid.UUID, event string, data map[string]any)
}

// NopPusher discards events.
type NopPusher struct{}

func (NopPusher) Push(uuid.UUID, string, map[string]any) {}

// StoryMetrics receives business counters from the story service.
type StoryMetrics interface {
	StoryCreated(visibility string)
	StoryViewed(isNew bool)
	ReactionAdded(emoji string)
}

// NopStoryMetrics drops all counters.
type NopStoryMetrics struct{}

func (NopStoryMetrics) StoryCreated(string)  {}
func (NopStoryMetrics) StoryViewed(bool)     {}
func (NopStoryMetrics) ReactionAdded(string) {}

const (
	EventStoryViewed  = "story.viewed"
	EventStoryReacted = "story.reacted"

	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

// StoryService implements story creation, permission-checked reads, the
// cached feed resolver, and the idempotent view/reaction paths.
type StoryService struct {
	stories  StoryRepository
	follows  FollowRepository
	cache    FeedCache
	events   EventPusher
	metrics  StoryMetrics
	logger   *zap.Logger
	storyTTL time.Duration
}

func NewStoryService(stories StoryRepository, follows FollowRepository, cache FeedCache, events EventPusher, metrics StoryMetrics, logger *zap.Logger, storyTTL time.Duration) *StoryService {
	if storyTTL <= 0 {
		storyTTL = 24 * time.Hour
	}
	return &StoryService{
		stories:  stories,
		follows:  follows,
		cache:    cache,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		storyTTL: storyTTL,
	}
}

// Create validates and stores a new story, then drops the author's cached
// feed pages. Followers' pages are left to expire by TTL.
func (s *StoryService) Create(ctx context.Context, params CreateStoryParams) (*Story, error) {
	hasText := params.Text != nil && strings.TrimSpace(*params.Text) != ""
	hasMedia := params.MediaKey != nil && *params.MediaKey != ""
	if !hasText && !hasMedia {
		return nil, ErrEmptyStory
	}
	if hasText && len([]rune(*params.Text)) > MaxTextLength {
		return nil, ErrTextTooLong
	}
	if !params.Visibility.Valid() {
		return nil, ErrBadVisibility
	}
	if params.ExpiresAt.IsZero() {
		params.ExpiresAt = time.Now().Add(s.storyTTL)
	}

	story, err := s.stories.CreateStory(ctx, params)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateFeed(ctx, story.AuthorID)
	s.metrics.StoryCreated(string(story.Visibility))

	return story, nil
}

// Get returns the story summary if the viewer is allowed to see it. A story
// the viewer cannot see is indistinguishable from one that does not exist.
func (s *StoryService) Get(ctx context.Context, storyID, viewerID uuid.UUID) (*StorySummary, error) {
	story, err := s.stories.GetStoryByID(ctx, storyID)
	if err != nil {
		return nil, err
	}

	ok, err := CanView(ctx, story, viewerID, s.follows)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStoryNotFound
	}

	return s.stories.GetStorySummary(ctx, storyID)
}

// GetFeed resolves the viewer's paginated feed.
//
// Lookup order: feed-page cache, then followee cache (falling back to the
// store and repopulating), then the content-store feed query. The result is
// written back to the feed-page cache before returning. An empty followee
// set still yields public stories and the user's own.
func (s *StoryService) GetFeed(ctx context.Context, userID uuid.UUID, limit, offset int) ([]StorySummary, error) {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	if offset < 0 {
		offset = 0
	}

	if page, ok := s.cache.GetFeedPage(ctx, userID, limit, offset); ok {
		return page, nil
	}

	followeeIDs, ok := s.cache.GetFollowees(ctx, userID)
	if !ok {
		var err error
		followeeIDs, err = s.follows.GetFolloweeIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.cache.SetFollowees(ctx, userID, followeeIDs)
	}

	stories, err := s.stories.GetFeed(ctx, userID, followeeIDs, limit, offset)
	if err != nil {
		return nil, err
	}

	s.cache.SetFeedPage(ctx, userID, limit, offset, stories)

	return stories, nil
}

// RecordView registers a view, idempotently. The author is notified on the
// first view only, and never about their own views.
func (s *StoryService) RecordView(ctx context.Context, storyID, viewerID uuid.UUID) (*View, error) {
	story, err := s.stories.GetStoryByID(ctx, storyID)
	if err != nil {
		return nil, err
	}

	view, err := s.stories.AddView(ctx, storyID, viewerID)
	if err != nil {
		return nil, err
	}

	s.metrics.StoryViewed(view.IsNew)

	if view.IsNew && story.AuthorID != viewerID {
		s.events.Push(story.AuthorID, EventStoryViewed, map[string]any{
			"story_id":  storyID.String(),
			"viewer_id": viewerID.String(),
			"viewed_at": view.ViewedAt.UTC().Format(time.RFC3339),
		})
	}

	return view, nil
}

// AddReaction registers a reaction, idempotently. Only the insert that
// created the row emits a push event, mirroring the view gating.
func (s *StoryService) AddReaction(ctx context.Context, storyID, userID uuid.UUID, emoji string) (*Reaction, error) {
	if _, ok := AllowedEmojis[emoji]; !ok {
		return nil, ErrInvalidEmoji
	}

	story, err := s.stories.GetStoryByID(ctx, storyID)
	if err != nil {
		return nil, err
	}

	reaction, err := s.stories.AddReaction(ctx, storyID, userID, emoji)
	if err != nil {
		return nil, err
	}

	s.metrics.ReactionAdded(emoji)

	if reaction.IsNew && story.AuthorID != userID {
		s.events.Push(story.AuthorID, EventStoryReacted, map[string]any{
			"story_id":    storyID.String(),
			"user_id":     userID.String(),
			"emoji":       emoji,
			"reaction_id": reaction.ID.String(),
			"created_at":  reaction.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return reaction, nil
}

// Delete soft-deletes the story if userID is its author, then drops the
// author's cached feed pages.
func (s *StoryService) Delete(ctx context.Context, storyID, userID uuid.UUID) error {
	deleted, err := s.stories.SoftDeleteStory(ctx, storyID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrStoryNotFound
	}

	s.cache.InvalidateFeed(ctx, userID)

	return nil
}

// Stats returns the user's posting/view/reaction aggregates for the last
// days days.
func (s *StoryService) Stats(ctx context.Context, userID uuid.UUID, days int) (*UserStats, error) {
	if days <= 0 {
		days = 7
	}
	return s.stories.GetUserStats(ctx, userID, days)
}

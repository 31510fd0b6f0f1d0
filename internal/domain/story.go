package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrStoryNotFound = errors.New("story not found")
	ErrEmptyStory    = errors.New("story must have text or media")
	ErrTextTooLong   = errors.New("story text too long")
	ErrInvalidEmoji  = errors.New("unsupported emoji")
	ErrBadVisibility = errors.New("invalid visibility")
)

// Visibility controls who may see a story.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityFriends Visibility = "friends"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is one of the known visibility levels.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityFriends, VisibilityPrivate:
		return true
	}
	return false
}

// MaxTextLength is the longest story text accepted on creation.
const MaxTextLength = 500

// AllowedEmojis is the fixed reaction set.
var AllowedEmojis = map[string]struct{}{
	"👍": {}, "❤️": {}, "😂": {}, "😮": {}, "😢": {}, "🔥": {},
}

type Story struct {
	ID         uuid.UUID  `json:"id"`
	AuthorID   uuid.UUID  `json:"author_id"`
	Text       *string    `json:"text,omitempty"`
	MediaKey   *string    `json:"media_key,omitempty"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	DeletedAt  *time.Time `json:"-"`
}

// Active reports whether the story is visible at all: not soft-deleted and
// not past its expiry.
func (s *Story) Active(now time.Time) bool {
	return s.DeletedAt == nil && now.Before(s.ExpiresAt)
}

// StorySummary is the feed/detail representation with author info and
// aggregated counts preloaded.
type StorySummary struct {
	ID            uuid.UUID  `json:"id"`
	AuthorID      uuid.UUID  `json:"author_id"`
	AuthorEmail   string     `json:"author_email"`
	Text          *string    `json:"text,omitempty"`
	MediaKey      *string    `json:"media_key,omitempty"`
	Visibility    Visibility `json:"visibility"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	ViewCount     int64      `json:"view_count"`
	ReactionCount int64      `json:"reaction_count"`
}

type CreateStoryParams struct {
	AuthorID   uuid.UUID
	Text       *string
	MediaKey   *string
	Visibility Visibility
	ExpiresAt  time.Time
}

// View is a (story, viewer) record. IsNew is true only for the call that
// actually inserted the row.
type View struct {
	StoryID  uuid.UUID `json:"story_id"`
	ViewerID uuid.UUID `json:"viewer_id"`
	ViewedAt time.Time `json:"viewed_at"`
	IsNew    bool      `json:"is_new_view"`
}

// Reaction is a (story, user, emoji) record with the same insert-or-fetch
// semantics as View.
type Reaction struct {
	ID        uuid.UUID `json:"id"`
	StoryID   uuid.UUID `json:"story_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
	IsNew     bool      `json:"is_new"`
}

// ExpiredStory identifies a story soft-deleted by a sweep.
type ExpiredStory struct {
	ID       uuid.UUID
	AuthorID uuid.UUID
}

// UserStats aggregates a user's story activity over a window.
type UserStats struct {
	PostedCount   int64            `json:"posted_count"`
	TotalViews    int64            `json:"total_views"`
	UniqueViewers int64            `json:"unique_viewers"`
	Reactions     map[string]int64 `json:"reactions"`
}

// StoryRepository is the content-store contract for stories.
type StoryRepository interface {
	CreateStory(ctx context.Context, params CreateStoryParams) (*Story, error)
	// GetStoryByID returns the story regardless of visibility; inactive
	// stories yield ErrStoryNotFound.
	GetStoryByID(ctx context.Context, id uuid.UUID) (*Story, error)
	GetStorySummary(ctx context.Context, id uuid.UUID) (*StorySummary, error)
	// GetFeed returns active stories visible to userID given its followee
	// set: public, friends-of-followees, and the user's own, newest first.
	GetFeed(ctx context.Context, userID uuid.UUID, followeeIDs []uuid.UUID, limit, offset int) ([]StorySummary, error)
	AddView(ctx context.Context, storyID, viewerID uuid.UUID) (*View, error)
	AddReaction(ctx context.Context, storyID, userID uuid.UUID, emoji string) (*Reaction, error)
	SoftDeleteStory(ctx context.Context, storyID, authorID uuid.UUID) (bool, error)
	// ExpireStories soft-deletes every story past its expiry in one
	// set-based update and returns the affected rows.
	ExpireStories(ctx context.Context) ([]ExpiredStory, error)
	GetUserStats(ctx context.Context, userID uuid.UUID, days int) (*UserStats, error)
}

// CacheInvalidator is the narrow interface the mutation path uses to keep
// the cache layer coherent. Injected at construction so services never
// import the cache package directly.
type CacheInvalidator interface {
	InvalidateFollowees(ctx context.Context, userID uuid.UUID)
	InvalidateFeed(ctx context.Context, userID uuid.UUID)
}

// NopInvalidator satisfies CacheInvalidator when no cache is wired
// (standalone sweeper, tests).
type NopInvalidator struct{}

func (NopInvalidator) InvalidateFollowees(context.Context, uuid.UUID) {}
func (NopInvalidator) InvalidateFeed(context.Context, uuid.UUID)     {}

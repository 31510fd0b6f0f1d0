package domain

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStoryRepo is an in-memory StoryRepository with the same
// insert-or-fetch semantics as the Postgres implementation.
type fakeStoryRepo struct {
	mu        sync.Mutex
	stories   map[uuid.UUID]*Story
	views     map[[2]uuid.UUID]*View
	reactions map[[3]string]*Reaction
	feed      []StorySummary
	feedCalls int
}

func newFakeStoryRepo() *fakeStoryRepo {
	return &fakeStoryRepo{
		stories:   make(map[uuid.UUID]*Story),
		views:     make(map[[2]uuid.UUID]*View),
		reactions: make(map[[3]string]*Reaction),
	}
}

func (r *fakeStoryRepo) CreateStory(_ context.Context, params CreateStoryParams) (*Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	story := &Story{
		ID:         uuid.New(),
		AuthorID:   params.AuthorID,
		Text:       params.Text,
		MediaKey:   params.MediaKey,
		Visibility: params.Visibility,
		CreatedAt:  time.Now(),
		ExpiresAt:  params.ExpiresAt,
	}
	r.stories[story.ID] = story
	return story, nil
}

func (r *fakeStoryRepo) GetStoryByID(_ context.Context, id uuid.UUID) (*Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	story, ok := r.stories[id]
	if !ok || !story.Active(time.Now()) {
		return nil, ErrStoryNotFound
	}
	return story, nil
}

func (r *fakeStoryRepo) GetStorySummary(_ context.Context, id uuid.UUID) (*StorySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	story, ok := r.stories[id]
	if !ok {
		return nil, ErrStoryNotFound
	}
	return &StorySummary{
		ID:         story.ID,
		AuthorID:   story.AuthorID,
		Text:       story.Text,
		Visibility: story.Visibility,
		CreatedAt:  story.CreatedAt,
		ExpiresAt:  story.ExpiresAt,
	}, nil
}

// GetFeed applies the same visibility rule as the Postgres query: public
// stories, friends-only stories from the given followees, and the user's
// own.
func (r *fakeStoryRepo) GetFeed(_ context.Context, userID uuid.UUID, followeeIDs []uuid.UUID, _, _ int) ([]StorySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedCalls++

	followees := make(map[uuid.UUID]bool, len(followeeIDs))
	for _, id := range followeeIDs {
		followees[id] = true
	}
	page := []StorySummary{}
	for _, s := range r.feed {
		switch {
		case s.AuthorID == userID:
			page = append(page, s)
		case s.Visibility == VisibilityPublic:
			page = append(page, s)
		case s.Visibility == VisibilityFriends && followees[s.AuthorID]:
			page = append(page, s)
		}
	}
	return page, nil
}

func (r *fakeStoryRepo) AddView(_ context.Context, storyID, viewerID uuid.UUID) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]uuid.UUID{storyID, viewerID}
	if existing, ok := r.views[key]; ok {
		copied := *existing
		copied.IsNew = false
		return &copied, nil
	}
	view := &View{StoryID: storyID, ViewerID: viewerID, ViewedAt: time.Now(), IsNew: true}
	r.views[key] = view
	return view, nil
}

func (r *fakeStoryRepo) AddReaction(_ context.Context, storyID, userID uuid.UUID, emoji string) (*Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [3]string{storyID.String(), userID.String(), emoji}
	if existing, ok := r.reactions[key]; ok {
		copied := *existing
		copied.IsNew = false
		return &copied, nil
	}
	reaction := &Reaction{
		ID: uuid.New(), StoryID: storyID, UserID: userID,
		Emoji: emoji, CreatedAt: time.Now(), IsNew: true,
	}
	r.reactions[key] = reaction
	return reaction, nil
}

func (r *fakeStoryRepo) SoftDeleteStory(_ context.Context, storyID, authorID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	story, ok := r.stories[storyID]
	if !ok || story.AuthorID != authorID || story.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	story.DeletedAt = &now
	return true, nil
}

func (r *fakeStoryRepo) ExpireStories(context.Context) ([]ExpiredStory, error) {
	return nil, nil
}

func (r *fakeStoryRepo) GetUserStats(context.Context, uuid.UUID, int) (*UserStats, error) {
	return &UserStats{Reactions: map[string]int64{}}, nil
}

// fakeFollowRepo is a minimal in-memory follow graph.
type fakeFollowRepo struct {
	mu            sync.Mutex
	followees     map[uuid.UUID][]uuid.UUID
	followeeCalls int
}

func newFakeFollowRepo() *fakeFollowRepo {
	return &fakeFollowRepo{followees: make(map[uuid.UUID][]uuid.UUID)}
}

func (r *fakeFollowRepo) IsFollowing(_ context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.followees[followerID] {
		if id == followeeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeFollowRepo) Follow(_ context.Context, followerID, followeeID uuid.UUID) (*Follow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.followees[followerID] {
		if id == followeeID {
			return &Follow{FollowerID: followerID, FolloweeID: followeeID, IsNew: false}, nil
		}
	}
	r.followees[followerID] = append(r.followees[followerID], followeeID)
	return &Follow{FollowerID: followerID, FolloweeID: followeeID, CreatedAt: time.Now(), IsNew: true}, nil
}

func (r *fakeFollowRepo) Unfollow(_ context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.followees[followerID]
	for i, id := range ids {
		if id == followeeID {
			r.followees[followerID] = append(ids[:i], ids[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeFollowRepo) GetFolloweeIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followeeCalls++
	return append([]uuid.UUID(nil), r.followees[userID]...), nil
}

func (r *fakeFollowRepo) GetFollowers(context.Context, uuid.UUID, int, int) ([]FollowUser, error) {
	return nil, nil
}

func (r *fakeFollowRepo) GetFollowing(context.Context, uuid.UUID, int, int) ([]FollowUser, error) {
	return nil, nil
}

func (r *fakeFollowRepo) GetMutuals(context.Context, uuid.UUID, int, int) ([]FollowUser, error) {
	return nil, nil
}

func (r *fakeFollowRepo) CountFollowers(context.Context, uuid.UUID) (int64, error) { return 0, nil }
func (r *fakeFollowRepo) CountFollowing(context.Context, uuid.UUID) (int64, error) { return 0, nil }

// fakeFeedCache is an in-memory FeedCache that records invalidations.
type fakeFeedCache struct {
	mu                  sync.Mutex
	followees           map[uuid.UUID][]uuid.UUID
	pages               map[string][]StorySummary
	feedInvalidations   []uuid.UUID
	followInvalidations []uuid.UUID
}

func newFakeFeedCache() *fakeFeedCache {
	return &fakeFeedCache{
		followees: make(map[uuid.UUID][]uuid.UUID),
		pages:     make(map[string][]StorySummary),
	}
}

func pageKey(userID uuid.UUID, limit, offset int) string {
	return fmt.Sprintf("%s:%d:%d", userID, limit, offset)
}

func (c *fakeFeedCache) GetFollowees(_ context.Context, userID uuid.UUID) ([]uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.followees[userID]
	return ids, ok
}

func (c *fakeFeedCache) SetFollowees(_ context.Context, userID uuid.UUID, ids []uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ids == nil {
		ids = []uuid.UUID{}
	}
	c.followees[userID] = ids
}

func (c *fakeFeedCache) GetFeedPage(_ context.Context, userID uuid.UUID, limit, offset int) ([]StorySummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page, ok := c.pages[pageKey(userID, limit, offset)]
	return page, ok
}

func (c *fakeFeedCache) SetFeedPage(_ context.Context, userID uuid.UUID, limit, offset int, stories []StorySummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[pageKey(userID, limit, offset)] = stories
}

func (c *fakeFeedCache) InvalidateFollowees(_ context.Context, userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.followees, userID)
	c.followInvalidations = append(c.followInvalidations, userID)
}

func (c *fakeFeedCache) InvalidateFeed(_ context.Context, userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.pages {
		if len(key) >= 36 && key[:36] == userID.String() {
			delete(c.pages, key)
		}
	}
	c.feedInvalidations = append(c.feedInvalidations, userID)
}

// fakePusher records pushed events.
type fakePusher struct {
	mu     sync.Mutex
	events []pushedEvent
}

type pushedEvent struct {
	userID uuid.UUID
	event  string
	data   map[string]any
}

func (p *fakePusher) Push(userID uuid.UUID, event string, data map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushedEvent{userID: userID, event: event, data: data})
}

func (p *fakePusher) pushed() []pushedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushedEvent(nil), p.events...)
}

type serviceFixture struct {
	svc     *StoryService
	stories *fakeStoryRepo
	follows *fakeFollowRepo
	cache   *fakeFeedCache
	pusher  *fakePusher
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		stories: newFakeStoryRepo(),
		follows: newFakeFollowRepo(),
		cache:   newFakeFeedCache(),
		pusher:  &fakePusher{},
	}
	f.svc = NewStoryService(f.stories, f.follows, f.cache, f.pusher, NopStoryMetrics{}, zap.NewNop(), 24*time.Hour)
	return f
}

func strptr(s string) *string { return &s }

func TestStoryService_Create(t *testing.T) {
	f := newServiceFixture()
	author := uuid.New()

	before := time.Now()
	story, err := f.svc.Create(context.Background(), CreateStoryParams{
		AuthorID:   author,
		Text:       strptr("hello"),
		Visibility: VisibilityPublic,
	})
	require.NoError(t, err)

	assert.Equal(t, author, story.AuthorID)
	// Expiry defaults to creation time plus the configured TTL.
	assert.WithinDuration(t, before.Add(24*time.Hour), story.ExpiresAt, 5*time.Second)
	// The author's own cached feed pages are dropped.
	assert.Equal(t, []uuid.UUID{author}, f.cache.feedInvalidations)
	// Nobody else's cache is touched; followers converge by TTL.
	assert.Empty(t, f.cache.followInvalidations)
}

func TestStoryService_CreateValidation(t *testing.T) {
	f := newServiceFixture()
	author := uuid.New()
	long := make([]rune, MaxTextLength+1)
	for i := range long {
		long[i] = 'é'
	}

	tests := []struct {
		name    string
		params  CreateStoryParams
		wantErr error
	}{
		{"empty", CreateStoryParams{AuthorID: author, Visibility: VisibilityPublic}, ErrEmptyStory},
		{"whitespace only", CreateStoryParams{AuthorID: author, Text: strptr("   "), Visibility: VisibilityPublic}, ErrEmptyStory},
		{"text too long", CreateStoryParams{AuthorID: author, Text: strptr(string(long)), Visibility: VisibilityPublic}, ErrTextTooLong},
		{"bad visibility", CreateStoryParams{AuthorID: author, Text: strptr("hi"), Visibility: "everyone"}, ErrBadVisibility},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Media-only stories are fine.
	_, err := f.svc.Create(context.Background(), CreateStoryParams{
		AuthorID: author, MediaKey: strptr("stories/x.jpg"), Visibility: VisibilityFriends,
	})
	assert.NoError(t, err)

	// Exactly the limit passes.
	exact := make([]rune, MaxTextLength)
	for i := range exact {
		exact[i] = 'é'
	}
	_, err = f.svc.Create(context.Background(), CreateStoryParams{
		AuthorID: author, Text: strptr(string(exact)), Visibility: VisibilityPublic,
	})
	assert.NoError(t, err)
}

func TestStoryService_GetHidesForbiddenStories(t *testing.T) {
	f := newServiceFixture()
	author := uuid.New()
	stranger := uuid.New()

	story, err := f.svc.Create(context.Background(), CreateStoryParams{
		AuthorID: author, Text: strptr("secret"), Visibility: VisibilityPrivate,
	})
	require.NoError(t, err)

	// Denied permission and missing story are the same error.
	_, err = f.svc.Get(context.Background(), story.ID, stranger)
	assert.ErrorIs(t, err, ErrStoryNotFound)

	_, err = f.svc.Get(context.Background(), uuid.New(), stranger)
	assert.ErrorIs(t, err, ErrStoryNotFound)

	// The author still sees it.
	got, err := f.svc.Get(context.Background(), story.ID, author)
	require.NoError(t, err)
	assert.Equal(t, story.ID, got.ID)
}

func TestStoryService_GetFeedCaching(t *testing.T) {
	f := newServiceFixture()
	user := uuid.New()
	followee := uuid.New()
	_, err := f.follows.Follow(context.Background(), user, followee)
	require.NoError(t, err)
	f.stories.feed = someFeed(2)

	// First call: cold caches, one graph read, one feed query.
	page, err := f.svc.GetFeed(context.Background(), user, 20, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, 1, f.follows.followeeCalls)
	assert.Equal(t, 1, f.stories.feedCalls)

	// Second call: served from the page cache.
	_, err = f.svc.GetFeed(context.Background(), user, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.follows.followeeCalls)
	assert.Equal(t, 1, f.stories.feedCalls)

	// A different page misses the page cache but reuses cached followees.
	_, err = f.svc.GetFeed(context.Background(), user, 20, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, f.follows.followeeCalls)
	assert.Equal(t, 2, f.stories.feedCalls)
}

func TestStoryService_FriendsFeedFollowLifecycle(t *testing.T) {
	f := newServiceFixture()
	followSvc := NewFollowService(f.follows, f.cache)
	alice, bob := uuid.New(), uuid.New()

	story, err := f.svc.Create(context.Background(), CreateStoryParams{
		AuthorID: bob, Text: strptr("friends only"), Visibility: VisibilityFriends,
	})
	require.NoError(t, err)
	f.stories.feed = []StorySummary{
		{ID: story.ID, AuthorID: bob, Visibility: VisibilityFriends},
	}

	// Before following, bob's friends-only story is invisible to alice.
	page, err := f.svc.GetFeed(context.Background(), alice, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, page)

	// Following bob drops alice's cached followees and feed pages, so the
	// next read recomputes and includes the story.
	_, err = followSvc.Follow(context.Background(), alice, bob)
	require.NoError(t, err)

	page, err = f.svc.GetFeed(context.Background(), alice, 20, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, story.ID, page[0].ID)

	// Unfollowing invalidates again; a freshly computed feed excludes it.
	removed, err := followSvc.Unfollow(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.True(t, removed)

	page, err = f.svc.GetFeed(context.Background(), alice, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, page)

	// Each read after an invalidation went back to the store rather than
	// serving the stale cached page.
	assert.Equal(t, 3, f.stories.feedCalls)
}

func TestStoryService_GetFeedEmptyFollowees(t *testing.T) {
	f := newServiceFixture()
	user := uuid.New()
	f.stories.feed = someFeed(1)

	// Following nobody is not an error and still queries the store (public
	// and own stories remain eligible).
	page, err := f.svc.GetFeed(context.Background(), user, 20, 0)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	// The empty followee list was cached, not treated as a perpetual miss.
	_, err = f.svc.GetFeed(context.Background(), user, 20, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, f.follows.followeeCalls)
}

func TestStoryService_GetFeedClampsLimit(t *testing.T) {
	f := newServiceFixture()
	user := uuid.New()

	_, err := f.svc.GetFeed(context.Background(), user, -5, -3)
	require.NoError(t, err)
	_, err = f.svc.GetFeed(context.Background(), user, 1000, 0)
	require.NoError(t, err)
}

func TestStoryService_RecordViewIdempotent(t *testing.T) {
	f := newServiceFixture()
	author := uuid.New()
	viewer := uuid.New()

	story, err := f.svc.Create(context.Background(), CreateStoryParams{
		AuthorID: author, Text: strptr("hi"), Visibility: VisibilityPublic,
	})
	require.NoError(t, err)

	first, err := f.svc.RecordView(context.Background(), story.ID, viewer)
	require.NoError(t, err)
	assert.True(t, first.IsNew)

	second, err := f.svc.RecordView(context.Background(), story.ID, viewer)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.True(t, first.ViewedAt.Equal(second.ViewedAt))

	// Only the first view notified the author.
	events := f.pusher.pushed()
	require.Len(t, events, 1)
	assert.Equal(t, author, events[0].userID)
	assert.Equal(t, EventStoryViewed, events[0].event)
	assert.Equal(t, viewer.String(), events[0].data["viewer_id"])
}

func TestStoryService_AuthorViewDoesNotNotify(t *testing.T) {
	f := newServiceFixture()
	author := uuid.New()

	story, err := f.svc.Create(context.Background(), CreateStoryParams{
		AuthorID: author, Text: strptr("hi"), Visibility: VisibilityPublic,
	})
	require.NoError(t, err)

	view, err := f.svc.RecordView(context.Background(), story.ID, author)
	require.NoError(t, err)
	assert.True(t, view.IsNew)
	assert.Empty(t, f.pusher.pushed())
}

func TestStoryService_AddReaction(t *testing.T) {
	f := newServiceFixture()
	author := uuid.New()
	user := uuid.New()

	story, err := f.svc.Create(context.Background(), CreateStoryParams{
		AuthorID: author, Text: strptr("hi"), Visibility: VisibilityPublic,
	})
	require.NoError(t, err)

	_, err = f.svc.AddReaction(context.Background(), story.ID, user, "💀")
	assert.ErrorIs(t, err, ErrInvalidEmoji)

	first, err := f.svc.AddReaction(context.Background(), story.ID, user, "🔥")
	require.NoError(t, err)
	assert.True(t, first.IsNew)

	// Same triple again: no new row, no second event.
	second, err := f.svc.AddReaction(context.Background(), story.ID, user, "🔥")
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.ID, second.ID)

	// A different emoji from the same user is a separate reaction.
	third, err := f.svc.AddReaction(context.Background(), story.ID, user, "❤️")
	require.NoError(t, err)
	assert.True(t, third.IsNew)

	events := f.pusher.pushed()
	require.Len(t, events, 2)
	assert.Equal(t, EventStoryReacted, events[0].event)
	assert.Equal(t, "🔥", events[0].data["emoji"])
	assert.Equal(t, "❤️", events[1].data["emoji"])
}

func TestStoryService_SelfReactionDoesNotNotify(t *testing.T) {
	f := newServiceFixture()
	author := uuid.New()

	story, err := f.svc.Create(context.Background(), CreateStoryParams{
		AuthorID: author, Text: strptr("hi"), Visibility: VisibilityPublic,
	})
	require.NoError(t, err)

	reaction, err := f.svc.AddReaction(context.Background(), story.ID, author, "👍")
	require.NoError(t, err)
	assert.True(t, reaction.IsNew)
	assert.Empty(t, f.pusher.pushed())
}

func TestStoryService_Delete(t *testing.T) {
	f := newServiceFixture()
	author := uuid.New()
	other := uuid.New()

	story, err := f.svc.Create(context.Background(), CreateStoryParams{
		AuthorID: author, Text: strptr("hi"), Visibility: VisibilityPublic,
	})
	require.NoError(t, err)

	// Someone else's delete looks like the story does not exist.
	err = f.svc.Delete(context.Background(), story.ID, other)
	assert.ErrorIs(t, err, ErrStoryNotFound)

	require.NoError(t, f.svc.Delete(context.Background(), story.ID, author))

	// Deleted stories are gone from reads, even for the author.
	_, err = f.svc.Get(context.Background(), story.ID, author)
	assert.ErrorIs(t, err, ErrStoryNotFound)

	// Repeat delete reports not found.
	err = f.svc.Delete(context.Background(), story.ID, author)
	assert.ErrorIs(t, err, ErrStoryNotFound)
}

func TestStoryService_ViewOfExpiredStoryFails(t *testing.T) {
	f := newServiceFixture()
	author := uuid.New()

	story, err := f.svc.Create(context.Background(), CreateStoryParams{
		AuthorID: author, Text: strptr("hi"), Visibility: VisibilityPublic,
	})
	require.NoError(t, err)

	f.stories.mu.Lock()
	f.stories.stories[story.ID].ExpiresAt = time.Now().Add(-time.Minute)
	f.stories.mu.Unlock()

	_, err = f.svc.RecordView(context.Background(), story.ID, uuid.New())
	assert.ErrorIs(t, err, ErrStoryNotFound)
	_, err = f.svc.AddReaction(context.Background(), story.ID, uuid.New(), "👍")
	assert.ErrorIs(t, err, ErrStoryNotFound)
}

func someFeed(n int) []StorySummary {
	feed := make([]StorySummary, n)
	for i := range feed {
		feed[i] = StorySummary{ID: uuid.New(), AuthorID: uuid.New(), Visibility: VisibilityPublic}
	}
	return feed
}

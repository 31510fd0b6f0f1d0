package domain

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFollowFixture() (*FollowService, *fakeFollowRepo, *fakeFeedCache) {
	repo := newFakeFollowRepo()
	cache := newFakeFeedCache()
	return NewFollowService(repo, cache), repo, cache
}

func TestFollowService_Follow(t *testing.T) {
	svc, _, cache := newFollowFixture()
	alice, bob := uuid.New(), uuid.New()

	follow, err := svc.Follow(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.True(t, follow.IsNew)
	assert.Equal(t, alice, follow.FollowerID)
	assert.Equal(t, bob, follow.FolloweeID)

	// Both follower-side caches are dropped so the next feed read sees bob.
	assert.Equal(t, []uuid.UUID{alice}, cache.followInvalidations)
	assert.Equal(t, []uuid.UUID{alice}, cache.feedInvalidations)
}

func TestFollowService_RefollowReturnsExistingEdge(t *testing.T) {
	svc, _, _ := newFollowFixture()
	alice, bob := uuid.New(), uuid.New()

	_, err := svc.Follow(context.Background(), alice, bob)
	require.NoError(t, err)

	again, err := svc.Follow(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.False(t, again.IsNew)
}

func TestFollowService_SelfFollowRejected(t *testing.T) {
	svc, _, cache := newFollowFixture()
	alice := uuid.New()

	_, err := svc.Follow(context.Background(), alice, alice)
	assert.ErrorIs(t, err, ErrSelfFollow)
	assert.Empty(t, cache.feedInvalidations)
}

func TestFollowService_Unfollow(t *testing.T) {
	svc, _, cache := newFollowFixture()
	alice, bob := uuid.New(), uuid.New()

	_, err := svc.Follow(context.Background(), alice, bob)
	require.NoError(t, err)

	removed, err := svc.Unfollow(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.True(t, removed)

	// One invalidation per mutation.
	assert.Len(t, cache.followInvalidations, 2)
	assert.Len(t, cache.feedInvalidations, 2)

	// Unfollowing again reports the edge was absent.
	removed, err = svc.Unfollow(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestFollowService_FollowIsDirectional(t *testing.T) {
	svc, repo, _ := newFollowFixture()
	alice, bob := uuid.New(), uuid.New()

	_, err := svc.Follow(context.Background(), alice, bob)
	require.NoError(t, err)

	ok, err := repo.IsFollowing(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsFollowing(context.Background(), bob, alice)
	require.NoError(t, err)
	assert.False(t, ok)
}

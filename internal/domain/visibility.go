package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CanView decides whether viewerID may see the story. Pure apart from a
// single follow-edge lookup for friends-only stories.
//
// Rules, in order: inactive stories are invisible to everyone; authors see
// their own stories; public is visible to all; private only to the author;
// friends requires a follow edge viewer -> author.
func CanView(ctx context.Context, story *Story, viewerID uuid.UUID, follows FollowChecker) (bool, error) {
	if !story.Active(time.Now()) {
		return false, nil
	}
	if viewerID == story.AuthorID {
		return true, nil
	}

	switch story.Visibility {
	case VisibilityPublic:
		return true, nil
	case VisibilityPrivate:
		return false, nil
	case VisibilityFriends:
		return follows.IsFollowing(ctx, viewerID, story.AuthorID)
	}

	return false, nil
}

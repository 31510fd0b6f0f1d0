package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storyloop/backend/internal/domain"
)

// CreateStory inserts a story with its precomputed expiry.
func (r *PostgresRepository) CreateStory(ctx context.Context, params domain.CreateStoryParams) (*domain.Story, error) {
	query := `
		INSERT INTO stories (author_id, text, media_key, visibility, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, author_id, text, media_key, visibility, created_at, expires_at, deleted_at
	`
	row := r.db.QueryRow(ctx, query,
		params.AuthorID,
		params.Text,
		params.MediaKey,
		params.Visibility,
		params.ExpiresAt,
	)
	return scanStory(row)
}

// GetStoryByID returns the raw story row. Expired or soft-deleted stories
// are reported as not found; only the sweeper sees those, and it works on
// raw timestamps, not through this lookup.
func (r *PostgresRepository) GetStoryByID(ctx context.Context, id uuid.UUID) (*domain.Story, error) {
	query := `
		SELECT id, author_id, text, media_key, visibility, created_at, expires_at, deleted_at
		FROM stories
		WHERE id = $1 AND deleted_at IS NULL AND expires_at > NOW()
	`
	return scanStory(r.db.QueryRow(ctx, query, id))
}

// GetStorySummary returns the story with author info and aggregated counts.
func (r *PostgresRepository) GetStorySummary(ctx context.Context, id uuid.UUID) (*domain.StorySummary, error) {
	query := `
		SELECT
			s.id, s.author_id, u.email, s.text, s.media_key, s.visibility,
			s.created_at, s.expires_at,
			COALESCE(COUNT(DISTINCT sv.viewer_id), 0) AS view_count,
			COALESCE(COUNT(DISTINCT r.id), 0) AS reaction_count
		FROM stories s
		INNER JOIN users u ON s.author_id = u.id
		LEFT JOIN story_views sv ON s.id = sv.story_id
		LEFT JOIN reactions r ON s.id = r.story_id
		WHERE s.id = $1 AND s.deleted_at IS NULL AND s.expires_at > NOW()
		GROUP BY s.id, u.email
	`
	var summary domain.StorySummary
	err := r.db.QueryRow(ctx, query, id).Scan(
		&summary.ID,
		&summary.AuthorID,
		&summary.AuthorEmail,
		&summary.Text,
		&summary.MediaKey,
		&summary.Visibility,
		&summary.CreatedAt,
		&summary.ExpiresAt,
		&summary.ViewCount,
		&summary.ReactionCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStoryNotFound
		}
		return nil, err
	}
	return &summary, nil
}

// GetFeed returns one page of active stories visible to userID: public
// stories, friends-only stories from the given followees, and the user's
// own. An empty followee set never matches the ANY clause, so the public
// and own branches still apply. Equal creation times break on id so pages
// never flap between calls.
func (r *PostgresRepository) GetFeed(ctx context.Context, userID uuid.UUID, followeeIDs []uuid.UUID, limit, offset int) ([]domain.StorySummary, error) {
	if followeeIDs == nil {
		followeeIDs = []uuid.UUID{}
	}

	query := `
		SELECT
			s.id, s.author_id, u.email, s.text, s.media_key, s.visibility,
			s.created_at, s.expires_at,
			COALESCE(COUNT(DISTINCT sv.viewer_id), 0) AS view_count,
			COALESCE(COUNT(DISTINCT r.id), 0) AS reaction_count
		FROM stories s
		INNER JOIN users u ON s.author_id = u.id
		LEFT JOIN story_views sv ON s.id = sv.story_id
		LEFT JOIN reactions r ON s.id = r.story_id
		WHERE s.deleted_at IS NULL
		  AND s.expires_at > NOW()
		  AND (
			s.visibility = 'public'
			OR (s.visibility = 'friends' AND s.author_id = ANY($2))
			OR s.author_id = $1
		  )
		GROUP BY s.id, u.email
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, userID, followeeIDs, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close()

	stories := make([]domain.StorySummary, 0, limit)
	for rows.Next() {
		var s domain.StorySummary
		if err := rows.Scan(
			&s.ID, &s.AuthorID, &s.AuthorEmail, &s.Text, &s.MediaKey, &s.Visibility,
			&s.CreatedAt, &s.ExpiresAt, &s.ViewCount, &s.ReactionCount,
		); err != nil {
			return nil, err
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}

// AddView records a view, insert-or-fetch. The unique (story_id, viewer_id)
// constraint resolves racing inserts to a single winning row.
func (r *PostgresRepository) AddView(ctx context.Context, storyID, viewerID uuid.UUID) (*domain.View, error) {
	insert := `
		INSERT INTO story_views (story_id, viewer_id)
		VALUES ($1, $2)
		ON CONFLICT (story_id, viewer_id) DO NOTHING
		RETURNING story_id, viewer_id, viewed_at
	`
	view := &domain.View{IsNew: true}
	err := r.db.QueryRow(ctx, insert, storyID, viewerID).Scan(&view.StoryID, &view.ViewerID, &view.ViewedAt)
	if err == nil {
		return view, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// Conflict: fetch the existing record.
	existing := `
		SELECT story_id, viewer_id, viewed_at
		FROM story_views
		WHERE story_id = $1 AND viewer_id = $2
	`
	view.IsNew = false
	err = r.db.QueryRow(ctx, existing, storyID, viewerID).Scan(&view.StoryID, &view.ViewerID, &view.ViewedAt)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// AddReaction records a reaction, insert-or-fetch on the unique
// (story_id, user_id, emoji) triple.
func (r *PostgresRepository) AddReaction(ctx context.Context, storyID, userID uuid.UUID, emoji string) (*domain.Reaction, error) {
	insert := `
		INSERT INTO reactions (story_id, user_id, emoji)
		VALUES ($1, $2, $3)
		ON CONFLICT (story_id, user_id, emoji) DO NOTHING
		RETURNING id, story_id, user_id, emoji, created_at
	`
	reaction := &domain.Reaction{IsNew: true}
	err := r.db.QueryRow(ctx, insert, storyID, userID, emoji).Scan(
		&reaction.ID, &reaction.StoryID, &reaction.UserID, &reaction.Emoji, &reaction.CreatedAt,
	)
	if err == nil {
		return reaction, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	existing := `
		SELECT id, story_id, user_id, emoji, created_at
		FROM reactions
		WHERE story_id = $1 AND user_id = $2 AND emoji = $3
	`
	reaction.IsNew = false
	err = r.db.QueryRow(ctx, existing, storyID, userID, emoji).Scan(
		&reaction.ID, &reaction.StoryID, &reaction.UserID, &reaction.Emoji, &reaction.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return reaction, nil
}

// SoftDeleteStory marks the story deleted if authorID owns it. Returns
// false when the story is absent, already deleted, or owned by someone
// else; the caller cannot tell those apart.
func (r *PostgresRepository) SoftDeleteStory(ctx context.Context, storyID, authorID uuid.UUID) (bool, error) {
	query := `
		UPDATE stories
		SET deleted_at = NOW()
		WHERE id = $1 AND author_id = $2 AND deleted_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query, storyID, authorID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireStories soft-deletes every story past its expiry in one set-based
// update and returns the affected ids and authors.
func (r *PostgresRepository) ExpireStories(ctx context.Context) ([]domain.ExpiredStory, error) {
	query := `
		UPDATE stories
		SET deleted_at = NOW()
		WHERE expires_at < NOW() AND deleted_at IS NULL
		RETURNING id, author_id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("expire stories: %w", err)
	}
	defer rows.Close()

	var expired []domain.ExpiredStory
	for rows.Next() {
		var e domain.ExpiredStory
		if err := rows.Scan(&e.ID, &e.AuthorID); err != nil {
			return nil, err
		}
		expired = append(expired, e)
	}
	return expired, rows.Err()
}

// GetUserStats aggregates the user's story activity over the last N days.
func (r *PostgresRepository) GetUserStats(ctx context.Context, userID uuid.UUID, days int) (*domain.UserStats, error) {
	statsQuery := `
		WITH user_stories AS (
			SELECT id FROM stories
			WHERE author_id = $1
			  AND created_at > NOW() - make_interval(days => $2)
			  AND deleted_at IS NULL
		)
		SELECT
			COUNT(DISTINCT s.id) AS posted_count,
			COUNT(sv.viewer_id) AS total_views,
			COUNT(DISTINCT sv.viewer_id) AS unique_viewers
		FROM user_stories s
		LEFT JOIN story_views sv ON s.id = sv.story_id
	`
	stats := &domain.UserStats{Reactions: make(map[string]int64)}
	err := r.db.QueryRow(ctx, statsQuery, userID, days).Scan(
		&stats.PostedCount, &stats.TotalViews, &stats.UniqueViewers,
	)
	if err != nil {
		return nil, err
	}

	reactionsQuery := `
		SELECT r.emoji, COUNT(*)
		FROM reactions r
		INNER JOIN stories s ON r.story_id = s.id
		WHERE s.author_id = $1
		  AND s.created_at > NOW() - make_interval(days => $2)
		  AND s.deleted_at IS NULL
		GROUP BY r.emoji
	`
	rows, err := r.db.Query(ctx, reactionsQuery, userID, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var emoji string
		var count int64
		if err := rows.Scan(&emoji, &count); err != nil {
			return nil, err
		}
		stats.Reactions[emoji] = count
	}
	return stats, rows.Err()
}

func scanStory(row pgx.Row) (*domain.Story, error) {
	var story domain.Story
	err := row.Scan(
		&story.ID,
		&story.AuthorID,
		&story.Text,
		&story.MediaKey,
		&story.Visibility,
		&story.CreatedAt,
		&story.ExpiresAt,
		&story.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStoryNotFound
		}
		return nil, err
	}
	return &story, nil
}

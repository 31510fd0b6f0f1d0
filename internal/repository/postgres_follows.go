package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storyloop/backend/internal/domain"
)

// Follow creates the edge, insert-or-fetch on the unique
// (follower_id, followee_id) pair.
func (r *PostgresRepository) Follow(ctx context.Context, followerID, followeeID uuid.UUID) (*domain.Follow, error) {
	insert := `
		INSERT INTO follows (follower_id, followee_id)
		VALUES ($1, $2)
		ON CONFLICT (follower_id, followee_id) DO NOTHING
		RETURNING follower_id, followee_id, created_at
	`
	follow := &domain.Follow{IsNew: true}
	err := r.db.QueryRow(ctx, insert, followerID, followeeID).Scan(
		&follow.FollowerID, &follow.FolloweeID, &follow.CreatedAt,
	)
	if err == nil {
		return follow, nil
	}
	if isForeignKeyViolation(err) {
		return nil, domain.ErrUserNotFound
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	existing := `
		SELECT follower_id, followee_id, created_at
		FROM follows
		WHERE follower_id = $1 AND followee_id = $2
	`
	follow.IsNew = false
	err = r.db.QueryRow(ctx, existing, followerID, followeeID).Scan(
		&follow.FollowerID, &follow.FolloweeID, &follow.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return follow, nil
}

// Unfollow removes the edge. Returns false if it did not exist.
func (r *PostgresRepository) Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	query := `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`
	tag, err := r.db.Exec(ctx, query, followerID, followeeID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IsFollowing checks whether a follow edge follower -> followee exists.
func (r *PostgresRepository) IsFollowing(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2)`
	var exists bool
	err := r.db.QueryRow(ctx, query, followerID, followeeID).Scan(&exists)
	return exists, err
}

// GetFolloweeIDs returns every user followerID follows. Shaped for the
// followee cache.
func (r *PostgresRepository) GetFolloweeIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT followee_id FROM follows WHERE follower_id = $1`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetFollowers lists users following userID, newest edge first.
func (r *PostgresRepository) GetFollowers(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.FollowUser, error) {
	query := `
		SELECT u.id, u.email, u.created_at, f.created_at
		FROM follows f
		INNER JOIN users u ON f.follower_id = u.id
		WHERE f.followee_id = $1
		ORDER BY f.created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryFollowUsers(ctx, query, userID, limit, offset)
}

// GetFollowing lists users userID follows, newest edge first.
func (r *PostgresRepository) GetFollowing(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.FollowUser, error) {
	query := `
		SELECT u.id, u.email, u.created_at, f.created_at
		FROM follows f
		INNER JOIN users u ON f.followee_id = u.id
		WHERE f.follower_id = $1
		ORDER BY f.created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryFollowUsers(ctx, query, userID, limit, offset)
}

// GetMutuals lists users who both follow and are followed by userID.
func (r *PostgresRepository) GetMutuals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.FollowUser, error) {
	query := `
		SELECT DISTINCT u.id, u.email, u.created_at, f1.created_at
		FROM follows f1
		INNER JOIN follows f2 ON f1.follower_id = f2.followee_id
		                     AND f1.followee_id = f2.follower_id
		INNER JOIN users u ON f1.followee_id = u.id
		WHERE f1.follower_id = $1
		ORDER BY f1.created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryFollowUsers(ctx, query, userID, limit, offset)
}

// CountFollowers returns how many users follow userID.
func (r *PostgresRepository) CountFollowers(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM follows WHERE followee_id = $1`, userID).Scan(&count)
	return count, err
}

// CountFollowing returns how many users userID follows.
func (r *PostgresRepository) CountFollowing(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM follows WHERE follower_id = $1`, userID).Scan(&count)
	return count, err
}

func (r *PostgresRepository) queryFollowUsers(ctx context.Context, query string, userID uuid.UUID, limit, offset int) ([]domain.FollowUser, error) {
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []domain.FollowUser{}
	for rows.Next() {
		var u domain.FollowUser
		if err := rows.Scan(&u.ID, &u.Email, &u.CreatedAt, &u.FollowedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdempotencyStore caches responses to mutating requests keyed by the
// client-supplied Idempotency-Key so retries return the original result
// instead of creating duplicates. Entries are scoped per user and expire
// after 24 hours. Redis unavailability degrades to "no dedup", never to a
// failed request.
type IdempotencyStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, logger *zap.Logger) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		logger: logger,
		ttl:    24 * time.Hour,
	}
}

func idempotencyCacheKey(key string, userID uuid.UUID) string {
	return "idempotency:" + userID.String() + ":" + key
}

// Get returns the cached response body for (key, user), or ok=false.
func (s *IdempotencyStore) Get(ctx context.Context, key string, userID uuid.UUID) ([]byte, bool) {
	data, err := s.client.Get(ctx, idempotencyCacheKey(key, userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("idempotency store read failed", zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

// Set stores the response body for (key, user).
func (s *IdempotencyStore) Set(ctx context.Context, key string, userID uuid.UUID, body []byte) {
	if err := s.client.Set(ctx, idempotencyCacheKey(key, userID), body, s.ttl).Err(); err != nil {
		s.logger.Warn("idempotency store write failed", zap.Error(err))
	}
}

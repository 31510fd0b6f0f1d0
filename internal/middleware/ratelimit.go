package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/storyloop/backend/pkg/response"
)

// RateLimitMetrics counts rejected requests; satisfied by the metrics
// package.
type RateLimitMetrics interface {
	RateLimitExceeded(endpoint string)
}

// RateLimiter enforces fixed-window per-user request budgets backed by
// Redis so the count is shared across replicas. When Redis is unavailable
// it degrades to an in-process token bucket per (endpoint, user) instead of
// failing open or closed on every request.
type RateLimiter struct {
	client  *redis.Client
	logger  *zap.Logger
	metrics RateLimitMetrics
	window  time.Duration

	fallbackMu     sync.Mutex
	fallback       map[string]*rate.Limiter
	fallbackActive bool
}

// maxLocalLimiters bounds the fallback map so a long Redis outage cannot
// grow it without limit. Hitting the cap resets the map; the affected keys
// restart with a full burst, which over-admits briefly but keeps memory
// flat.
const maxLocalLimiters = 4096

func NewRateLimiter(client *redis.Client, logger *zap.Logger, metrics RateLimitMetrics, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		client:   client,
		logger:   logger,
		metrics:  metrics,
		window:   window,
		fallback: make(map[string]*rate.Limiter),
	}
}

// Limit returns middleware enforcing at most limit requests per window per
// authenticated user for the named endpoint. Must run after AuthMiddleware.
func (rl *RateLimiter) Limit(endpoint string, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserID(r.Context())
			if !ok {
				response.Unauthorized(w, "not authenticated")
				return
			}

			key := "ratelimit:" + endpoint + ":" + userID.String()
			remaining, retryAfter, err := rl.consume(r.Context(), key, limit)
			if err != nil {
				// Redis down: fall back to a local bucket so a cache
				// outage cannot take the write path with it.
				rl.logger.Warn("rate limit store unavailable, using local limiter", zap.Error(err))
				if !rl.localLimiter(key, limit).Allow() {
					rl.reject(w, endpoint, limit, int(rl.window.Seconds()))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			rl.clearFallback()

			if remaining < 0 {
				rl.reject(w, endpoint, limit, retryAfter)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// consume increments the window counter. Returns remaining=-1 with a
// retry-after hint when the budget is exhausted.
func (rl *RateLimiter) consume(ctx context.Context, key string, limit int) (remaining, retryAfter int, err error) {
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
			return 0, 0, err
		}
	}

	if count > int64(limit) {
		ttl, err := rl.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = rl.window
		}
		return -1, int(ttl.Seconds()) + 1, nil
	}

	return limit - int(count), 0, nil
}

func (rl *RateLimiter) localLimiter(key string, limit int) *rate.Limiter {
	rl.fallbackMu.Lock()
	defer rl.fallbackMu.Unlock()

	rl.fallbackActive = true
	lim, ok := rl.fallback[key]
	if !ok {
		if len(rl.fallback) >= maxLocalLimiters {
			rl.fallback = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(rate.Limit(float64(limit)/rl.window.Seconds()), limit)
		rl.fallback[key] = lim
	}
	return lim
}

// clearFallback releases the local limiters once Redis answers again, so
// buckets accumulated during an outage do not linger.
func (rl *RateLimiter) clearFallback() {
	rl.fallbackMu.Lock()
	defer rl.fallbackMu.Unlock()

	if !rl.fallbackActive {
		return
	}
	rl.fallbackActive = false
	rl.fallback = make(map[string]*rate.Limiter)
}

func (rl *RateLimiter) reject(w http.ResponseWriter, endpoint string, limit, retryAfter int) {
	if rl.metrics != nil {
		rl.metrics.RateLimitExceeded(endpoint)
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	response.TooManyRequests(w, "rate limit exceeded, try again in "+strconv.Itoa(retryAfter)+" seconds")
}

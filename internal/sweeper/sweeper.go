package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/storyloop/backend/internal/domain"
)

// ErrSweepInFlight is returned by RunOnce when a sweep is already running.
var ErrSweepInFlight = errors.New("sweep already in flight")

// Metrics receives sweep counters.
type Metrics interface {
	SweepCompleted(expired int, duration time.Duration)
	SweepFailed()
}

// NopMetrics drops all counters.
type NopMetrics struct{}

func (NopMetrics) SweepCompleted(int, time.Duration) {}
func (NopMetrics) SweepFailed()                      {}

// Store is the slice of the content store the sweeper needs.
type Store interface {
	ExpireStories(ctx context.Context) ([]domain.ExpiredStory, error)
}

// Sweeper soft-deletes expired stories on a fixed interval. Exactly one
// sweep runs at a time; a tick that arrives while a sweep is in flight is
// dropped rather than queued. A failed sweep aborts that iteration only and
// the loop retries on the next tick.
type Sweeper struct {
	store    Store
	logger   *zap.Logger
	metrics  Metrics
	interval time.Duration
	sweeping atomic.Bool
}

func New(store Store, logger *zap.Logger, metrics Metrics, interval time.Duration) *Sweeper {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Sweeper{
		store:    store,
		logger:   logger,
		metrics:  metrics,
		interval: interval,
	}
}

// Run blocks, sweeping every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("expiration sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiration sweeper stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInFlight) {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep: one set-based soft-delete of every story
// past its expiry. Returns ErrSweepInFlight if another sweep holds the slot.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if !s.sweeping.CompareAndSwap(false, true) {
		return ErrSweepInFlight
	}
	defer s.sweeping.Store(false)

	start := time.Now()

	expired, err := s.store.ExpireStories(ctx)
	if err != nil {
		s.metrics.SweepFailed()
		return err
	}

	duration := time.Since(start)
	s.metrics.SweepCompleted(len(expired), duration)

	fields := []zap.Field{
		zap.Int("count", len(expired)),
		zap.Duration("duration", duration),
	}
	if len(expired) > 0 {
		ids := make([]string, len(expired))
		for i, e := range expired {
			ids[i] = e.ID.String()
		}
		fields = append(fields, zap.Strings("story_ids", ids))
	}
	s.logger.Info("stories expired", fields...)

	return nil
}

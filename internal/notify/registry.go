package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is the wire shape of a real-time push message.
type Event struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Conn is one live client connection. Send must be safe to call from the
// registry's goroutine and must fail fast rather than block on a dead peer.
type Conn interface {
	Send(event Event) error
	Close() error
}

// Metrics receives connection lifecycle counters.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
}

// NopMetrics drops all counters.
type NopMetrics struct{}

func (NopMetrics) ConnectionOpened() {}
func (NopMetrics) ConnectionClosed() {}

// Registry tracks live connections per user and delivers at-most-once,
// best-effort events. There is no durable queue: events for users with no
// live handles are dropped silently. A handle that fails a delivery is
// pruned without affecting its siblings.
type Registry struct {
	mu      sync.RWMutex
	conns   map[uuid.UUID]map[Conn]struct{}
	logger  *zap.Logger
	metrics Metrics
}

func NewRegistry(logger *zap.Logger, metrics Metrics) *Registry {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Registry{
		conns:   make(map[uuid.UUID]map[Conn]struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

// Connect registers a live handle for the user. A user may hold several
// handles at once (multiple devices or tabs).
func (r *Registry) Connect(userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		r.conns[userID] = set
	}
	set[conn] = struct{}{}
	total := len(set)
	r.mu.Unlock()

	r.metrics.ConnectionOpened()
	r.logger.Debug("client connected",
		zap.String("user_id", userID.String()),
		zap.Int("connections", total),
	)
}

// Disconnect removes the handle; the user entry is dropped once its last
// handle is gone so the map never holds empty sets.
func (r *Registry) Disconnect(userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	set := r.conns[userID]
	_, present := set[conn]
	if present {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.conns, userID)
		}
	}
	r.mu.Unlock()

	if present {
		r.metrics.ConnectionClosed()
		r.logger.Debug("client disconnected", zap.String("user_id", userID.String()))
	}
}

// SendToUser delivers the event to every live handle for the user. A user
// with no handles is a silent no-op. Handles that fail delivery are closed
// and pruned; the remaining handles still receive the event.
func (r *Registry) SendToUser(userID uuid.UUID, event Event) {
	r.mu.RLock()
	set, ok := r.conns[userID]
	if !ok {
		r.mu.RUnlock()
		return
	}
	handles := make([]Conn, 0, len(set))
	for conn := range set {
		handles = append(handles, conn)
	}
	r.mu.RUnlock()

	var failed []Conn
	for _, conn := range handles {
		if err := conn.Send(event); err != nil {
			r.logger.Warn("event delivery failed, pruning connection",
				zap.String("user_id", userID.String()),
				zap.String("event", event.Event),
				zap.Error(err),
			)
			failed = append(failed, conn)
		}
	}

	for _, conn := range failed {
		_ = conn.Close()
		r.Disconnect(userID, conn)
	}
}

// Push implements the domain event-pusher contract.
func (r *Registry) Push(userID uuid.UUID, event string, data map[string]any) {
	r.SendToUser(userID, Event{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// ConnectedUsers returns the IDs of users with at least one live handle.
func (r *Registry) ConnectedUsers() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		users = append(users, id)
	}
	return users
}

// ConnectionCount returns the number of live handles for the user.
func (r *Registry) ConnectionCount(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// TotalConnections returns the number of live handles across all users.
func (r *Registry) TotalConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, set := range r.conns {
		total += len(set)
	}
	return total
}

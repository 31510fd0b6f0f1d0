// Package metrics collects and exposes Prometheus metrics for the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and records all service metrics. It satisfies the
// small telemetry interfaces declared by the domain, cache, notify, and
// sweeper packages.
type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	storiesCreated  *prometheus.CounterVec
	storyViews      *prometheus.CounterVec
	reactions       *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	storiesExpired  prometheus.Counter
	sweeps          prometheus.Counter
	sweepFailures   prometheus.Counter
	sweepDuration   prometheus.Histogram
	wsConnections   prometheus.Gauge
	rateLimitTrips  *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyloop_http_requests_total",
			Help: "Total HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storyloop_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		storiesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyloop_stories_created_total",
			Help: "Total stories created, by visibility.",
		}, []string{"visibility"}),
		storyViews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyloop_story_views_total",
			Help: "Total story view requests, by novelty.",
		}, []string{"is_new"}),
		reactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyloop_reactions_total",
			Help: "Total reactions recorded, by emoji.",
		}, []string{"emoji"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyloop_cache_hits_total",
			Help: "Total cache hits, by cache.",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyloop_cache_misses_total",
			Help: "Total cache misses, by cache.",
		}, []string{"cache"}),
		storiesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyloop_stories_expired_total",
			Help: "Total stories soft-deleted by the expiration sweeper.",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyloop_sweeps_total",
			Help: "Total completed expiration sweeps.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyloop_sweep_failures_total",
			Help: "Total expiration sweeps aborted by a store error.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storyloop_sweep_duration_seconds",
			Help:    "Expiration sweep duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storyloop_websocket_connections",
			Help: "Number of live WebSocket connections.",
		}),
		rateLimitTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyloop_rate_limit_exceeded_total",
			Help: "Total requests rejected by rate limiting, by endpoint.",
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.storiesCreated,
		c.storyViews,
		c.reactions,
		c.cacheHits,
		c.cacheMisses,
		c.storiesExpired,
		c.sweeps,
		c.sweepFailures,
		c.sweepDuration,
		c.wsConnections,
		c.rateLimitTrips,
	)

	return c
}

// RecordHTTPRequest records one finished HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// StoryCreated records a story creation.
func (c *Collector) StoryCreated(visibility string) {
	c.storiesCreated.WithLabelValues(visibility).Inc()
}

// StoryViewed records a view request.
func (c *Collector) StoryViewed(isNew bool) {
	c.storyViews.WithLabelValues(strconv.FormatBool(isNew)).Inc()
}

// ReactionAdded records a reaction request.
func (c *Collector) ReactionAdded(emoji string) {
	c.reactions.WithLabelValues(emoji).Inc()
}

// CacheHit records a hit on the named cache.
func (c *Collector) CacheHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

// CacheMiss records a miss on the named cache.
func (c *Collector) CacheMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// SweepCompleted records one finished sweep.
func (c *Collector) SweepCompleted(expired int, duration time.Duration) {
	c.sweeps.Inc()
	c.storiesExpired.Add(float64(expired))
	c.sweepDuration.Observe(duration.Seconds())
}

// SweepFailed records an aborted sweep.
func (c *Collector) SweepFailed() {
	c.sweepFailures.Inc()
}

// ConnectionOpened increments the live-connection gauge.
func (c *Collector) ConnectionOpened() {
	c.wsConnections.Inc()
}

// ConnectionClosed decrements the live-connection gauge.
func (c *Collector) ConnectionClosed() {
	c.wsConnections.Dec()
}

// RateLimitExceeded records a rejected request for the endpoint.
func (c *Collector) RateLimitExceeded(endpoint string) {
	c.rateLimitTrips.WithLabelValues(endpoint).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

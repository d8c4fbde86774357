package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nokoroa_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// CacheLookups counts cache-aside lookups by key family and outcome.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nokoroa_cache_lookups_total",
		Help: "Cache-aside lookups by key family and result (hit, miss)",
	}, []string{"family", "result"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nokoroa_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// DiscoveryQueries counts post discovery queries by strategy.
	DiscoveryQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nokoroa_discovery_queries_total",
		Help: "Post discovery queries by strategy (structured, geospatial) and outcome",
	}, []string{"strategy", "outcome"})

	// NormalizerEntities counts reference rows created by the entity normalizer.
	NormalizerEntities = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nokoroa_normalizer_entities_total",
		Help: "Location and tag rows created during normalization",
	}, []string{"entity"})

	// PostEventsPublished counts post lifecycle events by sink and outcome.
	PostEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nokoroa_post_events_published_total",
		Help: "Post lifecycle events published by sink and outcome",
	}, []string{"sink", "outcome"})

	// FeedConnections is the gauge of open realtime feed connections.
	FeedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nokoroa_feed_connections",
		Help: "Number of open realtime feed WebSocket connections",
	})

	// FeedBackpressureDrops counts feed messages dropped for slow clients.
	FeedBackpressureDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nokoroa_feed_backpressure_drops_total",
		Help: "Realtime feed messages dropped because a client buffer was full",
	})
)

// ObserveQuery records the latency of a database query.
func ObserveQuery(operation, table string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		ObserveQuery(operation, table, start)
	}
}

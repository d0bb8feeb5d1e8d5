package cache

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/pokt-foundation/pocket-gateway/observability"
)

const (
	metricsNamespace = "gateway"
	metricsSubsystem = "cache"

	// Cache levels for metrics labels
	CacheLevelL1 = "l1" // In-memory cache
	CacheLevelL2 = "l2" // Redis cache
	CacheLevelL3 = "l3" // Data store query
)

var (
	cacheHits = observability.GatewayFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type", "level"},
	)

	cacheMisses = observability.GatewayFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type", "level"},
	)

	storeQueries = observability.GatewayFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "store_queries_total",
			Help:      "Total number of data store queries triggered by cache misses",
		},
		[]string{"cache_type", "status"},
	)
)

// observeRedisOp records latency and outcome of one Redis operation on the
// shared observability metrics.
func observeRedisOp(op string, start time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		status = "miss"
	default:
		status = "error"
	}

	observability.RedisOperationsTotal.WithLabelValues(op, status).Inc()
	observability.RedisOperationDurationSeconds.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

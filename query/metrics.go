package query

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pokt-foundation/pocket-gateway/observability"
)

const (
	metricsNamespace = "gateway"
	metricsSubsystem = "query"
)

var (
	queriesTotal = observability.GatewayFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "store_queries_total",
			Help:      "Total number of record store queries",
		},
		[]string{"query_type", "status"},
	)

	queryDuration = observability.GatewayFactory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "store_query_duration_seconds",
			Help:      "Duration of record store queries",
			Buckets:   observability.FineGrainedLatencyBuckets,
		},
		[]string{"query_type"},
	)
)

func observeQuery(queryType string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	queriesTotal.WithLabelValues(queryType, status).Inc()
	queryDuration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pokt-foundation/pocket-gateway/observability"
)

const (
	metricsNamespace = "gateway"
	metricsSubsystem = "metrics"
)

var (
	recordsTotal = observability.GatewayFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "records_total",
			Help:      "Total number of relay metric records accepted",
		},
		[]string{"method", "result"},
	)

	recordsDropped = observability.GatewayFactory.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "records_dropped_total",
			Help:      "Total number of relay metric records dropped on buffer overflow",
		},
	)

	flushesTotal = observability.GatewayFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "flushes_total",
			Help:      "Total number of sink flushes",
		},
		[]string{"result"},
	)

	flushDuration = observability.GatewayFactory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "flush_duration_seconds",
			Help:      "Duration of sink flushes",
			Buckets:   observability.FineGrainedLatencyBuckets,
		},
	)
)

package relayer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pokt-foundation/pocket-gateway/observability"
)

const (
	metricsNamespace = "gateway"
	metricsSubsystem = "relayer"
)

var (
	relaysReceived = observability.GatewayFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "relays_received_total",
			Help:      "Total number of relay requests received",
		},
		[]string{"blockchain"},
	)

	relaysServed = observability.GatewayFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "relays_served_total",
			Help:      "Total number of relay requests successfully served",
		},
		[]string{"blockchain", "fallback"},
	)

	relaysFailed = observability.GatewayFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "relays_failed_total",
			Help:      "Total number of relay requests that failed terminally",
		},
		[]string{"blockchain", "reason"},
	)

	relayAttempts = observability.GatewayFactory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "relay_attempts",
			Help:      "Number of node attempts per served relay",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"blockchain"},
	)

	relayLatency = observability.GatewayFactory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "relay_latency_seconds",
			Help:      "End-to-end latency of relay requests",
			Buckets:   observability.FineGrainedLatencyBuckets,
		},
		[]string{"blockchain"},
	)
)

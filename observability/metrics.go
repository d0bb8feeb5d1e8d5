package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "gateway"
	metricsSubsystem = "observability"
)

// FineGrainedLatencyBuckets provides sub-millisecond to multi-second
// measurement. Use for: relay latency, probe latency, cache operations.
// Buckets: 1ms, 2ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s, 30s
var FineGrainedLatencyBuckets = []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

var (
	// RedisOperationDurationSeconds tracks Redis operation latencies.
	RedisOperationDurationSeconds = GatewayFactory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "redis_operation_duration_seconds",
			Help:      "Duration of Redis operations",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation", "status"},
	)

	// RedisOperationsTotal counts Redis operations.
	RedisOperationsTotal = GatewayFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "redis_operations_total",
			Help:      "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	// QueueDepth tracks the depth of internal queues (metric buffer, pools).
	QueueDepth = GatewayFactory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "queue_depth",
			Help:      "Current depth of internal queues",
		},
		[]string{"queue_name"},
	)

	// QueueCapacity tracks the capacity of internal queues.
	QueueCapacity = GatewayFactory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "queue_capacity",
			Help:      "Capacity of internal queues",
		},
		[]string{"queue_name"},
	)

	// ErrorsTotal counts errors by type and component.
	ErrorsTotal = GatewayFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// ProcessInfo provides static information about the process.
	ProcessInfo = GatewayFactory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "process_info",
			Help:      "Information about the running process",
		},
		[]string{"version", "process_uid"},
	)

	// StartupDurationSeconds tracks startup time of components.
	StartupDurationSeconds = GatewayFactory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "startup_duration_seconds",
			Help:      "Time taken to start components",
		},
		[]string{"component"},
	)
)

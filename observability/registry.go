// Package observability provides the Prometheus registry, shared metric
// definitions, and the metrics/pprof HTTP server for the gateway process.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayRegistry is the dedicated registry served on /metrics.
	// Using a dedicated registry instead of the global default keeps tests
	// free of duplicate-registration errors. The logging package's panic
	// counter is registered on the global default registry instead and is
	// not served here.
	GatewayRegistry = prometheus.NewRegistry()

	// GatewayFactory creates metrics registered with GatewayRegistry.
	// Package-level metric definitions use this factory, except
	// logging.PanicRecoveriesTotal.
	GatewayFactory = promauto.With(GatewayRegistry)
)

func init() {
	GatewayRegistry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

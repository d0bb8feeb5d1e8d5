// Package logging provides centralized logging utilities for the gateway.
// It defines standardized field names and helper functions to ensure
// consistent structured logging across all components.
package logging

// Standard field name constants for structured logging.
// Using constants ensures consistency and prevents typos across the codebase.
const (
	// Component identification
	FieldComponent = "component"

	// Relay identification
	FieldRequestID     = "request_id"
	FieldApplicationID = "application_id"
	FieldAppPublicKey  = "app_public_key"
	FieldLoadBalancer  = "load_balancer_id"
	FieldBlockchain    = "blockchain"
	FieldMethod        = "method"

	// Node/session fields
	FieldServiceNode        = "service_node"
	FieldServiceURL         = "service_url"
	FieldSessionKey         = "session_key"
	FieldSessionFingerprint = "session_fingerprint"
	FieldBlockHeight        = "block_height"

	// Operation fields
	FieldOperation = "operation"
	FieldResult    = "result"
	FieldReason    = "reason"
	FieldAttempt   = "attempt"

	// Network/connection fields
	FieldAddr       = "addr"
	FieldListenAddr = "listen_addr"
	FieldRemoteAddr = "remote_addr"
	FieldURL        = "url"

	// Timing fields
	FieldDuration = "duration"
	FieldElapsed  = "elapsed_ms"

	// Count/size fields
	FieldCount     = "count"
	FieldSize      = "size"
	FieldBatchSize = "batch_size"

	// Cache fields
	FieldCacheKey   = "cache_key"
	FieldCacheType  = "cache_type"
	FieldCacheLevel = "cache_level"

	// Error fields
	FieldErrorType = "error_type"
)

// Component name constants for the "component" field.
// These identify the source of log messages.
const (
	ComponentRelayer          = "relayer"
	ComponentCherryPicker     = "cherry_picker"
	ComponentSyncChecker      = "sync_checker"
	ComponentChainChecker     = "chain_checker"
	ComponentAltruist         = "altruist"
	ComponentMetricsRecorder  = "metrics_recorder"
	ComponentMetricsSink      = "metrics_sink"
	ComponentCache            = "cache"
	ComponentApplicationCache = "application_cache"
	ComponentLBCache          = "load_balancer_cache"
	ComponentChainRegistry    = "blockchain_registry"
	ComponentStore            = "data_store"
	ComponentHTTPServer       = "http_server"
	ComponentRedisClient      = "redis_client"
	ComponentObservability    = "observability_server"
	ComponentRuntimeMetrics   = "runtime_metrics_collector"
)

// Operation result constants for the "result" field.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
	ResultTimeout = "timeout"
)

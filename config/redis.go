package config

// RedisConfig contains Redis connection configuration. Redis holds all
// cross-instance state of the gateway: per-node service logs, verified node
// sets, probe locks, and the application/load-balancer record caches.
type RedisConfig struct {
	// URL is the Redis connection URL.
	// Supports: redis://, rediss://, redis-sentinel://, redis-cluster://
	URL string `yaml:"url"`

	// PoolSize is the maximum number of socket connections.
	// Default: 50
	PoolSize int `yaml:"pool_size,omitempty"`

	// MinIdleConns is the minimum number of idle connections to maintain.
	// Keeping idle connections warm eliminates connection dial latency.
	// Default: 0 (connections created on demand)
	MinIdleConns int `yaml:"min_idle_conns,omitempty"`

	// PoolTimeoutSeconds is the amount of time to wait for a connection
	// from the pool. Default: 4 seconds
	PoolTimeoutSeconds int `yaml:"pool_timeout_seconds,omitempty"`

	// ConnMaxIdleTimeSeconds is the maximum amount of time a connection can
	// be idle before it is closed. Zero leaves the go-redis default in
	// place.
	ConnMaxIdleTimeSeconds int `yaml:"conn_max_idle_time_seconds,omitempty"`

	// Namespace configures Redis key prefixes for all data types.
	// If not specified, defaults are used (gateway:logs, gateway:sync, etc.)
	Namespace RedisNamespaceConfig `yaml:"namespace,omitempty"`
}

// RedisNamespaceConfig contains Redis key namespace/prefix configuration.
// This centralizes all Redis key prefixes used across the system.
// Components use transport/redis.KeyBuilder to construct keys from this
// config; cache-key strings encode a protocol, so nothing outside the
// KeyBuilder may assemble them by hand.
type RedisNamespaceConfig struct {
	// BasePrefix is the root prefix for all Redis keys (default: "gateway")
	BasePrefix string `yaml:"base_prefix,omitempty"`

	// LogsPrefix is the prefix for per-node service log hashes
	// (default: "logs").
	// Full key: {BasePrefix}:{LogsPrefix}:service:{chain}:{nodePubKey}
	LogsPrefix string `yaml:"logs_prefix,omitempty"`

	// SyncPrefix is the prefix for verified in-sync node sets
	// (default: "sync").
	// Full key: {BasePrefix}:{SyncPrefix}:{chain}-{fingerprint}
	SyncPrefix string `yaml:"sync_prefix,omitempty"`

	// ChainPrefix is the prefix for verified chain-id node sets
	// (default: "chain").
	// Full key: {BasePrefix}:{ChainPrefix}:{chain}-chain-{fingerprint}
	ChainPrefix string `yaml:"chain_prefix,omitempty"`

	// RecordsPrefix is the prefix for cached application and load balancer
	// records (default: "records").
	// Full key: {BasePrefix}:{RecordsPrefix}:{entityType}:{id}
	RecordsPrefix string `yaml:"records_prefix,omitempty"`

	// LockPrefix is the prefix for distributed probe locks
	// (default: "lock").
	// Full key: {BasePrefix}:{LockPrefix}:{key}
	LockPrefix string `yaml:"lock_prefix,omitempty"`
}

// DefaultRedisNamespaceConfig returns the default namespace configuration.
func DefaultRedisNamespaceConfig() RedisNamespaceConfig {
	return RedisNamespaceConfig{
		BasePrefix:    "gateway",
		LogsPrefix:    "logs",
		SyncPrefix:    "sync",
		ChainPrefix:   "chain",
		RecordsPrefix: "records",
		LockPrefix:    "lock",
	}
}

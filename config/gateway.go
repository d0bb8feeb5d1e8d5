package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pokt-foundation/pocket-gateway/logging"
)

// Environment variable names for secrets. Secrets never live in the YAML
// file; they are read once at process start.
const (
	EnvSecretKey             = "GATEWAY_SECRET_KEY"
	EnvDatabaseEncryptionKey = "GATEWAY_DATABASE_ENCRYPTION_KEY"
	EnvProcessUID            = "GATEWAY_PROCESS_UID"
)

// PocketConfig contains the service-node network client configuration. The
// relay dispatcher reads these once at start; per-request adjustments are
// produced by the relayer's configuration tuner, never by mutating this
// struct.
type PocketConfig struct {
	// Dispatchers is the list of dispatcher node URLs used for session
	// resolution.
	Dispatchers []string `yaml:"dispatchers"`

	// ConsensusNodeCount is read from configuration but not used: the
	// consensus challenge relay always goes to a fixed 5 nodes. Default: 5
	ConsensusNodeCount int `yaml:"consensus_node_count"`

	// RequestTimeoutMs is the per-attempt timeout for client relays in
	// milliseconds. Default: 20000
	RequestTimeoutMs int64 `yaml:"request_timeout_ms"`

	// AcceptDisputedResponses controls whether disputed consensus responses
	// are returned to clients. Default: false
	AcceptDisputedResponses bool `yaml:"accept_disputed_responses"`

	// SessionBlockFrequency is the number of blocks per session.
	// Default: 4
	SessionBlockFrequency int64 `yaml:"session_block_frequency"`

	// BlockTimeSeconds is the expected block time of the service-node
	// network. Default: 900
	BlockTimeSeconds int64 `yaml:"block_time_seconds"`

	// MaxSessionRefreshRetries bounds session re-dispatch attempts after a
	// "session expired" relay error. Default: 1
	MaxSessionRefreshRetries int `yaml:"max_session_refresh_retries"`

	// ValidateRelayResponses is copied into every tuned relay
	// configuration. The relay client does not act on it. Default: true
	ValidateRelayResponses bool `yaml:"validate_relay_responses"`

	// RejectSelfSignedCertificates is copied into every tuned relay
	// configuration. The relay client does not act on it and does not
	// change its TLS verification. Default: false
	RejectSelfSignedCertificates bool `yaml:"reject_self_signed_certificates"`
}

// DefaultPocketConfig returns the default network client configuration.
func DefaultPocketConfig() PocketConfig {
	return PocketConfig{
		ConsensusNodeCount:           5,
		RequestTimeoutMs:             20000,
		AcceptDisputedResponses:      false,
		SessionBlockFrequency:        4,
		BlockTimeSeconds:             900,
		MaxSessionRefreshRetries:     1,
		ValidateRelayResponses:       true,
		RejectSelfSignedCertificates: false,
	}
}

// StoreConfig contains the gateway data store (application / load balancer /
// blockchain records) connection configuration.
type StoreConfig struct {
	// URL is the base URL of the data store HTTP API.
	URL string `yaml:"url"`

	// APIKey authenticates requests to the data store.
	// Overridden by GATEWAY_DATABASE_ENCRYPTION_KEY when set.
	APIKey string `yaml:"api_key,omitempty"`

	// RetryMax is the maximum number of HTTP retries per store request.
	// Default: 2
	RetryMax int `yaml:"retry_max,omitempty"`
}

// MetricsDBConfig contains the durable relay metrics sink configuration.
type MetricsDBConfig struct {
	// ConnectionURL is the Postgres connection string for the relay table.
	ConnectionURL string `yaml:"connection_url"`

	// BufferSize is the in-memory metric buffer capacity. When the buffer
	// is full, the oldest non-success records are dropped first.
	// Default: 10000
	BufferSize int `yaml:"buffer_size,omitempty"`

	// FlushIntervalSeconds is how often buffered records are bulk-inserted.
	// Default: 10
	FlushIntervalSeconds int `yaml:"flush_interval_seconds,omitempty"`

	// MaxBatchSize caps the number of records per bulk insert.
	// Default: 1000
	MaxBatchSize int `yaml:"max_batch_size,omitempty"`
}

// HTTPConfig contains the client-facing relay server configuration.
type HTTPConfig struct {
	// ListenAddr is the address to listen on for incoming relay requests.
	// Default: ":8080"
	ListenAddr string `yaml:"listen_addr"`

	// MaxPayloadBytes rejects request bodies larger than this with an
	// HTTP 400. Default: 100000 (100KB)
	MaxPayloadBytes int64 `yaml:"max_payload_bytes,omitempty"`

	// AliasOverrideWhitelist lists the Blockchain-Subdomain header values
	// accepted as a blockchain alias override of the first Host label.
	// Empty disables the override.
	AliasOverrideWhitelist []string `yaml:"alias_override_whitelist,omitempty"`
}

// GatewayConfig is the top-level configuration for the gateway process.
type GatewayConfig struct {
	Logging   logging.Config  `yaml:"logging"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Pprof     PprofConfig     `yaml:"pprof"`
	Pocket    PocketConfig    `yaml:"pocket"`
	Store     StoreConfig     `yaml:"store"`
	MetricsDB MetricsDBConfig `yaml:"metrics_db"`
	HTTP      HTTPConfig      `yaml:"http"`

	// MaxRelayAttempts bounds the dispatch loop per client request.
	// Default: 5
	MaxRelayAttempts int `yaml:"max_relay_attempts,omitempty"`

	// Secrets, read from environment at load time.
	SecretKey  string `yaml:"-"`
	ProcessUID string `yaml:"-"`
}

// LoadGatewayConfig reads and validates the gateway configuration from a
// YAML file, applying defaults and environment overrides.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &GatewayConfig{
		Logging: logging.DefaultConfig(),
		Pocket:  DefaultPocketConfig(),
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *GatewayConfig) applyDefaults() {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = ":8080"
	}
	if c.HTTP.MaxPayloadBytes <= 0 {
		c.HTTP.MaxPayloadBytes = 100000
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.MaxRelayAttempts <= 0 {
		c.MaxRelayAttempts = 5
	}
	if c.Store.RetryMax <= 0 {
		c.Store.RetryMax = 2
	}
	if c.MetricsDB.BufferSize <= 0 {
		c.MetricsDB.BufferSize = 10000
	}
	if c.MetricsDB.FlushIntervalSeconds <= 0 {
		c.MetricsDB.FlushIntervalSeconds = 10
	}
	if c.MetricsDB.MaxBatchSize <= 0 {
		c.MetricsDB.MaxBatchSize = 1000
	}
}

func (c *GatewayConfig) applyEnvironment() {
	if v := os.Getenv(EnvSecretKey); v != "" {
		c.SecretKey = v
	}
	if v := os.Getenv(EnvDatabaseEncryptionKey); v != "" {
		c.Store.APIKey = v
	}
	if v := os.Getenv(EnvProcessUID); v != "" {
		c.ProcessUID = v
	}
}

// Validate checks the configuration for missing required fields.
func (c *GatewayConfig) Validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if c.Store.URL == "" {
		return fmt.Errorf("store.url is required")
	}
	if len(c.Pocket.Dispatchers) == 0 {
		return fmt.Errorf("pocket.dispatchers must not be empty")
	}
	return nil
}

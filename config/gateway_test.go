//go:build test

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
logging:
  level: debug
  format: text
redis:
  url: redis://localhost:6379
metrics:
  enabled: true
store:
  url: https://db.gateway.internal
  api_key: file-key
pocket:
  dispatchers:
    - https://dispatch-1.example.com
    - https://dispatch-2.example.com
  request_timeout_ms: 15000
http:
  listen_addr: ":9000"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadGatewayConfig(t *testing.T) {
	cfg, err := LoadGatewayConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	require.Equal(t, ":9000", cfg.HTTP.ListenAddr)
	require.Len(t, cfg.Pocket.Dispatchers, 2)
	require.Equal(t, int64(15000), cfg.Pocket.RequestTimeoutMs)
	require.Equal(t, "file-key", cfg.Store.APIKey)

	// Defaults fill the gaps.
	require.Equal(t, 5, cfg.MaxRelayAttempts)
	require.Equal(t, int64(100000), cfg.HTTP.MaxPayloadBytes)
	require.Equal(t, 10000, cfg.MetricsDB.BufferSize)
}

func TestEnvironmentOverridesSecrets(t *testing.T) {
	t.Setenv(EnvSecretKey, "env-secret")
	t.Setenv(EnvDatabaseEncryptionKey, "env-db-key")
	t.Setenv(EnvProcessUID, "gateway-7")

	cfg, err := LoadGatewayConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	require.Equal(t, "env-secret", cfg.SecretKey)
	require.Equal(t, "env-db-key", cfg.Store.APIKey)
	require.Equal(t, "gateway-7", cfg.ProcessUID)
}

func TestValidationRequiresRedisURL(t *testing.T) {
	yaml := `
store:
  url: https://db.gateway.internal
pocket:
  dispatchers: [https://d.example.com]
`
	_, err := LoadGatewayConfig(writeConfig(t, yaml))
	require.ErrorContains(t, err, "redis.url")
}

func TestValidationRequiresDispatchers(t *testing.T) {
	yaml := `
redis:
  url: redis://localhost:6379
store:
  url: https://db.gateway.internal
`
	_, err := LoadGatewayConfig(writeConfig(t, yaml))
	require.ErrorContains(t, err, "dispatchers")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := LoadGatewayConfig("/does/not/exist.yaml")
	require.Error(t, err)
}

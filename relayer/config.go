package relayer

// Config is the dispatcher's process-wide configuration, read once at
// start.
type Config struct {
	// MaxRelayAttempts bounds the dispatch loop per client request.
	// Default: 5
	MaxRelayAttempts int

	// MaxPayloadBytes rejects larger request bodies before dispatch.
	// Default: 100000
	MaxPayloadBytes int64

	// MaxSessionRefreshRetries bounds session re-dispatches after a
	// "session expired" relay error within one request. Default: 1
	MaxSessionRefreshRetries int

	// SecretKey carries the process-wide secret key. The dispatcher does
	// not read it: secret checks compare the client-presented key with the
	// application's own SecretKey setting.
	SecretKey string
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		MaxRelayAttempts:         5,
		MaxPayloadBytes:          100000,
		MaxSessionRefreshRetries: 1,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxRelayAttempts <= 0 {
		c.MaxRelayAttempts = 5
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = 100000
	}
	if c.MaxSessionRefreshRetries < 0 {
		c.MaxSessionRefreshRetries = 1
	}
}

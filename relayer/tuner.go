package relayer

import (
	"time"

	"github.com/pokt-foundation/pocket-gateway/config"
)

// Probe and fallback timeouts are fixed; only client relay timeouts are
// operator-configurable.
const (
	// probeTimeoutMs is the dispatch timeout for sync and chain check
	// probes.
	probeTimeoutMs = 5000

	// challengeConsensusNodeCount is the node count for the consensus
	// challenge fired when too few nodes are in sync.
	challengeConsensusNodeCount = 5

	// FallbackTimeout bounds the altruist backend attempt.
	FallbackTimeout = 10 * time.Second
)

// Tuner produces transient per-relay configurations derived from the
// process-wide network configuration. The base config is read once at
// start and never mutated; each method returns an adjusted copy.
type Tuner struct {
	base RelayConfig
}

// NewTuner creates a Tuner from the process-wide network configuration.
func NewTuner(cfg config.PocketConfig) *Tuner {
	return &Tuner{
		base: RelayConfig{
			RequestTimeoutMs:             cfg.RequestTimeoutMs,
			ConsensusNodeCount:           0,
			AcceptDisputedResponses:      cfg.AcceptDisputedResponses,
			ValidateResponses:            cfg.ValidateRelayResponses,
			RejectSelfSignedCertificates: cfg.RejectSelfSignedCertificates,
		},
	}
}

// RelayConfig returns the configuration for a client relay attempt.
func (t *Tuner) RelayConfig() RelayConfig {
	return t.base
}

// ProbeConfig returns the timeout-shortened configuration used by sync and
// chain check probes. All parameters other than the timeout are inherited.
func (t *Tuner) ProbeConfig() RelayConfig {
	cfg := t.base
	cfg.RequestTimeoutMs = probeTimeoutMs
	return cfg
}

// ChallengeConfig returns the consensus-mode configuration for the
// challenge relay fired when too few nodes pass the sync check. Disputed
// responses are never accepted so dissenting nodes get penalized.
func (t *Tuner) ChallengeConfig() RelayConfig {
	cfg := t.base
	cfg.ConsensusNodeCount = challengeConsensusNodeCount
	cfg.AcceptDisputedResponses = false
	return cfg
}

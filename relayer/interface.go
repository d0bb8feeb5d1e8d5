// Package relayer implements the relay dispatcher: application and load
// balancer resolution, sync and chain filtering, cherry-picked node
// selection, retries with exclusion, and the altruist fallback.
package relayer

import (
	"context"
	"fmt"

	"github.com/pokt-foundation/pocket-gateway/types"
)

// RelayConfig is the transient per-relay network configuration produced by
// the Tuner. It never aliases the process-wide configuration.
type RelayConfig struct {
	// RequestTimeoutMs is the per-attempt dispatch timeout.
	RequestTimeoutMs int64

	// ConsensusNodeCount is the number of nodes a consensus relay is sent
	// to. Zero for single-node relays.
	ConsensusNodeCount int

	// AcceptDisputedResponses controls whether disputed consensus
	// responses are accepted.
	AcceptDisputedResponses bool

	// ValidateResponses carries the configured response-validation flag.
	// client.RelayClient does not act on it.
	ValidateResponses bool

	// RejectSelfSignedCertificates carries the configured TLS flag.
	// client.RelayClient does not act on it.
	RejectSelfSignedCertificates bool
}

// SendInput carries one outbound relay.
type SendInput struct {
	// Payload is the raw JSON-RPC body forwarded to the node.
	Payload []byte

	// Path is the URL path appended to the relay for chains that route
	// methods by path. Empty for standard JSON-RPC chains.
	Path string

	// ChainID is the hex chain identifier the relay targets.
	ChainID string

	// AAT authorizes the relay on behalf of the application.
	AAT types.AAT

	// Node pins the relay to a specific session node. Nil lets the client
	// choose (used only by consensus relays).
	Node *types.Node

	// Consensus dispatches the relay to ConsensusNodeCount nodes and
	// resolves a majority answer.
	Consensus bool

	// Config is the tuned per-relay configuration.
	Config RelayConfig
}

// RelayOutput is a successful relay response.
type RelayOutput struct {
	// Payload is the raw response body, returned to the client unchanged.
	Payload string
}

// RelayError is a failed relay attempt. It satisfies error so it can flow
// through the dispatch loop's retry logic.
type RelayError struct {
	Code        int
	Message     string
	ServiceNode string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

// Relay error codes surfaced by the network client.
const (
	// CodeSessionExpired means the session served by the dispatcher has
	// rolled over; the session must be refreshed before retrying.
	CodeSessionExpired = 1006

	// CodeTimeout means the node did not answer within the attempt
	// timeout.
	CodeTimeout = 1008
)

// IsSessionExpired reports whether the failure requires a session refresh.
func (e *RelayError) IsSessionExpired() bool {
	return e.Code == CodeSessionExpired
}

// RelaySender is the service-node network client. It owns session dispatch
// and cryptographic relay signing; the dispatcher treats it as opaque.
type RelaySender interface {
	// Session returns the current session for an (application, chain)
	// pair.
	Session(ctx context.Context, appPublicKey, chainID string) (*types.Session, error)

	// RefreshSession discards any cached session for the pair and
	// re-dispatches.
	RefreshSession(ctx context.Context, appPublicKey, chainID string) (*types.Session, error)

	// Send performs one relay. It returns either a response or an error;
	// a *RelayError carries the failing node and failure code.
	Send(ctx context.Context, input SendInput) (*RelayOutput, error)
}

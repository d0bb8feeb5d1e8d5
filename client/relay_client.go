// Package client implements the service-node network client: session
// dispatch against the configured dispatcher nodes and relay submission to
// session nodes, satisfying the dispatcher's RelaySender contract.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/pokt-foundation/pocket-gateway/config"
	"github.com/pokt-foundation/pocket-gateway/logging"
	"github.com/pokt-foundation/pocket-gateway/relayer"
	"github.com/pokt-foundation/pocket-gateway/types"
)

const (
	dispatchPath = "/v1/client/dispatch"
	relayPath    = "/v1/client/relay"

	componentRelayClient = "relay_client"
)

// RelayClient talks to the service-node network over its HTTP client API.
// It caches the current session per (application, chain) pair in-process;
// cross-instance session agreement is not required because sessions are
// deterministic on the network side.
type RelayClient struct {
	logger      logging.Logger
	config      config.PocketConfig
	signer      *Signer
	client      *http.Client
	dispatchers []string
	dispatchIdx atomic.Uint64

	sessions *xsync.MapOf[string, *types.Session]
}

// NewRelayClient creates the network client. The signer is optional; when
// nil, relay proofs are sent unsigned (accepted only by permissive node
// configurations, useful in development).
func NewRelayClient(logger logging.Logger, cfg config.PocketConfig, signer *Signer) (*RelayClient, error) {
	if len(cfg.Dispatchers) == 0 {
		return nil, fmt.Errorf("at least one dispatcher is required")
	}

	return &RelayClient{
		logger:      logging.ForComponent(logger, componentRelayClient),
		config:      cfg,
		signer:      signer,
		dispatchers: cfg.Dispatchers,
		client: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutMs) * time.Millisecond,
		},
		sessions: xsync.NewMapOf[string, *types.Session](),
	}, nil
}

// Session returns the current session for the (application, chain) pair,
// dispatching a new one on first use.
func (c *RelayClient) Session(ctx context.Context, appPublicKey, chainID string) (*types.Session, error) {
	key := appPublicKey + ":" + chainID
	if session, ok := c.sessions.Load(key); ok {
		return session, nil
	}

	session, err := c.dispatch(ctx, appPublicKey, chainID)
	if err != nil {
		return nil, err
	}

	c.sessions.Store(key, session)
	return session, nil
}

// RefreshSession discards the cached session and dispatches a fresh one.
func (c *RelayClient) RefreshSession(ctx context.Context, appPublicKey, chainID string) (*types.Session, error) {
	key := appPublicKey + ":" + chainID
	c.sessions.Delete(key)

	var session *types.Session
	var err error
	for attempt := 0; attempt <= c.config.MaxSessionRefreshRetries; attempt++ {
		session, err = c.dispatch(ctx, appPublicKey, chainID)
		if err == nil {
			c.sessions.Store(key, session)
			return session, nil
		}
	}
	return nil, err
}

// dispatchRequest is the session dispatch call body.
type dispatchRequest struct {
	AppPublicKey string `json:"app_public_key"`
	Chain        string `json:"chain"`
}

// dispatchResponse mirrors the dispatcher's session envelope.
type dispatchResponse struct {
	Session struct {
		Key    string `json:"key"`
		Header struct {
			AppPublicKey  string `json:"app_public_key"`
			Chain         string `json:"chain"`
			SessionHeight int64  `json:"session_height"`
		} `json:"header"`
		Nodes []struct {
			PublicKey  string   `json:"public_key"`
			ServiceURL string   `json:"service_url"`
			Chains     []string `json:"chains"`
		} `json:"nodes"`
	} `json:"session"`
}

// dispatch asks the next dispatcher for the pair's current session.
func (c *RelayClient) dispatch(ctx context.Context, appPublicKey, chainID string) (*types.Session, error) {
	dispatcher := c.dispatchers[c.dispatchIdx.Add(1)%uint64(len(c.dispatchers))]

	body, _ := json.Marshal(dispatchRequest{AppPublicKey: appPublicKey, Chain: chainID})

	resp, err := c.post(ctx, strings.TrimRight(dispatcher, "/")+dispatchPath, body)
	if err != nil {
		return nil, fmt.Errorf("session dispatch failed: %w", err)
	}

	var out dispatchResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("unparseable dispatch response: %w", err)
	}

	session := &types.Session{
		Key: out.Session.Key,
		Header: types.SessionHeader{
			ApplicationPublicKey: out.Session.Header.AppPublicKey,
			Chain:                out.Session.Header.Chain,
			SessionHeight:        out.Session.Header.SessionHeight,
		},
	}
	for _, node := range out.Session.Nodes {
		session.Nodes = append(session.Nodes, types.Node{
			PublicKey:  node.PublicKey,
			ServiceURL: node.ServiceURL,
			Chains:     node.Chains,
		})
	}

	if len(session.Nodes) == 0 {
		return nil, fmt.Errorf("dispatcher returned a session with no nodes")
	}

	c.logger.Debug().
		Str(logging.FieldBlockchain, chainID).
		Str(logging.FieldSessionKey, session.Key).
		Int(logging.FieldCount, len(session.Nodes)).
		Msg("session dispatched")

	return session, nil
}

// relayEnvelope is the node relay call body.
type relayEnvelope struct {
	Payload relayPayload `json:"payload"`
	Meta    relayMeta    `json:"meta"`
	Proof   relayProof   `json:"proof"`
}

type relayPayload struct {
	Data   string `json:"data"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

type relayMeta struct {
	BlockHeight int64 `json:"block_height"`
}

type relayProof struct {
	Blockchain         string    `json:"blockchain"`
	AAT                types.AAT `json:"aat"`
	RequestHash        string    `json:"request_hash"`
	ClientSignature    string    `json:"signature"`
	ServicerPublicKey  string    `json:"servicer_pub_key"`
	SessionBlockHeight int64     `json:"session_block_height"`
}

// relayResponse mirrors the node's relay answer.
type relayResponse struct {
	Response string `json:"response"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Send performs one relay. Consensus relays fan out to ConsensusNodeCount
// session nodes and require a strict majority on the response payload.
func (c *RelayClient) Send(ctx context.Context, input relayer.SendInput) (*relayer.RelayOutput, error) {
	if input.Consensus {
		return c.sendConsensus(ctx, input)
	}
	if input.Node == nil {
		return nil, &relayer.RelayError{Code: 0, Message: "relay requires a target node"}
	}
	return c.sendToNode(ctx, input, *input.Node)
}

// sendToNode submits the relay to one session node.
func (c *RelayClient) sendToNode(ctx context.Context, input relayer.SendInput, node types.Node) (*relayer.RelayOutput, error) {
	envelope := relayEnvelope{
		Payload: relayPayload{
			Data:   string(input.Payload),
			Method: http.MethodPost,
			Path:   input.Path,
		},
		Proof: relayProof{
			Blockchain:        input.ChainID,
			AAT:               input.AAT,
			ServicerPublicKey: node.PublicKey,
		},
	}
	if c.signer != nil {
		envelope.Proof.ClientSignature = c.signer.Sign(input.Payload)
	}

	body, _ := json.Marshal(envelope)

	timeout := time.Duration(input.Config.RequestTimeoutMs) * time.Millisecond
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.post(sendCtx, strings.TrimRight(node.ServiceURL, "/")+relayPath, body)
	if err != nil {
		return nil, classifySendError(err, node.PublicKey)
	}

	var out relayResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		// Some chains answer with the raw backend body; pass it through.
		return &relayer.RelayOutput{Payload: string(resp)}, nil
	}

	if out.Error != nil {
		return nil, &relayer.RelayError{
			Code:        classifyNodeErrorCode(out.Error.Code, out.Error.Message),
			Message:     out.Error.Message,
			ServiceNode: node.PublicKey,
		}
	}

	return &relayer.RelayOutput{Payload: out.Response}, nil
}

// sendConsensus fans the relay out to the session's first
// ConsensusNodeCount nodes and requires a strict majority on the payload.
func (c *RelayClient) sendConsensus(ctx context.Context, input relayer.SendInput) (*relayer.RelayOutput, error) {
	session, err := c.Session(ctx, input.AAT.ApplicationPublicKey, input.ChainID)
	if err != nil {
		return nil, &relayer.RelayError{Code: 0, Message: err.Error()}
	}

	count := input.Config.ConsensusNodeCount
	if count <= 0 || count > len(session.Nodes) {
		count = len(session.Nodes)
	}

	votes := make(map[string]int, count)
	answers := make(map[string]*relayer.RelayOutput, count)
	var lastErr error

	for _, node := range session.Nodes[:count] {
		output, err := c.sendToNode(ctx, input, node)
		if err != nil {
			lastErr = err
			continue
		}
		votes[output.Payload]++
		answers[output.Payload] = output
	}

	var best string
	for payload, n := range votes {
		if n > votes[best] || best == "" {
			best = payload
		}
	}

	if best == "" {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &relayer.RelayError{Code: 0, Message: "consensus relay produced no responses"}
	}

	// A disputed majority is surfaced unless the configuration accepts it.
	if votes[best]*2 <= count && !input.Config.AcceptDisputedResponses {
		return nil, &relayer.RelayError{Code: 0, Message: "consensus relay response is disputed"}
	}

	return answers[best], nil
}

// post issues one HTTP POST and returns the response body. Non-200
// statuses return the body as an error.
func (c *RelayClient) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	return payload, nil
}

// classifySendError maps transport failures to relay error codes.
func classifySendError(err error, nodeKey string) *relayer.RelayError {
	code := 0
	if strings.Contains(err.Error(), "context deadline exceeded") {
		code = relayer.CodeTimeout
	}
	return &relayer.RelayError{
		Code:        code,
		Message:     err.Error(),
		ServiceNode: nodeKey,
	}
}

// classifyNodeErrorCode normalizes node error codes, detecting session
// expiry from the message when the node omits the code.
func classifyNodeErrorCode(code int, message string) int {
	if code != 0 {
		return code
	}
	lower := strings.ToLower(message)
	if strings.Contains(lower, "session") && (strings.Contains(lower, "expired") || strings.Contains(lower, "invalid")) {
		return relayer.CodeSessionExpired
	}
	return 0
}

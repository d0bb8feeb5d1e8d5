package relayer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pokt-foundation/pocket-gateway/types"
)

// RelayRequest is the per-request context handed to the dispatcher by the
// ingress layer: already-parsed identifiers, the raw body, and the
// recognized header values. Process-wide configuration never travels here.
type RelayRequest struct {
	// ChainIdentifier is the blockchain alias or hex ID taken from the
	// first label of the request Host (or a whitelisted
	// Blockchain-Subdomain header override).
	ChainIdentifier string

	// RawBody is the raw JSON-RPC payload, forwarded to nodes unchanged.
	RawBody []byte

	// SecretKey is the client-presented application secret, if any.
	SecretKey string

	// Origin and UserAgent are recorded for debugging. A UserAgent
	// containing "pocket-debug" enables verbose logging for the request.
	Origin    string
	UserAgent string

	// RequestID correlates logs and metric records for the request.
	RequestID string
}

// debugUserAgent is the User-Agent substring that enables verbose logging.
const debugUserAgent = "pocket-debug"

// Debug reports whether the request asked for verbose logging.
func (r *RelayRequest) Debug() bool {
	return strings.Contains(r.UserAgent, debugUserAgent)
}

// rpcCall is the subset of a JSON-RPC call the dispatcher inspects.
type rpcCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// parseRPCCall extracts the JSON-RPC method (and raw params) from a
// payload. Batch payloads report the first element's method.
func parseRPCCall(raw []byte) (rpcCall, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return rpcCall{}, ErrMalformedPayload
	}

	if strings.HasPrefix(trimmed, "[") {
		var batch []rpcCall
		if err := json.Unmarshal(raw, &batch); err != nil || len(batch) == 0 {
			return rpcCall{}, ErrMalformedPayload
		}
		return batch[0], nil
	}

	var call rpcCall
	if err := json.Unmarshal(raw, &call); err != nil {
		return rpcCall{}, ErrMalformedPayload
	}
	return call, nil
}

// logsFilter is the first parameter of an eth_getLogs call.
type logsFilter struct {
	FromBlock string `json:"fromBlock"`
	ToBlock   string `json:"toBlock"`
}

// checkLogLimit enforces the chain's eth_getLogs block range limit. Ranges
// using tags ("latest", "earliest") or malformed values pass through; the
// backend is the authority on those.
func checkLogLimit(call rpcCall, chain *types.Blockchain) error {
	if chain.LogLimitBlocks <= 0 || call.Method != "eth_getLogs" || len(call.Params) == 0 {
		return nil
	}

	var filter logsFilter
	if err := json.Unmarshal(call.Params[0], &filter); err != nil {
		return nil
	}

	from, fromOK := parseHexBlock(filter.FromBlock)
	to, toOK := parseHexBlock(filter.ToBlock)
	if !fromOK || !toOK {
		return nil
	}

	if to-from > chain.LogLimitBlocks {
		return fmt.Errorf("%w: %d blocks requested, limit is %d", ErrLogLimitExceeded, to-from, chain.LogLimitBlocks)
	}

	return nil
}

func parseHexBlock(s string) (int64, bool) {
	if !strings.HasPrefix(s, "0x") {
		return 0, false
	}
	v, err := strconv.ParseInt(s[2:], 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

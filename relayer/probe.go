package relayer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// probeResult extracts the probe answer from a node's JSON response body.
// resultKey is a dot-separated path into the document; empty means the
// JSON-RPC "result" field.
func probeResult(payload, resultKey string) (any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("unparseable probe response: %w", err)
	}

	if resultKey == "" {
		resultKey = "result"
	}

	var value any = doc
	for _, key := range strings.Split(resultKey, ".") {
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("probe response has no %q field", resultKey)
		}
		value, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("probe response has no %q field", resultKey)
		}
	}

	return value, nil
}

// parseBlockHeight extracts a block height from a probe response. Heights
// arrive as hex-encoded strings ("0x10d4f"), decimal strings, or JSON
// numbers depending on the chain.
func parseBlockHeight(payload, resultKey string) (int64, error) {
	value, err := probeResult(payload, resultKey)
	if err != nil {
		return 0, err
	}

	switch v := value.(type) {
	case string:
		if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
			height, err := strconv.ParseInt(v[2:], 16, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid hex block height %q: %w", v, err)
			}
			return height, nil
		}
		height, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid block height %q: %w", v, err)
		}
		return height, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected block height type %T", value)
	}
}

// parseChainID extracts the reported chain ID from a probe response,
// normalized for comparison (lowercased, as chains report hex ids in mixed
// case).
func parseChainID(payload, resultKey string) (string, error) {
	value, err := probeResult(payload, resultKey)
	if err != nil {
		return "", err
	}

	switch v := value.(type) {
	case string:
		return strings.ToLower(v), nil
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	default:
		return "", fmt.Errorf("unexpected chain id type %T", value)
	}
}

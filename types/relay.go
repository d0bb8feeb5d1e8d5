package types

import "time"

// RelayMetric is the record emitted for every relay attempt, including
// sync-check and chain-check probes (method "synccheck" / "chaincheck").
// Exactly one record is produced per attempt.
type RelayMetric struct {
	RequestID            string    `json:"requestID"`
	ApplicationID        string    `json:"applicationID"`
	ApplicationPublicKey string    `json:"applicationPublicKey"`
	Blockchain           string    `json:"blockchain"`
	ServiceNode          string    `json:"serviceNode"`
	RelayStart           time.Time `json:"relayStart"`
	Elapsed              float64   `json:"elapsedTime"`

	// Result is the HTTP-style status of the attempt: 200 on success, 500
	// on node failure.
	Result int64 `json:"result"`

	Bytes     int64  `json:"bytes"`
	Delivered bool   `json:"delivered"`
	Fallback  bool   `json:"fallback"`
	Method    string `json:"method"`
	Error     string `json:"error,omitempty"`
}

// IsSuccess reports whether the attempt completed with a 200 result.
func (m *RelayMetric) IsSuccess() bool {
	return m.Result == 200
}

// Methods reserved for internal health probes.
const (
	MethodSyncCheck  = "synccheck"
	MethodChainCheck = "chaincheck"
)

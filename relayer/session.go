package relayer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/pokt-foundation/pocket-gateway/types"
)

// fingerprintNode is the canonical per-node shape hashed into a session
// fingerprint. The public key is elided; it only determines ordering.
type fingerprintNode struct {
	ServiceURL string   `json:"serviceUrl"`
	Chains     []string `json:"chains"`
}

// SessionFingerprint returns the deterministic 64-hex identifier of a
// session's node set: SHA-256 over the canonical JSON of the nodes sorted
// by public key, with the public key field elided. Identical node sets
// produce identical fingerprints across processes, so the fingerprint is
// safe as a fleet-wide cache namespace. When the session changes, its
// fingerprint changes and stale verified-node entries become unreachable.
func SessionFingerprint(nodes []types.Node) string {
	sorted := make([]types.Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PublicKey < sorted[j].PublicKey
	})

	canonical := make([]fingerprintNode, 0, len(sorted))
	for _, node := range sorted {
		canonical = append(canonical, fingerprintNode{
			ServiceURL: node.ServiceURL,
			Chains:     node.Chains,
		})
	}

	// Marshaling a concrete slice of structs cannot fail.
	data, _ := json.Marshal(canonical)

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// intersectByKeys returns the nodes whose public keys appear in keys,
// preserving the input order.
func intersectByKeys(nodes []types.Node, keys []string) []types.Node {
	allowed := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		allowed[key] = struct{}{}
	}

	out := make([]types.Node, 0, len(nodes))
	for _, node := range nodes {
		if _, ok := allowed[node.PublicKey]; ok {
			out = append(out, node)
		}
	}
	return out
}

// excludeByKeys returns the nodes whose public keys do not appear in the
// exclusion set, preserving the input order.
func excludeByKeys(nodes []types.Node, excluded map[string]struct{}) []types.Node {
	if len(excluded) == 0 {
		return nodes
	}

	out := make([]types.Node, 0, len(nodes))
	for _, node := range nodes {
		if _, ok := excluded[node.PublicKey]; !ok {
			out = append(out, node)
		}
	}
	return out
}

// publicKeys extracts the public keys of a node slice.
func publicKeys(nodes []types.Node) []string {
	keys := make([]string, 0, len(nodes))
	for _, node := range nodes {
		keys = append(keys, node.PublicKey)
	}
	return keys
}

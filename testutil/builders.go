//go:build test

package testutil

import (
	"fmt"

	"github.com/pokt-foundation/pocket-gateway/types"
)

// TestChainID is the chain used by most tests.
const TestChainID = "0021"

// NewTestNode builds a session node with a deterministic key and URL.
func NewTestNode(i int) types.Node {
	return types.Node{
		PublicKey:  fmt.Sprintf("node%02d", i),
		ServiceURL: fmt.Sprintf("https://node%02d.example.com:443", i),
		Chains:     []string{TestChainID},
	}
}

// NewTestNodes builds n session nodes.
func NewTestNodes(n int) []types.Node {
	nodes := make([]types.Node, 0, n)
	for i := 0; i < n; i++ {
		nodes = append(nodes, NewTestNode(i))
	}
	return nodes
}

// NewTestSession builds a session over the given nodes.
func NewTestSession(nodes []types.Node) *types.Session {
	return &types.Session{
		Key: "test-session",
		Header: types.SessionHeader{
			ApplicationPublicKey: "app-pub-key",
			Chain:                TestChainID,
			SessionHeight:        100,
		},
		Nodes: nodes,
	}
}

// NewTestApplication builds an application staked for the test chain.
func NewTestApplication(id string) *types.Application {
	return &types.Application{
		ID:        id,
		PublicKey: "pubkey-" + id,
		FreeTierAAT: types.AAT{
			Version:              "0.0.1",
			ApplicationPublicKey: "pubkey-" + id,
			ClientPublicKey:      "client-pub-key",
			ApplicationSignature: "sig-" + id,
		},
		Chains: []string{TestChainID},
	}
}

// NewTestBlockchain builds a blockchain descriptor with sync and chain
// checks enabled.
func NewTestBlockchain() *types.Blockchain {
	return &types.Blockchain{
		ID:        TestChainID,
		Ticker:    "ETH",
		NetworkID: "1",
		Aliases:   []string{"eth-mainnet"},
		ChainID:   "0x1",
		SyncCheck: types.SyncCheckOptions{
			Body:      `{"method":"eth_blockNumber","params":[],"id":64,"jsonrpc":"2.0"}`,
			Allowance: 1,
		},
		ChainIDCheck: `{"method":"eth_chainId","params":[],"id":64,"jsonrpc":"2.0"}`,
	}
}

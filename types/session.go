package types

// Node is one service node assigned to a session. Its lifetime is the
// session's; the gateway treats it as an opaque relay target.
type Node struct {
	PublicKey  string   `json:"publicKey"`
	ServiceURL string   `json:"serviceUrl"`
	Chains     []string `json:"chains"`
}

// SessionHeader identifies a session on the network.
type SessionHeader struct {
	ApplicationPublicKey string `json:"applicationPubKey"`
	Chain                string `json:"chain"`
	SessionHeight        int64  `json:"sessionBlockHeight"`
}

// Session is the time-bounded assignment of a fixed node set to an
// (application, chain) pair, as defined by the service-node network.
type Session struct {
	Key    string        `json:"key"`
	Header SessionHeader `json:"header"`
	Nodes  []Node        `json:"nodes"`
}

// NodeSyncLog is the result of one sync probe against a node.
type NodeSyncLog struct {
	Node        Node
	ChainID     string
	BlockHeight int64
}

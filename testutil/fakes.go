//go:build test

package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/pokt-foundation/pocket-gateway/query"
	"github.com/pokt-foundation/pocket-gateway/relayer"
	"github.com/pokt-foundation/pocket-gateway/types"
)

// FakeRelaySender is a scriptable in-memory RelaySender. It answers sync
// probes from Heights, chain probes from ChainIDs, and client relays from
// Responses; nodes listed in FailNodes fail their client relays.
type FakeRelaySender struct {
	mu sync.Mutex

	// CurrentSession is returned by Session and RefreshSession.
	CurrentSession *types.Session

	// RefreshedSession, when set, replaces CurrentSession on refresh.
	RefreshedSession *types.Session

	// Heights maps node public key to the block height reported by sync
	// probes. Nodes absent from the map fail their probes.
	Heights map[string]int64

	// ChainIDs maps node public key to the chain id reported by chain
	// probes. Nodes absent from the map report "0x1".
	ChainIDs map[string]string

	// Responses maps node public key to the client relay payload. Nodes
	// absent from the map answer DefaultResponse.
	Responses map[string]string

	// DefaultResponse is the fallback client relay payload.
	DefaultResponse string

	// SyncBody and ChainBody are the probe payloads recognized as sync and
	// chain checks. They default to the test blockchain's probe bodies.
	SyncBody  string
	ChainBody string

	// FailNodes maps node public key to the error its client relays
	// return. Probes are unaffected; use Heights/ChainIDs to fail those.
	FailNodes map[string]*relayer.RelayError

	// Counters
	SessionCalls   int
	RefreshCalls   int
	SyncProbes     int
	ChainProbes    int
	RelayCalls     int
	ConsensusCalls int

	// SentTo records the node public key of every client relay, in order.
	SentTo []string
}

// NewFakeRelaySender builds a fake over the given session where every node
// is healthy, at height 100, and on chain 0x1.
func NewFakeRelaySender(session *types.Session) *FakeRelaySender {
	heights := make(map[string]int64, len(session.Nodes))
	for _, node := range session.Nodes {
		heights[node.PublicKey] = 100
	}

	chain := NewTestBlockchain()

	return &FakeRelaySender{
		CurrentSession:  session,
		Heights:         heights,
		ChainIDs:        map[string]string{},
		Responses:       map[string]string{},
		FailNodes:       map[string]*relayer.RelayError{},
		DefaultResponse: `{"id":1,"jsonrpc":"2.0","result":"0x64"}`,
		SyncBody:        chain.SyncCheck.Body,
		ChainBody:       chain.ChainIDCheck,
	}
}

func (f *FakeRelaySender) Session(_ context.Context, _, _ string) (*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SessionCalls++
	return f.CurrentSession, nil
}

func (f *FakeRelaySender) RefreshSession(_ context.Context, _, _ string) (*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefreshCalls++
	if f.RefreshedSession != nil {
		f.CurrentSession = f.RefreshedSession
	}
	return f.CurrentSession, nil
}

func (f *FakeRelaySender) Send(_ context.Context, input relayer.SendInput) (*relayer.RelayOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if input.Consensus {
		f.ConsensusCalls++
		return &relayer.RelayOutput{Payload: f.DefaultResponse}, nil
	}

	if input.Node == nil {
		return nil, &relayer.RelayError{Message: "no node"}
	}
	nodeKey := input.Node.PublicKey

	payload := string(input.Payload)
	switch {
	case payload == f.SyncBody:
		f.SyncProbes++
		height, ok := f.Heights[nodeKey]
		if !ok {
			return nil, &relayer.RelayError{Message: "probe failed", ServiceNode: nodeKey}
		}
		return &relayer.RelayOutput{Payload: fmt.Sprintf(`{"id":1,"jsonrpc":"2.0","result":"0x%x"}`, height)}, nil

	case payload == f.ChainBody:
		f.ChainProbes++
		chainID, ok := f.ChainIDs[nodeKey]
		if !ok {
			chainID = "0x1"
		}
		return &relayer.RelayOutput{Payload: fmt.Sprintf(`{"id":1,"jsonrpc":"2.0","result":"%s"}`, chainID)}, nil

	default:
		f.RelayCalls++
		f.SentTo = append(f.SentTo, nodeKey)
		if err, ok := f.FailNodes[nodeKey]; ok {
			return nil, err
		}
		if resp, ok := f.Responses[nodeKey]; ok {
			return &relayer.RelayOutput{Payload: resp}, nil
		}
		return &relayer.RelayOutput{Payload: f.DefaultResponse}, nil
	}
}

// SyncProbeCount returns the number of sync probes served.
func (f *FakeRelaySender) SyncProbeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SyncProbes
}

// ChainProbeCount returns the number of chain id probes served.
func (f *FakeRelaySender) ChainProbeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ChainProbes
}

// ConsensusCallCount returns the number of consensus relays served.
func (f *FakeRelaySender) ConsensusCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ConsensusCalls
}

// RelayCallCount returns the number of client relays served.
func (f *FakeRelaySender) RelayCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.RelayCalls
}

// SentToNodes returns a copy of the client relay target sequence.
func (f *FakeRelaySender) SentToNodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.SentTo))
	copy(out, f.SentTo)
	return out
}

// MemorySink is an in-memory metrics sink.
type MemorySink struct {
	mu      sync.Mutex
	Records []types.RelayMetric
}

func (s *MemorySink) Write(_ context.Context, records []types.RelayMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records = append(s.Records, records...)
	return nil
}

// Len returns the number of persisted records.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Records)
}

// FakeStore is an in-memory record store implementing the cache store
// interfaces.
type FakeStore struct {
	mu sync.Mutex

	Applications  map[string]*types.Application
	LoadBalancers map[string]*types.LoadBalancer
	Blockchains   []*types.Blockchain

	// Call counters, used to verify cache-hit behavior.
	AppCalls int
	LBCalls  int
}

// NewFakeStore builds an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Applications:  map[string]*types.Application{},
		LoadBalancers: map[string]*types.LoadBalancer{},
	}
}

func (s *FakeStore) GetApplication(_ context.Context, appID string) (*types.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppCalls++
	app, ok := s.Applications[appID]
	if !ok {
		return nil, query.ErrRecordNotFound
	}
	return app, nil
}

func (s *FakeStore) GetLoadBalancer(_ context.Context, lbID string) (*types.LoadBalancer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LBCalls++
	lb, ok := s.LoadBalancers[lbID]
	if !ok {
		return nil, query.ErrRecordNotFound
	}
	return lb, nil
}

func (s *FakeStore) GetBlockchains(_ context.Context) ([]*types.Blockchain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Blockchains, nil
}

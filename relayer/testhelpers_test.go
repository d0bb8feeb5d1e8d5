//go:build test

package relayer

import (
	"context"
	"fmt"
	"sync"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"

	"github.com/pokt-foundation/pocket-gateway/config"
	"github.com/pokt-foundation/pocket-gateway/query"
	redisutil "github.com/pokt-foundation/pocket-gateway/transport/redis"
	"github.com/pokt-foundation/pocket-gateway/types"
)

var errRecordNotFound = query.ErrRecordNotFound

// The relayer tests carry their own fixtures instead of using testutil:
// testutil fakes the RelaySender contract and therefore imports this
// package.

const testChainID = "0021"

// redisSuite provides a shared miniredis instance for the relayer suites.
type redisSuite struct {
	suite.Suite

	MiniRedis   *miniredis.Miniredis
	RedisClient *redisutil.Client
	Ctx         context.Context
}

func (s *redisSuite) SetupSuite() {
	mr, err := miniredis.Run()
	s.Require().NoError(err, "failed to create miniredis")
	s.MiniRedis = mr

	s.Ctx = context.Background()

	client, err := redisutil.NewClient(s.Ctx, redisutil.ClientConfig{
		URL: fmt.Sprintf("redis://%s", mr.Addr()),
	})
	s.Require().NoError(err, "failed to create Redis client")
	s.RedisClient = client
}

func (s *redisSuite) SetupTest() {
	s.MiniRedis.FlushAll()
}

func (s *redisSuite) TearDownSuite() {
	if s.RedisClient != nil {
		_ = s.RedisClient.Close()
	}
	if s.MiniRedis != nil {
		s.MiniRedis.Close()
	}
}

// testPocketConfig returns the network configuration used across the
// relayer tests.
func testPocketConfig() config.PocketConfig {
	cfg := config.DefaultPocketConfig()
	cfg.Dispatchers = []string{"https://dispatch.example.com"}
	cfg.RequestTimeoutMs = 2000
	return cfg
}

func newTestNode(i int) types.Node {
	return types.Node{
		PublicKey:  fmt.Sprintf("node%02d", i),
		ServiceURL: fmt.Sprintf("https://node%02d.example.com:443", i),
		Chains:     []string{testChainID},
	}
}

func newTestNodes(n int) []types.Node {
	nodes := make([]types.Node, 0, n)
	for i := 0; i < n; i++ {
		nodes = append(nodes, newTestNode(i))
	}
	return nodes
}

func newTestSession(nodes []types.Node) *types.Session {
	return &types.Session{
		Key: "test-session",
		Header: types.SessionHeader{
			ApplicationPublicKey: "app-pub-key",
			Chain:                testChainID,
			SessionHeight:        100,
		},
		Nodes: nodes,
	}
}

func newTestApplication(id string) *types.Application {
	return &types.Application{
		ID:        id,
		PublicKey: "pubkey-" + id,
		FreeTierAAT: types.AAT{
			Version:              "0.0.1",
			ApplicationPublicKey: "pubkey-" + id,
			ClientPublicKey:      "client-pub-key",
			ApplicationSignature: "sig-" + id,
		},
		Chains: []string{testChainID},
	}
}

func newTestBlockchain() *types.Blockchain {
	return &types.Blockchain{
		ID:        testChainID,
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

// fakeSender is a scriptable in-memory RelaySender. It answers sync probes
// from heights, chain probes from chainIDs, and client relays from
// responses; nodes listed in failNodes fail their client relays only.
type fakeSender struct {
	mu sync.Mutex

	currentSession   *types.Session
	refreshedSession *types.Session

	heights   map[string]int64
	chainIDs  map[string]string
	responses map[string]string
	failNodes map[string]*RelayError

	defaultResponse string
	syncBody        string
	chainBody       string

	sessionCalls   int
	refreshCalls   int
	syncProbes     int
	chainProbes    int
	relayCalls     int
	consensusCalls int

	sentTo []string
}

// newFakeSender builds a fake over the given session where every node is
// healthy, at height 100, and on chain 0x1.
func newFakeSender(session *types.Session) *fakeSender {
	heights := make(map[string]int64, len(session.Nodes))
	for _, node := range session.Nodes {
		heights[node.PublicKey] = 100
	}

	chain := newTestBlockchain()

	return &fakeSender{
		currentSession:  session,
		heights:         heights,
		chainIDs:        map[string]string{},
		responses:       map[string]string{},
		failNodes:       map[string]*RelayError{},
		defaultResponse: `{"id":1,"jsonrpc":"2.0","result":"0x64"}`,
		syncBody:        chain.SyncCheck.Body,
		chainBody:       chain.ChainIDCheck,
	}
}

func (f *fakeSender) Session(_ context.Context, _, _ string) (*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionCalls++
	return f.currentSession, nil
}

func (f *fakeSender) RefreshSession(_ context.Context, _, _ string) (*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshedSession != nil {
		f.currentSession = f.refreshedSession
	}
	return f.currentSession, nil
}

func (f *fakeSender) Send(_ context.Context, input SendInput) (*RelayOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if input.Consensus {
		f.consensusCalls++
		return &RelayOutput{Payload: f.defaultResponse}, nil
	}

	if input.Node == nil {
		return nil, &RelayError{Message: "no node"}
	}
	nodeKey := input.Node.PublicKey

	switch string(input.Payload) {
	case f.syncBody:
		f.syncProbes++
		height, ok := f.heights[nodeKey]
		if !ok {
			return nil, &RelayError{Message: "probe failed", ServiceNode: nodeKey}
		}
		return &RelayOutput{Payload: fmt.Sprintf(`{"id":1,"jsonrpc":"2.0","result":"0x%x"}`, height)}, nil

	case f.chainBody:
		f.chainProbes++
		chainID, ok := f.chainIDs[nodeKey]
		if !ok {
			chainID = "0x1"
		}
		return &RelayOutput{Payload: fmt.Sprintf(`{"id":1,"jsonrpc":"2.0","result":"%s"}`, chainID)}, nil

	default:
		f.relayCalls++
		f.sentTo = append(f.sentTo, nodeKey)
		if err, ok := f.failNodes[nodeKey]; ok {
			return nil, err
		}
		if resp, ok := f.responses[nodeKey]; ok {
			return &RelayOutput{Payload: resp}, nil
		}
		return &RelayOutput{Payload: f.defaultResponse}, nil
	}
}

func (f *fakeSender) syncProbeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncProbes
}

func (f *fakeSender) chainProbeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chainProbes
}

func (f *fakeSender) consensusCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.consensusCalls
}

func (f *fakeSender) relayCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.relayCalls
}

func (f *fakeSender) sentToNodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sentTo))
	copy(out, f.sentTo)
	return out
}

// memorySink is an in-memory metrics sink.
type memorySink struct {
	mu      sync.Mutex
	records []types.RelayMetric
}

func (s *memorySink) Write(_ context.Context, records []types.RelayMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// fakeStore is an in-memory record store.
type fakeStore struct {
	mu sync.Mutex

	applications  map[string]*types.Application
	loadBalancers map[string]*types.LoadBalancer
	blockchains   []*types.Blockchain

	// failWith, when set, makes every record lookup fail with it.
	failWith error

	appCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		applications:  map[string]*types.Application{},
		loadBalancers: map[string]*types.LoadBalancer{},
	}
}

func (s *fakeStore) GetApplication(_ context.Context, appID string) (*types.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appCalls++
	if s.failWith != nil {
		return nil, s.failWith
	}
	app, ok := s.applications[appID]
	if !ok {
		return nil, errRecordNotFound
	}
	return app, nil
}

func (s *fakeStore) GetLoadBalancer(_ context.Context, lbID string) (*types.LoadBalancer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	lb, ok := s.loadBalancers[lbID]
	if !ok {
		return nil, errRecordNotFound
	}
	return lb, nil
}

func (s *fakeStore) GetBlockchains(_ context.Context) ([]*types.Blockchain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockchains, nil
}

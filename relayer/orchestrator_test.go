//go:build test

package relayer

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	pond "github.com/alitto/pond/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/pokt-foundation/pocket-gateway/cache"
	"github.com/pokt-foundation/pocket-gateway/metrics"
	"github.com/pokt-foundation/pocket-gateway/types"
)

type OrchestratorTestSuite struct {
	redisSuite

	store    *fakeStore
	cache    cache.Cache
	sink     *memorySink
	recorder *metrics.Recorder
	sender   *fakeSender
	relayer  *Relayer
	pool     pond.Pool
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.redisSuite.SetupTest()

	s.store = newFakeStore()
	s.store.applications["app1"] = newTestApplication("app1")
	s.store.blockchains = []*types.Blockchain{newTestBlockchain()}

	s.cache = cache.NewRedisCache(zerolog.Nop(), s.RedisClient)
	s.sink = &memorySink{}
	s.recorder = metrics.NewRecorder(zerolog.Nop(), metrics.DefaultRecorderConfig(), s.cache, s.sink, nil)
	s.pool = pond.NewPool(8)

	session := newTestSession(newTestNodes(5))
	s.sender = newFakeSender(session)

	s.relayer = s.buildRelayer()
}

func (s *OrchestratorTestSuite) TearDownTest() {
	s.pool.StopAndWait()
}

// buildRelayer wires a dispatcher over the suite's fakes. Call again after
// mutating the store's blockchains to reload the registry.
func (s *OrchestratorTestSuite) buildRelayer() *Relayer {
	logger := zerolog.Nop()

	chains := cache.NewBlockchainRegistry(logger, s.store)
	s.Require().NoError(chains.Load(s.Ctx))

	tuner := NewTuner(testPocketConfig())

	return NewRelayer(
		logger,
		DefaultConfig(),
		cache.NewApplicationCache(logger, s.cache, s.store),
		cache.NewLoadBalancerCache(logger, s.cache, s.store),
		chains,
		s.sender,
		NewCherryPicker(logger, s.cache),
		NewSyncChecker(logger, s.cache, s.recorder, tuner, s.pool),
		NewChainChecker(logger, s.cache, s.recorder, tuner, s.pool),
		s.recorder,
		tuner,
		NewAltruist(logger),
	)
}

func (s *OrchestratorTestSuite) relayRequest() RelayRequest {
	return RelayRequest{
		ChainIdentifier: "eth-mainnet",
		RawBody:         []byte(`{"method":"eth_blockNumber","params":[],"id":1,"jsonrpc":"2.0"}`),
		RequestID:       "req-1",
	}
}

func (s *OrchestratorTestSuite) TestRelaySuccess() {
	payload, err := s.relayer.RelayByApplication(s.Ctx, "app1", s.relayRequest())

	s.Require().NoError(err)
	s.Require().Equal(s.sender.defaultResponse, payload)
	s.Require().Equal(1, s.sender.relayCallCount())
}

func (s *OrchestratorTestSuite) TestOneMetricPerAttemptAndProbe() {
	_, err := s.relayer.RelayByApplication(s.Ctx, "app1", s.relayRequest())
	s.Require().NoError(err)

	// 5 sync probes + 5 chain probes + 1 relay attempt.
	s.Require().Equal(11, s.recorder.BufferLen())
}

func (s *OrchestratorTestSuite) TestRetryExcludesFailedNodes() {
	// Every node except node03 fails its relay.
	for _, key := range []string{"node00", "node01", "node02", "node04"} {
		s.sender.failNodes[key] = &RelayError{Message: "node down", ServiceNode: key}
	}

	payload, err := s.relayer.RelayByApplication(s.Ctx, "app1", s.relayRequest())

	s.Require().NoError(err)
	s.Require().Equal(s.sender.defaultResponse, payload)

	// A failing node is never chosen twice within one request.
	sentTo := s.sender.sentToNodes()
	seen := map[string]bool{}
	for _, node := range sentTo {
		s.Require().False(seen[node], "node %s was retried", node)
		seen[node] = true
	}
	s.Require().Equal("node03", sentTo[len(sentTo)-1])
}

func (s *OrchestratorTestSuite) TestExhaustionWithoutFallback() {
	for i := 0; i < 5; i++ {
		key := newTestNode(i).PublicKey
		s.sender.failNodes[key] = &RelayError{Message: "node down", ServiceNode: key}
	}

	_, err := s.relayer.RelayByApplication(s.Ctx, "app1", s.relayRequest())

	s.Require().Error(err)
	s.Require().Equal(http.StatusGatewayTimeout, StatusForError(err))

	var gerr *Error
	s.Require().ErrorAs(err, &gerr)
	s.Require().Equal(KindExhausted, gerr.Kind)
}

func (s *OrchestratorTestSuite) TestStoreOutageSurfacesAsInternal() {
	s.store.failWith = fmt.Errorf("store unreachable")

	// A fresh cache instance so the app is not already resolved.
	s.relayer = s.buildRelayer()

	_, err := s.relayer.RelayByApplication(s.Ctx, "app1", s.relayRequest())

	s.Require().Error(err)
	s.Require().Equal(http.StatusInternalServerError, StatusForError(err))

	var gerr *Error
	s.Require().ErrorAs(err, &gerr)
	s.Require().Equal(KindInternal, gerr.Kind)
}

func (s *OrchestratorTestSuite) TestFallbackServesWhenExhausted() {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"jsonrpc":"2.0","result":"0xfa11"}`))
	}))
	defer backend.Close()

	s.store.blockchains[0].Altruist = backend.URL
	s.relayer = s.buildRelayer()

	for i := 0; i < 5; i++ {
		key := newTestNode(i).PublicKey
		s.sender.failNodes[key] = &RelayError{Message: "node down", ServiceNode: key}
	}

	payload, err := s.relayer.RelayByApplication(s.Ctx, "app1", s.relayRequest())

	s.Require().NoError(err)
	s.Require().Equal(`{"id":1,"jsonrpc":"2.0","result":"0xfa11"}`, payload)

	// The fallback attempt is recorded but carries no node, so the cherry
	// picker statistics stay untouched by it.
	var fallbackRecords int
	for _, record := range s.recorder.BufferSnapshot() {
		if record.Fallback {
			fallbackRecords++
			s.Require().Empty(record.ServiceNode)
			s.Require().True(record.IsSuccess())
		}
	}
	s.Require().Equal(1, fallbackRecords)
}

func (s *OrchestratorTestSuite) TestSessionExpiredTriggersRefresh() {
	// The expired session only holds failing nodes; the refreshed one adds
	// a healthy node.
	s.sender.currentSession = newTestSession(newTestNodes(2))
	s.sender.refreshedSession = newTestSession(newTestNodes(3))

	s.sender.failNodes["node00"] = &RelayError{Code: CodeSessionExpired, Message: "session expired", ServiceNode: "node00"}
	s.sender.failNodes["node01"] = &RelayError{Code: CodeSessionExpired, Message: "session expired", ServiceNode: "node01"}

	payload, err := s.relayer.RelayByApplication(s.Ctx, "app1", s.relayRequest())

	s.Require().NoError(err)
	s.Require().Equal(s.sender.defaultResponse, payload)
	s.Require().Equal(1, s.sender.refreshCalls)
}

func (s *OrchestratorTestSuite) TestUnknownApplication() {
	_, err := s.relayer.RelayByApplication(s.Ctx, "missing", s.relayRequest())

	s.Require().Error(err)
	s.Require().Equal(http.StatusForbidden, StatusForError(err))
}

func (s *OrchestratorTestSuite) TestUnknownBlockchain() {
	req := s.relayRequest()
	req.ChainIdentifier = "not-a-chain"

	_, err := s.relayer.RelayByApplication(s.Ctx, "app1", req)

	s.Require().Error(err)
	s.Require().Equal(http.StatusForbidden, StatusForError(err))
}

func (s *OrchestratorTestSuite) TestMalformedBody() {
	req := s.relayRequest()
	req.RawBody = []byte(`not json`)

	_, err := s.relayer.RelayByApplication(s.Ctx, "app1", req)

	s.Require().Error(err)
	s.Require().Equal(http.StatusBadRequest, StatusForError(err))
}

func (s *OrchestratorTestSuite) TestPayloadTooLarge() {
	req := s.relayRequest()
	req.RawBody = make([]byte, 200001)

	_, err := s.relayer.RelayByApplication(s.Ctx, "app1", req)

	s.Require().Error(err)
	s.Require().Equal(http.StatusBadRequest, StatusForError(err))
}

func (s *OrchestratorTestSuite) TestSecretKeyMismatch() {
	app := newTestApplication("app1")
	app.Settings.SecretKeyRequired = true
	app.Settings.SecretKey = "expected"
	s.store.applications["app1"] = app

	req := s.relayRequest()
	req.SecretKey = "wrong"

	_, err := s.relayer.RelayByApplication(s.Ctx, "app1", req)

	s.Require().Error(err)
	s.Require().Equal(http.StatusForbidden, StatusForError(err))
}

func (s *OrchestratorTestSuite) TestLoadBalancerSelectionUniformity() {
	for _, id := range []string{"appA", "appB", "appC"} {
		s.store.applications[id] = newTestApplication(id)
	}
	lb := &types.LoadBalancer{ID: "lb1", ApplicationIDs: []string{"appA", "appB", "appC"}}
	s.store.loadBalancers["lb1"] = lb

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		appID, err := s.relayer.pickVerifiedApplication(s.Ctx, lb)
		s.Require().NoError(err)
		counts[appID]++
	}

	for _, id := range []string{"appA", "appB", "appC"} {
		s.Require().InDelta(3333, counts[id], 200, "app %s selection is not uniform", id)
	}
}

func (s *OrchestratorTestSuite) TestLoadBalancerDropsMissingApplications() {
	s.store.applications["appA"] = newTestApplication("appA")
	lb := &types.LoadBalancer{ID: "lb1", ApplicationIDs: []string{"appA", "ghost"}}
	s.store.loadBalancers["lb1"] = lb

	for i := 0; i < 50; i++ {
		appID, err := s.relayer.pickVerifiedApplication(s.Ctx, lb)
		s.Require().NoError(err)
		s.Require().Equal("appA", appID)
	}
}

func (s *OrchestratorTestSuite) TestEmptyLoadBalancerIsTerminal() {
	lb := &types.LoadBalancer{ID: "lb1", ApplicationIDs: []string{"ghost1", "ghost2"}}
	s.store.loadBalancers["lb1"] = lb

	_, err := s.relayer.RelayByLoadBalancer(s.Ctx, "lb1", s.relayRequest())

	s.Require().Error(err)
	s.Require().ErrorIs(err, ErrEmptyLoadBalancer)
	s.Require().Equal(http.StatusForbidden, StatusForError(err))
}

func (s *OrchestratorTestSuite) TestLogLimitEnforced() {
	s.store.blockchains[0].LogLimitBlocks = 100
	s.relayer = s.buildRelayer()

	req := s.relayRequest()
	req.RawBody = []byte(`{"method":"eth_getLogs","params":[{"fromBlock":"0x1","toBlock":"0x1000"}],"id":1,"jsonrpc":"2.0"}`)

	_, err := s.relayer.RelayByApplication(s.Ctx, "app1", req)

	s.Require().Error(err)
	s.Require().ErrorIs(err, ErrLogLimitExceeded)
	s.Require().Equal(http.StatusBadRequest, StatusForError(err))
}

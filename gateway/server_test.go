//go:build test

package gateway_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	pond "github.com/alitto/pond/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/pokt-foundation/pocket-gateway/cache"
	"github.com/pokt-foundation/pocket-gateway/config"
	"github.com/pokt-foundation/pocket-gateway/gateway"
	"github.com/pokt-foundation/pocket-gateway/metrics"
	"github.com/pokt-foundation/pocket-gateway/relayer"
	"github.com/pokt-foundation/pocket-gateway/testutil"
	"github.com/pokt-foundation/pocket-gateway/types"
)

type ServerTestSuite struct {
	testutil.RedisTestSuite

	store    *testutil.FakeStore
	sink     *testutil.MemorySink
	recorder *metrics.Recorder
	sender   *testutil.FakeRelaySender
	server   *gateway.Server
	pool     pond.Pool
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) SetupTest() {
	s.RedisTestSuite.SetupTest()

	s.store = testutil.NewFakeStore()
	s.store.Applications["app1"] = testutil.NewTestApplication("app1")
	s.store.LoadBalancers["abc"] = &types.LoadBalancer{ID: "abc", ApplicationIDs: []string{"app1"}}
	s.store.Blockchains = []*types.Blockchain{testutil.NewTestBlockchain()}

	logger := zerolog.Nop()
	adapter := cache.NewRedisCache(logger, s.RedisClient)

	s.sink = &testutil.MemorySink{}
	s.recorder = metrics.NewRecorder(logger, metrics.DefaultRecorderConfig(), adapter, s.sink, nil)
	s.pool = pond.NewPool(8)

	// Two healthy in-sync nodes.
	session := testutil.NewTestSession(testutil.NewTestNodes(2))
	s.sender = testutil.NewFakeRelaySender(session)

	chains := cache.NewBlockchainRegistry(logger, s.store)
	s.Require().NoError(chains.Load(s.Ctx))

	pocketCfg := config.DefaultPocketConfig()
	pocketCfg.Dispatchers = []string{"https://dispatch.example.com"}
	tuner := relayer.NewTuner(pocketCfg)

	dispatcher := relayer.NewRelayer(
		logger,
		relayer.DefaultConfig(),
		cache.NewApplicationCache(logger, adapter, s.store),
		cache.NewLoadBalancerCache(logger, adapter, s.store),
		chains,
		s.sender,
		relayer.NewCherryPicker(logger, adapter),
		relayer.NewSyncChecker(logger, adapter, s.recorder, tuner, s.pool),
		relayer.NewChainChecker(logger, adapter, s.recorder, tuner, s.pool),
		s.recorder,
		tuner,
		relayer.NewAltruist(logger),
	)

	s.server = gateway.NewServer(logger, gateway.ServerConfig{
		ListenAddr:      ":0",
		MaxPayloadBytes: 100000,
	}, dispatcher)
}

func (s *ServerTestSuite) TearDownTest() {
	s.pool.StopAndWait()
}

// post drives the router directly with the chain alias in the Host header.
func (s *ServerTestSuite) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Host = "eth-mainnet.gateway.example.com"

	recorder := httptest.NewRecorder()
	s.server.Router().ServeHTTP(recorder, req)
	return recorder
}

const blockNumberBody = `{"method":"eth_blockNumber","params":[],"id":1,"jsonrpc":"2.0"}`

func (s *ServerTestSuite) TestLoadBalancerRelayEndToEnd() {
	resp := s.post("/v1/lb/abc", blockNumberBody)

	s.Require().Equal(http.StatusOK, resp.Code)
	s.Require().Equal(s.sender.DefaultResponse, resp.Body.String())
	s.Require().Equal("application/json", resp.Header().Get("Content-Type"))

	// One metric row per probe plus the relay itself: the synccheck rows
	// and the eth_blockNumber row must both be present.
	var syncRows, relayRows int
	for _, record := range s.recorder.BufferSnapshot() {
		switch record.Method {
		case types.MethodSyncCheck:
			syncRows++
		case "eth_blockNumber":
			relayRows++
		}
	}
	s.Require().Equal(2, syncRows)
	s.Require().Equal(1, relayRows)
}

func (s *ServerTestSuite) TestApplicationRelayEndToEnd() {
	resp := s.post("/v1/app1", blockNumberBody)

	s.Require().Equal(http.StatusOK, resp.Code)
	s.Require().Equal(s.sender.DefaultResponse, resp.Body.String())
}

func (s *ServerTestSuite) TestUnknownApplicationMapsTo403() {
	resp := s.post("/v1/ghost", blockNumberBody)
	s.Require().Equal(http.StatusForbidden, resp.Code)
}

func (s *ServerTestSuite) TestUnknownLoadBalancerMapsTo403() {
	resp := s.post("/v1/lb/ghost", blockNumberBody)
	s.Require().Equal(http.StatusForbidden, resp.Code)
}

func (s *ServerTestSuite) TestMalformedBodyMapsTo400() {
	resp := s.post("/v1/app1", "not json")
	s.Require().Equal(http.StatusBadRequest, resp.Code)
}

func (s *ServerTestSuite) TestExhaustionMapsTo504() {
	s.sender.FailNodes["node00"] = &relayer.RelayError{Message: "down", ServiceNode: "node00"}
	s.sender.FailNodes["node01"] = &relayer.RelayError{Message: "down", ServiceNode: "node01"}

	resp := s.post("/v1/app1", blockNumberBody)
	s.Require().Equal(http.StatusGatewayTimeout, resp.Code)
}

func (s *ServerTestSuite) TestNonPostRejected() {
	req := httptest.NewRequest(http.MethodGet, "/v1/app1", nil)
	req.Host = "eth-mainnet.gateway.example.com"

	recorder := httptest.NewRecorder()
	s.server.Router().ServeHTTP(recorder, req)

	s.Require().Equal(http.StatusMethodNotAllowed, recorder.Code)
}

//go:build test

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pokt-foundation/pocket-gateway/config"
	"github.com/pokt-foundation/pocket-gateway/relayer"
	"github.com/pokt-foundation/pocket-gateway/types"
)

func testAAT() types.AAT {
	return types.AAT{
		Version:              "0.0.1",
		ApplicationPublicKey: "app-pub-key",
		ClientPublicKey:      "client-pub-key",
		ApplicationSignature: "sig",
	}
}

// newDispatcher serves the session dispatch endpoint with the given node
// service URLs.
func newDispatcher(t *testing.T, nodeURLs ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, dispatchPath, r.URL.Path)
		calls.Add(1)

		var req dispatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		nodes := make([]map[string]any, 0, len(nodeURLs))
		for i, url := range nodeURLs {
			nodes = append(nodes, map[string]any{
				"public_key":  "node0" + string(rune('0'+i)),
				"service_url": url,
				"chains":      []string{req.Chain},
			})
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"session": map[string]any{
				"key": "session-1",
				"header": map[string]any{
					"app_public_key": req.AppPublicKey,
					"chain":          req.Chain,
					"session_height": 100,
				},
				"nodes": nodes,
			},
		})
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

func newClientWithDispatcher(t *testing.T, dispatcherURL string) *RelayClient {
	t.Helper()

	cfg := config.DefaultPocketConfig()
	cfg.Dispatchers = []string{dispatcherURL}
	cfg.RequestTimeoutMs = 2000

	client, err := NewRelayClient(zerolog.Nop(), cfg, nil)
	require.NoError(t, err)
	return client
}

func TestSessionDispatchAndCache(t *testing.T) {
	dispatcher, calls := newDispatcher(t, "https://node-a.example.com")
	client := newClientWithDispatcher(t, dispatcher.URL)

	session, err := client.Session(context.Background(), "app-pub-key", "0021")
	require.NoError(t, err)
	require.Equal(t, "session-1", session.Key)
	require.Len(t, session.Nodes, 1)

	// Cached: no second dispatch.
	_, err = client.Session(context.Background(), "app-pub-key", "0021")
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestRefreshSessionRedispatches(t *testing.T) {
	dispatcher, calls := newDispatcher(t, "https://node-a.example.com")
	client := newClientWithDispatcher(t, dispatcher.URL)

	_, err := client.Session(context.Background(), "app-pub-key", "0021")
	require.NoError(t, err)

	_, err = client.RefreshSession(context.Background(), "app-pub-key", "0021")
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestSendRelaySuccess(t *testing.T) {
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, relayPath, r.URL.Path)

		var envelope relayEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		require.Equal(t, "0021", envelope.Proof.Blockchain)
		require.JSONEq(t, `{"method":"eth_call"}`, envelope.Payload.Data)

		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"result":"0x1"}`})
	}))
	defer node.Close()

	dispatcher, _ := newDispatcher(t, node.URL)
	client := newClientWithDispatcher(t, dispatcher.URL)

	output, err := client.Send(context.Background(), relayer.SendInput{
		Payload: []byte(`{"method":"eth_call"}`),
		ChainID: "0021",
		AAT:     testAAT(),
		Node:    &types.Node{PublicKey: "node00", ServiceURL: node.URL},
		Config:  relayer.RelayConfig{RequestTimeoutMs: 2000},
	})

	require.NoError(t, err)
	require.Equal(t, `{"result":"0x1"}`, output.Payload)
}

func TestSendRelayNodeError(t *testing.T) {
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 0, "message": "invalid session"},
		})
	}))
	defer node.Close()

	dispatcher, _ := newDispatcher(t, node.URL)
	client := newClientWithDispatcher(t, dispatcher.URL)

	_, err := client.Send(context.Background(), relayer.SendInput{
		Payload: []byte(`{"method":"eth_call"}`),
		ChainID: "0021",
		AAT:     testAAT(),
		Node:    &types.Node{PublicKey: "node00", ServiceURL: node.URL},
		Config:  relayer.RelayConfig{RequestTimeoutMs: 2000},
	})

	var relayErr *relayer.RelayError
	require.ErrorAs(t, err, &relayErr)
	require.True(t, relayErr.IsSessionExpired())
	require.Equal(t, "node00", relayErr.ServiceNode)
}

func TestSendWithoutNodeFails(t *testing.T) {
	dispatcher, _ := newDispatcher(t, "https://node-a.example.com")
	client := newClientWithDispatcher(t, dispatcher.URL)

	_, err := client.Send(context.Background(), relayer.SendInput{
		Payload: []byte(`{"method":"eth_call"}`),
		ChainID: "0021",
		AAT:     testAAT(),
	})

	require.Error(t, err)
}

func TestConsensusMajority(t *testing.T) {
	agree := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"result":"0x1"}`})
	}))
	defer agree.Close()

	dissent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"result":"0x2"}`})
	}))
	defer dissent.Close()

	dispatcher, _ := newDispatcher(t, agree.URL, agree.URL, dissent.URL)
	client := newClientWithDispatcher(t, dispatcher.URL)

	output, err := client.Send(context.Background(), relayer.SendInput{
		Payload:   []byte(`{"method":"eth_call"}`),
		ChainID:   "0021",
		AAT:       testAAT(),
		Consensus: true,
		Config:    relayer.RelayConfig{RequestTimeoutMs: 2000, ConsensusNodeCount: 3},
	})

	require.NoError(t, err)
	require.Equal(t, `{"result":"0x1"}`, output.Payload)
}

func TestSignerFromHex(t *testing.T) {
	seed := "2d00ef074d9b51e46886dc9a1df11e7b986611d0f336bdcf1f0adce3e037ec0a"

	signer, err := NewSignerFromHex(seed)
	require.NoError(t, err)
	require.Len(t, signer.PublicKey(), 64)

	sig := signer.Sign([]byte("payload"))
	require.Len(t, sig, 128)
	require.Equal(t, sig, signer.Sign([]byte("payload")))
}

func TestSignerRejectsBadKeys(t *testing.T) {
	_, err := NewSignerFromHex("")
	require.Error(t, err)

	_, err = NewSignerFromHex("zz")
	require.Error(t, err)

	_, err = NewSignerFromHex("abcd")
	require.Error(t, err)
}

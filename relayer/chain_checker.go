package relayer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pond "github.com/alitto/pond/v2"

	"github.com/pokt-foundation/pocket-gateway/cache"
	"github.com/pokt-foundation/pocket-gateway/logging"
	"github.com/pokt-foundation/pocket-gateway/metrics"
	"github.com/pokt-foundation/pocket-gateway/types"
)

// ChainChecker filters a session's nodes down to the subset whose reported
// chain ID matches the requested blockchain. Same caching and locking
// shape as SyncChecker: 300s verified set per session fingerprint, 60s
// single-prober lock, fail open everywhere.
type ChainChecker struct {
	logger   logging.Logger
	cache    cache.Cache
	recorder *metrics.Recorder
	tuner    *Tuner
	pool     pond.Pool
}

// NewChainChecker creates a chain checker sharing the probe pool with the
// sync checker.
func NewChainChecker(logger logging.Logger, c cache.Cache, recorder *metrics.Recorder, tuner *Tuner, pool pond.Pool) *ChainChecker {
	return &ChainChecker{
		logger:   logging.ForComponent(logger, logging.ComponentChainChecker),
		cache:    c,
		recorder: recorder,
		tuner:    tuner,
		pool:     pool,
	}
}

// Filter returns the nodes verified to serve the requested chain. The
// candidates are the (possibly already sync-filtered) nodes to probe; the
// session only provides the cache namespace. Failures fail open with the
// candidates unchanged.
func (c *ChainChecker) Filter(ctx context.Context, sender RelaySender, in CheckInput, candidates []types.Node) []types.Node {
	if !in.Blockchain.HasChainIDCheck() || len(candidates) == 0 {
		return candidates
	}

	chainID := in.Blockchain.ID
	fingerprint := SessionFingerprint(in.Session.Nodes)
	key := c.cache.KB().ChainNodesKey(chainID, fingerprint)

	if cached, ok := c.cache.Get(ctx, key); ok {
		var keys []string
		if err := json.Unmarshal([]byte(cached), &keys); err == nil && len(keys) > 0 {
			return intersectByKeys(candidates, keys)
		}
	}

	lockKey := c.cache.KB().ChainLockKey(chainID, fingerprint)
	if !c.cache.SetNX(ctx, lockKey, "1", cache.TTLProbeLock) {
		return candidates
	}

	logger := logging.WithChain(c.logger, chainID)

	matched := c.probeNodes(ctx, sender, in, candidates)
	if len(matched) == 0 {
		// Either every node is misconfigured or the probe pass itself
		// failed; the sync filter and cherry picker still apply.
		logger.Error().
			Str(logging.FieldSessionFingerprint, fingerprint).
			Msg("no nodes passed the chain id check, failing open")
		return candidates
	}

	if data, err := json.Marshal(publicKeys(matched)); err == nil {
		c.cache.Set(ctx, key, string(data), cache.TTLVerifiedNodes)
	}

	logger.Info().
		Int("matched", len(matched)).
		Int("probed", len(candidates)).
		Str(logging.FieldSessionFingerprint, fingerprint).
		Msg("chain id check complete")

	return matched
}

// probeNodes queries every candidate for its chain id in parallel,
// recording one chaincheck metric per probe.
func (c *ChainChecker) probeNodes(ctx context.Context, sender RelaySender, in CheckInput, candidates []types.Node) []types.Node {
	var mu sync.Mutex
	matched := make([]types.Node, 0, len(candidates))

	group := c.pool.NewGroup()
	for _, node := range candidates {
		node := node
		group.Submit(func() {
			if err := c.probeNode(ctx, sender, in, node); err != nil {
				c.logger.Debug().
					Err(err).
					Str(logging.FieldServiceNode, node.PublicKey).
					Str(logging.FieldBlockchain, in.Blockchain.ID).
					Msg("chain id probe failed")
				return
			}

			mu.Lock()
			matched = append(matched, node)
			mu.Unlock()
		})
	}
	_ = group.Wait()

	return matched
}

// probeNode sends one chain id probe and verifies the reported id equals
// the declared one.
func (c *ChainChecker) probeNode(ctx context.Context, sender RelaySender, in CheckInput, node types.Node) error {
	start := time.Now()

	output, err := sender.Send(ctx, SendInput{
		Payload: []byte(in.Blockchain.ChainIDCheck),
		ChainID: in.Blockchain.ID,
		AAT:     in.AAT,
		Node:    &node,
		Config:  c.tuner.ProbeConfig(),
	})

	elapsed := time.Since(start).Seconds()

	if err != nil {
		c.recordProbe(in, node, elapsed, err)
		return err
	}

	reported, err := parseChainID(output.Payload, "")
	if err != nil {
		c.recordProbe(in, node, elapsed, err)
		return err
	}

	expected := strings.ToLower(in.Blockchain.ChainID)
	if reported != expected {
		err = fmt.Errorf("node reports chain id %s, expected %s", reported, expected)
		c.recordProbe(in, node, elapsed, err)
		return err
	}

	c.recordProbe(in, node, elapsed, nil)
	return nil
}

func (c *ChainChecker) recordProbe(in CheckInput, node types.Node, elapsed float64, err error) {
	metric := types.RelayMetric{
		RequestID:            in.RequestID,
		ApplicationID:        in.Application.ID,
		ApplicationPublicKey: in.Application.PublicKey,
		Blockchain:           in.Blockchain.ID,
		ServiceNode:          node.PublicKey,
		RelayStart:           time.Now(),
		Elapsed:              elapsed,
		Result:               200,
		Delivered:            false,
		Method:               types.MethodChainCheck,
	}
	if err != nil {
		metric.Result = 500
		metric.Error = err.Error()
	}
	c.recorder.Record(metric)
}

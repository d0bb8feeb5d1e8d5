package relayer

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	pond "github.com/alitto/pond/v2"
	"github.com/google/uuid"

	"github.com/pokt-foundation/pocket-gateway/cache"
	"github.com/pokt-foundation/pocket-gateway/logging"
	"github.com/pokt-foundation/pocket-gateway/metrics"
	"github.com/pokt-foundation/pocket-gateway/types"
)

const (
	// minSyncProbeSuccesses is the minimum number of successful probes
	// required before the consensus filter is trusted. Below it the
	// checker fails open.
	minSyncProbeSuccesses = 3

	// maxTopHeightSpread is the maximum allowed gap between the two
	// highest reported heights. A larger gap means the top node is an
	// outlier and filtering is abandoned.
	maxTopHeightSpread = 1

	// minInSyncForChallenge is the in-sync node count below which a
	// consensus challenge relay is fired to penalize lagging nodes.
	minInSyncForChallenge = 5
)

// CheckInput carries the session context shared by the sync and chain
// checkers.
type CheckInput struct {
	Session     *types.Session
	Blockchain  *types.Blockchain
	Application *types.Application
	AAT         types.AAT
	RequestID   string
}

// SyncChecker filters a session's nodes down to the subset verified to be
// at the chain's tip. Results are cached per session fingerprint for 300s;
// a 60s distributed lock elects a single prober across the gateway fleet,
// and every other caller fails open with the unfiltered node set.
type SyncChecker struct {
	logger   logging.Logger
	cache    cache.Cache
	recorder *metrics.Recorder
	tuner    *Tuner
	pool     pond.Pool
}

// NewSyncChecker creates a sync checker. The pool bounds probe concurrency
// and is shared with the chain checker.
func NewSyncChecker(logger logging.Logger, c cache.Cache, recorder *metrics.Recorder, tuner *Tuner, pool pond.Pool) *SyncChecker {
	return &SyncChecker{
		logger:   logging.ForComponent(logger, logging.ComponentSyncChecker),
		cache:    c,
		recorder: recorder,
		tuner:    tuner,
		pool:     pool,
	}
}

// Filter returns the in-sync subset of the session's nodes. It never
// returns an error: any failure mode (missing lock, unreachable cache, too
// few probes, consensus disagreement) fails open with the input nodes, so
// a degraded checker can only widen selection, never block relays.
func (c *SyncChecker) Filter(ctx context.Context, sender RelaySender, in CheckInput) []types.Node {
	nodes := in.Session.Nodes
	if !in.Blockchain.HasSyncCheck() || len(nodes) == 0 {
		return nodes
	}

	chainID := in.Blockchain.ID
	fingerprint := SessionFingerprint(nodes)
	key := c.cache.KB().SyncedNodesKey(chainID, fingerprint)

	if cached, ok := c.cache.Get(ctx, key); ok {
		var keys []string
		if err := json.Unmarshal([]byte(cached), &keys); err == nil && len(keys) > 0 {
			return intersectByKeys(nodes, keys)
		}
	}

	// Elect a single prober per session per lock TTL across the fleet.
	lockKey := c.cache.KB().SyncLockKey(chainID, fingerprint)
	if !c.cache.SetNX(ctx, lockKey, "1", cache.TTLProbeLock) {
		return nodes
	}

	logger := logging.WithChain(c.logger, chainID)

	syncLogs := c.probeNodes(ctx, sender, in, nodes)
	if len(syncLogs) < minSyncProbeSuccesses {
		logger.Error().
			Int(logging.FieldCount, len(syncLogs)).
			Str(logging.FieldSessionFingerprint, fingerprint).
			Msg("not enough sync probes succeeded, failing open")
		return nodes
	}

	sort.Slice(syncLogs, func(i, j int) bool {
		return syncLogs[i].BlockHeight > syncLogs[j].BlockHeight
	})

	// If the top node towers over the runner-up it is an outlier, not the
	// tip; abandon filtering rather than trust it.
	if syncLogs[0].BlockHeight > syncLogs[1].BlockHeight+maxTopHeightSpread {
		logger.Warn().
			Int64("top_height", syncLogs[0].BlockHeight).
			Int64("second_height", syncLogs[1].BlockHeight).
			Msg("top block heights disagree, failing open")
		return nodes
	}

	maxHeight := syncLogs[0].BlockHeight
	allowance := in.Blockchain.SyncCheck.Allowance

	inSync := make([]types.Node, 0, len(syncLogs))
	for _, log := range syncLogs {
		if log.BlockHeight+allowance >= maxHeight {
			inSync = append(inSync, log.Node)
		}
	}

	if len(inSync) > 0 {
		if data, err := json.Marshal(publicKeys(inSync)); err == nil {
			c.cache.Set(ctx, key, string(data), cache.TTLVerifiedNodes)
		}
	}

	logger.Info().
		Int("in_sync", len(inSync)).
		Int("probed", len(syncLogs)).
		Int64(logging.FieldBlockHeight, maxHeight).
		Str(logging.FieldSessionFingerprint, fingerprint).
		Msg("sync check complete")

	if len(inSync) < minInSyncForChallenge {
		c.fireChallenge(sender, in)
	}

	return inSync
}

// probeNodes queries every node for its block height in parallel, recording
// one synccheck metric per probe.
func (c *SyncChecker) probeNodes(ctx context.Context, sender RelaySender, in CheckInput, nodes []types.Node) []types.NodeSyncLog {
	var mu sync.Mutex
	syncLogs := make([]types.NodeSyncLog, 0, len(nodes))

	group := c.pool.NewGroup()
	for _, node := range nodes {
		node := node
		group.Submit(func() {
			height, err := c.probeNode(ctx, sender, in, node)
			if err != nil {
				c.logger.Debug().
					Err(err).
					Str(logging.FieldServiceNode, node.PublicKey).
					Str(logging.FieldBlockchain, in.Blockchain.ID).
					Msg("sync probe failed")
				return
			}

			mu.Lock()
			syncLogs = append(syncLogs, types.NodeSyncLog{
				Node:        node,
				ChainID:     in.Blockchain.ID,
				BlockHeight: height,
			})
			mu.Unlock()
		})
	}
	_ = group.Wait()

	return syncLogs
}

// probeNode sends one sync probe with the timeout-shortened configuration
// and parses the reported block height.
func (c *SyncChecker) probeNode(ctx context.Context, sender RelaySender, in CheckInput, node types.Node) (int64, error) {
	start := time.Now()

	output, err := sender.Send(ctx, SendInput{
		Payload: []byte(in.Blockchain.SyncCheck.Body),
		Path:    in.Blockchain.SyncCheck.Path,
		ChainID: in.Blockchain.ID,
		AAT:     in.AAT,
		Node:    &node,
		Config:  c.tuner.ProbeConfig(),
	})

	elapsed := time.Since(start).Seconds()

	if err != nil {
		c.recordProbe(in, node, elapsed, types.MethodSyncCheck, err)
		return 0, err
	}

	height, err := parseBlockHeight(output.Payload, in.Blockchain.SyncCheck.ResultKey)
	if err != nil {
		c.recordProbe(in, node, elapsed, types.MethodSyncCheck, err)
		return 0, err
	}

	c.recordProbe(in, node, elapsed, types.MethodSyncCheck, nil)
	return height, nil
}

func (c *SyncChecker) recordProbe(in CheckInput, node types.Node, elapsed float64, method string, err error) {
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
		Method:               method,
	}
	if err != nil {
		metric.Result = 500
		metric.Error = err.Error()
	}
	c.recorder.Record(metric)
}

// fireChallenge launches a detached consensus relay that penalizes lagging
// nodes. The caller's relay never waits on it; the challenge runs with its
// own timeout and its result is only logged.
func (c *SyncChecker) fireChallenge(sender RelaySender, in CheckInput) {
	challengeID := uuid.NewString()
	logger := logging.WithRequestID(logging.WithChain(c.logger, in.Blockchain.ID), challengeID)

	go logging.RecoverGoRoutine(logger, "sync_challenge", func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, FallbackTimeout)
		defer cancel()

		_, err := sender.Send(ctx, SendInput{
			Payload:   []byte(in.Blockchain.SyncCheck.Body),
			Path:      in.Blockchain.SyncCheck.Path,
			ChainID:   in.Blockchain.ID,
			AAT:       in.AAT,
			Consensus: true,
			Config:    c.tuner.ChallengeConfig(),
		})
		if err != nil {
			logger.Warn().Err(err).Msg("sync challenge relay failed")
			return
		}

		logger.Info().Msg("sync challenge relay completed")
	})(context.Background())
}

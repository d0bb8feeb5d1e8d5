package relayer

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/pokt-foundation/pocket-gateway/cache"
	"github.com/pokt-foundation/pocket-gateway/logging"
	"github.com/pokt-foundation/pocket-gateway/types"
)

const (
	// minServiceLogSamples is the number of observed attempts below which
	// a node's success rate is not trusted for tiering.
	minServiceLogSamples = 5

	// tierASuccessRate and tierBSuccessRate are the tier admission
	// thresholds.
	tierASuccessRate = 0.95
	tierBSuccessRate = 0.5

	// defaultLatencyMS is the latency sentinel for nodes with no samples,
	// keeping them selectable but maximally de-weighted within a tier.
	defaultLatencyMS = 10000

	// minLatencyMS floors the selection weight denominator.
	minLatencyMS = 1
)

// scoredNode pairs a candidate with its decoded service log.
type scoredNode struct {
	node      types.Node
	log       cache.ServiceLog
	weighted  bool
	latencyMS float64
}

// CherryPicker selects the best-performing node for a relay based on the
// rolling service logs the metrics recorder maintains in the cache.
//
// Nodes are partitioned into tiers by success rate (A >= 95%, B >= 50%,
// C otherwise or with too few samples) and one node is drawn from the best
// non-empty tier, weighted by inverse average latency.
type CherryPicker struct {
	logger logging.Logger
	cache  cache.Cache

	// randMu guards randFloat; math/rand.Rand is not safe for concurrent
	// use and relays pick nodes in parallel.
	randMu    sync.Mutex
	randFloat func() float64
}

// NewCherryPicker creates a cherry picker backed by the shared cache.
func NewCherryPicker(logger logging.Logger, c cache.Cache) *CherryPicker {
	return &CherryPicker{
		logger:    logging.ForComponent(logger, logging.ComponentCherryPicker),
		cache:     c,
		randFloat: rand.Float64,
	}
}

// NewCherryPickerWithRand creates a cherry picker with an injected random
// source. Tests use this for deterministic draws.
func NewCherryPickerWithRand(logger logging.Logger, c cache.Cache, randFloat func() float64) *CherryPicker {
	picker := NewCherryPicker(logger, c)
	picker.randFloat = randFloat
	return picker
}

// Pick selects one node from the candidates, skipping the excluded set.
// Returns ErrNoHealthyNodes when no candidate remains.
func (p *CherryPicker) Pick(ctx context.Context, chainID string, candidates []types.Node, excluded map[string]struct{}) (*types.Node, error) {
	eligible := excludeByKeys(candidates, excluded)
	if len(eligible) == 0 {
		return nil, ErrNoHealthyNodes
	}

	scored := make([]scoredNode, 0, len(eligible))
	for _, node := range eligible {
		log := cache.ParseServiceLog(p.cache.HGetAll(ctx, p.cache.KB().ServiceLogKey(chainID, node.PublicKey)))

		latency := float64(defaultLatencyMS)
		if avg, ok := log.AvgLatencyMS(); ok {
			latency = avg
		}

		scored = append(scored, scoredNode{
			node:      node,
			log:       log,
			weighted:  log.Total() >= minServiceLogSamples,
			latencyMS: latency,
		})
	}

	tier := bestTier(scored)

	// Sorted-publicKey order makes equal-latency draws deterministic.
	sort.Slice(tier, func(i, j int) bool {
		return tier[i].node.PublicKey < tier[j].node.PublicKey
	})

	chosen := p.drawWeighted(tier)

	p.logger.Debug().
		Str(logging.FieldBlockchain, chainID).
		Str(logging.FieldServiceNode, chosen.PublicKey).
		Int(logging.FieldCount, len(eligible)).
		Msg("node selected")

	return chosen, nil
}

// bestTier partitions the scored nodes and returns the members of the best
// non-empty tier (A before B before C).
func bestTier(scored []scoredNode) []scoredNode {
	var tierA, tierB, tierC []scoredNode

	for _, s := range scored {
		switch {
		case !s.weighted:
			tierC = append(tierC, s)
		case s.log.SuccessRate() >= tierASuccessRate:
			tierA = append(tierA, s)
		case s.log.SuccessRate() >= tierBSuccessRate:
			tierB = append(tierB, s)
		default:
			tierC = append(tierC, s)
		}
	}

	switch {
	case len(tierA) > 0:
		return tierA
	case len(tierB) > 0:
		return tierB
	default:
		return tierC
	}
}

// drawWeighted draws one node from the tier, weighting each by the inverse
// of its average latency so faster nodes win proportionally more traffic.
func (p *CherryPicker) drawWeighted(tier []scoredNode) *types.Node {
	if len(tier) == 1 {
		return &tier[0].node
	}

	weights := make([]float64, len(tier))
	var total float64
	for i, s := range tier {
		latency := s.latencyMS
		if latency < minLatencyMS {
			latency = minLatencyMS
		}
		weights[i] = 1 / latency
		total += weights[i]
	}

	p.randMu.Lock()
	r := p.randFloat() * total
	p.randMu.Unlock()

	for i, w := range weights {
		r -= w
		if r < 0 {
			return &tier[i].node
		}
	}

	// Floating point underflow on the final subtraction lands here.
	return &tier[len(tier)-1].node
}

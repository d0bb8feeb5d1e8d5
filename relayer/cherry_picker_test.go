//go:build test

package relayer

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/pokt-foundation/pocket-gateway/cache"
	"github.com/pokt-foundation/pocket-gateway/types"
)

type CherryPickerTestSuite struct {
	redisSuite

	cache  cache.Cache
	picker *CherryPicker
}

func TestCherryPickerTestSuite(t *testing.T) {
	suite.Run(t, new(CherryPickerTestSuite))
}

func (s *CherryPickerTestSuite) SetupTest() {
	s.redisSuite.SetupTest()
	s.cache = cache.NewRedisCache(zerolog.Nop(), s.RedisClient)
	s.picker = NewCherryPicker(zerolog.Nop(), s.cache)
}

// seedServiceLog populates a node's rolling counters.
func (s *CherryPickerTestSuite) seedServiceLog(node string, success, failure, elapsedSumMS, elapsedCount int64) {
	key := s.cache.KB().ServiceLogKey(testChainID, node)
	s.cache.HIncrBy(s.Ctx, key, cache.FieldSuccessCount, success)
	s.cache.HIncrBy(s.Ctx, key, cache.FieldFailureCount, failure)
	s.cache.HIncrBy(s.Ctx, key, cache.FieldElapsedSumMS, elapsedSumMS)
	s.cache.HIncrBy(s.Ctx, key, cache.FieldElapsedCount, elapsedCount)
}

func (s *CherryPickerTestSuite) TestTierPrecedenceAndLatencyWeighting() {
	nodes := []types.Node{
		{PublicKey: "nodeA", ServiceURL: "https://a.example.com"},
		{PublicKey: "nodeB", ServiceURL: "https://b.example.com"},
		{PublicKey: "nodeC", ServiceURL: "https://c.example.com"},
	}

	// A: 99% success at 200ms, B: 99% success at 50ms, C: 60% success at 10ms.
	s.seedServiceLog("nodeA", 99, 1, 99*200, 99)
	s.seedServiceLog("nodeB", 99, 1, 99*50, 99)
	s.seedServiceLog("nodeC", 60, 40, 60*10, 60)

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		node, err := s.picker.Pick(s.Ctx, testChainID, nodes, nil)
		s.Require().NoError(err)
		counts[node.PublicKey]++
	}

	// C sits in tier B and must never beat the tier A nodes.
	s.Require().Zero(counts["nodeC"])

	// B's 1/50ms weight should dominate A's 1/200ms roughly 4:1.
	s.Require().GreaterOrEqual(counts["nodeB"], 3*counts["nodeA"])
	s.Require().Positive(counts["nodeA"])
}

func (s *CherryPickerTestSuite) TestNodesWithoutDataAreProbationary() {
	nodes := []types.Node{
		{PublicKey: "nodeFresh"},
		{PublicKey: "nodeProven"},
	}

	s.seedServiceLog("nodeProven", 20, 0, 20*100, 20)

	for i := 0; i < 50; i++ {
		node, err := s.picker.Pick(s.Ctx, testChainID, nodes, nil)
		s.Require().NoError(err)
		s.Require().Equal("nodeProven", node.PublicKey)
	}
}

func (s *CherryPickerTestSuite) TestFewSamplesAreUnweighted() {
	nodes := []types.Node{
		{PublicKey: "nodeFew"},
		{PublicKey: "nodeMany"},
	}

	// 4 observations is below the sample threshold: tier C despite 100%.
	s.seedServiceLog("nodeFew", 4, 0, 4*10, 4)
	s.seedServiceLog("nodeMany", 10, 1, 10*500, 10)

	node, err := s.picker.Pick(s.Ctx, testChainID, nodes, nil)
	s.Require().NoError(err)
	s.Require().Equal("nodeMany", node.PublicKey)
}

func (s *CherryPickerTestSuite) TestExclusionsAreRespected() {
	nodes := newTestNodes(3)

	excluded := map[string]struct{}{
		"node00": {},
		"node02": {},
	}

	for i := 0; i < 20; i++ {
		node, err := s.picker.Pick(s.Ctx, testChainID, nodes, excluded)
		s.Require().NoError(err)
		s.Require().Equal("node01", node.PublicKey)
	}
}

func (s *CherryPickerTestSuite) TestEmptyCandidateSet() {
	nodes := newTestNodes(2)

	excluded := map[string]struct{}{
		"node00": {},
		"node01": {},
	}

	_, err := s.picker.Pick(s.Ctx, testChainID, nodes, excluded)
	s.Require().ErrorIs(err, ErrNoHealthyNodes)
}

func (s *CherryPickerTestSuite) TestDeterministicDrawWithInjectedRand() {
	nodes := newTestNodes(3)

	// Always drawing 0 selects the first node in sorted-publicKey order.
	picker := NewCherryPickerWithRand(zerolog.Nop(), s.cache, func() float64 { return 0 })

	node, err := picker.Pick(s.Ctx, testChainID, nodes, nil)
	s.Require().NoError(err)
	s.Require().Equal("node00", node.PublicKey)
}

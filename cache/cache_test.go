//go:build test

package cache_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/pokt-foundation/pocket-gateway/cache"
	"github.com/pokt-foundation/pocket-gateway/testutil"
)

type CacheAdapterTestSuite struct {
	testutil.RedisTestSuite

	adapter cache.Cache
}

func TestCacheAdapterTestSuite(t *testing.T) {
	suite.Run(t, new(CacheAdapterTestSuite))
}

func (s *CacheAdapterTestSuite) SetupTest() {
	s.RedisTestSuite.SetupTest()
	s.adapter = cache.NewRedisCache(zerolog.Nop(), s.RedisClient)
}

func (s *CacheAdapterTestSuite) TestSetAndGet() {
	s.adapter.Set(s.Ctx, "k1", "v1", time.Minute)

	value, ok := s.adapter.Get(s.Ctx, "k1")
	s.Require().True(ok)
	s.Require().Equal("v1", value)
}

func (s *CacheAdapterTestSuite) TestGetMiss() {
	_, ok := s.adapter.Get(s.Ctx, "missing")
	s.Require().False(ok)
}

func (s *CacheAdapterTestSuite) TestSetNXExclusivity() {
	s.Require().True(s.adapter.SetNX(s.Ctx, "lock", "1", time.Minute))
	s.Require().False(s.adapter.SetNX(s.Ctx, "lock", "1", time.Minute))

	// The lock expires and becomes acquirable again.
	s.MiniRedis.FastForward(2 * time.Minute)
	s.Require().True(s.adapter.SetNX(s.Ctx, "lock", "1", time.Minute))
}

func (s *CacheAdapterTestSuite) TestHIncrByAndHGetAll() {
	_, ok := s.adapter.HIncrBy(s.Ctx, "hash", "success_count", 1)
	s.Require().True(ok)
	newValue, ok := s.adapter.HIncrBy(s.Ctx, "hash", "success_count", 2)
	s.Require().True(ok)
	s.Require().Equal(int64(3), newValue)

	fields := s.adapter.HGetAll(s.Ctx, "hash")
	s.Require().Equal("3", fields["success_count"])
}

func (s *CacheAdapterTestSuite) TestExpire() {
	s.adapter.Set(s.Ctx, "k1", "v1", time.Hour)
	s.adapter.Expire(s.Ctx, "k1", time.Minute)

	s.Require().Equal(time.Minute, s.MiniRedis.TTL("k1"))
}

func (s *CacheAdapterTestSuite) TestFailOpenWhenBackendDown() {
	// Writes are no-ops, reads miss, locks lose: nothing raises.
	s.MiniRedis.SetError("backend down")
	defer s.MiniRedis.SetError("")

	s.adapter.Set(s.Ctx, "k1", "v1", time.Minute)

	_, ok := s.adapter.Get(s.Ctx, "k1")
	s.Require().False(ok)

	s.Require().False(s.adapter.SetNX(s.Ctx, "lock", "1", time.Minute))

	_, ok = s.adapter.HIncrBy(s.Ctx, "hash", "f", 1)
	s.Require().False(ok)

	s.Require().Empty(s.adapter.HGetAll(s.Ctx, "hash"))
}

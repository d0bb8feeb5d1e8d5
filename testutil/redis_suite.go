//go:build test

package testutil

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"

	redisutil "github.com/pokt-foundation/pocket-gateway/transport/redis"
)

// RedisTestSuite provides a shared miniredis instance for tests.
// Embed this in your test suite to get automatic Redis setup/teardown.
//
// Usage:
//
//	type MyTestSuite struct {
//	    testutil.RedisTestSuite
//	}
//
//	func (s *MyTestSuite) TestSomething() {
//	    err := s.RedisClient.Set(s.Ctx, "key", "value", 0).Err()
//	    s.Require().NoError(err)
//	}
//
//	func TestMyTestSuite(t *testing.T) {
//	    suite.Run(t, new(MyTestSuite))
//	}
type RedisTestSuite struct {
	suite.Suite

	// MiniRedis is the embedded miniredis instance. Use it to inspect
	// internal state (TTLs, fast-forwarding time).
	MiniRedis *miniredis.Miniredis

	// RedisClient is the gateway Redis client connected to miniredis.
	RedisClient *redisutil.Client

	// Ctx is a background context for Redis operations.
	Ctx context.Context
}

// SetupSuite runs once before all tests in the suite, creating a single
// shared miniredis instance.
func (s *RedisTestSuite) SetupSuite() {
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

// SetupTest flushes all data before each test for isolation.
func (s *RedisTestSuite) SetupTest() {
	s.MiniRedis.FlushAll()
}

// TearDownSuite closes the shared miniredis instance.
func (s *RedisTestSuite) TearDownSuite() {
	if s.RedisClient != nil {
		_ = s.RedisClient.Close()
	}
	if s.MiniRedis != nil {
		s.MiniRedis.Close()
	}
}

// RequireKeyExists asserts that a key exists in Redis.
func (s *RedisTestSuite) RequireKeyExists(key string) {
	exists, err := s.RedisClient.Exists(s.Ctx, key).Result()
	s.Require().NoError(err, "failed to check key existence")
	s.Require().Equal(int64(1), exists, "key %q should exist", key)
}

// RequireKeyNotExists asserts that a key does NOT exist in Redis.
func (s *RedisTestSuite) RequireKeyNotExists(key string) {
	exists, err := s.RedisClient.Exists(s.Ctx, key).Result()
	s.Require().NoError(err, "failed to check key existence")
	s.Require().Equal(int64(0), exists, "key %q should not exist", key)
}

// HGet is a helper to get a hash field, empty on miss.
func (s *RedisTestSuite) HGet(key, field string) string {
	val, err := s.RedisClient.HGet(s.Ctx, key, field).Result()
	if err != nil {
		return ""
	}
	return val
}

// Package cache provides the short-TTL key/value adapter the relay
// dispatcher coordinates through, plus the cached application, load
// balancer, and blockchain record accessors built on top of it.
package cache

import (
	"context"
	"time"

	"github.com/pokt-foundation/pocket-gateway/logging"
	redistransport "github.com/pokt-foundation/pocket-gateway/transport/redis"
)

// TTLs are part of the cache key protocol. Changing one changes the
// coordination behavior of the whole gateway fleet.
const (
	// TTLRecord applies to application and load balancer records.
	TTLRecord = 60 * time.Second

	// TTLServiceLog applies to per-(chain, node) service log hashes,
	// refreshed on every update.
	TTLServiceLog = 60 * time.Second

	// TTLVerifiedNodes applies to sync-checked and chain-checked node sets.
	TTLVerifiedNodes = 300 * time.Second

	// TTLProbeLock applies to sync/chain probe locks. A crashed prober's
	// lock expires and the next request re-elects a prober.
	TTLProbeLock = 60 * time.Second

	// TTLRecordLock applies to record store query locks.
	TTLRecordLock = 5 * time.Second
)

// Cache is the short-TTL key/value store the dispatcher coordinates
// through. All operations fail open: an unreachable backend is logged and
// surfaces as a miss (reads), a no-op (writes), or a lost lock race
// (SetNX). The relay path never blocks on cache errors.
type Cache interface {
	// Get returns the value for key, with ok=false on miss or error.
	Get(ctx context.Context, key string) (value string, ok bool)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration)

	// SetNX stores value under key with the given TTL only if the key does
	// not exist. Returns true when this caller won the write.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) bool

	// HIncrBy atomically increments a hash field, returning the new value.
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, bool)

	// HGetAll returns all fields of a hash. A missing key yields an empty
	// map, same as an unreachable backend.
	HGetAll(ctx context.Context, key string) map[string]string

	// Expire refreshes the TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration)

	// Del removes a key.
	Del(ctx context.Context, key string)

	// KB exposes the key builder so callers cannot assemble keys by hand.
	KB() *redistransport.KeyBuilder
}

// redisCache implements Cache over the shared Redis client.
type redisCache struct {
	logger logging.Logger
	client *redistransport.Client
}

// NewRedisCache creates the Redis-backed cache adapter.
func NewRedisCache(logger logging.Logger, client *redistransport.Client) Cache {
	return &redisCache{
		logger: logging.ForComponent(logger, logging.ComponentCache),
		client: client,
	}
}

func (c *redisCache) KB() *redistransport.KeyBuilder {
	return c.client.KB()
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool) {
	start := time.Now()
	val, err := c.client.Get(ctx, key).Result()
	observeRedisOp("get", start, err)
	if err != nil {
		c.logMiss("get", key, err)
		return "", false
	}
	return val, true
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	start := time.Now()
	err := c.client.Set(ctx, key, value, ttl).Err()
	observeRedisOp("set", start, err)
	if err != nil {
		c.logger.Warn().Err(err).Str(logging.FieldCacheKey, key).Msg("cache set failed")
	}
}

func (c *redisCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) bool {
	start := time.Now()
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	observeRedisOp("setnx", start, err)
	if err != nil {
		// Treat an unreachable backend as a lost lock race so at most the
		// local caller proceeds unfiltered.
		c.logger.Warn().Err(err).Str(logging.FieldCacheKey, key).Msg("cache setnx failed")
		return false
	}
	return ok
}

func (c *redisCache) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, bool) {
	start := time.Now()
	val, err := c.client.HIncrBy(ctx, key, field, delta).Result()
	observeRedisOp("hincrby", start, err)
	if err != nil {
		c.logger.Warn().Err(err).Str(logging.FieldCacheKey, key).Str("field", field).Msg("cache hincrby failed")
		return 0, false
	}
	return val, true
}

func (c *redisCache) HGetAll(ctx context.Context, key string) map[string]string {
	start := time.Now()
	vals, err := c.client.HGetAll(ctx, key).Result()
	observeRedisOp("hgetall", start, err)
	if err != nil {
		c.logMiss("hgetall", key, err)
		return map[string]string{}
	}
	return vals
}

func (c *redisCache) Expire(ctx context.Context, key string, ttl time.Duration) {
	start := time.Now()
	err := c.client.Expire(ctx, key, ttl).Err()
	observeRedisOp("expire", start, err)
	if err != nil {
		c.logger.Warn().Err(err).Str(logging.FieldCacheKey, key).Msg("cache expire failed")
	}
}

func (c *redisCache) Del(ctx context.Context, key string) {
	start := time.Now()
	err := c.client.Del(ctx, key).Err()
	observeRedisOp("del", start, err)
	if err != nil {
		c.logger.Warn().Err(err).Str(logging.FieldCacheKey, key).Msg("cache del failed")
	}
}

// logMiss logs read failures at debug: a redis.Nil miss is normal operation,
// anything else is still only a degraded read.
func (c *redisCache) logMiss(op, key string, err error) {
	c.logger.Debug().Err(err).Str(logging.FieldCacheKey, key).Str(logging.FieldOperation, op).Msg("cache read miss")
}

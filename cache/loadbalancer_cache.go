package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/pokt-foundation/pocket-gateway/logging"
	"github.com/pokt-foundation/pocket-gateway/types"
)

const loadBalancerCacheType = "load_balancer"

// LoadBalancerStore is the read-only source of load balancer records.
type LoadBalancerStore interface {
	// GetLoadBalancer returns the load balancer record by ID.
	GetLoadBalancer(ctx context.Context, lbID string) (*types.LoadBalancer, error)
}

// LoadBalancerCache provides cached access to load balancer records using
// the same L1 -> L2 -> L3 pattern as ApplicationCache.
type LoadBalancerCache struct {
	logger logging.Logger
	cache  Cache
	store  LoadBalancerStore

	local *xsync.MapOf[string, l1Entry[*types.LoadBalancer]]
}

// NewLoadBalancerCache creates a new load balancer cache.
func NewLoadBalancerCache(logger logging.Logger, cache Cache, store LoadBalancerStore) *LoadBalancerCache {
	return &LoadBalancerCache{
		logger: logging.ForComponent(logger, logging.ComponentLBCache),
		cache:  cache,
		store:  store,
		local:  xsync.NewMapOf[string, l1Entry[*types.LoadBalancer]](),
	}
}

// Get retrieves a load balancer using the L1 -> L2 -> L3 fallback pattern.
func (c *LoadBalancerCache) Get(ctx context.Context, lbID string) (*types.LoadBalancer, error) {
	now := time.Now()

	if entry, ok := c.local.Load(lbID); ok && !entry.expired(now) {
		cacheHits.WithLabelValues(loadBalancerCacheType, CacheLevelL1).Inc()
		return entry.value, nil
	}

	redisKey := c.cache.KB().LoadBalancerKey(lbID)
	if data, ok := c.cache.Get(ctx, redisKey); ok {
		var lb types.LoadBalancer
		if err := json.Unmarshal([]byte(data), &lb); err == nil {
			c.storeLocal(lbID, &lb, now)
			cacheHits.WithLabelValues(loadBalancerCacheType, CacheLevelL2).Inc()
			return &lb, nil
		}
		c.logger.Warn().Str(logging.FieldLoadBalancer, lbID).Msg("failed to unmarshal load balancer from cache")
	}

	cacheMisses.WithLabelValues(loadBalancerCacheType, CacheLevelL2).Inc()

	lb, err := c.queryStoreWithLock(ctx, lbID)
	if err != nil {
		storeQueries.WithLabelValues(loadBalancerCacheType, logging.ResultFailure).Inc()
		return nil, fmt.Errorf("failed to fetch load balancer %s: %w", lbID, err)
	}
	cacheMisses.WithLabelValues(loadBalancerCacheType, CacheLevelL3).Inc()
	storeQueries.WithLabelValues(loadBalancerCacheType, logging.ResultSuccess).Inc()

	if data, err := json.Marshal(lb); err == nil {
		c.cache.Set(ctx, redisKey, string(data), TTLRecord)
	}
	c.storeLocal(lbID, lb, now)

	c.logger.Debug().Str(logging.FieldLoadBalancer, lbID).Msg("load balancer cache miss (L3)")

	return lb, nil
}

// Invalidate removes a load balancer from both cache levels.
func (c *LoadBalancerCache) Invalidate(ctx context.Context, lbID string) {
	c.local.Delete(lbID)
	c.cache.Del(ctx, c.cache.KB().LoadBalancerKey(lbID))
}

func (c *LoadBalancerCache) storeLocal(lbID string, lb *types.LoadBalancer, now time.Time) {
	c.local.Store(lbID, l1Entry[*types.LoadBalancer]{value: lb, expiresAt: now.Add(TTLRecord)})
}

func (c *LoadBalancerCache) queryStoreWithLock(ctx context.Context, lbID string) (*types.LoadBalancer, error) {
	lockKey := c.cache.KB().LoadBalancerLockKey(lbID)

	locked := c.cache.SetNX(ctx, lockKey, "1", TTLRecordLock)
	if locked {
		defer c.cache.Del(ctx, lockKey)
	} else {
		c.logger.Debug().Str(logging.FieldLoadBalancer, lbID).Msg("another instance is fetching load balancer, waiting")
		time.Sleep(100 * time.Millisecond)

		if data, ok := c.cache.Get(ctx, c.cache.KB().LoadBalancerKey(lbID)); ok {
			var lb types.LoadBalancer
			if err := json.Unmarshal([]byte(data), &lb); err == nil {
				c.storeLocal(lbID, &lb, time.Now())
				return &lb, nil
			}
		}
	}

	return c.store.GetLoadBalancer(ctx, lbID)
}

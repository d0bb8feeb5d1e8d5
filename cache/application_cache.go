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

const applicationCacheType = "application"

// ApplicationStore is the read-only source of application records.
type ApplicationStore interface {
	// GetApplication returns the application record by ID.
	GetApplication(ctx context.Context, appID string) (*types.Application, error)
}

// l1Entry pairs a cached record with its expiry. The in-process cache
// honors the same 60s record TTL as Redis.
type l1Entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e l1Entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// ApplicationCache provides cached access to application records.
//
// Cache levels:
//   - L1: in-memory (xsync.MapOf) with the record TTL
//   - L2: Redis with the record TTL, shared across the fleet
//   - L3: data store query, guarded by a distributed lock so one instance
//     populates the fleet-wide cache
type ApplicationCache struct {
	logger logging.Logger
	cache  Cache
	store  ApplicationStore

	local *xsync.MapOf[string, l1Entry[*types.Application]]
}

// NewApplicationCache creates a new application cache.
func NewApplicationCache(logger logging.Logger, cache Cache, store ApplicationStore) *ApplicationCache {
	return &ApplicationCache{
		logger: logging.ForComponent(logger, logging.ComponentApplicationCache),
		cache:  cache,
		store:  store,
		local:  xsync.NewMapOf[string, l1Entry[*types.Application]](),
	}
}

// Get retrieves an application using the L1 -> L2 -> L3 fallback pattern.
func (c *ApplicationCache) Get(ctx context.Context, appID string) (*types.Application, error) {
	now := time.Now()

	if entry, ok := c.local.Load(appID); ok && !entry.expired(now) {
		cacheHits.WithLabelValues(applicationCacheType, CacheLevelL1).Inc()
		return entry.value, nil
	}

	redisKey := c.cache.KB().ApplicationKey(appID)
	if data, ok := c.cache.Get(ctx, redisKey); ok {
		var app types.Application
		if err := json.Unmarshal([]byte(data), &app); err == nil {
			c.storeLocal(appID, &app, now)
			cacheHits.WithLabelValues(applicationCacheType, CacheLevelL2).Inc()
			return &app, nil
		}
		c.logger.Warn().Str(logging.FieldApplicationID, appID).Msg("failed to unmarshal application from cache")
	}

	cacheMisses.WithLabelValues(applicationCacheType, CacheLevelL2).Inc()

	app, err := c.queryStoreWithLock(ctx, appID)
	if err != nil {
		storeQueries.WithLabelValues(applicationCacheType, logging.ResultFailure).Inc()
		return nil, fmt.Errorf("failed to fetch application %s: %w", appID, err)
	}
	cacheMisses.WithLabelValues(applicationCacheType, CacheLevelL3).Inc()
	storeQueries.WithLabelValues(applicationCacheType, logging.ResultSuccess).Inc()

	if data, err := json.Marshal(app); err == nil {
		c.cache.Set(ctx, redisKey, string(data), TTLRecord)
	}
	c.storeLocal(appID, app, now)

	c.logger.Debug().Str(logging.FieldApplicationID, appID).Msg("application cache miss (L3)")

	return app, nil
}

// Invalidate removes an application from both cache levels.
func (c *ApplicationCache) Invalidate(ctx context.Context, appID string) {
	c.local.Delete(appID)
	c.cache.Del(ctx, c.cache.KB().ApplicationKey(appID))
}

func (c *ApplicationCache) storeLocal(appID string, app *types.Application, now time.Time) {
	c.local.Store(appID, l1Entry[*types.Application]{value: app, expiresAt: now.Add(TTLRecord)})
}

// queryStoreWithLock queries the data store with a distributed lock to
// prevent duplicate queries from multiple instances.
func (c *ApplicationCache) queryStoreWithLock(ctx context.Context, appID string) (*types.Application, error) {
	lockKey := c.cache.KB().ApplicationLockKey(appID)

	locked := c.cache.SetNX(ctx, lockKey, "1", TTLRecordLock)
	if locked {
		defer c.cache.Del(ctx, lockKey)
	} else {
		// Another instance is querying; wait briefly and retry L2.
		c.logger.Debug().Str(logging.FieldApplicationID, appID).Msg("another instance is fetching application, waiting")
		time.Sleep(100 * time.Millisecond)

		if data, ok := c.cache.Get(ctx, c.cache.KB().ApplicationKey(appID)); ok {
			var app types.Application
			if err := json.Unmarshal([]byte(data), &app); err == nil {
				c.storeLocal(appID, &app, time.Now())
				return &app, nil
			}
		}
		// Still not cached; query the store anyway.
	}

	return c.store.GetApplication(ctx, appID)
}

package redis

import (
	"fmt"

	"github.com/pokt-foundation/pocket-gateway/config"
)

// KeyBuilder builds Redis keys with configured prefixes. Every Redis key and
// its TTL encodes part of the gateway's coordination protocol, so all key
// construction goes through this type.
type KeyBuilder struct {
	ns config.RedisNamespaceConfig
}

// NewKeyBuilder creates a new KeyBuilder with the given namespace
// configuration.
func NewKeyBuilder(ns config.RedisNamespaceConfig) *KeyBuilder {
	return &KeyBuilder{ns: ns}
}

// ServiceLogKey builds the key for a per-(chain, node) service log hash.
// The hash carries the success/failure counters and rolling latency sums the
// cherry picker ranks nodes by. TTL: 60s, refreshed on every update.
// Format: {base}:{logs}:service:{chain}:{nodePubKey}
// Example: "gateway:logs:service:0021:a301..."
func (kb *KeyBuilder) ServiceLogKey(chainID, nodePublicKey string) string {
	return fmt.Sprintf("%s:%s:service:%s:%s", kb.ns.BasePrefix, kb.ns.LogsPrefix, chainID, nodePublicKey)
}

// SyncedNodesKey builds the key for a session's verified in-sync node set.
// TTL: 300s. Written only by the prober holding the sync lock.
// Format: {base}:{sync}:{chain}-{sessionFingerprint}
// Example: "gateway:sync:0021-9f2c..."
func (kb *KeyBuilder) SyncedNodesKey(chainID, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%s-%s", kb.ns.BasePrefix, kb.ns.SyncPrefix, chainID, fingerprint)
}

// SyncLockKey builds the distributed lock key for a sync-check probe pass.
// TTL: 60s, acquired with SET NX.
// Format: {base}:{lock}:{sync}:{chain}-{sessionFingerprint}
func (kb *KeyBuilder) SyncLockKey(chainID, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%s:%s-%s", kb.ns.BasePrefix, kb.ns.LockPrefix, kb.ns.SyncPrefix, chainID, fingerprint)
}

// ChainNodesKey builds the key for a session's verified chain-id node set.
// TTL: 300s.
// Format: {base}:{chain}:{chainID}-chain-{sessionFingerprint}
func (kb *KeyBuilder) ChainNodesKey(chainID, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%s-chain-%s", kb.ns.BasePrefix, kb.ns.ChainPrefix, chainID, fingerprint)
}

// ChainLockKey builds the distributed lock key for a chain-check probe pass.
// TTL: 60s, acquired with SET NX.
// Format: {base}:{lock}:{chain}:{chainID}-chain-{sessionFingerprint}
func (kb *KeyBuilder) ChainLockKey(chainID, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%s:%s-chain-%s", kb.ns.BasePrefix, kb.ns.LockPrefix, kb.ns.ChainPrefix, chainID, fingerprint)
}

// ApplicationKey builds the cache key for an application record. TTL: 60s.
// Format: {base}:{records}:application:{id}
func (kb *KeyBuilder) ApplicationKey(appID string) string {
	return fmt.Sprintf("%s:%s:application:%s", kb.ns.BasePrefix, kb.ns.RecordsPrefix, appID)
}

// ApplicationLockKey builds the distributed lock key for application record
// store queries. TTL: 5s.
// Format: {base}:{lock}:{records}:application:{id}
func (kb *KeyBuilder) ApplicationLockKey(appID string) string {
	return fmt.Sprintf("%s:%s:%s:application:%s", kb.ns.BasePrefix, kb.ns.LockPrefix, kb.ns.RecordsPrefix, appID)
}

// LoadBalancerKey builds the cache key for a load balancer record. TTL: 60s.
// Format: {base}:{records}:load_balancer:{id}
func (kb *KeyBuilder) LoadBalancerKey(lbID string) string {
	return fmt.Sprintf("%s:%s:load_balancer:%s", kb.ns.BasePrefix, kb.ns.RecordsPrefix, lbID)
}

// LoadBalancerLockKey builds the distributed lock key for load balancer
// record store queries. TTL: 5s.
// Format: {base}:{lock}:{records}:load_balancer:{id}
func (kb *KeyBuilder) LoadBalancerLockKey(lbID string) string {
	return fmt.Sprintf("%s:%s:%s:load_balancer:%s", kb.ns.BasePrefix, kb.ns.LockPrefix, kb.ns.RecordsPrefix, lbID)
}

// ServiceLogPattern builds the scan pattern matching every service log hash
// for a chain. Used by the redis-debug tooling only, never the relay path.
// Format: {base}:{logs}:service:{chain}:*
func (kb *KeyBuilder) ServiceLogPattern(chainID string) string {
	return fmt.Sprintf("%s:%s:service:%s:*", kb.ns.BasePrefix, kb.ns.LogsPrefix, chainID)
}

// SyncedNodesPattern builds the scan pattern matching every verified node
// set for a chain. Used by the redis-debug tooling.
// Format: {base}:{sync}:{chain}-*
func (kb *KeyBuilder) SyncedNodesPattern(chainID string) string {
	return fmt.Sprintf("%s:%s:%s-*", kb.ns.BasePrefix, kb.ns.SyncPrefix, chainID)
}

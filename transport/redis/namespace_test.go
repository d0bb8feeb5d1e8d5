//go:build test

package redis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pokt-foundation/pocket-gateway/config"
)

func TestKeyBuilderDefaults(t *testing.T) {
	kb := NewKeyBuilder(config.DefaultRedisNamespaceConfig())

	require.Equal(t, "gateway:logs:service:0021:abc", kb.ServiceLogKey("0021", "abc"))
	require.Equal(t, "gateway:sync:0021-fp", kb.SyncedNodesKey("0021", "fp"))
	require.Equal(t, "gateway:lock:sync:0021-fp", kb.SyncLockKey("0021", "fp"))
	require.Equal(t, "gateway:chain:0021-chain-fp", kb.ChainNodesKey("0021", "fp"))
	require.Equal(t, "gateway:lock:chain:0021-chain-fp", kb.ChainLockKey("0021", "fp"))
	require.Equal(t, "gateway:records:application:app1", kb.ApplicationKey("app1"))
	require.Equal(t, "gateway:lock:records:application:app1", kb.ApplicationLockKey("app1"))
	require.Equal(t, "gateway:records:load_balancer:lb1", kb.LoadBalancerKey("lb1"))
	require.Equal(t, "gateway:logs:service:0021:*", kb.ServiceLogPattern("0021"))
	require.Equal(t, "gateway:sync:0021-*", kb.SyncedNodesPattern("0021"))
}

func TestKeyBuilderCustomNamespace(t *testing.T) {
	ns := config.DefaultRedisNamespaceConfig()
	ns.BasePrefix = "staging"

	kb := NewKeyBuilder(ns)

	require.Equal(t, "staging:logs:service:0021:abc", kb.ServiceLogKey("0021", "abc"))
	require.Equal(t, "staging:sync:0021-fp", kb.SyncedNodesKey("0021", "fp"))
}

func TestSyncAndChainNamespacesAreDisjoint(t *testing.T) {
	kb := NewKeyBuilder(config.DefaultRedisNamespaceConfig())

	require.NotEqual(t, kb.SyncedNodesKey("0021", "fp"), kb.ChainNodesKey("0021", "fp"))
	require.NotEqual(t, kb.SyncLockKey("0021", "fp"), kb.ChainLockKey("0021", "fp"))
}

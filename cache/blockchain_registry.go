package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pokt-foundation/pocket-gateway/logging"
	"github.com/pokt-foundation/pocket-gateway/types"
)

// BlockchainStore is the read-only source of blockchain descriptors.
type BlockchainStore interface {
	// GetBlockchains returns every supported blockchain descriptor.
	GetBlockchains(ctx context.Context) ([]*types.Blockchain, error)
}

// BlockchainRegistry holds every supported blockchain, indexed by both
// chain ID and path alias. Descriptors are loaded once at startup; Refresh
// reloads the full set in place.
type BlockchainRegistry struct {
	logger logging.Logger
	store  BlockchainStore

	mu      sync.RWMutex
	byID    map[string]*types.Blockchain
	byAlias map[string]*types.Blockchain
}

// NewBlockchainRegistry creates an empty registry. Call Load before serving
// relays.
func NewBlockchainRegistry(logger logging.Logger, store BlockchainStore) *BlockchainRegistry {
	return &BlockchainRegistry{
		logger:  logging.ForComponent(logger, logging.ComponentChainRegistry),
		store:   store,
		byID:    map[string]*types.Blockchain{},
		byAlias: map[string]*types.Blockchain{},
	}
}

// Load fetches all blockchain descriptors from the store and indexes them.
func (r *BlockchainRegistry) Load(ctx context.Context) error {
	chains, err := r.store.GetBlockchains(ctx)
	if err != nil {
		return fmt.Errorf("failed to load blockchains: %w", err)
	}

	byID := make(map[string]*types.Blockchain, len(chains))
	byAlias := make(map[string]*types.Blockchain)
	for _, chain := range chains {
		byID[chain.ID] = chain
		for _, alias := range chain.Aliases {
			byAlias[strings.ToLower(alias)] = chain
		}
	}

	r.mu.Lock()
	r.byID = byID
	r.byAlias = byAlias
	r.mu.Unlock()

	r.logger.Info().Int(logging.FieldCount, len(chains)).Msg("blockchains loaded")

	return nil
}

// Refresh is an alias for Load, used by periodic reloads.
func (r *BlockchainRegistry) Refresh(ctx context.Context) error {
	return r.Load(ctx)
}

// ByID returns the blockchain with the given hex chain ID.
func (r *BlockchainRegistry) ByID(chainID string) (*types.Blockchain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain, ok := r.byID[chainID]
	return chain, ok
}

// ByAlias returns the blockchain registered under the given path alias
// (case-insensitive).
func (r *BlockchainRegistry) ByAlias(alias string) (*types.Blockchain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain, ok := r.byAlias[strings.ToLower(alias)]
	return chain, ok
}

// Resolve returns the blockchain for a request identifier, accepting either
// a chain ID or a path alias.
func (r *BlockchainRegistry) Resolve(identifier string) (*types.Blockchain, bool) {
	if chain, ok := r.ByID(identifier); ok {
		return chain, true
	}
	return r.ByAlias(identifier)
}

// Count returns the number of loaded blockchains.
func (r *BlockchainRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

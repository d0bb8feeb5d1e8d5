// Package query implements the read-only clients for the gateway's record
// stores: applications, load balancers, and blockchain descriptors. The
// records live in an external HTTP data service; the gateway never writes
// them.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/pokt-foundation/pocket-gateway/logging"
	"github.com/pokt-foundation/pocket-gateway/types"
)

const (
	// defaultQueryTimeout is the default timeout for record store queries.
	defaultQueryTimeout = 5 * time.Second

	headerAuthorization = "Authorization"
)

// ClientConfig contains configuration for the record store client.
type ClientConfig struct {
	// BaseURL is the base URL of the data store HTTP API.
	// Example: "https://db.gateway.internal"
	BaseURL string

	// APIKey authenticates requests. Sent in the Authorization header.
	APIKey string

	// RetryMax is the maximum number of retries per request.
	// Default: 2
	RetryMax int

	// QueryTimeout is the per-request timeout.
	// Default: 5 seconds
	QueryTimeout time.Duration
}

// Store is the HTTP client for the gateway record store. It implements
// cache.ApplicationStore, cache.LoadBalancerStore, and
// cache.BlockchainStore.
type Store struct {
	logger logging.Logger
	config ClientConfig
	client *retryablehttp.Client
}

// NewStore creates a record store client. Transient HTTP failures are
// retried with backoff up to RetryMax times.
func NewStore(logger logging.Logger, config ClientConfig) (*Store, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("store base URL is required")
	}
	if config.RetryMax <= 0 {
		config.RetryMax = 2
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = defaultQueryTimeout
	}

	storeLogger := logging.ForComponent(logger, logging.ComponentStore)

	client := retryablehttp.NewClient()
	client.RetryMax = config.RetryMax
	client.HTTPClient.Timeout = config.QueryTimeout
	// retryablehttp's default logger is noisy line-based output; route
	// retries through zerolog instead.
	client.Logger = nil
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			storeLogger.Debug().
				Str(logging.FieldURL, req.URL.String()).
				Int(logging.FieldAttempt, attempt).
				Msg("retrying store request")
		}
	}

	return &Store{
		logger: storeLogger,
		config: config,
		client: client,
	}, nil
}

// GetApplication returns the application record by ID.
func (s *Store) GetApplication(ctx context.Context, appID string) (*types.Application, error) {
	var app types.Application
	if err := s.getJSON(ctx, "application", fmt.Sprintf("/v1/application/%s", appID), &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// GetLoadBalancer returns the load balancer record by ID.
func (s *Store) GetLoadBalancer(ctx context.Context, lbID string) (*types.LoadBalancer, error) {
	var lb types.LoadBalancer
	if err := s.getJSON(ctx, "load_balancer", fmt.Sprintf("/v1/load_balancer/%s", lbID), &lb); err != nil {
		return nil, err
	}
	return &lb, nil
}

// GetBlockchains returns every supported blockchain descriptor.
func (s *Store) GetBlockchains(ctx context.Context) ([]*types.Blockchain, error) {
	var chains []*types.Blockchain
	if err := s.getJSON(ctx, "blockchain", "/v1/blockchain", &chains); err != nil {
		return nil, err
	}
	return chains, nil
}

// getJSON issues a GET request and decodes the JSON response into out.
func (s *Store) getJSON(ctx context.Context, queryType, path string, out any) error {
	start := time.Now()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build store request: %w", err)
	}
	if s.config.APIKey != "" {
		req.Header.Set(headerAuthorization, s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	observeQuery(queryType, start, err)
	if err != nil {
		return fmt.Errorf("store request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrRecordNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("store returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode store response: %w", err)
	}

	return nil
}

package relayer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/pokt-foundation/pocket-gateway/cache"
	"github.com/pokt-foundation/pocket-gateway/logging"
	"github.com/pokt-foundation/pocket-gateway/metrics"
	"github.com/pokt-foundation/pocket-gateway/observability"
	"github.com/pokt-foundation/pocket-gateway/query"
	"github.com/pokt-foundation/pocket-gateway/types"
)

// Relayer coordinates one client relay end to end: application or load
// balancer resolution, blockchain derivation, sync and chain filtering,
// cherry-picked node selection, retries with exclusion, metric recording,
// and the altruist fallback.
type Relayer struct {
	logger logging.Logger
	config Config

	apps     *cache.ApplicationCache
	lbs      *cache.LoadBalancerCache
	chains   *cache.BlockchainRegistry
	sender   RelaySender
	picker   *CherryPicker
	syncs    *SyncChecker
	chainIDs *ChainChecker
	recorder *metrics.Recorder
	tuner    *Tuner
	altruist *Altruist

	// randMu guards randIntn for the load balancer application draw.
	randMu   sync.Mutex
	randIntn func(n int) int
}

// NewRelayer wires the dispatcher from its collaborators.
func NewRelayer(
	logger logging.Logger,
	config Config,
	apps *cache.ApplicationCache,
	lbs *cache.LoadBalancerCache,
	chains *cache.BlockchainRegistry,
	sender RelaySender,
	picker *CherryPicker,
	syncs *SyncChecker,
	chainIDs *ChainChecker,
	recorder *metrics.Recorder,
	tuner *Tuner,
	altruist *Altruist,
) *Relayer {
	config.applyDefaults()

	return &Relayer{
		logger:   logging.ForComponent(logger, logging.ComponentRelayer),
		config:   config,
		apps:     apps,
		lbs:      lbs,
		chains:   chains,
		sender:   sender,
		picker:   picker,
		syncs:    syncs,
		chainIDs: chainIDs,
		recorder: recorder,
		tuner:    tuner,
		altruist: altruist,
		randIntn: rand.Intn,
	}
}

// RelayByLoadBalancer resolves the load balancer to one of its verified
// applications, chosen uniformly at random, and relays through it.
func (r *Relayer) RelayByLoadBalancer(ctx context.Context, lbID string, req RelayRequest) (string, error) {
	lb, err := r.lbs.Get(ctx, lbID)
	if err != nil {
		if errors.Is(err, query.ErrRecordNotFound) {
			return "", clientError(http.StatusForbidden, fmt.Errorf("%w: load balancer %s", ErrUnknownApplication, lbID))
		}
		observability.ErrorsTotal.WithLabelValues(logging.ComponentRelayer, "lb_resolution").Inc()
		return "", internalError(err)
	}

	appID, err := r.pickVerifiedApplication(ctx, lb)
	if err != nil {
		return "", err
	}

	return r.RelayByApplication(ctx, appID, req)
}

// pickVerifiedApplication draws uniformly at random from the subset of the
// load balancer's applications verified to exist. Applications absent from
// the store are silently dropped; an empty verified set is terminal.
func (r *Relayer) pickVerifiedApplication(ctx context.Context, lb *types.LoadBalancer) (string, error) {
	verified := make([]string, 0, len(lb.ApplicationIDs))
	for _, appID := range lb.ApplicationIDs {
		if _, err := r.apps.Get(ctx, appID); err != nil {
			if !errors.Is(err, query.ErrRecordNotFound) {
				r.logger.Warn().
					Err(err).
					Str(logging.FieldApplicationID, appID).
					Str(logging.FieldLoadBalancer, lb.ID).
					Msg("failed to verify load balancer application")
			}
			continue
		}
		verified = append(verified, appID)
	}

	if len(verified) == 0 {
		return "", clientError(http.StatusForbidden, fmt.Errorf("%w: %s", ErrEmptyLoadBalancer, lb.ID))
	}

	r.randMu.Lock()
	idx := r.randIntn(len(verified))
	r.randMu.Unlock()

	return verified[idx], nil
}

// RelayByApplication relays the request on behalf of the application.
func (r *Relayer) RelayByApplication(ctx context.Context, appID string, req RelayRequest) (string, error) {
	app, err := r.apps.Get(ctx, appID)
	if err != nil {
		if errors.Is(err, query.ErrRecordNotFound) {
			return "", clientError(http.StatusForbidden, fmt.Errorf("%w: %s", ErrUnknownApplication, appID))
		}
		// Cache and store both unreachable: the application cannot be
		// resolved, so the failure surfaces instead of failing open.
		observability.ErrorsTotal.WithLabelValues(logging.ComponentRelayer, "app_resolution").Inc()
		return "", internalError(err)
	}

	chain, call, err := r.validateRequest(app, req)
	if err != nil {
		return "", err
	}

	relaysReceived.WithLabelValues(chain.ID).Inc()
	start := time.Now()

	payload, err := r.dispatch(ctx, app, chain, call, req)

	relayLatency.WithLabelValues(chain.ID).Observe(time.Since(start).Seconds())
	if err != nil {
		relaysFailed.WithLabelValues(chain.ID, failureReason(err)).Inc()
		return "", err
	}

	return payload, nil
}

// validateRequest derives the blockchain and method from the request and
// enforces the application's client-side constraints.
func (r *Relayer) validateRequest(app *types.Application, req RelayRequest) (*types.Blockchain, rpcCall, error) {
	if int64(len(req.RawBody)) > r.config.MaxPayloadBytes {
		return nil, rpcCall{}, clientError(http.StatusBadRequest, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(req.RawBody)))
	}

	chain, ok := r.chains.Resolve(req.ChainIdentifier)
	if !ok {
		return nil, rpcCall{}, clientError(http.StatusForbidden, fmt.Errorf("%w: %s", ErrUnknownBlockchain, req.ChainIdentifier))
	}

	if !slices.Contains(app.Chains, chain.ID) {
		return nil, rpcCall{}, clientError(http.StatusForbidden, fmt.Errorf("%w: %s", ErrChainNotStaked, chain.ID))
	}

	if len(app.Settings.WhitelistBlockchains) > 0 && !slices.Contains(app.Settings.WhitelistBlockchains, chain.ID) {
		return nil, rpcCall{}, clientError(http.StatusForbidden, fmt.Errorf("%w: %s", ErrWhitelistViolation, chain.ID))
	}

	if app.Settings.SecretKeyRequired && app.Settings.SecretKey != req.SecretKey {
		return nil, rpcCall{}, clientError(http.StatusForbidden, ErrSecretKeyMismatch)
	}

	call, err := parseRPCCall(req.RawBody)
	if err != nil {
		return nil, rpcCall{}, clientError(http.StatusBadRequest, err)
	}

	if err := checkLogLimit(call, chain); err != nil {
		return nil, rpcCall{}, clientError(http.StatusBadRequest, err)
	}

	return chain, call, nil
}

// dispatch runs the retry loop: filter the session's nodes, pick one, send,
// and on failure exclude the node and try again. The exclusion set only
// grows, so the selection set monotonically shrinks across attempts.
func (r *Relayer) dispatch(ctx context.Context, app *types.Application, chain *types.Blockchain, call rpcCall, req RelayRequest) (string, error) {
	logger := r.requestLogger(app, chain, req)
	aat := app.RelayAAT()

	session, err := r.sender.Session(ctx, app.PublicKey, chain.ID)
	if err != nil {
		return "", exhaustedError(http.StatusInternalServerError, fmt.Errorf("%w: %v", ErrSessionUnusable, err))
	}

	excluded := make(map[string]struct{})
	refreshes := 0
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxRelayAttempts; attempt++ {
		// A client disconnect aborts further attempts; metrics already
		// recorded stay recorded.
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		checkIn := CheckInput{
			Session:     session,
			Blockchain:  chain,
			Application: app,
			AAT:         aat,
			RequestID:   req.RequestID,
		}

		candidates := r.syncs.Filter(ctx, r.sender, checkIn)
		candidates = r.chainIDs.Filter(ctx, r.sender, checkIn, candidates)

		node, pickErr := r.picker.Pick(ctx, chain.ID, candidates, excluded)
		if pickErr != nil {
			// Earlier relay failures are the more truthful terminal cause
			// than the exclusion set running dry.
			if lastErr == nil {
				lastErr = pickErr
			}
			break
		}

		if req.Debug() {
			logger.Info().
				Int(logging.FieldAttempt, attempt).
				Str(logging.FieldServiceNode, node.PublicKey).
				Str(logging.FieldServiceURL, node.ServiceURL).
				Msg("relay attempt")
		}

		start := time.Now()
		output, err := r.sender.Send(ctx, SendInput{
			Payload: req.RawBody,
			ChainID: chain.ID,
			AAT:     aat,
			Node:    node,
			Config:  r.tuner.RelayConfig(),
		})
		elapsed := time.Since(start)

		r.recordAttempt(app, chain, call, req, node.PublicKey, elapsed, false, err)

		if err == nil {
			relaysServed.WithLabelValues(chain.ID, "false").Inc()
			relayAttempts.WithLabelValues(chain.ID).Observe(float64(attempt))
			return output.Payload, nil
		}

		logger.Warn().
			Err(err).
			Int(logging.FieldAttempt, attempt).
			Str(logging.FieldServiceNode, node.PublicKey).
			Msg("relay attempt failed")

		// Node failures are retryable upstream errors, recovered locally
		// by exclusion; the classification only surfaces if retries run
		// out.
		lastErr = upstreamError(err)
		excluded[node.PublicKey] = struct{}{}

		var relayErr *RelayError
		if errors.As(err, &relayErr) && relayErr.IsSessionExpired() && refreshes < r.config.MaxSessionRefreshRetries {
			refreshes++
			session, err = r.sender.RefreshSession(ctx, app.PublicKey, chain.ID)
			if err != nil {
				lastErr = fmt.Errorf("%w: %v", ErrSessionUnusable, err)
				break
			}
		}
	}

	return r.fallbackOrError(ctx, app, chain, call, req, logger, lastErr)
}

// fallbackOrError makes the final altruist attempt when the chain declares
// one, otherwise surfaces the terminal error.
func (r *Relayer) fallbackOrError(ctx context.Context, app *types.Application, chain *types.Blockchain, call rpcCall, req RelayRequest, logger logging.Logger, lastErr error) (string, error) {
	if chain.Altruist != "" {
		fallbackCtx, cancel := context.WithTimeout(ctx, FallbackTimeout)
		defer cancel()

		start := time.Now()
		payload, err := r.altruist.Post(fallbackCtx, chain.Altruist, req.RawBody)
		r.recordAttempt(app, chain, call, req, "", time.Since(start), true, err)

		if err == nil {
			logger.Info().Msg("relay served by fallback")
			relaysServed.WithLabelValues(chain.ID, "true").Inc()
			return payload, nil
		}

		logger.Error().Err(err).Msg("fallback relay failed")
	}

	if lastErr == nil {
		lastErr = ErrRelaysExhausted
	}

	switch {
	case errors.Is(lastErr, ErrNoHealthyNodes):
		return "", exhaustedError(http.StatusInternalServerError, lastErr)
	case errors.Is(lastErr, ErrSessionUnusable):
		return "", exhaustedError(http.StatusInternalServerError, lastErr)
	default:
		return "", exhaustedError(http.StatusGatewayTimeout, fmt.Errorf("%w: %w", ErrRelaysExhausted, lastErr))
	}
}

// recordAttempt emits exactly one metric record for one relay attempt.
// Fallback attempts carry no node and never touch service logs.
func (r *Relayer) recordAttempt(app *types.Application, chain *types.Blockchain, call rpcCall, req RelayRequest, nodeKey string, elapsed time.Duration, fallback bool, err error) {
	metric := types.RelayMetric{
		RequestID:            req.RequestID,
		ApplicationID:        app.ID,
		ApplicationPublicKey: app.PublicKey,
		Blockchain:           chain.ID,
		ServiceNode:          nodeKey,
		RelayStart:           time.Now().Add(-elapsed),
		Elapsed:              elapsed.Seconds(),
		Result:               200,
		Bytes:                int64(len(req.RawBody)),
		Delivered:            err == nil,
		Fallback:             fallback,
		Method:               call.Method,
	}
	if err != nil {
		metric.Result = 500
		metric.Error = err.Error()
	}
	r.recorder.Record(metric)
}

func (r *Relayer) requestLogger(app *types.Application, chain *types.Blockchain, req RelayRequest) logging.Logger {
	logger := logging.WithRequestID(r.logger, req.RequestID)
	logger = logging.WithApplication(logger, app.ID)
	return logging.WithChain(logger, chain.ID)
}

// failureReason labels terminal failures for the relays_failed metric.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNoHealthyNodes):
		return "no_healthy_nodes"
	case errors.Is(err, ErrSessionUnusable):
		return "session_unusable"
	case errors.Is(err, ErrRelaysExhausted):
		return "exhausted"
	default:
		return "other"
	}
}

// Package gateway implements the client-facing HTTP ingress: routing,
// header handling, and the mapping from dispatcher errors to HTTP status
// codes. The dispatcher itself receives already-parsed requests.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/pokt-foundation/pocket-gateway/logging"
	"github.com/pokt-foundation/pocket-gateway/relayer"
)

// Header names recognized by the ingress.
const (
	headerBlockchainSubdomain = "Blockchain-Subdomain"
	headerContentType         = "Content-Type"

	contentTypeJSON = "application/json"

	// gracefulShutdownTimeout bounds in-flight request draining on stop.
	gracefulShutdownTimeout = 30 * time.Second
)

// ServerConfig contains the ingress configuration.
type ServerConfig struct {
	// ListenAddr is the address to serve relays on (e.g., ":8080").
	ListenAddr string

	// MaxPayloadBytes rejects larger request bodies with HTTP 400.
	MaxPayloadBytes int64

	// AliasOverrideWhitelist lists the Blockchain-Subdomain header values
	// accepted as a chain alias override. Empty disables the override.
	AliasOverrideWhitelist []string
}

// Server is the client-facing relay server.
type Server struct {
	logger  logging.Logger
	config  ServerConfig
	relayer *relayer.Relayer
	server  *http.Server
}

// NewServer creates the ingress server.
func NewServer(logger logging.Logger, config ServerConfig, r *relayer.Relayer) *Server {
	s := &Server{
		logger:  logging.ForComponent(logger, logging.ComponentHTTPServer),
		config:  config,
		relayer: r,
	}

	s.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Router builds the ingress routes. Exposed for tests.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/v1/lb/{lbID}", s.handleLoadBalancerRelay).Methods(http.MethodPost)
	router.HandleFunc("/v1/{appID}", s.handleApplicationRelay).Methods(http.MethodPost)
	return router
}

// Start serves relays until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str(logging.FieldListenAddr, s.config.ListenAddr).Msg("serving relays")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleApplicationRelay(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appID"]

	req, ok := s.buildRelayRequest(w, r)
	if !ok {
		return
	}

	payload, err := s.relayer.RelayByApplication(r.Context(), appID, req)
	s.writeRelayResponse(w, req, payload, err)
}

func (s *Server) handleLoadBalancerRelay(w http.ResponseWriter, r *http.Request) {
	lbID := mux.Vars(r)["lbID"]

	req, ok := s.buildRelayRequest(w, r)
	if !ok {
		return
	}

	payload, err := s.relayer.RelayByLoadBalancer(r.Context(), lbID, req)
	s.writeRelayResponse(w, req, payload, err)
}

// buildRelayRequest reads the body and recognized headers into the
// dispatcher's request context.
func (s *Server) buildRelayRequest(w http.ResponseWriter, r *http.Request) (relayer.RelayRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxPayloadBytes))
	if err != nil {
		http.Error(w, `{"error":"request body too large"}`, http.StatusBadRequest)
		return relayer.RelayRequest{}, false
	}

	return relayer.RelayRequest{
		ChainIdentifier: s.chainIdentifier(r),
		RawBody:         body,
		SecretKey:       secretKeyFromRequest(r),
		Origin:          r.Header.Get("Origin"),
		UserAgent:       r.UserAgent(),
		RequestID:       uuid.NewString(),
	}, true
}

// chainIdentifier derives the blockchain alias from the request. The first
// Host label is authoritative (e.g. "eth-mainnet.gateway.example"); a
// Blockchain-Subdomain header overrides it only when whitelisted.
func (s *Server) chainIdentifier(r *http.Request) string {
	if override := r.Header.Get(headerBlockchainSubdomain); override != "" {
		if slices.Contains(s.config.AliasOverrideWhitelist, override) {
			return override
		}
	}

	host := r.Host
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	if idx := strings.IndexByte(host, '.'); idx >= 0 {
		return host[:idx]
	}
	return host
}

// secretKeyFromRequest extracts the application secret from basic auth,
// the scheme client applications use.
func secretKeyFromRequest(r *http.Request) string {
	_, password, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	return password
}

// writeRelayResponse maps dispatcher results to the HTTP surface: the
// upstream payload unchanged on success, a JSON error with the mapped
// status otherwise.
func (s *Server) writeRelayResponse(w http.ResponseWriter, req relayer.RelayRequest, payload string, err error) {
	w.Header().Set(headerContentType, contentTypeJSON)

	if err != nil {
		status := relayer.StatusForError(err)

		s.logger.Warn().
			Err(err).
			Int("status", status).
			Str(logging.FieldRequestID, req.RequestID).
			Msg("relay failed")

		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"` + sanitizeErrorMessage(err) + `"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(payload))
}

// sanitizeErrorMessage strips characters that would break the JSON error
// envelope.
func sanitizeErrorMessage(err error) string {
	msg := err.Error()
	msg = strings.ReplaceAll(msg, `"`, `'`)
	msg = strings.ReplaceAll(msg, "\n", " ")
	return msg
}

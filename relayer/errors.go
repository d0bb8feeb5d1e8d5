package relayer

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies dispatcher errors for propagation policy:
// client errors surface immediately without retry, upstream errors are
// recovered by exclusion-and-retry, exhausted errors surface after all
// retries, and internal errors are logged and swallowed on the relay path.
type ErrorKind string

const (
	KindClient    ErrorKind = "client"
	KindUpstream  ErrorKind = "upstream"
	KindExhausted ErrorKind = "exhausted"
	KindInternal  ErrorKind = "internal"
)

// Error is a classified dispatcher error carrying the HTTP status the
// ingress layer maps it to.
type Error struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Terminal client-side failures.
var (
	ErrMalformedPayload   = errors.New("unparseable relay payload")
	ErrPayloadTooLarge    = errors.New("relay payload exceeds maximum size")
	ErrUnknownBlockchain  = errors.New("unknown blockchain")
	ErrChainNotStaked     = errors.New("application is not staked for the requested blockchain")
	ErrEmptyLoadBalancer  = errors.New("load balancer has no verified applications")
	ErrUnknownApplication = errors.New("unknown application")
	ErrSecretKeyMismatch  = errors.New("secret key does not match")
	ErrLogLimitExceeded   = errors.New("eth_getLogs block range exceeds the chain limit")
	ErrWhitelistViolation = errors.New("blockchain is not whitelisted for the application")
)

// Dispatch-loop failures.
var (
	ErrNoHealthyNodes  = errors.New("no healthy nodes available")
	ErrRelaysExhausted = errors.New("all relay attempts failed")
	ErrFallbackFailed  = errors.New("fallback backend failed")
	ErrSessionUnusable = errors.New("could not obtain a usable session")
)

// clientError wraps a terminal client-side failure.
func clientError(status int, err error) *Error {
	return &Error{Kind: KindClient, Status: status, Err: err}
}

// upstreamError wraps a retryable per-attempt node failure. The dispatch
// loop recovers it by exclusion-and-retry; it only surfaces inside the
// terminal exhausted error once retries run out.
func upstreamError(err error) *Error {
	return &Error{Kind: KindUpstream, Status: http.StatusBadGateway, Err: err}
}

// internalError wraps an infrastructure failure (cache and store both
// unreachable). Internal errors are swallowed on the relay path; the one
// place they surface is application resolution, as a 500.
func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Err: err}
}

// exhaustedError wraps a terminal post-retry failure.
func exhaustedError(status int, err error) *Error {
	return &Error{Kind: KindExhausted, Status: status, Err: err}
}

// StatusForError maps a dispatcher error to the HTTP status code the
// ingress layer responds with: 400 unparseable body, 403 configuration
// invalid, 500 no healthy nodes, 504 upstream timeout after all retries.
func StatusForError(err error) int {
	var gerr *Error
	if errors.As(err, &gerr) && gerr.Status != 0 {
		return gerr.Status
	}

	switch {
	case errors.Is(err, ErrMalformedPayload),
		errors.Is(err, ErrPayloadTooLarge),
		errors.Is(err, ErrLogLimitExceeded):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownBlockchain),
		errors.Is(err, ErrChainNotStaked),
		errors.Is(err, ErrEmptyLoadBalancer),
		errors.Is(err, ErrUnknownApplication),
		errors.Is(err, ErrSecretKeyMismatch),
		errors.Is(err, ErrWhitelistViolation):
		return http.StatusForbidden
	case errors.Is(err, ErrNoHealthyNodes), errors.Is(err, ErrSessionUnusable):
		return http.StatusInternalServerError
	case errors.Is(err, ErrRelaysExhausted), errors.Is(err, ErrFallbackFailed):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

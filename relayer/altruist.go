package relayer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pokt-foundation/pocket-gateway/logging"
)

// Altruist posts relays directly to a chain's fallback backend when the
// decentralized relay path is exhausted. One attempt, fixed timeout, no
// effect on cherry picker statistics.
type Altruist struct {
	logger logging.Logger
	client *http.Client
}

// NewAltruist creates the fallback backend client.
func NewAltruist(logger logging.Logger) *Altruist {
	return &Altruist{
		logger: logging.ForComponent(logger, logging.ComponentAltruist),
		client: &http.Client{
			Timeout: FallbackTimeout,
		},
	}
}

// Post forwards the raw relay body to the fallback URL and returns the
// response body unchanged.
func (a *Altruist) Post(ctx context.Context, url string, body []byte) (string, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build fallback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fallback request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read fallback response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fallback returned status %d", resp.StatusCode)
	}

	a.logger.Info().
		Dur(logging.FieldDuration, time.Since(start)).
		Int(logging.FieldSize, len(payload)).
		Msg("fallback relay served")

	return string(payload), nil
}

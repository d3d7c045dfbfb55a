// Package forwarder implements Component A of SPEC_FULL.md: POSTing a JSON
// envelope to one HTTP sink with bounded retries and a fixed delay between
// attempts. It has no knowledge of routing; the Router (internal/router)
// decides which endpoints to call.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rubiojr/discord-bridge/internal/envelope"
	"github.com/rubiojr/discord-bridge/internal/log"
	"github.com/rubiojr/discord-bridge/internal/version"
)

var logger = log.ForService("forwarder")

// Config tunes retry behavior, mirroring SPEC_FULL.md §6.3 http.* fields.
type Config struct {
	// Timeout bounds each individual POST attempt.
	Timeout time.Duration
	// RetryAttempts is the maximum number of POSTs per delivery.
	RetryAttempts int
	// RetryDelay is the sleep between consecutive attempts. No sleep
	// follows the final attempt.
	RetryDelay time.Duration
}

// Forwarder delivers envelopes to HTTP endpoints per Config.
type Forwarder struct {
	cfg    Config
	client *http.Client
}

// New builds a Forwarder. The underlying http.Client has no Timeout of its
// own: each attempt gets its own context deadline instead, so a hung DNS
// lookup on attempt 1 cannot eat into the budget of attempt 2.
func New(cfg Config) *Forwarder {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &Forwarder{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// Forward builds the envelope for (eventType, data) and POSTs it to
// endpoint, retrying transient failures and non-2xx/3xx statuses uniformly
// up to cfg.RetryAttempts times. It returns true as soon as any attempt
// gets a status < 400, and false once attempts are exhausted.
//
// Forward never returns an error: callers (the Router) only need the
// success/failure boolean, per SPEC_FULL.md §4.A/§4.B.
func (f *Forwarder) Forward(ctx context.Context, endpoint, eventType string, data json.RawMessage) bool {
	env := envelope.New(eventType, data)
	body, err := json.Marshal(env)
	if err != nil {
		logger.Errorf("marshal envelope for %s: %v", eventType, err)
		return false
	}

	deliveryID := uuid.New().String()

	for attempt := 1; attempt <= f.cfg.RetryAttempts; attempt++ {
		logger.Debugf("delivery %s: POST %s (%s) attempt %d/%d", deliveryID, endpoint, eventType, attempt, f.cfg.RetryAttempts)

		if f.attempt(ctx, endpoint, body) {
			logger.Debugf("delivery %s: succeeded on attempt %d", deliveryID, attempt)
			return true
		}

		if attempt < f.cfg.RetryAttempts {
			select {
			case <-time.After(f.cfg.RetryDelay):
			case <-ctx.Done():
				logger.Warnf("delivery %s: context cancelled during retry backoff", deliveryID)
				return false
			}
		}
	}

	logger.Errorf("delivery %s: failed to forward %s to %s after %d attempts", deliveryID, eventType, endpoint, f.cfg.RetryAttempts)
	return false
}

// attempt performs a single POST, bounded by cfg.Timeout. Transport errors,
// context deadline expiry, and any status >= 400 are all treated as
// failures warranting a retry (SPEC_FULL.md §4.A step 5): the receiver is
// an operator-owned sink whose status semantics the bridge cannot assume.
func (f *Forwarder) attempt(ctx context.Context, endpoint string, body []byte) bool {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		logger.Warnf("building request for %s: %v", endpoint, err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		logger.Warnf("POST %s: %v", endpoint, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		logger.Warnf("POST %s: status %s", endpoint, resp.Status)
		return false
	}

	return true
}

// String implements fmt.Stringer for diagnostics.
func (f *Forwarder) String() string {
	return fmt.Sprintf("Forwarder(timeout=%s, retry_attempts=%d, retry_delay=%s)", f.cfg.Timeout, f.cfg.RetryAttempts, f.cfg.RetryDelay)
}

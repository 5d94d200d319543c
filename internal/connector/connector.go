// Package connector provides the shared HTTP plumbing for source
// connectors: per-connector token-bucket throttling, circuit breaking, and
// retry with rate-limit-aware backoff. Concrete sources (Reddit, news) build
// on Client and implement domain.SourceConnector.
package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pscheid92/brandpulse/internal/domain"
	"github.com/pscheid92/brandpulse/internal/metrics"
	"github.com/pscheid92/brandpulse/internal/platform/retry"
)

// Options tune one connector instance. Throttle and retry state are owned
// by the instance, never shared process-wide, so concurrent analyses do not
// cross-contaminate each other's budgets.
type Options struct {
	SourceID          string
	RequestsPerSecond float64
	RetryAttempts     int
	InitialBackoff    time.Duration
	RateLimitBackoff  time.Duration
	UserAgent         string
}

// Client is the throttled, breaker-guarded HTTP client connectors share.
type Client struct {
	sourceID  string
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	policy    retry.Policy
	userAgent string
}

// NewClient builds a connector client from options.
func NewClient(opts Options) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    opts.SourceID,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Connector circuit breaker state change",
				"source", name, "from", from.String(), "to", to.String())
		},
	})

	policy := retry.Policy{
		MaxAttempts:      opts.RetryAttempts,
		InitialBackoff:   opts.InitialBackoff,
		RateLimitBackoff: opts.RateLimitBackoff,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			metrics.SourceRetries.WithLabelValues(opts.SourceID).Inc()
			slog.Debug("Retrying upstream request",
				"source", opts.SourceID, "attempt", attempt,
				"backoff", backoff, "error", err)
		},
	}

	return &Client{
		sourceID:  opts.SourceID,
		http:      &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		breaker:   breaker,
		policy:    policy,
		userAgent: opts.UserAgent,
	}
}

// statusError carries an upstream HTTP status through the retry classifier.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.status)
}

func classify(err error) retry.Action {
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.status == http.StatusTooManyRequests:
			return retry.After
		case se.status >= 500:
			return retry.Retry
		default:
			return retry.Stop
		}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Stop
	}
	// Network-level failures are transient until the budget says otherwise.
	return retry.Retry
}

// GetJSON fetches url and decodes the response body into target. It blocks
// on the token bucket (suspending the calling task, never busy-waiting),
// runs the request behind the breaker, and retries per policy. When the
// budget is exhausted or the breaker is open, the returned error wraps
// domain.ErrSourceUnavailable so the orchestrator can fail this source only.
func (c *Client) GetJSON(ctx context.Context, url string, target any) error {
	body, err := retry.Do(ctx, c.policy, classify, func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		result, err := c.breaker.Execute(func() (any, error) {
			return c.get(ctx, url)
		})
		if err != nil {
			return nil, err
		}
		return result.([]byte), nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %w", c.sourceID, domain.ErrSourceUnavailable, err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", c.sourceID, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// Registry maps source IDs to connectors. New sources plug in without the
// orchestrator changing.
type Registry struct {
	connectors map[string]domain.SourceConnector
	order      []string
}

// NewRegistry creates a registry over the given connectors, preserving
// registration order.
func NewRegistry(connectors ...domain.SourceConnector) *Registry {
	r := &Registry{connectors: make(map[string]domain.SourceConnector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.SourceID()] = c
		r.order = append(r.order, c.SourceID())
	}
	return r
}

// Get returns the connector for a source ID.
func (r *Registry) Get(sourceID string) (domain.SourceConnector, bool) {
	c, ok := r.connectors[sourceID]
	return c, ok
}

// SourceIDs lists registered sources in registration order.
func (r *Registry) SourceIDs() []string {
	return append([]string(nil), r.order...)
}

// Select resolves the requested source IDs, defaulting to all registered
// sources when the request names none.
func (r *Registry) Select(requested []string) ([]domain.SourceConnector, error) {
	if len(requested) == 0 {
		requested = r.SourceIDs()
	}
	out := make([]domain.SourceConnector, 0, len(requested))
	for _, id := range requested {
		c, ok := r.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w %q", domain.ErrUnknownSource, id)
		}
		out = append(out, c)
	}
	return out, nil
}

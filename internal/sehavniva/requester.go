package sehavniva

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rtm0/stormsurge/internal/cache"
	"github.com/rtm0/stormsurge/internal/logger"
	"github.com/rtm0/stormsurge/internal/tide"
)

// RetryPolicy bounds how often and how fast a failing request is repeated.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy retries for about ten minutes.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 60, Backoff: 10 * time.Second}

var errStatus = errors.New("unexpected status")

func (p RetryPolicy) validate() error {
	if p.MaxAttempts < 1 || p.Backoff < 0 {
		return fmt.Errorf("invalid retry policy: %d attempts, %s backoff", p.MaxAttempts, p.Backoff)
	}
	return nil
}

// fetch returns the response body for key, from the cache if present and
// from the network otherwise. Network responses are cached.
func (c *Client) fetch(ctx context.Context, key cache.Key) ([]byte, error) {
	if c.cache != nil {
		body, ok, err := c.cache.Get(ctx, key.URL)
		switch {
		case err != nil:
			c.logger.Warn("Cache lookup failed", "url", key.URL, logger.Err(err))
		case ok:
			c.logger.Debug("Cache hit", "url", key.URL)
			return body, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.retry.Backoff); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("request pacing: %w", err)
		}
		c.logger.Debug("Requesting", "url", key.URL, "attempt", attempt)
		body, err := c.attempt(ctx, key.URL)
		if err == nil {
			if c.cache != nil {
				if err := c.cache.Put(ctx, key, body); err != nil {
					c.logger.Warn("Could not cache response", "url", key.URL, logger.Err(err))
				}
			}
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		c.logger.Warn("Request failed", "url", key.URL, "attempt", attempt, "maxAttempts", c.retry.MaxAttempts, logger.Err(err))
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", tide.ErrRemoteFetchExhausted, key.URL, c.retry.MaxAttempts, lastErr)
}

// attempt performs one request, through the breaker when one is configured.
// While the breaker is open the attempt fails without reaching the server.
func (c *Client) attempt(ctx context.Context, url string) ([]byte, error) {
	if c.breaker == nil {
		return c.get(ctx, url)
	}
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	res, err := c.httpCli.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errStatus, res.StatusCode)
	}
	return body, nil
}

func newBreaker(logger *slog.Logger, threshold uint32, timeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sehavniva",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package spotify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"songlift/internal/core"
)

// retryTransport retries retryable responses with exponential backoff and full
// jitter, honoring any server-supplied Retry-After. It sits below the OAuth
// transport so every catalog call, token refresh included, goes through it.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func newRetryTransport(base http.RoundTripper, cfg *core.SearchConfig, logger *zap.Logger) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{
		base:       base,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		maxDelay:   cfg.RetryMaxDelay,
		logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // backoff jitter does not need crypto randomness
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.GetBody == nil {
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("buffering request body: %w", err)
		}
		_ = req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(bodyBytes)), nil
		}
	}

	ctx := req.Context()
	var resp *http.Response
	var err error

	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}

		if attempt > 0 && req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, fmt.Errorf("resetting request body: %w", berr)
			}
			req.Body = body
		}

		resp, err = t.base.RoundTrip(req)

		retryAfter, retry := shouldRetry(resp, err)
		if !retry || attempt >= t.maxRetries {
			return resp, err
		}

		if err != nil {
			t.logger.Warn("Retrying catalog request after error",
				zap.Int("attempt", attempt+1),
				zap.Int("maxRetries", t.maxRetries),
				zap.Error(err))
		} else {
			t.logger.Warn("Retrying catalog request after status",
				zap.Int("attempt", attempt+1),
				zap.Int("maxRetries", t.maxRetries),
				zap.Int("status", resp.StatusCode))
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
		}

		delay := t.backoff(attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}

		if serr := sleepWithContext(ctx, delay); serr != nil {
			return nil, serr
		}
	}
}

// backoff computes min(maxDelay, baseDelay*2^attempt) scaled by a jitter
// factor drawn uniformly from [0.5, 1.5).
func (t *retryTransport) backoff(attempt int) time.Duration {
	delay := t.baseDelay
	for i := 0; i < attempt && delay < t.maxDelay; i++ {
		delay *= 2
	}
	if delay > t.maxDelay {
		delay = t.maxDelay
	}

	t.mu.Lock()
	jitter := 0.5 + t.rng.Float64()
	t.mu.Unlock()

	return time.Duration(float64(delay) * jitter)
}

func shouldRetry(resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		// Connection errors and read timeouts are retryable.
		return 0, true
	}
	if resp == nil {
		return 0, false
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return parseRetryAfter(resp), true
	}
	return 0, false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/arxivist/arxivist-backend/internal/domain"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultRateLimit   = 3.0
	defaultBurstSize   = 3
	defaultMaxRetries  = 3
	defaultRetryDelay  = time.Second

	// DefaultUserAgent is sent when the caller does not set one.
	DefaultUserAgent = "arXivist-Backend/1.0"
)

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Name identifies the upstream in errors, e.g. "arXiv".
	Name string

	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the maximum number of retry attempts. Use a negative
	// value to disable retries entirely.
	MaxRetries int

	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// OnRetry, if set, is called before each retry with the attempt number
	// (starting at 1) and the reason for retrying.
	OnRetry func(attempt int, reason string, delay time.Duration)
}

func (c *HTTPClientConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = defaultHTTPTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = defaultBurstSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Name == "" {
		c.Name = "upstream"
	}
}

// HTTPClient wraps http.Client with rate limiting and retries.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client with rate limiting.
// The client waits on the limiter before every attempt and retries on
// network errors, 429 (Too Many Requests) and 5xx responses.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	cfg.applyDefaults()

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Do executes an HTTP request with rate limiting and retries.
//
// When retries are exhausted on a 429 response, Do returns a
// *domain.RateLimitError. Exhausted 5xx responses are returned as a
// *domain.ExternalAPIError wrapping domain.ErrServiceUnavailable.
// Context cancellation is returned as-is and never retried.
//
// The request body is not preserved across retries; callers must provide
// requests with GetBody set if the body needs to be resent on retry.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	ctx := req.Context()
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.resetRequestBody(req); err != nil {
				return nil, fmt.Errorf("cannot retry request: %w", err)
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == c.config.MaxRetries {
				break
			}
			if err := c.backoff(ctx, attempt+1, err.Error(), c.config.RetryDelay); err != nil {
				return nil, err
			}
			continue
		}

		if !shouldRetry(resp.StatusCode) {
			return resp, nil
		}

		delay := c.retryDelay(resp)
		drain(resp)
		lastErr = c.statusError(resp.StatusCode, delay)

		if attempt == c.config.MaxRetries {
			break
		}
		if err := c.backoff(ctx, attempt+1, "status "+strconv.Itoa(resp.StatusCode), delay); err != nil {
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no response received")
	}
	return nil, lastErr
}

// statusError converts a retryable status into the error returned once
// retries run out.
func (c *HTTPClient) statusError(status int, retryAfter time.Duration) error {
	if status == http.StatusTooManyRequests {
		return domain.NewRateLimitError(c.config.Name, retryAfter)
	}
	return domain.NewExternalAPIError(
		c.config.Name,
		status,
		fmt.Sprintf("max retries exhausted after %d attempts", c.config.MaxRetries+1),
		domain.ErrServiceUnavailable,
	)
}

func (c *HTTPClient) backoff(ctx context.Context, attempt int, reason string, delay time.Duration) error {
	if c.config.OnRetry != nil {
		c.config.OnRetry(attempt, reason, delay)
	}
	return waitForRetry(ctx, delay)
}

// shouldRetry returns true if the status code indicates we should retry.
func shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// retryDelay honors the Retry-After header (seconds or HTTP date) and falls
// back to the configured delay.
func (c *HTTPClient) retryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RetryDelay
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return c.config.RetryDelay
}

// waitForRetry waits for the specified duration, respecting context cancellation.
func waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *HTTPClient) resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}

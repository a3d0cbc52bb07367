package fetcher

import (
	"log/slog"
	"net/http"
	"time"

	"resty.dev/v3"
)

const (
	// Default retry configuration
	defaultRetryCount       = 3
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second

	defaultTimeout = 20 * time.Second
)

// ClientOption customizes a client built by NewHTTPClient
type ClientOption func(*resty.Client)

// WithHeader sets a header sent on every request
func WithHeader(key, value string) ClientOption {
	return func(c *resty.Client) {
		c.SetHeader(key, value)
	}
}

// WithTimeout overrides the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// WithRetryWait overrides the backoff bounds between retries
func WithRetryWait(wait, maxWait time.Duration) ClientOption {
	return func(c *resty.Client) {
		c.SetRetryWaitTime(wait).SetRetryMaxWaitTime(maxWait)
	}
}

// NewHTTPClient creates a new HTTP client with retry logic and exponential backoff.
// Only idempotent requests are retried; POSTs are sent once.
func NewHTTPClient(baseURL string, opts ...ClientOption) *resty.Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(defaultTimeout).
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook)

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// retryCondition determines whether a request should be retried based on the response and error
func retryCondition(r *resty.Response, err error) bool {
	if r != nil && r.Request != nil && r.Request.Method == http.MethodPost {
		return false
	}

	if err != nil {
		return true
	}

	switch code := r.StatusCode(); {
	case code >= 500:
		return true
	case code == http.StatusTooManyRequests:
		return true
	case code == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// retryHook logs retry attempts
func retryHook(r *resty.Response, err error) {
	if err != nil {
		slog.Warn("retrying request due to error",
			"url", r.Request.URL,
			"attempt", r.Request.Attempt,
			"error", err.Error())
		return
	}

	slog.Warn("retrying request due to status code",
		"url", r.Request.URL,
		"attempt", r.Request.Attempt,
		"status_code", r.StatusCode())
}

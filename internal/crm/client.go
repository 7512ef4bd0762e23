// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package crm is the client for the systeme.io-compatible CRM REST API.
//
// Every call returns a Result instead of an error: transport failures,
// non-2xx answers and recognized conflicts are all normalized at the call
// site so that nothing escapes across the sync boundary. Layers compose as
//
//	Client (endpoints) -> CircuitBreakerClient (optional) -> HTTPClient (transport)
//
// where the lower two implement Doer.
package crm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/metrics"
)

const (
	headerAPIKey       = "X-API-Key"
	contentTypeJSON    = "application/json"
	contentTypeMerge   = "application/merge-patch+json"
	maxErrorBodySize   = 64 * 1024
	defaultHTTPTimeout = 30 * time.Second
)

// Doer performs one CRM request. body is JSON-encoded when non-nil and the
// method is not GET.
type Doer interface {
	Do(ctx context.Context, method, path string, body interface{}) Result
}

// RequestHook observes every completed request; statusCode is 0 when no
// response was received.
type RequestHook func(ctx context.Context, method, path string, statusCode int, duration time.Duration)

// HTTPClient is the raw transport to the CRM.
type HTTPClient struct {
	baseURL        string
	apiKey         func() string
	client         *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
	hooks          []RequestHook
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithAPIKeyProvider reads the API key on every request, so a rotated key
// takes effect without rebuilding the client.
func WithAPIKeyProvider(fn func() string) Option {
	return func(c *HTTPClient) {
		c.apiKey = fn
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithRequestHook registers a hook called after every request.
func WithRequestHook(hook RequestHook) Option {
	return func(c *HTTPClient) {
		c.hooks = append(c.hooks, hook)
	}
}

// NewHTTPClient creates the transport from configuration:
//   - 30-second HTTP timeout unless configured otherwise
//   - up to MaxRetries retries on HTTP 429 with exponential backoff
//   - optional outbound rate limit (RateLimitPerSecond > 0)
func NewHTTPClient(cfg *config.CRMConfig, opts ...Option) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	apiKey := cfg.APIKey
	c := &HTTPClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         func() string { return apiKey },
		client:         &http.Client{Timeout: timeout},
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
	}

	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do issues the request and normalizes the outcome. Success is set only for
// 2xx answers.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body interface{}) Result {
	apiKey := c.apiKey()
	if apiKey == "" {
		return failure(ErrAPIKeyMissing)
	}

	var payload []byte
	if body != nil && method != http.MethodGet {
		encoded, err := json.Marshal(body)
		if err != nil {
			return failure(&TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to encode request body: %w", err)})
		}
		payload = encoded
	}

	reqURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	start := time.Now()

	resp, err := c.doWithRateLimit(ctx, method, reqURL, apiKey, payload)
	if err != nil {
		c.observe(ctx, method, path, 0, time.Since(start))
		return failure(&TransportError{Method: method, Path: path, Err: err})
	}
	defer resp.Body.Close()

	c.observe(ctx, method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rej := &RemoteRejection{StatusCode: resp.StatusCode, Body: string(readBodyForError(resp.Body))}
		return Result{
			Success:    false,
			Message:    rej.Error(),
			StatusCode: resp.StatusCode,
			Err:        rej,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(&TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to read response body: %w", err)})
	}

	result := Result{Success: true, Message: "Success", StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(data)) > 0 {
		result.Data = data
	}
	return result
}

// doWithRateLimit performs the request, retrying HTTP 429 with exponential
// backoff (base, 2*base, 4*base, ...). Retry-After in seconds overrides the
// computed delay. The last 429 is returned to the caller as a normal answer.
func (c *HTTPClient) doWithRateLimit(ctx context.Context, method, reqURL, apiKey string, payload []byte) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter wait failed: %w", err)
			}
		}

		req, err := c.newRequest(ctx, method, reqURL, apiKey, payload)
		if err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests || attempt >= c.maxRetries {
			return resp, nil
		}

		_ = resp.Body.Close()

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
				delay = time.Duration(seconds) * time.Second
			}
		}

		metrics.CRMRateLimitRetries.Inc()
		logging.Warn().Dur("retry_delay", delay).Int("attempt", attempt+1).Int("max_retries", c.maxRetries).Msg("CRM API rate limited (HTTP 429), retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *HTTPClient) newRequest(ctx context.Context, method, reqURL, apiKey string, payload []byte) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(headerAPIKey, apiKey)
	req.Header.Set("Accept", contentTypeJSON)
	if payload != nil {
		if method == http.MethodPatch {
			req.Header.Set("Content-Type", contentTypeMerge)
		} else {
			req.Header.Set("Content-Type", contentTypeJSON)
		}
	}
	return req, nil
}

func (c *HTTPClient) observe(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	metrics.RecordCRMRequest(method, path, statusCode, duration)
	for _, hook := range c.hooks {
		hook(ctx, method, path, statusCode, duration)
	}
}

// readBodyForError reads at most 64KB of an error body.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

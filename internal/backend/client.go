// Package backend is the resilient client for the shopping backend's HTTP
// surface: user profiles, shopping lists and spending analytics.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"shopping-assistant/internal/resilience"
)

const (
	DefaultDialTimeout     = 10 * time.Second
	DefaultCallTimeout     = 30 * time.Second
	DefaultMaxConnsPerHost = 20

	breakerName = "backend"
)

// ErrNotFound matches StatusErrors carrying a 404.
var ErrNotFound = errors.New("backend: not found")

var errMalformed = errors.New("malformed response body")

// StatusError captures a non-2xx backend response.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client calls the backend through a circuit breaker and retry policy, and
// serializes mutations per user.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	breaker     *resilience.Breaker
	retry       resilience.RetryPolicy
	locks       *resilience.UserLocks
	callTimeout time.Duration
	logger      *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBreaker shares a breaker, typically one from a resilience.Registry.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// WithRetryPolicy overrides attempts and base delay. Retryability is always
// decided by the client.
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

func WithUserLocks(l *resilience.UserLocks) Option {
	return func(c *Client) {
		c.locks = l
	}
}

// WithCallTimeout bounds each attempt.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.callTimeout = d
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: base URL must not be empty")
	}
	if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend: invalid base URL %q", baseURL)
	}
	c := &Client{
		baseURL:     baseURL,
		retry:       resilience.DefaultRetryPolicy(),
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: newTransport()}
	}
	if c.breaker == nil {
		c.breaker = resilience.NewBreaker(breakerName, resilience.BreakerConfig{})
	}
	if c.locks == nil {
		c.locks = resilience.NewUserLocks(0)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.callTimeout <= 0 {
		c.callTimeout = DefaultCallTimeout
	}
	return c, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxConnsPerHost:     DefaultMaxConnsPerHost,
		MaxIdleConnsPerHost: DefaultMaxConnsPerHost / 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: DefaultDialTimeout,
	}
}

// Breaker exposes the client's breaker for health reporting.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// do performs one logical call: breaker check, retried attempts, and breaker
// bookkeeping. Responses are decoded into out when it is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.breaker.Allow(); err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.breaker.Release()
			return fmt.Errorf("backend: marshal %s %s: %w", method, path, err)
		}
	}

	policy := c.retry
	policy.Retryable = retryable
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("backend call failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	u := c.baseURL + path
	err := resilience.Retry(ctx, policy, func(ctx context.Context, _ int) error {
		return c.attempt(ctx, method, u, payload, out)
	})
	c.settle(ctx, method, path, err)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, method, u string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &StatusError{StatusCode: res.StatusCode, URL: u, Body: string(buf)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

// settle reports a call's outcome to the breaker. A 4xx or malformed body
// proves the dependency is answering; a caller-side cancellation says
// nothing about it.
func (c *Client) settle(ctx context.Context, method, path string, err error) {
	switch {
	case err == nil, !retryable(err):
		if err != nil && ctx.Err() != nil {
			c.breaker.Release()
			return
		}
		c.breaker.RecordSuccess()
	case ctx.Err() != nil:
		c.breaker.Release()
	default:
		c.breaker.RecordFailure()
		c.logger.Error("backend call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("breaker", c.breaker.State().String()),
			zap.Error(err),
		)
	}
}

// retryable reports whether err is a transient failure: a 5xx, a timeout or
// a transport error. Cancellation by the caller is never retried.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, errMalformed) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

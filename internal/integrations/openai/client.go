// Package openai is a small OpenAI-compatible chat completions client. It
// serves as the assistant's decision oracle.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
)

const (
	DefaultRPS       = 5
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultTimeout   = 30 * time.Second
	decisionSystem   = "You make short, exact decisions for a grocery shopping assistant. Follow the answer format the user asks for and add nothing else."
	tokenParameter   = "/open-ai-token"
	modelParameter   = "/config/openai_model"
	maxErrorBodySize = 4096
)

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature *float64             `json:"temperature,omitempty"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Choices []struct {
		Index   int                `json:"index"`
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
}

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused OpenAI-compatible client for chat completions.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string
	model       string
	limiter     *rate.Limiter
	logger      *zap.Logger

	settingsOnce sync.Once
	apiKey       string
	settingsErr  error
}

var _ oracle.Decider = (*Client)(nil)

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithModel fixes the model instead of reading it from the parameter store.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = strings.TrimSpace(model)
	}
}

// WithRateLimit caps requests per second. A non-positive rps disables the
// limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new Client backed by the given Getter. The API key,
// and the model unless WithModel is given, are fetched on the first call and
// reused for the lifetime of the process.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		getter:      ps,
		paramPrefix: paramPrefix,
		limiter:     rate.NewLimiter(DefaultRPS, DefaultRPS),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

// resolveSettings fetches the API key and model on the first call and
// returns the cached result on every subsequent call.
func (c *Client) resolveSettings(ctx context.Context) (apiKey, model string, err error) {
	c.settingsOnce.Do(func() {
		c.apiKey, c.settingsErr = fetchAPIKeyFromParamStore(ctx, c.getter, c.paramPrefix+tokenParameter)
		if c.settingsErr != nil || c.model != "" {
			return
		}
		m, err := c.getter.GetParameter(ctx, c.paramPrefix+modelParameter)
		if err != nil {
			c.settingsErr = fmt.Errorf("openai: fetch model from paramstore: %w", err)
			return
		}
		c.model = strings.TrimSpace(m)
		if c.model == "" {
			c.settingsErr = errors.New("openai: model parameter is empty")
		}
	})
	return c.apiKey, c.model, c.settingsErr
}

// resolvedHTTPClient returns the configured HTTP client, or a default if none
// was set (e.g. in tests that nil out the field).
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// Decide sends one decision prompt and returns the raw answer text.
func (c *Client) Decide(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	site := oracle.SiteOf(prompt)
	temperature := 0.0
	if site == oracle.SiteResponse {
		temperature = 0.7
	}
	answer, err := c.complete(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: decisionSystem},
		{Role: domain.RoleUser, Content: oracle.Body(prompt)},
	}, &temperature)
	fields := []zap.Field{zap.String("site", string(site)), zap.Duration("duration", time.Since(start))}
	if err != nil {
		c.logger.Warn("oracle call failed", append(fields, zap.Error(err))...)
		return "", err
	}
	c.logger.Debug("oracle call", fields...)
	return answer, nil
}

// complete sends a conversation and returns the first choice's content. A nil
// temperature leaves the provider default.
func (c *Client) complete(ctx context.Context, messages []domain.ChatMessage, temperature *float64) (string, error) {
	apiKey, model, err := c.resolveSettings(ctx)
	if err != nil {
		return "", err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("openai: rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("openai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}

	var payload chatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("openai: decode response: %w", decErr)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return payload.Choices[0].Message.Content, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("openai: API token is empty")
	}
	return tp.Token, nil
}

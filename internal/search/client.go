// Package search queries the product similarity index.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/resilience"
)

const (
	DefaultCollection = "products"
	DefaultTimeout    = 15 * time.Second
	defaultCurrency   = "USD"
)

// StatusError captures a non-2xx index response.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type queryRequest struct {
	QueryTexts []string `json:"query_texts"`
	NResults   int      `json:"n_results"`
	Include    []string `json:"include"`
}

// Client runs similarity queries against one collection.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	breaker    *resilience.Breaker
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithCollection(name string) Option {
	return func(c *Client) {
		c.collection = strings.TrimSpace(name)
	}
}

func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("search: base URL must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		collection: DefaultCollection,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.collection == "" {
		return nil, errors.New("search: collection must not be empty")
	}
	if c.breaker == nil {
		c.breaker = resilience.NewBreaker("search", resilience.BreakerConfig{})
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

func (c *Client) queryURL() string {
	return c.baseURL + "/api/v1/collections/" + url.PathEscape(c.collection) + "/query"
}

// Search returns up to topK products most similar to query, best first.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search: query must not be empty")
	}
	if topK <= 0 {
		return nil, nil
	}
	if err := c.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	raw, err := c.query(ctx, query, topK)
	switch {
	case err == nil:
		c.breaker.RecordSuccess()
	case ctx.Err() != nil:
		c.breaker.Release()
	default:
		c.breaker.RecordFailure()
	}
	if err != nil {
		return nil, fmt.Errorf("search: query %q: %w", query, err)
	}

	products := parseProducts(raw)
	c.logger.Debug("search completed",
		zap.String("query", query),
		zap.Int("top_k", topK),
		zap.Int("results", len(products)),
	)
	return products, nil
}

func (c *Client) query(ctx context.Context, query string, topK int) ([]byte, error) {
	body, err := json.Marshal(queryRequest{
		QueryTexts: []string{query},
		NResults:   topK,
		Include:    []string{"documents", "metadatas", "distances"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	u := c.queryURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &StatusError{StatusCode: res.StatusCode, URL: u, Body: string(buf)}
	}
	buf, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if !gjson.ValidBytes(buf) {
		return nil, errors.New("invalid JSON response")
	}
	return buf, nil
}

// parseProducts reads the first result row of a query response. Rows are
// parallel arrays of ids, documents, metadatas and distances; entries
// without an id are skipped.
func parseProducts(raw []byte) []domain.Product {
	res := gjson.ParseBytes(raw)
	ids := res.Get("ids.0").Array()
	docs := res.Get("documents.0").Array()
	metas := res.Get("metadatas.0").Array()
	dists := res.Get("distances.0").Array()

	out := make([]domain.Product, 0, len(ids))
	for i, id := range ids {
		if id.String() == "" {
			continue
		}
		var doc, meta gjson.Result
		var dist float64
		if i < len(docs) {
			doc = docs[i]
		}
		if i < len(metas) {
			meta = metas[i]
		}
		if i < len(dists) {
			dist = dists[i].Float()
		}
		currency := meta.Get("currency").String()
		if currency == "" {
			currency = defaultCurrency
		}
		out = append(out, domain.Product{
			ID:           id.String(),
			Name:         productName(meta.Get("brand").String(), doc.String()),
			Category:     meta.Get("category").String(),
			Price:        meta.Get("price").Float(),
			Currency:     currency,
			Rating:       meta.Get("rating").Float(),
			Availability: meta.Get("availability").String(),
			Similarity:   min(max(1-dist, 0), 1),
			Scored:       i < len(dists),
		})
	}
	return out
}

// productName joins the brand with the title segment of an index document
// such as "Product: Whole Milk | Category: Dairy | ...".
func productName(brand, document string) string {
	title, _, _ := strings.Cut(document, "|")
	title = strings.TrimSpace(strings.Replace(title, "Product: ", "", 1))
	brand = strings.TrimSpace(brand)
	switch {
	case brand == "":
		return title
	case title == "":
		return brand
	}
	return brand + " " + title
}

// Package paramstore reads configuration and secrets from AWS SSM Parameter
// Store, caching each value for the life of the process.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/sync/singleflight"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface that wraps GetParameter.
// Consumers (e.g. the OpenAI client) should depend on this interface rather
// than the concrete *Client so they remain testable without real AWS calls.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type cached struct {
	value   string
	fetched time.Time
}

// Client wraps an AWS SSM API for parameter retrieval. Successful reads are
// cached; concurrent reads of an uncached name share one SSM call.
type Client struct {
	api ssmAPI
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	cache map[string]cached
	group singleflight.Group
}

type Option func(*Client)

// WithTTL expires cached values after d. Zero keeps them forever.
func WithTTL(d time.Duration) Option {
	return func(c *Client) {
		c.ttl = d
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	c := &Client{api: api, now: time.Now, cache: make(map[string]cached)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}
	if v, ok := c.lookup(name); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		if v, ok := c.lookup(name); ok {
			return v, nil
		}
		v, err := c.fetch(ctx, name)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.cache[name] = cached{value: v, fetched: c.now()}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) lookup(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.cache[name]
	if !ok {
		return "", false
	}
	if c.ttl > 0 && c.now().Sub(e.fetched) >= c.ttl {
		return "", false
	}
	return e.value, true
}

func (c *Client) fetch(ctx context.Context, name string) (string, error) {
	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

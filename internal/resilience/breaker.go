// Package resilience holds the failure-handling primitives shared by the
// backend client: a circuit breaker per dependency, retry with exponential
// backoff, and per-user mutual exclusion.
package resilience

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned by Allow while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

const (
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 60 * time.Second
)

// BreakerConfig configures a Breaker. Zero values take the defaults.
type BreakerConfig struct {
	FailureThreshold int
	OpenTimeout      time.Duration
	// Now is the clock; tests replace it.
	Now func() time.Time
	// OnStateChange is called after a transition, outside the breaker lock.
	OnStateChange func(name string, from, to State)
}

// Breaker guards one downstream dependency. After FailureThreshold
// consecutive failures it opens and rejects calls until OpenTimeout has
// elapsed since the last failure; it then admits a single probe whose outcome
// closes or re-opens it.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	probeInFlight bool

	calls      int64
	rejections int64
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{name: name, cfg: cfg, state: StateClosed}
}

// Name returns the dependency name the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Allow reports whether a call may proceed. A nil return obliges the caller
// to report the outcome with RecordSuccess, RecordFailure or Release.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var from, to State
	changed := false
	defer func() {
		b.mu.Unlock()
		if changed {
			b.notify(from, to)
		}
	}()

	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.lastFailure) < b.cfg.OpenTimeout {
			b.rejections++
			return ErrCircuitOpen
		}
		from, to, changed = b.state, StateHalfOpen, true
		b.state = StateHalfOpen
		b.probeInFlight = true
	case StateHalfOpen:
		if b.probeInFlight {
			b.rejections++
			return ErrCircuitOpen
		}
		b.probeInFlight = true
	}
	b.calls++
	return nil
}

// RecordSuccess closes the breaker and clears the failure run.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	from := b.state
	b.failures = 0
	b.probeInFlight = false
	b.state = StateClosed
	b.mu.Unlock()
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

// RecordFailure extends the failure run and opens the breaker when the run
// reaches the threshold, or immediately when the failed call was the probe.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	from := b.state
	b.failures++
	b.lastFailure = b.cfg.Now()
	b.probeInFlight = false
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
	}
	to := b.state
	b.mu.Unlock()
	if from != to {
		b.notify(from, to)
	}
}

// Release gives up an admitted call without an outcome, e.g. when the
// caller's context was cancelled. A half-open breaker admits a new probe.
func (b *Breaker) Release() {
	b.mu.Lock()
	b.probeInFlight = false
	b.mu.Unlock()
}

// State returns the current state. An open breaker whose timeout has elapsed
// reports HALF_OPEN; the transition itself happens on the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cfg.Now().Sub(b.lastFailure) >= b.cfg.OpenTimeout {
		return StateHalfOpen
	}
	return b.state
}

// IsOpen reports whether a call made now would be rejected without I/O.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		return b.cfg.Now().Sub(b.lastFailure) < b.cfg.OpenTimeout
	case StateHalfOpen:
		return b.probeInFlight
	}
	return false
}

// BreakerMetrics is a point-in-time snapshot of a Breaker.
type BreakerMetrics struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"lastFailure,omitzero"`
	Calls       int64     `json:"calls"`
	Rejections  int64     `json:"rejections"`
}

func (b *Breaker) Metrics() BreakerMetrics {
	state := b.State()
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerMetrics{
		Name:        b.name,
		State:       state.String(),
		Failures:    b.failures,
		LastFailure: b.lastFailure,
		Calls:       b.calls,
		Rejections:  b.rejections,
	}
}

func (b *Breaker) notify(from, to State) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// Registry hands out one long-lived Breaker per dependency name.
type Registry struct {
	cfg      BreakerConfig
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewRegistry(cfg BreakerConfig) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = NewBreaker(name, r.cfg)
	r.breakers[name] = b
	return b
}

// Metrics snapshots every registered breaker.
func (r *Registry) Metrics() []BreakerMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BreakerMetrics, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Metrics())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

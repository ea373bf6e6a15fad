// Package actions performs the side effects of a turn: shopping list
// changes, budget work, meal plans, nutrition analysis and comparisons.
// Every external call is best-effort; failures become user-visible notes.
package actions

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shopping-assistant/internal/backend"
	"shopping-assistant/internal/discovery"
	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
)

// Backend is the subset of the backend client the executor uses.
type Backend interface {
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
	GetList(ctx context.Context, userID string) ([]domain.ListItem, error)
	AddItem(ctx context.Context, userID, productID string, qty int) backend.MutationResult
	RemoveItem(ctx context.Context, userID, itemID string) backend.MutationResult
	ClearList(ctx context.Context, userID string) backend.ClearResult
	GetSpending(ctx context.Context, userID string) (map[string]float64, error)
	SetBudgetLimit(ctx context.Context, p domain.Profile, limit float64) backend.MutationResult
}

// Searcher runs one similarity search.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]domain.Product, error)
}

// Request carries what the executor needs from the turn. Discovery is nil
// when the turn skipped product discovery.
type Request struct {
	UserID          string
	Message         string
	Intent          domain.Intent
	Profile         domain.Profile
	History         []domain.ChatMessage
	Discovery       *discovery.Result
	ContextProducts []domain.Product
}

// Outcome is the executor's contribution to the turn.
type Outcome struct {
	Profile         domain.Profile
	List            []domain.ListItem
	Actions         []string
	Recommendations []domain.Recommendation
	Trace           []string
	// LastAction summarizes the side effect performed, if any.
	LastAction string
}

// Executor dispatches a turn's intent to its action handler.
type Executor struct {
	backend  Backend
	searcher Searcher
	decider  oracle.Decider
	taxonomy *discovery.Taxonomy
	logger   *zap.Logger
}

type Option func(*Executor)

func WithTaxonomy(t *discovery.Taxonomy) Option {
	return func(e *Executor) {
		e.taxonomy = t
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

func NewExecutor(b Backend, s Searcher, d oracle.Decider, opts ...Option) (*Executor, error) {
	if b == nil {
		return nil, errors.New("actions: backend must not be nil")
	}
	if s == nil {
		return nil, errors.New("actions: searcher must not be nil")
	}
	if d == nil {
		return nil, errors.New("actions: decider must not be nil")
	}
	e := &Executor{backend: b, searcher: s, decider: d}
	for _, opt := range opts {
		opt(e)
	}
	if e.taxonomy == nil {
		e.taxonomy = discovery.DefaultTaxonomy()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// run accumulates one Execute call's outcome.
type run struct {
	req Request
	out Outcome
}

func (r *run) act(format string, args ...any) {
	r.out.Actions = append(r.out.Actions, fmt.Sprintf(format, args...))
}

func (r *run) note(format string, args ...any) {
	r.out.Trace = append(r.out.Trace, fmt.Sprintf(format, args...))
}

func (r *run) recommend(rec domain.Recommendation) {
	r.out.Recommendations = append(r.out.Recommendations, rec)
}

func (r *run) discovered() []domain.Product {
	if r.req.Discovery == nil {
		return nil
	}
	return r.req.Discovery.Products
}

// Execute loads the profile and list, then runs the intent's handler.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	r := &run{req: req}
	r.out.Profile = e.loadProfile(ctx, r)
	r.out.List = e.loadList(ctx, r)

	switch req.Intent {
	case domain.IntentShoppingList:
		e.manageList(ctx, r)
	case domain.IntentBudgetAnalysis:
		e.budget(ctx, r)
	case domain.IntentMealPlanning:
		e.mealPlanning(ctx, r)
	case domain.IntentNutrition:
		e.nutrition(ctx, r)
	case domain.IntentComparison:
		e.compare(ctx, r)
	default:
		r.note("No actions needed for %s", req.Intent)
	}
	return r.out
}

func (e *Executor) loadProfile(ctx context.Context, r *run) domain.Profile {
	if r.req.Profile.Loaded() {
		return r.req.Profile
	}
	p, err := e.backend.GetProfile(ctx, r.req.UserID)
	if err != nil {
		e.logger.Warn("failed to load profile", zap.String("user_id", r.req.UserID), zap.Error(err))
		r.note("Could not load user profile; using defaults")
		return domain.Profile{UserID: r.req.UserID}
	}
	return p
}

func (e *Executor) loadList(ctx context.Context, r *run) []domain.ListItem {
	items, err := e.backend.GetList(ctx, r.req.UserID)
	if err != nil {
		e.logger.Warn("failed to load shopping list", zap.String("user_id", r.req.UserID), zap.Error(err))
		r.act("Failed to retrieve shopping list")
		return []domain.ListItem{}
	}
	return items
}

// refreshList re-reads the list after a mutation, keeping the previous
// snapshot on failure.
func (e *Executor) refreshList(ctx context.Context, r *run) {
	items, err := e.backend.GetList(ctx, r.req.UserID)
	if err != nil {
		r.note("Could not refresh shopping list after update")
		return
	}
	r.out.List = items
}

// decide asks the oracle at site and reads a single label from allowed,
// falling back to fallback on any failure.
func (e *Executor) decide(ctx context.Context, r *run, site oracle.Site, body string, allowed []string, fallback string) string {
	raw, err := e.decider.Decide(ctx, oracle.Prompt(site, body))
	if err != nil {
		e.logger.Warn("oracle decision failed", zap.String("site", string(site)), zap.Error(err))
		r.note("Decision for %s unavailable; defaulting to %s", site, fallback)
		return fallback
	}
	label := oracle.Label(raw, allowed, fallback)
	r.note("Decided %s: %s", site, label)
	return label
}

// Package assistant runs one conversational turn through a fixed stage
// graph: intent analysis, optional product discovery, actions,
// recommendations and the final response.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shopping-assistant/internal/actions"
	"shopping-assistant/internal/discovery"
	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
)

const (
	DefaultTurnTimeout = 90 * time.Second

	// ApologyText is the response when no better answer can be produced.
	ApologyText = "I apologize, but I encountered an error. Please try again."
)

// Discoverer finds products for a query.
type Discoverer interface {
	Discover(ctx context.Context, req discovery.Request) discovery.Result
}

// Executor performs a turn's side effects.
type Executor interface {
	Execute(ctx context.Context, req actions.Request) actions.Outcome
}

// ProfileLoader reads a user's stored profile.
type ProfileLoader interface {
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
}

// TurnInput is everything the caller carries between turns. A nil Context
// starts a fresh conversation.
type TurnInput struct {
	UserID         string
	Message        string
	Profile        domain.Profile
	History        []domain.ChatMessage
	RecentProducts []domain.Product
	Context        *domain.ConversationContext
}

// TurnOutput is one turn's result. History and Context are what the caller
// persists for the next turn.
type TurnOutput struct {
	Response        string
	Products        []domain.Product
	Recommendations []domain.Recommendation
	Actions         []string
	Trace           []string
	Intent          domain.Intent
	History         []domain.ChatMessage
	Context         domain.ConversationContext
	Success         bool
	Error           string
}

// Assistant owns the stage graph and its collaborators.
type Assistant struct {
	discoverer  Discoverer
	executor    Executor
	decider     oracle.Decider
	profiles    ProfileLoader
	graph       *Graph
	turnTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

type Option func(*Assistant)

func WithTurnTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		a.turnTimeout = d
	}
}

// WithProfiles loads the stored profile at the start of a turn whose input
// carries none, so discovery filters by the user's restrictions and budget.
func WithProfiles(p ProfileLoader) Option {
	return func(a *Assistant) {
		a.profiles = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Assistant) {
		a.now = now
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) {
		a.logger = l
	}
}

func New(d Discoverer, e Executor, o oracle.Decider, opts ...Option) (*Assistant, error) {
	if d == nil {
		return nil, errors.New("assistant: discoverer must not be nil")
	}
	if e == nil {
		return nil, errors.New("assistant: executor must not be nil")
	}
	if o == nil {
		return nil, errors.New("assistant: decider must not be nil")
	}
	a := &Assistant{
		discoverer:  d,
		executor:    e,
		decider:     o,
		turnTimeout: DefaultTurnTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	g, err := a.buildGraph()
	if err != nil {
		return nil, err
	}
	a.graph = g
	return a, nil
}

func (a *Assistant) buildGraph() (*Graph, error) {
	stages := []Stage{
		{Name: StageAnalyzeIntent, Run: a.analyzeIntent, Fallback: intentFallback},
		{Name: StageDiscover, Run: a.discoverProducts, Fallback: discoverFallback},
		{Name: StageExecute, Run: a.executeActions},
		{Name: StageRecommend, Run: a.generateRecommendations},
		{Name: StageRespond, Run: a.formulateResponse, Fallback: respondFallback},
	}
	edges := []Edge{
		{From: StageAnalyzeIntent, Route: routeAfterIntent, Targets: []StageName{StageDiscover, StageExecute}},
		{From: StageDiscover, To: StageExecute},
		{From: StageExecute, To: StageRecommend},
		{From: StageRecommend, To: StageRespond},
	}
	return NewGraph(StageAnalyzeIntent, stages, edges, a.logger)
}

// HandleTurn runs one turn under the turn deadline. It always returns a
// response; a failure that escapes the graph yields the apology text,
// Success false, and the caller's history and context unchanged.
func (a *Assistant) HandleTurn(ctx context.Context, in TurnInput) (out TurnOutput) {
	start := a.now()
	logger := a.logger.With(zap.String("user_id", in.UserID))

	prior := domain.NewConversationContext()
	if in.Context != nil {
		prior = in.Context.Clone()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("turn failed", zap.Any("panic", r))
			out = failedTurn(in, prior, fmt.Errorf("%v", r))
		}
	}()

	if a.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.turnTimeout)
		defer cancel()
	}

	state := a.graph.Run(ctx, TurnState{
		UserID:         in.UserID,
		Message:        in.Message,
		Profile:        in.Profile,
		History:        in.History,
		RecentProducts: in.RecentProducts,
		Context:        prior.Clone(),
	})

	logger.Info("turn complete",
		zap.String("intent", string(state.Intent)),
		zap.Int("products", len(state.Products)),
		zap.Int("actions", len(state.Actions)),
		zap.Duration("duration", a.now().Sub(start)),
	)

	history := append(append([]domain.ChatMessage(nil), in.History...),
		domain.ChatMessage{Role: domain.RoleUser, Content: in.Message},
		domain.ChatMessage{Role: domain.RoleAssistant, Content: state.Response},
	)
	return TurnOutput{
		Response:        state.Response,
		Products:        nonNil(state.Products),
		Recommendations: nonNil(state.Recommendations),
		Actions:         nonNil(state.Actions),
		Trace:           nonNil(state.Trace),
		Intent:          state.Intent,
		History:         history,
		Context:         state.Context,
		Success:         true,
	}
}

func failedTurn(in TurnInput, prior domain.ConversationContext, err error) TurnOutput {
	return TurnOutput{
		Response:        ApologyText,
		Products:        []domain.Product{},
		Recommendations: []domain.Recommendation{},
		Actions:         []string{"Error occurred during processing"},
		Trace:           []string{"Error occurred during processing: " + err.Error()},
		Intent:          domain.IntentError,
		History:         append([]domain.ChatMessage(nil), in.History...),
		Context:         prior,
		Success:         false,
		Error:           err.Error(),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Package app wires the assistant's collaborators from Config. Both binaries
// build through it.
package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shopping-assistant/internal/actions"
	"shopping-assistant/internal/assistant"
	"shopping-assistant/internal/backend"
	"shopping-assistant/internal/config"
	"shopping-assistant/internal/discovery"
	"shopping-assistant/internal/integrations/openai"
	"shopping-assistant/internal/oracle"
	"shopping-assistant/internal/resilience"
	"shopping-assistant/internal/search"
	"shopping-assistant/internal/usecase"
)

// App is the assembled service.
type App struct {
	Chat     *usecase.ChatService
	Backend  *backend.Client
	Breakers *resilience.Registry
}

// Deps are the collaborators that depend on the runtime environment.
// Decider is optional; when nil an OpenAI client is built from Params.
type Deps struct {
	Params   openai.Getter
	Sessions usecase.SessionStore
	Decider  oracle.Decider
	Logger   *zap.Logger
}

func New(cfg config.Config, deps Deps) (*App, error) {
	if deps.Sessions == nil {
		return nil, errors.New("app: session store must not be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	breakers := resilience.NewRegistry(resilience.BreakerConfig{
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	decider := deps.Decider
	if decider == nil {
		if deps.Params == nil {
			return nil, errors.New("app: params getter must not be nil")
		}
		opts := []openai.Option{
			openai.WithRateLimit(cfg.OracleRPS),
			openai.WithLogger(logger.Named("openai")),
		}
		if cfg.OpenAIModel != "" {
			opts = append(opts, openai.WithModel(cfg.OpenAIModel))
		}
		llm, err := openai.NewClient(deps.Params, cfg.ParamPrefix, opts...)
		if err != nil {
			return nil, fmt.Errorf("app: openai client: %w", err)
		}
		decider = llm
	}
	decider = oracle.WithTimeout(decider, cfg.OracleTimeout)

	backendClient, err := backend.NewClient(cfg.BackendBaseURL,
		backend.WithBreaker(breakers.Get("backend")),
		backend.WithUserLocks(resilience.NewUserLocks(cfg.LockShards)),
		backend.WithLogger(logger.Named("backend")),
	)
	if err != nil {
		return nil, fmt.Errorf("app: backend client: %w", err)
	}

	searchClient, err := search.NewClient(cfg.SearchBaseURL,
		search.WithBreaker(breakers.Get("search")),
		search.WithLogger(logger.Named("search")),
	)
	if err != nil {
		return nil, fmt.Errorf("app: search client: %w", err)
	}

	taxonomy := discovery.DefaultTaxonomy()
	pipeline, err := discovery.NewPipeline(searchClient, decider,
		discovery.WithMaxResults(cfg.MaxProducts),
		discovery.WithTaxonomy(taxonomy),
		discovery.WithLogger(logger.Named("discovery")),
	)
	if err != nil {
		return nil, fmt.Errorf("app: discovery pipeline: %w", err)
	}

	executor, err := actions.NewExecutor(backendClient, searchClient, decider,
		actions.WithTaxonomy(taxonomy),
		actions.WithLogger(logger.Named("actions")),
	)
	if err != nil {
		return nil, fmt.Errorf("app: action executor: %w", err)
	}

	asst, err := assistant.New(pipeline, executor, decider,
		assistant.WithProfiles(backendClient),
		assistant.WithTurnTimeout(cfg.TurnTimeout),
		assistant.WithLogger(logger.Named("assistant")),
	)
	if err != nil {
		return nil, fmt.Errorf("app: assistant: %w", err)
	}

	chat, err := usecase.NewChatService(asst, deps.Sessions,
		usecase.WithLimits(cfg.MaxHistory, cfg.MaxMessageLen),
		usecase.WithLogger(logger.Named("chat")),
	)
	if err != nil {
		return nil, fmt.Errorf("app: chat service: %w", err)
	}

	return &App{Chat: chat, Backend: backendClient, Breakers: breakers}, nil
}

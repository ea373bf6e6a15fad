package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"shopping-assistant/internal/actions"
	"shopping-assistant/internal/discovery"
	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
)

const (
	recommendationCount = 3

	referenceContextual = "CONTEXTUAL_ADD"
	referenceNew        = "NEW_REQUEST"
	referenceUnclear    = "UNCLEAR"
)

var referenceLabels = []string{referenceContextual, referenceNew, referenceUnclear}

// analyzeIntent decays the context once, classifies the message and applies
// the context override for references to earlier products.
func (a *Assistant) analyzeIntent(ctx context.Context, s TurnState) (TurnState, error) {
	s.think("Analyzing user intent for: '%s'", s.Message)
	a.loadProfile(ctx, &s)
	s.Context.Decay()

	valid := s.Context.HasValidContext()
	if valid {
		s.think("Valid context available (score: %.2f)", s.Context.RelevanceScore)
	}

	intent := domain.IntentGeneralChat
	raw, err := a.decider.Decide(ctx, oracle.Prompt(oracle.SiteIntent, intentPrompt(s)))
	if err != nil {
		a.logger.Warn("intent classification failed", zap.String("user_id", s.UserID), zap.Error(err))
		s.think("Intent classification unavailable; defaulting to %s", intent)
	} else {
		intent = domain.Intent(oracle.Label(raw, intentLabels(), string(domain.IntentGeneralChat)))
	}

	if valid && intent != domain.IntentShoppingList && a.refersToContext(ctx, &s) {
		s.think("Context override: message refers to %d recent products", len(s.Context.LastProducts))
		intent = domain.IntentShoppingList
	}

	s.Intent = intent
	s.Query = s.Message
	s.think("Final intent: %s", intent)
	return s, nil
}

func (a *Assistant) loadProfile(ctx context.Context, s *TurnState) {
	if s.Profile.Loaded() || a.profiles == nil {
		return
	}
	p, err := a.profiles.GetProfile(ctx, s.UserID)
	if err != nil {
		a.logger.Warn("failed to load profile", zap.String("user_id", s.UserID), zap.Error(err))
		s.think("Could not load user profile; using defaults")
		s.Profile = domain.Profile{UserID: s.UserID}
		return
	}
	if p.UserID == "" {
		p.UserID = s.UserID
	}
	s.Profile = p
	s.think("Loaded profile (%d dietary restrictions, budget %.2f)", len(p.DietaryRestrictions), p.BudgetLimit)
}

func (a *Assistant) refersToContext(ctx context.Context, s *TurnState) bool {
	if IsReferential(s.Message) {
		return true
	}
	raw, err := a.decider.Decide(ctx, oracle.Prompt(oracle.SiteReference, referencePrompt(*s)))
	if err != nil {
		s.think("Reference check unavailable")
		return false
	}
	return oracle.Label(raw, referenceLabels, referenceUnclear) == referenceContextual
}

func intentFallback(s TurnState, _ error) TurnState {
	s.Intent = domain.IntentGeneralChat
	s.Query = s.Message
	return s
}

func (a *Assistant) discoverProducts(ctx context.Context, s TurnState) (TurnState, error) {
	query := strings.TrimSpace(s.Query)
	if query == "" {
		return s, errors.New("empty search query")
	}
	s.think("Discovering products for '%s'", query)
	res := a.discoverer.Discover(ctx, discovery.Request{
		Query:        query,
		Restrictions: s.Profile.DietaryRestrictions,
		BudgetLimit:  s.Profile.BudgetLimit,
	})
	s.Trace = append(s.Trace, res.Trace...)
	s.Discovery = &res
	s.Products = append([]domain.Product(nil), res.Products...)
	if len(res.Products) > 0 {
		s.Context.UpdateProducts(res.Products, s.Intent)
	}
	s.think("Found %d products using %s", len(res.Products), res.Strategy)
	return s, nil
}

func discoverFallback(s TurnState, _ error) TurnState {
	s.Discovery = nil
	s.Products = nil
	return s
}

func (a *Assistant) executeActions(ctx context.Context, s TurnState) (TurnState, error) {
	remembered := s.Context.ContextualProducts()
	if len(remembered) == 0 {
		remembered = s.RecentProducts
	}
	out := a.executor.Execute(ctx, actions.Request{
		UserID:          s.UserID,
		Message:         s.Message,
		Intent:          s.Intent,
		Profile:         s.Profile,
		History:         s.History,
		Discovery:       s.Discovery,
		ContextProducts: remembered,
	})
	s.Profile = out.Profile
	s.List = out.List
	s.Actions = append(s.Actions, out.Actions...)
	s.Recommendations = append(s.Recommendations, out.Recommendations...)
	s.Trace = append(s.Trace, out.Trace...)
	if out.LastAction != "" {
		s.LastAction = out.LastAction
		s.Context.RecordAction(out.LastAction, a.now())
	}
	return s, nil
}

func (a *Assistant) generateRecommendations(_ context.Context, s TurnState) (TurnState, error) {
	if len(s.Recommendations) == 0 {
		for _, p := range s.Products[:min(recommendationCount, len(s.Products))] {
			s.Recommendations = append(s.Recommendations, domain.Recommendation{
				Kind:    domain.KindProduct,
				Title:   p.Name,
				Reason:  fmt.Sprintf("Matches your search for '%s'", s.Query),
				Product: &p,
			})
		}
	}
	s.think("Generated %d recommendations", len(s.Recommendations))
	return s, nil
}

func (a *Assistant) formulateResponse(ctx context.Context, s TurnState) (TurnState, error) {
	prompt, err := responsePrompt(s)
	if err != nil {
		return s, err
	}
	text, err := a.decider.Decide(ctx, oracle.Prompt(oracle.SiteResponse, prompt))
	if err != nil {
		return s, fmt.Errorf("render response: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return s, errors.New("empty response")
	}
	s.Response = text
	s.think("Response generated successfully")
	return s, nil
}

func respondFallback(s TurnState, _ error) TurnState {
	s.Response = ApologyText
	return s
}

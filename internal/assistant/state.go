package assistant

import (
	"fmt"

	"shopping-assistant/internal/discovery"
	"shopping-assistant/internal/domain"
)

// TurnState is the value threaded through the stage graph. Stages receive
// their own copy and return a complete new state; fields a stage does not
// own are passed through untouched.
type TurnState struct {
	UserID         string
	Message        string
	Profile        domain.Profile
	History        []domain.ChatMessage
	RecentProducts []domain.Product
	Context        domain.ConversationContext

	// Set by AnalyzeIntent.
	Intent domain.Intent
	Query  string

	// Set by DiscoverProducts. Discovery is nil when the stage did not run.
	Discovery *discovery.Result
	Products  []domain.Product

	// Set by ExecuteActions and GenerateRecommendations.
	List            []domain.ListItem
	Actions         []string
	Recommendations []domain.Recommendation
	LastAction      string

	// Set by FormulateResponse.
	Response string

	Trace []string
}

func (s TurnState) clone() TurnState {
	s.History = append([]domain.ChatMessage(nil), s.History...)
	s.RecentProducts = append([]domain.Product(nil), s.RecentProducts...)
	s.Context = s.Context.Clone()
	s.Products = append([]domain.Product(nil), s.Products...)
	s.List = append([]domain.ListItem(nil), s.List...)
	s.Actions = append([]string(nil), s.Actions...)
	s.Recommendations = append([]domain.Recommendation(nil), s.Recommendations...)
	s.Trace = append([]string(nil), s.Trace...)
	if s.Discovery != nil {
		d := *s.Discovery
		s.Discovery = &d
	}
	return s
}

func (s *TurnState) think(format string, args ...any) {
	s.Trace = append(s.Trace, fmt.Sprintf(format, args...))
}

package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"shopping-assistant/internal/domain"
)

const (
	historyTurns     = 6
	responseProducts = 3
)

func historyText(history []domain.ChatMessage) string {
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) == 0 {
		return "(no prior messages)"
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		role := "Assistant"
		if m.Role == domain.RoleUser {
			role = "User"
		}
		lines = append(lines, role+": "+strings.TrimSpace(m.Content))
	}
	return strings.Join(lines, "\n")
}

func intentLabels() []string {
	out := make([]string, 0, len(domain.Intents))
	for _, in := range domain.Intents {
		out = append(out, string(in))
	}
	return out
}

func intentPrompt(s TurnState) string {
	return strings.Join([]string{
		"Classify the shopper's message into exactly one intent.",
		"",
		"product_discovery: looking for products, ingredients for a dish, or recommendations",
		"shopping_list_management: adding, removing, viewing or clearing list items, including \"add those\"",
		"meal_planning: planning meals or recipes",
		"budget_analysis: spending, budgets, saving money",
		"nutrition_analysis: health and nutrition of products or the list",
		"comparison: comparing products, prices or alternatives",
		"general_chat: anything else",
		"",
		"Recent conversation:",
		historyText(s.History),
		"",
		"Message: " + s.Message,
		"",
		"Respond with ONLY the intent name.",
	}, "\n")
}

func referencePrompt(s TurnState) string {
	return strings.Join([]string{
		"Decide whether the shopper is referring to items from the recent conversation.",
		"",
		"Message: " + s.Message,
		"",
		"Recent conversation:",
		historyText(s.History),
		"",
		fmt.Sprintf("Context score: %.2f", s.Context.RelevanceScore),
		"",
		"CONTEXTUAL_ADD: they want to add previously discussed items (\"add those\", \"I'll take them\")",
		"NEW_REQUEST: a new request",
		"UNCLEAR: ambiguous",
		"",
		"Respond with exactly one of: CONTEXTUAL_ADD, NEW_REQUEST, UNCLEAR",
	}, "\n")
}

type responseFacts struct {
	Profile         domain.Profile          `json:"profile"`
	Intent          domain.Intent           `json:"intent"`
	Strategy        string                  `json:"searchStrategy,omitempty"`
	IsDish          bool                    `json:"isDishRequest"`
	Primary         string                  `json:"primarySearch,omitempty"`
	Secondary       []string                `json:"secondarySearches,omitempty"`
	Products        []domain.Product        `json:"products"`
	List            []domain.ListItem       `json:"shoppingList"`
	Actions         []string                `json:"actionsTaken"`
	Recommendations []domain.Recommendation `json:"recommendations,omitempty"`
}

func responsePrompt(s TurnState) (string, error) {
	facts := responseFacts{
		Profile:         s.Profile,
		Intent:          s.Intent,
		Products:        s.Products[:min(responseProducts, len(s.Products))],
		List:            s.List,
		Actions:         s.Actions,
		Recommendations: s.Recommendations,
	}
	if d := s.Discovery; d != nil {
		facts.Strategy = string(d.Strategy)
		facts.IsDish = d.IsDish
		facts.Primary = d.Primary
		facts.Secondary = d.Secondary
	}
	raw, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("assistant: marshal response facts: %w", err)
	}
	return strings.Join([]string{
		"You are a friendly grocery shopping assistant. Reply to the shopper in a few sentences.",
		"Only mention products, prices and list changes that appear in the facts below.",
		"Narrate partial failures honestly, for example \"3 items added, 1 could not be added\".",
		"",
		"Recent conversation:",
		historyText(s.History),
		"",
		"Shopper: " + s.Message,
		"",
		"Facts:",
		string(raw),
		"",
		"Reasoning so far:",
		strings.Join(s.Trace, "\n"),
	}, "\n"), nil
}

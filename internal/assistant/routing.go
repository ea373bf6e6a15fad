package assistant

import (
	"strings"

	"shopping-assistant/internal/domain"
)

// referentialPhrases mark an utterance as pointing at recently discussed
// products.
var referentialPhrases = []string{
	"those", "these", "them", "add the ingredients", "add everything",
	"add them all", "the rest", "i'll take",
}

// listManagementWords mark list requests that never need a fresh search.
var listManagementWords = []string{
	"show", "view", "see", "list", "remove", "delete", "clear", "empty",
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// IsReferential reports whether message refers back to earlier products.
func IsReferential(message string) bool {
	return containsAny(strings.ToLower(message), referentialPhrases)
}

// looksLikeSearch reports whether a list request names new products rather
// than managing the existing list.
func looksLikeSearch(message string) bool {
	m := strings.ToLower(message)
	if containsAny(m, referentialPhrases) {
		return false
	}
	return !containsAny(m, listManagementWords)
}

// Route picks the stage after intent analysis.
func Route(intent domain.Intent, validContext bool, message string) StageName {
	switch intent {
	case domain.IntentProductDiscovery, domain.IntentComparison, domain.IntentMealPlanning:
		return StageDiscover
	case domain.IntentShoppingList:
		if !validContext && looksLikeSearch(message) {
			return StageDiscover
		}
		return StageExecute
	default:
		return StageExecute
	}
}

func routeAfterIntent(s TurnState) StageName {
	return Route(s.Intent, s.Context.HasValidContext(), s.Message)
}

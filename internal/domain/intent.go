package domain

// Intent is the resolved purpose of a turn.
type Intent string

const (
	IntentProductDiscovery Intent = "product_discovery"
	IntentShoppingList     Intent = "shopping_list_management"
	IntentMealPlanning     Intent = "meal_planning"
	IntentBudgetAnalysis   Intent = "budget_analysis"
	IntentNutrition        Intent = "nutrition_analysis"
	IntentComparison       Intent = "comparison"
	IntentGeneralChat      Intent = "general_chat"

	// IntentError is reported only on turns that failed outright.
	IntentError Intent = "error"
)

// Intents lists the labels the intent classifier may answer with.
var Intents = []Intent{
	IntentProductDiscovery,
	IntentShoppingList,
	IntentMealPlanning,
	IntentBudgetAnalysis,
	IntentNutrition,
	IntentComparison,
	IntentGeneralChat,
}

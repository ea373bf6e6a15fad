package actions

import (
	"fmt"
	"strings"

	"shopping-assistant/internal/domain"
)

const (
	historyTurns   = 6
	promptProducts = 15
)

var (
	listActions = []string{
		ActionClearList, ActionAddContextual, ActionAddSpecific,
		ActionRemoveSpecific, ActionViewList, ActionNone,
	}
	budgetActions = []string{
		ActionGetSpending, ActionOptimizeList, ActionSetBudget, ActionBudgetAdvice, ActionNone,
	}
	mealActions = []string{
		ActionBreakfastPlan, ActionLunchPlan, ActionDinnerPlan, ActionFullMealPlan,
		ActionMealPrep, ActionDietaryMeals, ActionQuickRecipe, ActionIngredientList, ActionNone,
	}
	nutritionActions = []string{
		ActionAnalyzeList, ActionAnalyzeProducts, ActionHealthRecommendations,
		ActionDietaryCheck, ActionNutritionEducation, ActionNone,
	}
	comparisonActions = []string{
		ActionFindAlternatives, ActionDietaryAlternatives, ActionBrandComparison,
		ActionPriceComparison, ActionFeatureComparison, ActionNone,
	}
)

const (
	ActionNone = "NO_ACTION"

	ActionClearList      = "CLEAR_LIST"
	ActionAddContextual  = "ADD_CONTEXTUAL_PRODUCTS"
	ActionAddSpecific    = "ADD_SPECIFIC_ITEMS"
	ActionRemoveSpecific = "REMOVE_SPECIFIC"
	ActionViewList       = "VIEW_LIST"

	ActionGetSpending  = "GET_SPENDING"
	ActionOptimizeList = "OPTIMIZE_LIST"
	ActionSetBudget    = "SET_BUDGET"
	ActionBudgetAdvice = "BUDGET_ADVICE"

	ActionBreakfastPlan  = "BREAKFAST_PLAN"
	ActionLunchPlan      = "LUNCH_PLAN"
	ActionDinnerPlan     = "DINNER_PLAN"
	ActionFullMealPlan   = "FULL_MEAL_PLAN"
	ActionMealPrep       = "MEAL_PREP"
	ActionDietaryMeals   = "DIETARY_MEALS"
	ActionQuickRecipe    = "QUICK_RECIPE"
	ActionIngredientList = "INGREDIENT_LIST"

	ActionAnalyzeList           = "ANALYZE_SHOPPING_LIST"
	ActionAnalyzeProducts       = "ANALYZE_PRODUCTS"
	ActionHealthRecommendations = "HEALTH_RECOMMENDATIONS"
	ActionDietaryCheck          = "DIETARY_CHECK"
	ActionNutritionEducation    = "NUTRITION_EDUCATION"

	ActionFindAlternatives    = "FIND_ALTERNATIVES"
	ActionDietaryAlternatives = "DIETARY_ALTERNATIVES"
	ActionBrandComparison     = "BRAND_COMPARISON"
	ActionPriceComparison     = "PRICE_COMPARISON"
	ActionFeatureComparison   = "FEATURE_COMPARISON"
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
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, strings.TrimSpace(m.Content)))
	}
	return strings.Join(lines, "\n")
}

func productText(products []domain.Product) string {
	if len(products) > promptProducts {
		products = products[:promptProducts]
	}
	if len(products) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(products))
	for _, p := range products {
		lines = append(lines, fmt.Sprintf("- %s (category: %s, $%.2f)", p.Name, p.Category, p.Price))
	}
	return strings.Join(lines, "\n")
}

func listText(items []domain.ListItem) string {
	if len(items) == 0 {
		return "(empty)"
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("- %s x%d", it.Name, it.Quantity))
	}
	return strings.Join(lines, "\n")
}

func choicePrompt(task string, r *run, options []string, extra ...string) string {
	parts := []string{
		task,
		"",
		"User message: " + r.req.Message,
		"",
		"Recent conversation:",
		historyText(r.req.History),
		"",
		"Products from this turn's search:",
		productText(r.discovered()),
		"",
		"Products from earlier in the conversation:",
		productText(r.req.ContextProducts),
		"",
		"Current shopping list:",
		listText(r.out.List),
	}
	parts = append(parts, extra...)
	parts = append(parts,
		"",
		"Respond with exactly one of: "+strings.Join(options, ", "),
	)
	return strings.Join(parts, "\n")
}

func listPrompt(r *run) string {
	return choicePrompt("Decide what the user wants to do with their shopping list.", r, listActions,
		"",
		"CLEAR_LIST: empty the whole list",
		"ADD_CONTEXTUAL_PRODUCTS: add products we just discussed (\"add those\", \"add them all\")",
		"ADD_SPECIFIC_ITEMS: add items the user names explicitly",
		"REMOVE_SPECIFIC: remove named items",
		"VIEW_LIST: show the list",
		"NO_ACTION: none of the above",
	)
}

func itemsPrompt(r *run, purpose string) string {
	return strings.Join([]string{
		"Extract the grocery items the user wants to " + purpose + ".",
		"",
		"User message: " + r.req.Message,
		"",
		"Recent conversation:",
		historyText(r.req.History),
		"",
		"If the user refers to a dish discussed earlier, list its missing ingredients.",
		"Answer with one line: ITEMS: item one, item two",
		"Name at most 4 items. Answer ITEMS: NONE if nothing specific is named.",
	}, "\n")
}

func budgetPrompt(r *run) string {
	limit := "not set"
	if r.out.Profile.BudgetLimit > 0 {
		limit = fmt.Sprintf("$%.2f", r.out.Profile.BudgetLimit)
	}
	return choicePrompt("Decide what budget help the user wants.", r, budgetActions,
		"",
		"User budget limit: "+limit,
		"GET_SPENDING: show spending by category",
		"OPTIMIZE_LIST: fit the shopping list under the budget",
		"SET_BUDGET: change the budget limit",
		"BUDGET_ADVICE: general advice on saving money",
	)
}

func mealPrompt(r *run) string {
	return choicePrompt("Decide what meal planning help the user wants.", r, mealActions,
		"",
		"BREAKFAST_PLAN, LUNCH_PLAN, DINNER_PLAN: ideas for one meal",
		"FULL_MEAL_PLAN: a week of meals",
		"MEAL_PREP: a few days of batch cooking",
		"DIETARY_MEALS: meals for their dietary restrictions",
		"QUICK_RECIPE: one fast recipe",
		"INGREDIENT_LIST: ingredients for a dish",
	)
}

func nutritionPrompt(r *run) string {
	return choicePrompt("Decide what nutrition help the user wants.", r, nutritionActions,
		"",
		"ANALYZE_SHOPPING_LIST: nutrition balance of the shopping list",
		"ANALYZE_PRODUCTS: nutrition of the products found",
		"HEALTH_RECOMMENDATIONS: suggestions for a healthier list",
		"DIETARY_CHECK: check the list against dietary restrictions",
		"NUTRITION_EDUCATION: general nutrition information",
	)
}

func comparisonPrompt(r *run) string {
	return choicePrompt("Decide what comparison the user wants.", r, comparisonActions,
		"",
		"FIND_ALTERNATIVES: similar products",
		"DIETARY_ALTERNATIVES: similar products that fit their diet",
		"BRAND_COMPARISON: compare brands of the top products",
		"PRICE_COMPARISON: compare prices",
		"FEATURE_COMPARISON: compare price, rating and category",
	)
}

package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"shopping-assistant/internal/discovery"
	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
)

func slotResults() map[string][]domain.Product {
	return map[string][]domain.Product{
		"breakfast ingredients cereal oats": {
			{ID: "b1", Name: "Rolled Oats", Price: 3},
			{ID: "b2", Name: "Bacon Strips", Price: 4},
			{ID: "b3", Name: "Granola", Price: 5},
		},
		"lunch ingredients bread sandwich": {
			{ID: "l1", Name: "Sourdough Bread", Price: 4},
			{ID: "l2", Name: "Artisan Loaf", Price: 20},
		},
		"dinner ingredients pasta rice chicken": {
			{ID: "d1", Name: "Chicken Thighs", Price: 6},
			{ID: "d2", Name: "Jasmine Rice", Price: 2},
		},
	}
}

func TestExecute_FullMealPlan(t *testing.T) {
	s := &fakeSearcher{results: slotResults()}
	e := newTestExecutor(t, &fakeBackend{}, s, oracle.Table{oracle.SiteMealAction: "FULL_MEAL_PLAN"})

	out := e.Execute(context.Background(), Request{
		UserID:  "u1",
		Intent:  domain.IntentMealPlanning,
		Profile: domain.Profile{UserID: "u1", DietaryRestrictions: []string{"vegetarian"}, BudgetLimit: 105},
	})

	require.Len(t, out.Recommendations, 1)
	plan := out.Recommendations[0].MealPlan
	require.Equal(t, 7, plan.Days)
	// Per-item budget is 105 / 21 = 5.
	require.Equal(t, []string{"b1", "b3"}, ids(plan.Meals["breakfast"]))
	require.Equal(t, []string{"l1"}, ids(plan.Meals["lunch"]))
	require.Equal(t, []string{"d2"}, ids(plan.Meals["dinner"]))
	require.NotContains(t, plan.Meals, "snacks")
	require.Equal(t, 14.0, plan.EstimatedCost)
	require.True(t, plan.WithinBudget)
	require.Contains(t, out.Trace, "Search for snacks failed")
}

func TestExecute_MealPrepUsesThreeDays(t *testing.T) {
	s := &fakeSearcher{results: slotResults()}
	e := newTestExecutor(t, &fakeBackend{}, s, oracle.Table{oracle.SiteMealAction: "MEAL_PREP"})

	out := e.Execute(context.Background(), Request{UserID: "u1", Intent: domain.IntentMealPlanning})

	plan := out.Recommendations[0].MealPlan
	require.Equal(t, 3, plan.Days)
	require.Equal(t, DefaultBudget, plan.Budget)
	require.Equal(t, "3-day meal prep", out.Recommendations[0].Title)
}

func TestExecute_SingleMealUsesDiscovery(t *testing.T) {
	s := &fakeSearcher{}
	e := newTestExecutor(t, &fakeBackend{}, s, oracle.Table{oracle.SiteMealAction: "DINNER_PLAN"})

	out := e.Execute(context.Background(), Request{
		UserID: "u1",
		Intent: domain.IntentMealPlanning,
		Discovery: &discovery.Result{Products: []domain.Product{
			{ID: "p1", Name: "Spaghetti", Price: 2},
			{ID: "p2", Name: "Tomato Sauce", Price: 3.5},
		}},
	})

	require.Empty(t, s.queries)
	plan := out.Recommendations[0].MealPlan
	require.Equal(t, []string{"p1", "p2"}, ids(plan.Meals["dinner"]))
	require.Equal(t, 5.5, plan.EstimatedCost)
	require.Equal(t, "Dinner plan", out.Recommendations[0].Title)
}

func TestExecute_MealPlanAllSearchesFail(t *testing.T) {
	e := newTestExecutor(t, &fakeBackend{}, &fakeSearcher{}, oracle.Table{oracle.SiteMealAction: "FULL_MEAL_PLAN"})

	out := e.Execute(context.Background(), Request{UserID: "u1", Intent: domain.IntentMealPlanning})

	require.Empty(t, out.Recommendations)
	require.Contains(t, out.Actions, "Could not build a meal plan right now; please try again")
}

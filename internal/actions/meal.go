package actions

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"shopping-assistant/internal/discovery"
	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
)

const (
	mealSlotTopK  = 3
	mealSlotKeep  = 2
	mealsPerDay   = 3
	singleMealMax = 5
)

type mealSlot struct {
	name  string
	query string
}

var mealSlots = []mealSlot{
	{"breakfast", "breakfast ingredients cereal oats"},
	{"lunch", "lunch ingredients bread sandwich"},
	{"dinner", "dinner ingredients pasta rice chicken"},
	{"snacks", "healthy snacks fruits vegetables"},
}

var planDays = map[string]int{
	ActionFullMealPlan: 7,
	ActionMealPrep:     3,
	ActionDietaryMeals: 5,
}

var singleMeals = map[string]string{
	ActionBreakfastPlan:  "breakfast",
	ActionLunchPlan:      "lunch",
	ActionDinnerPlan:     "dinner",
	ActionQuickRecipe:    "quick recipe",
	ActionIngredientList: "ingredients",
}

func (e *Executor) mealPlanning(ctx context.Context, r *run) {
	action := e.decide(ctx, r, oracle.SiteMealAction, mealPrompt(r), mealActions, ActionNone)
	if days, ok := planDays[action]; ok {
		e.multiDayPlan(ctx, r, action, days)
		return
	}
	if meal, ok := singleMeals[action]; ok {
		e.singleMeal(r, meal)
		return
	}
	r.act("I can plan single meals, a full week, or meal prep for a few days")
}

func (e *Executor) singleMeal(r *run, meal string) {
	products := r.discovered()
	if len(products) == 0 {
		products = r.req.ContextProducts
	}
	if len(products) == 0 {
		r.act("No products found for your %s; try naming a dish", meal)
		return
	}
	if len(products) > singleMealMax {
		products = products[:singleMealMax]
	}
	cost := 0.0
	for _, p := range products {
		cost += p.Price
	}
	plan := domain.MealPlan{
		Days:          1,
		Meals:         map[string][]domain.Product{meal: products},
		EstimatedCost: cost,
	}
	r.recommend(domain.Recommendation{
		Kind:     domain.KindMealPlan,
		Title:    strings.ToUpper(meal[:1]) + meal[1:] + " plan",
		Reason:   fmt.Sprintf("%d products, about $%.2f", len(products), cost),
		MealPlan: &plan,
	})
	r.act("Created a %s plan with %d products", meal, len(products))
}

// multiDayPlan searches every meal slot, keeps affordable products that
// fit the user's diet, and costs the plan against their budget.
func (e *Executor) multiDayPlan(ctx context.Context, r *run, action string, days int) {
	budget := budgetOf(r.out.Profile)
	perItem := budget / float64(days*mealsPerDay)
	restrictions := r.out.Profile.DietaryRestrictions

	plan := domain.MealPlan{
		Days:   days,
		Meals:  make(map[string][]domain.Product, len(mealSlots)),
		Budget: budget,
	}
	for _, slot := range mealSlots {
		found, err := e.searcher.Search(ctx, slot.query, mealSlotTopK)
		if err != nil {
			e.logger.Warn("meal slot search failed", zap.String("slot", slot.name), zap.Error(err))
			r.note("Search for %s failed", slot.name)
			continue
		}
		found = discovery.FilterDietary(found, restrictions, e.taxonomy)
		found = discovery.FilterBudget(found, perItem)
		if len(found) > mealSlotKeep {
			found = found[:mealSlotKeep]
		}
		plan.Meals[slot.name] = found
		for _, p := range found {
			plan.EstimatedCost += p.Price
		}
	}
	if len(plan.Meals) == 0 {
		r.act("Could not build a meal plan right now; please try again")
		return
	}
	plan.WithinBudget = plan.EstimatedCost <= budget
	if budget > 0 {
		plan.Utilization = plan.EstimatedCost / budget
	}

	title := fmt.Sprintf("%d-day meal plan", days)
	if action == ActionMealPrep {
		title = fmt.Sprintf("%d-day meal prep", days)
	}
	if action == ActionDietaryMeals && len(restrictions) > 0 {
		title = fmt.Sprintf("%d-day %s meal plan", days, strings.Join(restrictions, ", "))
	}
	status := "within"
	if !plan.WithinBudget {
		status = "over"
	}
	r.recommend(domain.Recommendation{
		Kind:     domain.KindMealPlan,
		Title:    title,
		Reason:   fmt.Sprintf("Estimated $%.2f, %s your $%.2f budget", plan.EstimatedCost, status, budget),
		MealPlan: &plan,
	})
	r.act("Created a %s", title)
}

package actions

import (
	"context"
	"fmt"
	"strings"

	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
)

// Food groups used by AnalyzeNutrition.
const (
	GroupProtein = "protein"
	GroupCarbs   = "carbs"
	GroupDairy   = "dairy"
	GroupProduce = "fruits_vegetables"
	GroupSnacks  = "snacks"
	GroupOther   = "other"
)

const balanceGroups = 5

var (
	proteinTerms = []string{"meat", "chicken", "fish", "bean", "egg"}
	carbTerms    = []string{"bread", "pasta", "rice", "cereal"}
	dairyTerms   = []string{"milk", "cheese", "yogurt"}
	produceTerms = []string{"produce", "fruit", "vegetable"}
)

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// FoodGroup buckets an item by its name and category.
func FoodGroup(name, category string) string {
	n, c := strings.ToLower(name), strings.ToLower(category)
	switch {
	case containsAny(n, proteinTerms) || containsAny(c, proteinTerms):
		return GroupProtein
	case containsAny(n, carbTerms) || containsAny(c, carbTerms):
		return GroupCarbs
	case strings.Contains(c, "dairy") || containsAny(n, dairyTerms):
		return GroupDairy
	case containsAny(c, produceTerms):
		return GroupProduce
	case strings.Contains(c, "snack"):
		return GroupSnacks
	default:
		return GroupOther
	}
}

// AnalyzeNutrition buckets items into food groups and scores how many of
// the five main groups are represented.
func AnalyzeNutrition(items []domain.ListItem) domain.NutritionAnalysis {
	groups := map[string][]string{
		GroupProtein: {},
		GroupCarbs:   {},
		GroupDairy:   {},
		GroupProduce: {},
		GroupSnacks:  {},
		GroupOther:   {},
	}
	for _, it := range items {
		g := FoodGroup(it.Name, it.Category)
		groups[g] = append(groups[g], it.Name)
	}

	filled := 0
	for _, g := range []string{GroupProtein, GroupCarbs, GroupDairy, GroupProduce, GroupSnacks} {
		if len(groups[g]) > 0 {
			filled++
		}
	}

	var suggestions []string
	if len(groups[GroupProtein]) < 2 {
		suggestions = append(suggestions, "Consider adding more protein sources")
	}
	if len(groups[GroupProduce]) < 3 {
		suggestions = append(suggestions, "Add more fruits and vegetables for balanced nutrition")
	}
	if len(groups[GroupDairy]) == 0 {
		suggestions = append(suggestions, "Consider adding dairy products for calcium")
	}

	return domain.NutritionAnalysis{
		Categories:   groups,
		BalanceScore: min(float64(filled)/balanceGroups, 1),
		Suggestions:  suggestions,
	}
}

func productsAsItems(products []domain.Product) []domain.ListItem {
	items := make([]domain.ListItem, 0, len(products))
	for _, p := range products {
		items = append(items, domain.ListItem{ProductID: p.ID, Name: p.Name, Category: p.Category, Price: p.Price, Quantity: 1})
	}
	return items
}

func (e *Executor) nutrition(ctx context.Context, r *run) {
	switch e.decide(ctx, r, oracle.SiteNutritionAction, nutritionPrompt(r), nutritionActions, ActionNone) {
	case ActionAnalyzeList:
		if len(r.out.List) == 0 {
			r.act("Your shopping list is empty; add some items and I can analyze them")
			return
		}
		e.analyze(r, "Shopping list nutrition", r.out.List)
	case ActionAnalyzeProducts:
		products := r.discovered()
		if len(products) == 0 {
			products = r.req.ContextProducts
		}
		if len(products) == 0 {
			r.act("No products to analyze yet; try searching first")
			return
		}
		e.analyze(r, "Product nutrition", productsAsItems(products))
	case ActionDietaryCheck:
		e.dietaryCheck(r)
	case ActionHealthRecommendations:
		r.recommend(domain.Recommendation{
			Kind:   domain.KindAdvice,
			Title:  "Healthier shopping",
			Reason: "Favor whole grains, lean proteins and fresh produce; limit processed snacks and sugary drinks",
		})
		r.act("Provided health recommendations")
	case ActionNutritionEducation:
		r.recommend(domain.Recommendation{
			Kind:   domain.KindAdvice,
			Title:  "Balanced nutrition",
			Reason: "A balanced week covers protein, whole-grain carbs, dairy or a calcium source, and plenty of fruits and vegetables",
		})
		r.act("Shared nutrition information")
	default:
		r.act("I can analyze the nutrition of your list or suggest healthier options")
	}
}

func (e *Executor) analyze(r *run, title string, items []domain.ListItem) {
	a := AnalyzeNutrition(items)
	r.recommend(domain.Recommendation{
		Kind:      domain.KindNutritionAnalysis,
		Title:     title,
		Reason:    fmt.Sprintf("Balance score %.0f%%", a.BalanceScore*100),
		Nutrition: &a,
	})
	r.act("Analyzed nutrition for %d items", len(items))
}

func (e *Executor) dietaryCheck(r *run) {
	restrictions := r.out.Profile.DietaryRestrictions
	if len(restrictions) == 0 {
		r.act("You have no dietary restrictions on file")
		return
	}
	var incompatible []string
	for _, it := range r.out.List {
		p := domain.Product{ID: it.ProductID, Name: it.Name, Category: it.Category}
		if _, bad := e.taxonomy.Violation(p, restrictions); bad {
			incompatible = append(incompatible, it.Name)
		}
	}
	a := AnalyzeNutrition(r.out.List)
	a.Incompatible = incompatible
	r.recommend(domain.Recommendation{
		Kind:      domain.KindNutritionAnalysis,
		Title:     "Dietary check",
		Reason:    fmt.Sprintf("%d items conflict with: %s", len(incompatible), strings.Join(restrictions, ", ")),
		Nutrition: &a,
	})
	r.act("Found %d items incompatible with your dietary restrictions", len(incompatible))
}

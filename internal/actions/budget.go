package actions

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
)

// DefaultBudget applies when the profile has no budget limit.
const DefaultBudget = 100.0

var amountPattern = regexp.MustCompile(`(\$)?\s*(\d+(?:[.,]\d{1,2})?)`)

// OptimizeForBudget fits items under budget, keeping the cheapest items
// whole and reducing the quantity of the first item that only partly fits.
// Items that cannot fit at all are dropped. A list already within budget is
// returned unchanged.
func OptimizeForBudget(items []domain.ListItem, budget float64) domain.BudgetOptimization {
	original := 0.0
	for _, it := range items {
		original += it.Total()
	}
	res := domain.BudgetOptimization{
		OriginalTotal: original,
		Budget:        budget,
	}
	if original <= budget {
		res.Items = append([]domain.ListItem{}, items...)
		res.NewTotal = original
		res.WithinBudget = true
		return res
	}

	sorted := append([]domain.ListItem{}, items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	running := 0.0
	kept := []domain.ListItem{}
	for _, it := range sorted {
		if it.Price <= 0 || it.Quantity <= 0 {
			continue
		}
		total := it.Total()
		if running+total <= budget {
			kept = append(kept, it)
			running += total
			continue
		}
		if running+it.Price <= budget {
			it.Quantity = int(math.Floor((budget - running) / it.Price))
			kept = append(kept, it)
			running += it.Total()
			break
		}
	}
	res.Items = kept
	res.NewTotal = running
	res.Savings = original - running
	res.WithinBudget = running <= budget
	return res
}

// ParseAmount finds the money amount in text: the first dollar-prefixed
// number, or else the last number, so "for 2 weeks to 150" reads 150.
func ParseAmount(text string) (float64, bool) {
	matches := amountPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, false
	}
	amount := matches[len(matches)-1][2]
	for _, m := range matches {
		if m[1] != "" {
			amount = m[2]
			break
		}
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(amount, ",", "."), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func budgetOf(p domain.Profile) float64 {
	if p.BudgetLimit > 0 {
		return p.BudgetLimit
	}
	return DefaultBudget
}

func (e *Executor) budget(ctx context.Context, r *run) {
	switch e.decide(ctx, r, oracle.SiteBudgetAction, budgetPrompt(r), budgetActions, ActionNone) {
	case ActionGetSpending:
		e.spending(ctx, r)
	case ActionOptimizeList:
		e.optimize(r)
	case ActionSetBudget:
		e.setBudget(ctx, r)
	case ActionBudgetAdvice:
		r.recommend(domain.Recommendation{
			Kind:   domain.KindAdvice,
			Title:  "Budget tips",
			Reason: "Compare unit prices, buy staples in bulk and plan meals around what is on sale",
		})
		r.act("Provided budget advice")
	default:
		r.act("I can help you track spending or fit your list to a budget")
	}
}

func (e *Executor) spending(ctx context.Context, r *run) {
	spent, err := e.backend.GetSpending(ctx, r.req.UserID)
	if err != nil {
		e.logger.Warn("failed to load spending", zap.String("user_id", r.req.UserID), zap.Error(err))
		r.act("Could not retrieve your spending right now")
		return
	}
	total := 0.0
	for _, v := range spent {
		total += v
	}
	r.recommend(domain.Recommendation{
		Kind:     domain.KindAdvice,
		Title:    "Spending by category",
		Reason:   fmt.Sprintf("You have spent $%.2f across %d categories", total, len(spent)),
		Spending: spent,
	})
	r.act("Retrieved spending across %d categories", len(spent))
}

func (e *Executor) optimize(r *run) {
	if len(r.out.List) == 0 {
		r.act("Your shopping list is empty; nothing to optimize")
		return
	}
	budget := budgetOf(r.out.Profile)
	opt := OptimizeForBudget(r.out.List, budget)
	reason := fmt.Sprintf("Your list costs $%.2f, within your $%.2f budget", opt.OriginalTotal, budget)
	if opt.Savings > 0 {
		reason = fmt.Sprintf("Trimming your list to $%.2f saves $%.2f against your $%.2f budget", opt.NewTotal, opt.Savings, budget)
	}
	r.recommend(domain.Recommendation{
		Kind:   domain.KindBudgetOptimization,
		Title:  "Budget-optimized shopping list",
		Reason: reason,
		Budget: &opt,
	})
	r.act("Optimized shopping list for a $%.2f budget", budget)
}

func (e *Executor) setBudget(ctx context.Context, r *run) {
	amount, ok := ParseAmount(r.req.Message)
	if !ok {
		r.act("Tell me the amount you'd like as your budget, for example \"set my budget to $150\"")
		return
	}
	res := e.backend.SetBudgetLimit(ctx, r.out.Profile, amount)
	if !res.Success {
		e.logger.Warn("failed to set budget", zap.String("user_id", r.req.UserID), zap.Error(res.Err))
		r.act("Could not update your budget right now")
		return
	}
	r.out.Profile.BudgetLimit = amount
	r.out.LastAction = fmt.Sprintf("set budget to %.2f", amount)
	r.act("Set your budget limit to $%.2f", amount)
}

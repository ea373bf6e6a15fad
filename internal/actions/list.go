package actions

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
)

const (
	maxExtractedItems = 4
	itemSearchTopK    = 2
	summaryNames      = 3
)

func (e *Executor) manageList(ctx context.Context, r *run) {
	switch e.decide(ctx, r, oracle.SiteListAction, listPrompt(r), listActions, ActionNone) {
	case ActionClearList:
		e.clearList(ctx, r)
	case ActionAddContextual:
		e.addContextual(ctx, r)
	case ActionAddSpecific:
		e.addSpecific(ctx, r)
	case ActionRemoveSpecific:
		e.removeSpecific(ctx, r)
	case ActionViewList:
		r.act("Your shopping list contains %d items", len(r.out.List))
	default:
		r.act("I'm ready to help with your shopping list")
	}
}

func (e *Executor) clearList(ctx context.Context, r *run) {
	res := e.backend.ClearList(ctx, r.req.UserID)
	switch {
	case res.Success:
		r.act("Cleared your shopping list (%d items removed)", res.ItemsRemoved)
		r.out.LastAction = "cleared shopping list"
		r.out.List = []domain.ListItem{}
		return
	case res.ItemsRemoved > 0:
		r.act("Removed %d items from your shopping list; %d could not be removed", res.ItemsRemoved, len(res.FailedItems))
		r.out.LastAction = "partially cleared shopping list"
	default:
		e.logger.Warn("failed to clear list", zap.String("user_id", r.req.UserID), zap.Error(res.Err))
		r.act("Failed to clear your shopping list. Please try again")
		return
	}
	e.refreshList(ctx, r)
}

func (e *Executor) dishTerms(r *run) DishTerms {
	d := r.req.Discovery
	if d == nil {
		return DishTerms{}
	}
	return DishTerms{IsDish: d.IsDish, Primary: d.Primary, Secondary: d.Secondary}
}

func (e *Executor) addContextual(ctx context.Context, r *run) {
	dish := e.dishTerms(r)
	selected, skipped := SelectForAdd(r.discovered(), r.req.ContextProducts, dish)
	if len(selected) == 0 && len(skipped) == 0 {
		r.note("No products in this turn or conversation; searching for named items")
		selected, skipped = e.searchNamedItems(ctx, r, "add to their cart")
	}
	if len(selected) == 0 {
		if len(skipped) > 0 {
			r.act("Skipped %d items that are not groceries", len(skipped))
		}
		r.act("No suitable items found to add. Please be more specific about what you'd like")
		return
	}
	e.addProducts(ctx, r, selected, skipped, dish)
}

func (e *Executor) addSpecific(ctx context.Context, r *run) {
	terms := e.extractItems(ctx, r, "add to their cart")
	if len(terms) == 0 {
		r.act("Could not identify specific items to add. Please name what you'd like")
		return
	}
	var selected []domain.Product
	var skipped []string
	seen := make(map[string]struct{})
	for _, term := range terms {
		p, ok := bestMatch(r.discovered(), term)
		if !ok {
			found, err := e.searcher.Search(ctx, term, itemSearchTopK)
			if err != nil {
				e.logger.Warn("item search failed", zap.String("term", term), zap.Error(err))
				r.note("Search for %q failed", term)
				continue
			}
			if len(found) == 0 {
				r.note("No product found for %q", term)
				continue
			}
			p = found[0]
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		if IsNonFood(p) {
			skipped = append(skipped, p.Name)
			continue
		}
		selected = append(selected, p)
	}
	if len(selected) == 0 {
		r.act("Could not find the specific items you mentioned. Please try being more specific")
		return
	}
	r.act("Found %d specific items you mentioned", len(selected))
	e.addProducts(ctx, r, selected, skipped, DishTerms{})
}

// searchNamedItems extracts item terms from the message and takes the best
// search match for each.
func (e *Executor) searchNamedItems(ctx context.Context, r *run, purpose string) ([]domain.Product, []string) {
	var selected []domain.Product
	var skipped []string
	for _, term := range e.extractItems(ctx, r, purpose) {
		found, err := e.searcher.Search(ctx, term, itemSearchTopK)
		if err != nil {
			e.logger.Warn("item search failed", zap.String("term", term), zap.Error(err))
			r.note("Search for %q failed", term)
			continue
		}
		if len(found) == 0 {
			continue
		}
		if IsNonFood(found[0]) {
			skipped = append(skipped, found[0].Name)
			continue
		}
		selected = append(selected, found[0])
	}
	return selected, skipped
}

// bestMatch returns the first product matching term. Products are expected
// in relevance order.
func bestMatch(products []domain.Product, term string) (domain.Product, bool) {
	for _, p := range products {
		if p.Matches(term) {
			return p, true
		}
	}
	return domain.Product{}, false
}

func (e *Executor) extractItems(ctx context.Context, r *run, purpose string) []string {
	raw, err := e.decider.Decide(ctx, oracle.Prompt(oracle.SiteItems, itemsPrompt(r, purpose)))
	if err != nil {
		e.logger.Warn("item extraction failed", zap.Error(err))
		r.note("Item extraction unavailable")
		return nil
	}
	items := ParseItems(raw)
	r.note("Extracted items: %s", strings.Join(items, ", "))
	return items
}

// ParseItems reads an item extraction answer: an "ITEMS: a, b" line or a
// JSON array of strings. At most four items are kept.
func ParseItems(raw string) []string {
	var items []string
	if v, ok := oracle.KeyValues(raw)["ITEMS"]; ok {
		items = oracle.List(v)
	} else if arr, ok := oracle.Strings(raw); ok {
		items = arr
	}
	if len(items) > maxExtractedItems {
		items = items[:maxExtractedItems]
	}
	return items
}

func (e *Executor) addProducts(ctx context.Context, r *run, products []domain.Product, skipped []string, dish DishTerms) {
	var added []string
	failed := 0
	for _, p := range products {
		res := e.backend.AddItem(ctx, r.req.UserID, p.ID, 1)
		if !res.Success {
			failed++
			e.logger.Warn("failed to add product",
				zap.String("user_id", r.req.UserID),
				zap.String("product_id", p.ID),
				zap.Error(res.Err),
			)
			continue
		}
		added = append(added, p.Name)
	}

	if len(added) > 0 {
		r.act("Added %d items to your cart: %s", len(added), summarize(added))
		if dish.IsDish {
			r.act("Your %s ingredients are ready", dish.Primary)
		}
		r.out.LastAction = fmt.Sprintf("added %d items", len(added))
		e.refreshList(ctx, r)
	}
	if failed > 0 {
		r.act("%d products could not be added (backend issue)", failed)
	}
	if len(skipped) > 0 {
		r.act("Skipped %d items that are not groceries", len(skipped))
	}
}

func summarize(names []string) string {
	if len(names) <= summaryNames {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(names[:summaryNames], ", "), len(names)-summaryNames)
}

func (e *Executor) removeSpecific(ctx context.Context, r *run) {
	if len(r.out.List) == 0 {
		r.act("Your shopping list is empty; nothing to remove")
		return
	}
	terms := e.extractItems(ctx, r, "remove from their list")
	if len(terms) == 0 {
		r.act("Could not tell which items to remove. Please name them")
		return
	}

	var removed []string
	var unmatched []string
	failed := 0
	taken := make(map[string]struct{})
	for _, term := range terms {
		matched := false
		for _, item := range r.out.List {
			if _, done := taken[item.ID]; done {
				continue
			}
			if !strings.Contains(strings.ToLower(item.Name), strings.ToLower(term)) {
				continue
			}
			matched = true
			taken[item.ID] = struct{}{}
			if res := e.backend.RemoveItem(ctx, r.req.UserID, item.ID); !res.Success {
				failed++
				continue
			}
			removed = append(removed, item.Name)
		}
		if !matched {
			unmatched = append(unmatched, term)
		}
	}

	if len(removed) > 0 {
		r.act("Removed %d items from your list: %s", len(removed), summarize(removed))
		r.out.LastAction = fmt.Sprintf("removed %d items", len(removed))
		e.refreshList(ctx, r)
	}
	if failed > 0 {
		r.act("%d items could not be removed (backend issue)", failed)
	}
	if len(unmatched) > 0 {
		r.act("No list items matched: %s", strings.Join(unmatched, ", "))
	}
}

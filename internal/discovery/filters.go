package discovery

import (
	"sort"

	"shopping-assistant/internal/domain"
)

// Dedupe keeps the first occurrence of each product id, preserving order.
// Products without an id are dropped.
func Dedupe(products []domain.Product) []domain.Product {
	seen := make(map[string]struct{}, len(products))
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// FilterDietary drops products that violate any of the restrictions. With no
// restrictions the input is returned as is.
func FilterDietary(products []domain.Product, restrictions []string, t *Taxonomy) []domain.Product {
	if len(restrictions) == 0 {
		return products
	}
	if t == nil {
		t = DefaultTaxonomy()
	}
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if _, bad := t.Violation(p, restrictions); bad {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FilterBudget keeps products priced at or below limit, cheapest first. A
// limit <= 0 means no budget and returns the input unchanged.
func FilterBudget(products []domain.Product, limit float64) []domain.Product {
	if limit <= 0 {
		return products
	}
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.Price <= limit {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

package actions

import (
	"sort"
	"strings"

	"shopping-assistant/internal/domain"
)

// Selection tuning. Scores are similarity values; products the user already
// saw in conversation count as fully relevant.
const (
	MinRelevance    = 0.4
	DishBoost       = 1.5
	DishCap         = 6
	PlainCap        = 3
	DishPerCategory = 2
)

var nonFoodTerms = []string{"cell phone", "mobile", "electronic"}

// DishTerms describes the dish a turn searched for, if any.
type DishTerms struct {
	IsDish    bool
	Primary   string
	Secondary []string
}

func (d DishTerms) matches(p domain.Product) bool {
	if p.Matches(d.Primary) {
		return true
	}
	for _, s := range d.Secondary {
		if p.Matches(s) {
			return true
		}
	}
	return false
}

// IsNonFood reports whether a product name is obviously not groceries.
func IsNonFood(p domain.Product) bool {
	name := strings.ToLower(p.Name)
	for _, term := range nonFoodTerms {
		if strings.Contains(name, term) {
			return true
		}
	}
	return false
}

type candidate struct {
	product domain.Product
	score   float64
}

// SelectForAdd picks which products to add from this turn's search results
// and the conversation's remembered products, in that priority order. It
// returns the selection and the names of non-food products it skipped.
func SelectForAdd(discovered, remembered []domain.Product, dish DishTerms) ([]domain.Product, []string) {
	seen := make(map[string]struct{})
	var cands []candidate
	var skipped []string

	consider := func(p domain.Product, searched bool) {
		if p.ID == "" {
			return
		}
		if _, ok := seen[p.ID]; ok {
			return
		}
		seen[p.ID] = struct{}{}
		if IsNonFood(p) {
			skipped = append(skipped, p.Name)
			return
		}
		score := 1.0
		if searched && (p.Scored || p.Similarity != 0) {
			if p.Similarity < MinRelevance {
				return
			}
			score = p.Similarity
		}
		if dish.IsDish && dish.matches(p) {
			score *= DishBoost
		}
		cands = append(cands, candidate{product: p, score: score})
	}
	for _, p := range discovered {
		consider(p, true)
	}
	for _, p := range remembered {
		consider(p, false)
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	limit, perCategory := PlainCap, 0
	if dish.IsDish {
		limit, perCategory = DishCap, DishPerCategory
	}
	byCategory := make(map[string]int)
	out := make([]domain.Product, 0, limit)
	for _, c := range cands {
		if len(out) == limit {
			break
		}
		if perCategory > 0 && c.product.Category != "" {
			key := strings.ToLower(c.product.Category)
			if byCategory[key] >= perCategory {
				continue
			}
			byCategory[key]++
		}
		out = append(out, c.product)
	}
	return out, skipped
}

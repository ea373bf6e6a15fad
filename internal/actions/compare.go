package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"shopping-assistant/internal/discovery"
	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
)

const (
	alternativesFor  = 2
	alternativesTopK = 5
	alternativesKeep = 3
	featureProducts  = 3
)

var comparedFeatures = []string{"price", "rating", "category"}

func (e *Executor) compare(ctx context.Context, r *run) {
	products := r.discovered()
	if len(products) == 0 {
		products = r.req.ContextProducts
	}
	action := e.decide(ctx, r, oracle.SiteComparisonAction, comparisonPrompt(r), comparisonActions, ActionNone)
	if action != ActionNone && len(products) == 0 {
		r.act("No products to compare yet; try searching first")
		return
	}
	switch action {
	case ActionFindAlternatives:
		e.alternatives(ctx, r, products, false)
	case ActionDietaryAlternatives:
		e.alternatives(ctx, r, products, true)
	case ActionPriceComparison:
		comparePrices(r, products)
	case ActionBrandComparison, ActionFeatureComparison:
		compareFeatures(r, products)
	default:
		r.act("I can compare prices or find alternatives for products you're considering")
	}
}

func (e *Executor) alternatives(ctx context.Context, r *run, products []domain.Product, dietary bool) {
	n := 0
	for _, p := range products[:min(alternativesFor, len(products))] {
		found, err := e.searcher.Search(ctx, fmt.Sprintf("alternative to %s similar product", p.Name), alternativesTopK)
		if err != nil {
			e.logger.Warn("alternatives search failed", zap.String("product", p.Name), zap.Error(err))
			r.note("Alternatives search for %q failed", p.Name)
			continue
		}
		if dietary {
			found = discovery.FilterDietary(found, r.out.Profile.DietaryRestrictions, e.taxonomy)
		}
		alts := make([]domain.Product, 0, alternativesKeep)
		for _, f := range found {
			if f.ID == p.ID || strings.Contains(strings.ToLower(f.Name), strings.ToLower(p.Name)) {
				continue
			}
			alts = append(alts, f)
			if len(alts) == alternativesKeep {
				break
			}
		}
		if len(alts) == 0 {
			continue
		}
		r.recommend(domain.Recommendation{
			Kind:         domain.KindAlternatives,
			Title:        "Alternatives to " + p.Name,
			Reason:       fmt.Sprintf("%d similar products", len(alts)),
			Alternatives: &domain.Alternatives{Original: p.Name, Products: alts},
		})
		n++
	}
	if n == 0 {
		r.act("No alternatives found")
		return
	}
	r.act("Found alternatives for %d products", n)
}

func comparePrices(r *run, products []domain.Product) {
	priced := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.Price > 0 {
			priced = append(priced, p)
		}
	}
	if len(priced) == 0 {
		r.act("None of these products have prices to compare")
		return
	}
	sort.SliceStable(priced, func(i, j int) bool { return priced[i].Price < priced[j].Price })
	low, high := priced[0].Price, priced[len(priced)-1].Price
	r.recommend(domain.Recommendation{
		Kind:   domain.KindPriceComparison,
		Title:  "Price comparison",
		Reason: fmt.Sprintf("%s is the cheapest at $%.2f", priced[0].Name, low),
		Price: &domain.PriceComparison{
			Products: priced,
			Lowest:   low,
			Highest:  high,
			Range:    high - low,
		},
	})
	r.act("Compared prices of %d products", len(priced))
}

func compareFeatures(r *run, products []domain.Product) {
	top := products[:min(featureProducts, len(products))]
	r.recommend(domain.Recommendation{
		Kind:     domain.KindFeatureComparison,
		Title:    "Feature comparison",
		Reason:   fmt.Sprintf("Comparing %d products by %s", len(top), strings.Join(comparedFeatures, ", ")),
		Features: &domain.FeatureComparison{Products: append([]domain.Product{}, top...), Features: comparedFeatures},
	})
	r.act("Compared features of %d products", len(top))
}

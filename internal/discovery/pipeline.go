// Package discovery turns a shopping query into a filtered product list:
// it classifies the query as a single item or a dish, fans out similarity
// searches, merges and de-duplicates the results, and applies dietary and
// budget filters.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
)

// Strategy tags how a result was produced.
type Strategy string

const (
	StrategySimple   Strategy = "simple_product_search"
	StrategyComplex  Strategy = "complex_multi_search"
	StrategyFallback Strategy = "fallback_simple_search"
)

const (
	DefaultMaxResults = 10
	PrimaryTopK       = 5
	SecondaryTopK     = 2
	MaxSecondary      = 4
	MaxOptional       = 2
	fanOutLimit       = 4
)

// Searcher runs one similarity search.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]domain.Product, error)
}

// Request is one discovery input. BudgetLimit <= 0 means no budget.
type Request struct {
	Query        string
	Restrictions []string
	BudgetLimit  float64
}

// Plan is the decomposition of a query into searches.
type Plan struct {
	Complex   bool
	Primary   string
	Secondary []string
	Optional  []string
}

// Result is the discovery outcome. Trace holds human-readable notes for the
// turn's reasoning trace.
type Result struct {
	Products  []domain.Product
	Strategy  Strategy
	IsDish    bool
	Primary   string
	Secondary []string
	Optional  []string
	Trace     []string
}

// Pipeline runs discovery requests.
type Pipeline struct {
	searcher   Searcher
	decider    oracle.Decider
	taxonomy   *Taxonomy
	maxResults int
	logger     *zap.Logger
}

type Option func(*Pipeline)

func WithMaxResults(n int) Option {
	return func(p *Pipeline) {
		p.maxResults = n
	}
}

func WithTaxonomy(t *Taxonomy) Option {
	return func(p *Pipeline) {
		p.taxonomy = t
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

func NewPipeline(s Searcher, d oracle.Decider, opts ...Option) (*Pipeline, error) {
	if s == nil {
		return nil, errors.New("discovery: searcher must not be nil")
	}
	if d == nil {
		return nil, errors.New("discovery: decider must not be nil")
	}
	p := &Pipeline{searcher: s, decider: d, maxResults: DefaultMaxResults}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxResults <= 0 {
		p.maxResults = DefaultMaxResults
	}
	if p.taxonomy == nil {
		p.taxonomy = DefaultTaxonomy()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p, nil
}

// Taxonomy returns the dietary taxonomy the pipeline filters with.
func (p *Pipeline) Taxonomy() *Taxonomy {
	return p.taxonomy
}

// Search runs a single best-effort search outside the discovery flow.
func (p *Pipeline) Search(ctx context.Context, query string, topK int) ([]domain.Product, error) {
	return p.searcher.Search(ctx, query, topK)
}

// Discover runs the full pipeline. Search failures are recorded in the
// trace; Discover itself never fails.
func (p *Pipeline) Discover(ctx context.Context, req Request) Result {
	query := strings.TrimSpace(req.Query)
	var res Result
	if query == "" {
		res.Strategy = StrategySimple
		res.Trace = append(res.Trace, "No search query; skipped product search")
		return res
	}

	plan, err := p.classify(ctx, query, req.Restrictions)
	var products []domain.Product
	switch {
	case err != nil:
		p.logger.Warn("query classification failed", zap.String("query", query), zap.Error(err))
		res.Trace = append(res.Trace, "Complexity analysis failed, using simple search")
		res.Strategy = StrategyFallback
		res.Primary = query
		products = p.simple(ctx, query, &res)
	case !plan.Complex:
		res.Trace = append(res.Trace, "Simple query - direct search approach")
		res.Strategy = StrategySimple
		res.Primary = query
		products = p.simple(ctx, query, &res)
	default:
		res.Trace = append(res.Trace, "Complex query - using multi-step search approach")
		res.Strategy = StrategyComplex
		res.IsDish = true
		res.Primary = plan.Primary
		res.Secondary = plan.Secondary
		res.Optional = plan.Optional
		products = p.fanOut(ctx, plan, &res)
	}

	products = Dedupe(products)
	if len(products) > p.maxResults {
		products = products[:p.maxResults]
	}
	if len(req.Restrictions) > 0 && len(products) > 0 {
		products = FilterDietary(products, req.Restrictions, p.taxonomy)
		res.Trace = append(res.Trace, fmt.Sprintf("Applied dietary filters: %s", strings.Join(req.Restrictions, ", ")))
	}
	if req.BudgetLimit > 0 && len(products) > 0 {
		products = FilterBudget(products, req.BudgetLimit)
		res.Trace = append(res.Trace, fmt.Sprintf("Applied budget filter: $%.2f", req.BudgetLimit))
	}
	res.Products = products
	res.Trace = append(res.Trace, fmt.Sprintf("Found %d products using %s", len(products), res.Strategy))
	return res
}

func (p *Pipeline) simple(ctx context.Context, query string, res *Result) []domain.Product {
	products, err := p.searcher.Search(ctx, query, p.maxResults)
	if err != nil {
		p.logger.Warn("search failed", zap.String("query", query), zap.Error(err))
		res.Trace = append(res.Trace, fmt.Sprintf("Search for %q failed", query))
		return nil
	}
	return products
}

type subSearch struct {
	label string
	query string
	topK  int
}

// searches lists the sub-searches for a dish: the primary, each secondary,
// then optionals while the result budget lasts.
func (p *Pipeline) searches(plan Plan) []subSearch {
	out := []subSearch{{label: "Main", query: plan.Primary, topK: PrimaryTopK}}
	for _, s := range plan.Secondary {
		out = append(out, subSearch{label: "Support", query: s, topK: SecondaryTopK})
	}
	remaining := p.maxResults - PrimaryTopK - SecondaryTopK*len(plan.Secondary)
	for _, o := range plan.Optional {
		if remaining <= 0 {
			break
		}
		k := min(SecondaryTopK, remaining)
		remaining -= k
		out = append(out, subSearch{label: "Optional", query: o, topK: k})
	}
	return out
}

func (p *Pipeline) fanOut(ctx context.Context, plan Plan, res *Result) []domain.Product {
	subs := p.searches(plan)
	results := make([][]domain.Product, len(subs))
	failed := make([]bool, len(subs))

	var g errgroup.Group
	g.SetLimit(fanOutLimit)
	for i, s := range subs {
		g.Go(func() error {
			products, err := p.searcher.Search(ctx, s.query, s.topK)
			if err != nil {
				p.logger.Warn("sub-search failed",
					zap.String("kind", s.label),
					zap.String("query", s.query),
					zap.Error(err),
				)
				failed[i] = true
				return nil
			}
			results[i] = products
			return nil
		})
	}
	_ = g.Wait()

	var merged []domain.Product
	for i, s := range subs {
		if failed[i] {
			res.Trace = append(res.Trace, fmt.Sprintf("%s search for %q failed", s.label, s.query))
			continue
		}
		res.Trace = append(res.Trace, fmt.Sprintf("%s: %s (%d results)", s.label, s.query, len(results[i])))
		merged = append(merged, results[i]...)
	}
	return merged
}

func (p *Pipeline) classify(ctx context.Context, query string, restrictions []string) (Plan, error) {
	raw, err := p.decider.Decide(ctx, oracle.Prompt(oracle.SiteComplexity, complexityPrompt(query, restrictions)))
	if err != nil {
		return Plan{}, fmt.Errorf("discovery: classify: %w", err)
	}
	return ParsePlan(raw, query), nil
}

// ParsePlan reads a complexity answer. Anything that is not a well-formed
// COMPLEX answer is a simple search for query.
func ParsePlan(raw, query string) Plan {
	kv := oracle.KeyValues(raw)
	if oracle.Label(kv["TYPE"], []string{"SIMPLE", "COMPLEX"}, "SIMPLE") != "COMPLEX" {
		return Plan{Primary: query}
	}
	plan := Plan{Complex: true, Primary: strings.Trim(kv["MAIN"], "[] ")}
	if plan.Primary == "" {
		plan.Primary = query
	}
	plan.Secondary = capList(oracle.List(kv["SUPPORTING"]), MaxSecondary)
	plan.Optional = capList(oracle.List(kv["OPTIONAL"]), MaxOptional)
	return plan
}

func capList(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func complexityPrompt(query string, restrictions []string) string {
	diet := "none"
	if len(restrictions) > 0 {
		diet = strings.Join(restrictions, ", ")
	}
	return strings.Join([]string{
		"Classify this shopping query and plan the product searches for it.",
		"",
		"Query: " + query,
		"Dietary restrictions: " + diet,
		"",
		"SIMPLE means one kind of product (\"milk\", \"cheap snacks\").",
		"COMPLEX means a dish or meal that needs a main ingredient plus supporting ingredients (\"chicken salad\", \"tacos for four\").",
		"",
		"Answer with exactly these lines:",
		"TYPE: SIMPLE or COMPLEX",
		"MAIN: the primary item to search for",
		"SUPPORTING: [up to 4 supporting ingredients, comma separated]",
		"OPTIONAL: [up to 2 optional extras, comma separated]",
	}, "\n")
}

// Package oracle defines the decision contract the assistant consults to map
// free text onto small closed label sets, and the narrow grammars used to read
// its answers.
package oracle

import (
	"context"
	"strings"
	"time"
)

// Decider turns a prompt into a short textual decision.
type Decider interface {
	Decide(ctx context.Context, prompt string) (string, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, prompt string) (string, error)

func (f DeciderFunc) Decide(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// WithTimeout bounds every Decide call on d. A non-positive timeout returns
// d unchanged.
func WithTimeout(d Decider, timeout time.Duration) Decider {
	if timeout <= 0 {
		return d
	}
	return DeciderFunc(func(ctx context.Context, prompt string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return d.Decide(ctx, prompt)
	})
}

// Site names a call site. Every prompt starts with its site tag so that
// transcripts and fakes can tell call sites apart.
type Site string

const (
	SiteIntent           Site = "intent"
	SiteReference        Site = "reference"
	SiteComplexity       Site = "complexity"
	SiteListAction       Site = "list_action"
	SiteItems            Site = "items"
	SiteBudgetAction     Site = "budget_action"
	SiteMealAction       Site = "meal_action"
	SiteNutritionAction  Site = "nutrition_action"
	SiteComparisonAction Site = "comparison_action"
	SiteResponse         Site = "response"
)

const (
	siteTagPrefix = "[site:"
	siteTagSuffix = "]"
)

// Prompt prefixes body with the tag for site.
func Prompt(site Site, body string) string {
	return siteTagPrefix + string(site) + siteTagSuffix + "\n" + body
}

// SiteOf extracts the site tag from a prompt built by Prompt.
func SiteOf(prompt string) Site {
	if !strings.HasPrefix(prompt, siteTagPrefix) {
		return ""
	}
	rest := prompt[len(siteTagPrefix):]
	end := strings.Index(rest, siteTagSuffix)
	if end < 0 {
		return ""
	}
	return Site(rest[:end])
}

// Body returns prompt without its site tag.
func Body(prompt string) string {
	site := SiteOf(prompt)
	if site == "" {
		return prompt
	}
	return strings.TrimPrefix(prompt[len(siteTagPrefix)+len(site)+len(siteTagSuffix):], "\n")
}

// Table is a fixed-mapping Decider keyed by call site. Sites without an
// entry answer with an empty string.
type Table map[Site]string

func (t Table) Decide(_ context.Context, prompt string) (string, error) {
	return t[SiteOf(prompt)], nil
}

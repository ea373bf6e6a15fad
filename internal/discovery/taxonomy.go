package discovery

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"shopping-assistant/internal/domain"
)

//go:embed taxonomy.yaml
var taxonomyYAML []byte

// Restriction is one dietary category and the terms that violate it.
type Restriction struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	Fields  []string `yaml:"fields"`
	Exclude []string `yaml:"exclude"`
	// Allow lists compounds that contain an excluded term without violating
	// the restriction, such as "coconut" for nut-free.
	Allow []string `yaml:"allow"`
}

// Taxonomy maps profile restriction values onto exclusion rules.
type Taxonomy struct {
	Restrictions []Restriction `yaml:"restrictions"`

	byAlias map[string]int
}

// ParseTaxonomy reads a YAML taxonomy.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("discovery: parse taxonomy: %w", err)
	}
	if len(t.Restrictions) == 0 {
		return nil, errors.New("discovery: taxonomy has no restrictions")
	}
	t.byAlias = make(map[string]int)
	for i, r := range t.Restrictions {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("discovery: restriction %d has no name", i)
		}
		if len(r.Exclude) == 0 {
			return nil, fmt.Errorf("discovery: restriction %q has no excluded terms", r.Name)
		}
		for _, f := range r.Fields {
			if f != "name" && f != "category" {
				return nil, fmt.Errorf("discovery: restriction %q: unknown field %q", r.Name, f)
			}
		}
		for _, a := range append([]string{r.Name}, r.Aliases...) {
			t.byAlias[normalizeText(a)] = i
		}
	}
	return &t, nil
}

// DefaultTaxonomy returns the embedded taxonomy.
var DefaultTaxonomy = sync.OnceValue(func() *Taxonomy {
	t, err := ParseTaxonomy(taxonomyYAML)
	if err != nil {
		panic(err)
	}
	return t
})

// Lookup resolves a profile value such as "No Gluten" to its restriction.
func (t *Taxonomy) Lookup(value string) (Restriction, bool) {
	i, ok := t.byAlias[normalizeText(value)]
	if !ok {
		return Restriction{}, false
	}
	return t.Restrictions[i], true
}

// Violation returns the first restriction p violates.
func (t *Taxonomy) Violation(p domain.Product, restrictions []string) (string, bool) {
	for _, value := range restrictions {
		r, ok := t.Lookup(value)
		if !ok {
			continue
		}
		for _, field := range r.Fields {
			raw := p.Name
			if field == "category" {
				raw = p.Category
			}
			text := maskAllowed(raw, r.Allow)
			for _, term := range r.Exclude {
				if containsTerm(text, term) {
					return r.Name, true
				}
			}
		}
	}
	return "", false
}

// normalizeText lower-cases s and collapses every run of non-alphanumeric
// characters to a single space.
func normalizeText(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

// maskAllowed normalizes text and blanks out every allowed compound.
func maskAllowed(text string, allow []string) string {
	text = normalizeText(text)
	for _, a := range allow {
		if a = normalizeText(a); a != "" {
			text = strings.ReplaceAll(text, a, " ")
		}
	}
	return text
}

// containsTerm reports whether the normalized term occurs anywhere in text,
// including inside compounds such as "buttermilk" or "cornbread".
func containsTerm(text, term string) bool {
	term = normalizeText(term)
	return term != "" && strings.Contains(text, term)
}

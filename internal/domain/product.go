package domain

import "strings"

// Product is a catalog entry as returned by discovery. Similarity lies in
// [0, 1] and is meaningful only when Scored is set by a similarity search.
type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	Rating       float64 `json:"rating"`
	Availability string  `json:"availability"`
	Similarity   float64 `json:"similarityScore"`
	Scored       bool    `json:"-"`
}

// Matches reports whether term occurs in the product's name or category,
// ignoring case.
func (p Product) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Category), term)
}

// ListItem is one line of a user's shopping list.
type ListItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Total returns price times quantity.
func (i ListItem) Total() float64 {
	return i.Price * float64(i.Quantity)
}

// Profile is the subset of the backend user record the assistant uses.
// BudgetLimit zero means no budget is set.
type Profile struct {
	UserID              string   `json:"userId"`
	Name                string   `json:"name,omitempty"`
	Email               string   `json:"email,omitempty"`
	DietaryRestrictions []string `json:"dietaryRestrictions,omitempty"`
	BudgetLimit         float64  `json:"budgetLimit,omitempty"`
}

// Loaded reports whether the profile carries a user id.
func (p Profile) Loaded() bool {
	return p.UserID != ""
}

package domain

import "time"

const (
	// MaxContextProducts bounds how many recent products a context keeps.
	MaxContextProducts = 10
	// DecayFactor scales the relevance score once per turn.
	DecayFactor = 0.8
	// ValidThreshold is the score a context must exceed to be referenced.
	ValidThreshold = 0.3
)

// ConversationContext is the cross-turn memory used to resolve references
// such as "add those". The caller persists it between turns; within a turn
// only the orchestrator mutates it, always on its own copy.
type ConversationContext struct {
	LastProducts   []Product `json:"lastProducts"`
	LastIntent     Intent    `json:"lastIntent,omitempty"`
	LastAction     string    `json:"lastAction,omitempty"`
	LastActionAt   time.Time `json:"lastActionAt,omitzero"`
	RelevanceScore float64   `json:"relevanceScore"`
}

// NewConversationContext returns an empty context with a full score.
func NewConversationContext() ConversationContext {
	return ConversationContext{RelevanceScore: 1.0}
}

// UpdateProducts keeps the most recent MaxContextProducts products and resets
// the score to 1.0.
func (c *ConversationContext) UpdateProducts(products []Product, intent Intent) {
	if len(products) > MaxContextProducts {
		products = products[len(products)-MaxContextProducts:]
	}
	c.LastProducts = append([]Product(nil), products...)
	c.LastIntent = intent
	c.RelevanceScore = 1.0
}

// Decay multiplies the score by DecayFactor. Call it at most once per turn.
func (c *ConversationContext) Decay() {
	c.RelevanceScore *= DecayFactor
}

// HasValidContext reports whether the remembered products may still be
// referenced.
func (c ConversationContext) HasValidContext() bool {
	return c.RelevanceScore > ValidThreshold && len(c.LastProducts) > 0
}

// ContextualProducts returns the remembered products while the context is
// valid, and nil otherwise.
func (c ConversationContext) ContextualProducts() []Product {
	if !c.HasValidContext() {
		return nil
	}
	return append([]Product(nil), c.LastProducts...)
}

// RecordAction notes the last side effect performed for the session.
func (c *ConversationContext) RecordAction(action string, at time.Time) {
	c.LastAction = action
	c.LastActionAt = at.UTC()
}

// Clone returns a copy that shares no slices with c.
func (c ConversationContext) Clone() ConversationContext {
	c.LastProducts = append([]Product(nil), c.LastProducts...)
	return c
}

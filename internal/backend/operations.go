package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shopping-assistant/internal/domain"
)

const clearConcurrency = 8

// MutationResult reports the outcome of a single list mutation.
type MutationResult struct {
	Success bool
	Err     error
}

// ClearResult reports the outcome of clearing a list. FailedItems holds the
// ids of items whose delete failed.
type ClearResult struct {
	Success      bool
	ItemsRemoved int
	FailedItems  []string
	Err          error
}

type userResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Profile struct {
		DietaryRestrictions []string `json:"dietary_restrictions"`
		BudgetLimit         float64  `json:"budget_limit"`
	} `json:"profile"`
}

type listItemResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Product   struct {
		ID       string  `json:"id"`
		Name     string  `json:"name"`
		Brand    string  `json:"brand"`
		Category string  `json:"category"`
		Price    float64 `json:"price"`
	} `json:"product"`
}

type updateUserRequest struct {
	Profile profilePayload `json:"profile"`
}

type profilePayload struct {
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
	BudgetLimit         float64  `json:"budget_limit"`
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func userPath(userID string, parts ...string) string {
	p := "/api/users/" + url.PathEscape(userID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// GetProfile reads the user's profile.
func (c *Client) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	var u userResponse
	if err := c.do(ctx, http.MethodGet, userPath(userID), nil, &u); err != nil {
		return domain.Profile{}, err
	}
	id := u.ID
	if id == "" {
		id = userID
	}
	return domain.Profile{
		UserID:              id,
		Name:                u.Name,
		Email:               u.Email,
		DietaryRestrictions: u.Profile.DietaryRestrictions,
		BudgetLimit:         u.Profile.BudgetLimit,
	}, nil
}

// GetList reads the user's shopping list. On failure it returns an empty
// list alongside the error.
func (c *Client) GetList(ctx context.Context, userID string) ([]domain.ListItem, error) {
	var raw []listItemResponse
	if err := c.do(ctx, http.MethodGet, userPath(userID, "shopping-list"), nil, &raw); err != nil {
		return []domain.ListItem{}, err
	}
	items := make([]domain.ListItem, 0, len(raw))
	for _, r := range raw {
		productID := r.ProductID
		if productID == "" {
			productID = r.Product.ID
		}
		name := r.Product.Name
		if r.Product.Brand != "" {
			name = r.Product.Brand + " " + name
		}
		items = append(items, domain.ListItem{
			ID:        r.ID,
			ProductID: productID,
			Name:      name,
			Category:  r.Product.Category,
			Price:     r.Product.Price,
			Quantity:  r.Quantity,
		})
	}
	return items, nil
}

// AddItem adds qty of a product to the user's list. The backend accumulates
// quantity for a product already on the list.
func (c *Client) AddItem(ctx context.Context, userID, productID string, qty int) MutationResult {
	if qty <= 0 {
		qty = 1
	}
	err := c.locks.Do(ctx, userID, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, userPath(userID, "shopping-list"),
			addItemRequest{ProductID: productID, Quantity: qty}, nil)
	})
	if err != nil {
		return MutationResult{Err: err}
	}
	return MutationResult{Success: true}
}

// RemoveItem deletes one list item.
func (c *Client) RemoveItem(ctx context.Context, userID, itemID string) MutationResult {
	err := c.locks.Do(ctx, userID, func(ctx context.Context) error {
		return c.removeItem(ctx, userID, itemID)
	})
	if err != nil {
		return MutationResult{Err: err}
	}
	return MutationResult{Success: true}
}

func (c *Client) removeItem(ctx context.Context, userID, itemID string) error {
	return c.do(ctx, http.MethodDelete, userPath(userID, "shopping-list", itemID), nil, nil)
}

// ClearList reads the list and deletes every item concurrently while holding
// the user's lock. Partial failure is reported, not escalated.
func (c *Client) ClearList(ctx context.Context, userID string) ClearResult {
	unlock, err := c.locks.Lock(ctx, userID)
	if err != nil {
		return ClearResult{Err: fmt.Errorf("backend: ClearList: %w", err)}
	}
	defer unlock()

	items, err := c.GetList(ctx, userID)
	if err != nil {
		return ClearResult{Err: fmt.Errorf("backend: ClearList: %w", err)}
	}

	var (
		mu      sync.Mutex
		removed int
		failed  []string
	)
	var g errgroup.Group
	g.SetLimit(clearConcurrency)
	for _, item := range items {
		g.Go(func() error {
			err := c.removeItem(ctx, userID, item.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, item.ID)
				c.logger.Warn("failed to remove list item",
					zap.String("user_id", userID),
					zap.String("item_id", item.ID),
					zap.Error(err),
				)
				return nil
			}
			removed++
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(failed)

	res := ClearResult{Success: len(failed) == 0, ItemsRemoved: removed, FailedItems: failed}
	if len(failed) > 0 {
		res.Err = fmt.Errorf("backend: ClearList: %d of %d items could not be removed", len(failed), len(items))
	}
	return res
}

// SetBudgetLimit stores a new budget on the user's profile. The backend
// replaces the whole profile, so the other profile fields are sent along.
func (c *Client) SetBudgetLimit(ctx context.Context, p domain.Profile, limit float64) MutationResult {
	req := updateUserRequest{Profile: profilePayload{
		DietaryRestrictions: p.DietaryRestrictions,
		BudgetLimit:         limit,
	}}
	err := c.locks.Do(ctx, p.UserID, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPut, userPath(p.UserID), req, nil)
	})
	if err != nil {
		return MutationResult{Err: err}
	}
	return MutationResult{Success: true}
}

// GetSpending reads spending totals by category.
func (c *Client) GetSpending(ctx context.Context, userID string) (map[string]float64, error) {
	out := map[string]float64{}
	if err := c.do(ctx, http.MethodGet, userPath(userID, "analytics", "spending"), nil, &out); err != nil {
		return map[string]float64{}, err
	}
	return out, nil
}

// Health probes the backend's health endpoint through the breaker.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

package actions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"shopping-assistant/internal/backend"
	"shopping-assistant/internal/discovery"
	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
)

type fakeBackend struct {
	mu         sync.Mutex
	profile    domain.Profile
	profileErr error
	list       []domain.ListItem
	listErr    error
	addFail    map[string]bool
	removeFail map[string]bool
	spending   map[string]float64
	clear      backend.ClearResult
	budgetErr  error

	added   []string
	removed []string
	budget  float64
	cleared bool
}

func (f *fakeBackend) GetProfile(context.Context, string) (domain.Profile, error) {
	return f.profile, f.profileErr
}

func (f *fakeBackend) GetList(context.Context, string) ([]domain.ListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return []domain.ListItem{}, f.listErr
	}
	return append([]domain.ListItem{}, f.list...), nil
}

func (f *fakeBackend) AddItem(_ context.Context, _ string, productID string, qty int) backend.MutationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addFail[productID] {
		return backend.MutationResult{Err: errors.New("boom")}
	}
	f.added = append(f.added, productID)
	f.list = append(f.list, domain.ListItem{ID: "li-" + productID, ProductID: productID, Name: productID, Quantity: qty})
	return backend.MutationResult{Success: true}
}

func (f *fakeBackend) RemoveItem(_ context.Context, _ string, itemID string) backend.MutationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeFail[itemID] {
		return backend.MutationResult{Err: errors.New("boom")}
	}
	f.removed = append(f.removed, itemID)
	return backend.MutationResult{Success: true}
}

func (f *fakeBackend) ClearList(context.Context, string) backend.ClearResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	return f.clear
}

func (f *fakeBackend) GetSpending(context.Context, string) (map[string]float64, error) {
	if f.spending == nil {
		return nil, errors.New("unavailable")
	}
	return f.spending, nil
}

func (f *fakeBackend) SetBudgetLimit(_ context.Context, _ domain.Profile, limit float64) backend.MutationResult {
	if f.budgetErr != nil {
		return backend.MutationResult{Err: f.budgetErr}
	}
	f.budget = limit
	return backend.MutationResult{Success: true}
}

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]domain.Product
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, topK int) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	out, ok := f.results[query]
	if !ok {
		return nil, errors.New("no results configured")
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func newTestExecutor(t *testing.T, b Backend, s Searcher, d oracle.Decider) *Executor {
	t.Helper()
	e, err := NewExecutor(b, s, d)
	require.NoError(t, err)
	return e
}

func TestNewExecutor_Validates(t *testing.T) {
	_, err := NewExecutor(nil, &fakeSearcher{}, oracle.Table{})
	require.Error(t, err)
	_, err = NewExecutor(&fakeBackend{}, nil, oracle.Table{})
	require.Error(t, err)
	_, err = NewExecutor(&fakeBackend{}, &fakeSearcher{}, nil)
	require.Error(t, err)
}

func TestExecute_AddContextualProducts(t *testing.T) {
	b := &fakeBackend{}
	e := newTestExecutor(t, b, &fakeSearcher{}, oracle.Table{oracle.SiteListAction: "ADD_CONTEXTUAL_PRODUCTS"})

	out := e.Execute(context.Background(), Request{
		UserID:  "u1",
		Message: "add those to my cart",
		Intent:  domain.IntentShoppingList,
		Profile: domain.Profile{UserID: "u1"},
		ContextProducts: []domain.Product{
			{ID: "P1", Name: "Milk"},
			{ID: "P2", Name: "Bread"},
		},
	})

	require.Equal(t, []string{"P1", "P2"}, b.added)
	require.Contains(t, out.Actions, "Added 2 items to your cart: Milk, Bread")
	require.Len(t, out.List, 2)
	require.Equal(t, "added 2 items", out.LastAction)
}

func TestExecute_ListUnavailable(t *testing.T) {
	b := &fakeBackend{listErr: errors.New("503")}
	e := newTestExecutor(t, b, &fakeSearcher{}, oracle.Table{oracle.SiteListAction: "VIEW_LIST"})

	out := e.Execute(context.Background(), Request{UserID: "u1", Intent: domain.IntentShoppingList})

	require.Equal(t, "Failed to retrieve shopping list", out.Actions[0])
	require.NotNil(t, out.List)
	require.Empty(t, out.List)
	require.Equal(t, domain.Profile{}, out.Profile)
}

func TestExecute_ProfileFallback(t *testing.T) {
	b := &fakeBackend{profileErr: errors.New("down")}
	e := newTestExecutor(t, b, &fakeSearcher{}, oracle.Table{})

	out := e.Execute(context.Background(), Request{UserID: "u1", Intent: domain.IntentGeneralChat})

	require.Equal(t, domain.Profile{UserID: "u1"}, out.Profile)
	require.Contains(t, out.Trace, "No actions needed for general_chat")
	require.Empty(t, out.Actions)
}

func TestExecute_OracleFailureFallsBackToNoAction(t *testing.T) {
	d := oracle.DeciderFunc(func(context.Context, string) (string, error) {
		return "", errors.New("timeout")
	})
	b := &fakeBackend{}
	e := newTestExecutor(t, b, &fakeSearcher{}, d)

	out := e.Execute(context.Background(), Request{UserID: "u1", Intent: domain.IntentShoppingList})

	require.Empty(t, b.added)
	require.False(t, b.cleared)
	require.Equal(t, []string{"I'm ready to help with your shopping list"}, out.Actions)
}

func TestExecute_ClearList(t *testing.T) {
	b := &fakeBackend{
		list:  []domain.ListItem{{ID: "i1"}, {ID: "i2"}},
		clear: backend.ClearResult{Success: true, ItemsRemoved: 2},
	}
	e := newTestExecutor(t, b, &fakeSearcher{}, oracle.Table{oracle.SiteListAction: "CLEAR_LIST"})

	out := e.Execute(context.Background(), Request{UserID: "u1", Intent: domain.IntentShoppingList})

	require.True(t, b.cleared)
	require.Empty(t, out.List)
	require.Contains(t, out.Actions, "Cleared your shopping list (2 items removed)")
}

func TestExecute_ClearListPartial(t *testing.T) {
	b := &fakeBackend{
		list:  []domain.ListItem{{ID: "i2"}},
		clear: backend.ClearResult{ItemsRemoved: 4, FailedItems: []string{"i2"}},
	}
	e := newTestExecutor(t, b, &fakeSearcher{}, oracle.Table{oracle.SiteListAction: "CLEAR_LIST"})

	out := e.Execute(context.Background(), Request{UserID: "u1", Intent: domain.IntentShoppingList})

	require.Contains(t, out.Actions, "Removed 4 items from your shopping list; 1 could not be removed")
	require.Len(t, out.List, 1)
}

func TestExecute_AddSpecificItemsSearchesEachTerm(t *testing.T) {
	b := &fakeBackend{addFail: map[string]bool{"e1": true}}
	s := &fakeSearcher{results: map[string][]domain.Product{
		"milk":  {{ID: "m1", Name: "Whole Milk"}},
		"eggs":  {{ID: "e1", Name: "Large Eggs"}},
		"phone": {{ID: "x1", Name: "Cell Phone Case"}},
	}}
	e := newTestExecutor(t, b, s, oracle.Table{
		oracle.SiteListAction: "ADD_SPECIFIC_ITEMS",
		oracle.SiteItems:      "ITEMS: milk, eggs, phone",
	})

	out := e.Execute(context.Background(), Request{UserID: "u1", Message: "add milk, eggs and a phone", Intent: domain.IntentShoppingList})

	require.Equal(t, []string{"m1"}, b.added)
	require.Equal(t, []string{"milk", "eggs", "phone"}, s.queries)
	require.Contains(t, out.Actions, "Added 1 items to your cart: Whole Milk")
	require.Contains(t, out.Actions, "1 products could not be added (backend issue)")
	require.Contains(t, out.Actions, "Skipped 1 items that are not groceries")
}

func TestExecute_AddSpecificPrefersDiscovered(t *testing.T) {
	b := &fakeBackend{}
	s := &fakeSearcher{}
	e := newTestExecutor(t, b, s, oracle.Table{
		oracle.SiteListAction: "ADD_SPECIFIC_ITEMS",
		oracle.SiteItems:      `["pasta"]`,
	})

	e.Execute(context.Background(), Request{
		UserID:    "u1",
		Intent:    domain.IntentShoppingList,
		Discovery: &discovery.Result{Products: []domain.Product{{ID: "p1", Name: "Penne Pasta"}}},
	})

	require.Equal(t, []string{"p1"}, b.added)
	require.Empty(t, s.queries)
}

func TestExecute_AddContextualWithoutCandidatesExtractsItems(t *testing.T) {
	b := &fakeBackend{}
	s := &fakeSearcher{results: map[string][]domain.Product{"rice": {{ID: "r1", Name: "Basmati Rice"}}}}
	e := newTestExecutor(t, b, s, oracle.Table{
		oracle.SiteListAction: "ADD_CONTEXTUAL_PRODUCTS",
		oracle.SiteItems:      "ITEMS: rice",
	})

	e.Execute(context.Background(), Request{UserID: "u1", Intent: domain.IntentShoppingList})

	require.Equal(t, []string{"r1"}, b.added)
}

func TestExecute_AddContextualNothingFound(t *testing.T) {
	b := &fakeBackend{}
	e := newTestExecutor(t, b, &fakeSearcher{}, oracle.Table{
		oracle.SiteListAction: "ADD_CONTEXTUAL_PRODUCTS",
		oracle.SiteItems:      "ITEMS: NONE",
	})

	out := e.Execute(context.Background(), Request{UserID: "u1", Intent: domain.IntentShoppingList})

	require.Empty(t, b.added)
	require.Contains(t, out.Actions, "No suitable items found to add. Please be more specific about what you'd like")
}

func TestExecute_RemoveSpecific(t *testing.T) {
	b := &fakeBackend{
		list: []domain.ListItem{
			{ID: "i1", Name: "Organic Milk"},
			{ID: "i2", Name: "Sourdough Bread"},
			{ID: "i3", Name: "Oat Milk"},
		},
		removeFail: map[string]bool{"i3": true},
	}
	e := newTestExecutor(t, b, &fakeSearcher{}, oracle.Table{
		oracle.SiteListAction: "REMOVE_SPECIFIC",
		oracle.SiteItems:      "ITEMS: milk, cheese",
	})

	out := e.Execute(context.Background(), Request{UserID: "u1", Message: "remove the milk and cheese", Intent: domain.IntentShoppingList})

	require.Equal(t, []string{"i1"}, b.removed)
	require.Contains(t, out.Actions, "Removed 1 items from your list: Organic Milk")
	require.Contains(t, out.Actions, "1 items could not be removed (backend issue)")
	require.Contains(t, out.Actions, "No list items matched: cheese")
}

func TestExecute_ViewList(t *testing.T) {
	b := &fakeBackend{list: []domain.ListItem{{ID: "i1"}, {ID: "i2"}}}
	e := newTestExecutor(t, b, &fakeSearcher{}, oracle.Table{oracle.SiteListAction: "view_list."})

	out := e.Execute(context.Background(), Request{UserID: "u1", Intent: domain.IntentShoppingList})

	require.Equal(t, []string{"Your shopping list contains 2 items"}, out.Actions)
}

func TestParseItems(t *testing.T) {
	require.Equal(t, []string{"milk", "eggs"}, ParseItems("ITEMS: milk, eggs"))
	require.Equal(t, []string{"a", "b", "c", "d"}, ParseItems(`Sure: ["a","b","c","d","e"]`))
	require.Empty(t, ParseItems("ITEMS: NONE"))
	require.Empty(t, ParseItems("no idea"))
}

func TestSummarize(t *testing.T) {
	require.Equal(t, "a, b", summarize([]string{"a", "b"}))
	require.Equal(t, "a, b, c and 2 more", summarize([]string{"a", "b", "c", "d", "e"}))
}

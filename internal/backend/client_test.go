package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/resilience"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{
		WithRetryPolicy(resilience.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}),
	}, opts...)
	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewClient_ValidatesBaseURL(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
	_, err = NewClient("not a url")
	require.Error(t, err)

	c, err := NewClient("http://localhost:8000/")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", c.baseURL)
	require.NotNil(t, c.Breaker())
}

func TestGetProfile_MapsUser(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/u1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"u1","name":"Ana","email":"ana@example.com",
			"profile":{"dietary_restrictions":["vegetarian"],"budget_limit":75.5}}`))
	}))

	p, err := c.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, domain.Profile{
		UserID:              "u1",
		Name:                "Ana",
		Email:               "ana@example.com",
		DietaryRestrictions: []string{"vegetarian"},
		BudgetLimit:         75.5,
	}, p)
}

func TestGetList_MapsItems(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"i1","productId":"p1","quantity":2,
			"product":{"id":"p1","name":"Whole Milk","brand":"Acme","category":"Dairy","price":3.5}}]`))
	}))

	items, err := c.GetList(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, []domain.ListItem{{
		ID: "i1", ProductID: "p1", Name: "Acme Whole Milk", Category: "Dairy", Price: 3.5, Quantity: 2,
	}}, items)
}

func TestGetList_RetriesThenReturnsEmpty(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	items, err := c.GetList(context.Background(), "u1")
	require.Error(t, err)
	require.ErrorIs(t, err, resilience.ErrMaxRetries)
	require.NotNil(t, items)
	require.Empty(t, items)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetProfile_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"detail":"User not found"}`, http.StatusNotFound)
	}))

	_, err := c.GetProfile(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, resilience.StateClosed, c.Breaker().State())
}

func TestBreaker_OpensAndFailsFast(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}), WithRetryPolicy(resilience.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond}))

	for i := 0; i < resilience.DefaultFailureThreshold; i++ {
		_, err := c.GetSpending(context.Background(), "u1")
		require.Error(t, err)
	}
	require.True(t, c.Breaker().IsOpen())
	before := atomic.LoadInt32(&calls)

	_, err := c.GetSpending(context.Background(), "u1")
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	require.Equal(t, before, atomic.LoadInt32(&calls), "no request while open")
}

func TestAddItem_SendsBody(t *testing.T) {
	var got addItemRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/users/u1/shopping-list", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"i1"}`))
	}))

	res := c.AddItem(context.Background(), "u1", "p9", 0)
	require.True(t, res.Success)
	require.NoError(t, res.Err)
	require.Equal(t, addItemRequest{ProductID: "p9", Quantity: 1}, got)
}

func TestAddItem_SameUserRequestsDoNotInterleave(t *testing.T) {
	var mu sync.Mutex
	var events []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body addItemRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		events = append(events, "start:"+body.ProductID)
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		events = append(events, "end:"+body.ProductID)
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, c.AddItem(context.Background(), "u1", id, 1).Success)
		}()
	}
	wg.Wait()

	require.Len(t, events, 6)
	for i := 0; i < len(events); i += 2 {
		require.True(t, strings.HasPrefix(events[i], "start:"), events)
		require.Equal(t, "end:"+strings.TrimPrefix(events[i], "start:"), events[i+1], events)
	}
}

func TestRemoveItem_FailureIsSoft(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/u1/shopping-list/i1", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
	}))

	res := c.RemoveItem(context.Background(), "u1", "i1")
	require.False(t, res.Success)
	require.Error(t, res.Err)
}

func TestClearList_ReportsPartialFailure(t *testing.T) {
	var deletes int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":"i1","product":{"name":"a"}},{"id":"i2","product":{"name":"b"}},{"id":"i3","product":{"name":"c"}}]`))
		case http.MethodDelete:
			atomic.AddInt32(&deletes, 1)
			if strings.HasSuffix(r.URL.Path, "/i2") {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`{"status":"success"}`))
		}
	}))

	res := c.ClearList(context.Background(), "u1")
	require.False(t, res.Success)
	require.Equal(t, 2, res.ItemsRemoved)
	require.Equal(t, []string{"i2"}, res.FailedItems)
	require.Error(t, res.Err)
	// i2 is retried three times.
	require.Equal(t, int32(5), atomic.LoadInt32(&deletes))
}

func TestClearList_EmptyList(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	res := c.ClearList(context.Background(), "u1")
	require.True(t, res.Success)
	require.Zero(t, res.ItemsRemoved)
	require.NoError(t, res.Err)
}

func TestGetSpending(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/u1/analytics/spending", r.URL.Path)
		_, _ = w.Write([]byte(`{"Dairy":12.5,"Produce":30}`))
	}))
	got, err := c.GetSpending(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"Dairy": 12.5, "Produce": 30}, got)
}

func TestMalformedBodyIsPermanent(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{not json`))
	}))
	_, err := c.GetSpending(context.Background(), "u1")
	require.ErrorIs(t, err, errMalformed)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCancelledContextDoesNotTripBreaker(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < resilience.DefaultFailureThreshold+1; i++ {
		_, err := c.GetList(ctx, "u1")
		require.Error(t, err)
	}
	require.Equal(t, resilience.StateClosed, c.Breaker().State())
}

func TestSetBudgetLimit_KeepsRestrictions(t *testing.T) {
	var got updateUserRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/users/u1", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"u1"}`))
	}))

	res := c.SetBudgetLimit(context.Background(), domain.Profile{UserID: "u1", DietaryRestrictions: []string{"vegan"}}, 80)
	require.True(t, res.Success)
	require.Equal(t, []string{"vegan"}, got.Profile.DietaryRestrictions)
	require.Equal(t, 80.0, got.Profile.BudgetLimit)
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	require.NoError(t, c.Health(context.Background()))
	require.Equal(t, int64(1), c.Breaker().Metrics().Calls)

	down := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), WithRetryPolicy(resilience.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond}))
	err := down.Health(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.HTTPStatusCode())
}

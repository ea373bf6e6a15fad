package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shopping-assistant/internal/config"
	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/oracle"
	"shopping-assistant/internal/repository"
	"shopping-assistant/internal/usecase"
)

func testConfig(backendURL, searchURL string) config.Config {
	return config.Config{
		ParamPrefix:    "/shop",
		BackendBaseURL: backendURL,
		SearchBaseURL:  searchURL,
		MaxProducts:    10,
		MaxHistory:     20,
		MaxMessageLen:  1000,
		TurnTimeout:    5 * time.Second,
		OracleTimeout:  time.Second,
		LockShards:     8,
	}
}

func TestNew_ValidatesDeps(t *testing.T) {
	cfg := testConfig("http://localhost:8000", "http://localhost:8001")

	_, err := New(cfg, Deps{})
	require.ErrorContains(t, err, "session store")

	_, err = New(cfg, Deps{Sessions: repository.NewMemory()})
	require.ErrorContains(t, err, "params getter")

	bad := cfg
	bad.BackendBaseURL = "not a url"
	_, err = New(bad, Deps{Sessions: repository.NewMemory(), Decider: oracle.Table{}})
	require.ErrorContains(t, err, "backend client")
}

func TestNew_RegistersBreakers(t *testing.T) {
	a, err := New(testConfig("http://localhost:8000", "http://localhost:8001"), Deps{
		Sessions: repository.NewMemory(),
		Decider:  oracle.Table{},
	})
	require.NoError(t, err)

	var names []string
	for _, m := range a.Breakers.Metrics() {
		names = append(names, m.Name)
		require.Equal(t, "CLOSED", m.State)
	}
	require.Equal(t, []string{"backend", "search"}, names)
}

func TestNew_EndToEndDiscoveryTurn(t *testing.T) {
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
  "ids": [["P1"]],
  "documents": [["Product: Organic Apples | Category: Fruit"]],
  "metadatas": [[{"category": "Fruit", "price": 3.5}]],
  "distances": [[0.08]]
}`))
	}))
	defer searchSrv.Close()
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer backendSrv.Close()

	sessions := repository.NewMemory()
	a, err := New(testConfig(backendSrv.URL, searchSrv.URL), Deps{
		Sessions: sessions,
		Decider: oracle.Table{
			oracle.SiteIntent:     "product_discovery",
			oracle.SiteComplexity: "TYPE: SIMPLE",
			oracle.SiteResponse:   "Here are some organic apples.",
		},
	})
	require.NoError(t, err)

	out, err := a.Chat.Chat(context.Background(), usecase.ChatInput{Message: "find organic apples", UserID: "u1"})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, domain.IntentProductDiscovery, out.Intent)
	require.Equal(t, "Here are some organic apples.", out.Response)
	require.NotEmpty(t, out.SessionID)

	meta, ok, err := sessions.LoadSession(context.Background(), out.SessionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, meta.Turns)
}

func TestNew_StoredProfileFiltersDiscovery(t *testing.T) {
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
  "ids": [["P1", "P2"]],
  "documents": [["Product: Chicken Breast | Category: Meat", "Product: Firm Tofu | Category: Protein"]],
  "metadatas": [[{"category": "Meat", "price": 80}, {"category": "Protein", "price": 4.5}]],
  "distances": [[0.1, 0.2]]
}`))
	}))
	defer searchSrv.Close()

	var profileGets atomic.Int32
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/users/u1" {
			profileGets.Add(1)
			_, _ = w.Write([]byte(`{"id":"u1","profile":{"dietary_restrictions":["vegetarian"],"budget_limit":50}}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer backendSrv.Close()

	a, err := New(testConfig(backendSrv.URL, searchSrv.URL), Deps{
		Sessions: repository.NewMemory(),
		Decider: oracle.Table{
			oracle.SiteIntent:     "product_discovery",
			oracle.SiteComplexity: "TYPE: SIMPLE",
			oracle.SiteResponse:   "Try the tofu.",
		},
	})
	require.NoError(t, err)

	out, err := a.Chat.Chat(context.Background(), usecase.ChatInput{Message: "find me some protein", UserID: "u1"})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, int32(1), profileGets.Load())
	require.Len(t, out.Products, 1)
	require.Equal(t, "P2", out.Products[0].ID)
}

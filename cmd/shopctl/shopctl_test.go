package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/resilience"
	"shopping-assistant/internal/usecase"
)

func TestReadProfile(t *testing.T) {
	p, err := readProfile("")
	require.NoError(t, err)
	require.Nil(t, p)

	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"dietaryRestrictions":["vegan"],"budgetLimit":60}`), 0o600))
	p, err = readProfile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"vegan"}, p.DietaryRestrictions)
	require.Equal(t, 60.0, p.BudgetLimit)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err = readProfile(path)
	require.ErrorContains(t, err, "parse profile")
}

func TestLoadEnv(t *testing.T) {
	require.NoError(t, loadEnv(""))
	require.NoError(t, loadEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SHOPCTL_TEST_VALUE=from-file\n"), 0o600))
	t.Setenv("SHOPCTL_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("SHOPCTL_TEST_VALUE"))
	require.NoError(t, loadEnv(path))
	require.Equal(t, "from-file", os.Getenv("SHOPCTL_TEST_VALUE"))
}

func TestPrintTurn(t *testing.T) {
	out := usecase.ChatOutput{
		Response:  "Added 1 items to your cart",
		Products:  []domain.Product{{ID: "P1", Name: "Organic Apples", Price: 3.5}},
		Actions:   []string{"Added 1 items to your cart: Organic Apples"},
		Trace:     []string{"Intent: shopping_list_management"},
		Intent:    domain.IntentShoppingList,
		SessionID: "s1",
		Success:   true,
	}

	var quiet bytes.Buffer
	printTurn(&quiet, out, false)
	require.Contains(t, quiet.String(), "Added 1 items to your cart")
	require.Contains(t, quiet.String(), "Session: s1")
	require.Contains(t, quiet.String(), "$3.50")
	require.NotContains(t, quiet.String(), "Trace:")

	var loud bytes.Buffer
	printTurn(&loud, out, true)
	require.Contains(t, loud.String(), "Intent: shopping_list_management")
}

func TestPrintMetrics(t *testing.T) {
	var buf bytes.Buffer
	printMetrics(&buf, "http://localhost:8000", errors.New("backend: circuit open"), []resilience.BreakerMetrics{
		{Name: "backend", State: "OPEN", Failures: 5, Calls: 7, Rejections: 2},
	})
	require.Contains(t, buf.String(), "Backend http://localhost:8000: backend: circuit open")
	require.Regexp(t, `backend\s+OPEN\s+5\s+7\s+2`, buf.String())
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t, []string{"chat", "breaker"}, names)
}

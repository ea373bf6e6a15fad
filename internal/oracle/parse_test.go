package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLabel(t *testing.T) {
	allowed := []string{"product_discovery", "shopping_list_management", "general_chat"}
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "exact", raw: "product_discovery", want: "product_discovery"},
		{name: "upper with whitespace", raw: "  SHOPPING_LIST_MANAGEMENT \n", want: "shopping_list_management"},
		{name: "trailing punctuation", raw: "general_chat.", want: "general_chat"},
		{name: "quoted", raw: `"product_discovery"`, want: "product_discovery"},
		{name: "token in sentence", raw: "Intent: product_discovery", want: "product_discovery"},
		{name: "leading blank lines", raw: "\n\nproduct_discovery\nextra", want: "product_discovery"},
		{name: "out of set", raw: "checkout", want: "general_chat"},
		{name: "only on second line", raw: "hmm\nproduct_discovery", want: "general_chat"},
		{name: "empty", raw: "   ", want: "general_chat"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Label(tc.raw, allowed, "general_chat"))
		})
	}
}

func TestKeyValues(t *testing.T) {
	raw := "TYPE: complex\nMAIN: chicken breast\nSUPPORTING: [lettuce, tomato]\nsome prose without colon\nnot a key: x"
	got := KeyValues(raw)
	require.Equal(t, "complex", got["TYPE"])
	require.Equal(t, "chicken breast", got["MAIN"])
	require.Equal(t, "[lettuce, tomato]", got["SUPPORTING"])
	_, ok := got["NOT A KEY"]
	require.False(t, ok)
}

func TestList(t *testing.T) {
	require.Equal(t, []string{"lettuce", "tomato", "croutons"}, List(`[lettuce, "tomato", 'croutons']`))
	require.Equal(t, []string{"milk"}, List("milk"))
	require.Nil(t, List("[]"))
	require.Nil(t, List("none"))
	require.Equal(t, []string{"eggs"}, List("eggs, , N/A"))
}

func TestStrings(t *testing.T) {
	got, ok := Strings(`Sure! ["milk", "eggs"]`)
	require.True(t, ok)
	require.Equal(t, []string{"milk", "eggs"}, got)

	_, ok = Strings(`["milk", 3]`)
	require.False(t, ok)

	_, ok = Strings(`[milk, eggs]`)
	require.False(t, ok)

	_, ok = Strings("no array here")
	require.False(t, ok)
}

func TestSiteOfAndTable(t *testing.T) {
	p := Prompt(SiteListAction, "user said: add those")
	require.Equal(t, SiteListAction, SiteOf(p))
	require.Equal(t, Site(""), SiteOf("plain prompt"))

	table := Table{SiteListAction: "ADD_CONTEXTUAL_PRODUCTS"}
	got, err := table.Decide(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "ADD_CONTEXTUAL_PRODUCTS", got)

	got, err = table.Decide(context.Background(), Prompt(SiteIntent, "x"))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDeciderFunc(t *testing.T) {
	var d Decider = DeciderFunc(func(_ context.Context, prompt string) (string, error) {
		return "echo:" + prompt, nil
	})
	got, err := d.Decide(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "echo:hi", got)
}

func TestWithTimeout(t *testing.T) {
	slow := DeciderFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	_, err := WithTimeout(slow, 10*time.Millisecond).Decide(context.Background(), "x")
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	table := Table{SiteIntent: "general_chat"}
	require.Equal(t, Decider(table), WithTimeout(table, 0))
}

func TestBody(t *testing.T) {
	require.Equal(t, "pick one", Body(Prompt(SiteIntent, "pick one")))
	require.Equal(t, "untagged", Body("untagged"))
}

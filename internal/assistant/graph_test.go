package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func passStage(name StageName) Stage {
	return Stage{
		Name: name,
		Run: func(_ context.Context, s TurnState) (TurnState, error) {
			s.Actions = append(s.Actions, string(name))
			return s, nil
		},
	}
}

func TestNewGraph_Validation(t *testing.T) {
	a, b, c := passStage("a"), passStage("b"), passStage("c")
	cases := map[string]struct {
		entry  StageName
		stages []Stage
		edges  []Edge
	}{
		"unknown entry":       {entry: "x", stages: []Stage{a}},
		"duplicate stage":     {entry: "a", stages: []Stage{a, a}},
		"missing run":         {entry: "a", stages: []Stage{{Name: "a"}}},
		"unknown target":      {entry: "a", stages: []Stage{a}, edges: []Edge{{From: "a", To: "z"}}},
		"two terminals":       {entry: "a", stages: []Stage{a, b, c}, edges: []Edge{{From: "a", To: "b"}}},
		"no terminal (cycle)": {entry: "a", stages: []Stage{a, b}, edges: []Edge{{From: "a", To: "b"}, {From: "b", To: "a"}}},
		"cycle": {entry: "a", stages: []Stage{a, b, c}, edges: []Edge{
			{From: "a", Route: func(TurnState) StageName { return "b" }, Targets: []StageName{"b", "c"}},
			{From: "b", To: "b"},
		}},
		"two edges from one stage": {entry: "a", stages: []Stage{a, b}, edges: []Edge{{From: "a", To: "b"}, {From: "a", To: "b"}}},
		"conditional without targets": {entry: "a", stages: []Stage{a, b}, edges: []Edge{
			{From: "a", Route: func(TurnState) StageName { return "b" }},
		}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewGraph(tc.entry, tc.stages, tc.edges, nil)
			require.Error(t, err)
		})
	}
}

func TestNewGraph_Unreachable(t *testing.T) {
	a, b, c := passStage("a"), passStage("b"), passStage("c")
	_, err := NewGraph("a", []Stage{a, b, c}, []Edge{{From: "a", To: "c"}, {From: "b", To: "c"}}, nil)
	require.ErrorContains(t, err, "unreachable")
}

func TestGraph_RunFollowsRoute(t *testing.T) {
	a, b, c, d := passStage("a"), passStage("b"), passStage("c"), passStage("d")
	g, err := NewGraph("a", []Stage{a, b, c, d}, []Edge{
		{From: "a", Route: func(TurnState) StageName { return "c" }, Targets: []StageName{"b", "c"}},
		{From: "b", To: "d"},
		{From: "c", To: "d"},
	}, nil)
	require.NoError(t, err)

	out := g.Run(context.Background(), TurnState{})
	require.Equal(t, []string{"a", "c", "d"}, out.Actions)
}

func TestGraph_UnknownRouteFallsBackToFirstTarget(t *testing.T) {
	a, b, c := passStage("a"), passStage("b"), passStage("c")
	g, err := NewGraph("a", []Stage{a, b, c}, []Edge{
		{From: "a", Route: func(TurnState) StageName { return "nowhere" }, Targets: []StageName{"b", "c"}},
		{From: "b", To: "c"},
	}, nil)
	require.NoError(t, err)

	out := g.Run(context.Background(), TurnState{})
	require.Equal(t, []string{"a", "b", "c"}, out.Actions)
	require.Len(t, out.Trace, 1)
}

func TestGraph_StageFailureUsesFallbackAndContinues(t *testing.T) {
	boom := Stage{
		Name: "boom",
		Run: func(_ context.Context, s TurnState) (TurnState, error) {
			s.Actions = append(s.Actions, "partial")
			panic("kaboom")
		},
		Fallback: func(s TurnState, cause error) TurnState {
			s.Response = "fallback: " + cause.Error()
			return s
		},
	}
	failing := Stage{
		Name: "failing",
		Run: func(_ context.Context, s TurnState) (TurnState, error) {
			return s, errors.New("nope")
		},
	}
	g, err := NewGraph("a", []Stage{passStage("a"), boom, failing, passStage("end")}, []Edge{
		{From: "a", To: "boom"},
		{From: "boom", To: "failing"},
		{From: "failing", To: "end"},
	}, nil)
	require.NoError(t, err)

	out := g.Run(context.Background(), TurnState{})
	require.Equal(t, []string{"a", "end"}, out.Actions)
	require.Equal(t, "fallback: panic: kaboom", out.Response)
	require.Equal(t, []string{"Error in boom: panic: kaboom", "Error in failing: nope"}, out.Trace)
}

func TestGraph_StagesGetCopies(t *testing.T) {
	in := TurnState{Actions: []string{"seed"}}
	g, err := NewGraph("a", []Stage{passStage("a")}, nil, nil)
	require.NoError(t, err)

	out := g.Run(context.Background(), in)
	require.Equal(t, []string{"seed"}, in.Actions)
	require.Equal(t, []string{"seed", "a"}, out.Actions)
}

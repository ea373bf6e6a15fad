package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_RoundTrip(t *testing.T) {
	m := NewMemory()
	tick := fixedNow
	m.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	ctx := context.Background()

	_, ok, err := m.LoadSession(ctx, "abc")
	require.NoError(t, err)
	require.False(t, ok)

	for i := range 3 {
		turn := sampleTurn()
		turn.UserText = fmt.Sprintf("message %d", i)
		turn.Turns = i + 1
		require.NoError(t, m.SaveCompletedTurn(ctx, turn))
	}

	meta, ok, err := m.LoadSession(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, meta.Turns)
	require.Equal(t, `{"relevance_score":1}`, meta.Context)

	msgs, err := m.GetHistory(ctx, "abc", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "message 1", msgs[0].UserText)
	require.Equal(t, "message 2", msgs[1].UserText)

	msgs[0].UserText = "mutated"
	again, err := m.GetHistory(ctx, "abc", 2)
	require.NoError(t, err)
	require.Equal(t, "message 1", again[0].UserText)
}

func TestMemory_RejectsEmptySession(t *testing.T) {
	m := NewMemory()
	turn := sampleTurn()
	turn.SessionID = ""
	require.Error(t, m.SaveCompletedTurn(context.Background(), turn))
}

func TestMemory_ZeroLimit(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.SaveCompletedTurn(context.Background(), sampleTurn()))
	msgs, err := m.GetHistory(context.Background(), "abc", 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

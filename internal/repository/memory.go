package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"shopping-assistant/internal/domain"
)

// Memory is a process-local session store used by the CLI when no table is
// configured. Sessions do not survive the process.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	history  map[string][]domain.Message
	sessions map[string]domain.SessionMeta
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		history:  make(map[string][]domain.Message),
		sessions: make(map[string]domain.SessionMeta),
	}
}

// GetHistory returns up to limit of the most recent turns in chronological order.
func (m *Memory) GetHistory(_ context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.history[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// LoadSession returns the stored metadata for a session.
func (m *Memory) LoadSession(_ context.Context, sessionID string) (domain.SessionMeta, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.sessions[sessionID]
	return meta, ok, nil
}

// SaveCompletedTurn records the turn and replaces the session metadata.
func (m *Memory) SaveCompletedTurn(_ context.Context, turn domain.CompletedTurn) error {
	if strings.TrimSpace(turn.SessionID) == "" {
		return errors.New("repository: SaveCompletedTurn: session id is required")
	}
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[turn.SessionID] = append(m.history[turn.SessionID], NewMessage(turn, now))
	m.sessions[turn.SessionID] = NewSessionMeta(turn, now)
	return nil
}

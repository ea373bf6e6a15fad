package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shopping-assistant/internal/assistant"
	"shopping-assistant/internal/domain"
)

const (
	defaultMaxHistory = 20
	defaultMaxMessage = 1000
)

// Turner runs one assistant turn.
type Turner interface {
	HandleTurn(ctx context.Context, in assistant.TurnInput) assistant.TurnOutput
}

// SessionStore persists chat history and conversation context per session.
type SessionStore interface {
	GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	LoadSession(ctx context.Context, sessionID string) (domain.SessionMeta, bool, error)
	SaveCompletedTurn(ctx context.Context, turn domain.CompletedTurn) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ChatService validates a chat request, restores the session around a turn
// and saves the result.
type ChatService struct {
	turner        Turner
	sessions      SessionStore
	maxHistory    int
	maxMessageLen int
	logger        *zap.Logger
}

type ChatInput struct {
	Message   string
	UserID    string
	SessionID string
	Profile   *domain.Profile
}

type ChatOutput struct {
	Response        string
	Products        []domain.Product
	Recommendations []domain.Recommendation
	Actions         []string
	Trace           []string
	Intent          domain.Intent
	SessionID       string
	Success         bool
	Error           string
}

type ChatOption func(*ChatService)

// WithLimits sets the history window (chat messages) and maximum message
// length. Non-positive values keep the defaults.
func WithLimits(maxHistory, maxMessageLen int) ChatOption {
	return func(s *ChatService) {
		if maxHistory > 0 {
			s.maxHistory = maxHistory
		}
		if maxMessageLen > 0 {
			s.maxMessageLen = maxMessageLen
		}
	}
}

func WithLogger(l *zap.Logger) ChatOption {
	return func(s *ChatService) {
		s.logger = l
	}
}

func NewChatService(t Turner, sessions SessionStore, opts ...ChatOption) (*ChatService, error) {
	if t == nil {
		return nil, errors.New("usecase: turner must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	s := &ChatService{
		turner:        t,
		sessions:      sessions,
		maxHistory:    defaultMaxHistory,
		maxMessageLen: defaultMaxMessage,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if len(message) > s.maxMessageLen {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "missing_user_id", nil)
	}

	sessionID := strings.TrimSpace(in.SessionID)
	resumed := sessionID != ""
	if !resumed {
		sessionID = newUUID()
	}
	logger := s.logger.With(zap.String("user_id", userID), zap.String("session_id", sessionID))

	var (
		meta    domain.SessionMeta
		history []domain.Message
	)
	if resumed {
		var (
			found bool
			err   error
		)
		meta, found, err = s.sessions.LoadSession(ctx, sessionID)
		if err != nil {
			return ChatOutput{}, storeError("session_load_error", err)
		}
		if found && meta.UserID != "" && meta.UserID != userID {
			return ChatOutput{}, newError(ErrorInvalidInput, "session_user_mismatch", nil)
		}
		// Each stored turn expands to two chat messages.
		history, err = s.sessions.GetHistory(ctx, sessionID, (s.maxHistory+1)/2)
		if err != nil {
			return ChatOutput{}, storeError("session_history_error", err)
		}
	}

	// A zero profile is loaded from the backend during the turn.
	var profile domain.Profile
	if in.Profile != nil {
		profile = *in.Profile
		profile.UserID = userID
	}

	out := s.turner.HandleTurn(ctx, assistant.TurnInput{
		UserID:  userID,
		Message: message,
		Profile: profile,
		History: domain.ToChat(history),
		Context: decodeContext(meta.Context, logger),
	})

	if out.Success {
		encoded, err := json.Marshal(out.Context)
		if err != nil {
			return ChatOutput{}, newError(ErrorInternal, "context_encode_error", err)
		}
		err = s.sessions.SaveCompletedTurn(ctx, domain.CompletedTurn{
			SessionID: sessionID,
			UserID:    userID,
			UserText:  message,
			Reply:     out.Response,
			Intent:    string(out.Intent),
			Context:   string(encoded),
			Turns:     meta.Turns + 1,
		})
		if err != nil {
			return ChatOutput{}, storeError("session_write_error", err)
		}
	} else {
		logger.Warn("turn failed; session not updated", zap.String("error", out.Error))
	}

	return ChatOutput{
		Response:        out.Response,
		Products:        out.Products,
		Recommendations: out.Recommendations,
		Actions:         out.Actions,
		Trace:           out.Trace,
		Intent:          out.Intent,
		SessionID:       sessionID,
		Success:         out.Success,
		Error:           out.Error,
	}, nil
}

// decodeContext restores the persisted context. A missing or unreadable
// context starts the conversation fresh.
func decodeContext(raw string, logger *zap.Logger) *domain.ConversationContext {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var cc domain.ConversationContext
	if err := json.Unmarshal([]byte(raw), &cc); err != nil {
		logger.Warn("discarding unreadable conversation context", zap.Error(err))
		return nil
	}
	return &cc
}

func storeError(reason string, err error) *Error {
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, reason, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrorUpstream, reason, err)
	}
	return newError(ErrorInternal, reason, err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}

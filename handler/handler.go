// Package handler adapts API Gateway proxy events to the chat service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// ChatUseCase is the service behind POST /chat.
type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type chatRequest struct {
	Message   string          `json:"message"`
	UserID    string          `json:"userId"`
	SessionID string          `json:"sessionId,omitempty"`
	Profile   *domain.Profile `json:"profile,omitempty"`
}

type chatResponse struct {
	Response        string                  `json:"response"`
	Products        []domain.Product        `json:"products"`
	Recommendations []domain.Recommendation `json:"recommendations"`
	ActionsTaken    []string                `json:"actionsTaken"`
	Trace           []string                `json:"trace"`
	Intent          domain.Intent           `json:"intent"`
	SessionID       string                  `json:"sessionId"`
	Success         bool                    `json:"success"`
	Error           string                  `json:"error,omitempty"`
}

type errorResponse struct {
	Error         string `json:"error"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlationId"`
}

type Handler struct {
	chat   ChatUseCase
	logger *zap.Logger
}

type Option func(*Handler)

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

func NewHandler(chat ChatUseCase, opts ...Option) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	h := &Handler{chat: chat}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h, nil
}

// Handle serves one API Gateway proxy request. Transport failures are
// reported through the status code; the returned error is always nil.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(event.Headers)
	logger := h.logger.With(zap.String("correlation_id", corrID))

	var req chatRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		logger.Info("rejecting malformed body", zap.Error(err))
		return errorReply(corrID, http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_json"), nil
	}

	out, err := h.chat.Chat(ctx, usecase.ChatInput{
		Message:   req.Message,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Profile:   req.Profile,
	})
	if err != nil {
		status, code, reason := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error("chat failed", zap.String("code", code), zap.String("reason", reason), zap.Error(err))
		} else {
			logger.Info("chat rejected", zap.String("code", code), zap.String("reason", reason))
		}
		return errorReply(corrID, status, code, reason), nil
	}

	return reply(corrID, http.StatusOK, chatResponse{
		Response:        out.Response,
		Products:        nonNil(out.Products),
		Recommendations: nonNil(out.Recommendations),
		ActionsTaken:    nonNil(out.Actions),
		Trace:           nonNil(out.Trace),
		Intent:          out.Intent,
		SessionID:       out.SessionID,
		Success:         out.Success,
		Error:           out.Error,
	}), nil
}

func statusFor(err error) (int, string, string) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal), "unexpected_error"
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, string(ucErr.Code), ucErr.Reason
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, string(ucErr.Code), ucErr.Reason
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, string(ucErr.Code), ucErr.Reason
	default:
		return http.StatusInternalServerError, string(usecase.ErrorInternal), ucErr.Reason
	}
}

// correlationID echoes the caller's X-Correlation-Id, matched without
// regard to case, or generates one.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return uuid.NewString()
}

func errorReply(corrID string, status int, code, reason string) events.APIGatewayProxyResponse {
	return reply(corrID, status, errorResponse{Error: code, Reason: reason, CorrelationID: corrID})
}

func reply(corrID string, status int, body any) events.APIGatewayProxyResponse {
	b, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(b),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"messenger-backend/internal/domain"
	"messenger-backend/internal/usecase"
)

const (
	defaultPage  = 1
	defaultLimit = 20
)

// MessagingService is the operation surface consumed by the handler.
// *usecase.MessagingService satisfies this interface.
type MessagingService interface {
	SendMessage(ctx context.Context, in usecase.SendInput) (domain.Message, error)
	ListConversationsForUser(ctx context.Context, userID string, page, limit int) (domain.Page[domain.ConversationSummary], error)
	GetConversation(ctx context.Context, conversationID string) (domain.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID string, page, limit int) (domain.Page[domain.Message], error)
	ListMessagesBefore(ctx context.Context, conversationID string, before time.Time, page, limit int) domain.Page[domain.Message]
}

// Handler routes API Gateway requests to the messaging operations and maps
// usecase error codes to HTTP status codes.
type Handler struct {
	svc MessagingService
}

func NewHandler(svc MessagingService) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: messaging service must not be nil")
	}
	return &Handler{svc: svc}, nil
}

type sendRequest struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	path := strings.TrimSuffix(req.Path, "/")

	switch {
	case req.HTTPMethod == http.MethodPost && path == "/api/messages":
		return h.sendMessage(ctx, req, corrID), nil
	case req.HTTPMethod == http.MethodGet && strings.HasPrefix(path, "/api/conversations/user/"):
		userID := strings.TrimPrefix(path, "/api/conversations/user/")
		return h.listConversations(ctx, req, userID, corrID), nil
	case req.HTTPMethod == http.MethodGet && strings.HasPrefix(path, "/api/conversations/"):
		conversationID := strings.TrimPrefix(path, "/api/conversations/")
		return h.getConversation(ctx, conversationID, corrID), nil
	case req.HTTPMethod == http.MethodGet && strings.HasPrefix(path, "/api/messages/conversation/"):
		rest := strings.TrimPrefix(path, "/api/messages/conversation/")
		if conversationID, ok := strings.CutSuffix(rest, "/before"); ok {
			return h.listMessagesBefore(ctx, req, conversationID, corrID), nil
		}
		return h.listMessages(ctx, req, rest, corrID), nil
	default:
		return respondError(http.StatusNotFound, string(usecase.ErrorNotFound), "unknown_route", corrID), nil
	}
}

func (h *Handler) sendMessage(ctx context.Context, req events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	var body sendRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return respondError(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "malformed_body", corrID)
	}
	msg, err := h.svc.SendMessage(ctx, usecase.SendInput{
		SenderID:   body.SenderID,
		ReceiverID: body.ReceiverID,
		Content:    body.Content,
	})
	if err != nil {
		return respondUsecaseError(err, corrID)
	}
	return respond(http.StatusCreated, msg, corrID)
}

func (h *Handler) listConversations(ctx context.Context, req events.APIGatewayProxyRequest, userID, corrID string) events.APIGatewayProxyResponse {
	page, limit, err := pageParams(req.QueryStringParameters)
	if err != nil {
		return respondError(http.StatusBadRequest, string(usecase.ErrorInvalidInput), err.Error(), corrID)
	}
	result, err := h.svc.ListConversationsForUser(ctx, userID, page, limit)
	if err != nil {
		return respondUsecaseError(err, corrID)
	}
	return respond(http.StatusOK, result, corrID)
}

func (h *Handler) getConversation(ctx context.Context, conversationID, corrID string) events.APIGatewayProxyResponse {
	summary, err := h.svc.GetConversation(ctx, conversationID)
	if err != nil {
		return respondUsecaseError(err, corrID)
	}
	return respond(http.StatusOK, summary, corrID)
}

func (h *Handler) listMessages(ctx context.Context, req events.APIGatewayProxyRequest, conversationID, corrID string) events.APIGatewayProxyResponse {
	page, limit, err := pageParams(req.QueryStringParameters)
	if err != nil {
		return respondError(http.StatusBadRequest, string(usecase.ErrorInvalidInput), err.Error(), corrID)
	}
	result, err := h.svc.ListMessages(ctx, conversationID, page, limit)
	if err != nil {
		return respondUsecaseError(err, corrID)
	}
	return respond(http.StatusOK, result, corrID)
}

func (h *Handler) listMessagesBefore(ctx context.Context, req events.APIGatewayProxyRequest, conversationID, corrID string) events.APIGatewayProxyResponse {
	page, limit, err := pageParams(req.QueryStringParameters)
	if err != nil {
		return respondError(http.StatusBadRequest, string(usecase.ErrorInvalidInput), err.Error(), corrID)
	}
	// A malformed timestamp is part of the path's fail-soft contract and
	// yields an empty page rather than an error.
	before, err := time.Parse(time.RFC3339Nano, req.QueryStringParameters["before_timestamp"])
	if err != nil {
		slog.Warn("malformed before_timestamp, returning empty page",
			"value", req.QueryStringParameters["before_timestamp"])
		return respond(http.StatusOK, domain.EmptyPage[domain.Message](page, limit), corrID)
	}
	return respond(http.StatusOK, h.svc.ListMessagesBefore(ctx, conversationID, before, page, limit), corrID)
}

// pageParams parses page and limit, rejecting non-positive values. The core
// assumes validated positive integers, so validation happens here.
func pageParams(params map[string]string) (page, limit int, err error) {
	page, err = positiveParam(params, "page", defaultPage)
	if err != nil {
		return 0, 0, err
	}
	limit, err = positiveParam(params, "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func positiveParam(params map[string]string, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("invalid_" + key)
	}
	return n, nil
}

func respondUsecaseError(err error, corrID string) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		slog.Error("unexpected handler error", "err", err)
		return respondError(http.StatusInternalServerError, string(usecase.ErrorInternal), "", corrID)
	}
	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	}
	return respondError(status, string(ucErr.Code), ucErr.Reason, corrID)
}

func respondError(status int, code, reason, corrID string) events.APIGatewayProxyResponse {
	return respond(status, errorResponse{Error: code, Reason: reason}, corrID)
}

func respond(status int, body any, corrID string) events.APIGatewayProxyResponse {
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error("failed to marshal response body", "err", err)
		status = http.StatusInternalServerError
		payload = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": corrID,
		},
		Body: string(payload),
	}
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "X-Correlation-Id") && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

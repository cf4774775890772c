package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"messenger-backend/internal/domain"
	"messenger-backend/internal/repository"
)

// Store is the persistence surface consumed by MessagingService.
// *repository.Client satisfies this interface.
type Store interface {
	PutConversation(ctx context.Context, row repository.ConversationRow) error
	GetConversation(ctx context.Context, conversationID uuid.UUID) (repository.ConversationRow, bool, error)
	PutMessage(ctx context.Context, row repository.MessageRow) error
	QueryMessages(ctx context.Context, conversationID uuid.UUID) ([]repository.MessageRow, error)
	QueryMessagesBefore(ctx context.Context, conversationID uuid.UUID, before time.Time) ([]repository.MessageRow, error)
	PutUserConversation(ctx context.Context, row repository.UserConversationRow) error
	GetUserConversation(ctx context.Context, userID, conversationID uuid.UUID) (repository.UserConversationRow, bool, error)
	QueryUserConversations(ctx context.Context, userID uuid.UUID) ([]repository.UserConversationRow, error)
}

// MessagingService implements the four messenger operations over the three
// denormalized tables. A send fans out into independent writes with no
// cross-table transaction; reads reconstruct a consistent-looking view from
// the denormalized rows, with pagination and recency ordering applied in
// process.
type MessagingService struct {
	store Store
}

type SendInput struct {
	SenderID   string
	ReceiverID string
	Content    string
}

func NewMessagingService(store Store) (*MessagingService, error) {
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	return &MessagingService{store: store}, nil
}

// SendMessage persists one message. Every call creates a fresh conversation:
// repeated sends between the same pair never reuse an existing conversation.
// The three writes happen in order (details, message, per-user index) and the
// first failure is surfaced without rolling back earlier writes or retrying.
func (s *MessagingService) SendMessage(ctx context.Context, in SendInput) (domain.Message, error) {
	if strings.TrimSpace(in.Content) == "" {
		return domain.Message{}, newError(ErrorInvalidInput, "empty_content", nil)
	}
	senderID, err := uuid.Parse(in.SenderID)
	if err != nil {
		return domain.Message{}, newError(ErrorInvalidInput, "malformed_sender_id", err)
	}
	receiverID, err := uuid.Parse(in.ReceiverID)
	if err != nil {
		return domain.Message{}, newError(ErrorInvalidInput, "malformed_receiver_id", err)
	}

	now := timeNow().UTC()
	conversationID := newConversationID()
	messageID, err := newMessageID()
	if err != nil {
		return domain.Message{}, newError(ErrorInternal, "message_id_error", err)
	}
	participants := domain.Participants{senderID, receiverID}

	if err := s.store.PutConversation(ctx, repository.ConversationRow{
		ConversationID: conversationID,
		Participants:   participants,
		CreatedAt:      now,
	}); err != nil {
		return domain.Message{}, newError(ErrorStore, "conversation_write_error", err)
	}

	if err := s.store.PutMessage(ctx, repository.MessageRow{
		ConversationID: conversationID,
		MessageID:      messageID,
		SenderID:       senderID,
		Text:           in.Content,
		CreatedAt:      now,
	}); err != nil {
		return domain.Message{}, newError(ErrorStore, "message_write_error", err)
	}

	for _, userID := range participants {
		if err := s.store.PutUserConversation(ctx, repository.UserConversationRow{
			UserID:          userID,
			ConversationID:  conversationID,
			LastMessage:     in.Content,
			LastMessageTime: now,
			Participants:    participants,
		}); err != nil {
			return domain.Message{}, newError(ErrorStore, "conversation_index_write_error", err)
		}
	}

	return domain.Message{
		ID:             messageID.String(),
		SenderID:       senderID.String(),
		ReceiverID:     receiverID.String(),
		Content:        in.Content,
		CreatedAt:      now,
		ConversationID: conversationID.String(),
	}, nil
}

// ListConversationsForUser returns the user's conversations, most recent
// first. The whole partition is loaded, sorted by last message time in
// process, and sliced; Total is the partition size before slicing.
func (s *MessagingService) ListConversationsForUser(ctx context.Context, userID string, page, limit int) (domain.Page[domain.ConversationSummary], error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return domain.Page[domain.ConversationSummary]{}, newError(ErrorInvalidInput, "malformed_user_id", err)
	}

	rows, err := s.store.QueryUserConversations(ctx, uid)
	if err != nil {
		return domain.Page[domain.ConversationSummary]{}, newError(ErrorStore, "conversations_query_error", err)
	}

	// Most recent first; ties fall back to conversation id so the order is
	// deterministic across calls.
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].LastMessageTime.Equal(rows[j].LastMessageTime) {
			return rows[i].LastMessageTime.After(rows[j].LastMessageTime)
		}
		return rows[i].ConversationID.String() < rows[j].ConversationID.String()
	})

	total := len(rows)
	paged := sliceWindow(rows, page, limit)
	data := make([]domain.ConversationSummary, 0, len(paged))
	for _, row := range paged {
		data = append(data, domain.ConversationSummary{
			ID:                 row.ConversationID.String(),
			User1ID:            row.Participants[0].String(),
			User2ID:            row.Participants[1].String(),
			LastMessageAt:      row.LastMessageTime,
			LastMessageContent: row.LastMessage,
		})
	}
	return domain.Page[domain.ConversationSummary]{Total: total, Page: page, Limit: limit, Data: data}, nil
}

// GetConversation resolves a single conversation summary. The participant
// pair and creation time come from conversation_details; the freshest last
// message is recovered from the first participant's index row, falling back
// to the conversation's creation time when no such row exists.
func (s *MessagingService) GetConversation(ctx context.Context, conversationID string) (domain.ConversationSummary, error) {
	cid, err := uuid.Parse(conversationID)
	if err != nil {
		return domain.ConversationSummary{}, newError(ErrorInvalidInput, "malformed_conversation_id", err)
	}

	row, ok, err := s.store.GetConversation(ctx, cid)
	if err != nil {
		return domain.ConversationSummary{}, newError(ErrorStore, "conversation_read_error", err)
	}
	if !ok {
		return domain.ConversationSummary{}, newError(ErrorNotFound, "conversation_not_found", nil)
	}

	summary := domain.ConversationSummary{
		ID:            row.ConversationID.String(),
		User1ID:       row.Participants[0].String(),
		User2ID:       row.Participants[1].String(),
		LastMessageAt: row.CreatedAt,
	}

	index, ok, err := s.store.GetUserConversation(ctx, row.Participants[0], cid)
	if err != nil {
		return domain.ConversationSummary{}, newError(ErrorStore, "conversation_index_read_error", err)
	}
	if ok {
		summary.LastMessageAt = index.LastMessageTime
		summary.LastMessageContent = index.LastMessage
	}
	return summary, nil
}

// ListMessages returns a conversation's messages newest-first. The store
// yields the partition already in clustering order; pagination is an
// in-process slice and Total is the partition size.
func (s *MessagingService) ListMessages(ctx context.Context, conversationID string, page, limit int) (domain.Page[domain.Message], error) {
	cid, err := uuid.Parse(conversationID)
	if err != nil {
		return domain.Page[domain.Message]{}, newError(ErrorInvalidInput, "malformed_conversation_id", err)
	}

	rows, err := s.store.QueryMessages(ctx, cid)
	if err != nil {
		return domain.Page[domain.Message]{}, newError(ErrorStore, "messages_query_error", err)
	}
	if len(rows) == 0 {
		return domain.EmptyPage[domain.Message](page, limit), nil
	}

	participants, err := s.loadParticipants(ctx, cid)
	if err != nil {
		return domain.Page[domain.Message]{}, newError(ErrorStore, "conversation_read_error", err)
	}

	total := len(rows)
	data := assembleMessages(sliceWindow(rows, page, limit), participants)
	return domain.Page[domain.Message]{Total: total, Page: page, Limit: limit, Data: data}, nil
}

// ListMessagesBefore returns messages created strictly before the given
// instant, sorted by creation time descending in process since the filtered
// query does not guarantee order. The contract is fail-soft: any failure
// yields a well-formed empty page instead of an error.
func (s *MessagingService) ListMessagesBefore(ctx context.Context, conversationID string, before time.Time, page, limit int) domain.Page[domain.Message] {
	result, err := s.listMessagesBefore(ctx, conversationID, before, page, limit)
	if err != nil {
		slog.Warn("listing messages before timestamp failed, returning empty page",
			"conversation_id", conversationID, "err", err)
		return domain.EmptyPage[domain.Message](page, limit)
	}
	return result
}

func (s *MessagingService) listMessagesBefore(ctx context.Context, conversationID string, before time.Time, page, limit int) (domain.Page[domain.Message], error) {
	cid, err := uuid.Parse(conversationID)
	if err != nil {
		return domain.Page[domain.Message]{}, newError(ErrorInvalidInput, "malformed_conversation_id", err)
	}

	rows, err := s.store.QueryMessagesBefore(ctx, cid, before)
	if err != nil {
		return domain.Page[domain.Message]{}, newError(ErrorStore, "messages_query_error", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})

	if len(rows) == 0 {
		return domain.EmptyPage[domain.Message](page, limit), nil
	}

	participants, err := s.loadParticipants(ctx, cid)
	if err != nil {
		return domain.Page[domain.Message]{}, newError(ErrorStore, "conversation_read_error", err)
	}

	total := len(rows)
	data := assembleMessages(sliceWindow(rows, page, limit), participants)
	return domain.Page[domain.Message]{Total: total, Page: page, Limit: limit, Data: data}, nil
}

// loadParticipants reads the conversation's participant pair once per request.
// A missing details row yields the zero pair, which resolves every receiver
// to the sentinel.
func (s *MessagingService) loadParticipants(ctx context.Context, conversationID uuid.UUID) (domain.Participants, error) {
	row, ok, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.Participants{}, err
	}
	if !ok {
		return domain.Participants{}, nil
	}
	return row.Participants, nil
}

func assembleMessages(rows []repository.MessageRow, participants domain.Participants) []domain.Message {
	data := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		data = append(data, domain.Message{
			ID:             row.MessageID.String(),
			SenderID:       row.SenderID.String(),
			ReceiverID:     domain.ResolveReceiver(row.SenderID, participants).String(),
			Content:        row.Text,
			CreatedAt:      row.CreatedAt,
			ConversationID: row.ConversationID.String(),
		})
	}
	return data
}

// sliceWindow applies the shared offset pagination: a half-open
// [(page-1)*limit, +limit) slice. Callers are expected to pass validated
// positive page and limit values.
func sliceWindow[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start < 0 || start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Injection points for tests.
var (
	timeNow           = time.Now
	newConversationID = uuid.New
	newMessageID      = func() (uuid.UUID, error) {
		// V1 ids embed creation time, so id order approximates
		// chronological order.
		return uuid.NewUUID()
	}
)

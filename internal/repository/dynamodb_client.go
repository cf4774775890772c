package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"messenger-backend/internal/domain"
)

// timeSortLayout is a fixed-width RFC3339 nano layout. Values are always
// formatted in UTC so their lexical order matches chronological order, which
// the message sort key and the created_at filter both rely on.
const timeSortLayout = "2006-01-02T15:04:05.000000000Z07:00"

// maxBeforeScanItems bounds the filtered before-timestamp scan. The
// unfiltered partition reads are intentionally unbounded.
const maxBeforeScanItems = 10000

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Tables names the three denormalized tables.
type Tables struct {
	Conversations     string
	Messages          string
	UserConversations string
}

// ConversationRow is one conversation_details row, the canonical record of
// participant membership.
type ConversationRow struct {
	ConversationID uuid.UUID
	Participants   domain.Participants
	CreatedAt      time.Time
}

// MessageRow is one messages_by_conversation row. Rows are append-only and
// immutable once written.
type MessageRow struct {
	ConversationID uuid.UUID
	MessageID      uuid.UUID
	SenderID       uuid.UUID
	Text           string
	CreatedAt      time.Time
}

// UserConversationRow is one conversations_by_user row. The table is keyed
// (user_id, conversation_id) and each send overwrites the row last-write-wins,
// so a conversation holds exactly one row per participant partition.
type UserConversationRow struct {
	UserID          uuid.UUID
	ConversationID  uuid.UUID
	LastMessage     string
	LastMessageTime time.Time
	Participants    domain.Participants
}

// Client wraps the three messenger tables.
type Client struct {
	api    dynamodbAPI
	tables Tables
}

// New creates a new repository Client.
func New(api dynamodbAPI, tables Tables) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	for _, name := range []string{tables.Conversations, tables.Messages, tables.UserConversations} {
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("repository: table names must not be empty")
		}
	}
	return &Client{api: api, tables: tables}, nil
}

// sortTime formats t for storage in a sort key or range-filtered attribute.
func sortTime(t time.Time) string {
	return t.UTC().Format(timeSortLayout)
}

// messageKey is the messages_by_conversation sort key. The fixed-width
// timestamp prefix gives chronological clustering; the message id breaks ties
// between messages written in the same nanosecond.
func messageKey(createdAt time.Time, messageID uuid.UUID) string {
	return sortTime(createdAt) + "#" + messageID.String()
}

// PutConversation writes the conversation_details row.
func (c *Client) PutConversation(ctx context.Context, row ConversationRow) error {
	if row.ConversationID == uuid.Nil {
		return errors.New("repository: PutConversation: conversation id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tables.Conversations),
		Item:      conversationItem(row),
	})
	if err != nil {
		return fmt.Errorf("repository: PutConversation: %w", err)
	}
	return nil
}

// GetConversation reads one conversation_details row. The second return value
// reports whether the row exists.
func (c *Client) GetConversation(ctx context.Context, conversationID uuid.UUID) (ConversationRow, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tables.Conversations),
		Key: map[string]types.AttributeValue{
			"conversation_id": &types.AttributeValueMemberS{Value: conversationID.String()},
		},
	})
	if err != nil {
		return ConversationRow{}, false, fmt.Errorf("repository: GetConversation: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return ConversationRow{}, false, nil
	}
	row, err := itemToConversation(out.Item)
	if err != nil {
		return ConversationRow{}, false, fmt.Errorf("repository: GetConversation decode: %w", err)
	}
	return row, true, nil
}

// PutMessage appends one messages_by_conversation row.
func (c *Client) PutMessage(ctx context.Context, row MessageRow) error {
	if row.ConversationID == uuid.Nil || row.MessageID == uuid.Nil {
		return errors.New("repository: PutMessage: conversation id and message id are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tables.Messages),
		Item:                messageItem(row),
		ConditionExpression: aws.String("attribute_not_exists(conversation_id) AND attribute_not_exists(message_key)"),
	})
	if err != nil {
		return fmt.Errorf("repository: PutMessage: %w", err)
	}
	return nil
}

// QueryMessages loads the whole conversation partition newest-first. Memory
// scales with total history size, not page size.
func (c *Client) QueryMessages(ctx context.Context, conversationID uuid.UUID) ([]MessageRow, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tables.Messages),
		KeyConditionExpression: aws.String("conversation_id = :cid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: conversationID.String()},
		},
		ScanIndexForward: aws.Bool(false),
	}
	items, err := c.queryAll(ctx, in, 0)
	if err != nil {
		return nil, fmt.Errorf("repository: QueryMessages: %w", err)
	}
	return decodeMessages(items), nil
}

// QueryMessagesBefore loads messages with created_at strictly before the
// given instant. The filter is a scan-style predicate, so result order is not
// guaranteed to callers and the scan is capped at maxBeforeScanItems.
func (c *Client) QueryMessagesBefore(ctx context.Context, conversationID uuid.UUID, before time.Time) ([]MessageRow, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tables.Messages),
		KeyConditionExpression: aws.String("conversation_id = :cid"),
		FilterExpression:       aws.String("created_at < :ts"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: conversationID.String()},
			":ts":  &types.AttributeValueMemberS{Value: sortTime(before)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	items, err := c.queryAll(ctx, in, maxBeforeScanItems)
	if err != nil {
		return nil, fmt.Errorf("repository: QueryMessagesBefore: %w", err)
	}
	return decodeMessages(items), nil
}

// PutUserConversation upserts the per-user conversation index row,
// last-write-wins.
func (c *Client) PutUserConversation(ctx context.Context, row UserConversationRow) error {
	if row.UserID == uuid.Nil || row.ConversationID == uuid.Nil {
		return errors.New("repository: PutUserConversation: user id and conversation id are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tables.UserConversations),
		Item:      userConversationItem(row),
	})
	if err != nil {
		return fmt.Errorf("repository: PutUserConversation: %w", err)
	}
	return nil
}

// GetUserConversation reads one per-user index row.
func (c *Client) GetUserConversation(ctx context.Context, userID, conversationID uuid.UUID) (UserConversationRow, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tables.UserConversations),
		Key: map[string]types.AttributeValue{
			"user_id":         &types.AttributeValueMemberS{Value: userID.String()},
			"conversation_id": &types.AttributeValueMemberS{Value: conversationID.String()},
		},
	})
	if err != nil {
		return UserConversationRow{}, false, fmt.Errorf("repository: GetUserConversation: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return UserConversationRow{}, false, nil
	}
	row, err := itemToUserConversation(out.Item)
	if err != nil {
		return UserConversationRow{}, false, fmt.Errorf("repository: GetUserConversation decode: %w", err)
	}
	return row, true, nil
}

// QueryUserConversations loads the user's whole conversation partition.
// Recency ordering happens in the caller; the sort key here is the
// conversation id, not the last message time.
func (c *Client) QueryUserConversations(ctx context.Context, userID uuid.UUID) ([]UserConversationRow, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tables.UserConversations),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID.String()},
		},
	}
	items, err := c.queryAll(ctx, in, 0)
	if err != nil {
		return nil, fmt.Errorf("repository: QueryUserConversations: %w", err)
	}
	rows := make([]UserConversationRow, 0, len(items))
	for _, item := range items {
		row, err := itemToUserConversation(item)
		if err != nil {
			slog.Warn("skipping malformed conversations_by_user item", "err", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// queryAll follows LastEvaluatedKey until the partition is exhausted or
// maxItems is reached. maxItems <= 0 means unbounded.
func (c *Client) queryAll(ctx context.Context, in *dynamodb.QueryInput, maxItems int) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		if out != nil {
			items = append(items, out.Items...)
		}
		if maxItems > 0 && len(items) >= maxItems {
			return items[:maxItems], nil
		}
		if out == nil || len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// decodeMessages converts query items to rows, skipping malformed items
// rather than failing the whole read.
func decodeMessages(items []map[string]types.AttributeValue) []MessageRow {
	rows := make([]MessageRow, 0, len(items))
	for _, item := range items {
		row, err := itemToMessage(item)
		if err != nil {
			slog.Warn("skipping malformed messages_by_conversation item", "err", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func conversationItem(row ConversationRow) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"conversation_id": &types.AttributeValueMemberS{Value: row.ConversationID.String()},
		"participants":    participantsAttr(row.Participants),
		"created_at":      &types.AttributeValueMemberS{Value: sortTime(row.CreatedAt)},
	}
}

func messageItem(row MessageRow) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"conversation_id": &types.AttributeValueMemberS{Value: row.ConversationID.String()},
		"message_key":     &types.AttributeValueMemberS{Value: messageKey(row.CreatedAt, row.MessageID)},
		"message_id":      &types.AttributeValueMemberS{Value: row.MessageID.String()},
		"sender_id":       &types.AttributeValueMemberS{Value: row.SenderID.String()},
		"message_text":    &types.AttributeValueMemberS{Value: row.Text},
		"created_at":      &types.AttributeValueMemberS{Value: sortTime(row.CreatedAt)},
	}
}

func userConversationItem(row UserConversationRow) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":           &types.AttributeValueMemberS{Value: row.UserID.String()},
		"conversation_id":   &types.AttributeValueMemberS{Value: row.ConversationID.String()},
		"last_message":      &types.AttributeValueMemberS{Value: row.LastMessage},
		"last_message_time": &types.AttributeValueMemberS{Value: sortTime(row.LastMessageTime)},
		"participants":      participantsAttr(row.Participants),
	}
}

func itemToConversation(item map[string]types.AttributeValue) (ConversationRow, error) {
	id, err := uuidAttr(item, "conversation_id")
	if err != nil {
		return ConversationRow{}, err
	}
	participants, err := participantsFromAttr(item)
	if err != nil {
		return ConversationRow{}, err
	}
	createdAt, err := timeAttr(item, "created_at")
	if err != nil {
		return ConversationRow{}, err
	}
	return ConversationRow{ConversationID: id, Participants: participants, CreatedAt: createdAt}, nil
}

func itemToMessage(item map[string]types.AttributeValue) (MessageRow, error) {
	conversationID, err := uuidAttr(item, "conversation_id")
	if err != nil {
		return MessageRow{}, err
	}
	messageID, err := uuidAttr(item, "message_id")
	if err != nil {
		return MessageRow{}, err
	}
	senderID, err := uuidAttr(item, "sender_id")
	if err != nil {
		return MessageRow{}, err
	}
	text, err := strAttr(item, "message_text")
	if err != nil {
		return MessageRow{}, err
	}
	createdAt, err := timeAttr(item, "created_at")
	if err != nil {
		return MessageRow{}, err
	}
	return MessageRow{
		ConversationID: conversationID,
		MessageID:      messageID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      createdAt,
	}, nil
}

func itemToUserConversation(item map[string]types.AttributeValue) (UserConversationRow, error) {
	userID, err := uuidAttr(item, "user_id")
	if err != nil {
		return UserConversationRow{}, err
	}
	conversationID, err := uuidAttr(item, "conversation_id")
	if err != nil {
		return UserConversationRow{}, err
	}
	lastMessage, _ := strAttr(item, "last_message") // allow empty
	lastMessageTime, err := timeAttr(item, "last_message_time")
	if err != nil {
		return UserConversationRow{}, err
	}
	participants, err := participantsFromAttr(item)
	if err != nil {
		return UserConversationRow{}, err
	}
	return UserConversationRow{
		UserID:          userID,
		ConversationID:  conversationID,
		LastMessage:     lastMessage,
		LastMessageTime: lastMessageTime,
		Participants:    participants,
	}, nil
}

func participantsAttr(p domain.Participants) types.AttributeValue {
	return &types.AttributeValueMemberL{Value: []types.AttributeValue{
		&types.AttributeValueMemberS{Value: p[0].String()},
		&types.AttributeValueMemberS{Value: p[1].String()},
	}}
}

func participantsFromAttr(item map[string]types.AttributeValue) (domain.Participants, error) {
	v, ok := item["participants"]
	if !ok {
		return domain.Participants{}, errors.New(`repository: missing attribute "participants"`)
	}
	list, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return domain.Participants{}, errors.New(`repository: attribute "participants" is not a list`)
	}
	if len(list.Value) != 2 {
		return domain.Participants{}, fmt.Errorf("repository: participants has %d entries, want 2", len(list.Value))
	}
	var p domain.Participants
	for i, member := range list.Value {
		s, ok := member.(*types.AttributeValueMemberS)
		if !ok {
			return domain.Participants{}, errors.New("repository: participant entry is not a string")
		}
		id, err := uuid.Parse(s.Value)
		if err != nil {
			return domain.Participants{}, fmt.Errorf("repository: parse participant %d: %w", i, err)
		}
		p[i] = id
	}
	return p, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func uuidAttr(item map[string]types.AttributeValue, key string) (uuid.UUID, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return id, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(timeSortLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}

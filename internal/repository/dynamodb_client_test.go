package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"messenger-backend/internal/domain"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	putErr       error
	queryOuts    []*dynamodb.QueryOutput
	queryErr     error
	queryCalls   int
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	lastQueryIn  *dynamodb.QueryInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryCalls >= len(f.queryOuts) {
		return &dynamodb.QueryOutput{}, nil
	}
	out := f.queryOuts[f.queryCalls]
	f.queryCalls++
	return out, nil
}

var testTables = Tables{
	Conversations:     "conversation_details",
	Messages:          "messages_by_conversation",
	UserConversations: "conversations_by_user",
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, testTables)
	require.NoError(t, err)
	return c
}

var (
	convID  = uuid.MustParse("cccccccc-cccc-4ccc-8ccc-cccccccccccc")
	senderA = uuid.MustParse("aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa")
	userB   = uuid.MustParse("bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb")
)

func makeMessageItem(t time.Time, messageID uuid.UUID, text string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"conversation_id": &types.AttributeValueMemberS{Value: convID.String()},
		"message_key":     &types.AttributeValueMemberS{Value: messageKey(t, messageID)},
		"message_id":      &types.AttributeValueMemberS{Value: messageID.String()},
		"sender_id":       &types.AttributeValueMemberS{Value: senderA.String()},
		"message_text":    &types.AttributeValueMemberS{Value: text},
		"created_at":      &types.AttributeValueMemberS{Value: sortTime(t)},
	}
}

func makeUserConversationItem(last time.Time, text string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":           &types.AttributeValueMemberS{Value: senderA.String()},
		"conversation_id":   &types.AttributeValueMemberS{Value: convID.String()},
		"last_message":      &types.AttributeValueMemberS{Value: text},
		"last_message_time": &types.AttributeValueMemberS{Value: sortTime(last)},
		"participants":      participantsAttr(domain.Participants{senderA, userB}),
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, testTables)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")

	_, err = New(&fakeDynamo{}, Tables{Conversations: "a", Messages: " ", UserConversations: "c"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestSortTime_LexicalOrderIsChronological(t *testing.T) {
	earlier := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := earlier.Add(100 * time.Millisecond)
	require.Less(t, sortTime(earlier), sortTime(later))

	// Fractional seconds keep a fixed width, unlike plain RFC3339Nano.
	whole := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)
	require.Less(t, sortTime(later), sortTime(whole))

	roundTrip, err := time.Parse(timeSortLayout, sortTime(later))
	require.NoError(t, err)
	require.True(t, roundTrip.Equal(later))
}

func TestPutConversation(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := c.PutConversation(context.Background(), ConversationRow{
		ConversationID: convID,
		Participants:   domain.Participants{senderA, userB},
		CreatedAt:      now,
	})
	require.NoError(t, err)
	require.Equal(t, testTables.Conversations, *db.lastPutInput.TableName)
	require.Equal(t, convID.String(), db.lastPutInput.Item["conversation_id"].(*types.AttributeValueMemberS).Value)

	list := db.lastPutInput.Item["participants"].(*types.AttributeValueMemberL)
	require.Len(t, list.Value, 2)
	require.Equal(t, senderA.String(), list.Value[0].(*types.AttributeValueMemberS).Value)
	require.Equal(t, userB.String(), list.Value[1].(*types.AttributeValueMemberS).Value)
}

func TestPutConversation_MissingID(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	err := c.PutConversation(context.Background(), ConversationRow{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestGetConversation_HappyPath(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"conversation_id": &types.AttributeValueMemberS{Value: convID.String()},
		"participants":    participantsAttr(domain.Participants{senderA, userB}),
		"created_at":      &types.AttributeValueMemberS{Value: sortTime(now)},
	}}}
	c := mustNewClient(t, db)

	row, ok, err := c.GetConversation(context.Background(), convID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, convID, row.ConversationID)
	require.Equal(t, domain.Participants{senderA, userB}, row.Participants)
	require.True(t, row.CreatedAt.Equal(now))
}

func TestGetConversation_Missing(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewClient(t, db)

	_, ok, err := c.GetConversation(context.Background(), convID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetConversation_Error(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("boom")}
	c := mustNewClient(t, db)
	_, _, err := c.GetConversation(context.Background(), convID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "GetConversation")
}

func TestPutMessage_SetsSortKeyAndCondition(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	messageID := uuid.New()

	err := c.PutMessage(context.Background(), MessageRow{
		ConversationID: convID,
		MessageID:      messageID,
		SenderID:       senderA,
		Text:           "hi",
		CreatedAt:      now,
	})
	require.NoError(t, err)
	require.Equal(t, testTables.Messages, *db.lastPutInput.TableName)
	require.Equal(t, messageKey(now, messageID), db.lastPutInput.Item["message_key"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "attribute_not_exists(conversation_id) AND attribute_not_exists(message_key)", *db.lastPutInput.ConditionExpression)
}

func TestPutMessage_MissingIDs(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	err := c.PutMessage(context.Background(), MessageRow{ConversationID: convID})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestQueryMessages_NewestFirstQuery(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{
			makeMessageItem(now, uuid.New(), "newer"),
			makeMessageItem(now.Add(-time.Minute), uuid.New(), "older"),
		},
	}}}
	c := mustNewClient(t, db)

	rows, err := c.QueryMessages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "newer", rows[0].Text)
	require.Equal(t, "older", rows[1].Text)
	require.Equal(t, "conversation_id = :cid", *db.lastQueryIn.KeyConditionExpression)
	require.False(t, *db.lastQueryIn.ScanIndexForward)
}

func TestQueryMessages_FollowsLastEvaluatedKey(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	firstPage := &dynamodb.QueryOutput{
		Items:            []map[string]types.AttributeValue{makeMessageItem(now, uuid.New(), "a")},
		LastEvaluatedKey: map[string]types.AttributeValue{"conversation_id": &types.AttributeValueMemberS{Value: convID.String()}},
	}
	secondPage := &dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{makeMessageItem(now.Add(-time.Minute), uuid.New(), "b")},
	}
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{firstPage, secondPage}}
	c := mustNewClient(t, db)

	rows, err := c.QueryMessages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, 2, db.queryCalls, "the whole partition is loaded across query pages")
}

func TestQueryMessages_SkipsMalformedItems(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bad := map[string]types.AttributeValue{
		"conversation_id": &types.AttributeValueMemberS{Value: convID.String()},
	}
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{bad, makeMessageItem(now, uuid.New(), "ok")},
	}}}
	c := mustNewClient(t, db)

	rows, err := c.QueryMessages(context.Background(), convID)
	require.NoError(t, err, "a malformed row is skipped, not fatal")
	require.Len(t, rows, 1)
	require.Equal(t, "ok", rows[0].Text)
}

func TestQueryMessages_Error(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("boom")}
	c := mustNewClient(t, db)
	_, err := c.QueryMessages(context.Background(), convID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "QueryMessages")
}

func TestQueryMessagesBefore_FilterExpression(t *testing.T) {
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{{}}}
	c := mustNewClient(t, db)
	before := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows, err := c.QueryMessagesBefore(context.Background(), convID, before)
	require.NoError(t, err)
	require.Empty(t, rows)
	require.Equal(t, "created_at < :ts", *db.lastQueryIn.FilterExpression)
	require.Equal(t, sortTime(before), db.lastQueryIn.ExpressionAttributeValues[":ts"].(*types.AttributeValueMemberS).Value)
}

func TestQueryMessagesBefore_BoundedScan(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	items := make([]map[string]types.AttributeValue, maxBeforeScanItems+5)
	for i := range items {
		items[i] = makeMessageItem(now.Add(-time.Duration(i)*time.Second), uuid.New(), "m")
	}
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{{
		Items:            items,
		LastEvaluatedKey: map[string]types.AttributeValue{"conversation_id": &types.AttributeValueMemberS{Value: convID.String()}},
	}}}
	c := mustNewClient(t, db)

	rows, err := c.QueryMessagesBefore(context.Background(), convID, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, maxBeforeScanItems)
	require.Equal(t, 1, db.queryCalls, "scan stops once the cap is reached")
}

func TestPutUserConversation_Upsert(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := c.PutUserConversation(context.Background(), UserConversationRow{
		UserID:          senderA,
		ConversationID:  convID,
		LastMessage:     "hi",
		LastMessageTime: now,
		Participants:    domain.Participants{senderA, userB},
	})
	require.NoError(t, err)
	require.Equal(t, testTables.UserConversations, *db.lastPutInput.TableName)
	require.Nil(t, db.lastPutInput.ConditionExpression, "index rows are last-write-wins upserts")
	require.Equal(t, sortTime(now), db.lastPutInput.Item["last_message_time"].(*types.AttributeValueMemberS).Value)
}

func TestGetUserConversation_HappyPath(t *testing.T) {
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeUserConversationItem(last, "latest")}}
	c := mustNewClient(t, db)

	row, ok, err := c.GetUserConversation(context.Background(), senderA, convID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "latest", row.LastMessage)
	require.True(t, row.LastMessageTime.Equal(last))
	require.Equal(t, convID.String(), db.lastGetInput.Key["conversation_id"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, senderA.String(), db.lastGetInput.Key["user_id"].(*types.AttributeValueMemberS).Value)
}

func TestGetUserConversation_Missing(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewClient(t, db)
	_, ok, err := c.GetUserConversation(context.Background(), senderA, convID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueryUserConversations_SkipsMalformedItems(t *testing.T) {
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bad := map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: "not-a-uuid"},
	}
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{makeUserConversationItem(last, "ok"), bad},
	}}}
	c := mustNewClient(t, db)

	rows, err := c.QueryUserConversations(context.Background(), senderA)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "ok", rows[0].LastMessage)
	require.Equal(t, "user_id = :uid", *db.lastQueryIn.KeyConditionExpression)
}

func TestQueryUserConversations_Error(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("boom")}
	c := mustNewClient(t, db)
	_, err := c.QueryUserConversations(context.Background(), senderA)
	require.Error(t, err)
	require.Contains(t, err.Error(), "QueryUserConversations")
}

func TestParticipantsFromAttr_RejectsWrongShape(t *testing.T) {
	cases := []struct {
		name string
		item map[string]types.AttributeValue
	}{
		{name: "missing", item: map[string]types.AttributeValue{}},
		{name: "not a list", item: map[string]types.AttributeValue{
			"participants": &types.AttributeValueMemberS{Value: "x"},
		}},
		{name: "one entry", item: map[string]types.AttributeValue{
			"participants": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberS{Value: senderA.String()},
			}},
		}},
		{name: "non-uuid entry", item: map[string]types.AttributeValue{
			"participants": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberS{Value: senderA.String()},
				&types.AttributeValueMemberS{Value: "garbage"},
			}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := participantsFromAttr(tc.item)
			require.Error(t, err)
		})
	}
}

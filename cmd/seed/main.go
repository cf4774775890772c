package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"messenger-backend/internal/config"
	"messenger-backend/internal/domain"
	"messenger-backend/internal/repository"
)

const (
	numUsers            = 10
	numConversations    = 15
	maxMessagesPerConvo = 50
)

var sampleTexts = []string{
	"Hey, how's it going?",
	"Did you see the game last night?",
	"Can we meet tomorrow?",
	"I'll send the details later.",
	"Thanks for your help!",
	"Sounds good to me.",
	"Running a bit late, sorry.",
	"Let's catch up this weekend.",
}

func main() {
	if err := run(); err != nil {
		slog.Error("seed failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	store, err := repository.New(dynamodb.NewFromConfig(awsCfg), repository.Tables{
		Conversations:     cfg.ConversationsTable,
		Messages:          cfg.MessagesTable,
		UserConversations: cfg.UserConversationsTable,
	})
	if err != nil {
		return fmt.Errorf("create repository client: %w", err)
	}

	users := make([]uuid.UUID, numUsers)
	for i := range users {
		users[i] = uuid.New()
	}
	slog.Info("generated users", "count", len(users))

	for i := 0; i < numConversations; i++ {
		sender := users[rand.Intn(len(users))]
		receiver := users[rand.Intn(len(users))]
		for receiver == sender {
			receiver = users[rand.Intn(len(users))]
		}
		if err := seedConversation(ctx, store, sender, receiver); err != nil {
			return err
		}
	}

	slog.Info("seed complete", "conversations", numConversations)
	return nil
}

func seedConversation(ctx context.Context, store *repository.Client, sender, receiver uuid.UUID) error {
	conversationID := uuid.New()
	participants := domain.Participants{sender, receiver}
	createdAt := time.Now().UTC().Add(-time.Duration(rand.Intn(30*24)) * time.Hour)

	if err := store.PutConversation(ctx, repository.ConversationRow{
		ConversationID: conversationID,
		Participants:   participants,
		CreatedAt:      createdAt,
	}); err != nil {
		return err
	}

	count := 1 + rand.Intn(maxMessagesPerConvo)
	at := createdAt
	lastMessageTime := createdAt
	var lastText string
	for i := 0; i < count; i++ {
		messageID, err := uuid.NewUUID()
		if err != nil {
			return fmt.Errorf("generate message id: %w", err)
		}
		from := participants[rand.Intn(2)]
		lastText = sampleTexts[rand.Intn(len(sampleTexts))]
		if err := store.PutMessage(ctx, repository.MessageRow{
			ConversationID: conversationID,
			MessageID:      messageID,
			SenderID:       from,
			Text:           lastText,
			CreatedAt:      at,
		}); err != nil {
			return err
		}
		lastMessageTime = at
		at = at.Add(time.Duration(1+rand.Intn(120)) * time.Minute)
	}

	for _, userID := range participants {
		if err := store.PutUserConversation(ctx, repository.UserConversationRow{
			UserID:          userID,
			ConversationID:  conversationID,
			LastMessage:     lastText,
			LastMessageTime: lastMessageTime,
			Participants:    participants,
		}); err != nil {
			return err
		}
	}

	slog.Info("seeded conversation", "conversation_id", conversationID, "messages", count)
	return nil
}

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"

	"messenger-backend/handler"
	"messenger-backend/internal/config"
	"messenger-backend/internal/repository"
	"messenger-backend/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	// One long-lived client shared by all in-flight requests; the SDK owns
	// connection pooling and retries.
	dynamoClient := awsdynamodb.NewFromConfig(awsCfg)
	store, err := repository.New(dynamoClient, repository.Tables{
		Conversations:     cfg.ConversationsTable,
		Messages:          cfg.MessagesTable,
		UserConversations: cfg.UserConversationsTable,
	})
	if err != nil {
		slog.Error("failed to create repository client", "err", err)
		os.Exit(1)
	}

	svc, err := usecase.NewMessagingService(store)
	if err != nil {
		slog.Error("failed to create messaging service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(svc)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

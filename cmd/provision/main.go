package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/joho/godotenv"

	"messenger-backend/internal/config"
)

// Creates the three messenger tables. Safe to re-run: tables that already
// exist are left untouched.
func main() {
	if err := run(); err != nil {
		slog.Error("provisioning failed", "err", err)
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
	client := dynamodb.NewFromConfig(awsCfg)

	tables := []struct {
		name string
		keys []types.KeySchemaElement
		defs []types.AttributeDefinition
	}{
		{
			name: cfg.ConversationsTable,
			keys: []types.KeySchemaElement{
				{AttributeName: strp("conversation_id"), KeyType: types.KeyTypeHash},
			},
			defs: []types.AttributeDefinition{
				{AttributeName: strp("conversation_id"), AttributeType: types.ScalarAttributeTypeS},
			},
		},
		{
			name: cfg.MessagesTable,
			keys: []types.KeySchemaElement{
				{AttributeName: strp("conversation_id"), KeyType: types.KeyTypeHash},
				{AttributeName: strp("message_key"), KeyType: types.KeyTypeRange},
			},
			defs: []types.AttributeDefinition{
				{AttributeName: strp("conversation_id"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: strp("message_key"), AttributeType: types.ScalarAttributeTypeS},
			},
		},
		{
			name: cfg.UserConversationsTable,
			keys: []types.KeySchemaElement{
				{AttributeName: strp("user_id"), KeyType: types.KeyTypeHash},
				{AttributeName: strp("conversation_id"), KeyType: types.KeyTypeRange},
			},
			defs: []types.AttributeDefinition{
				{AttributeName: strp("user_id"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: strp("conversation_id"), AttributeType: types.ScalarAttributeTypeS},
			},
		},
	}

	for _, table := range tables {
		if err := createTable(ctx, client, table.name, table.keys, table.defs); err != nil {
			return err
		}
	}
	return nil
}

func createTable(ctx context.Context, client *dynamodb.Client, name string, keys []types.KeySchemaElement, defs []types.AttributeDefinition) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            strp(name),
		KeySchema:            keys,
		AttributeDefinitions: defs,
		BillingMode:          types.BillingModePayPerRequest,
	})
	if err != nil {
		var exists *types.ResourceInUseException
		if errors.As(err, &exists) {
			slog.Info("table already exists", "table", name)
			return nil
		}
		return fmt.Errorf("create table %s: %w", name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: strp(name)}, 2*time.Minute); err != nil {
		return fmt.Errorf("wait for table %s: %w", name, err)
	}
	slog.Info("table created", "table", name)
	return nil
}

func strp(s string) *string { return &s }

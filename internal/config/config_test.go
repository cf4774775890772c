package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "conversation_details", cfg.ConversationsTable)
	require.Equal(t, "messages_by_conversation", cfg.MessagesTable)
	require.Equal(t, "conversations_by_user", cfg.UserConversationsTable)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CONVERSATIONS_TABLE", "conv_test")
	t.Setenv("MESSAGES_TABLE", "msg_test")
	t.Setenv("USER_CONVERSATIONS_TABLE", "idx_test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "conv_test", cfg.ConversationsTable)
	require.Equal(t, "msg_test", cfg.MessagesTable)
	require.Equal(t, "idx_test", cfg.UserConversationsTable)
}

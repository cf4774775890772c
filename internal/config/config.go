package config

import "github.com/caarlos0/env/v9"

// Config holds the process configuration, read once at startup.
type Config struct {
	ConversationsTable     string `env:"CONVERSATIONS_TABLE" envDefault:"conversation_details"`
	MessagesTable          string `env:"MESSAGES_TABLE" envDefault:"messages_by_conversation"`
	UserConversationsTable string `env:"USER_CONVERSATIONS_TABLE" envDefault:"conversations_by_user"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

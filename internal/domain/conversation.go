package domain

import "time"

// ConversationSummary is the caller-facing view of a conversation. User1ID
// and User2ID are the stored participant pair in creation order
// (sender first).
type ConversationSummary struct {
	ID                 string    `json:"id"`
	User1ID            string    `json:"user1_id"`
	User2ID            string    `json:"user2_id"`
	LastMessageAt      time.Time `json:"last_message_at"`
	LastMessageContent string    `json:"last_message_content,omitempty"`
}

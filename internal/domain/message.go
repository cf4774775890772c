package domain

import "time"

// Message is a single message as returned to callers, with the receiver
// already resolved from the conversation's participant pair.
type Message struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID string    `json:"conversation_id"`
}

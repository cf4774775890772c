package domain

import "github.com/google/uuid"

// Participants is the ordered pair of users in a conversation,
// [sender_at_creation, receiver_at_creation].
type Participants [2]uuid.UUID

// ResolveReceiver returns the participant that is not the sender. When the
// sender matches neither stored participant the all-zero uuid.Nil sentinel is
// returned instead of an absent value.
func ResolveReceiver(sender uuid.UUID, participants Participants) uuid.UUID {
	switch sender {
	case participants[0]:
		return participants[1]
	case participants[1]:
		return participants[0]
	default:
		return uuid.Nil
	}
}

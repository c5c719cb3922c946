package chat

import (
	"time"

	"github.com/google/uuid"
)

// MaxBodyLength bounds a single chat message in bytes.
const MaxBodyLength = 4000

// Conversation is a thread between directory users, optionally opened from
// a match so donor, recipient and care team can talk.
type Conversation struct {
	ID           uuid.UUID   `json:"id"`
	MatchID      *uuid.UUID  `json:"matchId,omitempty"`
	Participants []uuid.UUID `json:"participants"`
	CreatedAt    time.Time   `json:"createdAt"`
}

func (c *Conversation) HasParticipant(id string) bool {
	for _, p := range c.Participants {
		if p.String() == id {
			return true
		}
	}
	return false
}

type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	SenderID       uuid.UUID `json:"senderId"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sentAt"`
}

package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("conversation not found")

type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	GetByMatch(ctx context.Context, matchID uuid.UUID) (*Conversation, error)
	ListForParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, int, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	// List returns messages oldest first.
	List(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error)
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one entry in a conversation's append-only log. A message is
// immutable once created except for the one-way unread to read transition.
type Message struct {
	ID             string     `json:"id"` // ULID, lexicographically time-ordered
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`

	// Embedded sender projection, populated on reads.
	Sender *Profile `json:"sender,omitempty"`
}

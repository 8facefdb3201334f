package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the canonical record pairing two participants for direct
// messaging. Participants are stored in a fixed order (participant 1 sorts
// before participant 2) so each unordered pair maps to exactly one row.
type Conversation struct {
	ID             uuid.UUID `json:"id"`
	Participant1ID uuid.UUID `json:"participant_1_id"`
	Participant2ID uuid.UUID `json:"participant_2_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Denormalized last-message summary for list views.
	LastMessageAt       time.Time  `json:"last_message_at"`
	LastMessageContent  *string    `json:"last_message_content,omitempty"`
	LastMessageSenderID *uuid.UUID `json:"last_message_sender_id,omitempty"`

	// Embedded participant projections, populated on list reads.
	Participant1 *Profile `json:"participant_1,omitempty"`
	Participant2 *Profile `json:"participant_2,omitempty"`
}

// NormalizePair returns the two user IDs in storage order.
func NormalizePair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// Other returns the participant that is not the given user.
func (c *Conversation) Other(userID uuid.UUID) *Profile {
	if c.Participant1ID == userID {
		return c.Participant2
	}
	return c.Participant1
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

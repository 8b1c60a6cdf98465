package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatConversation is a thread between users, optionally about an outage.
type ChatConversation struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	CompanyID      uuid.UUID   `json:"company_id" db:"company_id"`
	OutageID       *uuid.UUID  `json:"outage_id,omitempty" db:"outage_id"`
	Title          string      `json:"title" db:"title"`
	CreatedBy      uuid.UUID   `json:"created_by" db:"created_by"`
	ParticipantIDs []uuid.UUID `json:"participant_ids" db:"-"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	LastMessageAt  *time.Time  `json:"last_message_at,omitempty" db:"last_message_at"`
}

// HasParticipant reports whether the user takes part in the conversation.
func (c *ChatConversation) HasParticipant(userID uuid.UUID) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ChatMessage is an append-only message in a conversation.
type ChatMessage struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ConversationID uuid.UUID `json:"conversation_id" db:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id" db:"sender_id"`
	Body           string    `json:"body" db:"body"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ConversationCreateRequest opens a conversation with the given participants.
type ConversationCreateRequest struct {
	Title          string      `json:"title" validate:"required,max=200"`
	OutageID       *uuid.UUID  `json:"outage_id,omitempty"`
	ParticipantIDs []uuid.UUID `json:"participant_ids" validate:"required,min=1"`
}

// MessageCreateRequest posts a message to a conversation.
type MessageCreateRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

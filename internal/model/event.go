package model

import (
	"time"

	"github.com/google/uuid"
)

// OutageEvent is emitted after an outage lifecycle change has been committed.
// Recipients is filled by the producer; sinks may ignore it.
type OutageEvent struct {
	ID         uuid.UUID        `json:"id"`
	Type       NotificationType `json:"type"`
	CompanyID  uuid.UUID        `json:"company_id"`
	Outage     *Outage          `json:"outage,omitempty"`
	Actor      Actor            `json:"actor"`
	Recipients []uuid.UUID      `json:"-"`
	Message    string           `json:"message,omitempty"`
	Conflicts  int              `json:"conflicts,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// NewOutageEvent builds an event stamped with the current time.
func NewOutageEvent(t NotificationType, o *Outage, actor Actor) OutageEvent {
	return OutageEvent{
		ID:         uuid.New(),
		Type:       t,
		CompanyID:  o.CompanyID,
		Outage:     o,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
	}
}

// BusEvent is the envelope pushed to realtime subscribers.
type BusEvent struct {
	Kind      string      `json:"kind"`
	CompanyID uuid.UUID   `json:"company_id"`
	UserIDs   []uuid.UUID `json:"user_ids,omitempty"`
	Payload   any         `json:"payload"`
	At        time.Time   `json:"at"`
}

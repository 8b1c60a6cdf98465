package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType identifies the lifecycle event a notification reports.
type NotificationType string

const (
	NotificationOutageCreated    NotificationType = "outage_created"
	NotificationOutageApproved   NotificationType = "outage_approved"
	NotificationOutageRejected   NotificationType = "outage_rejected"
	NotificationOutageCancelled  NotificationType = "outage_cancelled"
	NotificationConflictDetected NotificationType = "conflict_detected"
	NotificationReminder         NotificationType = "reminder"
	NotificationOutageStarted    NotificationType = "outage_started"
	NotificationOutageCompleted  NotificationType = "outage_completed"
	NotificationComment          NotificationType = "comment"
	NotificationOutageUpdated    NotificationType = "outage_updated"
)

// Notification is an in-app message addressed to a single recipient.
type Notification struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	CompanyID uuid.UUID        `json:"company_id" db:"company_id"`
	UserID    uuid.UUID        `json:"user_id" db:"user_id"`
	OutageID  *uuid.UUID       `json:"outage_id,omitempty" db:"outage_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Read      bool             `json:"read" db:"read"`
	ReadAt    *time.Time       `json:"read_at,omitempty" db:"read_at"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

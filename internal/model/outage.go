package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OutageStatus represents the lifecycle status of an outage.
type OutageStatus string

const (
	OutageStatusPending    OutageStatus = "pending"
	OutageStatusApproved   OutageStatus = "approved"
	OutageStatusRejected   OutageStatus = "rejected"
	OutageStatusCancelled  OutageStatus = "cancelled"
	OutageStatusInProgress OutageStatus = "in_progress"
	OutageStatusCompleted  OutageStatus = "completed"
)

// Blocking reports whether an outage in this status still occupies its window.
func (s OutageStatus) Blocking() bool {
	return s != OutageStatusRejected && s != OutageStatusCancelled
}

// OutageType distinguishes scheduled maintenance from unplanned work.
type OutageType string

const (
	OutageTypePlanned   OutageType = "planned"
	OutageTypeUnplanned OutageType = "unplanned"
	OutageTypeEmergency OutageType = "emergency"
)

// Criticality is the canonical severity of an outage.
type Criticality string

const (
	CriticalityLow      Criticality = "LOW"
	CriticalityMedium   Criticality = "MEDIUM"
	CriticalityHigh     Criticality = "HIGH"
	CriticalityCritical Criticality = "CRITICAL"
)

// DefaultCriticality is assigned when an input cannot be mapped.
const DefaultCriticality = CriticalityLow

// criticalityTable maps the ranked presentation strings ("1 (highest)" .. "5 (lowest)")
// onto the canonical enum. Rank 4 and 5 both collapse to LOW.
var criticalityTable = map[string]Criticality{
	"LOW":      CriticalityLow,
	"MEDIUM":   CriticalityMedium,
	"HIGH":     CriticalityHigh,
	"CRITICAL": CriticalityCritical,
	"1":        CriticalityCritical,
	"2":        CriticalityHigh,
	"3":        CriticalityMedium,
	"4":        CriticalityLow,
	"5":        CriticalityLow,
}

var criticalityRanks = map[Criticality]string{
	CriticalityCritical: "1 (highest)",
	CriticalityHigh:     "2",
	CriticalityMedium:   "3",
	CriticalityLow:      "5 (lowest)",
}

// ParseCriticality maps either encoding to the canonical enum. Unknown input
// yields DefaultCriticality and false.
func ParseCriticality(s string) (Criticality, bool) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if i := strings.IndexByte(key, ' '); i > 0 {
		key = key[:i]
	}
	if c, ok := criticalityTable[key]; ok {
		return c, true
	}
	return DefaultCriticality, false
}

// Rank returns the ranked presentation string.
func (c Criticality) Rank() string {
	if r, ok := criticalityRanks[c]; ok {
		return r
	}
	return criticalityRanks[DefaultCriticality]
}

// Outage is a scheduled unavailability of an application.
type Outage struct {
	BaseEntity
	CompanyID         uuid.UUID    `json:"company_id"`
	ApplicationID     uuid.UUID    `json:"application_id"`
	LocationID        *uuid.UUID   `json:"location_id,omitempty"`
	EnvironmentIDs    []uuid.UUID  `json:"environment_ids"`
	Title             string       `json:"title"`
	Reason            string       `json:"reason"`
	Description       string       `json:"description"`
	Type              OutageType   `json:"type"`
	Criticality       Criticality  `json:"criticality"`
	Status            OutageStatus `json:"status"`
	ScheduledStart    time.Time    `json:"scheduled_start"`
	ScheduledEnd      time.Time    `json:"scheduled_end"`
	EstimatedDuration *int64       `json:"estimated_duration,omitempty"`
	ActualStart       *time.Time   `json:"actual_start,omitempty"`
	ActualEnd         *time.Time   `json:"actual_end,omitempty"`
	CreatedBy         uuid.UUID    `json:"created_by"`
	ApprovedBy        *uuid.UUID   `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time   `json:"approved_at,omitempty"`
	RejectedBy        *uuid.UUID   `json:"rejected_by,omitempty"`
	RejectedAt        *time.Time   `json:"rejected_at,omitempty"`
	CancelledBy       *uuid.UUID   `json:"cancelled_by,omitempty"`
	CancelledAt       *time.Time   `json:"cancelled_at,omitempty"`
	ReminderSentAt    *time.Time   `json:"-"`
	Version           int          `json:"version"`
}

// SharesEnvironment returns the environment ids present in both sets.
func (o *Outage) SharesEnvironment(ids []uuid.UUID) []uuid.UUID {
	var shared []uuid.UUID
	for _, a := range o.EnvironmentIDs {
		for _, b := range ids {
			if a == b {
				shared = append(shared, a)
				break
			}
		}
	}
	return shared
}

// ChangeType classifies an OutageChangeHistory entry.
type ChangeType string

const (
	ChangeTypeCreate       ChangeType = "create"
	ChangeTypeUpdate       ChangeType = "update"
	ChangeTypeStatusChange ChangeType = "status_change"
	ChangeTypeApproval     ChangeType = "approval"
	ChangeTypeRejection    ChangeType = "rejection"
	ChangeTypeCancellation ChangeType = "cancellation"
	ChangeTypeComment      ChangeType = "comment"
	ChangeTypeNote         ChangeType = "note"
	ChangeTypeFeedback     ChangeType = "feedback"
	ChangeTypeQuestion     ChangeType = "question"
)

// IsAnnotation reports whether the change type is free-text commentary.
func (c ChangeType) IsAnnotation() bool {
	switch c {
	case ChangeTypeComment, ChangeTypeNote, ChangeTypeFeedback, ChangeTypeQuestion:
		return true
	}
	return false
}

// OutageChangeHistory is an append-only record of a change to an outage.
type OutageChangeHistory struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	OutageID   uuid.UUID  `json:"outage_id" db:"outage_id"`
	ChangeType ChangeType `json:"change_type" db:"change_type"`
	Field      string     `json:"field,omitempty" db:"field"`
	OldValue   string     `json:"old_value,omitempty" db:"old_value"`
	NewValue   string     `json:"new_value,omitempty" db:"new_value"`
	Reason     string     `json:"reason,omitempty" db:"reason"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty" db:"actor_id"`
	ActorLabel string     `json:"actor" db:"actor_label"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// NewHistoryEntry builds a history row for the given actor.
func NewHistoryEntry(outageID uuid.UUID, changeType ChangeType, actor Actor, at time.Time) *OutageChangeHistory {
	h := &OutageChangeHistory{
		ID:         uuid.New(),
		OutageID:   outageID,
		ChangeType: changeType,
		ActorLabel: actor.Label(),
		CreatedAt:  at.UTC(),
	}
	if !actor.System {
		id := actor.UserID
		h.ActorID = &id
	}
	return h
}

// OutageFilter defines filtering options for outage queries.
type OutageFilter struct {
	CompanyID      uuid.UUID
	ApplicationIDs []uuid.UUID
	Statuses       []OutageStatus
	Criticalities  []Criticality
	CreatedBy      *uuid.UUID
	Window         *DateRange
}

// OverlapQuery selects blocking outages whose window touches [Start, End].
type OverlapQuery struct {
	CompanyID       uuid.UUID
	ApplicationID   uuid.UUID
	LocationID      *uuid.UUID
	EnvironmentIDs  []uuid.UUID
	Start           time.Time
	End             time.Time
	ExcludeOutageID *uuid.UUID
}

// OutageSummary aggregates outages for the dashboard.
type OutageSummary struct {
	TotalCount    int                  `json:"total_count"`
	PendingCount  int                  `json:"pending_count"`
	ByStatus      map[OutageStatus]int `json:"by_status"`
	ByCriticality map[Criticality]int  `json:"by_criticality"`
	Upcoming      []*Outage            `json:"upcoming"`
}

// OutageCreateRequest represents a request to schedule an outage.
type OutageCreateRequest struct {
	ApplicationID  uuid.UUID   `json:"application_id" validate:"required"`
	LocationID     *uuid.UUID  `json:"location_id,omitempty"`
	EnvironmentIDs []uuid.UUID `json:"environment_ids" validate:"required,min=1"`
	Title          string      `json:"title" validate:"required,max=200"`
	Reason         string      `json:"reason" validate:"required,max=2000"`
	Description    string      `json:"description" validate:"max=10000"`
	Type           OutageType  `json:"type" validate:"omitempty,oneof=planned unplanned emergency"`
	Criticality    string      `json:"criticality"`
	ScheduledStart time.Time   `json:"scheduled_start" validate:"required"`
	ScheduledEnd   time.Time   `json:"scheduled_end" validate:"required"`
}

// OutageUpdateRequest patches an outage. Nil fields are left unchanged;
// ClearLocation widens the outage back to every location of the application.
type OutageUpdateRequest struct {
	LocationID     *uuid.UUID  `json:"location_id,omitempty"`
	ClearLocation  bool        `json:"clear_location,omitempty"`
	EnvironmentIDs []uuid.UUID `json:"environment_ids,omitempty" validate:"omitempty,min=1"`
	Title          *string     `json:"title,omitempty" validate:"omitempty,max=200"`
	Reason         *string     `json:"reason,omitempty" validate:"omitempty,max=2000"`
	Description    *string     `json:"description,omitempty" validate:"omitempty,max=10000"`
	Criticality    *string     `json:"criticality,omitempty"`
	ScheduledStart *time.Time  `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time  `json:"scheduled_end,omitempty"`
}

// TouchesPlacement reports whether the update changes scheduling or placement.
func (r OutageUpdateRequest) TouchesPlacement() bool {
	return r.LocationID != nil || r.ClearLocation || r.EnvironmentIDs != nil || r.ScheduledStart != nil || r.ScheduledEnd != nil
}

// OutageTransitionRequest carries the optional/required annotations of a transition.
type OutageTransitionRequest struct {
	Reason   string `json:"reason" validate:"max=2000"`
	Comments string `json:"comments" validate:"max=2000"`
}

// OutageCommentRequest appends commentary to an outage's history.
type OutageCommentRequest struct {
	ChangeType ChangeType `json:"change_type" validate:"omitempty,oneof=comment note feedback question"`
	Text       string     `json:"text" validate:"required,max=4000"`
}

// ConflictCheckRequest is the payload of POST /outages/validate/conflicts.
type ConflictCheckRequest struct {
	ApplicationID   uuid.UUID   `json:"application_id" validate:"required"`
	LocationID      *uuid.UUID  `json:"location_id,omitempty"`
	EnvironmentIDs  []uuid.UUID `json:"environment_ids" validate:"required,min=1"`
	ScheduledStart  time.Time   `json:"scheduled_start" validate:"required"`
	ScheduledEnd    time.Time   `json:"scheduled_end" validate:"required"`
	Criticality     string      `json:"criticality,omitempty"`
	ExcludeOutageID *uuid.UUID  `json:"exclude_outage_id,omitempty"`
}

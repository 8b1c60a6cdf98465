// Package model contains the core domain entities for IOMS.
package model

import (
	"time"

	"github.com/google/uuid"
)

// DateRange represents a time period.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Pagination holds pagination parameters.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// DefaultPagination is used when a request carries no paging parameters.
var DefaultPagination = Pagination{Page: 1, PageSize: 50}

// BaseEntity contains common fields for all entities.
type BaseEntity struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewBaseEntity creates a new BaseEntity with generated ID and timestamps.
func NewBaseEntity() BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Actor is the authenticated caller on whose behalf an operation runs.
// System actors are used by background jobs and bypass tenant checks.
type Actor struct {
	UserID    uuid.UUID `json:"user_id"`
	CompanyID uuid.UUID `json:"company_id"`
	Role      Role      `json:"role"`
	System    bool      `json:"-"`
}

// SystemActor returns the actor used for scheduler-driven transitions.
func SystemActor() Actor {
	return Actor{System: true}
}

// IsAdmin reports whether the actor holds the ADMIN role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Label is the value recorded as the actor in logs.
func (a Actor) Label() string {
	if a.System {
		return "system"
	}
	return a.UserID.String()
}

package model

import (
	"github.com/google/uuid"
)

// LocationKind distinguishes physical sites from cloud regions.
type LocationKind string

const (
	LocationKindPhysical LocationKind = "physical"
	LocationKindCloud    LocationKind = "cloud"
)

// Application is a monitored system that outages are scheduled against.
type Application struct {
	BaseEntity
	CompanyID    uuid.UUID     `json:"company_id" db:"company_id"`
	Name         string        `json:"name" db:"name"`
	Description  string        `json:"description" db:"description"`
	Active       bool          `json:"active" db:"active"`
	Environments []Environment `json:"environments" db:"-"`
	Locations    []Location    `json:"locations" db:"-"`
	KeyUserIDs   []uuid.UUID   `json:"key_user_ids" db:"-"`
}

// Environment is a named deployment stage of an application, e.g. "Production".
type Environment struct {
	ID            uuid.UUID `json:"id" db:"id"`
	ApplicationID uuid.UUID `json:"application_id" db:"application_id"`
	Name          string    `json:"name" db:"name"`
}

// Location is a physical or cloud placement of an application.
type Location struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	ApplicationID uuid.UUID    `json:"application_id" db:"application_id"`
	Name          string       `json:"name" db:"name"`
	Kind          LocationKind `json:"kind" db:"kind"`
	Region        string       `json:"region,omitempty" db:"region"`
}

// IsKeyUser reports whether the user may approve outages for the application.
func (a *Application) IsKeyUser(userID uuid.UUID) bool {
	for _, id := range a.KeyUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasEnvironment reports whether the environment belongs to the application.
func (a *Application) HasEnvironment(id uuid.UUID) bool {
	for _, e := range a.Environments {
		if e.ID == id {
			return true
		}
	}
	return false
}

// HasLocation reports whether the location belongs to the application.
func (a *Application) HasLocation(id uuid.UUID) bool {
	for _, l := range a.Locations {
		if l.ID == id {
			return true
		}
	}
	return false
}

// EnvironmentName returns the environment's name, or the id when unknown.
func (a *Application) EnvironmentName(id uuid.UUID) string {
	for _, e := range a.Environments {
		if e.ID == id {
			return e.Name
		}
	}
	return id.String()
}

// ApplicationCreateRequest represents a request to register an application.
type ApplicationCreateRequest struct {
	Name         string   `json:"name" validate:"required,max=255"`
	Description  string   `json:"description" validate:"max=2000"`
	Environments []string `json:"environments" validate:"omitempty,dive,required,max=100"`
}

// EnvironmentCreateRequest adds an environment to an application.
type EnvironmentCreateRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// LocationCreateRequest adds a location to an application.
type LocationCreateRequest struct {
	Name   string       `json:"name" validate:"required,max=100"`
	Kind   LocationKind `json:"kind" validate:"required,oneof=physical cloud"`
	Region string       `json:"region" validate:"max=100"`
}

// KeyUsersUpdateRequest replaces the set of key users of an application.
type KeyUsersUpdateRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" validate:"required"`
}

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents a user role within a company. Roles are stored upper-case
// server side; the web client works with the lower-case form.
type Role string

const (
	RoleDev     Role = "DEV"
	RoleKeyUser Role = "KEY_USER"
	RoleAdmin   Role = "ADMIN"
)

// roleTable maps every accepted spelling to its canonical role. It is the
// only place where client and server encodings meet.
var roleTable = map[string]Role{
	"DEV":      RoleDev,
	"dev":      RoleDev,
	"KEY_USER": RoleKeyUser,
	"key_user": RoleKeyUser,
	"keyuser":  RoleKeyUser,
	"key-user": RoleKeyUser,
	"ADMIN":    RoleAdmin,
	"admin":    RoleAdmin,
}

var clientRoles = map[Role]string{
	RoleDev:     "dev",
	RoleKeyUser: "key_user",
	RoleAdmin:   "admin",
}

// ParseRole normalizes a role from either encoding. Unknown values return false.
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	if r, ok := roleTable[s]; ok {
		return r, true
	}
	r, ok := roleTable[strings.ToLower(s)]
	return r, ok
}

// ClientString returns the lower-case encoding used by the web client.
func (r Role) ClientString() string {
	return clientRoles[r]
}

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	_, ok := clientRoles[r]
	return ok
}

// CanApprove reports whether the role may hold approval rights at all.
func (r Role) CanApprove() bool {
	return r == RoleKeyUser || r == RoleAdmin
}

// User represents an authenticated user within a company.
type User struct {
	BaseEntity
	CompanyID    uuid.UUID  `json:"company_id" db:"company_id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	Role         Role       `json:"role" db:"role"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	Active       bool       `json:"active" db:"active"`
}

// FullName returns the user's full display name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Actor returns the actor representation of the user.
func (u *User) Actor() Actor {
	return Actor{UserID: u.ID, CompanyID: u.CompanyID, Role: u.Role}
}

// UserCreateRequest is the payload an admin uses to add a user to the company.
type UserCreateRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Role      string `json:"role" validate:"required"`
}

// Package repository defines data access interfaces.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ioms/backend/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist or is outside the caller's company.
	ErrNotFound = errors.New("record not found")
	// ErrStaleVersion is returned when an optimistic update lost the race.
	ErrStaleVersion = errors.New("record was modified concurrently")
	// ErrDuplicate is returned on unique constraint violations.
	ErrDuplicate = errors.New("record already exists")
)

// TxRunner runs fn inside a single database transaction. Repositories called
// with the ctx passed to fn join that transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutageRepository defines outage data access methods.
type OutageRepository interface {
	Create(ctx context.Context, outage *model.Outage) error
	GetByID(ctx context.Context, companyID, id uuid.UUID) (*model.Outage, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, companyID, id uuid.UUID) (*model.Outage, error)
	// Update writes the outage if its stored version equals outage.Version and
	// bumps the version on success.
	Update(ctx context.Context, outage *model.Outage) error
	List(ctx context.Context, filter model.OutageFilter, pagination model.Pagination) ([]*model.Outage, int, error)
	// FindOverlapping returns blocking outages of the company whose window touches
	// [q.Start, q.End] and that share the application, location or an environment.
	FindOverlapping(ctx context.Context, q model.OverlapQuery) ([]*model.Outage, error)
	// ListDueForAdvance returns approved outages whose start has passed and
	// in-progress outages whose end has passed, across all companies.
	ListDueForAdvance(ctx context.Context, now time.Time) ([]*model.Outage, error)
	ListReminderDue(ctx context.Context, now time.Time, lead time.Duration) ([]*model.Outage, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
	// LockApplication takes a transaction-scoped lock serializing writers of one application.
	LockApplication(ctx context.Context, applicationID uuid.UUID) error
	GetSummary(ctx context.Context, companyID uuid.UUID, now time.Time) (*model.OutageSummary, error)
}

// HistoryRepository stores the append-only outage change log.
type HistoryRepository interface {
	Append(ctx context.Context, entry *model.OutageChangeHistory) error
	ListByOutage(ctx context.Context, outageID uuid.UUID) ([]*model.OutageChangeHistory, error)
}

// ApplicationRepository defines application data access methods.
type ApplicationRepository interface {
	Create(ctx context.Context, app *model.Application) error
	// GetByID returns the application with its environments, locations and key users.
	GetByID(ctx context.Context, companyID, id uuid.UUID) (*model.Application, error)
	List(ctx context.Context, companyID uuid.UUID) ([]*model.Application, error)
	AddEnvironment(ctx context.Context, env *model.Environment) error
	AddLocation(ctx context.Context, loc *model.Location) error
	SetKeyUsers(ctx context.Context, applicationID uuid.UUID, userIDs []uuid.UUID) error
}

// UserRepository defines data access methods for users.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*model.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, t time.Time) error
}

// CompanyRepository defines company data access methods.
type CompanyRepository interface {
	Create(ctx context.Context, company *model.Company) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Company, error)
	List(ctx context.Context) ([]*model.Company, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, settings model.CompanySettings) error
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	CreateBatch(ctx context.Context, notifications []*model.Notification) error
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, pagination model.Pagination) ([]*model.Notification, int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
}

// ChatRepository stores conversations and their messages.
type ChatRepository interface {
	CreateConversation(ctx context.Context, conv *model.ChatConversation) error
	GetConversation(ctx context.Context, companyID, id uuid.UUID) (*model.ChatConversation, error)
	ListConversations(ctx context.Context, companyID, userID uuid.UUID) ([]*model.ChatConversation, error)
	AddMessage(ctx context.Context, msg *model.ChatMessage) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, pagination model.Pagination) ([]*model.ChatMessage, error)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioms/backend/internal/model"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestTxManager_KeyUserReplacementRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	apps := NewPostgresApplicationRepository(db)
	appID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM application_key_users").
		WithArgs(appID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO application_key_users").
		WillReturnError(errors.New("foreign key violation"))
	mock.ExpectRollback()

	err := NewTxManager(db).WithinTx(context.Background(), func(ctx context.Context) error {
		return apps.SetKeyUsers(ctx, appID, []uuid.UUID{uuid.New()})
	})
	assert.ErrorContains(t, err, "foreign key violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_NestedCallsShareOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	outages := NewPostgresOutageRepository(db)
	appID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs(appID.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tm := NewTxManager(db)
	err := tm.WithinTx(context.Background(), func(ctx context.Context) error {
		return tm.WithinTx(ctx, func(ctx context.Context) error {
			return outages.LockApplication(ctx, appID)
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutageUpdate_VersionCheck(t *testing.T) {
	db, mock := newMockDB(t)
	outages := NewPostgresOutageRepository(db)
	now := time.Date(2025, 7, 25, 14, 0, 0, 0, time.UTC)
	o := &model.Outage{
		BaseEntity:     model.BaseEntity{ID: uuid.New(), UpdatedAt: now},
		EnvironmentIDs: []uuid.UUID{uuid.New()},
		Title:          "Kernel upgrade",
		Criticality:    model.CriticalityMedium,
		Status:         model.OutageStatusApproved,
		ScheduledStart: now,
		ScheduledEnd:   now.Add(2 * time.Hour),
		Version:        3,
	}
	update := regexp.QuoteMeta("WHERE id = $1 AND version = $2")

	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
	err := outages.Update(context.Background(), o)
	assert.ErrorIs(t, err, ErrStaleVersion)
	assert.Equal(t, 3, o.Version)

	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, outages.Update(context.Background(), o))
	assert.Equal(t, 4, o.Version)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutageGetForUpdate_LocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	outages := NewPostgresOutageRepository(db)

	mock.ExpectQuery("FROM outages WHERE company_id = \\$1 AND id = \\$2 FOR UPDATE").
		WillReturnError(sql.ErrNoRows)

	_, err := outages.GetForUpdate(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

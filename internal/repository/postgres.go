// Package repository provides PostgreSQL repository implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ioms/backend/internal/model"
)

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// Open connects to PostgreSQL through the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type txKey struct{}

// conn returns the transaction stored in ctx, or db when there is none.
func conn(ctx context.Context, db *sqlx.DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// TxManager implements TxRunner on a *sqlx.DB.
type TxManager struct {
	db *sqlx.DB
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise. Nested calls
// reuse the outer transaction.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// uniqueViolation reports a unique_violation from either driver.
func uniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		return coded.SQLState() == "23505"
	}
	return false
}

// PostgresCompanyRepository implements CompanyRepository for PostgreSQL.
type PostgresCompanyRepository struct {
	db *sqlx.DB
}

func NewPostgresCompanyRepository(db *sqlx.DB) *PostgresCompanyRepository {
	return &PostgresCompanyRepository{db: db}
}

func (r *PostgresCompanyRepository) Create(ctx context.Context, company *model.Company) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO companies (id, name, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, company.ID, company.Name, company.Settings, company.CreatedAt, company.UpdatedAt)
	if uniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PostgresCompanyRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Company, error) {
	var c model.Company
	err := conn(ctx, r.db).GetContext(ctx, &c, `
		SELECT id, name, settings, created_at, updated_at FROM companies WHERE id = $1
	`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *PostgresCompanyRepository) List(ctx context.Context) ([]*model.Company, error) {
	var companies []*model.Company
	err := conn(ctx, r.db).SelectContext(ctx, &companies, `
		SELECT id, name, settings, created_at, updated_at FROM companies ORDER BY name
	`)
	return companies, err
}

func (r *PostgresCompanyRepository) UpdateSettings(ctx context.Context, id uuid.UUID, settings model.CompanySettings) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE companies SET settings = $2, updated_at = $3 WHERE id = $1
	`, id, settings, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

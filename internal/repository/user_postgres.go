package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ioms/backend/internal/model"
)

const userColumns = `id, company_id, email, password_hash, first_name, last_name, role,
	last_login_at, active, created_at, updated_at`

// PostgresUserRepository implements UserRepository for PostgreSQL.
type PostgresUserRepository struct {
	db *sqlx.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository.
func NewPostgresUserRepository(db *sqlx.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *model.User) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO users (id, company_id, email, password_hash, first_name, last_name, role, last_login_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, user.ID, user.CompanyID, strings.ToLower(user.Email), user.PasswordHash,
		user.FirstName, user.LastName, user.Role,
		user.LastLoginAt, user.Active, user.CreatedAt, user.UpdatedAt)
	if uniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	if err := conn(ctx, r.db).GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := conn(ctx, r.db).GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *PostgresUserRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*model.User, error) {
	var users []*model.User
	err := conn(ctx, r.db).SelectContext(ctx, &users, `
		SELECT `+userColumns+` FROM users WHERE company_id = $1 ORDER BY created_at ASC
	`, companyID)
	return users, err
}

func (r *PostgresUserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, t time.Time) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE users SET last_login_at = $2, updated_at = $3 WHERE id = $1
	`, id, t, time.Now().UTC())
	return err
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ioms/backend/internal/model"
)

// PostgresApplicationRepository implements ApplicationRepository for PostgreSQL.
type PostgresApplicationRepository struct {
	db *sqlx.DB
}

func NewPostgresApplicationRepository(db *sqlx.DB) *PostgresApplicationRepository {
	return &PostgresApplicationRepository{db: db}
}

func (r *PostgresApplicationRepository) Create(ctx context.Context, app *model.Application) error {
	q := conn(ctx, r.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO applications (id, company_id, name, description, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, app.ID, app.CompanyID, app.Name, app.Description, app.Active, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		if uniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	for i := range app.Environments {
		if err := r.AddEnvironment(ctx, &app.Environments[i]); err != nil {
			return fmt.Errorf("environment %q: %w", app.Environments[i].Name, err)
		}
	}
	for i := range app.Locations {
		if err := r.AddLocation(ctx, &app.Locations[i]); err != nil {
			return fmt.Errorf("location %q: %w", app.Locations[i].Name, err)
		}
	}
	return nil
}

func (r *PostgresApplicationRepository) GetByID(ctx context.Context, companyID, id uuid.UUID) (*model.Application, error) {
	var app model.Application
	err := conn(ctx, r.db).GetContext(ctx, &app, `
		SELECT id, company_id, name, description, active, created_at, updated_at
		FROM applications WHERE company_id = $1 AND id = $2
	`, companyID, id)
	if err != nil {
		return nil, notFound(err)
	}
	if err := r.loadChildren(ctx, []*model.Application{&app}); err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *PostgresApplicationRepository) List(ctx context.Context, companyID uuid.UUID) ([]*model.Application, error) {
	var apps []*model.Application
	err := conn(ctx, r.db).SelectContext(ctx, &apps, `
		SELECT id, company_id, name, description, active, created_at, updated_at
		FROM applications WHERE company_id = $1 ORDER BY name
	`, companyID)
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// loadChildren fills environments, locations and key users with one query per table.
func (r *PostgresApplicationRepository) loadChildren(ctx context.Context, apps []*model.Application) error {
	if len(apps) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*model.Application, len(apps))
	ids := make([]uuid.UUID, 0, len(apps))
	for _, a := range apps {
		a.Environments = []model.Environment{}
		a.Locations = []model.Location{}
		a.KeyUserIDs = []uuid.UUID{}
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}
	q := conn(ctx, r.db)
	idArr := uuidStrings(ids)

	var envs []model.Environment
	if err := q.SelectContext(ctx, &envs, `
		SELECT id, application_id, name FROM environments
		WHERE application_id = ANY($1::uuid[]) ORDER BY name
	`, idArr); err != nil {
		return fmt.Errorf("load environments: %w", err)
	}
	for _, e := range envs {
		byID[e.ApplicationID].Environments = append(byID[e.ApplicationID].Environments, e)
	}

	var locs []model.Location
	if err := q.SelectContext(ctx, &locs, `
		SELECT id, application_id, name, kind, region FROM locations
		WHERE application_id = ANY($1::uuid[]) ORDER BY name
	`, idArr); err != nil {
		return fmt.Errorf("load locations: %w", err)
	}
	for _, l := range locs {
		byID[l.ApplicationID].Locations = append(byID[l.ApplicationID].Locations, l)
	}

	var keyUsers []struct {
		ApplicationID uuid.UUID `db:"application_id"`
		UserID        uuid.UUID `db:"user_id"`
	}
	if err := q.SelectContext(ctx, &keyUsers, `
		SELECT application_id, user_id FROM application_key_users
		WHERE application_id = ANY($1::uuid[]) ORDER BY position
	`, idArr); err != nil {
		return fmt.Errorf("load key users: %w", err)
	}
	for _, k := range keyUsers {
		byID[k.ApplicationID].KeyUserIDs = append(byID[k.ApplicationID].KeyUserIDs, k.UserID)
	}
	return nil
}

func (r *PostgresApplicationRepository) AddEnvironment(ctx context.Context, env *model.Environment) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO environments (id, application_id, name) VALUES ($1, $2, $3)
	`, env.ID, env.ApplicationID, env.Name)
	if uniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PostgresApplicationRepository) AddLocation(ctx context.Context, loc *model.Location) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO locations (id, application_id, name, kind, region) VALUES ($1, $2, $3, $4, $5)
	`, loc.ID, loc.ApplicationID, loc.Name, loc.Kind, loc.Region)
	if uniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PostgresApplicationRepository) SetKeyUsers(ctx context.Context, applicationID uuid.UUID, userIDs []uuid.UUID) error {
	q := conn(ctx, r.db)
	if _, err := q.ExecContext(ctx, `DELETE FROM application_key_users WHERE application_id = $1`, applicationID); err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO application_key_users (application_id, user_id, position)
		SELECT $1, u, ord FROM unnest($2::uuid[]) WITH ORDINALITY AS t(u, ord)
		ON CONFLICT DO NOTHING
	`, applicationID, uuidStrings(userIDs))
	return err
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ioms/backend/internal/model"
)

const outageColumns = `id, company_id, application_id, location_id, environment_ids::text[] AS environment_ids,
	title, reason, description, type, criticality, status, scheduled_start, scheduled_end,
	estimated_duration, actual_start, actual_end, created_by, approved_by, approved_at,
	rejected_by, rejected_at, cancelled_by, cancelled_at, reminder_sent_at, version,
	created_at, updated_at`

// outageRow is the scan target of the outages table.
type outageRow struct {
	ID                uuid.UUID      `db:"id"`
	CompanyID         uuid.UUID      `db:"company_id"`
	ApplicationID     uuid.UUID      `db:"application_id"`
	LocationID        uuid.NullUUID  `db:"location_id"`
	EnvironmentIDs    pq.StringArray `db:"environment_ids"`
	Title             string         `db:"title"`
	Reason            string         `db:"reason"`
	Description       string         `db:"description"`
	Type              string         `db:"type"`
	Criticality       string         `db:"criticality"`
	Status            string         `db:"status"`
	ScheduledStart    time.Time      `db:"scheduled_start"`
	ScheduledEnd      time.Time      `db:"scheduled_end"`
	EstimatedDuration *int64         `db:"estimated_duration"`
	ActualStart       *time.Time     `db:"actual_start"`
	ActualEnd         *time.Time     `db:"actual_end"`
	CreatedBy         uuid.UUID      `db:"created_by"`
	ApprovedBy        uuid.NullUUID  `db:"approved_by"`
	ApprovedAt        *time.Time     `db:"approved_at"`
	RejectedBy        uuid.NullUUID  `db:"rejected_by"`
	RejectedAt        *time.Time     `db:"rejected_at"`
	CancelledBy       uuid.NullUUID  `db:"cancelled_by"`
	CancelledAt       *time.Time     `db:"cancelled_at"`
	ReminderSentAt    *time.Time     `db:"reminder_sent_at"`
	Version           int            `db:"version"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r outageRow) toModel() (*model.Outage, error) {
	envs := make([]uuid.UUID, 0, len(r.EnvironmentIDs))
	for _, s := range r.EnvironmentIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("outage %s: bad environment id %q: %w", r.ID, s, err)
		}
		envs = append(envs, id)
	}
	return &model.Outage{
		BaseEntity:        model.BaseEntity{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		CompanyID:         r.CompanyID,
		ApplicationID:     r.ApplicationID,
		LocationID:        nullable(r.LocationID),
		EnvironmentIDs:    envs,
		Title:             r.Title,
		Reason:            r.Reason,
		Description:       r.Description,
		Type:              model.OutageType(r.Type),
		Criticality:       model.Criticality(r.Criticality),
		Status:            model.OutageStatus(r.Status),
		ScheduledStart:    r.ScheduledStart.UTC(),
		ScheduledEnd:      r.ScheduledEnd.UTC(),
		EstimatedDuration: r.EstimatedDuration,
		ActualStart:       r.ActualStart,
		ActualEnd:         r.ActualEnd,
		CreatedBy:         r.CreatedBy,
		ApprovedBy:        nullable(r.ApprovedBy),
		ApprovedAt:        r.ApprovedAt,
		RejectedBy:        nullable(r.RejectedBy),
		RejectedAt:        r.RejectedAt,
		CancelledBy:       nullable(r.CancelledBy),
		CancelledAt:       r.CancelledAt,
		ReminderSentAt:    r.ReminderSentAt,
		Version:           r.Version,
	}, nil
}

func nullable(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

func uuidStrings(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// PostgresOutageRepository implements OutageRepository for PostgreSQL.
type PostgresOutageRepository struct {
	db *sqlx.DB
}

func NewPostgresOutageRepository(db *sqlx.DB) *PostgresOutageRepository {
	return &PostgresOutageRepository{db: db}
}

func (r *PostgresOutageRepository) Create(ctx context.Context, o *model.Outage) error {
	if o.Version == 0 {
		o.Version = 1
	}
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO outages (
			id, company_id, application_id, location_id, environment_ids,
			title, reason, description, type, criticality, status,
			scheduled_start, scheduled_end, estimated_duration, created_by,
			version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5::uuid[], $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)`,
		o.ID, o.CompanyID, o.ApplicationID, o.LocationID, uuidStrings(o.EnvironmentIDs),
		o.Title, o.Reason, o.Description, o.Type, o.Criticality, o.Status,
		o.ScheduledStart, o.ScheduledEnd, o.EstimatedDuration, o.CreatedBy,
		o.Version, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

func (r *PostgresOutageRepository) GetByID(ctx context.Context, companyID, id uuid.UUID) (*model.Outage, error) {
	return r.getOne(ctx, `SELECT `+outageColumns+` FROM outages WHERE company_id = $1 AND id = $2`, companyID, id)
}

func (r *PostgresOutageRepository) GetForUpdate(ctx context.Context, companyID, id uuid.UUID) (*model.Outage, error) {
	return r.getOne(ctx, `SELECT `+outageColumns+` FROM outages WHERE company_id = $1 AND id = $2 FOR UPDATE`, companyID, id)
}

func (r *PostgresOutageRepository) getOne(ctx context.Context, query string, args ...any) (*model.Outage, error) {
	var row outageRow
	if err := conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		return nil, notFound(err)
	}
	return row.toModel()
}

func (r *PostgresOutageRepository) Update(ctx context.Context, o *model.Outage) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE outages SET
			location_id = $3, environment_ids = $4::uuid[], title = $5, reason = $6,
			description = $7, criticality = $8, status = $9, scheduled_start = $10,
			scheduled_end = $11, estimated_duration = $12, actual_start = $13, actual_end = $14,
			approved_by = $15, approved_at = $16, rejected_by = $17, rejected_at = $18,
			cancelled_by = $19, cancelled_at = $20, updated_at = $21, version = version + 1
		WHERE id = $1 AND version = $2`,
		o.ID, o.Version, o.LocationID, uuidStrings(o.EnvironmentIDs), o.Title, o.Reason,
		o.Description, o.Criticality, o.Status, o.ScheduledStart,
		o.ScheduledEnd, o.EstimatedDuration, o.ActualStart, o.ActualEnd,
		o.ApprovedBy, o.ApprovedAt, o.RejectedBy, o.RejectedAt,
		o.CancelledBy, o.CancelledAt, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleVersion
	}
	o.Version++
	return nil
}

func (r *PostgresOutageRepository) List(ctx context.Context, filter model.OutageFilter, pagination model.Pagination) ([]*model.Outage, int, error) {
	where := "WHERE company_id = $1"
	args := []any{filter.CompanyID}
	argIdx := 2

	if len(filter.ApplicationIDs) > 0 {
		where += fmt.Sprintf(" AND application_id = ANY($%d::uuid[])", argIdx)
		args = append(args, uuidStrings(filter.ApplicationIDs))
		argIdx++
	}
	if len(filter.Statuses) > 0 {
		statuses := make(pq.StringArray, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, statuses)
		argIdx++
	}
	if len(filter.Criticalities) > 0 {
		crits := make(pq.StringArray, len(filter.Criticalities))
		for i, c := range filter.Criticalities {
			crits[i] = string(c)
		}
		where += fmt.Sprintf(" AND criticality = ANY($%d)", argIdx)
		args = append(args, crits)
		argIdx++
	}
	if filter.CreatedBy != nil {
		where += fmt.Sprintf(" AND created_by = $%d", argIdx)
		args = append(args, *filter.CreatedBy)
		argIdx++
	}
	if filter.Window != nil {
		where += fmt.Sprintf(" AND scheduled_start < $%d AND scheduled_end > $%d", argIdx, argIdx+1)
		args = append(args, filter.Window.End, filter.Window.Start)
		argIdx += 2
	}

	q := conn(ctx, r.db)
	var total int
	if err := q.GetContext(ctx, &total, "SELECT COUNT(*) FROM outages "+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM outages %s ORDER BY scheduled_start ASC, id LIMIT $%d OFFSET $%d",
		outageColumns, where, argIdx, argIdx+1)
	args = append(args, pagination.PageSize, pagination.Offset())

	outages, err := r.selectOutages(ctx, query, args...)
	return outages, total, err
}

func (r *PostgresOutageRepository) FindOverlapping(ctx context.Context, q model.OverlapQuery) ([]*model.Outage, error) {
	// Inclusive bounds so that touching windows come back for adjacency warnings.
	query := `SELECT ` + outageColumns + ` FROM outages
		WHERE company_id = $1
		  AND status NOT IN ('rejected', 'cancelled')
		  AND scheduled_start <= $3 AND scheduled_end >= $2
		  AND (application_id = $4
		       OR ($5::uuid IS NOT NULL AND location_id = $5::uuid)
		       OR environment_ids && $6::uuid[])
		  AND ($7::uuid IS NULL OR id <> $7::uuid)
		ORDER BY scheduled_start`
	return r.selectOutages(ctx, query,
		q.CompanyID, q.Start, q.End, q.ApplicationID, q.LocationID, uuidStrings(q.EnvironmentIDs), q.ExcludeOutageID)
}

func (r *PostgresOutageRepository) ListDueForAdvance(ctx context.Context, now time.Time) ([]*model.Outage, error) {
	return r.selectOutages(ctx, `SELECT `+outageColumns+` FROM outages
		WHERE (status = 'approved' AND scheduled_start <= $1)
		   OR (status = 'in_progress' AND scheduled_end <= $1)
		ORDER BY scheduled_start
		LIMIT 500`, now)
}

func (r *PostgresOutageRepository) ListReminderDue(ctx context.Context, now time.Time, lead time.Duration) ([]*model.Outage, error) {
	return r.selectOutages(ctx, `SELECT `+outageColumns+` FROM outages
		WHERE status = 'approved'
		  AND reminder_sent_at IS NULL
		  AND scheduled_start > $1 AND scheduled_start <= $2
		ORDER BY scheduled_start`, now, now.Add(lead))
}

func (r *PostgresOutageRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE outages SET reminder_sent_at = $2 WHERE id = $1`, id, at)
	return err
}

func (r *PostgresOutageRepository) LockApplication(ctx context.Context, applicationID uuid.UUID) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, applicationID.String())
	return err
}

func (r *PostgresOutageRepository) GetSummary(ctx context.Context, companyID uuid.UUID, now time.Time) (*model.OutageSummary, error) {
	summary := &model.OutageSummary{
		ByStatus:      make(map[model.OutageStatus]int),
		ByCriticality: make(map[model.Criticality]int),
	}
	q := conn(ctx, r.db)

	var byStatus []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := q.SelectContext(ctx, &byStatus, `
		SELECT status, COUNT(*) AS count FROM outages WHERE company_id = $1 GROUP BY status
	`, companyID); err != nil {
		return nil, err
	}
	for _, s := range byStatus {
		summary.ByStatus[model.OutageStatus(s.Status)] = s.Count
		summary.TotalCount += s.Count
	}
	summary.PendingCount = summary.ByStatus[model.OutageStatusPending]

	var byCrit []struct {
		Criticality string `db:"criticality"`
		Count       int    `db:"count"`
	}
	if err := q.SelectContext(ctx, &byCrit, `
		SELECT criticality, COUNT(*) AS count FROM outages
		WHERE company_id = $1 AND status NOT IN ('rejected', 'cancelled', 'completed')
		GROUP BY criticality
	`, companyID); err != nil {
		return nil, err
	}
	for _, c := range byCrit {
		summary.ByCriticality[model.Criticality(c.Criticality)] = c.Count
	}

	upcoming, err := r.selectOutages(ctx, `SELECT `+outageColumns+` FROM outages
		WHERE company_id = $1 AND status IN ('pending', 'approved') AND scheduled_start >= $2
		ORDER BY scheduled_start LIMIT 10`, companyID, now)
	if err != nil {
		return nil, err
	}
	summary.Upcoming = upcoming
	return summary, nil
}

func (r *PostgresOutageRepository) selectOutages(ctx context.Context, query string, args ...any) ([]*model.Outage, error) {
	var rows []outageRow
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	outages := make([]*model.Outage, 0, len(rows))
	for _, row := range rows {
		o, err := row.toModel()
		if err != nil {
			return nil, err
		}
		outages = append(outages, o)
	}
	return outages, nil
}

// PostgresHistoryRepository implements HistoryRepository for PostgreSQL.
type PostgresHistoryRepository struct {
	db *sqlx.DB
}

func NewPostgresHistoryRepository(db *sqlx.DB) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{db: db}
}

func (r *PostgresHistoryRepository) Append(ctx context.Context, h *model.OutageChangeHistory) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO outage_change_history (id, outage_id, change_type, field, old_value, new_value, reason, actor_id, actor_label, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, h.ID, h.OutageID, h.ChangeType, h.Field, h.OldValue, h.NewValue, h.Reason, h.ActorID, h.ActorLabel, h.CreatedAt)
	return err
}

func (r *PostgresHistoryRepository) ListByOutage(ctx context.Context, outageID uuid.UUID) ([]*model.OutageChangeHistory, error) {
	var entries []*model.OutageChangeHistory
	err := conn(ctx, r.db).SelectContext(ctx, &entries, `
		SELECT id, outage_id, change_type, field, old_value, new_value, reason, actor_id, actor_label, created_at
		FROM outage_change_history WHERE outage_id = $1 ORDER BY created_at ASC, id
	`, outageID)
	return entries, err
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ioms/backend/internal/model"
)

const notificationColumns = `id, company_id, user_id, outage_id, type, title, message, read, read_at, created_at`

// PostgresNotificationRepository implements NotificationRepository for PostgreSQL.
type PostgresNotificationRepository struct {
	db *sqlx.DB
}

func NewPostgresNotificationRepository(db *sqlx.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) CreateBatch(ctx context.Context, notifications []*model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (:id, :company_id, :user_id, :outage_id, :type, :title, :message, :read, :read_at, :created_at)
	`, notifications)
	return err
}

func (r *PostgresNotificationRepository) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, pagination model.Pagination) ([]*model.Notification, int, error) {
	where := "WHERE user_id = $1"
	if unreadOnly {
		where += " AND NOT read"
	}
	q := conn(ctx, r.db)

	var total int
	if err := q.GetContext(ctx, &total, "SELECT COUNT(*) FROM notifications "+where, userID); err != nil {
		return nil, 0, err
	}
	var items []*model.Notification
	err := q.SelectContext(ctx, &items, `SELECT `+notificationColumns+` FROM notifications `+where+`
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, pagination.PageSize, pagination.Offset())
	return items, total, err
}

func (r *PostgresNotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := conn(ctx, r.db).GetContext(ctx, &n, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID)
	return n, err
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $3) WHERE id = $1 AND user_id = $2
	`, id, userID, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresNotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE notifications SET read = TRUE, read_at = $2 WHERE user_id = $1 AND NOT read
	`, userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

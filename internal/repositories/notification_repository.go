package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pwanotify/internal/models"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	ListByClient(ctx context.Context, clientID string) ([]*models.Notification, error)
	ListAll(ctx context.Context) ([]*models.Notification, error)
	Delete(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id string, at time.Time) error
	// ListDue returns scheduled, unsent notifications with scheduled_at <= now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error)
	Count(ctx context.Context) (int, error)
}

type notificationRepository struct {
	db DBTX
}

func NewNotificationRepository(db DBTX) NotificationRepository {
	return &notificationRepository{db: db}
}

const notificationColumns = `id, client_id, title, message, type, icon_url, target_url, scheduled_at, sent_at, created_at`

func scanNotification(row rowScanner) (*models.Notification, error) {
	n := &models.Notification{}
	err := row.Scan(
		&n.ID, &n.ClientID, &n.Title, &n.Message, &n.Type,
		&n.IconURL, &n.TargetURL, &n.ScheduledAt, &n.SentAt, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Type == "" {
		n.Type = models.NotificationTypeInfo
	}
	const q = `
		INSERT INTO notifications (id, client_id, title, message, type, icon_url, target_url, scheduled_at, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, q,
		n.ID, n.ClientID, n.Title, n.Message, n.Type,
		n.IconURL, n.TargetURL, n.ScheduledAt, n.SentAt,
	).Scan(&n.CreatedAt)
	return dbError("notification create", err)
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, dbError("notification get", errNoRows)
	}
	q := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, dbError("notification get", err)
	}
	return n, nil
}

func (r *notificationRepository) list(ctx context.Context, op, q string, args ...any) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dbError(op, err)
	}
	defer rows.Close()

	res := []*models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, dbError(op, err)
		}
		res = append(res, n)
	}
	return res, dbError(op, rows.Err())
}

func (r *notificationRepository) ListByClient(ctx context.Context, clientID string) ([]*models.Notification, error) {
	return r.list(ctx, "notification list by client",
		`SELECT `+notificationColumns+` FROM notifications WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
}

func (r *notificationRepository) ListAll(ctx context.Context) ([]*models.Notification, error) {
	return r.list(ctx, "notification list all",
		`SELECT `+notificationColumns+` FROM notifications ORDER BY created_at DESC`)
}

func (r *notificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	return r.list(ctx, "notification list due",
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE sent_at IS NULL AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		 ORDER BY scheduled_at
		 LIMIT $2`, now, limit)
}

func (r *notificationRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return dbError("notification delete", errNoRows)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return dbError("notification delete", err)
	}
	return expectAffected("notification delete", res)
}

func (r *notificationRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`, id, at)
	if err != nil {
		return dbError("notification mark sent", err)
	}
	return expectAffected("notification mark sent", res)
}

func (r *notificationRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&n)
	return n, dbError("notification count", err)
}

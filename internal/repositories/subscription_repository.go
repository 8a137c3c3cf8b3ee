package repositories

import (
	"context"

	"github.com/google/uuid"

	"pwanotify/internal/models"
)

type SubscriptionRepository interface {
	// Upsert inserts a subscription or, when the endpoint is known, replaces
	// its keys and owner. sub.ID and sub.CreatedAt are set from the stored row.
	Upsert(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, id string) (*models.Subscription, error)
	ListByClient(ctx context.Context, clientID string) ([]*models.Subscription, error)
	ListAll(ctx context.Context) ([]*models.Subscription, error)
	Delete(ctx context.Context, id string) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	Count(ctx context.Context) (int, error)
}

type subscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

const subscriptionColumns = `id, client_id, endpoint, p256dh_key, auth_key, created_at`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	s := &models.Subscription{}
	if err := row.Scan(&s.ID, &s.ClientID, &s.Endpoint, &s.P256dhKey, &s.AuthKey, &s.CreatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *subscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO subscriptions (id, client_id, endpoint, p256dh_key, auth_key)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE
		SET client_id = EXCLUDED.client_id,
		    p256dh_key = EXCLUDED.p256dh_key,
		    auth_key = EXCLUDED.auth_key
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, q, sub.ID, sub.ClientID, sub.Endpoint, sub.P256dhKey, sub.AuthKey).
		Scan(&sub.ID, &sub.CreatedAt)
	return dbError("subscription upsert", err)
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, dbError("subscription get", errNoRows)
	}
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	s, err := scanSubscription(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, dbError("subscription get", err)
	}
	return s, nil
}

func (r *subscriptionRepository) list(ctx context.Context, op, q string, args ...any) ([]*models.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dbError(op, err)
	}
	defer rows.Close()

	res := []*models.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, dbError(op, err)
		}
		res = append(res, s)
	}
	return res, dbError(op, rows.Err())
}

func (r *subscriptionRepository) ListByClient(ctx context.Context, clientID string) ([]*models.Subscription, error) {
	return r.list(ctx, "subscription list by client",
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
}

func (r *subscriptionRepository) ListAll(ctx context.Context) ([]*models.Subscription, error) {
	return r.list(ctx, "subscription list all",
		`SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at DESC`)
}

func (r *subscriptionRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return dbError("subscription delete", errNoRows)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return dbError("subscription delete", err)
	}
	return expectAffected("subscription delete", res)
}

func (r *subscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE endpoint = $1`, endpoint)
	return dbError("subscription delete by endpoint", err)
}

func (r *subscriptionRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&n)
	return n, dbError("subscription count", err)
}

package repositories

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
	"github.com/samber/oops"

	"pwanotify/internal/migrations"
)

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return oops.Code("MIGRATE_FAILED").Wrapf(err, "set goose dialect")
	}
	if err := gooseUp(ctx, db, "."); err != nil {
		return oops.Code("MIGRATE_FAILED").Wrapf(err, "apply migrations")
	}
	return nil
}

// Store groups the repositories of one backend.
type Store struct {
	Users         UserRepository
	OTPs          OtpRepository
	Subscriptions SubscriptionRepository
	Notifications NotificationRepository
}

// NewPostgresStore binds all repositories to db.
func NewPostgresStore(db DBTX) *Store {
	return &Store{
		Users:         NewUserRepository(db),
		OTPs:          NewOtpRepository(db),
		Subscriptions: NewSubscriptionRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}

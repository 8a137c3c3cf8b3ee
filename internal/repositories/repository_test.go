package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pwanotify/internal/authz"
	"pwanotify/internal/common"
	"pwanotify/internal/models"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var userCols = []string{"id", "role", "username", "email", "whatsapp_number", "password_hash", "verified", "verified_at", "created_at", "updated_at"}

const testUserID = "6f1c1d2e-7c1a-4b9e-9a57-1f2d3c4b5a69"

func TestUserRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "client", nil, nil, "62811111111", "hash", false, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))

	u := &models.User{Role: authz.RoleClient, WhatsAppNumber: models.StringPtr("62811111111"), PasswordHash: "hash"}
	require.NoError(t, repo.Create(context.Background(), u))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, created, u.CreatedAt)
}

func TestUserRepository_Create_UniqueViolation(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_whatsapp_number_key"})

	err := repo.Create(context.Background(), &models.User{Role: authz.RoleClient, WhatsAppNumber: models.StringPtr("628")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrConflict))
}

func TestUserRepository_GetByWhatsAppNumber(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE whatsapp_number = \$1`).
		WithArgs("62811111111").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(testUserID, "client", nil, nil, "62811111111", "hash", false, nil, now, now))

	u, err := repo.GetByWhatsAppNumber(context.Background(), "62811111111")
	require.NoError(t, err)
	assert.Equal(t, testUserID, u.ID)
	assert.Equal(t, authz.RoleClient, u.Role)
	assert.Nil(t, u.Username)
	assert.Equal(t, "62811111111", u.Phone())
	assert.False(t, u.Verified)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(testUserID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), testUserID)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	// malformed ids never reach the database
	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestUserRepository_Update_NeverClearsVerified(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	verifiedAt := time.Now().UTC()

	mock.ExpectQuery(`(?s)UPDATE users\s+SET.+verified = verified OR \$5`).
		WithArgs(nil, nil, "62811111111", "hash", false, testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"verified", "verified_at", "updated_at"}).
			AddRow(true, verifiedAt, verifiedAt))

	u := &models.User{ID: testUserID, WhatsAppNumber: models.StringPtr("62811111111"), PasswordHash: "hash", Verified: false}
	require.NoError(t, repo.Update(context.Background(), u))
	assert.True(t, u.Verified)
	require.NotNil(t, u.VerifiedAt)
}

func TestUserRepository_MarkVerified(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE users\s+SET verified = TRUE`).
		WithArgs(testUserID, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkVerified(context.Background(), testUserID, at))

	mock.ExpectExec(`UPDATE users\s+SET verified = TRUE`).
		WithArgs(testUserID, at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkVerified(context.Background(), testUserID, at)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestUserRepository_ListAndCount(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM users WHERE role = \$1 ORDER BY created_at DESC`).
		WithArgs("client").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(testUserID, "client", nil, nil, "628111", "h", true, now, now, now).
			AddRow("9d0e6a53-2f9b-4a8e-8f8e-6a1f7b0c2d3e", "client", nil, nil, "628222", "h", false, nil, now, now))
	users, err := repo.ListByRole(context.Background(), authz.RoleClient)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.True(t, users[0].Verified)
	require.NotNil(t, users[0].VerifiedAt)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE role = \$1 AND verified = TRUE`).
		WithArgs("client").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	n, err := repo.CountVerifiedByRole(context.Background(), authz.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUserRepository_DBErrorIsWrapped(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`FROM users WHERE email = \$1`).WillReturnError(errors.New("db down"))
	_, err := repo.GetByEmail(context.Background(), "a@b.io")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.False(t, errors.Is(err, common.ErrNotFound))
}

var otpCols = []string{"id", "user_id", "code", "expires_at", "used", "used_at", "attempts", "created_at"}

func TestOtpRepository_Consume(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOtpRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)UPDATE otp_codes\s+SET used = TRUE, used_at = \$3.+ORDER BY created_at DESC.+AND used = FALSE\s+RETURNING`).
		WithArgs(testUserID, "123456", now).
		WillReturnRows(sqlmock.NewRows(otpCols).
			AddRow("o1", testUserID, "123456", now.Add(5*time.Minute), true, now, 0, now.Add(-time.Minute)))

	o, err := repo.Consume(context.Background(), testUserID, "123456", now)
	require.NoError(t, err)
	assert.True(t, o.Used)
	require.NotNil(t, o.UsedAt)
}

func TestOtpRepository_Consume_NoMatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOtpRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE otp_codes`).
		WithArgs(testUserID, "000000", now).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Consume(context.Background(), testUserID, "000000", now)
	assert.True(t, errors.Is(err, common.ErrInvalidOTP))
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestOtpRepository_CreateAndInvalidate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOtpRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE otp_codes\s+SET expires_at = \$2\s+WHERE user_id = \$1 AND used = FALSE`).
		WithArgs(testUserID, now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err := repo.InvalidateActive(context.Background(), testUserID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	mock.ExpectExec(`INSERT INTO otp_codes`).
		WithArgs(sqlmock.AnyArg(), testUserID, "654321", now.Add(10*time.Minute), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	o := &models.OtpCode{UserID: testUserID, Code: "654321", ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now}
	require.NoError(t, repo.Create(context.Background(), o))
	assert.NotEmpty(t, o.ID)
}

func TestOtpRepository_AttemptsAndCount(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOtpRepository(db)
	since := time.Now().UTC().Add(-10 * time.Minute)

	mock.ExpectQuery(`SET attempts = attempts \+ 1`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(3))
	attempts, err := repo.IncrementAttempts(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM otp_codes WHERE user_id = \$1 AND created_at >= \$2`).
		WithArgs(testUserID, since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	n, err := repo.CountIssuedSince(context.Background(), testUserID, since)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	mock.ExpectExec(`DELETE FROM otp_codes WHERE expires_at < \$1`).
		WithArgs(since).
		WillReturnResult(sqlmock.NewResult(0, 7))
	deleted, err := repo.DeleteExpired(context.Background(), since)
	require.NoError(t, err)
	assert.EqualValues(t, 7, deleted)
}

func TestSubscriptionRepository_Upsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepository(db)
	created := time.Now().UTC()

	mock.ExpectQuery(`(?s)INSERT INTO subscriptions.+ON CONFLICT \(endpoint\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), testUserID, "https://push.example/1", "p256", "auth").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("existing-id", created))

	sub := &models.Subscription{ClientID: testUserID, Endpoint: "https://push.example/1", P256dhKey: "p256", AuthKey: "auth"}
	require.NoError(t, repo.Upsert(context.Background(), sub))
	assert.Equal(t, "existing-id", sub.ID)
	assert.Equal(t, created, sub.CreatedAt)
}

func TestSubscriptionRepository_DeleteMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepository(db)

	mock.ExpectExec(`DELETE FROM subscriptions WHERE id = \$1`).
		WithArgs(testUserID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Delete(context.Background(), testUserID)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestNotificationRepository_ListDue(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationRepository(db)
	now := time.Now().UTC()
	cols := []string{"id", "client_id", "title", "message", "type", "icon_url", "target_url", "scheduled_at", "sent_at", "created_at"}

	mock.ExpectQuery(`FROM notifications\s+WHERE sent_at IS NULL AND scheduled_at IS NOT NULL AND scheduled_at <= \$1`).
		WithArgs(now, 50).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("n1", testUserID, "Hi", "msg", "info", nil, "/inbox", now.Add(-time.Minute), nil, now.Add(-time.Hour)))

	due, err := repo.ListDue(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Nil(t, due[0].IconURL)
	require.NotNil(t, due[0].TargetURL)
	assert.Equal(t, "/inbox", *due[0].TargetURL)
	assert.True(t, due[0].IsDue(now))
}

func TestNotificationRepository_CreateAndMarkSent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs(sqlmock.AnyArg(), testUserID, "Hi", "msg", "info", nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	n := &models.Notification{ClientID: testUserID, Title: "Hi", Message: "msg"}
	require.NoError(t, repo.Create(context.Background(), n))
	assert.Equal(t, models.NotificationTypeInfo, n.Type)

	mock.ExpectExec(`UPDATE notifications SET sent_at = \$2 WHERE id = \$1 AND sent_at IS NULL`).
		WithArgs(n.ID, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkSent(context.Background(), n.ID, now))
}

func TestRunMigrations_UsesEmbeddedFS(t *testing.T) {
	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), nil))
	assert.Equal(t, ".", gotDir)

	gooseUp = func(context.Context, *sql.DB, string) error { return errors.New("locked") }
	err := RunMigrations(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"pwanotify/internal/common"
	"pwanotify/internal/models"
)

type OtpRepository interface {
	Create(ctx context.Context, otp *models.OtpCode) error
	// InvalidateActive expires every unused, unexpired code of the user.
	InvalidateActive(ctx context.Context, userID string, now time.Time) (int64, error)
	// Consume atomically marks the latest matching active code as used.
	// Returns common.ErrInvalidOTP when nothing matched.
	Consume(ctx context.Context, userID, code string, now time.Time) (*models.OtpCode, error)
	LatestActive(ctx context.Context, userID string, now time.Time) (*models.OtpCode, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Expire(ctx context.Context, id string, now time.Time) error
	CountIssuedSince(ctx context.Context, userID string, since time.Time) (int, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type otpRepository struct {
	db DBTX
}

func NewOtpRepository(db DBTX) OtpRepository {
	return &otpRepository{db: db}
}

const otpColumns = `id, user_id, code, expires_at, used, used_at, attempts, created_at`

func scanOtp(row rowScanner) (*models.OtpCode, error) {
	o := &models.OtpCode{}
	if err := row.Scan(&o.ID, &o.UserID, &o.Code, &o.ExpiresAt, &o.Used, &o.UsedAt, &o.Attempts, &o.CreatedAt); err != nil {
		return nil, err
	}
	return o, nil
}

// Create: каждая выдача кода это новая строка.
func (r *otpRepository) Create(ctx context.Context, otp *models.OtpCode) error {
	if otp.ID == "" {
		otp.ID = uuid.NewString()
	}
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO otp_codes (id, user_id, code, expires_at, used, attempts, created_at)
		VALUES ($1, $2, $3, $4, FALSE, 0, $5)
	`
	_, err := r.db.ExecContext(ctx, q, otp.ID, otp.UserID, otp.Code, otp.ExpiresAt, otp.CreatedAt)
	return dbError("otp create", err)
}

func (r *otpRepository) InvalidateActive(ctx context.Context, userID string, now time.Time) (int64, error) {
	const q = `
		UPDATE otp_codes
		SET expires_at = $2
		WHERE user_id = $1 AND used = FALSE AND expires_at > $2
	`
	res, err := r.db.ExecContext(ctx, q, userID, now)
	if err != nil {
		return 0, dbError("otp invalidate", err)
	}
	n, err := res.RowsAffected()
	return n, dbError("otp invalidate", err)
}

// Consume: условный UPDATE, из двух параллельных запросов строку получит только один.
func (r *otpRepository) Consume(ctx context.Context, userID, code string, now time.Time) (*models.OtpCode, error) {
	const q = `
		UPDATE otp_codes
		SET used = TRUE, used_at = $3
		WHERE id = (
			SELECT id FROM otp_codes
			WHERE user_id = $1 AND code = $2 AND used = FALSE AND expires_at > $3
			ORDER BY created_at DESC
			LIMIT 1
		) AND used = FALSE
		RETURNING ` + otpColumns
	o, err := scanOtp(r.db.QueryRowContext(ctx, q, userID, code, now))
	if err != nil {
		if errors.Is(err, errNoRows) {
			return nil, oops.Code("OTP_INVALID").With("user_id", userID).Wrap(common.ErrInvalidOTP)
		}
		return nil, dbError("otp consume", err)
	}
	return o, nil
}

func (r *otpRepository) LatestActive(ctx context.Context, userID string, now time.Time) (*models.OtpCode, error) {
	const q = `
		SELECT ` + otpColumns + `
		FROM otp_codes
		WHERE user_id = $1 AND used = FALSE AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	o, err := scanOtp(r.db.QueryRowContext(ctx, q, userID, now))
	if err != nil {
		return nil, dbError("otp latest active", err)
	}
	return o, nil
}

// IncrementAttempts: +1 попытка, возвращает новое значение attempts.
func (r *otpRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	const q = `
		UPDATE otp_codes
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`
	var attempts int
	err := r.db.QueryRowContext(ctx, q, id).Scan(&attempts)
	return attempts, dbError("otp increment attempts", err)
}

func (r *otpRepository) Expire(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE otp_codes SET expires_at = $2 WHERE id = $1 AND expires_at > $2`, id, now)
	return dbError("otp expire", err)
}

// CountIssuedSince: сколько кодов выдано за окно (для троттлинга resend).
func (r *otpRepository) CountIssuedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM otp_codes WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&n)
	return n, dbError("otp count issued", err)
}

func (r *otpRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE expires_at < $1`, before)
	if err != nil {
		return 0, dbError("otp delete expired", err)
	}
	n, err := res.RowsAffected()
	return n, dbError("otp delete expired", err)
}

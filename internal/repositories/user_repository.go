package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pwanotify/internal/authz"
	"pwanotify/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByWhatsAppNumber(ctx context.Context, phone string) (*models.User, error)
	ListByRole(ctx context.Context, role authz.Role) ([]*models.User, error)
	// Update never clears verified: a false value in user is ignored.
	Update(ctx context.Context, user *models.User) error
	MarkVerified(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	CountByRole(ctx context.Context, role authz.Role) (int, error)
	CountVerifiedByRole(ctx context.Context, role authz.Role) (int, error)
}

type userRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, role, username, email, whatsapp_number, password_hash, verified, verified_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID, &u.Role, &u.Username, &u.Email, &u.WhatsAppNumber,
		&u.PasswordHash, &u.Verified, &u.VerifiedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO users (id, role, username, email, whatsapp_number, password_hash, verified, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, q,
		user.ID,
		user.Role,
		user.Username,
		user.Email,
		user.WhatsAppNumber,
		user.PasswordHash,
		user.Verified,
		user.VerifiedAt,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	return dbError("user create", err)
}

func (r *userRepository) getOne(ctx context.Context, op, where string, arg any) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		return nil, dbError(op, err)
	}
	return u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		// невалидный uuid postgres отвергнет с ошибкой, для нас это просто "нет такого"
		return nil, dbError("user get by id", errNoRows)
	}
	return r.getOne(ctx, "user get by id", "id", id)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, "user get by username", "username", username)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "user get by email", "email", email)
}

func (r *userRepository) GetByWhatsAppNumber(ctx context.Context, phone string) (*models.User, error) {
	return r.getOne(ctx, "user get by whatsapp", "whatsapp_number", phone)
}

func (r *userRepository) ListByRole(ctx context.Context, role authz.Role) ([]*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE role = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, role)
	if err != nil {
		return nil, dbError("user list", err)
	}
	defer rows.Close()

	res := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, dbError("user list scan", err)
		}
		res = append(res, u)
	}
	return res, dbError("user list rows", rows.Err())
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	const q = `
		UPDATE users
		SET
			username = $1,
			email = $2,
			whatsapp_number = $3,
			password_hash = $4,
			verified = verified OR $5,
			verified_at = CASE WHEN verified OR NOT $5 THEN verified_at ELSE NOW() END,
			updated_at = NOW()
		WHERE id = $6
		RETURNING verified, verified_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, q,
		user.Username,
		user.Email,
		user.WhatsAppNumber,
		user.PasswordHash,
		user.Verified,
		user.ID,
	).Scan(&user.Verified, &user.VerifiedAt, &user.UpdatedAt)
	return dbError("user update", err)
}

// MarkVerified: флаг ставится один раз, verified_at не перезаписывается.
func (r *userRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	const q = `
		UPDATE users
		SET verified = TRUE,
		    verified_at = COALESCE(verified_at, $2),
		    updated_at = $2
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return dbError("user mark verified", err)
	}
	return expectAffected("user mark verified", res)
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return dbError("user delete", errNoRows)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return dbError("user delete", err)
	}
	return expectAffected("user delete", res)
}

func (r *userRepository) CountByRole(ctx context.Context, role authz.Role) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, role).Scan(&n)
	return n, dbError("user count", err)
}

func (r *userRepository) CountVerifiedByRole(ctx context.Context, role authz.Role) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = $1 AND verified = TRUE`, role).Scan(&n)
	return n, dbError("user count verified", err)
}

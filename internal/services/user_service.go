package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"pwanotify/internal/authz"
	"pwanotify/internal/logging"
	"pwanotify/internal/models"
	"pwanotify/internal/repositories"
)

// UserUpdate carries the fields an admin may change. Nil means unchanged.
type UserUpdate struct {
	WhatsAppNumber *string
	Password       *string
	// Verified can only be raised; false is ignored.
	Verified *bool
}

// UserService is the admin-facing user management.
type UserService struct {
	users  repositories.UserRepository
	hasher PasswordHasher
	email  EmailService
	logger *slog.Logger
}

func NewUserService(users repositories.UserRepository, hasher PasswordHasher, email EmailService, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &UserService{users: users, hasher: hasher, email: email, logger: logger}
}

// ListClients returns all client accounts, newest first.
func (s *UserService) ListClients(ctx context.Context) ([]*models.User, error) {
	return s.users.ListByRole(ctx, authz.RoleClient)
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, userLookupError(id, err)
	}
	return u, nil
}

// CreateClient creates an already verified client; no OTP is sent.
func (s *UserService) CreateClient(ctx context.Context, phone, password string) (*models.User, error) {
	reg := models.ClientRegistration{WhatsAppNumber: models.NormalizePhone(phone), Secret: password}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &models.User{
		Role:           authz.RoleClient,
		WhatsAppNumber: models.StringPtr(reg.WhatsAppNumber),
		PasswordHash:   hash,
		Verified:       true,
		VerifiedAt:     &now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, userConflictError(err, "User with this WhatsApp number already exists")
	}
	s.logger.InfoContext(ctx, "client created by admin", "user_id", user.ID)
	return user, nil
}

// CreateAdmin bootstraps an admin account regardless of the public sign-up setting.
func (s *UserService) CreateAdmin(ctx context.Context, reg models.AdminRegistration) (*models.User, error) {
	reg.Email = models.NormalizeEmail(reg.Email)
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(reg.Secret)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &models.User{
		Role:         authz.RoleAdmin,
		Username:     models.StringPtr(reg.Username),
		Email:        models.StringPtr(reg.Email),
		PasswordHash: hash,
		Verified:     true,
		VerifiedAt:   &now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, userConflictError(err, "Admin with this username or email already exists")
	}
	if s.email != nil {
		if err := s.email.SendWelcomeEmail(reg.Email, reg.Username); err != nil {
			logging.LogWarn(s.logger, "welcome email failed", err, "user_id", user.ID)
		}
	}
	s.logger.InfoContext(ctx, "admin created", "user_id", user.ID)
	return user, nil
}

func (s *UserService) Update(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.WhatsAppNumber != nil && *upd.WhatsAppNumber != "" {
		if user.Role != authz.RoleClient {
			return nil, oops.Code("USER_UPDATE_INVALID").
				Public("Only clients have a WhatsApp number").
				Wrap(ErrValidation)
		}
		phone := models.NormalizePhone(*upd.WhatsAppNumber)
		if err := (models.ClientRegistration{WhatsAppNumber: phone, Secret: "x"}).Validate(); err != nil {
			return nil, err
		}
		user.WhatsAppNumber = &phone
	}
	if upd.Password != nil && *upd.Password != "" {
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	// verified монотонен: false игнорируем
	if upd.Verified != nil && *upd.Verified {
		user.Verified = true
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, userConflictError(userLookupError(id, err), "User with this WhatsApp number already exists")
	}
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return userLookupError(id, err)
	}
	s.logger.Info("user deleted", "user_id", id)
	return nil
}

func userLookupError(id string, err error) error {
	if oops.GetPublic(err, "") == "" && errors.Is(err, ErrNotFound) {
		return oops.Code("USER_NOT_FOUND").With("user_id", id).Public("User not found").Wrap(err)
	}
	return err
}

func userConflictError(err error, public string) error {
	if errors.Is(err, ErrConflict) {
		return oops.Code("USER_CONFLICT").Public(public).Wrap(err)
	}
	return err
}

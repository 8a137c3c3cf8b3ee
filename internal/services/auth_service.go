package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"pwanotify/internal/authz"
	"pwanotify/internal/logging"
	"pwanotify/internal/metrics"
	"pwanotify/internal/models"
	"pwanotify/internal/repositories"
	"pwanotify/internal/utils"
)

type AuthConfig struct {
	AllowAdminSignup bool
}

// LoginResult is a minted session.
type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// AuthService drives registration, OTP verification, login and token checks.
// States: registered_unverified -> verified_active; admins start verified.
type AuthService struct {
	users   repositories.UserRepository
	otp     *OTPService
	hasher  PasswordHasher
	tokens  *utils.TokenIssuer
	email   EmailService
	cfg     AuthConfig
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewAuthService(
	users repositories.UserRepository,
	otp *OTPService,
	hasher PasswordHasher,
	tokens *utils.TokenIssuer,
	email EmailService,
	cfg AuthConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
) *AuthService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AuthService{
		users:   users,
		otp:     otp,
		hasher:  hasher,
		tokens:  tokens,
		email:   email,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Register persists a new user and returns its id. Clients get an OTP,
// admins a best-effort welcome email.
func (s *AuthService) Register(ctx context.Context, reg models.Registration) (string, error) {
	if err := reg.Validate(); err != nil {
		return "", err
	}
	if reg.Role() == authz.RoleAdmin && !s.cfg.AllowAdminSignup {
		return "", oops.Code("REGISTER_ADMIN_DISABLED").
			Public("Admin registration is disabled").
			Wrap(ErrAdminSignupDisabled)
	}

	user, err := s.newUser(reg)
	if err != nil {
		return "", err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return "", registerError(err)
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "role", user.Role)

	switch reg.(type) {
	case models.ClientRegistration:
		if _, err := s.otp.Issue(ctx, user, IssueReasonRegister); err != nil {
			return "", err
		}
	case models.AdminRegistration:
		s.sendWelcome(user)
	}
	return user.ID, nil
}

func (s *AuthService) newUser(reg models.Registration) (*models.User, error) {
	hash, err := s.hasher.Hash(reg.Password())
	if err != nil {
		return nil, err
	}
	user := &models.User{Role: reg.Role(), PasswordHash: hash}
	switch r := reg.(type) {
	case models.AdminRegistration:
		now := s.now().UTC()
		user.Username = models.StringPtr(r.Username)
		user.Email = models.StringPtr(r.Email)
		user.Verified = true
		user.VerifiedAt = &now
	case models.ClientRegistration:
		user.WhatsAppNumber = models.StringPtr(models.NormalizePhone(r.WhatsAppNumber))
	}
	return user, nil
}

func (s *AuthService) sendWelcome(user *models.User) {
	if s.email == nil || user.Email == nil {
		return
	}
	name := ""
	if user.Username != nil {
		name = *user.Username
	}
	if err := s.email.SendWelcomeEmail(*user.Email, name); err != nil {
		// письмо не критично, регистрацию не откатываем
		logging.LogWarn(s.logger, "welcome email failed", err, "user_id", user.ID)
	}
}

func registerError(err error) error {
	if errors.Is(err, ErrConflict) {
		return oops.Code("REGISTER_CONFLICT").Public("User already exists").Wrap(err)
	}
	return err
}

// IssueOTP generates and dispatches a fresh code for an existing user.
func (s *AuthService) IssueOTP(ctx context.Context, userID string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	_, err = s.otp.Issue(ctx, user, IssueReasonResend)
	return err
}

// ResendOTP is IssueOTP behind the per-user rate limit.
func (s *AuthService) ResendOTP(ctx context.Context, userID string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.otp.CheckLimit(ctx, user.ID); err != nil {
		return err
	}
	_, err = s.otp.Issue(ctx, user, IssueReasonResend)
	return err
}

// VerifyOTP consumes the code, marks the user verified and mints a session.
func (s *AuthService) VerifyOTP(ctx context.Context, userID, code string) (*LoginResult, error) {
	if userID == "" || code == "" {
		return nil, oops.Code("VERIFY_INVALID_INPUT").
			Public("User ID and OTP code are required").
			Wrap(ErrValidation)
	}
	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.otp.Verify(ctx, userID, code); err != nil {
		return nil, err
	}
	if err := s.users.MarkVerified(ctx, userID, s.now().UTC()); err != nil {
		return nil, err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user verified", "user_id", user.ID)
	return s.session(user)
}

// Login checks the password. Unverified clients get a new OTP and a
// VerificationRequiredError instead of a session.
func (s *AuthService) Login(ctx context.Context, id models.Identifier, password string) (*LoginResult, error) {
	if id.Value == "" || password == "" {
		return nil, oops.Code("LOGIN_INVALID_INPUT").
			Public("Identifier and password are required").
			Wrap(ErrValidation)
	}

	user, err := s.lookup(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		s.hasher.CompareDummy(password)
		return nil, invalidCredentials(id)
	}
	if !s.hasher.Compare(user.PasswordHash, password) {
		return nil, invalidCredentials(id)
	}

	if user.Role == authz.RoleClient && !user.Verified {
		if _, err := s.otp.Issue(ctx, user, IssueReasonLogin); err != nil {
			return nil, err
		}
		return nil, &VerificationRequiredError{UserID: user.ID}
	}
	return s.session(user)
}

func (s *AuthService) lookup(ctx context.Context, id models.Identifier) (*models.User, error) {
	switch id.Kind {
	case models.IdentifierEmail:
		return s.users.GetByEmail(ctx, id.Value)
	case models.IdentifierPhone:
		return s.users.GetByWhatsAppNumber(ctx, id.Value)
	default:
		return s.users.GetByUsername(ctx, id.Value)
	}
}

func invalidCredentials(id models.Identifier) error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").
		With("identifier_kind", int(id.Kind)).
		Public("Invalid credentials").
		Wrap(ErrInvalidCredentials)
}

func (s *AuthService) session(user *models.User) (*LoginResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: user}, nil
}

// Authenticate resolves a bearer token to the current principal. The user
// must still exist; role and verified come from the store, not the token.
func (s *AuthService) Authenticate(ctx context.Context, bearer string) (authz.Principal, error) {
	claims, err := s.tokens.Parse(bearer)
	if err != nil {
		return authz.Principal{}, err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return authz.Principal{}, oops.Code("AUTH_USER_GONE").
				With("user_id", claims.UserID).
				Public("Invalid token").
				Wrap(ErrUnauthorized)
		}
		return authz.Principal{}, err
	}
	return user.Principal(), nil
}

// Authorize is a pure check of the principal against the requirement.
func (s *AuthService) Authorize(p authz.Principal, req authz.Requirement) error {
	if err := authz.Authorize(p, req); err != nil {
		return oops.Code("ACCESS_DENIED").
			With("user_id", p.UserID).
			With("role", p.Role).
			Public("Access denied").
			Wrap(err)
	}
	return nil
}

// Me returns the caller's user record.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.getUser(ctx, userID)
}

func (s *AuthService) getUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("USER_NOT_FOUND").
				With("user_id", userID).
				Public("User not found").
				Wrap(err)
		}
		return nil, err
	}
	return user, nil
}

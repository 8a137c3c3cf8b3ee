package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"pwanotify/internal/logging"
	"pwanotify/internal/metrics"
	"pwanotify/internal/models"
	"pwanotify/internal/repositories"
	"pwanotify/internal/utils"
)

// OTPSender delivers a code out of band.
type OTPSender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// Reasons a code is issued, used as a metric label.
const (
	IssueReasonRegister = "register"
	IssueReasonLogin    = "login"
	IssueReasonResend   = "resend"
)

type OTPConfig struct {
	TTL         time.Duration
	Length      int
	MaxAttempts int
	// Secret keys the HMAC under which codes are stored.
	Secret string
}

type OTPService struct {
	repo    repositories.OtpRepository
	sender  OTPSender
	limiter RateLimiter
	cfg     OTPConfig
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewOTPService(
	repo repositories.OtpRepository,
	sender OTPSender,
	limiter RateLimiter,
	cfg OTPConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
) *OTPService {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Length <= 0 {
		cfg.Length = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &OTPService{
		repo:    repo,
		sender:  sender,
		limiter: limiter,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

// WithClock replaces the time source, for tests.
func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	s.now = now
	return s
}

func (s *OTPService) clock() time.Time { return s.now().UTC() }

// CheckLimit reports ErrRateLimited when the user may not get another code yet.
func (s *OTPService) CheckLimit(ctx context.Context, userID string) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Allow(ctx, userID)
}

// hashCode is the stored form of a code: hex HMAC-SHA256 bound to the user.
// It is deterministic, so the repository can still match it in one UPDATE.
func (s *OTPService) hashCode(userID, code string) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
	mac.Write([]byte(userID))
	mac.Write([]byte{':'})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue invalidates the user's active codes, stores a hash of a fresh one
// and hands the plain code to the sender. Delivery is best-effort: the
// stored code stays valid when sending fails. The plain code is returned
// and never persisted.
func (s *OTPService) Issue(ctx context.Context, user *models.User, reason string) (string, error) {
	code, err := utils.GenerateNumericCode(s.cfg.Length)
	if err != nil {
		return "", oops.Code("OTP_GENERATE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	now := s.clock()

	// один активный код на пользователя
	if _, err := s.repo.InvalidateActive(ctx, user.ID, now); err != nil {
		return "", err
	}
	otp := &models.OtpCode{
		UserID:    user.ID,
		Code:      s.hashCode(user.ID, code),
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, otp); err != nil {
		return "", err
	}
	s.metrics.RecordOTPIssued(reason)

	if s.limiter != nil {
		if err := s.limiter.Record(ctx, user.ID); err != nil {
			logging.LogWarn(s.logger, "otp limiter record failed", err, "user_id", user.ID)
		}
	}

	if s.sender != nil {
		if phone := user.Phone(); phone != "" {
			if err := s.sender.SendOTP(ctx, phone, code); err != nil {
				logging.LogWarn(s.logger, "otp delivery failed", err, "user_id", user.ID, "reason", reason)
			}
		}
	}
	s.logger.InfoContext(ctx, "otp issued", "user_id", user.ID, "reason", reason, "expires_at", otp.ExpiresAt)
	return code, nil
}

// Verify consumes the matching code. A wrong guess counts against the
// user's active code, which is expired once MaxAttempts is reached.
func (s *OTPService) Verify(ctx context.Context, userID, code string) (*models.OtpCode, error) {
	now := s.clock()
	otp, err := s.repo.Consume(ctx, userID, s.hashCode(userID, code), now)
	if err == nil {
		s.metrics.RecordOTPVerification(metrics.ResultVerified)
		return otp, nil
	}
	if !errors.Is(err, ErrInvalidOTP) {
		return nil, err
	}

	s.metrics.RecordOTPVerification(metrics.ResultInvalid)
	active, lerr := s.repo.LatestActive(ctx, userID, now)
	if lerr != nil {
		if !errors.Is(lerr, ErrNotFound) {
			logging.LogWarn(s.logger, "otp attempt lookup failed", lerr, "user_id", userID)
		}
		return nil, invalidOTP(userID)
	}
	attempts, ierr := s.repo.IncrementAttempts(ctx, active.ID)
	if ierr != nil {
		logging.LogWarn(s.logger, "otp attempt count failed", ierr, "user_id", userID)
		return nil, invalidOTP(userID)
	}
	if attempts >= s.cfg.MaxAttempts {
		if eerr := s.repo.Expire(ctx, active.ID, now); eerr != nil {
			logging.LogWarn(s.logger, "otp expire failed", eerr, "user_id", userID)
		}
		s.metrics.RecordOTPVerification(metrics.ResultLocked)
		s.logger.WarnContext(ctx, "otp locked after too many attempts", "user_id", userID, "attempts", attempts)
	}
	return nil, invalidOTP(userID)
}

// Cleanup deletes codes that expired before the cutoff.
func (s *OTPService) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, before)
}

func invalidOTP(userID string) error {
	return oops.Code("OTP_INVALID").
		With("user_id", userID).
		Public("Invalid or expired OTP").
		Wrap(ErrInvalidOTP)
}

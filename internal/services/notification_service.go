package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"

	"pwanotify/internal/authz"
	"pwanotify/internal/logging"
	"pwanotify/internal/models"
	"pwanotify/internal/repositories"
)

// Publisher pushes a stored notification to live connections.
type Publisher interface {
	Publish(n *models.Notification) int
}

type NotificationInput struct {
	ClientID    string
	Title       string
	Message     string
	Type        string
	IconURL     *string
	TargetURL   *string
	ScheduledAt *time.Time
}

type NotificationResult struct {
	Notification *models.Notification
	Scheduled    bool
	Delivery     *DeliveryReport
}

type NotificationService struct {
	repo   repositories.NotificationRepository
	users  repositories.UserRepository
	push   *PushService
	hub    Publisher
	now    func() time.Time
	logger *slog.Logger
}

func NewNotificationService(
	repo repositories.NotificationRepository,
	users repositories.UserRepository,
	push *PushService,
	hub Publisher,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &NotificationService{repo: repo, users: users, push: push, hub: hub, now: time.Now, logger: logger}
}

func (s *NotificationService) WithClock(now func() time.Time) *NotificationService {
	s.now = now
	return s
}

func (in *NotificationInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	if in.Title == "" || in.Message == "" {
		return oops.Code("NOTIFICATION_INVALID").Public("Title and message are required").Wrap(ErrValidation)
	}
	if utf8.RuneCountInString(in.Title) > models.MaxTitleLength {
		return oops.Code("NOTIFICATION_INVALID").
			With("length", utf8.RuneCountInString(in.Title)).
			Public("Title must be at most 200 characters").
			Wrap(ErrValidation)
	}
	if in.Type == "" {
		in.Type = models.NotificationTypeInfo
	}
	in.IconURL = emptyToNil(in.IconURL)
	in.TargetURL = emptyToNil(in.TargetURL)
	return nil
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// Create stores a client's notification. Unscheduled (or already due)
// notifications are pushed right away to the client's own subscriptions and
// marked sent when at least one subscription existed.
func (s *NotificationService) Create(ctx context.Context, in NotificationInput) (*NotificationResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	n := &models.Notification{
		ClientID:    in.ClientID,
		Title:       in.Title,
		Message:     in.Message,
		Type:        in.Type,
		IconURL:     in.IconURL,
		TargetURL:   in.TargetURL,
		ScheduledAt: in.ScheduledAt,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	if n.ScheduledAt != nil && n.ScheduledAt.After(s.now()) {
		s.logger.InfoContext(ctx, "notification scheduled", "notification_id", n.ID, "scheduled_at", n.ScheduledAt)
		return &NotificationResult{Notification: n, Scheduled: true}, nil
	}

	// уже наступивший scheduled_at отмечаем отправленным, иначе его подхватит воркер
	report, err := s.dispatch(ctx, n, n.ScheduledAt != nil)
	if err != nil {
		return nil, err
	}
	return &NotificationResult{Notification: n, Delivery: &report}, nil
}

// AdminSend stores a notification for a client and delivers it immediately.
func (s *NotificationService) AdminSend(ctx context.Context, in NotificationInput) (*NotificationResult, error) {
	if strings.TrimSpace(in.ClientID) == "" {
		return nil, oops.Code("NOTIFICATION_INVALID").Public("Client ID, title and message are required").Wrap(ErrValidation)
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	client, err := s.users.GetByID(ctx, in.ClientID)
	if err != nil || client.Role != authz.RoleClient {
		if err == nil || errors.Is(err, ErrNotFound) {
			return nil, oops.Code("CLIENT_NOT_FOUND").With("client_id", in.ClientID).Public("Client not found").Wrap(ErrNotFound)
		}
		return nil, err
	}

	n := &models.Notification{
		ClientID:  client.ID,
		Title:     in.Title,
		Message:   in.Message,
		Type:      in.Type,
		IconURL:   in.IconURL,
		TargetURL: in.TargetURL,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	report, err := s.dispatch(ctx, n, true)
	if err != nil {
		return nil, err
	}
	return &NotificationResult{Notification: n, Delivery: &report}, nil
}

// dispatch pushes n and publishes it on the live stream. sent_at is set
// when forced or when the client had subscriptions.
func (s *NotificationService) dispatch(ctx context.Context, n *models.Notification, force bool) (DeliveryReport, error) {
	var report DeliveryReport
	if s.push != nil {
		r, err := s.push.SendToClient(ctx, n.ClientID, n.Payload())
		if err != nil {
			return report, err
		}
		report = r
	}
	if force || report.Attempted > 0 {
		at := s.now().UTC()
		if err := s.repo.MarkSent(ctx, n.ID, at); err != nil && !errors.Is(err, ErrNotFound) {
			return report, err
		}
		n.SentAt = &at
	}
	if s.hub != nil {
		s.hub.Publish(n)
	}
	s.logger.InfoContext(ctx, "notification dispatched",
		"notification_id", n.ID,
		"client_id", n.ClientID,
		"delivered", report.Delivered,
		"removed", report.Removed,
		"failed", report.Failed,
	)
	return report, nil
}

// DispatchDue sends scheduled notifications whose time has come.
func (s *NotificationService) DispatchDue(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ListDue(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, n := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if _, err := s.dispatch(ctx, n, true); err != nil {
			logging.LogError(s.logger, "scheduled dispatch failed", err, "notification_id", n.ID)
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *NotificationService) ListForClient(ctx context.Context, clientID string) ([]*models.Notification, error) {
	return s.repo.ListByClient(ctx, clientID)
}

func (s *NotificationService) ListAll(ctx context.Context) ([]*models.Notification, error) {
	return s.repo.ListAll(ctx)
}

// Get returns the notification to its owner or to an admin.
func (s *NotificationService) Get(ctx context.Context, p authz.Principal, id string) (*models.Notification, error) {
	n, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && n.ClientID != p.UserID {
		return nil, accessDenied(p, id)
	}
	return n, nil
}

// Delete removes a notification owned by the caller.
func (s *NotificationService) Delete(ctx context.Context, p authz.Principal, id string) error {
	n, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if n.ClientID != p.UserID {
		return accessDenied(p, id)
	}
	return s.repo.Delete(ctx, id)
}

func (s *NotificationService) find(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("NOTIFICATION_NOT_FOUND").With("notification_id", id).Public("Notification not found").Wrap(err)
		}
		return nil, err
	}
	return n, nil
}

func accessDenied(p authz.Principal, resourceID string) error {
	return oops.Code("ACCESS_DENIED").
		With("user_id", p.UserID).
		With("resource_id", resourceID).
		Public("Access denied").
		Wrap(ErrForbidden)
}

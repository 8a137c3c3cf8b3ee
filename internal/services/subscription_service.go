package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/samber/oops"

	"pwanotify/internal/authz"
	"pwanotify/internal/logging"
	"pwanotify/internal/models"
	"pwanotify/internal/repositories"
)

type SubscriptionService struct {
	repo     repositories.SubscriptionRepository
	vapidKey string
	logger   *slog.Logger
}

func NewSubscriptionService(repo repositories.SubscriptionRepository, vapidPublicKey string, logger *slog.Logger) *SubscriptionService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SubscriptionService{repo: repo, vapidKey: vapidPublicKey, logger: logger}
}

// VAPIDPublicKey is what the browser needs to subscribe.
func (s *SubscriptionService) VAPIDPublicKey() (string, error) {
	if s.vapidKey == "" {
		return "", oops.Code("VAPID_NOT_CONFIGURED").
			Public("VAPID public key not configured").
			Errorf("vapid public key is empty")
	}
	return s.vapidKey, nil
}

// Subscribe saves the browser subscription for clientID, replacing any
// existing row with the same endpoint.
func (s *SubscriptionService) Subscribe(ctx context.Context, clientID, endpoint, p256dh, auth string) (*models.Subscription, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || p256dh == "" || auth == "" {
		return nil, oops.Code("SUBSCRIPTION_INVALID").Public("Invalid subscription data").Wrap(ErrValidation)
	}
	if u, err := url.Parse(endpoint); err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return nil, oops.Code("SUBSCRIPTION_INVALID").
			With("endpoint", endpoint).
			Public("Invalid subscription endpoint").
			Wrap(ErrValidation)
	}
	sub := &models.Subscription{ClientID: clientID, Endpoint: endpoint, P256dhKey: p256dh, AuthKey: auth}
	if err := s.repo.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "subscription saved", "subscription_id", sub.ID, "client_id", clientID)
	return sub, nil
}

func (s *SubscriptionService) ListForClient(ctx context.Context, clientID string) ([]*models.Subscription, error) {
	return s.repo.ListByClient(ctx, clientID)
}

func (s *SubscriptionService) ListAll(ctx context.Context) ([]*models.Subscription, error) {
	return s.repo.ListAll(ctx)
}

// Delete removes a subscription owned by the caller.
func (s *SubscriptionService) Delete(ctx context.Context, p authz.Principal, id string) error {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SUBSCRIPTION_NOT_FOUND").With("subscription_id", id).Public("Subscription not found").Wrap(err)
		}
		return err
	}
	if sub.ClientID != p.UserID {
		return accessDenied(p, id)
	}
	return s.repo.Delete(ctx, id)
}

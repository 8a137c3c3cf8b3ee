package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"

	"pwanotify/internal/logging"
	"pwanotify/internal/metrics"
	"pwanotify/internal/models"
	"pwanotify/internal/repositories"
)

// ErrSubscriptionGone means the push service no longer knows the endpoint.
var ErrSubscriptionGone = errors.New("push subscription gone")

// PushSender delivers one encrypted payload to one subscription.
type PushSender interface {
	Send(ctx context.Context, sub *models.Subscription, payload []byte) error
}

type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	TTL        int
}

func (c VAPIDConfig) Configured() bool { return c.PublicKey != "" && c.PrivateKey != "" }

// WebPushSender signs requests with VAPID and posts them to the subscription endpoint.
type WebPushSender struct {
	cfg    VAPIDConfig
	client webpush.HTTPClient
}

func NewWebPushSender(cfg VAPIDConfig, client *http.Client) *WebPushSender {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * 60 * 24
	}
	return &WebPushSender{cfg: cfg, client: client}
}

func (w *WebPushSender) Send(ctx context.Context, sub *models.Subscription, payload []byte) error {
	if !w.cfg.Configured() {
		return oops.Code("VAPID_NOT_CONFIGURED").Errorf("vapid keys are not configured")
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload,
		&webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dhKey, Auth: sub.AuthKey},
		},
		&webpush.Options{
			HTTPClient:      w.client,
			Subscriber:      strings.TrimPrefix(w.cfg.Subject, "mailto:"),
			VAPIDPublicKey:  w.cfg.PublicKey,
			VAPIDPrivateKey: w.cfg.PrivateKey,
			TTL:             w.cfg.TTL,
		},
	)
	if err != nil {
		return oops.Code("PUSH_SEND_FAILED").With("endpoint", sub.Endpoint).Wrap(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return oops.Code("PUSH_SUBSCRIPTION_GONE").With("endpoint", sub.Endpoint).Wrap(ErrSubscriptionGone)
	case resp.StatusCode >= 400:
		return oops.Code("PUSH_REJECTED").
			With("endpoint", sub.Endpoint).
			With("status", resp.StatusCode).
			Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// DeliveryReport summarizes one fan-out.
type DeliveryReport struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

// PushService fans a payload out to all subscriptions of a client.
type PushService struct {
	subs        repositories.SubscriptionRepository
	sender      PushSender
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func NewPushService(subs repositories.SubscriptionRepository, sender PushSender, concurrency int, logger *slog.Logger, m *metrics.Metrics) *PushService {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &PushService{subs: subs, sender: sender, concurrency: concurrency, logger: logger, metrics: m}
}

// SendToClient delivers payload to every subscription of clientID. Endpoints
// the push service reports as gone are deleted. Individual failures are
// counted in the report, not returned.
func (s *PushService) SendToClient(ctx context.Context, clientID string, payload models.PushPayload) (DeliveryReport, error) {
	subs, err := s.subs.ListByClient(ctx, clientID)
	if err != nil {
		return DeliveryReport{}, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("encode push payload: %w", err)
	}

	var (
		mu     sync.Mutex
		report = DeliveryReport{Attempted: len(subs)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			err := s.sender.Send(gctx, sub, body)
			gone := errors.Is(err, ErrSubscriptionGone)
			switch {
			case err == nil:
				s.metrics.RecordPushDelivery(metrics.StatusSuccess)
			case gone:
				s.metrics.RecordPushDelivery(metrics.StatusGone)
				if derr := s.subs.DeleteByEndpoint(gctx, sub.Endpoint); derr != nil {
					logging.LogWarn(s.logger, "delete gone subscription failed", derr, "subscription_id", sub.ID)
				}
			default:
				s.metrics.RecordPushDelivery(metrics.StatusError)
				logging.LogWarn(s.logger, "push delivery failed", err, "subscription_id", sub.ID, "client_id", clientID)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Delivered++
			case gone:
				report.Removed++
			default:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	return report, nil
}

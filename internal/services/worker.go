package services

import (
	"context"
	"log/slog"
	"time"

	"pwanotify/internal/logging"
)

// MaintenanceWorker dispatches scheduled notifications and removes old OTP codes.
type MaintenanceWorker struct {
	notifications *NotificationService
	otp           *OTPService
	interval      time.Duration
	batchSize     int
	retention     time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

func NewMaintenanceWorker(
	notifications *NotificationService,
	otp *OTPService,
	interval time.Duration,
	batchSize int,
	retention time.Duration,
	logger *slog.Logger,
) *MaintenanceWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &MaintenanceWorker{
		notifications: notifications,
		otp:           otp,
		interval:      interval,
		batchSize:     batchSize,
		retention:     retention,
		now:           time.Now,
		logger:        logger.With("component", "maintenance"),
	}
}

// Run ticks until ctx is cancelled.
func (w *MaintenanceWorker) Run(ctx context.Context) error {
	w.logger.Info("maintenance worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("maintenance worker stopped")
			return nil
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one round. Errors are logged, never fatal.
func (w *MaintenanceWorker) RunOnce(ctx context.Context) {
	if w.notifications != nil {
		sent, err := w.notifications.DispatchDue(ctx, w.batchSize)
		if err != nil {
			logging.LogError(w.logger, "dispatch due notifications", err)
		} else if sent > 0 {
			w.logger.Info("scheduled notifications sent", "count", sent)
		}
	}
	if w.otp != nil && w.retention > 0 {
		n, err := w.otp.Cleanup(ctx, w.now().UTC().Add(-w.retention))
		if err != nil {
			logging.LogError(w.logger, "otp cleanup", err)
		} else if n > 0 {
			w.logger.Info("expired otp codes removed", "count", n)
		}
	}
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"pwanotify/internal/config"
	"pwanotify/internal/handlers"
	"pwanotify/internal/logging"
	"pwanotify/internal/metrics"
	"pwanotify/internal/middleware"
	"pwanotify/internal/realtime"
	"pwanotify/internal/repositories"
	"pwanotify/internal/routes"
	"pwanotify/internal/services"
	"pwanotify/internal/utils"
)

type Option func(*App)

// WithOTPSender replaces the WhatsApp client.
func WithOTPSender(s services.OTPSender) Option { return func(a *App) { a.otpSender = s } }

// WithPushSender replaces the Web Push sender.
func WithPushSender(s services.PushSender) Option { return func(a *App) { a.pushSender = s } }

func WithLogger(l *slog.Logger) Option { return func(a *App) { a.logger = l } }

// App wires configuration, storage, services and the HTTP router.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	db       *sql.DB
	redis    *redis.Client

	otpSender  services.OTPSender
	pushSender services.PushSender

	Store         *repositories.Store
	Hub           *realtime.NotificationHub
	Auth          *services.AuthService
	Users         *services.UserService
	Notifications *services.NotificationService
	Worker        *services.MaintenanceWorker

	router *gin.Engine
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, registry: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.New(cfg.Log.Format, cfg.Log.Level, nil)
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	a.wire()
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.cfg.Database.Driver {
	case "memory":
		a.logger.Warn("using in-memory storage; data is lost on restart")
		a.Store = repositories.NewMemoryStore()
		return nil
	case "postgres":
		db, err := OpenDB(ctx, a.cfg.Database.DSN, a.logger)
		if err != nil {
			return err
		}
		if a.cfg.Database.AutoMigrate {
			if err := repositories.RunMigrations(ctx, db); err != nil {
				_ = db.Close()
				return err
			}
		}
		a.db = db
		a.Store = repositories.NewPostgresStore(db)
		return nil
	}
	return fmt.Errorf("unknown database driver %q", a.cfg.Database.Driver)
}

// OpenDB connects to PostgreSQL, retrying the first ping while the database starts.
func OpenDB(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").Wrap(err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			logging.LogWarn(logger, "database not ready", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, oops.Code("DB_UNREACHABLE").Wrap(err)
	}
	return db, nil
}

func (a *App) rateLimiter() services.RateLimiter {
	otp := a.cfg.OTP
	if a.cfg.RateLimit.Backend == "redis" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		return services.NewRedisRateLimiter(a.redis, otp.ResendLimit, otp.ResendWindow)
	}
	return services.NewStoreRateLimiter(a.Store.OTPs, otp.ResendLimit, otp.ResendWindow)
}

func (a *App) wire() {
	cfg := a.cfg
	if a.otpSender == nil {
		a.otpSender = utils.NewWhatsAppClient(utils.WhatsAppOptions{
			APIURL:        cfg.WhatsApp.APIURL,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			AccessToken:   cfg.WhatsApp.AccessToken,
			DryRun:        cfg.WhatsApp.DryRun,
			Timeout:       cfg.WhatsApp.Timeout,
			MaxRetries:    cfg.WhatsApp.MaxRetries,
			CodeTTL:       cfg.OTP.TTL,
		}, a.logger, a.metrics)
	}
	vapid := services.VAPIDConfig{
		PublicKey:  cfg.VAPID.PublicKey,
		PrivateKey: cfg.VAPID.PrivateKey,
		Subject:    cfg.VAPID.Subject,
		TTL:        cfg.VAPID.TTL,
	}
	if a.pushSender == nil {
		if !vapid.Configured() {
			a.logger.Warn("vapid keys are not configured; web push deliveries will fail")
		}
		a.pushSender = services.NewWebPushSender(vapid, &http.Client{Timeout: 15 * time.Second})
	}

	var email services.EmailService
	if cfg.Email.Enabled() {
		email = services.NewEmailService(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser, cfg.Email.SMTPPassword, cfg.Email.FromEmail)
	}

	hasher := services.NewBcryptHasher(cfg.Auth.BcryptCost)
	tokens := utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	otpSecret := cfg.OTP.Secret
	if otpSecret == "" {
		otpSecret = cfg.Auth.JWTSecret
	}
	otp := services.NewOTPService(a.Store.OTPs, a.otpSender, a.rateLimiter(), services.OTPConfig{
		TTL:         cfg.OTP.TTL,
		Length:      cfg.OTP.Length,
		MaxAttempts: cfg.OTP.MaxAttempts,
		Secret:      otpSecret,
	}, a.logger, a.metrics)

	a.Hub = realtime.NewNotificationHub()
	a.Auth = services.NewAuthService(a.Store.Users, otp, hasher, tokens, email,
		services.AuthConfig{AllowAdminSignup: cfg.Auth.AllowAdminSignup}, a.logger, a.metrics)
	a.Users = services.NewUserService(a.Store.Users, hasher, email, a.logger)
	push := services.NewPushService(a.Store.Subscriptions, a.pushSender, cfg.Push.Concurrency, a.logger, a.metrics)
	a.Notifications = services.NewNotificationService(a.Store.Notifications, a.Store.Users, push, a.Hub, a.logger)
	subs := services.NewSubscriptionService(a.Store.Subscriptions, vapid.PublicKey, a.logger)
	dashboard := services.NewDashboardService(a.Store.Users, a.Store.Subscriptions, a.Store.Notifications)
	a.Worker = services.NewMaintenanceWorker(a.Notifications, otp, cfg.Worker.Interval, cfg.Worker.BatchSize, cfg.Worker.OTPRetention, a.logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.RequestLogger(a.logger))

	routes.SetupRoutes(r, middleware.NewGuard(a.Auth), routes.Handlers{
		Auth:          handlers.NewAuthHandler(a.Auth),
		Verify:        handlers.NewVerifyHandler(a.Auth),
		Users:         handlers.NewUserHandler(a.Users),
		Subscriptions: handlers.NewSubscriptionHandler(subs),
		Notifications: handlers.NewNotificationHandler(a.Notifications, a.Hub),
		Dashboard:     handlers.NewDashboardHandler(dashboard),
	}, a.registry)
	a.router = r
}

func (a *App) Router() http.Handler { return a.router }

func (a *App) Logger() *slog.Logger { return a.logger }

// Run serves HTTP and, when enabled, the maintenance worker until ctx is
// cancelled, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server started", "addr", srv.Addr, "driver", a.cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
		return nil
	})
	if a.cfg.Worker.Enabled {
		g.Go(func() error { return a.Worker.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

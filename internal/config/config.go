package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Port            int           `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"url"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	AllowAdminSignup bool          `yaml:"allow_admin_signup"`
	BcryptCost       int           `yaml:"bcrypt_cost"`
}

type OTPConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	Length       int           `yaml:"length"`
	MaxAttempts  int           `yaml:"max_attempts"`
	ResendLimit  int           `yaml:"resend_limit"`
	ResendWindow time.Duration `yaml:"resend_window"`
	// Secret keys stored code hashes; auth.jwt_secret is used when empty.
	Secret string `yaml:"secret"`
}

type WhatsAppConfig struct {
	APIURL        string        `yaml:"api_url"`
	PhoneNumberID string        `yaml:"phone_number_id"`
	AccessToken   string        `yaml:"access_token"`
	DryRun        bool          `yaml:"dry_run"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    uint64        `yaml:"max_retries"`
}

type VAPIDConfig struct {
	PublicKey  string `yaml:"public_key"`
	PrivateKey string `yaml:"private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
}

// Enabled is false when no SMTP host is configured.
func (e EmailConfig) Enabled() bool { return e.SMTPHost != "" }

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RateLimitConfig struct {
	// Backend is "store" (count OTP rows) or "redis".
	Backend string `yaml:"backend"`
}

type WorkerConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`

	// OTPRetention is how long expired codes are kept; it must cover otp.resend_window.
	OTPRetention time.Duration `yaml:"otp_retention"`
}

type PushConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	OTP       OTPConfig       `yaml:"otp"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	VAPID     VAPIDConfig     `yaml:"vapid"`
	Email     EmailConfig     `yaml:"email"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Worker    WorkerConfig    `yaml:"worker"`
	Push      PushConfig      `yaml:"push"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns a config usable for local development with the memory driver.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			CORSOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Driver: "postgres", AutoMigrate: true},
		Auth: AuthConfig{
			TokenTTL:   7 * 24 * time.Hour,
			BcryptCost: 10,
		},
		OTP: OTPConfig{
			TTL:          10 * time.Minute,
			Length:       6,
			MaxAttempts:  5,
			ResendLimit:  3,
			ResendWindow: 10 * time.Minute,
		},
		WhatsApp: WhatsAppConfig{
			APIURL:     "https://graph.facebook.com/v19.0",
			DryRun:     true,
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		VAPID:     VAPIDConfig{Subject: "mailto:admin@example.com", TTL: 60 * 60 * 24},
		Email:     EmailConfig{SMTPPort: 587},
		Redis:     RedisConfig{Addr: "localhost:6379"},
		RateLimit: RateLimitConfig{Backend: "store"},
		Worker:    WorkerConfig{Enabled: true, Interval: 30 * time.Second, BatchSize: 100, OTPRetention: 24 * time.Hour},
		Push:      PushConfig{Concurrency: 8},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig reads the YAML file at path on top of Default and applies
// environment overrides. A missing file is not an error when path is the
// default location.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	str := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str(&cfg.Database.DSN, "DATABASE_URL")
	str(&cfg.Database.Driver, "DATABASE_DRIVER")
	str(&cfg.Auth.JWTSecret, "JWT_SECRET")
	str(&cfg.OTP.Secret, "OTP_SECRET")
	str(&cfg.VAPID.PublicKey, "VAPID_PUBLIC_KEY")
	str(&cfg.VAPID.PrivateKey, "VAPID_PRIVATE_KEY")
	str(&cfg.VAPID.Subject, "VAPID_SUBJECT")
	str(&cfg.WhatsApp.APIURL, "WHATSAPP_API_URL")
	str(&cfg.WhatsApp.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
	str(&cfg.WhatsApp.AccessToken, "WHATSAPP_ACCESS_TOKEN")
	str(&cfg.Redis.Addr, "REDIS_ADDR")
	if v := os.Getenv("WHATSAPP_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.WhatsApp.DryRun = b
		}
	}
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	switch c.RateLimit.Backend {
	case "store", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend))
	}
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		errs = append(errs, fmt.Errorf("otp.length must be between 4 and 10, got %d", c.OTP.Length))
	}
	if c.OTP.TTL <= 0 {
		errs = append(errs, errors.New("otp.ttl must be positive"))
	}
	if c.Worker.OTPRetention < c.OTP.ResendWindow {
		errs = append(errs, errors.New("worker.otp_retention must not be shorter than otp.resend_window"))
	}
	if !c.WhatsApp.DryRun && (c.WhatsApp.PhoneNumberID == "" || c.WhatsApp.AccessToken == "") {
		errs = append(errs, errors.New("whatsapp.phone_number_id and whatsapp.access_token are required unless dry_run"))
	}
	return errors.Join(errs...)
}

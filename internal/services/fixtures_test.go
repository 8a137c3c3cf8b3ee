package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pwanotify/internal/models"
	"pwanotify/internal/repositories"
	"pwanotify/internal/utils"
)

type capturedOTP struct {
	phone string
	code  string
}

// fakeOTPSender records every code instead of calling WhatsApp.
type fakeOTPSender struct {
	mu   sync.Mutex
	sent []capturedOTP
	err  error
}

func (f *fakeOTPSender) SendOTP(_ context.Context, phone, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, capturedOTP{phone: phone, code: code})
	return f.err
}

func (f *fakeOTPSender) last(t *testing.T) capturedOTP {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no otp sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeOTPSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakePushSender answers per endpoint.
type fakePushSender struct {
	mu       sync.Mutex
	results  map[string]error
	payloads [][]byte
}

func (f *fakePushSender) Send(_ context.Context, sub *models.Subscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.results[sub.Endpoint]
}

func (f *fakePushSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeEmail) SendWelcomeEmail(email, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, email)
	return nil
}

type authFixture struct {
	store  *repositories.Store
	sender *fakeOTPSender
	email  *fakeEmail
	otp    *OTPService
	auth   *AuthService
	users  *UserService
	tokens *utils.TokenIssuer
}

func newAuthFixture(t *testing.T, cfg AuthConfig) *authFixture {
	t.Helper()
	store := repositories.NewMemoryStore()
	sender := &fakeOTPSender{}
	email := &fakeEmail{}
	hasher := NewBcryptHasher(bcrypt.MinCost)
	limiter := NewStoreRateLimiter(store.OTPs, 3, 10*time.Minute)
	otp := NewOTPService(store.OTPs, sender, limiter, OTPConfig{TTL: 10 * time.Minute, Length: 6, MaxAttempts: 5}, nil, nil)
	tokens := utils.NewTokenIssuer("test-secret", time.Hour)
	return &authFixture{
		store:  store,
		sender: sender,
		email:  email,
		otp:    otp,
		auth:   NewAuthService(store.Users, otp, hasher, tokens, email, cfg, nil, nil),
		users:  NewUserService(store.Users, hasher, email, nil),
		tokens: tokens,
	}
}

func (f *authFixture) registerClient(t *testing.T, phone, password string) string {
	t.Helper()
	id, err := f.auth.Register(context.Background(), models.ClientRegistration{WhatsAppNumber: phone, Secret: password})
	if err != nil {
		t.Fatalf("register client: %v", err)
	}
	return id
}

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pwanotify/internal/authz"
	"pwanotify/internal/config"
	"pwanotify/internal/logging"
	"pwanotify/internal/models"
	"pwanotify/internal/utils"
)

type codeCatcher struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeCatcher) SendOTP(_ context.Context, phone, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[phone] = code
	return nil
}

func (c *codeCatcher) code(phone string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[phone]
}

type pushRecorder struct {
	mu   sync.Mutex
	sent []string
}

func (p *pushRecorder) Send(_ context.Context, sub *models.Subscription, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sub.Endpoint)
	return nil
}

type testServer struct {
	t      *testing.T
	h      http.Handler
	app    *App
	otp    *codeCatcher
	pushes *pushRecorder
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Database.Driver = "memory"
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = 4
	cfg.VAPID.PublicKey = "BTestPublicKey"
	for _, m := range mutate {
		m(cfg)
	}
	otp := &codeCatcher{codes: map[string]string{}}
	pushes := &pushRecorder{}
	a, err := New(context.Background(), cfg, WithOTPSender(otp), WithPushSender(pushes), WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return &testServer{t: t, h: a.Router(), app: a, otp: otp, pushes: pushes}
}

func (s *testServer) do(method, path, token string, body any) (int, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

// verifiedClient registers and verifies a client, returning its id and token.
func (s *testServer) verifiedClient(phone, password string) (string, string) {
	s.t.Helper()
	status, body := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"handle": phone, "password": password, "role": "client"})
	require.Equal(s.t, http.StatusCreated, status, body)
	id := body["userId"].(string)
	status, body = s.do(http.MethodPost, "/api/auth/verify-otp", "", gin.H{"userId": id, "otpCode": s.otp.code(phone)})
	require.Equal(s.t, http.StatusOK, status, body)
	return id, body["token"].(string)
}

func (s *testServer) adminToken() string {
	s.t.Helper()
	_, err := s.app.Users.CreateAdmin(context.Background(), models.AdminRegistration{Username: "root", Email: "root@example.com", Secret: "s3cret"})
	require.NoError(s.t, err)
	status, body := s.do(http.MethodPost, "/api/auth/login", "", gin.H{"identifier": "root", "password": "s3cret"})
	require.Equal(s.t, http.StatusOK, status, body)
	return body["token"].(string)
}

func TestClientSignupScenario(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"handle": "62811111111", "password": "p@ss1", "role": "client"})
	require.Equal(t, http.StatusCreated, status, body)
	id, ok := body["userId"].(string)
	require.True(t, ok)
	code := s.otp.code("62811111111")
	require.Len(t, code, 6)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	status, body = s.do(http.MethodPost, "/api/auth/verify-otp", "", gin.H{"userId": id, "otpCode": wrong})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid or expired OTP", body["message"])

	status, body = s.do(http.MethodPost, "/api/auth/verify-otp", "", gin.H{"userId": id, "otpCode": code})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, true, user["verified"])
	assert.Equal(t, "client", user["role"])
	assert.NotContains(t, user, "password_hash")

	status, body = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"identifier": "62811111111", "password": "p@ss1"})
	require.Equal(t, http.StatusOK, status, body)
	token := body["token"].(string)

	status, wrongBody := s.do(http.MethodPost, "/api/auth/login", "", gin.H{"identifier": "62811111111", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	_, unknownBody := s.do(http.MethodPost, "/api/auth/login", "", gin.H{"identifier": "62800000000", "password": "nope"})
	assert.Equal(t, "Invalid credentials", wrongBody["message"])
	assert.Equal(t, wrongBody, unknownBody, "no hint which field was wrong")

	status, body = s.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, body["user"].(map[string]any)["id"])
}

func TestUnverifiedLoginRequiresVerification(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"whatsapp_number": "62811111111", "password": "p@ss1"})
	require.Equal(t, http.StatusCreated, status)
	id := body["userId"]

	status, body = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"whatsapp_number": "62811111111", "password": "p@ss1"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, id, body["userId"])
	assert.Equal(t, true, body["requiresVerification"])
	assert.NotContains(t, body, "token")

	// код из повторной выдачи подтверждает аккаунт
	status, body = s.do(http.MethodPost, "/api/auth/verify-otp", "", gin.H{"userId": id, "otpCode": s.otp.code("62811111111")})
	assert.Equal(t, http.StatusOK, status, body)
}

func TestRegisterErrors(t *testing.T) {
	s := newTestServer(t)
	s.verifiedClient("62811111111", "p@ss1")

	tests := []struct {
		name   string
		body   gin.H
		status int
	}{
		{"missing password", gin.H{"handle": "62822222222"}, http.StatusBadRequest},
		{"bad phone", gin.H{"handle": "abc", "password": "x"}, http.StatusBadRequest},
		{"bad role", gin.H{"handle": "62822222222", "password": "x", "role": "root"}, http.StatusBadRequest},
		{"duplicate", gin.H{"handle": "62811111111", "password": "x"}, http.StatusConflict},
		{"admin disabled", gin.H{"role": "admin", "username": "a", "email": "a@example.com", "password": "x"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, tt.status, status, body)
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestResendOTP(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"handle": "62811111111", "password": "p@ss1"})
	require.Equal(t, http.StatusCreated, status)
	id := body["userId"]

	// регистрация уже выдала один код
	for i := 0; i < 2; i++ {
		status, body = s.do(http.MethodPost, "/api/auth/resend-otp", "", gin.H{"userId": id})
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, id, body["userId"])
	}
	status, _ = s.do(http.MethodPost, "/api/auth/resend-otp", "", gin.H{"userId": id})
	assert.Equal(t, http.StatusTooManyRequests, status)

	status, _ = s.do(http.MethodPost, "/api/auth/resend-otp", "", gin.H{"userId": "6f1c8a55-0000-4000-8000-000000000000"})
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(http.MethodPost, "/api/auth/resend-otp", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Authentication required", body["message"])

	status, _ = s.do(http.MethodGet, "/api/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestNotificationFlow(t *testing.T) {
	s := newTestServer(t)
	clientID, token := s.verifiedClient("62811111111", "p@ss1")
	admin := s.adminToken()

	status, body := s.do(http.MethodGet, "/api/subscriptions/vapid-public-key", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "BTestPublicKey", body["vapidPublicKey"])

	status, body = s.do(http.MethodPost, "/api/subscriptions", token, gin.H{
		"endpoint": "https://push.example.com/abc",
		"keys":     gin.H{"p256dh": "key", "auth": "secret"},
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "Subscription saved successfully", body["message"])

	status, body = s.do(http.MethodPost, "/api/notifications", token, gin.H{"title": "Hello", "message": "World"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "Notification sent successfully", body["message"])
	note := body["notification"].(map[string]any)
	assert.NotNil(t, note["sent_at"])
	noteID := note["id"].(string)
	assert.Equal(t, []string{"https://push.example.com/abc"}, s.pushes.sent)

	status, body = s.do(http.MethodPost, "/api/notifications", token, gin.H{"title": "Later", "message": "m", "scheduled_at": "2099-01-01T00:00:00Z"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Notification scheduled successfully", body["message"])

	status, _ = s.do(http.MethodPost, "/api/notifications", token, gin.H{"title": ""})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(http.MethodGet, "/api/notifications", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["notifications"], 2)

	status, _ = s.do(http.MethodGet, "/api/notifications/"+noteID, admin, nil)
	assert.Equal(t, http.StatusOK, status)

	_, otherToken := s.verifiedClient("62822222222", "p@ss2")
	status, _ = s.do(http.MethodGet, "/api/notifications/"+noteID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(http.MethodDelete, "/api/notifications/"+noteID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(http.MethodDelete, "/api/notifications/"+noteID, token, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(http.MethodGet, "/api/notifications/"+noteID, token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.do(http.MethodPost, "/api/notifications/admin/send", admin, gin.H{"client_id": clientID, "title": "Promo", "message": "m", "type": "promo"})
	require.Equal(t, http.StatusCreated, status, body)
	status, _ = s.do(http.MethodPost, "/api/notifications/admin/send", admin, gin.H{"client_id": "6f1c8a55-0000-4000-8000-000000000000", "title": "t", "message": "m"})
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(http.MethodPost, "/api/notifications/admin/send", token, gin.H{"client_id": clientID, "title": "t", "message": "m"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(http.MethodGet, "/api/notifications/admin/all", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["notifications"], 2)

	status, body = s.do(http.MethodGet, "/api/admin/dashboard", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["totalClients"])
	assert.Equal(t, float64(1), body["subscriptions"])

	status, body = s.do(http.MethodGet, "/api/subscriptions/admin/all", admin, nil)
	require.Equal(t, http.StatusOK, status)
	subs := body["subscriptions"].([]any)
	require.Len(t, subs, 1)
	subID := subs[0].(map[string]any)["id"].(string)

	status, _ = s.do(http.MethodDelete, "/api/subscriptions/"+subID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(http.MethodDelete, "/api/subscriptions/"+subID, token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestUnverifiedClientCannotUseClientRoutes(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"handle": "62811111111", "password": "p@ss1"})
	require.Equal(t, http.StatusCreated, status)
	token, err := utils.NewTokenIssuer("test-secret", time.Hour).Issue(body["userId"].(string), authz.RoleClient)
	require.NoError(t, err)

	status, body = s.do(http.MethodGet, "/api/notifications", token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Account not verified. Please verify your WhatsApp number.", body["message"])

	status, _ = s.do(http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAdminUserManagement(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()

	status, body := s.do(http.MethodPost, "/api/users", admin, gin.H{"whatsapp_number": "62833333333", "password": "pw"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "User created successfully", body["message"])
	user := body["user"].(map[string]any)
	assert.Equal(t, true, user["verified"])
	id := user["id"].(string)

	status, _ = s.do(http.MethodPost, "/api/users", admin, gin.H{"whatsapp_number": "62833333333", "password": "pw"})
	assert.Equal(t, http.StatusConflict, status)
	status, _ = s.do(http.MethodPost, "/api/users", admin, gin.H{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(http.MethodPut, "/api/users/"+id, admin, gin.H{"verified": false})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["user"].(map[string]any)["verified"])

	status, body = s.do(http.MethodGet, "/api/users", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["users"], 1)

	status, _ = s.do(http.MethodDelete, "/api/users/"+id, admin, nil)
	assert.Equal(t, http.StatusOK, status)
	status, body = s.do(http.MethodGet, "/api/users/"+id, admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User not found", body["message"])

	status, _ = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"identifier": "62833333333", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestOpsEndpoints(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pwanotify_http_requests_total")
}

func TestAdminSignupWhenEnabled(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Auth.AllowAdminSignup = true })
	status, body := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"role": "admin_master", "username": "boss", "email": "boss@example.com", "password": "pw"})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "boss@example.com", "password": "pw"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "admin", body["user"].(map[string]any)["role"])
}

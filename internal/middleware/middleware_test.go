package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pwanotify/internal/authz"
	"pwanotify/internal/common"
	"pwanotify/internal/logging"
	"pwanotify/internal/metrics"
)

type mockAuth struct{ mock.Mock }

func (m *mockAuth) Authenticate(ctx context.Context, bearer string) (authz.Principal, error) {
	args := m.Called(ctx, bearer)
	return args.Get(0).(authz.Principal), args.Error(1)
}

func (m *mockAuth) Authorize(p authz.Principal, req authz.Requirement) error {
	return authz.Authorize(p, req)
}

func init() { gin.SetMode(gin.TestMode) }

func newRouter(g *Guard, guards ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{g.Authenticate()}, guards...)
	handlers = append(handlers, func(c *gin.Context) {
		p, _ := Principal(c)
		c.JSON(http.StatusOK, gin.H{"userId": p.UserID})
	})
	r.GET("/x", handlers...)
	return r
}

func do(r http.Handler, token string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestAuthenticate(t *testing.T) {
	auth := &mockAuth{}
	auth.On("Authenticate", mock.Anything, "good").Return(authz.Principal{UserID: "u1", Role: authz.RoleClient}, nil)
	auth.On("Authenticate", mock.Anything, "bad").Return(authz.Principal{}, common.ErrInvalidToken)
	r := newRouter(NewGuard(auth))

	w, body := do(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authentication required", body["message"])

	w, body = do(r, "bad")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token", body["message"])

	w, body = do(r, "good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", body["userId"])
	auth.AssertExpectations(t)
}

func TestAuthenticateStoreFailure(t *testing.T) {
	auth := &mockAuth{}
	auth.On("Authenticate", mock.Anything, "abc").Return(authz.Principal{}, errors.New("dial tcp: connection refused"))
	r := newRouter(NewGuard(auth))

	w, body := do(r, "abc")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server error", body["message"])
}

func TestRequireGuards(t *testing.T) {
	auth := &mockAuth{}
	auth.On("Authenticate", mock.Anything, "client").Return(authz.Principal{UserID: "c", Role: authz.RoleClient}, nil)
	auth.On("Authenticate", mock.Anything, "verified").Return(authz.Principal{UserID: "v", Role: authz.RoleClient, Verified: true}, nil)
	auth.On("Authenticate", mock.Anything, "admin").Return(authz.Principal{UserID: "a", Role: authz.RoleAdmin, Verified: true}, nil)
	g := NewGuard(auth)

	admin := newRouter(g, g.RequireRoles(authz.RoleAdmin))
	client := newRouter(g, g.RequireVerifiedClient())

	tests := []struct {
		name    string
		router  http.Handler
		token   string
		status  int
		message string
	}{
		{"client on admin route", admin, "verified", http.StatusForbidden, "Access denied. Admin privileges required."},
		{"admin on admin route", admin, "admin", http.StatusOK, ""},
		{"unverified client", client, "client", http.StatusForbidden, "Account not verified. Please verify your WhatsApp number."},
		{"admin on client route", client, "admin", http.StatusForbidden, "Access denied. Client privileges required."},
		{"verified client", client, "verified", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(tt.router, tt.token)
			assert.Equal(t, tt.status, w.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsAndLogger(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := gin.New()
	r.Use(Metrics(metrics.New(reg)), RequestLogger(logging.Discard()))
	r.GET("/x/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x/1", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	count, err := testutil.GatherAndCount(reg, "pwanotify_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

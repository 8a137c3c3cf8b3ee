package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"pwanotify/internal/authz"
	"pwanotify/internal/common"
)

const principalKey = "principal"

// Authenticator resolves bearer tokens and checks principals.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (authz.Principal, error)
	Authorize(p authz.Principal, req authz.Requirement) error
}

// Guard builds the auth middlewares on top of an Authenticator.
type Guard struct {
	auth Authenticator
}

func NewGuard(auth Authenticator) *Guard {
	return &Guard{auth: auth}
}

// bearerToken достаёт токен из "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Authenticate rejects requests without a valid bearer token and stores the
// principal in the gin context.
func (g *Guard) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		tok := bearerToken(c)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authentication required"})
			return
		}
		p, err := g.auth.Authenticate(c.Request.Context(), tok)
		if err != nil {
			_ = c.Error(err)
			// сбой хранилища не должен разлогинивать клиента
			if !errors.Is(err, common.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": oops.GetPublic(err, "Invalid token")})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// Principal returns the caller set by Authenticate.
func Principal(c *gin.Context) (authz.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return authz.Principal{}, false
	}
	p, ok := v.(authz.Principal)
	return p, ok
}

// SetPrincipal is used by tests and by handlers mounted without Authenticate.
func SetPrincipal(c *gin.Context, p authz.Principal) {
	c.Set(principalKey, p)
}

package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pwanotify/internal/authz"
)

// Require aborts with 403 unless the principal satisfies req.
func (g *Guard) Require(req authz.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := Principal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authentication required"})
			return
		}
		if err := g.auth.Authorize(p, req); err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": deniedMessage(req, err)})
			return
		}
		c.Next()
	}
}

func (g *Guard) RequireRoles(roles ...authz.Role) gin.HandlerFunc {
	return g.Require(authz.Requirement{Roles: roles})
}

// RequireVerifiedClient is the guard for the client self-service routes.
func (g *Guard) RequireVerifiedClient() gin.HandlerFunc {
	return g.Require(authz.Requirement{Roles: []authz.Role{authz.RoleClient}, Verified: true})
}

func deniedMessage(req authz.Requirement, err error) string {
	if errors.Is(err, authz.ErrNotVerified) {
		return "Account not verified. Please verify your WhatsApp number."
	}
	if len(req.Roles) == 1 {
		switch req.Roles[0] {
		case authz.RoleAdmin:
			return "Access denied. Admin privileges required."
		case authz.RoleClient:
			return "Access denied. Client privileges required."
		}
	}
	return "Access denied"
}

package authz

import (
	"fmt"
	"strings"

	"pwanotify/internal/common"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// ErrNotVerified is a forbidden kind returned when a verified account is required.
var ErrNotVerified = fmt.Errorf("account not verified: %w", common.ErrForbidden)

// ParseRole accepts the wire names used by the frontend. An empty role means client.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "client":
		return RoleClient, true
	case "admin", "admin_master":
		return RoleAdmin, true
	}
	return "", false
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleClient
}

func (r Role) String() string { return string(r) }

// Principal is what downstream checks know about the caller after the bearer
// token has been verified.
type Principal struct {
	UserID   string `json:"userId"`
	Role     Role   `json:"role"`
	Verified bool   `json:"verified"`
}

func (p Principal) IsAdmin() bool  { return p.Role == RoleAdmin }
func (p Principal) IsClient() bool { return p.Role == RoleClient }

// Requirement describes what a route needs from the caller. Empty Roles
// accepts any role.
type Requirement struct {
	Roles    []Role
	Verified bool
}

// Authorize is a pure predicate over a principal.
func Authorize(p Principal, req Requirement) error {
	if len(req.Roles) > 0 {
		allowed := false
		for _, r := range req.Roles {
			if p.Role == r {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("role %q not allowed: %w", p.Role, common.ErrForbidden)
		}
	}
	if req.Verified && !p.Verified {
		return ErrNotVerified
	}
	return nil
}

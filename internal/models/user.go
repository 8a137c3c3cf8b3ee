package models

import (
	"time"

	"pwanotify/internal/authz"
)

type User struct {
	ID             string     `json:"id"`
	Role           authz.Role `json:"role"`
	Username       *string    `json:"username,omitempty"`
	Email          *string    `json:"email,omitempty"`
	WhatsAppNumber *string    `json:"whatsapp_number,omitempty"`
	PasswordHash   string     `json:"-"` // не отдаём наружу
	Verified       bool       `json:"verified"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (u *User) Principal() authz.Principal {
	return authz.Principal{UserID: u.ID, Role: u.Role, Verified: u.Verified}
}

// Phone returns the WhatsApp number or "" for users without one.
func (u *User) Phone() string {
	if u.WhatsAppNumber == nil {
		return ""
	}
	return *u.WhatsAppNumber
}

// Handle is the identifier the user logs in with.
func (u *User) Handle() string {
	switch {
	case u.WhatsAppNumber != nil:
		return *u.WhatsAppNumber
	case u.Username != nil:
		return *u.Username
	case u.Email != nil:
		return *u.Email
	}
	return ""
}

// Clone returns a copy that shares no pointers with u.
func (u *User) Clone() *User {
	cp := *u
	cp.Username = cloneString(u.Username)
	cp.Email = cloneString(u.Email)
	cp.WhatsAppNumber = cloneString(u.WhatsAppNumber)
	if u.VerifiedAt != nil {
		t := *u.VerifiedAt
		cp.VerifiedAt = &t
	}
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

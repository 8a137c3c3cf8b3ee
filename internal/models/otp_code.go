package models

import "time"

// OtpCode: отдельная запись на каждую выдачу кода.
type OtpCode struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Code      string     `json:"-"` // hex HMAC, never the plain code
	ExpiresAt time.Time  `json:"expires_at"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	Attempts  int        `json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsActive reports whether the code can still be consumed at now.
func (o *OtpCode) IsActive(now time.Time) bool {
	return !o.Used && o.ExpiresAt.After(now)
}

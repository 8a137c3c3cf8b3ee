package models

import "time"

// Subscription is a browser push subscription owned by a client.
type Subscription struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dh_key"`
	AuthKey   string    `json:"auth_key"`
	CreatedAt time.Time `json:"created_at"`
}

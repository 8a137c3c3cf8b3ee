package models

import "time"

const (
	NotificationTypeInfo = "info"
	MaxTitleLength       = 200
)

type Notification struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"client_id"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Type        string     `json:"type"`
	IconURL     *string    `json:"icon_url"`
	TargetURL   *string    `json:"target_url"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsDue reports whether a scheduled, unsent notification should go out at now.
func (n *Notification) IsDue(now time.Time) bool {
	return n.SentAt == nil && n.ScheduledAt != nil && !n.ScheduledAt.After(now)
}

// PushPayload is the JSON document delivered to the service worker.
type PushPayload struct {
	Title          string `json:"title"`
	Message        string `json:"message"`
	Icon           string `json:"icon"`
	URL            string `json:"url"`
	NotificationID string `json:"notificationId"`
}

func (n *Notification) Payload() PushPayload {
	p := PushPayload{
		Title:          n.Title,
		Message:        n.Message,
		Icon:           "/icon.png",
		URL:            "/",
		NotificationID: n.ID,
	}
	if n.IconURL != nil && *n.IconURL != "" {
		p.Icon = *n.IconURL
	}
	if n.TargetURL != nil && *n.TargetURL != "" {
		p.URL = *n.TargetURL
	}
	return p
}

// DashboardStats backs the admin dashboard.
type DashboardStats struct {
	TotalClients    int `json:"totalClients"`
	VerifiedClients int `json:"verifiedClients"`
	Admins          int `json:"admins"`
	Subscriptions   int `json:"subscriptions"`
	Notifications   int `json:"notifications"`
}

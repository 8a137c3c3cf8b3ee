// Package realtime fans stored notifications out to clients connected to
// the live stream.
package realtime

import (
	"sync"

	"pwanotify/internal/models"
)

const subscriberBuffer = 16

// Subscriber receives notifications for one client connection.
type Subscriber struct {
	clientID string
	ch       chan *models.Notification
}

func (s *Subscriber) C() <-chan *models.Notification { return s.ch }

// NotificationHub keeps the live subscribers per client.
type NotificationHub struct {
	mu      sync.RWMutex
	clients map[string]map[*Subscriber]struct{}
}

func NewNotificationHub() *NotificationHub {
	return &NotificationHub{
		clients: make(map[string]map[*Subscriber]struct{}),
	}
}

func (h *NotificationHub) Subscribe(clientID string) *Subscriber {
	sub := &Subscriber{clientID: clientID, ch: make(chan *models.Notification, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[clientID] == nil {
		h.clients[clientID] = make(map[*Subscriber]struct{})
	}
	h.clients[clientID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (h *NotificationHub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.clients[sub.clientID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.clients, sub.clientID)
	}
}

// Publish delivers n to every subscriber of its client. A subscriber whose
// buffer is full misses the event instead of blocking the publisher.
func (h *NotificationHub) Publish(n *models.Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for sub := range h.clients[n.ClientID] {
		select {
		case sub.ch <- n:
			delivered++
		default:
		}
	}
	return delivered
}

// Connected returns the number of live subscribers of clientID.
func (h *NotificationHub) Connected(clientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[clientID])
}

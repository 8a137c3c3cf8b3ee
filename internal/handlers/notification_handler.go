package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pwanotify/internal/realtime"
	"pwanotify/internal/services"
)

type NotificationHandler struct {
	notifications *services.NotificationService
	hub           *realtime.NotificationHub
	heartbeat     time.Duration
}

func NewNotificationHandler(n *services.NotificationService, hub *realtime.NotificationHub) *NotificationHandler {
	return &NotificationHandler{notifications: n, hub: hub, heartbeat: 25 * time.Second}
}

type CreateNotificationRequest struct {
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Type        string     `json:"type"`
	IconURL     *string    `json:"icon_url"`
	TargetURL   *string    `json:"target_url"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type AdminSendRequest struct {
	ClientID  string  `json:"client_id"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Type      string  `json:"type"`
	IconURL   *string `json:"icon_url"`
	TargetURL *string `json:"target_url"`
}

// @Summary      Мои уведомления
// @Tags         Notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /api/notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	list, err := h.notifications.ListForClient(c.Request.Context(), currentPrincipal(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// @Summary      Уведомление по ID
// @Tags         Notifications
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Notification ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/notifications/{id} [get]
func (h *NotificationHandler) Get(c *gin.Context) {
	n, err := h.notifications.Get(c.Request.Context(), currentPrincipal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": n})
}

// @Summary      Создать уведомление
// @Description  Без scheduled_at уходит сразу на подписки клиента
// @Tags         Notifications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      CreateNotificationRequest  true  "Уведомление"
// @Success      201   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Router       /api/notifications [post]
func (h *NotificationHandler) Create(c *gin.Context) {
	var req CreateNotificationRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.notifications.Create(c.Request.Context(), services.NotificationInput{
		ClientID:    currentPrincipal(c).UserID,
		Title:       req.Title,
		Message:     req.Message,
		Type:        req.Type,
		IconURL:     req.IconURL,
		TargetURL:   req.TargetURL,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	msg := "Notification sent successfully"
	if res.Scheduled {
		msg = "Notification scheduled successfully"
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg, "notification": res.Notification, "delivery": res.Delivery})
}

// @Summary      Удалить уведомление
// @Tags         Notifications
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Notification ID"
// @Success      200  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/notifications/{id} [delete]
func (h *NotificationHandler) Delete(c *gin.Context) {
	if err := h.notifications.Delete(c.Request.Context(), currentPrincipal(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted successfully"})
}

// @Summary      Все уведомления (админ)
// @Tags         Notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /api/notifications/admin/all [get]
func (h *NotificationHandler) ListAll(c *gin.Context) {
	list, err := h.notifications.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// @Summary      Отправить уведомление клиенту (админ)
// @Tags         Notifications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      AdminSendRequest  true  "Уведомление"
// @Success      201   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/notifications/admin/send [post]
func (h *NotificationHandler) AdminSend(c *gin.Context) {
	var req AdminSendRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.notifications.AdminSend(c.Request.Context(), services.NotificationInput{
		ClientID:  req.ClientID,
		Title:     req.Title,
		Message:   req.Message,
		Type:      req.Type,
		IconURL:   req.IconURL,
		TargetURL: req.TargetURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Notification sent successfully", "notification": res.Notification, "delivery": res.Delivery})
}

// @Summary      Поток новых уведомлений (SSE)
// @Tags         Notifications
// @Produce      text/event-stream
// @Security     BearerAuth
// @Router       /api/notifications/stream [get]
func (h *NotificationHandler) Stream(c *gin.Context) {
	clientID := currentPrincipal(c).UserID
	sub := h.hub.Subscribe(clientID)
	defer h.hub.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("ready", gin.H{"clientId": clientID})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			c.SSEvent("notification", n)
			c.Writer.Flush()
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}

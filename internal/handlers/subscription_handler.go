package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pwanotify/internal/services"
)

type SubscriptionHandler struct {
	subs *services.SubscriptionService
}

func NewSubscriptionHandler(subs *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

// SubscribeRequest is the browser PushSubscription JSON.
type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// @Summary      Публичный VAPID ключ
// @Tags         Subscriptions
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/subscriptions/vapid-public-key [get]
func (h *SubscriptionHandler) VAPIDPublicKey(c *gin.Context) {
	key, err := h.subs.VAPIDPublicKey()
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "VAPID public key not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vapidPublicKey": key})
}

// @Summary      Сохранить push-подписку
// @Tags         Subscriptions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      SubscribeRequest  true  "PushSubscription"
// @Success      201   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Router       /api/subscriptions [post]
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if !bindJSON(c, &req) {
		return
	}
	sub, err := h.subs.Subscribe(c.Request.Context(), currentPrincipal(c).UserID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Subscription saved successfully", "subscription": sub})
}

// @Summary      Мои подписки
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /api/subscriptions [get]
func (h *SubscriptionHandler) List(c *gin.Context) {
	subs, err := h.subs.ListForClient(c.Request.Context(), currentPrincipal(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

// @Summary      Удалить подписку
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Subscription ID"
// @Success      200  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/subscriptions/{id} [delete]
func (h *SubscriptionHandler) Delete(c *gin.Context) {
	if err := h.subs.Delete(c.Request.Context(), currentPrincipal(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Subscription deleted successfully"})
}

// @Summary      Все подписки (админ)
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /api/subscriptions/admin/all [get]
func (h *SubscriptionHandler) ListAll(c *gin.Context) {
	subs, err := h.subs.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

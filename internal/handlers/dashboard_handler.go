package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pwanotify/internal/services"
)

type DashboardHandler struct {
	dashboard *services.DashboardService
}

func NewDashboardHandler(d *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: d}
}

// @Summary      Статистика для админки
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.DashboardStats
// @Router       /api/admin/dashboard [get]
func (h *DashboardHandler) Stats(c *gin.Context) {
	st, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

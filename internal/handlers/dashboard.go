package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/grantflow/backend/internal/middleware"
	"github.com/grantflow/backend/internal/services"
	"github.com/grantflow/backend/pkg/response"
)

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(dashboardService *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// GetStats returns workflow backlog and payout totals
// GET /api/v1/admin/stats
func (h *DashboardHandler) GetStats(c *gin.Context) {
	var req services.DashboardStatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	stats, err := h.dashboardService.GetStats(c.Request.Context(), middleware.Actor(c), &req)
	reply(c, stats, err)
}

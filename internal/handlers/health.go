package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/services"
	"github.com/grantflow/backend/pkg/contract"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the subsystems the engine depends on.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	hub   *services.NoticeHub
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, hub *services.NoticeHub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := 200

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = 503
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	sseClients := 0
	if h.hub != nil {
		sseClients = h.hub.ClientCount()
	}

	var pendingApproval, requestedPayouts int64
	if dbStatus == "ok" {
		h.db.Model(&models.Proposal{}).Where("status = ?", contract.ProposalPending).Count(&pendingApproval)
		h.db.Model(&models.Milestone{}).Where("stage = ?", contract.MilestoneRequested).Count(&requestedPayouts)
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "grantflow",
		"components": gin.H{
			"database":         dbStatus,
			"queueMode":        queueMode,
			"sseClients":       sseClients,
			"pendingApprovals": pendingApproval,
			"requestedPayouts": requestedPayouts,
		},
	})
}

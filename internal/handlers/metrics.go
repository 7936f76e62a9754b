package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/services"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Metrics serves the default Prometheus registry, adding gauges that are
// read from the database and queue at scrape time.
// GET /metrics
func Metrics(db *gorm.DB, queue services.TaskQueue) gin.HandlerFunc {
	register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "grantflow_db_open_connections",
		Help: "Number of open DB connections",
	}, func() float64 {
		sqlDB, err := db.DB()
		if err != nil {
			return 0
		}
		return float64(sqlDB.Stats().OpenConnections)
	}))
	register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "grantflow_queue_async_enabled",
		Help: "Whether async queue (Redis) is enabled (1=yes, 0=no)",
	}, func() float64 {
		if queue != nil && queue.IsAsync() {
			return 1
		}
		return 0
	}))
	register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "grantflow_proposals_pending_approval",
		Help: "Proposals waiting for admin review",
	}, func() float64 {
		var n int64
		db.Model(&models.Proposal{}).Where("status = ?", contract.ProposalPending).Count(&n)
		return float64(n)
	}))
	register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "grantflow_milestones_requested",
		Help: "Milestone payouts waiting for admin review",
	}, func() float64 {
		var n int64
		db.Model(&models.Milestone{}).Where("stage = ?", contract.MilestoneRequested).Count(&n)
		return float64(n)
	}))

	return gin.WrapH(promhttp.Handler())
}

func register(c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
	}
}

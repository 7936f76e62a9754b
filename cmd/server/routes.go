package main

import (
	"github.com/gin-gonic/gin"
	"github.com/grantflow/backend/internal/config"
	"github.com/grantflow/backend/internal/handlers"
	"github.com/grantflow/backend/internal/middleware"
	"github.com/grantflow/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices, cfg *config.Config) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery(), middleware.Metrics())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	healthHandler := handlers.NewHealthHandler(svc.db, svc.taskQueue, svc.hub)
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics(svc.db, svc.taskQueue))

	authHandler := handlers.NewAuthHandler(svc.auth)
	proposalHandler := handlers.NewProposalHandler(svc.proposals)
	rfwHandler := handlers.NewRFWHandler(svc.rfws)
	tagHandler := handlers.NewTagHandler(svc.tags)
	systemLogHandler := handlers.NewSystemLogHandler(svc.logs)
	sseHandler := handlers.NewSSEHandler(svc.hub)
	dashboardHandler := handlers.NewDashboardHandler(svc.dashboard)

	// Writes are authenticated, audited for admins and rate limited per IP.
	writes := []gin.HandlerFunc{middleware.AuthRequired(), middleware.AuditLog()}
	if svc.rateLimiter != nil {
		writes = append(writes, svc.rateLimiter.Middleware())
	}

	api := r.Group("/api/v1")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			login := []gin.HandlerFunc{}
			if svc.rateLimiter != nil {
				login = append(login, svc.rateLimiter.Middleware())
			}
			auth.POST("/login", append(login, authHandler.Login)...)
		}

		// SSE (token checked by the handler, EventSource cannot set headers)
		api.GET("/admin/events", sseHandler.StreamNotices)

		// Public reads; a token, when sent, widens visibility
		public := api.Group("", middleware.OptionalAuth())
		{
			public.GET("/proposals", proposalHandler.List)
			public.GET("/proposals/:id", proposalHandler.Get)
			public.GET("/rfws", rfwHandler.List)
			public.GET("/rfws/:id", rfwHandler.Get)
			public.GET("/tags", tagHandler.List)
			public.GET("/history", proposalHandler.History)
		}

		// Authenticated reads
		protected := api.Group("", middleware.AuthRequired())
		{
			protected.GET("/auth/me", authHandler.GetCurrentUser)
			protected.GET("/proposals/drafts", proposalHandler.ListDrafts)
		}

		// Authenticated writes; role checks happen in the services
		member := api.Group("", writes...)
		{
			member.POST("/auth/logout", authHandler.Logout)
			member.PUT("/auth/password", authHandler.ChangePassword)

			// Proposals
			member.POST("/proposals/drafts", proposalHandler.CreateDraft)
			member.PUT("/proposals/:id", proposalHandler.UpdateDraft)
			member.DELETE("/proposals/:id", proposalHandler.Delete)
			member.PUT("/proposals/:id/submit_for_approval", proposalHandler.Submit)
			member.PUT("/proposals/:id/resubmit", proposalHandler.Resubmit)
			member.PUT("/proposals/:id/approve", proposalHandler.Approve)
			member.PUT("/proposals/:id/publish", proposalHandler.Publish)
			member.PUT("/proposals/:id/cancel", proposalHandler.Cancel)
			member.PUT("/proposals/:id/funded", proposalHandler.MarkFunded)
			member.PUT("/proposals/:id/private", proposalHandler.SetPrivate)
			member.PUT("/proposals/:id/follow", proposalHandler.Follow)
			member.PUT("/proposals/:id/admin", proposalHandler.AdminEdit)

			// Milestone payouts
			member.PUT("/proposals/:id/milestone/:msId/request", proposalHandler.RequestPayout)
			member.PUT("/proposals/:id/milestone/:msId/accept", proposalHandler.AcceptPayout)
			member.PUT("/proposals/:id/milestone/:msId/reject", proposalHandler.RejectPayout)
			member.PUT("/proposals/:id/milestone/:msId/paid", proposalHandler.MarkPaid)

			// Bounty workers and claims
			member.POST("/rfws/:id/worker/request", rfwHandler.RequestWork)
			member.PUT("/rfws/:id/worker/:workerId/accept", rfwHandler.ReviewWorker)
			member.POST("/rfws/:id/milestone/:msId/worker/:workerId", rfwHandler.Claim)
			member.PUT("/rfws/:id/milestone/:msId/accept/:claimId", rfwHandler.ReviewClaim)
		}

		// Admin only routes
		admin := api.Group("", append(writes, middleware.AdminRequired())...)
		{
			admin.POST("/rfws", rfwHandler.Create)
			admin.PUT("/rfws/:id", rfwHandler.Update)
			admin.DELETE("/rfws/:id", rfwHandler.Delete)
			admin.PUT("/rfws/:id/publish", rfwHandler.Publish)
			admin.PUT("/rfws/:id/close", rfwHandler.Close)

			admin.PUT("/tags", tagHandler.Upsert)
			admin.DELETE("/tags/:id", tagHandler.Delete)

			admin.POST("/users", authHandler.CreateUser)

			admin.GET("/admin/stats", dashboardHandler.GetStats)
			admin.GET("/admin/logs", systemLogHandler.List)
			admin.GET("/admin/logs/modules", systemLogHandler.GetModules)
		}
	}
}

package main

import (
	"github.com/gin-gonic/gin"
	"github.com/teampulse/insight/internal/config"
	"github.com/teampulse/insight/internal/handlers"
	"github.com/teampulse/insight/internal/middleware"
	"github.com/teampulse/insight/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, cfg *config.Config, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))

	// Rate limiter for advisory and report generation
	advisoryLimiter := middleware.NewRateLimiter(cfg.Server.AdvisoryRPS, cfg.Server.AdvisoryBurst)

	r.GET("/health", handlers.NewHealthHandler(svc.db, svc.taskQueue, svc.sseHub, svc.wsHub).CheckHealth)
	r.GET("/metrics", handlers.Metrics())

	analyticsHandler := handlers.NewAnalyticsHandler(svc.insights)
	advisoryHandler := handlers.NewAdvisoryHandler(svc.insights)
	reportHandler := handlers.NewReportHandler(svc.insights)
	workItemHandler := handlers.NewWorkItemHandler(svc.planner, svc.items)
	eventsHandler := handlers.NewEventsHandler(svc.insights, svc.sseHub, svc.wsHub, svc.upgrader)

	api := r.Group("/api")
	{
		// Event streams accept the token as a query parameter
		events := api.Group("/events", middleware.StreamAuthRequired())
		{
			events.GET("/stream", eventsHandler.Stream)
			events.GET("/ws", eventsHandler.WebSocket)
		}

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.AuditLog())
		{
			// Analytics
			protected.GET("/analytics/summary", analyticsHandler.Summary)
			protected.GET("/analytics/projects/:id", analyticsHandler.Project)
			protected.GET("/analytics/teams/:id", analyticsHandler.Team)
			protected.GET("/analytics/users/:id", analyticsHandler.User)

			// Advisory and reports (rate limited per user)
			limited := protected.Group("", advisoryLimiter.Middleware())
			limited.POST("/advisory/query", advisoryHandler.Query)
			limited.POST("/reports", reportHandler.Generate)
			protected.GET("/reports/:id/download", reportHandler.Download)

			// Work items
			protected.PUT("/work-items/:id/status", workItemHandler.UpdateStatus)
		}
	}
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teampulse/insight/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports the state of every subsystem.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	sse   *services.SSEHub
	ws    *services.WSHub
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, sse *services.SSEHub, ws *services.WSHub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, sse: sse, ws: ws}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	if h.db == nil {
		dbStatus = "not configured"
	} else if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "error: " + err.Error()
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			dbStatus = "error: " + err.Error()
		}
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "insight",
		"components": gin.H{
			"database":    dbStatus,
			"queue_mode":  queueMode,
			"sse_clients": h.sse.ClientCount(),
			"ws_clients":  h.ws.ClientCount(),
		},
	})
}

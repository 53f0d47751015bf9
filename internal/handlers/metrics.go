package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teampulse/insight/internal/services"
	"gorm.io/gorm"
)

// Metrics serves the Prometheus registry.
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RegisterRuntimeGauges exposes connection and queue state sampled at scrape
// time. Registering twice is a no-op.
func RegisterRuntimeGauges(reg prometheus.Registerer, db *gorm.DB, queue services.TaskQueue, sse *services.SSEHub, ws *services.WSHub) error {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "insight_sse_active_clients",
			Help: "Number of active SSE connections",
		}, func() float64 { return float64(sse.ClientCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "insight_ws_active_clients",
			Help: "Number of active WebSocket connections",
		}, func() float64 { return float64(ws.ClientCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "insight_queue_async_enabled",
			Help: "Whether the async queue (Redis) is enabled (1=yes, 0=no)",
		}, func() float64 {
			if queue != nil && queue.IsAsync() {
				return 1
			}
			return 0
		}),
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			gauges = append(gauges,
				prometheus.NewGaugeFunc(prometheus.GaugeOpts{
					Name: "insight_db_open_connections",
					Help: "Number of open DB connections",
				}, func() float64 { return float64(sqlDB.Stats().OpenConnections) }),
				prometheus.NewGaugeFunc(prometheus.GaugeOpts{
					Name: "insight_db_in_use_connections",
					Help: "Number of in-use DB connections",
				}, func() float64 { return float64(sqlDB.Stats().InUse) }),
			)
		}
	}

	for _, g := range gauges {
		if err := reg.Register(g); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

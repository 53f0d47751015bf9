package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teampulse/insight/pkg/logger"
)

// AuditLog records write operations (POST/PUT/DELETE) with the acting user.
func AuditLog() gin.HandlerFunc {
	audit := logger.Component("audit")
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != "POST" && method != "PUT" && method != "DELETE" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		module, action := parseRouteInfo(c.FullPath(), method)
		event := audit.Info()
		if c.Writer.Status() >= 400 {
			event = audit.Warn()
		}
		event.
			Uint("user_id", GetUserID(c)).
			Str("username", GetUsername(c)).
			Str("module", module).
			Str("action", action).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("[Audit] " + GetUsername(c) + " " + method + " " + c.Request.URL.Path)
	}
}

// parseRouteInfo extracts module and action from a Gin route pattern.
// e.g. "/api/work-items/:id/status" + "PUT" → module="work-items", action="update"
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.TrimPrefix(fullPath, "/api/")
	module, _, _ = strings.Cut(path, "/")
	if module == "" {
		module = "unknown"
	}

	switch method {
	case "POST":
		action = "create"
	case "PUT":
		action = "update"
	case "DELETE":
		action = "delete"
	default:
		action = strings.ToLower(method)
	}
	return module, action
}

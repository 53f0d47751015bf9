package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/teampulse/insight/internal/middleware"
	"github.com/teampulse/insight/internal/services"
	"github.com/teampulse/insight/pkg/response"
)

// currentActor loads the caller named by the token. A token for a user that
// no longer exists is treated as unauthenticated.
func currentActor(c *gin.Context, planner *services.ScopePlanner) (services.Actor, bool) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		response.Unauthorized(c, "authentication required")
		return services.Actor{}, false
	}
	actor, err := planner.ResolveActor(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			response.Unauthorized(c, "unknown user")
			return services.Actor{}, false
		}
		response.Error(c, err)
		return services.Actor{}, false
	}
	return actor, true
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

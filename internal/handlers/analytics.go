package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/teampulse/insight/internal/services"
	"github.com/teampulse/insight/pkg/response"
)

type AnalyticsHandler struct {
	insights *services.InsightService
}

func NewAnalyticsHandler(insights *services.InsightService) *AnalyticsHandler {
	return &AnalyticsHandler{insights: insights}
}

// Summary returns the caller's organisation-wide view
// GET /api/analytics/summary
func (h *AnalyticsHandler) Summary(c *gin.Context) {
	actor, ok := currentActor(c, h.insights.Planner())
	if !ok {
		return
	}
	result, err := h.insights.GetSummary(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Project returns analytics for one project
// GET /api/analytics/projects/:id
func (h *AnalyticsHandler) Project(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := currentActor(c, h.insights.Planner())
	if !ok {
		return
	}
	result, err := h.insights.GetProjectAnalytics(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Team returns analytics for one team
// GET /api/analytics/teams/:id
func (h *AnalyticsHandler) Team(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := currentActor(c, h.insights.Planner())
	if !ok {
		return
	}
	result, err := h.insights.GetTeamAnalytics(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// User returns analytics for one user
// GET /api/analytics/users/:id
func (h *AnalyticsHandler) User(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := currentActor(c, h.insights.Planner())
	if !ok {
		return
	}
	result, err := h.insights.GetUserAnalytics(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

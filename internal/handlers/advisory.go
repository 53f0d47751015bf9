package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/teampulse/insight/internal/services"
	"github.com/teampulse/insight/pkg/response"
)

type AdvisoryHandler struct {
	insights *services.InsightService
}

func NewAdvisoryHandler(insights *services.InsightService) *AdvisoryHandler {
	return &AdvisoryHandler{insights: insights}
}

type advisoryRequest struct {
	Query string `json:"query"`
}

// Query answers a free-text advisory question over the caller's scope
// POST /api/advisory/query
func (h *AdvisoryHandler) Query(c *gin.Context) {
	var req advisoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	actor, ok := currentActor(c, h.insights.Planner())
	if !ok {
		return
	}

	result, err := h.insights.AnswerAdvisoryQuery(c.Request.Context(), actor, req.Query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

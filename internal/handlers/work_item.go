package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/teampulse/insight/internal/analytics"
	"github.com/teampulse/insight/internal/services"
	"github.com/teampulse/insight/pkg/response"
)

type WorkItemHandler struct {
	planner *services.ScopePlanner
	items   *services.WorkItemService
}

func NewWorkItemHandler(planner *services.ScopePlanner, items *services.WorkItemService) *WorkItemHandler {
	return &WorkItemHandler{planner: planner, items: items}
}

type statusRequest struct {
	Status analytics.Status `json:"status" binding:"required"`
}

// UpdateStatus commits a status transition and publishes its delta
// PUT /api/work-items/:id/status
func (h *WorkItemHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	actor, ok := currentActor(c, h.planner)
	if !ok {
		return
	}

	change, err := h.items.UpdateStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, change)
}

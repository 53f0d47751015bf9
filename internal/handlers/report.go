package handlers

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/teampulse/insight/internal/services"
	"github.com/teampulse/insight/pkg/response"
)

type ReportHandler struct {
	insights *services.InsightService
}

func NewReportHandler(insights *services.InsightService) *ReportHandler {
	return &ReportHandler{insights: insights}
}

type reportRequest struct {
	ProjectID *uint `json:"project_id"`
}

// Generate renders a progress report, or returns a still-fresh one
// POST /api/reports
func (h *ReportHandler) Generate(c *gin.Context) {
	var req reportRequest
	// an empty body asks for the caller's summary report
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, err.Error())
		return
	}
	if req.ProjectID != nil && *req.ProjectID == 0 {
		response.BadRequest(c, "invalid project_id")
		return
	}
	actor, ok := currentActor(c, h.insights.Planner())
	if !ok {
		return
	}

	result, err := h.insights.GenerateReport(c.Request.Context(), actor, req.ProjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Cached {
		response.Success(c, result)
		return
	}
	response.Created(c, result)
}

// Download streams a report file to its owner
// GET /api/reports/:id/download
func (h *ReportHandler) Download(c *gin.Context) {
	actor, ok := currentActor(c, h.insights.Planner())
	if !ok {
		return
	}
	artifact, err := h.insights.ReportArtifact(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(artifact.FilePath, artifact.FileName)
}

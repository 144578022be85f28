package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type gradebookService interface {
	ListForAssignment(ctx context.Context, actor models.Actor, assignmentID string) ([]models.GradebookRow, error)
	StudentGradebook(ctx context.Context, actor models.Actor) ([]models.GradebookRow, error)
	Export(ctx context.Context, actor models.Actor, assignmentID, format string) (*dto.ExportFile, error)
}

type resyncService interface {
	Enqueue(ctx context.Context, actor models.Actor, assignmentID string) (*dto.ResyncJobResponse, error)
}

// GradebookHandler exposes gradebook ledger endpoints.
type GradebookHandler struct {
	gradebook gradebookService
	resync    resyncService
}

// NewGradebookHandler constructs handler.
func NewGradebookHandler(gradebook gradebookService, resync resyncService) *GradebookHandler {
	return &GradebookHandler{gradebook: gradebook, resync: resync}
}

// List godoc
// @Summary Gradebook entries of an assignment
// @Tags Gradebook
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/gradebook [get]
func (h *GradebookHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	rows, err := h.gradebook.ListForAssignment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil, map[string]interface{}{"count": len(rows)})
}

// Export godoc
// @Summary Download the gradebook sheet of an assignment
// @Tags Gradebook
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Assignment ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /assignments/{id}/gradebook/export [get]
func (h *GradebookHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	file, err := h.gradebook.Export(c.Request.Context(), actor, c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}

// Resync godoc
// @Summary Replay gradebook reconciliation for an assignment
// @Tags Gradebook
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id}/gradebook/resync [post]
func (h *GradebookHandler) Resync(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	job, err := h.resync.Enqueue(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Mine godoc
// @Summary Published gradebook of the calling student
// @Tags Gradebook
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/me/gradebook [get]
func (h *GradebookHandler) Mine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	rows, err := h.gradebook.StudentGradebook(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

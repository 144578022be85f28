package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type gradingService interface {
	GradeSubmission(ctx context.Context, actor models.Actor, submissionID string, req dto.GradeSubmissionRequest) (*models.Submission, error)
}

type gradingQueueService interface {
	NextUngraded(ctx context.Context, actor models.Actor, assignmentID string) (*models.Submission, error)
	Siblings(ctx context.Context, actor models.Actor, assignmentID, excludingID string) ([]models.SubmissionSummary, error)
	GradeAndAdvance(ctx context.Context, actor models.Actor, submissionID string, req dto.GradeSubmissionRequest) (*dto.GradeNextResponse, error)
}

type bulkGradingService interface {
	BulkGrade(ctx context.Context, actor models.Actor, req dto.BulkGradeRequest) (*dto.BulkGradeResult, error)
}

// GradingHandler exposes instructor grading endpoints.
type GradingHandler struct {
	grading gradingService
	queue   gradingQueueService
	bulk    bulkGradingService
}

// NewGradingHandler constructs handler.
func NewGradingHandler(grading gradingService, queue gradingQueueService, bulk bulkGradingService) *GradingHandler {
	return &GradingHandler{grading: grading, queue: queue, bulk: bulk}
}

// Grade godoc
// @Summary Grade a submission
// @Description Writes score, feedback and status and reconciles the gradebook entry in one transaction.
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.GradeSubmissionRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/grade [post]
func (h *GradingHandler) Grade(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	submission, err := h.grading.GradeSubmission(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// GradeNext godoc
// @Summary Grade a submission and fetch the next pending one
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.GradeSubmissionRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/grade-next [post]
func (h *GradingHandler) GradeNext(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.queue.GradeAndAdvance(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// BulkGrade godoc
// @Summary Apply one score to many submissions
// @Description Each submission is graded independently; failures are reported per id.
// @Tags Grading
// @Accept json
// @Produce json
// @Param payload body dto.BulkGradeRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /submissions/bulk-grade [post]
func (h *GradingHandler) BulkGrade(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.BulkGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.bulk.BulkGrade(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// NextUngraded godoc
// @Summary Next submission waiting for a grade
// @Tags Grading
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/next-ungraded [get]
func (h *GradingHandler) NextUngraded(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	next, err := h.queue.NextUngraded(c.Request.Context(), actor, c.Param("id"))
	if errors.Is(err, service.ErrAllGraded) {
		response.JSON(c, http.StatusOK, dto.NextUngradedResponse{AllGraded: true}, nil)
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NextUngradedResponse{Submission: next}, nil)
}

// Siblings godoc
// @Summary Other submissions of an assignment
// @Tags Grading
// @Produce json
// @Param id path string true "Assignment ID"
// @Param exclude query string false "Submission to leave out"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/siblings [get]
func (h *GradingHandler) Siblings(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, err := h.queue.Siblings(c.Request.Context(), actor, c.Param("id"), c.Query("exclude"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

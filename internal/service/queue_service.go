package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

// ErrAllGraded signals that an assignment has no submission left to grade.
var ErrAllGraded = errors.New("all submissions are graded")

type pendingQueueRepository interface {
	NextPending(ctx context.Context, assignmentID string) (*models.Submission, error)
	Siblings(ctx context.Context, assignmentID, excludeID string) ([]models.SubmissionSummary, error)
}

type submissionGrader interface {
	GradeSubmission(ctx context.Context, actor models.Actor, submissionID string, req dto.GradeSubmissionRequest) (*models.Submission, error)
}

// QueueService walks an instructor through the pending submissions of an assignment.
type QueueService struct {
	assignments assignmentOwnerReader
	submissions pendingQueueRepository
	grader      submissionGrader
	logger      *zap.Logger
}

// NewQueueService constructs the navigator.
func NewQueueService(assignments assignmentOwnerReader, submissions pendingQueueRepository, grader submissionGrader, logger *zap.Logger) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{assignments: assignments, submissions: submissions, grader: grader, logger: logger}
}

// NextUngraded returns the earliest turned-in submission without a grade, or
// ErrAllGraded when the backlog is empty.
func (s *QueueService) NextUngraded(ctx context.Context, actor models.Actor, assignmentID string) (*models.Submission, error) {
	if err := s.ensureOwned(ctx, actor, assignmentID); err != nil {
		return nil, err
	}
	next, err := s.submissions.NextPending(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAllGraded
		}
		return nil, appErrors.Persistence(err, "failed to load pending submissions")
	}
	return next, nil
}

// Siblings lists the other submissions of the assignment with status only.
func (s *QueueService) Siblings(ctx context.Context, actor models.Actor, assignmentID, excludingID string) ([]models.SubmissionSummary, error) {
	if err := s.ensureOwned(ctx, actor, assignmentID); err != nil {
		return nil, err
	}
	items, err := s.submissions.Siblings(ctx, assignmentID, excludingID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load submissions")
	}
	if items == nil {
		items = []models.SubmissionSummary{}
	}
	return items, nil
}

// GradeAndAdvance grades one submission and looks up the next one to work on.
func (s *QueueService) GradeAndAdvance(ctx context.Context, actor models.Actor, submissionID string, req dto.GradeSubmissionRequest) (*dto.GradeNextResponse, error) {
	graded, err := s.grader.GradeSubmission(ctx, actor, submissionID, req)
	if err != nil {
		return nil, err
	}

	resp := &dto.GradeNextResponse{Submission: graded}
	next, err := s.NextUngraded(ctx, actor, graded.AssignmentID)
	switch {
	case errors.Is(err, ErrAllGraded):
		resp.AllGraded = true
	case err != nil:
		// The grade is committed; report it and let the caller refresh the queue.
		s.logger.Warn("next submission lookup failed", zap.String("assignment_id", graded.AssignmentID), zap.Error(err))
	default:
		resp.Next = next
	}
	return resp, nil
}

func (s *QueueService) ensureOwned(ctx context.Context, actor models.Actor, assignmentID string) error {
	if _, err := s.assignments.FindOwned(ctx, assignmentID, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Persistence(err, "failed to load assignment")
	}
	return nil
}

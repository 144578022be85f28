package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/jobs"
	"github.com/noah-isme/sma-gradebook-api/pkg/logger"
)

// JobTypeGradebookResync identifies ledger replay jobs.
const JobTypeGradebookResync = "gradebook.resync"

type resyncPayload struct {
	AssignmentID string
	InstructorID string
}

type assignmentResyncer interface {
	ResyncAssignment(ctx context.Context, actor models.Actor, assignmentID string) (*dto.ResyncResult, error)
}

// ResyncService runs gradebook replays on a background queue, one pending job
// per assignment.
type ResyncService struct {
	gradebook   assignmentResyncer
	assignments assignmentOwnerReader
	queue       *jobs.Queue
	logger      *zap.Logger
}

// NewResyncService wires the replay queue. Call Start before enqueueing.
func NewResyncService(gradebook assignmentResyncer, assignments assignmentOwnerReader, logger *zap.Logger, cfg jobs.QueueConfig) *ResyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ResyncService{gradebook: gradebook, assignments: assignments, logger: logger}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("gradebook-resync", s.handle, cfg)
	return s
}

// Start launches the workers.
func (s *ResyncService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *ResyncService) Stop() {
	s.queue.Stop()
}

// Enqueue schedules a replay for an owned assignment.
func (s *ResyncService) Enqueue(ctx context.Context, actor models.Actor, assignmentID string) (*dto.ResyncJobResponse, error) {
	if _, err := s.assignments.FindOwned(ctx, assignmentID, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Persistence(err, "failed to load assignment")
	}

	job, err := s.queue.Enqueue(jobs.Job{
		Type:    JobTypeGradebookResync,
		Key:     assignmentID,
		Payload: resyncPayload{AssignmentID: assignmentID, InstructorID: actor.UserID},
	})
	if errors.Is(err, jobs.ErrDuplicate) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a resync for this assignment is already pending")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue resync")
	}

	logger.WithContext(ctx, s.logger).Info("gradebook resync queued", zap.String("job_id", job.ID), zap.String("assignment_id", assignmentID))
	return &dto.ResyncJobResponse{JobID: job.ID, AssignmentID: assignmentID, Status: "queued"}, nil
}

func (s *ResyncService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(resyncPayload)
	if !ok {
		s.logger.Error("unexpected resync payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	actor := models.Actor{UserID: payload.InstructorID, Role: models.RoleTeacher}
	result, err := s.gradebook.ResyncAssignment(ctx, actor, payload.AssignmentID)
	if err != nil {
		if appErrors.IsRetryable(err) {
			return err
		}
		s.logger.Warn("gradebook resync dropped", zap.String("job_id", job.ID), zap.String("assignment_id", payload.AssignmentID), zap.Error(err))
		return nil
	}
	s.logger.Info("gradebook resync finished", zap.String("job_id", job.ID), zap.Int("replayed", result.Replayed))
	return nil
}

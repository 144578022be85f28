package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/gradescale"
	"github.com/noah-isme/sma-gradebook-api/pkg/logger"
)

type gradingStore interface {
	WithinTx(ctx context.Context, fn func(tx repository.GradingTx) error) error
}

// GradingService applies instructor grades to submissions and keeps the
// gradebook entry of the same student in the same transaction.
type GradingService struct {
	store     gradingStore
	gradebook *GradebookService
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewGradingService constructs the grading engine.
func NewGradingService(store gradingStore, gradebook *GradebookService, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *GradingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradingService{
		store:     store,
		gradebook: gradebook,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		tracer:    otel.Tracer("github.com/noah-isme/sma-gradebook-api/internal/service/grading"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GradeSubmission writes score, feedback and status on a submission owned by
// the actor and reconciles the gradebook. Either both writes land or neither.
func (s *GradingService) GradeSubmission(ctx context.Context, actor models.Actor, submissionID string, req dto.GradeSubmissionRequest) (*models.Submission, error) {
	ctx, span := s.tracer.Start(ctx, "grading.grade_submission", trace.WithAttributes(
		attribute.String("grading.submission_id", submissionID),
		attribute.String("grading.status", string(req.Status)),
		attribute.Bool("grading.publish", req.Publish),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return nil, s.reject(ctx, span, submissionID, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading payload"))
	}

	var graded *models.Submission
	err := s.store.WithinTx(ctx, func(tx repository.GradingTx) error {
		current, err := tx.FindSubmissionForInstructor(ctx, submissionID, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
			}
			return appErrors.Persistence(err, "failed to load submission")
		}
		if err := checkGradable(current, req); err != nil {
			return err
		}
		if req.Version != nil && *req.Version != current.Version {
			return staleVersion(current.Version)
		}

		updated, err := tx.UpdateGrade(ctx, models.GradeUpdate{
			SubmissionID:    current.ID,
			ExpectedVersion: current.Version,
			Grade:           req.Score,
			Feedback:        req.Feedback,
			Status:          req.Status,
			GradedBy:        actor.UserID,
			GradedAt:        s.now(),
		})
		if err != nil {
			if errors.Is(err, repository.ErrStaleVersion) {
				return staleVersion(current.Version)
			}
			return appErrors.Persistence(err, "failed to save grade")
		}

		if _, err := s.gradebook.reconcileWith(ctx, tx.UpsertGradebook, updated.AssignmentID, updated.StudentID, updated.Grade, current.TotalPoints, req.Publish); err != nil {
			return err
		}
		graded = updated
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if !errors.As(err, &appErr) {
			err = appErrors.Persistence(err, "failed to commit grade")
		}
		return nil, s.reject(ctx, span, submissionID, err)
	}

	s.gradebook.InvalidateStudent(ctx, graded.StudentID)
	s.metrics.RecordGradeApplied(string(graded.Status))
	logger.WithContext(ctx, s.logger).Debug("submission graded",
		zap.String("submission_id", graded.ID),
		zap.String("assignment_id", graded.AssignmentID),
		zap.String("graded_by", actor.UserID),
		zap.Int("version", graded.Version),
	)
	return graded, nil
}

func (s *GradingService) reject(ctx context.Context, span trace.Span, submissionID string, err error) error {
	appErr := appErrors.FromError(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, appErr.Code)
	s.metrics.RecordGradeRejected(appErr.Code)

	fields := []zap.Field{zap.String("submission_id", submissionID), zap.String("code", appErr.Code), zap.Error(err)}
	log := logger.WithContext(ctx, s.logger)
	if appErr.Code == appErrors.ErrPersistence.Code {
		log.Error("grading failed", fields...)
	} else {
		log.Debug("grading rejected", fields...)
	}
	return err
}

// checkGradable enforces the rules a grade must satisfy before any write.
func checkGradable(sub *models.ScopedSubmission, req dto.GradeSubmissionRequest) error {
	if !sub.Gradable() {
		return appErrors.Clone(appErrors.ErrValidation, "submission has not been turned in")
	}
	if !req.Status.GradingStatus() {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "status must be graded or late"),
			map[string]interface{}{"status": req.Status},
		)
	}
	if req.Score == nil {
		if req.Status == models.SubmissionStatusGraded {
			return appErrors.Clone(appErrors.ErrValidation, "a graded submission requires a score")
		}
		return nil
	}
	score := *req.Score
	if !gradescale.Finite(score) {
		return appErrors.Clone(appErrors.ErrValidation, "score must be a finite number")
	}
	if !gradescale.FitsScale(score) {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "score has too many decimal places"),
			map[string]interface{}{"score": score, "decimals": gradescale.ScoreDecimals},
		)
	}
	if score < 0 || score > sub.TotalPoints {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "score is outside the assignment range"),
			map[string]interface{}{"min": 0.0, "max": sub.TotalPoints, "score": score},
		)
	}
	return nil
}

func staleVersion(current int) error {
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrConflict, "submission was graded concurrently, reload and retry"),
		map[string]interface{}{"current_version": current},
	)
}

package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/logger"
)

// BulkGradingConfig bounds bulk grading requests.
type BulkGradingConfig struct {
	Concurrency int
	MaxItems    int
}

// BulkGradingService applies one score to many submissions, each through the
// grading engine on its own.
type BulkGradingService struct {
	grader    submissionGrader
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	config    BulkGradingConfig
}

// NewBulkGradingService constructs the processor.
func NewBulkGradingService(grader submissionGrader, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg BulkGradingConfig) *BulkGradingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 500
	}
	return &BulkGradingService{grader: grader, validator: validate, metrics: metrics, logger: logger, config: cfg}
}

// BulkGrade grades every distinct submission id and reports per-id failures in
// input order. One failing id never blocks the others and scores are never clamped.
func (s *BulkGradingService) BulkGrade(ctx context.Context, actor models.Actor, req dto.BulkGradeRequest) (*dto.BulkGradeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk grading payload")
	}
	ids := uniqueIDs(req.SubmissionIDs)
	if len(ids) > s.config.MaxItems {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "too many submissions in one request"),
			map[string]interface{}{"max": s.config.MaxItems, "count": len(ids)},
		)
	}
	s.metrics.ObserveBulkBatch(len(ids))

	status := req.Status
	if status == "" {
		status = models.SubmissionStatusGraded
	}
	item := dto.GradeSubmissionRequest{Score: req.Score, Feedback: req.Feedback, Status: status, Publish: req.Publish}

	outcomes := make([]error, len(ids))
	p := pool.New().WithMaxGoroutines(s.config.Concurrency)
	for i, id := range ids {
		i, id := i, id
		p.Go(func() {
			_, outcomes[i] = s.grader.GradeSubmission(ctx, actor, id, item)
		})
	}
	p.Wait()

	result := &dto.BulkGradeResult{Failures: []dto.BulkGradeFailure{}}
	for i, err := range outcomes {
		if err == nil {
			result.UpdatedCount++
			continue
		}
		appErr := appErrors.FromError(err)
		result.Failures = append(result.Failures, dto.BulkGradeFailure{
			SubmissionID: ids[i],
			Code:         appErr.Code,
			Reason:       appErr.Message,
			Details:      appErr.Details,
		})
	}

	logger.WithContext(ctx, s.logger).Info("bulk grading finished",
		zap.String("actor_id", actor.UserID),
		zap.Int("requested", len(ids)),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	"github.com/noah-isme/sma-gradebook-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/export"
	"github.com/noah-isme/sma-gradebook-api/pkg/gradescale"
)

type gradebookRepository interface {
	Upsert(ctx context.Context, entry *models.GradebookEntry) error
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.GradebookRow, error)
	ListPublishedByStudent(ctx context.Context, studentID string) ([]models.GradebookRow, error)
}

type gradedSubmissionLister interface {
	LatestGraded(ctx context.Context, assignmentID string) ([]models.ScopedSubmission, error)
}

type assignmentOwnerReader interface {
	FindOwned(ctx context.Context, id, instructorID string) (*models.Assignment, error)
}

type studentProfileReader interface {
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

// upsertFunc writes one ledger entry, either directly or inside a grading transaction.
type upsertFunc func(ctx context.Context, entry *models.GradebookEntry) error

// GradebookConfig tunes the student-facing cache.
type GradebookConfig struct {
	CacheTTL time.Duration
}

// GradebookService keeps the gradebook ledger in step with graded submissions.
type GradebookService struct {
	store       gradingStore
	entries     gradebookRepository
	submissions gradedSubmissionLister
	assignments assignmentOwnerReader
	students    studentProfileReader
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	tracer      trace.Tracer
	config      GradebookConfig
}

// NewGradebookService constructs the synchronizer.
func NewGradebookService(
	store gradingStore,
	entries gradebookRepository,
	submissions gradedSubmissionLister,
	assignments assignmentOwnerReader,
	students studentProfileReader,
	cacheSvc *CacheService,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg GradebookConfig,
) *GradebookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradebookService{
		store:       store,
		entries:     entries,
		submissions: submissions,
		assignments: assignments,
		students:    students,
		cache:       cacheSvc,
		metrics:     metrics,
		logger:      logger,
		tracer:      otel.Tracer("github.com/noah-isme/sma-gradebook-api/internal/service/gradebook"),
		config:      cfg,
	}
}

// BuildEntry derives the ledger values for a score. A nil score yields an entry
// with empty score, percentage and letter.
func BuildEntry(assignmentID, studentID string, score *float64, maxScore float64, publish bool) (*models.GradebookEntry, error) {
	if maxScore <= 0 {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "assignment total points must be positive"),
			map[string]interface{}{"max_score": maxScore},
		)
	}
	entry := &models.GradebookEntry{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		MaxScore:     maxScore,
		Published:    publish,
	}
	if score == nil {
		return entry, nil
	}
	pct, letter, err := gradescale.Derive(*score, maxScore)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cannot derive grade")
	}
	value := *score
	entry.Score = &value
	entry.Percentage = &pct
	entry.GradeLetter = &letter
	return entry, nil
}

// Reconcile upserts the ledger entry of (assignmentID, studentID). Calling it
// twice with the same arguments leaves a single identical row.
func (s *GradebookService) Reconcile(ctx context.Context, assignmentID, studentID string, score *float64, maxScore float64, publish bool) (*models.GradebookEntry, error) {
	entry, err := s.reconcileWith(ctx, s.entries.Upsert, assignmentID, studentID, score, maxScore, publish)
	if err != nil {
		return nil, err
	}
	s.InvalidateStudent(ctx, studentID)
	return entry, nil
}

func (s *GradebookService) reconcileWith(ctx context.Context, upsert upsertFunc, assignmentID, studentID string, score *float64, maxScore float64, publish bool) (*models.GradebookEntry, error) {
	ctx, span := s.tracer.Start(ctx, "gradebook.reconcile", trace.WithAttributes(
		attribute.String("gradebook.assignment_id", assignmentID),
		attribute.String("gradebook.student_id", studentID),
		attribute.Bool("gradebook.published", publish),
	))
	defer span.End()

	entry, err := BuildEntry(assignmentID, studentID, score, maxScore, publish)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := upsert(ctx, entry); err != nil {
		span.RecordError(err)
		return nil, appErrors.Persistence(err, "failed to update gradebook")
	}
	return entry, nil
}

// InvalidateStudent drops the cached published gradebook of a student.
func (s *GradebookService) InvalidateStudent(ctx context.Context, studentID string) {
	if err := s.cache.Invalidate(ctx, cache.GradebookStudentKey(studentID)); err != nil {
		s.logger.Warn("gradebook cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}

// ResyncAssignment replays reconcile for the latest graded submission of every
// student on an owned assignment. Each student is replayed in its own
// transaction that locks the submission and ledger rows, so a grade committed
// after the listing wins. Existing entries keep their publish flag and
// max_score; missing entries are written unpublished against the current
// total points.
func (s *GradebookService) ResyncAssignment(ctx context.Context, actor models.Actor, assignmentID string) (*dto.ResyncResult, error) {
	assignment, err := s.ownedAssignment(ctx, actor, assignmentID)
	if err != nil {
		return nil, err
	}

	graded, err := s.submissions.LatestGraded(ctx, assignment.ID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load graded submissions")
	}

	replayed := 0
	for _, listed := range graded {
		studentID := listed.StudentID
		err := s.store.WithinTx(ctx, func(tx repository.GradingTx) error {
			return s.replayStudent(ctx, tx, assignment, studentID)
		})
		if err != nil {
			s.logger.Error("gradebook replay failed",
				zap.String("assignment_id", assignment.ID),
				zap.String("student_id", studentID),
				zap.Error(err),
			)
			var appErr *appErrors.Error
			if !errors.As(err, &appErr) {
				err = appErrors.Persistence(err, "failed to commit gradebook replay")
			}
			return nil, err
		}
		s.InvalidateStudent(ctx, studentID)
		replayed++
	}
	s.metrics.AddLedgerReplays(replayed)
	s.logger.Info("gradebook replayed", zap.String("assignment_id", assignment.ID), zap.Int("entries", replayed))

	return &dto.ResyncResult{AssignmentID: assignment.ID, Replayed: replayed}, nil
}

func (s *GradebookService) replayStudent(ctx context.Context, tx repository.GradingTx, assignment *models.Assignment, studentID string) error {
	current, err := tx.LockLatestGraded(ctx, assignment.ID, studentID)
	if err != nil {
		return appErrors.Persistence(err, "failed to load graded submission")
	}

	stored, err := tx.LockGradebookEntry(ctx, assignment.ID, studentID)
	switch {
	case err == nil:
		_, err = s.reconcileWith(ctx, tx.UpsertGradebook, assignment.ID, studentID, current.Grade, stored.MaxScore, stored.Published)
		return err
	case !errors.Is(err, sql.ErrNoRows):
		return appErrors.Persistence(err, "failed to load gradebook entry")
	}

	if err := assignment.ValidateTotalPoints(); err != nil {
		return appErrors.WithDetails(
			appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "assignment total points are out of range"),
			map[string]interface{}{"total_points": assignment.TotalPoints, "max": models.MaxTotalPoints},
		)
	}
	_, err = s.reconcileWith(ctx, tx.UpsertGradebook, assignment.ID, studentID, current.Grade, assignment.TotalPoints, false)
	return err
}

// ListForAssignment returns every ledger row of an owned assignment.
func (s *GradebookService) ListForAssignment(ctx context.Context, actor models.Actor, assignmentID string) ([]models.GradebookRow, error) {
	if _, err := s.ownedAssignment(ctx, actor, assignmentID); err != nil {
		return nil, err
	}
	rows, err := s.entries.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load gradebook")
	}
	if rows == nil {
		rows = []models.GradebookRow{}
	}
	return rows, nil
}

// StudentGradebook returns the published entries of the calling student.
func (s *GradebookService) StudentGradebook(ctx context.Context, actor models.Actor) ([]models.GradebookRow, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students have a personal gradebook")
	}
	student, err := s.students.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Persistence(err, "failed to load student profile")
	}

	key := cache.GradebookStudentKey(student.ID)
	var cached []models.GradebookRow
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Debug("gradebook cache read failed, loading from database", zap.String("student_id", student.ID), zap.Error(err))
	} else if hit {
		return cached, nil
	}

	rows, err := s.entries.ListPublishedByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load gradebook")
	}
	if rows == nil {
		rows = []models.GradebookRow{}
	}
	if err := s.cache.Set(ctx, key, rows, s.config.CacheTTL); err != nil {
		s.logger.Debug("gradebook cache write failed", zap.String("student_id", student.ID), zap.Error(err))
	}
	return rows, nil
}

// Export renders the ledger of an owned assignment as CSV or PDF.
func (s *GradebookService) Export(ctx context.Context, actor models.Actor, assignmentID, format string) (*dto.ExportFile, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	assignment, err := s.ownedAssignment(ctx, actor, assignmentID)
	if err != nil {
		return nil, err
	}
	rows, err := s.entries.ListByAssignment(ctx, assignment.ID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load gradebook")
	}

	content, err := renderer.Render(gradebookDataset(assignment, rows))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render gradebook")
	}
	return &dto.ExportFile{
		Filename:    fmt.Sprintf("gradebook-%s.%s", slug(assignment.Title, assignment.ID), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Content:     content,
	}, nil
}

func (s *GradebookService) ownedAssignment(ctx context.Context, actor models.Actor, assignmentID string) (*models.Assignment, error) {
	assignment, err := s.assignments.FindOwned(ctx, assignmentID, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Persistence(err, "failed to load assignment")
	}
	return assignment, nil
}

var gradebookHeaders = []string{"Student", "Score", "Max", "Percentage", "Letter", "Published"}

func gradebookDataset(assignment *models.Assignment, rows []models.GradebookRow) export.Dataset {
	data := export.Dataset{
		Title:   assignment.Title,
		Headers: gradebookHeaders,
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	published := 0
	for _, row := range rows {
		if row.Published {
			published++
		}
		data.Rows = append(data.Rows, map[string]string{
			"Student":    row.StudentName,
			"Score":      formatOptional(row.Score),
			"Max":        strconv.FormatFloat(row.MaxScore, 'f', -1, 64),
			"Percentage": formatOptional(row.Percentage),
			"Letter":     derefString(row.GradeLetter),
			"Published":  strconv.FormatBool(row.Published),
		})
	}
	data.Footer = []string{fmt.Sprintf("%d entries, %d published", len(rows), published)}
	return data
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func slug(title, fallback string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
				b.WriteByte('-')
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return fallback
	}
	return out
}

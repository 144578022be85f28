package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/pkg/database"
)

// GradingTx is the set of reads and writes a grade mutation performs atomically.
type GradingTx interface {
	FindSubmissionForInstructor(ctx context.Context, submissionID, instructorID string) (*models.ScopedSubmission, error)
	UpdateGrade(ctx context.Context, update models.GradeUpdate) (*models.Submission, error)
	UpsertGradebook(ctx context.Context, entry *models.GradebookEntry) error
	LockLatestGraded(ctx context.Context, assignmentID, studentID string) (*models.ScopedSubmission, error)
	LockGradebookEntry(ctx context.Context, assignmentID, studentID string) (*models.GradebookEntry, error)
}

// Store opens grading transactions over PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// NewStore constructs the store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn in a single transaction. Any error rolls back both the
// submission row and the gradebook entry.
func (s *Store) WithinTx(ctx context.Context, fn func(tx GradingTx) error) error {
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(&gradingTx{
			submissions: NewSubmissionRepository(tx),
			gradebook:   NewGradebookRepository(tx),
		})
	})
}

type gradingTx struct {
	submissions *SubmissionRepository
	gradebook   *GradebookRepository
}

func (t *gradingTx) FindSubmissionForInstructor(ctx context.Context, submissionID, instructorID string) (*models.ScopedSubmission, error) {
	return t.submissions.FindForInstructor(ctx, submissionID, instructorID)
}

func (t *gradingTx) UpdateGrade(ctx context.Context, update models.GradeUpdate) (*models.Submission, error) {
	return t.submissions.UpdateGrade(ctx, update)
}

func (t *gradingTx) UpsertGradebook(ctx context.Context, entry *models.GradebookEntry) error {
	return t.gradebook.Upsert(ctx, entry)
}

func (t *gradingTx) LockLatestGraded(ctx context.Context, assignmentID, studentID string) (*models.ScopedSubmission, error) {
	return t.submissions.LockLatestGraded(ctx, assignmentID, studentID)
}

func (t *gradingTx) LockGradebookEntry(ctx context.Context, assignmentID, studentID string) (*models.GradebookEntry, error) {
	return t.gradebook.LockEntry(ctx, assignmentID, studentID)
}

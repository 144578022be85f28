package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ErrStaleVersion is returned when a grade write loses the version race.
var ErrStaleVersion = errors.New("submission version is stale")

const submissionColumns = `s.id, s.assignment_id, s.student_id, s.submitted_at, s.submission_text, s.file_refs, s.grade, s.feedback, s.status, s.is_late, s.graded_by, s.graded_at, s.version, s.created_at, s.updated_at`

// SubmissionRepository persists submissions and their grades.
type SubmissionRepository struct {
	db sqlx.ExtContext
}

// NewSubmissionRepository constructs the repository. Pass a *sqlx.Tx to scope
// every call to a transaction.
func NewSubmissionRepository(db sqlx.ExtContext) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// FindForInstructor loads a submission only when its assignment is owned by
// the instructor.
func (r *SubmissionRepository) FindForInstructor(ctx context.Context, id, instructorID string) (*models.ScopedSubmission, error) {
	query := `SELECT ` + submissionColumns + `, a.total_points, a.instructor_id
FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
WHERE s.id = $1 AND a.instructor_id = $2`
	var submission models.ScopedSubmission
	if err := sqlx.GetContext(ctx, r.db, &submission, query, id, instructorID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// NextPending returns the earliest turned-in submission that has no grade yet.
func (r *SubmissionRepository) NextPending(ctx context.Context, assignmentID string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + `
FROM submissions s
WHERE s.assignment_id = $1 AND s.submitted_at IS NOT NULL AND s.graded_at IS NULL
ORDER BY s.submitted_at ASC, s.id ASC
LIMIT 1`
	var submission models.Submission
	if err := sqlx.GetContext(ctx, r.db, &submission, query, assignmentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// Siblings lists the other submissions of an assignment for queue navigation.
func (r *SubmissionRepository) Siblings(ctx context.Context, assignmentID, excludeID string) ([]models.SubmissionSummary, error) {
	const query = `SELECT s.id, s.student_id, COALESCE(st.full_name, '') AS student_name, s.status, s.is_late,
	(s.graded_at IS NOT NULL) AS graded, s.submitted_at
FROM submissions s
LEFT JOIN students st ON st.id = s.student_id
WHERE s.assignment_id = $1 AND s.id <> $2
ORDER BY s.submitted_at ASC NULLS LAST, student_name ASC`
	var items []models.SubmissionSummary
	if err := sqlx.SelectContext(ctx, r.db, &items, query, assignmentID, excludeID); err != nil {
		return nil, fmt.Errorf("list sibling submissions: %w", err)
	}
	return items, nil
}

// LatestGraded returns the most recently graded submission per student.
func (r *SubmissionRepository) LatestGraded(ctx context.Context, assignmentID string) ([]models.ScopedSubmission, error) {
	query := `SELECT DISTINCT ON (s.student_id) ` + submissionColumns + `, a.total_points, a.instructor_id
FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
WHERE s.assignment_id = $1 AND s.graded_at IS NOT NULL
ORDER BY s.student_id, s.graded_at DESC`
	var items []models.ScopedSubmission
	if err := sqlx.SelectContext(ctx, r.db, &items, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list graded submissions: %w", err)
	}
	return items, nil
}

// LockLatestGraded returns the most recently graded submission of one student
// and holds its row lock until the transaction ends.
func (r *SubmissionRepository) LockLatestGraded(ctx context.Context, assignmentID, studentID string) (*models.ScopedSubmission, error) {
	query := `SELECT ` + submissionColumns + `, a.total_points, a.instructor_id
FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
WHERE s.assignment_id = $1 AND s.student_id = $2 AND s.graded_at IS NOT NULL
ORDER BY s.graded_at DESC
LIMIT 1
FOR UPDATE OF s`
	var submission models.ScopedSubmission
	if err := sqlx.GetContext(ctx, r.db, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// UpdateGrade writes the grade columns when the stored version still matches
// and returns the refreshed row.
func (r *SubmissionRepository) UpdateGrade(ctx context.Context, update models.GradeUpdate) (*models.Submission, error) {
	query := `UPDATE submissions s
SET grade = $1, feedback = $2, status = $3, graded_by = $4, graded_at = $5, version = s.version + 1, updated_at = $5
WHERE s.id = $6 AND s.version = $7
RETURNING ` + submissionColumns
	var submission models.Submission
	err := sqlx.GetContext(ctx, r.db, &submission, query,
		update.Grade,
		update.Feedback,
		update.Status,
		update.GradedBy,
		update.GradedAt,
		update.SubmissionID,
		update.ExpectedVersion,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStaleVersion
	}
	if err != nil {
		return nil, fmt.Errorf("update submission grade: %w", err)
	}
	return &submission, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

const gradebookRowSelect = `SELECT g.id, g.assignment_id, g.student_id, g.score, g.max_score, g.percentage, g.grade_letter, g.published, g.created_at, g.updated_at,
	a.title AS assignment_title, COALESCE(st.full_name, '') AS student_name
FROM gradebook g
JOIN assignments a ON a.id = g.assignment_id
LEFT JOIN students st ON st.id = g.student_id`

// GradebookRepository persists the per (assignment, student) ledger.
type GradebookRepository struct {
	db sqlx.ExtContext
}

// NewGradebookRepository constructs the repository.
func NewGradebookRepository(db sqlx.ExtContext) *GradebookRepository {
	return &GradebookRepository{db: db}
}

// Upsert inserts or overwrites the entry keyed by (assignment_id, student_id).
// updated_at only moves when a stored value actually changes, so replaying the
// same entry leaves the row untouched.
func (r *GradebookRepository) Upsert(ctx context.Context, entry *models.GradebookEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	const query = `INSERT INTO gradebook (id, assignment_id, student_id, score, max_score, percentage, grade_letter, published, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (assignment_id, student_id)
DO UPDATE SET score = EXCLUDED.score, max_score = EXCLUDED.max_score, percentage = EXCLUDED.percentage,
	grade_letter = EXCLUDED.grade_letter, published = EXCLUDED.published,
	updated_at = CASE
		WHEN (gradebook.score, gradebook.max_score, gradebook.published) IS DISTINCT FROM (EXCLUDED.score, EXCLUDED.max_score, EXCLUDED.published)
		THEN EXCLUDED.updated_at
		ELSE gradebook.updated_at
	END
RETURNING id, created_at, updated_at`

	var stored struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := sqlx.GetContext(ctx, r.db, &stored, query,
		entry.ID,
		entry.AssignmentID,
		entry.StudentID,
		entry.Score,
		entry.MaxScore,
		entry.Percentage,
		entry.GradeLetter,
		entry.Published,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert gradebook entry: %w", err)
	}
	entry.ID = stored.ID
	entry.CreatedAt = stored.CreatedAt
	entry.UpdatedAt = stored.UpdatedAt
	return nil
}

// LockEntry returns the stored entry of (assignmentID, studentID) under a row lock.
func (r *GradebookRepository) LockEntry(ctx context.Context, assignmentID, studentID string) (*models.GradebookEntry, error) {
	const query = `SELECT id, assignment_id, student_id, score, max_score, percentage, grade_letter, published, created_at, updated_at
FROM gradebook
WHERE assignment_id = $1 AND student_id = $2
FOR UPDATE`
	var entry models.GradebookEntry
	if err := sqlx.GetContext(ctx, r.db, &entry, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByAssignment returns every ledger row of an assignment ordered by student name.
func (r *GradebookRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.GradebookRow, error) {
	query := gradebookRowSelect + `
WHERE g.assignment_id = $1
ORDER BY student_name ASC, g.student_id ASC`
	var rows []models.GradebookRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list gradebook by assignment: %w", err)
	}
	return rows, nil
}

// ListPublishedByStudent returns the published entries visible to a student.
func (r *GradebookRepository) ListPublishedByStudent(ctx context.Context, studentID string) ([]models.GradebookRow, error) {
	query := gradebookRowSelect + `
WHERE g.student_id = $1 AND g.published = TRUE
ORDER BY a.due_at DESC, g.assignment_id ASC`
	var rows []models.GradebookRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list student gradebook: %w", err)
	}
	return rows, nil
}

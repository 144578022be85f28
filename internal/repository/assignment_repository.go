package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

const assignmentColumns = `id, class_id, instructor_id, title, due_at, total_points, submission_type, max_files, published, created_at, updated_at`

// AssignmentRepository reads assignments for ownership checks.
type AssignmentRepository struct {
	db sqlx.ExtContext
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db sqlx.ExtContext) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// FindOwned returns the assignment when it belongs to the instructor. Assignments
// owned by someone else surface as sql.ErrNoRows.
func (r *AssignmentRepository) FindOwned(ctx context.Context, id, instructorID string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1 AND instructor_id = $2`
	var assignment models.Assignment
	if err := sqlx.GetContext(ctx, r.db, &assignment, query, id, instructorID); err != nil {
		return nil, err
	}
	return &assignment, nil
}


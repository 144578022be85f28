package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

var submissionRowColumns = []string{"id", "assignment_id", "student_id", "submitted_at", "submission_text", "file_refs", "grade", "feedback", "status", "is_late", "graded_by", "graded_at", "version", "created_at", "updated_at"}

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func fixedTime() time.Time {
	return time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
}

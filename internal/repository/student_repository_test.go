package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentRepositoryFindByUserID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := fixedTime()
	rows := sqlmock.NewRows([]string{"id", "user_id", "nis", "full_name", "active", "created_at", "updated_at"}).
		AddRow("stu-1", "user-9", "2024001", "Ani", true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM students WHERE user_id = $1 AND active = TRUE`)).
		WithArgs("user-9").
		WillReturnRows(rows)

	student, err := repo.FindByUserID(context.Background(), "user-9")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", student.ID)
	require.NotNil(t, student.UserID)
	assert.Equal(t, "user-9", *student.UserID)
}

func TestStudentRepositoryFindByUserIDMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM students`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByUserID(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

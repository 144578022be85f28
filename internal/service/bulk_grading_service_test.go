package service

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

func newBulkFixture(cfg BulkGradingConfig) (*gradingFixture, *BulkGradingService) {
	fx := newGradingFixture(nil)
	return fx, NewBulkGradingService(fx.grading, nil, nil, nil, cfg)
}

func TestBulkGradeNeverClampsScores(t *testing.T) {
	fx, bulk := newBulkFixture(BulkGradingConfig{Concurrency: 2})
	fx.db.addAssignment("asg-100", "inst-1", 100, baseTime)
	fx.db.addAssignment("asg-50", "inst-1", 50, baseTime)
	fx.db.addSubmission("id-a", "asg-100", "stu-1", ptrTime(baseTime))
	fx.db.addSubmission("id-b", "asg-50", "stu-2", ptrTime(baseTime))

	result, err := bulk.BulkGrade(context.Background(), instructor, dto.BulkGradeRequest{
		SubmissionIDs: []string{"id-a", "id-b"},
		Score:         ptrFloat(75),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpdatedCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "id-b", result.Failures[0].SubmissionID)
	assert.Equal(t, appErrors.ErrValidation.Code, result.Failures[0].Code)
	assert.Equal(t, 50.0, result.Failures[0].Details["max"])

	assert.Equal(t, 75.0, *fx.db.submission("id-a").Grade)
	assert.Equal(t, models.SubmissionStatusGraded, fx.db.submission("id-a").Status)
	assert.Nil(t, fx.db.submission("id-b").Grade)
	_, ok := fx.db.entry("asg-50", "stu-2")
	assert.False(t, ok)
}

func TestBulkGradeReportsEachFailureInInputOrder(t *testing.T) {
	fx, bulk := newBulkFixture(BulkGradingConfig{Concurrency: 4})
	fx.db.addAssignment("asg-1", "inst-1", 100, baseTime)
	fx.db.addAssignment("asg-foreign", "inst-2", 100, baseTime)
	fx.db.addSubmission("ok-1", "asg-1", "stu-1", ptrTime(baseTime))
	fx.db.addSubmission("unsubmitted", "asg-1", "stu-2", nil)
	fx.db.addSubmission("foreign", "asg-foreign", "stu-3", ptrTime(baseTime))
	fx.db.addSubmission("ok-2", "asg-1", "stu-4", ptrTime(baseTime))

	result, err := bulk.BulkGrade(context.Background(), instructor, dto.BulkGradeRequest{
		SubmissionIDs: []string{"ghost", "ok-1", "unsubmitted", "ok-1", "foreign", "ok-2"},
		Score:         ptrFloat(60),
		Status:        models.SubmissionStatusLate,
		Publish:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.UpdatedCount)

	got := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		got = append(got, f.SubmissionID+":"+f.Code)
	}
	assert.Equal(t, []string{"ghost:NOT_FOUND", "unsubmitted:VALIDATION_ERROR", "foreign:NOT_FOUND"}, got)

	assert.Equal(t, models.SubmissionStatusLate, fx.db.submission("ok-2").Status)
	entry, ok := fx.db.entry("asg-1", "stu-4")
	require.True(t, ok)
	assert.True(t, entry.Published)
	assert.Equal(t, "D", *entry.GradeLetter)
}

func TestBulkGradeRejectsOversizedBatches(t *testing.T) {
	_, bulk := newBulkFixture(BulkGradingConfig{Concurrency: 1, MaxItems: 3})
	ids := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		ids = append(ids, fmt.Sprintf("sub-%d", i))
	}

	_, err := bulk.BulkGrade(context.Background(), instructor, dto.BulkGradeRequest{SubmissionIDs: ids, Score: ptrFloat(1)})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, 3, appErrors.FromError(err).Details["max"])
}

func TestBulkGradeValidatesPayload(t *testing.T) {
	_, bulk := newBulkFixture(BulkGradingConfig{})

	_, err := bulk.BulkGrade(context.Background(), instructor, dto.BulkGradeRequest{Score: ptrFloat(1)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = bulk.BulkGrade(context.Background(), instructor, dto.BulkGradeRequest{SubmissionIDs: []string{"a"}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = bulk.BulkGrade(context.Background(), instructor, dto.BulkGradeRequest{SubmissionIDs: []string{"a"}, Score: ptrFloat(1), Status: models.SubmissionStatusSubmitted})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestBulkGradeLargeBatchConcurrently(t *testing.T) {
	fx, bulk := newBulkFixture(BulkGradingConfig{Concurrency: 8})
	fx.db.addAssignment("asg-1", "inst-1", 100, baseTime)
	ids := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("sub-%02d", i)
		fx.db.addSubmission(id, "asg-1", fmt.Sprintf("stu-%02d", i), ptrTime(baseTime.Add(time.Duration(i)*time.Minute)))
		ids = append(ids, id)
	}

	result, err := bulk.BulkGrade(context.Background(), instructor, dto.BulkGradeRequest{SubmissionIDs: ids, Score: ptrFloat(88)})
	require.NoError(t, err)
	assert.Equal(t, 40, result.UpdatedCount)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 40, fx.db.entryCount())
}

func TestBulkGradeBlankIDFailsAlone(t *testing.T) {
	fx, bulk := newBulkFixture(BulkGradingConfig{Concurrency: 2})
	fx.db.addAssignment("asg-1", "inst-1", 100, baseTime)
	fx.db.addSubmission("id-a", "asg-1", "stu-1", ptrTime(baseTime))

	result, err := bulk.BulkGrade(context.Background(), instructor, dto.BulkGradeRequest{
		SubmissionIDs: []string{"id-a", ""},
		Score:         ptrFloat(75),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpdatedCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "", result.Failures[0].SubmissionID)
	assert.Equal(t, appErrors.ErrNotFound.Code, result.Failures[0].Code)
	assert.Equal(t, 75.0, *fx.db.submission("id-a").Grade)
}

func TestBulkGradeRejectsNonFiniteScorePerItem(t *testing.T) {
	fx, bulk := newBulkFixture(BulkGradingConfig{Concurrency: 2})
	fx.db.addAssignment("asg-1", "inst-1", 100, baseTime)
	fx.db.addSubmission("id-a", "asg-1", "stu-1", ptrTime(baseTime))

	result, err := bulk.BulkGrade(context.Background(), instructor, dto.BulkGradeRequest{
		SubmissionIDs: []string{"id-a"},
		Score:         ptrFloat(math.NaN()),
	})
	require.NoError(t, err)
	assert.Zero(t, result.UpdatedCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, appErrors.ErrValidation.Code, result.Failures[0].Code)
	assert.Nil(t, fx.db.submission("id-a").Grade)
	assert.Zero(t, fx.db.entryCount())
}

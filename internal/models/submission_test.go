package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkSubmittedLateFlag(t *testing.T) {
	due := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	assignment := Assignment{ID: "asg-1", DueAt: due, TotalPoints: 100}

	var late Submission
	late.MarkSubmitted(due.Add(time.Second), assignment)
	require.NotNil(t, late.SubmittedAt)
	assert.True(t, late.IsLate)
	assert.Equal(t, SubmissionStatusLate, late.Status)

	var early Submission
	early.MarkSubmitted(due.Add(-time.Second), assignment)
	assert.False(t, early.IsLate)
	assert.Equal(t, SubmissionStatusSubmitted, early.Status)

	var onTime Submission
	onTime.MarkSubmitted(due, assignment)
	assert.False(t, onTime.IsLate)
}

func TestSubmissionGradableAndPending(t *testing.T) {
	var missing Submission
	assert.False(t, missing.Gradable())
	assert.False(t, missing.Pending())

	now := time.Now()
	submitted := Submission{SubmittedAt: &now}
	assert.True(t, submitted.Gradable())
	assert.True(t, submitted.Pending())

	submitted.GradedAt = &now
	assert.False(t, submitted.Pending())
}

func TestAssignmentValidateTotalPoints(t *testing.T) {
	assert.NoError(t, Assignment{TotalPoints: 1000}.ValidateTotalPoints())
	assert.Error(t, Assignment{TotalPoints: 0}.ValidateTotalPoints())
	assert.Error(t, Assignment{TotalPoints: 1000.5}.ValidateTotalPoints())
}

func TestGradingStatus(t *testing.T) {
	assert.True(t, SubmissionStatusGraded.GradingStatus())
	assert.True(t, SubmissionStatusLate.GradingStatus())
	assert.False(t, SubmissionStatusSubmitted.GradingStatus())
	assert.False(t, SubmissionStatusMissing.GradingStatus())
}

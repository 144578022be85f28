package dto

import "github.com/noah-isme/sma-gradebook-api/internal/models"

// GradeSubmissionRequest captures POST /submissions/:id/grade payload. A nil
// score clears a previous grade.
type GradeSubmissionRequest struct {
	Score    *float64                `json:"score"`
	Feedback *string                 `json:"feedback" validate:"omitempty,max=10000"`
	Status   models.SubmissionStatus `json:"status" validate:"required,oneof=graded late"`
	Publish  bool                    `json:"publish"`
	Version  *int                    `json:"version" validate:"omitempty,gte=0"`
}

// GradeNextResponse is returned by the save-and-grade-next flow.
type GradeNextResponse struct {
	Submission *models.Submission `json:"submission"`
	Next       *models.Submission `json:"next,omitempty"`
	AllGraded  bool               `json:"all_graded"`
}

// NextUngradedResponse reports the next pending submission of an assignment.
type NextUngradedResponse struct {
	Submission *models.Submission `json:"submission,omitempty"`
	AllGraded  bool               `json:"all_graded"`
}

// BulkGradeRequest applies one score to a set of submissions.
type BulkGradeRequest struct {
	SubmissionIDs []string                `json:"submission_ids" validate:"required,min=1"`
	Score         *float64                `json:"score" validate:"required"`
	Status        models.SubmissionStatus `json:"status" validate:"omitempty,oneof=graded late"`
	Feedback      *string                 `json:"feedback" validate:"omitempty,max=10000"`
	Publish       bool                    `json:"publish"`
}

// BulkGradeFailure reports why one submission was not graded.
type BulkGradeFailure struct {
	SubmissionID string                 `json:"submission_id"`
	Code         string                 `json:"code"`
	Reason       string                 `json:"reason"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// BulkGradeResult aggregates a bulk grading run. Failures keep input order.
type BulkGradeResult struct {
	UpdatedCount int                `json:"updated_count"`
	Failures     []BulkGradeFailure `json:"failures"`
}

// ResyncJobResponse is returned after enqueueing a gradebook replay.
type ResyncJobResponse struct {
	JobID        string `json:"job_id"`
	AssignmentID string `json:"assignment_id"`
	Status       string `json:"status"`
}

// ResyncResult summarises a completed gradebook replay.
type ResyncResult struct {
	AssignmentID string `json:"assignment_id"`
	Replayed     int    `json:"replayed"`
}

// ExportFile is a rendered gradebook sheet ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

package models

import "time"

// SubmissionStatus is the lifecycle bucket of a submission.
type SubmissionStatus string

const (
	SubmissionStatusMissing   SubmissionStatus = "missing"
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusLate      SubmissionStatus = "late"
	SubmissionStatusGraded    SubmissionStatus = "graded"
)

// GradingStatus reports whether the status is an accepted target of grading.
func (s SubmissionStatus) GradingStatus() bool {
	return s == SubmissionStatusGraded || s == SubmissionStatusLate
}

// Submission is one attempt of a student at an assignment.
type Submission struct {
	ID             string           `db:"id" json:"id"`
	AssignmentID   string           `db:"assignment_id" json:"assignment_id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	SubmittedAt    *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	SubmissionText *string          `db:"submission_text" json:"submission_text,omitempty"`
	FileRefs       StringList       `db:"file_refs" json:"file_refs"`
	Grade          *float64         `db:"grade" json:"grade,omitempty"`
	Feedback       *string          `db:"feedback" json:"feedback,omitempty"`
	Status         SubmissionStatus `db:"status" json:"status"`
	IsLate         bool             `db:"is_late" json:"is_late"`
	GradedBy       *string          `db:"graded_by" json:"graded_by,omitempty"`
	GradedAt       *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
	Version        int              `db:"version" json:"version"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// MarkSubmitted records the turn-in instant and fixes the late flag. This is
// the only place lateness is computed; grading reads the stored flag.
func (s *Submission) MarkSubmitted(at time.Time, assignment Assignment) {
	ts := at.UTC()
	s.SubmittedAt = &ts
	s.IsLate = assignment.IsLateAt(ts)
	if s.IsLate {
		s.Status = SubmissionStatusLate
	} else {
		s.Status = SubmissionStatusSubmitted
	}
}

// Gradable reports whether the student has turned anything in.
func (s Submission) Gradable() bool {
	return s.SubmittedAt != nil
}

// Pending reports whether the submission still waits for an instructor.
func (s Submission) Pending() bool {
	return s.SubmittedAt != nil && s.GradedAt == nil
}

// ScopedSubmission is a submission loaded together with the owning
// assignment's grading bounds.
type ScopedSubmission struct {
	Submission
	TotalPoints  float64 `db:"total_points" json:"-"`
	InstructorID string  `db:"instructor_id" json:"-"`
}

// SubmissionSummary is the cross-student view used while navigating a grading
// queue. It carries no feedback or grade values.
type SubmissionSummary struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	StudentName string           `db:"student_name" json:"student_name"`
	Status      SubmissionStatus `db:"status" json:"status"`
	IsLate      bool             `db:"is_late" json:"is_late"`
	Graded      bool             `db:"graded" json:"graded"`
	SubmittedAt *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
}

// GradeUpdate is the set of columns the grading engine writes.
type GradeUpdate struct {
	SubmissionID    string
	ExpectedVersion int
	Grade           *float64
	Feedback        *string
	Status          SubmissionStatus
	GradedBy        string
	GradedAt        time.Time
}

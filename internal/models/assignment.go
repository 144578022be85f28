package models

import (
	"fmt"
	"time"
)

// MaxTotalPoints caps the points an assignment can be worth.
const MaxTotalPoints = 1000

// SubmissionType enumerates what a student may turn in.
type SubmissionType string

const (
	SubmissionTypeFile SubmissionType = "file"
	SubmissionTypeText SubmissionType = "text"
	SubmissionTypeBoth SubmissionType = "both"
)

// Assignment is a gradable piece of work owned by an instructor.
type Assignment struct {
	ID             string         `db:"id" json:"id"`
	ClassID        string         `db:"class_id" json:"class_id"`
	InstructorID   string         `db:"instructor_id" json:"instructor_id"`
	Title          string         `db:"title" json:"title"`
	DueAt          time.Time      `db:"due_at" json:"due_at"`
	TotalPoints    float64        `db:"total_points" json:"total_points"`
	SubmissionType SubmissionType `db:"submission_type" json:"submission_type"`
	MaxFiles       int            `db:"max_files" json:"max_files"`
	Published      bool           `db:"published" json:"published"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// ValidateTotalPoints enforces 0 < total_points <= MaxTotalPoints.
func (a Assignment) ValidateTotalPoints() error {
	if a.TotalPoints <= 0 || a.TotalPoints > MaxTotalPoints {
		return fmt.Errorf("assignment %s total points %.2f outside (0, %d]", a.ID, a.TotalPoints, MaxTotalPoints)
	}
	return nil
}

// IsLateAt reports whether a submission at the given instant misses the deadline.
func (a Assignment) IsLateAt(submittedAt time.Time) bool {
	return submittedAt.After(a.DueAt)
}

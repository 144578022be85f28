package models

import "time"

// GradebookEntry is the denormalised ledger row read by transcripts and
// dashboards. There is at most one row per (assignment, student).
type GradebookEntry struct {
	ID           string    `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Score        *float64  `db:"score" json:"score"`
	MaxScore     float64   `db:"max_score" json:"max_score"`
	Percentage   *float64  `db:"percentage" json:"percentage"`
	GradeLetter  *string   `db:"grade_letter" json:"grade_letter"`
	Published    bool      `db:"published" json:"published"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// GradebookRow enriches ledger entries for listings and exports.
type GradebookRow struct {
	GradebookEntry
	AssignmentTitle string `db:"assignment_title" json:"assignment_title"`
	StudentName     string `db:"student_name" json:"student_name"`
}

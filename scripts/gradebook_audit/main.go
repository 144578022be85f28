package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	"github.com/noah-isme/sma-gradebook-api/pkg/config"
	"github.com/noah-isme/sma-gradebook-api/pkg/database"
)

type driftKind string

const (
	driftMissing  driftKind = "MISSING"
	driftScore    driftKind = "SCORE"
	driftDerived  driftKind = "DERIVED"
	driftOrphaned driftKind = "ORPHANED"
)

type drift struct {
	AssignmentID string
	StudentID    string
	Kind         driftKind
	Detail       string
}

func main() {
	var (
		assignments string
		timeout     time.Duration
	)

	flag.StringVar(&assignments, "assignments", "", "Comma separated assignment ids to audit")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall audit timeout")
	flag.Parse()

	ids := splitIDs(assignments)
	if len(ids) == 0 {
		log.Fatal("at least one assignment id is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	submissions := repository.NewSubmissionRepository(db)
	gradebook := repository.NewGradebookRepository(db)

	var drifts []drift
	for _, id := range ids {
		graded, err := submissions.LatestGraded(ctx, id)
		if err != nil {
			log.Fatalf("load graded submissions of %s: %v", id, err)
		}
		rows, err := gradebook.ListByAssignment(ctx, id)
		if err != nil {
			log.Fatalf("load gradebook of %s: %v", id, err)
		}
		drifts = append(drifts, compareLedger(id, graded, rows)...)
	}

	printReport(ids, drifts)
	if len(drifts) > 0 {
		os.Exit(1)
	}
}

// compareLedger checks every graded submission against its gradebook row.
// The publish flag is not compared because it is set per grading call.
func compareLedger(assignmentID string, graded []models.ScopedSubmission, rows []models.GradebookRow) []drift {
	byStudent := make(map[string]models.GradebookEntry, len(rows))
	for _, row := range rows {
		byStudent[row.StudentID] = row.GradebookEntry
	}

	var out []drift
	seen := make(map[string]struct{}, len(graded))
	for _, sub := range graded {
		seen[sub.StudentID] = struct{}{}
		entry, ok := byStudent[sub.StudentID]
		if !ok {
			out = append(out, drift{assignmentID, sub.StudentID, driftMissing, "no gradebook row for graded submission " + sub.ID})
			continue
		}
		// max_score is fixed at grading time, so derived values are checked against it.
		want, err := service.BuildEntry(assignmentID, sub.StudentID, sub.Grade, entry.MaxScore, entry.Published)
		if err != nil {
			out = append(out, drift{assignmentID, sub.StudentID, driftScore, err.Error()})
			continue
		}
		if !sameValue(want.Score, entry.Score) {
			out = append(out, drift{assignmentID, sub.StudentID, driftScore,
				fmt.Sprintf("ledger score %s, submission %s", show(entry.Score), show(want.Score))})
			continue
		}
		if !sameValue(want.Percentage, entry.Percentage) || showLetter(want.GradeLetter) != showLetter(entry.GradeLetter) {
			out = append(out, drift{assignmentID, sub.StudentID, driftDerived,
				fmt.Sprintf("ledger %s%% %s, expected %s%% %s", show(entry.Percentage), showLetter(entry.GradeLetter), show(want.Percentage), showLetter(want.GradeLetter))})
		}
	}

	for studentID := range byStudent {
		if _, ok := seen[studentID]; !ok {
			out = append(out, drift{assignmentID, studentID, driftOrphaned, "gradebook row without a graded submission"})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AssignmentID != out[j].AssignmentID {
			return out[i].AssignmentID < out[j].AssignmentID
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}

func sameValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func show(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

func showLetter(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

func printReport(ids []string, drifts []drift) {
	fmt.Println("Gradebook Audit Report")
	fmt.Println("======================")
	fmt.Printf("Assignments audited: %s\n", strings.Join(ids, ", "))
	for _, d := range drifts {
		fmt.Printf("[%s] assignment=%s student=%s\n", d.Kind, d.AssignmentID, d.StudentID)
		fmt.Printf("  %s\n", d.Detail)
	}
	fmt.Printf("Drifted rows: %d\n", len(drifts))
}

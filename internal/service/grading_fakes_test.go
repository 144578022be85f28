package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
)

var baseTime = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

// fakeSchoolDB is an in-memory stand-in for the grading tables. It implements
// every repository interface the grading services consume and restores its
// state when a transaction callback fails.
type fakeSchoolDB struct {
	mu          sync.Mutex
	assignments map[string]models.Assignment
	submissions map[string]models.Submission
	entries     map[string]models.GradebookEntry
	students    map[string]models.Student
	names       map[string]string

	upsertErr       error
	updateErr       error
	afterListGraded func()
	publishedReads  int
	assignmentReads int
}

func newFakeSchoolDB() *fakeSchoolDB {
	return &fakeSchoolDB{
		assignments: map[string]models.Assignment{},
		submissions: map[string]models.Submission{},
		entries:     map[string]models.GradebookEntry{},
		students:    map[string]models.Student{},
		names:       map[string]string{},
	}
}

func entryKey(assignmentID, studentID string) string {
	return assignmentID + "/" + studentID
}

func (f *fakeSchoolDB) addAssignment(id, instructorID string, totalPoints float64, dueAt time.Time) models.Assignment {
	a := models.Assignment{
		ID:             id,
		ClassID:        "class-1",
		InstructorID:   instructorID,
		Title:          "Assignment " + id,
		DueAt:          dueAt,
		TotalPoints:    totalPoints,
		SubmissionType: models.SubmissionTypeText,
		Published:      true,
	}
	f.assignments[id] = a
	return a
}

func (f *fakeSchoolDB) addSubmission(id, assignmentID, studentID string, submittedAt *time.Time) models.Submission {
	sub := models.Submission{
		ID:           id,
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Status:       models.SubmissionStatusMissing,
		Version:      1,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
	if submittedAt != nil {
		sub.MarkSubmitted(*submittedAt, f.assignments[assignmentID])
	}
	f.submissions[id] = sub
	return sub
}

func (f *fakeSchoolDB) submission(id string) models.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submissions[id]
}

func (f *fakeSchoolDB) entry(assignmentID, studentID string) (models.GradebookEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[entryKey(assignmentID, studentID)]
	return e, ok
}

func (f *fakeSchoolDB) entryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// WithinTx serialises transactions and rolls back on error.
func (f *fakeSchoolDB) WithinTx(ctx context.Context, fn func(tx repository.GradingTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs := make(map[string]models.Submission, len(f.submissions))
	for k, v := range f.submissions {
		subs[k] = v
	}
	entries := make(map[string]models.GradebookEntry, len(f.entries))
	for k, v := range f.entries {
		entries[k] = v
	}

	if err := fn(fakeTx{db: f}); err != nil {
		f.submissions = subs
		f.entries = entries
		return err
	}
	return nil
}

type fakeTx struct {
	db *fakeSchoolDB
}

func (t fakeTx) FindSubmissionForInstructor(ctx context.Context, submissionID, instructorID string) (*models.ScopedSubmission, error) {
	return t.db.findScoped(submissionID, instructorID)
}

func (t fakeTx) UpdateGrade(ctx context.Context, update models.GradeUpdate) (*models.Submission, error) {
	return t.db.updateGrade(update)
}

func (t fakeTx) UpsertGradebook(ctx context.Context, entry *models.GradebookEntry) error {
	return t.db.upsert(entry)
}

func (t fakeTx) LockLatestGraded(ctx context.Context, assignmentID, studentID string) (*models.ScopedSubmission, error) {
	sub, ok := t.db.latestGraded(assignmentID)[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	a := t.db.assignments[assignmentID]
	return &models.ScopedSubmission{Submission: sub, TotalPoints: a.TotalPoints, InstructorID: a.InstructorID}, nil
}

func (t fakeTx) LockGradebookEntry(ctx context.Context, assignmentID, studentID string) (*models.GradebookEntry, error) {
	e, ok := t.db.entries[entryKey(assignmentID, studentID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (f *fakeSchoolDB) findScoped(submissionID, instructorID string) (*models.ScopedSubmission, error) {
	sub, ok := f.submissions[submissionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	a, ok := f.assignments[sub.AssignmentID]
	if !ok || a.InstructorID != instructorID {
		return nil, sql.ErrNoRows
	}
	return &models.ScopedSubmission{Submission: sub, TotalPoints: a.TotalPoints, InstructorID: a.InstructorID}, nil
}

func (f *fakeSchoolDB) updateGrade(update models.GradeUpdate) (*models.Submission, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	sub, ok := f.submissions[update.SubmissionID]
	if !ok || sub.Version != update.ExpectedVersion {
		return nil, repository.ErrStaleVersion
	}
	gradedBy := update.GradedBy
	gradedAt := update.GradedAt
	sub.Grade = update.Grade
	sub.Feedback = update.Feedback
	sub.Status = update.Status
	sub.GradedBy = &gradedBy
	sub.GradedAt = &gradedAt
	sub.Version++
	sub.UpdatedAt = gradedAt
	f.submissions[sub.ID] = sub
	return &sub, nil
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeSchoolDB) upsert(entry *models.GradebookEntry) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	key := entryKey(entry.AssignmentID, entry.StudentID)
	now := time.Now().UTC()
	stored, ok := f.entries[key]
	if !ok {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.CreatedAt = now
		entry.UpdatedAt = now
		f.entries[key] = *entry
		return nil
	}
	changed := !sameFloat(stored.Score, entry.Score) || stored.MaxScore != entry.MaxScore || stored.Published != entry.Published
	entry.ID = stored.ID
	entry.CreatedAt = stored.CreatedAt
	entry.UpdatedAt = stored.UpdatedAt
	if changed {
		entry.UpdatedAt = now
	}
	f.entries[key] = *entry
	return nil
}

// Upsert lets the fake serve as the non-transactional gradebook repository.
func (f *fakeSchoolDB) Upsert(ctx context.Context, entry *models.GradebookEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsert(entry)
}

func (f *fakeSchoolDB) rows(match func(models.GradebookEntry) bool) []models.GradebookRow {
	var rows []models.GradebookRow
	for _, e := range f.entries {
		if !match(e) {
			continue
		}
		rows = append(rows, models.GradebookRow{
			GradebookEntry:  e,
			AssignmentTitle: f.assignments[e.AssignmentID].Title,
			StudentName:     f.names[e.StudentID],
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StudentName != rows[j].StudentName {
			return rows[i].StudentName < rows[j].StudentName
		}
		return rows[i].AssignmentID < rows[j].AssignmentID
	})
	return rows
}

func (f *fakeSchoolDB) ListByAssignment(ctx context.Context, assignmentID string) ([]models.GradebookRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows(func(e models.GradebookEntry) bool { return e.AssignmentID == assignmentID }), nil
}

func (f *fakeSchoolDB) ListPublishedByStudent(ctx context.Context, studentID string) ([]models.GradebookRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishedReads++
	return f.rows(func(e models.GradebookEntry) bool { return e.StudentID == studentID && e.Published }), nil
}

func (f *fakeSchoolDB) latestGraded(assignmentID string) map[string]models.Submission {
	latest := map[string]models.Submission{}
	for _, sub := range f.submissions {
		if sub.AssignmentID != assignmentID || sub.GradedAt == nil {
			continue
		}
		if cur, ok := latest[sub.StudentID]; ok && !sub.GradedAt.After(*cur.GradedAt) {
			continue
		}
		latest[sub.StudentID] = sub
	}
	return latest
}

// LatestGraded runs afterListGraded once the listing is taken, outside the
// lock, so tests can commit a grade between the listing and a replay.
func (f *fakeSchoolDB) LatestGraded(ctx context.Context, assignmentID string) ([]models.ScopedSubmission, error) {
	f.mu.Lock()
	latest := f.latestGraded(assignmentID)
	a := f.assignments[assignmentID]
	out := make([]models.ScopedSubmission, 0, len(latest))
	for _, sub := range latest {
		out = append(out, models.ScopedSubmission{Submission: sub, TotalPoints: a.TotalPoints, InstructorID: a.InstructorID})
	}
	hook := f.afterListGraded
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	if hook != nil {
		hook()
	}
	return out, nil
}

func (f *fakeSchoolDB) FindOwned(ctx context.Context, id, instructorID string) (*models.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignmentReads++
	a, ok := f.assignments[id]
	if !ok || a.InstructorID != instructorID {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (f *fakeSchoolDB) NextPending(ctx context.Context, assignmentID string) (*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Submission
	for _, sub := range f.submissions {
		sub := sub
		if sub.AssignmentID != assignmentID || !sub.Pending() {
			continue
		}
		if best == nil || sub.SubmittedAt.Before(*best.SubmittedAt) ||
			(sub.SubmittedAt.Equal(*best.SubmittedAt) && sub.ID < best.ID) {
			best = &sub
		}
	}
	if best == nil {
		return nil, sql.ErrNoRows
	}
	return best, nil
}

func (f *fakeSchoolDB) Siblings(ctx context.Context, assignmentID, excludeID string) ([]models.SubmissionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SubmissionSummary
	for _, sub := range f.submissions {
		if sub.AssignmentID != assignmentID || sub.ID == excludeID {
			continue
		}
		out = append(out, models.SubmissionSummary{
			ID:          sub.ID,
			StudentID:   sub.StudentID,
			StudentName: f.names[sub.StudentID],
			Status:      sub.Status,
			IsLate:      sub.IsLate,
			Graded:      sub.GradedAt != nil,
			SubmittedAt: sub.SubmittedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].SubmittedAt, out[j].SubmittedAt
		switch {
		case a == nil && b == nil:
			return out[i].StudentName < out[j].StudentName
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return out, nil
}

func (f *fakeSchoolDB) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, st := range f.students {
		if st.UserID != nil && *st.UserID == userID {
			st := st
			return &st, nil
		}
	}
	return nil, sql.ErrNoRows
}

func ptrFloat(v float64) *float64 { return &v }

func ptrString(v string) *string { return &v }

func ptrTime(v time.Time) *time.Time { return &v }

func ptrInt(v int) *int { return &v }

var instructor = models.Actor{UserID: "inst-1", Role: models.RoleTeacher}

type gradingFixture struct {
	db        *fakeSchoolDB
	gradebook *GradebookService
	grading   *GradingService
}

func newGradingFixture(cacheSvc *CacheService) *gradingFixture {
	db := newFakeSchoolDB()
	gradebook := NewGradebookService(db, db, db, db, db, cacheSvc, nil, nil, GradebookConfig{CacheTTL: time.Minute})
	grading := NewGradingService(db, gradebook, nil, nil, nil)
	grading.now = func() time.Time { return baseTime.Add(72 * time.Hour) }
	return &gradingFixture{db: db, gradebook: gradebook, grading: grading}
}

package scheduler

import "github.com/noah-isme/institute-timetable/internal/models"

// ConflictReporter accumulates unplaceable session-units in the order they were given up on.
type ConflictReporter struct {
	conflicts []models.Conflict
}

// NewConflictReporter returns an empty reporter.
func NewConflictReporter() *ConflictReporter {
	return &ConflictReporter{}
}

// Record adds a conflict for the unit.
func (r *ConflictReporter) Record(unit SessionUnit, reason models.ConflictReason, message string) {
	r.conflicts = append(r.conflicts, models.Conflict{
		Seq:        len(r.conflicts),
		SubjectID:  unit.SubjectID,
		BatchID:    unit.BatchID,
		Reason:     reason,
		Occurrence: unit.Occurrence,
		Message:    message,
	})
}

// HasConflicts reports whether any unit was unplaceable.
func (r *ConflictReporter) HasConflicts() bool {
	return len(r.conflicts) > 0
}

// List returns a copy of the recorded conflicts.
func (r *ConflictReporter) List() []models.Conflict {
	return append([]models.Conflict(nil), r.conflicts...)
}

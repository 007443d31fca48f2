package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/institute-timetable/internal/models"
)

// ErrDoubleReservation is returned when a reservation touches a cell that is not free.
var ErrDoubleReservation = errors.New("resource already reserved")

// PreconditionError reports missing or inconsistent reference data for one batch or subject.
type PreconditionError struct {
	Issue models.PreconditionIssue
}

func newPreconditionError(kind models.IssueKind, batchID, subjectID, message string) *PreconditionError {
	return &PreconditionError{Issue: models.PreconditionIssue{Kind: kind, BatchID: batchID, SubjectID: subjectID, Message: message}}
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed (%s): %s", e.Issue.Kind, e.Issue.Message)
}

// ViolationError lists invariant violations found by Verify.
type ViolationError struct {
	Violations []string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%d timetable violations: %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

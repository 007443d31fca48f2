package models

import "time"

// Placement binds one session-unit to a day, a contiguous slot range, a room and a faculty.
type Placement struct {
	ID           string    `db:"id" json:"id,omitempty"`
	TimetableID  string    `db:"timetable_id" json:"timetable_id,omitempty"`
	Seq          int       `db:"seq" json:"seq"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	FacultyID    string    `db:"faculty_id" json:"faculty_id"`
	RoomID       string    `db:"room_id" json:"room_id"`
	BatchID      string    `db:"batch_id" json:"batch_id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	Day          Weekday   `db:"day" json:"day"`
	StartSlot    int       `db:"start_slot" json:"start_slot"`
	Duration     int       `db:"duration" json:"duration"`
	IsLab        bool      `db:"is_lab" json:"is_lab"`
	Occurrence   int       `db:"occurrence" json:"occurrence"`
	CreatedAt    time.Time `db:"created_at" json:"created_at,omitempty"`
}

// Range returns the slot range the placement occupies.
func (p Placement) Range() SlotRange {
	return SlotRange{Start: p.StartSlot, Length: p.Duration}
}

// ConflictReason categorises why a session-unit could not be placed.
type ConflictReason string

const (
	ReasonNoEligibleFaculty ConflictReason = "no_eligible_faculty"
	ReasonNoEligibleRoom    ConflictReason = "no_eligible_room"
	ReasonNoFreeSlot        ConflictReason = "no_free_slot"
)

// Conflict records one unplaceable session-unit.
type Conflict struct {
	ID          string         `db:"id" json:"id,omitempty"`
	TimetableID string         `db:"timetable_id" json:"timetable_id,omitempty"`
	Seq         int            `db:"seq" json:"seq"`
	SubjectID   string         `db:"subject_id" json:"subject_id"`
	BatchID     string         `db:"batch_id" json:"batch_id"`
	Reason      ConflictReason `db:"reason" json:"reason"`
	Occurrence  int            `db:"occurrence" json:"occurrence"`
	Message     string         `db:"message" json:"message"`
}

// IssueKind categorises precondition problems found in the reference data.
type IssueKind string

const (
	IssueUnknownDepartment IssueKind = "unknown_department"
	IssueUnknownSubject    IssueKind = "unknown_subject"
	IssueInvalidBatch      IssueKind = "invalid_batch"
	IssueInvalidSubject    IssueKind = "invalid_subject"
	IssueEmptyAvailability IssueKind = "empty_availability"
)

// PreconditionIssue describes missing or inconsistent reference data. Issues on a batch cause the
// batch to be skipped; issues on a resource are informational.
type PreconditionIssue struct {
	Kind      IssueKind `json:"kind"`
	BatchID   string    `json:"batch_id,omitempty"`
	SubjectID string    `json:"subject_id,omitempty"`
	Resource  string    `json:"resource,omitempty"`
	Message   string    `json:"message"`
}

// Timetable is the persisted result of a generation run for one batch and term.
type Timetable struct {
	ID           string      `db:"id" json:"id"`
	RunID        string      `db:"run_id" json:"run_id"`
	BatchID      string      `db:"batch_id" json:"batch_id"`
	DepartmentID string      `db:"department_id" json:"department_id"`
	Semester     int         `db:"semester" json:"semester"`
	Term         Term        `db:"term" json:"term"`
	Signature    string      `db:"signature" json:"signature"`
	GeneratedAt  time.Time   `db:"generated_at" json:"generated_at"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	Placements   []Placement `db:"-" json:"placements,omitempty"`
	Conflicts    []Conflict  `db:"-" json:"conflicts,omitempty"`
}

// TimetableFilter narrows timetable listings.
type TimetableFilter struct {
	DepartmentID string
	BatchID      string
	Term         Term
}

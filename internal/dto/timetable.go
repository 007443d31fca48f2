package dto

import (
	"time"

	"github.com/noah-isme/institute-timetable/internal/models"
	"github.com/noah-isme/institute-timetable/internal/scheduler"
)

// Generation outcomes reported by the trigger.
const (
	GenerationStatusCompleted = "completed"
	GenerationStatusDryRun    = "dry_run"
)

// GenerateTimetableRequest selects the scope of a generation run. At least one of All,
// DepartmentID or BatchIDs must be set. An empty term means the current one.
type GenerateTimetableRequest struct {
	DepartmentID string   `json:"departmentId" validate:"omitempty,max=64"`
	BatchIDs     []string `json:"batchIds" validate:"omitempty,max=256,dive,required,max=64"`
	Term         string   `json:"term" validate:"omitempty,oneof=odd even"`
	All          bool     `json:"all"`
	DryRun       bool     `json:"dryRun"`
}

// PlacementView is the external form of a placement.
type PlacementView struct {
	Subject    string         `json:"subject"`
	Faculty    string         `json:"faculty"`
	Room       string         `json:"room"`
	Batch      string         `json:"batch"`
	Day        models.Weekday `json:"day"`
	Slots      []int          `json:"slots"`
	IsLab      bool           `json:"isLab"`
	Occurrence int            `json:"occurrence"`
}

// ConflictView is the external form of an unplaceable session-unit.
type ConflictView struct {
	Subject    string                `json:"subject"`
	Batch      string                `json:"batch"`
	Reason     models.ConflictReason `json:"reason"`
	Occurrence int                   `json:"occurrence"`
	Message    string                `json:"message,omitempty"`
}

// IssueView is the external form of a precondition issue.
type IssueView struct {
	Kind     models.IssueKind `json:"kind"`
	Batch    string           `json:"batch,omitempty"`
	Subject  string           `json:"subject,omitempty"`
	Resource string           `json:"resource,omitempty"`
	Message  string           `json:"message"`
}

// TimetableView is one batch timetable as returned by the API.
type TimetableView struct {
	ID           string          `json:"id,omitempty"`
	RunID        string          `json:"runId"`
	BatchID      string          `json:"batchId"`
	DepartmentID string          `json:"departmentId"`
	Semester     int             `json:"semester"`
	Term         models.Term     `json:"term"`
	Signature    string          `json:"signature"`
	GeneratedAt  time.Time       `json:"generatedAt"`
	Placements   []PlacementView `json:"placements"`
	Conflicts    []ConflictView  `json:"conflicts"`
}

// GenerationStats summarises a run.
type GenerationStats struct {
	Units     int                       `json:"units"`
	Placed    int                       `json:"placed"`
	Conflicts int                       `json:"conflicts"`
	Workload  scheduler.WorkloadSummary `json:"workload"`
}

// GenerateTimetableResponse is returned by the generation trigger.
type GenerateTimetableResponse struct {
	RunID       string          `json:"runId"`
	Term        models.Term     `json:"term"`
	Semesters   []int           `json:"semesters"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Status      string          `json:"status"`
	Signature   string          `json:"signature"`
	Timetables  []TimetableView `json:"timetables"`
	Placements  []PlacementView `json:"placements"`
	Conflicts   []ConflictView  `json:"conflicts"`
	Issues      []IssueView     `json:"issues"`
	Stats       GenerationStats `json:"stats"`
}

// TimetableQuery filters timetable listings.
type TimetableQuery struct {
	DepartmentID string `form:"departmentId" validate:"omitempty,max=64"`
	Term         string `form:"term" validate:"omitempty,oneof=odd even"`
}

// Async run states.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// GenerationRun tracks an asynchronous generation request.
type GenerationRun struct {
	ID         string                     `json:"id"`
	Status     string                     `json:"status"`
	Request    GenerateTimetableRequest   `json:"request"`
	Result     *GenerateTimetableResponse `json:"result,omitempty"`
	Error      string                     `json:"error,omitempty"`
	ErrorCode  string                     `json:"errorCode,omitempty"`
	EnqueuedAt time.Time                  `json:"enqueuedAt"`
	StartedAt  *time.Time                 `json:"startedAt,omitempty"`
	FinishedAt *time.Time                 `json:"finishedAt,omitempty"`
}

// NewPlacementView converts a placement.
func NewPlacementView(p models.Placement) PlacementView {
	return PlacementView{
		Subject:    p.SubjectID,
		Faculty:    p.FacultyID,
		Room:       p.RoomID,
		Batch:      p.BatchID,
		Day:        p.Day,
		Slots:      p.Range().Slots(),
		IsLab:      p.IsLab,
		Occurrence: p.Occurrence,
	}
}

// NewConflictView converts a conflict.
func NewConflictView(c models.Conflict) ConflictView {
	return ConflictView{Subject: c.SubjectID, Batch: c.BatchID, Reason: c.Reason, Occurrence: c.Occurrence, Message: c.Message}
}

// NewIssueView converts a precondition issue.
func NewIssueView(i models.PreconditionIssue) IssueView {
	return IssueView{Kind: i.Kind, Batch: i.BatchID, Subject: i.SubjectID, Resource: i.Resource, Message: i.Message}
}

// NewTimetableView converts a timetable with its placements and conflicts.
func NewTimetableView(t models.Timetable) TimetableView {
	view := TimetableView{
		ID:           t.ID,
		RunID:        t.RunID,
		BatchID:      t.BatchID,
		DepartmentID: t.DepartmentID,
		Semester:     t.Semester,
		Term:         t.Term,
		Signature:    t.Signature,
		GeneratedAt:  t.GeneratedAt,
		Placements:   make([]PlacementView, 0, len(t.Placements)),
		Conflicts:    make([]ConflictView, 0, len(t.Conflicts)),
	}
	for _, p := range t.Placements {
		view.Placements = append(view.Placements, NewPlacementView(p))
	}
	for _, c := range t.Conflicts {
		view.Conflicts = append(view.Conflicts, NewConflictView(c))
	}
	return view
}

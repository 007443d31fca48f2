// Package scheduler implements the timetable generation engine: a read-only registry snapshot,
// per-resource availability matrices, a deterministic greedy planner and its conflict report.
package scheduler

import (
	"fmt"

	"github.com/noah-isme/institute-timetable/internal/models"
)

// Snapshot is the fetch-once input of a generation run.
type Snapshot struct {
	Departments []models.Department `json:"departments"`
	Batches     []models.Batch      `json:"batches"`
	Subjects    []models.Subject    `json:"subjects"`
	Faculty     []models.Faculty    `json:"faculty"`
	Rooms       []models.Room       `json:"rooms"`
	// Existing holds placements persisted by batches outside the run scope for the same term.
	Existing []models.Placement `json:"existing,omitempty"`
}

// Registry is an indexed, read-only view over a Snapshot. Slices keep registry order.
type Registry struct {
	departments []models.Department
	batches     []models.Batch
	subjects    []models.Subject
	faculty     []models.Faculty
	rooms       []models.Room
	existing    []models.Placement

	departmentIdx map[string]int
	batchIdx      map[string]int
	subjectIdx    map[string]int
	facultyIdx    map[string]int
	roomIdx       map[string]int
}

// NewRegistry copies the snapshot and indexes it. Faculty ceilings left at zero take their defaults.
func NewRegistry(s Snapshot) *Registry {
	r := &Registry{
		departments:   append([]models.Department(nil), s.Departments...),
		batches:       append([]models.Batch(nil), s.Batches...),
		subjects:      append([]models.Subject(nil), s.Subjects...),
		rooms:         append([]models.Room(nil), s.Rooms...),
		existing:      append([]models.Placement(nil), s.Existing...),
		faculty:       make([]models.Faculty, 0, len(s.Faculty)),
		departmentIdx: make(map[string]int, len(s.Departments)),
		batchIdx:      make(map[string]int, len(s.Batches)),
		subjectIdx:    make(map[string]int, len(s.Subjects)),
		facultyIdx:    make(map[string]int, len(s.Faculty)),
		roomIdx:       make(map[string]int, len(s.Rooms)),
	}
	for _, f := range s.Faculty {
		r.faculty = append(r.faculty, f.WithDefaultCeilings())
	}
	for i, d := range r.departments {
		r.departmentIdx[d.ID] = i
	}
	for i, b := range r.batches {
		r.batchIdx[b.ID] = i
	}
	for i, sub := range r.subjects {
		r.subjectIdx[sub.ID] = i
	}
	for i, f := range r.faculty {
		r.facultyIdx[f.ID] = i
	}
	for i, room := range r.rooms {
		r.roomIdx[room.ID] = i
	}
	return r
}

// Departments returns departments in registry order.
func (r *Registry) Departments() []models.Department { return r.departments }

// Batches returns batches in registry order.
func (r *Registry) Batches() []models.Batch { return r.batches }

// Faculty returns faculty in registry order.
func (r *Registry) Faculty() []models.Faculty { return r.faculty }

// Rooms returns rooms in registry order.
func (r *Registry) Rooms() []models.Room { return r.rooms }

// Existing returns the out-of-scope placements the run must respect.
func (r *Registry) Existing() []models.Placement { return r.existing }

// Department looks up a department by id.
func (r *Registry) Department(id string) (models.Department, bool) {
	i, ok := r.departmentIdx[id]
	if !ok {
		return models.Department{}, false
	}
	return r.departments[i], true
}

// Batch looks up a batch by id.
func (r *Registry) Batch(id string) (models.Batch, bool) {
	i, ok := r.batchIdx[id]
	if !ok {
		return models.Batch{}, false
	}
	return r.batches[i], true
}

// Subject looks up a subject by id.
func (r *Registry) Subject(id string) (models.Subject, bool) {
	i, ok := r.subjectIdx[id]
	if !ok {
		return models.Subject{}, false
	}
	return r.subjects[i], true
}

// FacultyByID looks up a faculty member by id.
func (r *Registry) FacultyByID(id string) (models.Faculty, bool) {
	i, ok := r.facultyIdx[id]
	if !ok {
		return models.Faculty{}, false
	}
	return r.faculty[i], true
}

// Room looks up a room by id.
func (r *Registry) Room(id string) (models.Room, bool) {
	i, ok := r.roomIdx[id]
	if !ok {
		return models.Room{}, false
	}
	return r.rooms[i], true
}

// BatchesFor returns batches of a department in a given semester, in registry order.
func (r *Registry) BatchesFor(departmentID string, semester int) []models.Batch {
	var out []models.Batch
	for _, b := range r.batches {
		if b.DepartmentID == departmentID && b.Semester == semester {
			out = append(out, b)
		}
	}
	return out
}

// CandidateFaculty lists who may teach the subject: the subject's default faculty first, then every
// faculty whose subject set contains it, in registry order.
func (r *Registry) CandidateFaculty(subject models.Subject) []models.Faculty {
	var out []models.Faculty
	seen := make(map[string]bool)
	if subject.FacultyID != nil {
		if f, ok := r.FacultyByID(*subject.FacultyID); ok {
			out = append(out, f)
			seen[f.ID] = true
		}
	}
	for _, f := range r.faculty {
		if seen[f.ID] || !f.Teaches(subject.ID) {
			continue
		}
		out = append(out, f)
		seen[f.ID] = true
	}
	return out
}

// CandidateRooms lists rooms of the batch's department that fit its strength and match the subject type.
func (r *Registry) CandidateRooms(batch models.Batch, subject models.Subject) []models.Room {
	var out []models.Room
	want := subject.RoomType()
	for _, room := range r.rooms {
		if room.DepartmentID != batch.DepartmentID {
			continue
		}
		if room.Type != want || room.Capacity < batch.Strength {
			continue
		}
		out = append(out, room)
	}
	return out
}

// CheckBatch validates the reference data a batch needs. It returns a *PreconditionError when the
// batch cannot be scheduled at all.
func (r *Registry) CheckBatch(b models.Batch) error {
	if b.DepartmentID == "" {
		return newPreconditionError(models.IssueInvalidBatch, b.ID, "", "batch has no department")
	}
	if _, ok := r.Department(b.DepartmentID); !ok {
		return newPreconditionError(models.IssueUnknownDepartment, b.ID, "", fmt.Sprintf("batch references unknown department %s", b.DepartmentID))
	}
	if b.Strength <= 0 {
		return newPreconditionError(models.IssueInvalidBatch, b.ID, "", fmt.Sprintf("batch strength must be > 0, got %d", b.Strength))
	}
	if b.Semester < 1 {
		return newPreconditionError(models.IssueInvalidBatch, b.ID, "", fmt.Sprintf("batch semester must be >= 1, got %d", b.Semester))
	}
	return nil
}

// CheckSubject validates a subject reference of a batch. A failing subject is skipped, the rest of
// the batch is still scheduled.
func (r *Registry) CheckSubject(b models.Batch, subjectID string) (models.Subject, error) {
	subject, ok := r.Subject(subjectID)
	if !ok {
		return models.Subject{}, newPreconditionError(models.IssueUnknownSubject, b.ID, subjectID, fmt.Sprintf("batch references unknown subject %s", subjectID))
	}
	if subject.HoursPerWeek <= 0 {
		return models.Subject{}, newPreconditionError(models.IssueInvalidSubject, b.ID, subjectID, fmt.Sprintf("subject %s has no weekly hours", subject.Code))
	}
	if subject.IsLab && subject.LabBlockSize < 0 || !subject.IsLab && subject.DurationSlots < 0 {
		return models.Subject{}, newPreconditionError(models.IssueInvalidSubject, b.ID, subjectID, fmt.Sprintf("subject %s has a negative session size", subject.Code))
	}
	return subject, nil
}

// ApplyDefaults fills availability lists that are absent (nil) with the institute defaults.
// Explicitly empty lists are kept: they mean "never available".
func ApplyDefaults(s Snapshot) Snapshot {
	out := s
	out.Batches = make([]models.Batch, len(s.Batches))
	for i, b := range s.Batches {
		if b.AvailDays == nil {
			b.AvailDays = append(models.WeekdayList(nil), models.DefaultDays...)
		}
		if b.AvailSlots == nil {
			b.AvailSlots = append(models.SlotList(nil), models.DefaultSlots...)
		}
		out.Batches[i] = b
	}
	out.Faculty = make([]models.Faculty, len(s.Faculty))
	for i, f := range s.Faculty {
		if f.PreferredDays == nil {
			f.PreferredDays = append(models.WeekdayList(nil), models.DefaultDays...)
		}
		if f.PreferredSlots == nil {
			f.PreferredSlots = append(models.SlotList(nil), models.DefaultSlots...)
		}
		out.Faculty[i] = f
	}
	out.Rooms = make([]models.Room, len(s.Rooms))
	for i, room := range s.Rooms {
		if room.AvailDays == nil {
			room.AvailDays = append(models.WeekdayList(nil), models.DefaultDays...)
		}
		if room.AvailSlots == nil {
			room.AvailSlots = append(models.SlotList(nil), models.DefaultSlots...)
		}
		out.Rooms[i] = room
	}
	return out
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/institute-timetable/internal/models"
)

// ErrCanceled is returned when the run context ends before planning finishes.
var ErrCanceled = errors.New("planning canceled")

// Options configures one planning run. The term is fixed for the run and never read from shared state.
type Options struct {
	RunID     string
	Term      models.Term
	Scope     Scope
	LabsFirst bool
	Logger    *zap.Logger
}

// Result is the outcome of a planning run.
type Result struct {
	RunID      string                     `json:"run_id"`
	Term       models.Term                `json:"term"`
	Semesters  []int                      `json:"semesters"`
	Batches    []models.Batch             `json:"batches"`
	Units      []SessionUnit              `json:"units"`
	Placements []models.Placement         `json:"placements"`
	Conflicts  []models.Conflict          `json:"conflicts"`
	Issues     []models.PreconditionIssue `json:"issues"`
	Workload   WorkloadSummary            `json:"workload"`
	Signature  string                     `json:"signature"`
}

// HasConflicts reports whether any unit was left unplaced.
func (r *Result) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// PlacementsFor returns the placements of one batch in placement order.
func (r *Result) PlacementsFor(batchID string) []models.Placement {
	var out []models.Placement
	for _, p := range r.Placements {
		if p.BatchID == batchID {
			out = append(out, p)
		}
	}
	return out
}

// ConflictsFor returns the conflicts of one batch in report order.
func (r *Result) ConflictsFor(batchID string) []models.Conflict {
	var out []models.Conflict
	for _, c := range r.Conflicts {
		if c.BatchID == batchID {
			out = append(out, c)
		}
	}
	return out
}

type load struct {
	total   int
	lab     int
	lecture int
}

// Planner places session-units greedily, earliest day then earliest slot, without backtracking
// across units. A Planner is single use.
type Planner struct {
	reg    *Registry
	opts   Options
	logger *zap.Logger

	matrix   *Matrix
	workload map[string]*load
	reporter *ConflictReporter
	issues   []models.PreconditionIssue
	skipped  map[string]bool

	subjectDays map[string]map[models.Weekday]bool
}

// NewPlanner prepares a planner over the registry.
func NewPlanner(reg *Registry, opts Options) *Planner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		reg:      reg,
		opts:     opts,
		logger:   logger,
		matrix:   NewMatrix(),
		workload: make(map[string]*load),
		reporter: NewConflictReporter(),
		skipped:  make(map[string]bool),

		subjectDays: make(map[string]map[models.Weekday]bool),
	}
}

// Run executes the planning pass. The context is checked between session-units; once it is done the
// run stops with ErrCanceled and no partial result is returned.
func (p *Planner) Run(ctx context.Context) (*Result, error) {
	if p.opts.Term != models.TermOdd && p.opts.Term != models.TermEven {
		return nil, fmt.Errorf("invalid term %q", p.opts.Term)
	}
	if p.opts.Scope.Empty() {
		return nil, errors.New("scope selects no batches")
	}
	started := time.Now()

	p.initMatrix()
	p.checkScope()
	p.seedExisting()

	result := &Result{
		RunID:     p.opts.RunID,
		Term:      p.opts.Term,
		Semesters: p.opts.Term.Semesters(),
	}

	for _, dept := range p.reg.Departments() {
		if !p.opts.Scope.IncludesDepartment(dept.ID) {
			continue
		}
		for _, semester := range result.Semesters {
			for _, batch := range p.reg.BatchesFor(dept.ID, semester) {
				if !p.replaces(batch) {
					continue
				}
				result.Batches = append(result.Batches, batch)
				if err := p.planBatch(ctx, batch, result); err != nil {
					return nil, err
				}
			}
		}
	}

	result.Conflicts = p.reporter.List()
	result.Issues = append([]models.PreconditionIssue(nil), p.issues...)
	result.Workload = SummarizeWorkload(p.reg, result.Placements)
	result.Signature = Signature(result.Placements)

	p.logger.Info("timetable planning finished",
		zap.String("run_id", p.opts.RunID),
		zap.String("term", string(p.opts.Term)),
		zap.String("scope", p.opts.Scope.String()),
		zap.Int("batches", len(result.Batches)),
		zap.Int("units", len(result.Units)),
		zap.Int("placed", len(result.Placements)),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Int("issues", len(result.Issues)),
		zap.Duration("duration", time.Since(started)),
	)
	return result, nil
}

func (p *Planner) initMatrix() {
	for _, f := range p.reg.Faculty() {
		if !p.matrix.Initialize(FacultyKey(f.ID), f.PreferredDays, f.PreferredSlots) {
			p.issue(models.PreconditionIssue{
				Kind:     models.IssueEmptyAvailability,
				Resource: FacultyKey(f.ID).String(),
				Message:  fmt.Sprintf("faculty %s has no available days or slots", f.Name),
			})
		}
	}
	for _, r := range p.reg.Rooms() {
		if !p.matrix.Initialize(RoomKey(r.ID), r.AvailDays, r.AvailSlots) {
			p.issue(models.PreconditionIssue{
				Kind:     models.IssueEmptyAvailability,
				Resource: RoomKey(r.ID).String(),
				Message:  fmt.Sprintf("room %s has no available days or slots", r.Name),
			})
		}
	}
	for _, b := range p.reg.Batches() {
		if !p.opts.Scope.Includes(b) {
			continue
		}
		if !p.matrix.Initialize(BatchKey(b.ID), b.AvailDays, b.AvailSlots) {
			p.issue(models.PreconditionIssue{
				Kind:     models.IssueEmptyAvailability,
				BatchID:  b.ID,
				Resource: BatchKey(b.ID).String(),
				Message:  fmt.Sprintf("batch %s has no available days or slots", b.Name),
			})
		}
	}
}

// replaces reports whether the run plans batch and so overwrites its stored timetable. Batches
// skipped for preconditions keep theirs.
func (p *Planner) replaces(b models.Batch) bool {
	if !p.opts.Scope.Includes(b) || p.skipped[b.ID] || !p.opts.Term.Includes(b.Semester) {
		return false
	}
	if !p.opts.Scope.IncludesDepartment(b.DepartmentID) {
		return false
	}
	_, ok := p.reg.Department(b.DepartmentID)
	return ok
}

// seedExisting blocks cells and accrues workload for stored placements of every batch the run
// leaves untouched. Must run after checkScope.
func (p *Planner) seedExisting() {
	for _, existing := range p.reg.Existing() {
		if batch, ok := p.reg.Batch(existing.BatchID); ok && p.replaces(batch) {
			continue
		}
		r := existing.Range()
		p.matrix.Block(FacultyKey(existing.FacultyID), existing.Day, r)
		p.matrix.Block(RoomKey(existing.RoomID), existing.Day, r)
		p.accrue(existing.FacultyID, existing.IsLab, existing.Duration)
	}
}

// checkScope records precondition issues for batches in scope and marks them skipped.
func (p *Planner) checkScope() {
	for _, id := range p.opts.Scope.BatchIDs {
		b, ok := p.reg.Batch(id)
		if !ok {
			p.skip(newPreconditionError(models.IssueInvalidBatch, id, "", fmt.Sprintf("unknown batch %s", id)))
			continue
		}
		if b.DepartmentID != "" && p.opts.Scope.DepartmentID != "" && b.DepartmentID != p.opts.Scope.DepartmentID {
			p.skip(newPreconditionError(models.IssueInvalidBatch, id, "", fmt.Sprintf("batch %s is outside department %s", b.Name, p.opts.Scope.DepartmentID)))
			continue
		}
		if !p.opts.Term.Includes(b.Semester) && b.Semester >= 1 {
			p.skip(newPreconditionError(models.IssueInvalidBatch, id, "", fmt.Sprintf("batch %s semester %d is not in the %s term", b.Name, b.Semester, p.opts.Term)))
		}
	}
	for _, b := range p.reg.Batches() {
		if !p.opts.Scope.Includes(b) || p.skipped[b.ID] {
			continue
		}
		if err := p.reg.CheckBatch(b); err != nil {
			p.skip(err)
		}
	}
}

func (p *Planner) skip(err error) {
	var pe *PreconditionError
	if !errors.As(err, &pe) {
		return
	}
	p.skipped[pe.Issue.BatchID] = true
	p.issue(pe.Issue)
}

func (p *Planner) issue(issue models.PreconditionIssue) {
	p.logger.Warn("timetable precondition issue",
		zap.String("run_id", p.opts.RunID),
		zap.String("kind", string(issue.Kind)),
		zap.String("batch_id", issue.BatchID),
		zap.String("subject_id", issue.SubjectID),
		zap.String("resource", issue.Resource),
		zap.String("message", issue.Message),
	)
	p.issues = append(p.issues, issue)
}

func (p *Planner) planBatch(ctx context.Context, batch models.Batch, result *Result) error {
	subjects := make(map[string]models.Subject, len(batch.SubjectIDs))
	var units []SessionUnit
	for _, subjectID := range batch.SubjectIDs {
		subject, err := p.reg.CheckSubject(batch, subjectID)
		if err != nil {
			var pe *PreconditionError
			if errors.As(err, &pe) {
				p.issue(pe.Issue)
			}
			continue
		}
		subjects[subject.ID] = subject
		units = append(units, Decompose(batch, subject)...)
	}

	for _, unit := range orderUnits(units, p.opts.LabsFirst) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		unit.State = UnitSearching
		placement, reason, message := p.place(batch, subjects[unit.SubjectID], unit)
		if reason == "" {
			unit.State = UnitPlaced
			placement.Seq = len(result.Placements)
			result.Placements = append(result.Placements, placement)
			p.logger.Debug("session unit placed",
				zap.String("batch_id", batch.ID),
				zap.String("subject_id", unit.SubjectID),
				zap.Int("occurrence", unit.Occurrence),
				zap.String("day", string(placement.Day)),
				zap.Int("start_slot", placement.StartSlot),
				zap.String("faculty_id", placement.FacultyID),
				zap.String("room_id", placement.RoomID),
			)
		} else {
			unit.State = UnitUnplaceable
			p.reporter.Record(unit, reason, message)
			p.logger.Debug("session unit unplaceable",
				zap.String("batch_id", batch.ID),
				zap.String("subject_id", unit.SubjectID),
				zap.Int("occurrence", unit.Occurrence),
				zap.String("reason", string(reason)),
			)
		}
		result.Units = append(result.Units, unit)
	}
	return nil
}

// place searches batch days then batch slots in list order, spreading a subject over distinct days
// first, and commits the first feasible cell.
func (p *Planner) place(batch models.Batch, subject models.Subject, unit SessionUnit) (models.Placement, models.ConflictReason, string) {
	candidates := p.reg.CandidateFaculty(subject)
	if len(candidates) == 0 {
		return models.Placement{}, models.ReasonNoEligibleFaculty, fmt.Sprintf("no faculty teaches %s", subject.Code)
	}
	rooms := p.reg.CandidateRooms(batch, subject)
	if len(rooms) == 0 {
		return models.Placement{}, models.ReasonNoEligibleRoom,
			fmt.Sprintf("no %s room in department holds %d students", subject.RoomType(), batch.Strength)
	}

	eligible := make([]models.Faculty, 0, len(candidates))
	for _, f := range candidates {
		if p.withinCeilings(f, unit) {
			eligible = append(eligible, f)
		}
	}
	if len(eligible) == 0 {
		return models.Placement{}, models.ReasonNoEligibleFaculty, fmt.Sprintf("every faculty for %s reached a workload ceiling", subject.Code)
	}

	batchFree, facultyFree := false, false
	spreadKey := batch.ID + "/" + subject.ID
	// First pass keeps one unit of a subject per day; the second pass relaxes that.
	for _, spread := range []bool{true, false} {
		for _, day := range batch.AvailDays {
			if spread && p.subjectDays[spreadKey][day] {
				continue
			}
			for _, start := range batch.AvailSlots {
				r := models.SlotRange{Start: start, Length: unit.Size}
				if !p.matrix.IsFree(BatchKey(batch.ID), day, r) {
					continue
				}
				batchFree = true

				faculty, ok := p.firstFreeFaculty(eligible, day, r)
				if !ok {
					continue
				}
				facultyFree = true

				room, ok := p.firstFreeRoom(rooms, day, r)
				if !ok {
					continue
				}

				if err := p.commit(batch, faculty, room, day, r); err != nil {
					// Unreachable while the IsFree checks above hold.
					p.logger.Error("reservation failed after free check", zap.Error(err))
					continue
				}
				p.accrue(faculty.ID, unit.IsLab, unit.Size)
				p.markDay(spreadKey, day)
				return models.Placement{
					SubjectID:    subject.ID,
					FacultyID:    faculty.ID,
					RoomID:       room.ID,
					BatchID:      batch.ID,
					DepartmentID: batch.DepartmentID,
					Day:          day,
					StartSlot:    r.Start,
					Duration:     r.Length,
					IsLab:        unit.IsLab,
					Occurrence:   unit.Occurrence,
				}, "", ""
			}
		}
	}

	switch {
	case !batchFree:
		return models.Placement{}, models.ReasonNoFreeSlot, fmt.Sprintf("batch has no free %d-slot block left", unit.Size)
	case !facultyFree:
		return models.Placement{}, models.ReasonNoEligibleFaculty, fmt.Sprintf("no faculty for %s is free when the batch is", subject.Code)
	default:
		return models.Placement{}, models.ReasonNoEligibleRoom, "no room is free when batch and faculty are"
	}
}

func (p *Planner) firstFreeFaculty(candidates []models.Faculty, day models.Weekday, r models.SlotRange) (models.Faculty, bool) {
	for _, f := range candidates {
		if p.matrix.IsFree(FacultyKey(f.ID), day, r) {
			return f, true
		}
	}
	return models.Faculty{}, false
}

func (p *Planner) firstFreeRoom(rooms []models.Room, day models.Weekday, r models.SlotRange) (models.Room, bool) {
	for _, room := range rooms {
		if p.matrix.IsFree(RoomKey(room.ID), day, r) {
			return room, true
		}
	}
	return models.Room{}, false
}

// commit reserves all three resources or none.
func (p *Planner) commit(batch models.Batch, faculty models.Faculty, room models.Room, day models.Weekday, r models.SlotRange) error {
	if err := p.matrix.Reserve(BatchKey(batch.ID), day, r); err != nil {
		return err
	}
	if err := p.matrix.Reserve(FacultyKey(faculty.ID), day, r); err != nil {
		p.matrix.Release(BatchKey(batch.ID), day, r)
		return err
	}
	if err := p.matrix.Reserve(RoomKey(room.ID), day, r); err != nil {
		p.matrix.Release(FacultyKey(faculty.ID), day, r)
		p.matrix.Release(BatchKey(batch.ID), day, r)
		return err
	}
	return nil
}

func (p *Planner) markDay(key string, day models.Weekday) {
	days := p.subjectDays[key]
	if days == nil {
		days = make(map[models.Weekday]bool)
		p.subjectDays[key] = days
	}
	days[day] = true
}

func (p *Planner) withinCeilings(f models.Faculty, unit SessionUnit) bool {
	current := p.workload[f.ID]
	if current == nil {
		current = &load{}
	}
	if current.total+unit.Size > f.MaxHoursPerWeek {
		return false
	}
	if unit.IsLab {
		return current.lab+unit.Size <= f.MaxLabHoursPerWeek
	}
	return current.lecture+unit.Size <= f.MaxLecHoursPerWeek
}

func (p *Planner) accrue(facultyID string, isLab bool, hours int) {
	current := p.workload[facultyID]
	if current == nil {
		current = &load{}
		p.workload[facultyID] = current
	}
	current.total += hours
	if isLab {
		current.lab += hours
	} else {
		current.lecture += hours
	}
}

package scheduler

import (
	"fmt"

	"github.com/noah-isme/institute-timetable/internal/models"
)

// Verify re-checks a placement set against the registry: no resource is double-booked, rooms fit
// their batch, session blocks are contiguous inside batch availability and faculty ceilings hold.
// It returns a *ViolationError listing every problem found.
func Verify(reg *Registry, placements []models.Placement) error {
	var violations []string
	occupied := make(map[ResourceKey]map[models.Weekday][]models.Placement)
	hours := make(map[string]*load)

	for _, p := range placements {
		if p.Duration <= 0 {
			violations = append(violations, fmt.Sprintf("placement %s/%s#%d has no duration", p.BatchID, p.SubjectID, p.Occurrence))
			continue
		}

		for _, key := range []ResourceKey{FacultyKey(p.FacultyID), RoomKey(p.RoomID), BatchKey(p.BatchID)} {
			days := occupied[key]
			if days == nil {
				days = make(map[models.Weekday][]models.Placement)
				occupied[key] = days
			}
			for _, other := range days[p.Day] {
				if other.Range().Overlaps(p.Range()) {
					violations = append(violations, fmt.Sprintf("%s double-booked on %s slots %d-%d", key, p.Day, p.StartSlot, p.Range().End()))
				}
			}
			days[p.Day] = append(days[p.Day], p)
		}

		batch, okBatch := reg.Batch(p.BatchID)
		room, okRoom := reg.Room(p.RoomID)
		subject, okSubject := reg.Subject(p.SubjectID)
		switch {
		case !okBatch:
			violations = append(violations, fmt.Sprintf("placement references unknown batch %s", p.BatchID))
		case !okRoom:
			violations = append(violations, fmt.Sprintf("placement references unknown room %s", p.RoomID))
		case !okSubject:
			violations = append(violations, fmt.Sprintf("placement references unknown subject %s", p.SubjectID))
		default:
			if room.Capacity < batch.Strength {
				violations = append(violations, fmt.Sprintf("room %s holds %d, batch %s has %d", room.ID, room.Capacity, batch.ID, batch.Strength))
			}
			if room.Type != subject.RoomType() {
				violations = append(violations, fmt.Sprintf("room %s is %s, subject %s needs %s", room.ID, room.Type, subject.ID, subject.RoomType()))
			}
			if p.Duration != subject.SessionSize() {
				violations = append(violations, fmt.Sprintf("subject %s placed for %d slots, session size is %d", subject.ID, p.Duration, subject.SessionSize()))
			}
			for _, slot := range p.Range().Slots() {
				if !batch.AvailSlots.Contains(slot) {
					violations = append(violations, fmt.Sprintf("batch %s is not available in slot %d", batch.ID, slot))
				}
			}
			if !batch.AvailDays.Contains(p.Day) {
				violations = append(violations, fmt.Sprintf("batch %s is not available on %s", batch.ID, p.Day))
			}
		}

		current := hours[p.FacultyID]
		if current == nil {
			current = &load{}
			hours[p.FacultyID] = current
		}
		current.total += p.Duration
		if p.IsLab {
			current.lab += p.Duration
		} else {
			current.lecture += p.Duration
		}
	}

	for _, f := range reg.Faculty() {
		current := hours[f.ID]
		if current == nil {
			continue
		}
		if current.total > f.MaxHoursPerWeek {
			violations = append(violations, fmt.Sprintf("faculty %s assigned %d hours, ceiling %d", f.ID, current.total, f.MaxHoursPerWeek))
		}
		if current.lab > f.MaxLabHoursPerWeek {
			violations = append(violations, fmt.Sprintf("faculty %s assigned %d lab hours, ceiling %d", f.ID, current.lab, f.MaxLabHoursPerWeek))
		}
		if current.lecture > f.MaxLecHoursPerWeek {
			violations = append(violations, fmt.Sprintf("faculty %s assigned %d lecture hours, ceiling %d", f.ID, current.lecture, f.MaxLecHoursPerWeek))
		}
	}

	if len(violations) > 0 {
		return &ViolationError{Violations: violations}
	}
	return nil
}

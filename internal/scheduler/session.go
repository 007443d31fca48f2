package scheduler

import "github.com/noah-isme/institute-timetable/internal/models"

// UnitState is the lifecycle of a session-unit during planning.
type UnitState string

const (
	UnitPending     UnitState = "pending"
	UnitSearching   UnitState = "searching"
	UnitPlaced      UnitState = "placed"
	UnitUnplaceable UnitState = "unplaceable"
)

// SessionUnit is one weekly occurrence of a subject for a batch.
type SessionUnit struct {
	BatchID    string    `json:"batch_id"`
	SubjectID  string    `json:"subject_id"`
	Occurrence int       `json:"occurrence"`
	Size       int       `json:"size"`
	IsLab      bool      `json:"is_lab"`
	State      UnitState `json:"state"`
}

// Decompose splits a subject's weekly hours into session-units of SessionSize slots each.
// A remainder rounds up to one extra unit.
func Decompose(b models.Batch, s models.Subject) []SessionUnit {
	if s.HoursPerWeek <= 0 {
		return nil
	}
	size := s.SessionSize()
	count := (s.HoursPerWeek + size - 1) / size
	units := make([]SessionUnit, 0, count)
	for i := 1; i <= count; i++ {
		units = append(units, SessionUnit{
			BatchID:    b.ID,
			SubjectID:  s.ID,
			Occurrence: i,
			Size:       size,
			IsLab:      s.IsLab,
			State:      UnitPending,
		})
	}
	return units
}

// orderUnits places lectures ahead of labs (or the reverse) while keeping subject order stable.
func orderUnits(units []SessionUnit, labsFirst bool) []SessionUnit {
	first := make([]SessionUnit, 0, len(units))
	second := make([]SessionUnit, 0, len(units))
	for _, u := range units {
		if u.IsLab == labsFirst {
			first = append(first, u)
		} else {
			second = append(second, u)
		}
	}
	return append(first, second...)
}

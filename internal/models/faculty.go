package models

import (
	"time"

	"github.com/lib/pq"
)

const (
	DefaultMaxHoursPerWeek    = 20
	DefaultMaxLabHoursPerWeek = 8
	DefaultMaxLecHoursPerWeek = 12
)

// Faculty is an instructor with subject eligibility and weekly hour ceilings.
type Faculty struct {
	ID                 string         `db:"id" json:"id"`
	Name               string         `db:"name" json:"name"`
	AccountID          string         `db:"account_id" json:"account_id"`
	DepartmentID       string         `db:"department_id" json:"department_id"`
	SubjectIDs         pq.StringArray `db:"subject_ids" json:"subject_ids"`
	PreferredDays      WeekdayList    `db:"preferred_days" json:"preferred_days"`
	PreferredSlots     SlotList       `db:"preferred_slots" json:"preferred_slots"`
	MaxHoursPerWeek    int            `db:"max_hours_per_week" json:"max_hours_per_week"`
	MaxLabHoursPerWeek int            `db:"max_lab_hours_per_week" json:"max_lab_hours_per_week"`
	MaxLecHoursPerWeek int            `db:"max_lec_hours_per_week" json:"max_lec_hours_per_week"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
}

// Teaches reports whether subjectID is in the faculty's subject set.
func (f Faculty) Teaches(subjectID string) bool {
	for _, id := range f.SubjectIDs {
		if id == subjectID {
			return true
		}
	}
	return false
}

// WithDefaultCeilings fills unset workload ceilings.
func (f Faculty) WithDefaultCeilings() Faculty {
	if f.MaxHoursPerWeek == 0 {
		f.MaxHoursPerWeek = DefaultMaxHoursPerWeek
	}
	if f.MaxLabHoursPerWeek == 0 {
		f.MaxLabHoursPerWeek = DefaultMaxLabHoursPerWeek
	}
	if f.MaxLecHoursPerWeek == 0 {
		f.MaxLecHoursPerWeek = DefaultMaxLecHoursPerWeek
	}
	return f
}

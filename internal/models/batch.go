package models

import (
	"time"

	"github.com/lib/pq"
)

// Batch is a cohort of students sharing one timetable.
type Batch struct {
	ID           string         `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Semester     int            `db:"semester" json:"semester"`
	Strength     int            `db:"strength" json:"strength"`
	DepartmentID string         `db:"department_id" json:"department_id"`
	SubjectIDs   pq.StringArray `db:"subject_ids" json:"subject_ids"`
	AvailDays    WeekdayList    `db:"avail_days" json:"avail_days"`
	AvailSlots   SlotList       `db:"avail_slots" json:"avail_slots"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

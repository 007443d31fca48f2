package models

import "time"

// Subject is a course taught to one or more batches.
type Subject struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Code          string    `db:"code" json:"code"`
	DepartmentID  string    `db:"department_id" json:"department_id"`
	Semester      int       `db:"semester" json:"semester"`
	Credits       int       `db:"credits" json:"credits"`
	IsLab         bool      `db:"is_lab" json:"is_lab"`
	HoursPerWeek  int       `db:"hours_per_week" json:"hours_per_week"`
	LabBlockSize  int       `db:"lab_block_size" json:"lab_block_size"`
	DurationSlots int       `db:"duration_slots" json:"duration_slots"`
	FacultyID     *string   `db:"faculty_id" json:"faculty_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// SessionSize is the number of contiguous slots one session of the subject occupies.
func (s Subject) SessionSize() int {
	if s.IsLab {
		if s.LabBlockSize > 0 {
			return s.LabBlockSize
		}
		return 2
	}
	if s.DurationSlots > 0 {
		return s.DurationSlots
	}
	return 1
}

// RoomType is the kind of room the subject needs.
func (s Subject) RoomType() RoomType {
	if s.IsLab {
		return RoomTypeLab
	}
	return RoomTypeLecture
}

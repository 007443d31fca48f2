package models

import "time"

// RoomType distinguishes labs from lecture halls.
type RoomType string

const (
	RoomTypeLab     RoomType = "lab"
	RoomTypeLecture RoomType = "lecture"
)

// Room is a bookable teaching space.
type Room struct {
	ID           string      `db:"id" json:"id"`
	Name         string      `db:"name" json:"name"`
	Capacity     int         `db:"capacity" json:"capacity"`
	Type         RoomType    `db:"type" json:"type"`
	DepartmentID string      `db:"department_id" json:"department_id"`
	AvailDays    WeekdayList `db:"avail_days" json:"avail_days"`
	AvailSlots   SlotList    `db:"avail_slots" json:"avail_slots"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Weekday is an enumerated teaching day.
type Weekday string

const (
	Monday    Weekday = "mon"
	Tuesday   Weekday = "tue"
	Wednesday Weekday = "wed"
	Thursday  Weekday = "thu"
	Friday    Weekday = "fri"
	Saturday  Weekday = "sat"
	Sunday    Weekday = "sun"
)

var weekdayOrder = map[Weekday]int{
	Monday: 1, Tuesday: 2, Wednesday: 3, Thursday: 4, Friday: 5, Saturday: 6, Sunday: 7,
}

var weekdayAliases = map[string]Weekday{
	"monday": Monday, "tuesday": Tuesday, "wednesday": Wednesday, "thursday": Thursday,
	"friday": Friday, "saturday": Saturday, "sunday": Sunday,
}

// DefaultDays are used when a source record carries no availability days.
var DefaultDays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// DefaultSlots are used when a source record carries no availability slots.
var DefaultSlots = []int{1, 2, 3, 4, 5, 6, 7, 8}

// ParseWeekday accepts short ("mon") or long ("Monday") names, case-insensitively.
func ParseWeekday(raw string) (Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := weekdayOrder[Weekday(key)]; ok {
		return Weekday(key), nil
	}
	if day, ok := weekdayAliases[key]; ok {
		return day, nil
	}
	return "", fmt.Errorf("unknown weekday %q", raw)
}

// Index returns 1 for Monday through 7 for Sunday, 0 for unknown values.
func (d Weekday) Index() int {
	return weekdayOrder[d]
}

// UnmarshalJSON accepts any spelling understood by ParseWeekday.
func (d *Weekday) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	day, err := ParseWeekday(raw)
	if err != nil {
		return err
	}
	*d = day
	return nil
}

// WeekdayList is a Postgres text[] of weekdays.
type WeekdayList []Weekday

// Scan implements sql.Scanner.
func (l *WeekdayList) Scan(src interface{}) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("scan weekday list: %w", err)
	}
	if raw == nil {
		*l = nil
		return nil
	}
	out := make(WeekdayList, 0, len(raw))
	for _, item := range raw {
		day, err := ParseWeekday(item)
		if err != nil {
			return err
		}
		out = append(out, day)
	}
	*l = out
	return nil
}

// Value implements driver.Valuer.
func (l WeekdayList) Value() (driver.Value, error) {
	raw := make(pq.StringArray, len(l))
	for i, day := range l {
		raw[i] = string(day)
	}
	return raw.Value()
}

// Contains reports whether day is part of the list.
func (l WeekdayList) Contains(day Weekday) bool {
	for _, d := range l {
		if d == day {
			return true
		}
	}
	return false
}

// SlotList is a Postgres int[] of 1-based slot indices.
type SlotList []int

// Scan implements sql.Scanner.
func (l *SlotList) Scan(src interface{}) error {
	var raw pq.Int64Array
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("scan slot list: %w", err)
	}
	if raw == nil {
		*l = nil
		return nil
	}
	out := make(SlotList, len(raw))
	for i, v := range raw {
		out[i] = int(v)
	}
	*l = out
	return nil
}

// Value implements driver.Valuer.
func (l SlotList) Value() (driver.Value, error) {
	raw := make(pq.Int64Array, len(l))
	for i, v := range l {
		raw[i] = int64(v)
	}
	return raw.Value()
}

// Contains reports whether slot is part of the list.
func (l SlotList) Contains(slot int) bool {
	for _, s := range l {
		if s == slot {
			return true
		}
	}
	return false
}

// SlotRange is a contiguous run of slots on one day.
type SlotRange struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// End returns the last slot covered by the range.
func (r SlotRange) End() int {
	return r.Start + r.Length - 1
}

// Slots expands the range into its slot indices.
func (r SlotRange) Slots() []int {
	out := make([]int, 0, r.Length)
	for s := r.Start; s <= r.End(); s++ {
		out = append(out, s)
	}
	return out
}

// Overlaps reports whether the two ranges share at least one slot.
func (r SlotRange) Overlaps(other SlotRange) bool {
	return r.Start <= other.End() && other.Start <= r.End()
}

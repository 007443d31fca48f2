package scheduler

import (
	"fmt"

	"github.com/noah-isme/institute-timetable/internal/models"
)

// ResourceKind identifies the kind of resource a matrix row tracks.
type ResourceKind string

const (
	ResourceFaculty ResourceKind = "faculty"
	ResourceRoom    ResourceKind = "room"
	ResourceBatch   ResourceKind = "batch"
)

// ResourceKey identifies one row of the availability matrix.
type ResourceKey struct {
	Kind ResourceKind
	ID   string
}

func (k ResourceKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// FacultyKey builds the matrix key of a faculty member.
func FacultyKey(id string) ResourceKey { return ResourceKey{Kind: ResourceFaculty, ID: id} }

// RoomKey builds the matrix key of a room.
func RoomKey(id string) ResourceKey { return ResourceKey{Kind: ResourceRoom, ID: id} }

// BatchKey builds the matrix key of a batch.
func BatchKey(id string) ResourceKey { return ResourceKey{Kind: ResourceBatch, ID: id} }

type cell struct {
	day  models.Weekday
	slot int
}

// Matrix tracks free (day, slot) cells per resource. Cells outside a resource's configured
// availability do not exist and are never free. A Matrix is owned by one planner and is not safe
// for concurrent use.
type Matrix struct {
	grid map[ResourceKey]map[cell]bool
}

// NewMatrix returns an empty matrix.
func NewMatrix() *Matrix {
	return &Matrix{grid: make(map[ResourceKey]map[cell]bool)}
}

// Initialize (re)creates the resource row with every (day, slot) in days × slots marked free.
// It returns false when either list is empty, in which case nothing can ever be placed on it.
func (m *Matrix) Initialize(res ResourceKey, days []models.Weekday, slots []int) bool {
	row := make(map[cell]bool, len(days)*len(slots))
	for _, d := range days {
		for _, s := range slots {
			row[cell{day: d, slot: s}] = true
		}
	}
	m.grid[res] = row
	return len(row) > 0
}

// IsFree is true iff every slot of the range exists for the resource and is free.
func (m *Matrix) IsFree(res ResourceKey, day models.Weekday, r models.SlotRange) bool {
	row, ok := m.grid[res]
	if !ok || r.Length <= 0 {
		return false
	}
	for s := r.Start; s <= r.End(); s++ {
		if !row[cell{day: day, slot: s}] {
			return false
		}
	}
	return true
}

// Reserve marks the range as taken. Either the whole range is reserved or nothing is.
func (m *Matrix) Reserve(res ResourceKey, day models.Weekday, r models.SlotRange) error {
	if !m.IsFree(res, day, r) {
		return fmt.Errorf("reserve %s %s %d-%d: %w", res, day, r.Start, r.End(), ErrDoubleReservation)
	}
	row := m.grid[res]
	for s := r.Start; s <= r.End(); s++ {
		row[cell{day: day, slot: s}] = false
	}
	return nil
}

// Block marks the range as taken whether or not the cells exist or are free. It is used to seed
// commitments made outside the current run.
func (m *Matrix) Block(res ResourceKey, day models.Weekday, r models.SlotRange) {
	row, ok := m.grid[res]
	if !ok {
		return
	}
	for s := r.Start; s <= r.End(); s++ {
		if _, exists := row[cell{day: day, slot: s}]; exists {
			row[cell{day: day, slot: s}] = false
		}
	}
}

// Release frees a previously reserved range. Cells outside the resource's availability stay absent.
func (m *Matrix) Release(res ResourceKey, day models.Weekday, r models.SlotRange) {
	row, ok := m.grid[res]
	if !ok {
		return
	}
	for s := r.Start; s <= r.End(); s++ {
		if _, exists := row[cell{day: day, slot: s}]; exists {
			row[cell{day: day, slot: s}] = true
		}
	}
}

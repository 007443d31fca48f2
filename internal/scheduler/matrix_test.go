package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-timetable/internal/models"
)

func TestMatrixInitializeEmpty(t *testing.T) {
	m := NewMatrix()
	assert.False(t, m.Initialize(RoomKey("r1"), nil, []int{1, 2}))
	assert.False(t, m.Initialize(RoomKey("r2"), []models.Weekday{models.Monday}, nil))
	assert.False(t, m.IsFree(RoomKey("r1"), models.Monday, models.SlotRange{Start: 1, Length: 1}))
	assert.False(t, m.IsFree(RoomKey("missing"), models.Monday, models.SlotRange{Start: 1, Length: 1}))
}

func TestMatrixContiguousBlock(t *testing.T) {
	m := NewMatrix()
	require.True(t, m.Initialize(FacultyKey("f1"), []models.Weekday{models.Monday}, []int{1, 2, 4}))

	assert.True(t, m.IsFree(FacultyKey("f1"), models.Monday, models.SlotRange{Start: 1, Length: 2}))
	assert.False(t, m.IsFree(FacultyKey("f1"), models.Monday, models.SlotRange{Start: 2, Length: 2}), "slot 3 is outside availability")
	assert.False(t, m.IsFree(FacultyKey("f1"), models.Tuesday, models.SlotRange{Start: 1, Length: 1}))
}

func TestMatrixReserveRelease(t *testing.T) {
	m := NewMatrix()
	key := BatchKey("b1")
	require.True(t, m.Initialize(key, []models.Weekday{models.Monday}, []int{1, 2, 3}))

	require.NoError(t, m.Reserve(key, models.Monday, models.SlotRange{Start: 1, Length: 2}))
	assert.False(t, m.IsFree(key, models.Monday, models.SlotRange{Start: 1, Length: 1}))
	assert.False(t, m.IsFree(key, models.Monday, models.SlotRange{Start: 2, Length: 1}))

	err := m.Reserve(key, models.Monday, models.SlotRange{Start: 2, Length: 2})
	require.ErrorIs(t, err, ErrDoubleReservation)
	assert.True(t, m.IsFree(key, models.Monday, models.SlotRange{Start: 3, Length: 1}), "failed reserve must not take slot 3")

	m.Release(key, models.Monday, models.SlotRange{Start: 1, Length: 2})
	assert.True(t, m.IsFree(key, models.Monday, models.SlotRange{Start: 1, Length: 3}))
}

func TestMatrixBlock(t *testing.T) {
	m := NewMatrix()
	key := RoomKey("r1")
	require.True(t, m.Initialize(key, []models.Weekday{models.Monday}, []int{1, 2}))

	m.Block(key, models.Monday, models.SlotRange{Start: 2, Length: 3})
	assert.True(t, m.IsFree(key, models.Monday, models.SlotRange{Start: 1, Length: 1}))
	assert.False(t, m.IsFree(key, models.Monday, models.SlotRange{Start: 2, Length: 1}))
	assert.False(t, m.IsFree(key, models.Monday, models.SlotRange{Start: 3, Length: 1}), "block must not create cells")
}

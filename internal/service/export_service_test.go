package service

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-timetable/internal/dto"
	"github.com/noah-isme/institute-timetable/internal/models"
)

func exportFixture() models.Timetable {
	return models.Timetable{
		ID: "tt-1", BatchID: "cse-1a", DepartmentID: "cse", Semester: 1, Term: models.TermOdd,
		GeneratedAt: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		Placements: []models.Placement{
			{SubjectID: "phy-lab", FacultyID: "f-bob", RoomID: "lab-1", BatchID: "cse-1a", Day: models.Tuesday, StartSlot: 3, Duration: 2, IsLab: true, Occurrence: 1},
			{SubjectID: "math", FacultyID: "f-ada", RoomID: "r-101", BatchID: "cse-1a", Day: models.Monday, StartSlot: 1, Duration: 1, Occurrence: 1},
			{SubjectID: "math", FacultyID: "f-ada", RoomID: "r-101", BatchID: "cse-1a", Day: models.Sunday, StartSlot: 9, Duration: 1, Occurrence: 2},
		},
	}
}

func TestTimetableDatasetOrdersByDayAndSlot(t *testing.T) {
	data := TimetableDataset(exportFixture())

	require.Len(t, data.Rows, 3)
	assert.Equal(t, "mon", data.Rows[0]["day"])
	assert.Equal(t, "tue", data.Rows[1]["day"])
	assert.Equal(t, "4", data.Rows[1]["end_slot"])
	assert.Equal(t, "lab", data.Rows[1]["type"])
	assert.Equal(t, "sun", data.Rows[2]["day"])
}

func TestTimetableGridCoversLabBlocksAndExtraDays(t *testing.T) {
	grid := TimetableGrid(exportFixture())

	assert.Equal(t, []string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}, grid.RowLabels)
	require.Len(t, grid.ColumnLabels, 9)
	assert.Equal(t, []string{"math", "f-ada", "r-101"}, grid.Cell(0, 0))
	assert.Equal(t, []string{"phy-lab (lab)", "f-bob", "lab-1"}, grid.Cell(1, 2))
	assert.Equal(t, grid.Cell(1, 2), grid.Cell(1, 3))
	assert.Nil(t, grid.Cell(1, 4))
	assert.Equal(t, []string{"math", "f-ada", "r-101"}, grid.Cell(6, 8))
}

func TestExportServiceRenderPDF(t *testing.T) {
	file, err := NewExportService(nil, nil, nil).Render(exportFixture(), "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.Equal(t, "timetable-cse-1a-odd.pdf", file.Filename)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF-")))
}

func TestPlacementsDatasetGroupsByBatch(t *testing.T) {
	views := []dto.PlacementView{
		{Subject: "math", Faculty: "f-ada", Room: "r-101", Batch: "cse-1b", Day: models.Monday, Slots: []int{1}, Occurrence: 1},
		{Subject: "phy-lab", Faculty: "f-bob", Room: "lab-1", Batch: "cse-1a", Day: models.Tuesday, Slots: []int{3, 4}, IsLab: true, Occurrence: 1},
		{Subject: "math", Faculty: "f-ada", Room: "r-101", Batch: "cse-1a", Day: models.Monday, Slots: []int{2}, Occurrence: 1},
	}

	data := PlacementsDataset("run r-1", views)
	require.Len(t, data.Rows, 3)
	assert.Equal(t, "run r-1", data.Title)
	assert.Equal(t, []string{"cse-1a", "cse-1a", "cse-1b"}, []string{data.Rows[0]["batch"], data.Rows[1]["batch"], data.Rows[2]["batch"]})
	assert.Equal(t, "mon", data.Rows[0]["day"])
	assert.Equal(t, "3", data.Rows[1]["start_slot"])
	assert.Equal(t, "4", data.Rows[1]["end_slot"])
	assert.Equal(t, "lab", data.Rows[1]["type"])
}

package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/institute-timetable/internal/dto"
	"github.com/noah-isme/institute-timetable/internal/models"
	"github.com/noah-isme/institute-timetable/pkg/export"
	appErrors "github.com/noah-isme/institute-timetable/pkg/errors"
)

// Supported export formats.
const (
	ExportFormatJSON = "json"
	ExportFormatCSV  = "csv"
	ExportFormatPDF  = "pdf"
)

var exportHeaders = []string{"day", "start_slot", "end_slot", "subject", "faculty", "room", "batch", "type", "occurrence"}

// ExportFile is a rendered timetable ready to be served.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type gridRenderer interface {
	RenderGrid(grid export.Grid) ([]byte, error)
}

// ExportService renders persisted timetables as JSON, CSV rows or a PDF week grid.
type ExportService struct {
	csv    csvRenderer
	pdf    gridRenderer
	logger *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to the pkg/export ones.
func NewExportService(logger *zap.Logger, csv csvRenderer, pdf gridRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{csv: csv, pdf: pdf, logger: logger}
}

// Render encodes the timetable, which must carry its placements, in the requested format.
func (s *ExportService) Render(t models.Timetable, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatJSON
	}
	base := fmt.Sprintf("timetable-%s-%s", t.BatchID, t.Term)

	var (
		body        []byte
		contentType string
		err         error
	)
	switch format {
	case ExportFormatJSON:
		body, err = json.MarshalIndent(dto.NewTimetableView(t), "", "  ")
		contentType = "application/json"
	case ExportFormatCSV:
		body, err = s.csv.Render(TimetableDataset(t))
		contentType = "text/csv"
	case ExportFormatPDF:
		body, err = s.pdf.RenderGrid(TimetableGrid(t))
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		s.logger.Error("timetable export failed", zap.String("timetable_id", t.ID), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable")
	}
	return &ExportFile{Filename: base + "." + format, ContentType: contentType, Body: body}, nil
}

// TimetableDataset flattens placements into one row each, in day then slot order.
func TimetableDataset(t models.Timetable) export.Dataset {
	placements := append([]models.Placement(nil), t.Placements...)
	sort.SliceStable(placements, func(i, j int) bool {
		if placements[i].Day.Index() != placements[j].Day.Index() {
			return placements[i].Day.Index() < placements[j].Day.Index()
		}
		return placements[i].StartSlot < placements[j].StartSlot
	})

	rows := make([]map[string]string, 0, len(placements))
	for _, p := range placements {
		kind := "lecture"
		if p.IsLab {
			kind = "lab"
		}
		rows = append(rows, map[string]string{
			"day":        string(p.Day),
			"start_slot": strconv.Itoa(p.StartSlot),
			"end_slot":   strconv.Itoa(p.Range().End()),
			"subject":    p.SubjectID,
			"faculty":    p.FacultyID,
			"room":       p.RoomID,
			"batch":      p.BatchID,
			"type":       kind,
			"occurrence": strconv.Itoa(p.Occurrence),
		})
	}
	return export.Dataset{Title: "timetable " + t.BatchID, Headers: exportHeaders, Rows: rows}
}

// TimetableGrid lays placements out as a week sheet: one row per day, one column per slot.
func TimetableGrid(t models.Timetable) export.Grid {
	days := append([]models.Weekday(nil), models.DefaultDays...)
	seen := make(map[models.Weekday]bool, len(days))
	for _, d := range days {
		seen[d] = true
	}
	maxSlot := models.DefaultSlots[len(models.DefaultSlots)-1]
	for _, p := range t.Placements {
		if !seen[p.Day] {
			seen[p.Day] = true
			days = append(days, p.Day)
		}
		if end := p.Range().End(); end > maxSlot {
			maxSlot = end
		}
	}
	sort.SliceStable(days, func(i, j int) bool { return days[i].Index() < days[j].Index() })

	grid := export.Grid{
		Title:        "Timetable " + t.BatchID,
		Subtitle:     fmt.Sprintf("Term %s, semester %d, generated %s", t.Term, t.Semester, t.GeneratedAt.UTC().Format("2006-01-02 15:04")),
		Corner:       "Day",
		ColumnLabels: make([]string, maxSlot),
		RowLabels:    make([]string, len(days)),
		Cells:        make([][][]string, len(days)),
	}
	for col := range grid.ColumnLabels {
		grid.ColumnLabels[col] = "Slot " + strconv.Itoa(col+1)
	}
	rowOf := make(map[models.Weekday]int, len(days))
	for row, d := range days {
		grid.RowLabels[row] = strings.ToUpper(string(d))
		grid.Cells[row] = make([][]string, maxSlot)
		rowOf[d] = row
	}
	for _, p := range t.Placements {
		subject := p.SubjectID
		if p.IsLab {
			subject += " (lab)"
		}
		for _, slot := range p.Range().Slots() {
			if slot < 1 || slot > maxSlot {
				continue
			}
			row := rowOf[p.Day]
			grid.Cells[row][slot-1] = append(grid.Cells[row][slot-1], subject, p.FacultyID, p.RoomID)
		}
	}
	return grid
}

// PlacementsDataset flattens the placement views of a whole run, grouped by batch and then in day
// and slot order.
func PlacementsDataset(title string, views []dto.PlacementView) export.Dataset {
	sorted := append([]dto.PlacementView(nil), views...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Batch != b.Batch {
			return a.Batch < b.Batch
		}
		if a.Day.Index() != b.Day.Index() {
			return a.Day.Index() < b.Day.Index()
		}
		return firstSlot(a) < firstSlot(b)
	})

	rows := make([]map[string]string, 0, len(sorted))
	for _, v := range sorted {
		kind := "lecture"
		if v.IsLab {
			kind = "lab"
		}
		start, end := firstSlot(v), firstSlot(v)
		if n := len(v.Slots); n > 0 {
			end = v.Slots[n-1]
		}
		rows = append(rows, map[string]string{
			"day":        string(v.Day),
			"start_slot": strconv.Itoa(start),
			"end_slot":   strconv.Itoa(end),
			"subject":    v.Subject,
			"faculty":    v.Faculty,
			"room":       v.Room,
			"batch":      v.Batch,
			"type":       kind,
			"occurrence": strconv.Itoa(v.Occurrence),
		})
	}
	return export.Dataset{Title: title, Headers: exportHeaders, Rows: rows}
}

func firstSlot(v dto.PlacementView) int {
	if len(v.Slots) == 0 {
		return 0
	}
	return v.Slots[0]
}

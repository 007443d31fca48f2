package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidthLandscape = 277.0
	lineHeight         = 4.5
)

// PDFExporter renders grids as landscape A4 sheets.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderGrid draws the grid with a label column on the left and one column per ColumnLabels entry.
func (e *PDFExporter) RenderGrid(grid Grid) ([]byte, error) {
	if len(grid.ColumnLabels) == 0 {
		return nil, fmt.Errorf("pdf grid requires at least one column")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	if grid.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 8, grid.Title, "", 1, "C", false, 0, "")
	}
	if grid.Subtitle != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, grid.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(3)

	labelWidth := 22.0
	colWidth := (pageWidthLandscape - labelWidth) / float64(len(grid.ColumnLabels))

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(labelWidth, 7, grid.Corner, "1", 0, "C", true, 0, "")
	for _, label := range grid.ColumnLabels {
		pdf.CellFormat(colWidth, 7, label, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 7)
	for row, label := range grid.RowLabels {
		lines := 1
		for col := range grid.ColumnLabels {
			if n := len(grid.Cell(row, col)); n > lines {
				lines = n
			}
		}
		height := float64(lines)*lineHeight + 2

		x, y := pdf.GetXY()
		pdf.SetFont("Arial", "B", 8)
		pdf.CellFormat(labelWidth, height, label, "1", 0, "C", false, 0, "")
		pdf.SetFont("Arial", "", 7)
		for col := range grid.ColumnLabels {
			cx := x + labelWidth + float64(col)*colWidth
			pdf.Rect(cx, y, colWidth, height, "D")
			for i, line := range grid.Cell(row, col) {
				pdf.SetXY(cx+1, y+1+float64(i)*lineHeight)
				pdf.CellFormat(colWidth-2, lineHeight, line, "", 0, "L", false, 0, "")
			}
		}
		pdf.SetXY(x, y+height)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

package export

// Dataset is tabular export content; rows are keyed by header.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
}

// Grid is a two-dimensional sheet, such as a weekly timetable with days as rows and slots as columns.
// Cells[i][j] belongs to RowLabels[i] and ColumnLabels[j]; a cell may hold several lines.
type Grid struct {
	Title        string
	Subtitle     string
	Corner       string
	ColumnLabels []string
	RowLabels    []string
	Cells        [][][]string
}

// Cell returns the lines at (row, col) or nil when out of range.
func (g Grid) Cell(row, col int) []string {
	if row < 0 || row >= len(g.Cells) || col < 0 || col >= len(g.Cells[row]) {
		return nil
	}
	return g.Cells[row][col]
}

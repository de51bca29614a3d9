package domain

import (
	"fmt"
	"strings"
)

// CellRef is a single-cell reference extracted from a formula.
//
// Col and Row are 1-based. Sheet is empty for a same-sheet reference;
// Workbook is the bracketed file name for references into another workbook
// file ("[Model v2.xlsx]IS!A1"), which the engine treats as opaque leaves.
type CellRef struct {
	Workbook string `json:"workbook,omitempty"`
	Sheet    string `json:"sheet,omitempty"`
	Col      int    `json:"col"`
	Row      int    `json:"row"`
	AbsCol   bool   `json:"absolute_col,omitempty"`
	AbsRow   bool   `json:"absolute_row,omitempty"`
}

// External reports whether the reference points outside the workbook.
func (r CellRef) External() bool { return r.Workbook != "" }

// On returns a copy of the reference resolved onto sheet when it has no
// explicit sheet of its own.
func (r CellRef) On(sheet string) CellRef {
	if r.Sheet == "" {
		r.Sheet = sheet
	}
	return r
}

// Address renders the reference in A1 notation, including the sheet
// qualifier when present. Absolute markers are dropped; addresses are used
// as graph keys where $A$1 and A1 are the same cell.
func (r CellRef) Address() string {
	cell := fmt.Sprintf("%s%d", ColumnName(r.Col), r.Row)
	if r.Sheet == "" {
		return cell
	}
	sheet := r.Sheet
	if strings.ContainsAny(sheet, " -") {
		sheet = "'" + sheet + "'"
	}
	if r.Workbook != "" {
		return "[" + r.Workbook + "]" + sheet + "!" + cell
	}
	return sheet + "!" + cell
}

// RangeRef is a rectangular range reference. Start and End carry the same
// sheet qualifier; the parser rejects ranges spanning sheets.
type RangeRef struct {
	Start CellRef `json:"start"`
	End   CellRef `json:"end"`
}

// Cells expands the range into its constituent cell references in row-major
// order. Expansion is capped at limit cells (0 means no cap); oversized
// ranges return only the bounding corners so a stray full-column reference
// cannot blow up a drill-down.
func (r RangeRef) Cells(limit int) []CellRef {
	minCol, maxCol := r.Start.Col, r.End.Col
	if minCol > maxCol {
		minCol, maxCol = maxCol, minCol
	}
	minRow, maxRow := r.Start.Row, r.End.Row
	if minRow > maxRow {
		minRow, maxRow = maxRow, minRow
	}

	size := (maxCol - minCol + 1) * (maxRow - minRow + 1)
	if limit > 0 && size > limit {
		return []CellRef{r.Start, r.End}
	}

	cells := make([]CellRef, 0, size)
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			cells = append(cells, CellRef{
				Workbook: r.Start.Workbook,
				Sheet:    r.Start.Sheet,
				Col:      col,
				Row:      row,
			})
		}
	}
	return cells
}

// ColumnName converts a 1-based column number to its letter form (1 -> A,
// 27 -> AA).
func ColumnName(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// ColumnNumber converts a column letter form back to its 1-based number.
// Returns 0 for input that is not a pure column name.
func ColumnNumber(name string) int {
	col := 0
	for _, ch := range name {
		switch {
		case ch >= 'A' && ch <= 'Z':
			col = col*26 + int(ch-'A') + 1
		case ch >= 'a' && ch <= 'z':
			col = col*26 + int(ch-'a') + 1
		default:
			return 0
		}
	}
	return col
}

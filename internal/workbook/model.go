// Package workbook holds the in-memory representation of a parsed
// spreadsheet file. A Model is built once per uploaded file and is read-only
// afterwards; every downstream component (period detection, extraction,
// graph building) only reads from it, which is what makes concurrent
// analysis requests against the same session safe without locking.
package workbook

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// Cell is one cell of a loaded workbook. RawValue is the display value as
// read from the file; Formula is the raw formula string without the leading
// "=" normalization applied (it is stored exactly as the file carries it).
type Cell struct {
	Sheet    string
	Row      int // 1-based
	Col      int // 1-based
	RawValue string
	Formula  string
}

// Address returns the cell's A1-style address without the sheet qualifier.
func (c Cell) Address() string {
	return domain.ColumnName(c.Col) + strconv.Itoa(c.Row)
}

// Sheet is one worksheet's grid of values and formulas.
type Sheet struct {
	name     string
	rows     [][]string        // raw values, row-major, 0-based internally
	formulas map[cellKey]string // only cells that carry a formula
}

type cellKey struct{ row, col int }

// Name returns the sheet name exactly as it appears in the workbook.
func (s *Sheet) Name() string { return s.name }

// RowCount returns the number of rows with any data.
func (s *Sheet) RowCount() int { return len(s.rows) }

// ColCount returns the widest row's column count.
func (s *Sheet) ColCount() int {
	max := 0
	for _, r := range s.rows {
		if len(r) > max {
			max = len(r)
		}
	}
	return max
}

// Value returns the raw display value at the 1-based coordinates, or ""
// when the cell is empty or out of range.
func (s *Sheet) Value(row, col int) string {
	if row < 1 || col < 1 || row > len(s.rows) {
		return ""
	}
	r := s.rows[row-1]
	if col > len(r) {
		return ""
	}
	return r[col-1]
}

// Formula returns the formula at the 1-based coordinates, or "" for
// constant cells.
func (s *Sheet) Formula(row, col int) string {
	return s.formulas[cellKey{row, col}]
}

// Cell assembles the full Cell record for the coordinates.
func (s *Sheet) Cell(row, col int) Cell {
	return Cell{
		Sheet:    s.name,
		Row:      row,
		Col:      col,
		RawValue: s.Value(row, col),
		Formula:  s.Formula(row, col),
	}
}

// Numeric parses the cell at the coordinates as a number, applying the
// usual financial formatting: thousands separators, surrounding whitespace,
// currency prefixes, and accounting-style parentheses for negatives.
// Non-numeric content reports ok=false; it is never an error, the cell
// simply holds no value for that period.
func (s *Sheet) Numeric(row, col int) (float64, bool) {
	return ParseNumber(s.Value(row, col))
}

// EachFormula calls fn for every formula cell on the sheet. Iteration order
// is unspecified; callers needing determinism must sort.
func (s *Sheet) EachFormula(fn func(row, col int, formula string)) {
	for k, f := range s.formulas {
		fn(k.row, k.col, f)
	}
}

// Model is the immutable in-memory form of one workbook file.
type Model struct {
	name   string
	order  []string
	sheets map[string]*Sheet
}

// Name returns the file name the model was loaded from.
func (m *Model) Name() string { return m.name }

// SheetNames returns sheet names in workbook order.
func (m *Model) SheetNames() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Sheet looks up a sheet by exact name; nil when absent.
func (m *Model) Sheet(name string) *Sheet {
	return m.sheets[name]
}

// HasSheet reports whether the workbook contains the named sheet.
func (m *Model) HasSheet(name string) bool {
	_, ok := m.sheets[name]
	return ok
}

// NewModel builds a Model from in-memory grids. Values is sheet name to
// row-major raw values; formulas is sheet name to A1 address to formula
// string. Used by tests and by callers that already hold parsed data.
func NewModel(name string, values map[string][][]string, formulas map[string]map[string]string) *Model {
	m := &Model{
		name:   name,
		sheets: make(map[string]*Sheet, len(values)),
	}
	for sheetName, rows := range values {
		m.order = append(m.order, sheetName)
		sh := &Sheet{
			name:     sheetName,
			rows:     rows,
			formulas: make(map[cellKey]string),
		}
		for addr, formula := range formulas[sheetName] {
			if row, col, ok := parseAddress(addr); ok && formula != "" {
				sh.formulas[cellKey{row, col}] = formula
			}
		}
		m.sheets[sheetName] = sh
	}
	sort.Strings(m.order)
	return m
}

// ParseNumber parses financial cell text into a float. It accepts
// thousands separators, a leading currency symbol, a trailing percent sign
// (kept at face value), and accounting parentheses for negatives.
func ParseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return 0, false
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// parseAddress splits an A1-style address into 1-based row/col.
func parseAddress(addr string) (row, col int, ok bool) {
	i := 0
	for i < len(addr) && ((addr[i] >= 'A' && addr[i] <= 'Z') || (addr[i] >= 'a' && addr[i] <= 'z')) {
		i++
	}
	if i == 0 || i == len(addr) {
		return 0, 0, false
	}
	col = domain.ColumnNumber(addr[:i])
	if col == 0 {
		return 0, 0, false
	}
	for j := i; j < len(addr); j++ {
		if addr[j] < '0' || addr[j] > '9' {
			return 0, 0, false
		}
		row = row*10 + int(addr[j]-'0')
	}
	if row == 0 {
		return 0, 0, false
	}
	return row, col, true
}

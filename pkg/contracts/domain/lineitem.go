package domain

// LineItem is one named row of financial data within a sheet: the verbatim
// label from the first meaningful column plus one value per detected period.
// A LineItem belongs to exactly one sheet and row and is immutable after
// extraction.
//
// Values maps period label to the cell's numeric value; a period missing
// from the map means the cell held no usable number there. Formula carries
// the raw formula string of the first period cell that had one, empty when
// the whole row is hard-coded.
type LineItem struct {
	Name          string              `json:"name" validate:"required"`
	Sheet         string              `json:"sheet" validate:"required"`
	Row           int                 `json:"row" validate:"min=0"`
	StatementType StatementType       `json:"statement_type"`
	Values        map[string]float64  `json:"values"`
	Formulas      map[string]string   `json:"formulas,omitempty"`
}

// Value returns the item's value for a period and whether it was present.
func (li LineItem) Value(period string) (float64, bool) {
	v, ok := li.Values[period]
	return v, ok
}

// Formula returns the formula for a period, falling back to the first
// formula found on the row. Drill-down anchors on the period cell, so
// the exact-period formula wins when present.
func (li LineItem) Formula(period string) string {
	if f, ok := li.Formulas[period]; ok && f != "" {
		return f
	}
	for _, f := range li.Formulas {
		if f != "" {
			return f
		}
	}
	return ""
}

// HasFormula reports whether any period cell on the row carried a formula.
func (li LineItem) HasFormula() bool {
	for _, f := range li.Formulas {
		if f != "" {
			return true
		}
	}
	return false
}

// SheetStructure is the structure probe result for one sheet: its detected
// periods in column order and the extracted line items in row order. Callers
// use it to populate selection UIs before any variance is computed.
type SheetStructure struct {
	Sheet         string     `json:"sheet"`
	StatementType StatementType `json:"statement_type"`
	HeaderRow     int        `json:"header_row"`
	Periods       []Period   `json:"periods"`
	LineItems     []LineItem `json:"line_items"`
	// HardCodedCells lists addresses of numeric cells with no formula that
	// no formula references, surfaced as model-quality metadata.
	HardCodedCells []string `json:"hard_coded_cells,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

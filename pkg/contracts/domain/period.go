package domain

// Period is one detected period column in a sheet's header row.
//
// Label is the exact cell text from the workbook. It is never normalized,
// trimmed of meaning, or merged with look-alike labels from the other model;
// "Q1 2024" and "1Q24" stay distinct Periods even when they describe the
// same quarter. Uniqueness is (Sheet, ColumnIndex).
type Period struct {
	Label       string `json:"label" validate:"required"`
	ColumnIndex int    `json:"column_index" validate:"min=0"`
	Sheet       string `json:"sheet" validate:"required"`
	HeaderRow   int    `json:"header_row" validate:"min=0"`
}

// PeriodTemplate is a user-provided pattern that extends the period
// detector's built-in token set. Pattern is a regular expression matched
// against header cell text; Type is "annual", "quarterly" or "monthly"
// and is informational only.
type PeriodTemplate struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern" validate:"required"`
	Example string `json:"example,omitempty"`
	Type    string `json:"type" validate:"omitempty,oneof=annual quarterly monthly"`
}

// PeriodAlignment summarizes how the periods of the old and new models of
// one statement type line up, by exact label.
type PeriodAlignment struct {
	Common  []string `json:"common"`
	OldOnly []string `json:"old_only"`
	NewOnly []string `json:"new_only"`
}

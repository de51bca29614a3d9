package domain

// VarianceResult is the top-level variance for one matched pair at one
// period. PercentageVariance is (new-old)/|old|*100; when the old value is
// zero the percentage is undefined and PercentageUndefined is set instead of
// emitting Inf or NaN.
type VarianceResult struct {
	LineItemName        string    `json:"line_item_name"`
	MatchedWith         string    `json:"matched_with,omitempty"`
	OldValue            *float64  `json:"old_value,omitempty"`
	NewValue            *float64  `json:"new_value,omitempty"`
	AbsoluteVariance    float64   `json:"absolute_variance"`
	PercentageVariance  float64   `json:"percentage_variance"`
	PercentageUndefined bool      `json:"percentage_undefined,omitempty"`
	MatchConfidence     float64   `json:"match_confidence"`
	MatchKind           MatchKind `json:"match_kind"`
	DrillDownAvailable  bool      `json:"drill_down_available"`
}

// DrillDownStatus tracks the state machine of one drill-down request.
type DrillDownStatus string

const (
	DrillDownRequested         DrillDownStatus = "requested"
	DrillDownGraphBuilding     DrillDownStatus = "graph_building"
	DrillDownComponentMatching DrillDownStatus = "component_matching"
	DrillDownAttributed        DrillDownStatus = "attributed"
	DrillDownFailed            DrillDownStatus = "failed"
)

// DrillDownFailure is the terminal reason of a failed drill-down.
type DrillDownFailure string

const (
	// FailureNoFormula marks a leaf line item; not an error, just nothing
	// to decompose.
	FailureNoFormula         DrillDownFailure = "no_formula"
	FailureCircularReference DrillDownFailure = "circular_reference"
	FailureParseError        DrillDownFailure = "parse_error"
	FailureTimeout           DrillDownFailure = "timeout"
)

// Component is one formula operand's contribution to a drill-down.
// Asymmetric is set when the operand exists in only one model's formula
// (structural drift); its full new-minus-old still counts toward
// TotalExplained.
type Component struct {
	Name                 string   `json:"name"`
	CellRef              string   `json:"cell_ref"`
	OldValue             *float64 `json:"old_value,omitempty"`
	NewValue             *float64 `json:"new_value,omitempty"`
	VarianceContribution float64  `json:"variance_contribution"`
	IsLeaf               bool     `json:"is_leaf"`
	HasFormula           bool     `json:"has_formula"`
	Asymmetric           bool     `json:"asymmetric,omitempty"`
	ParseWarning         bool     `json:"parse_warning,omitempty"`
}

// DrillDownResult decomposes one line item's variance into the variances of
// its immediate formula operands. UnexplainedVariance is the residual of the
// total variance not covered by component contributions, typically caused by
// structural drift between the old and new formulas.
type DrillDownResult struct {
	Status              DrillDownStatus  `json:"status"`
	FailureReason       DrillDownFailure `json:"failure_reason,omitempty"`
	LineItemName        string           `json:"line_item_name"`
	Period              string           `json:"period"`
	SourceValueOld      float64          `json:"source_value_old"`
	SourceValueNew      float64          `json:"source_value_new"`
	TotalVariance       float64          `json:"total_variance"`
	TotalExplained      float64          `json:"total_explained"`
	UnexplainedVariance float64          `json:"unexplained_variance"`
	Components          []Component      `json:"components"`
	Warnings            []string         `json:"warnings,omitempty"`
}

// DrillDownPreview estimates what a drill-down would show without building
// the full dependency graph.
type DrillDownPreview struct {
	CanDrillDown        bool   `json:"can_drill_down"`
	Reason              string `json:"reason,omitempty"`
	Complexity          string `json:"complexity,omitempty"`
	EstimatedComponents int    `json:"estimated_components,omitempty"`
	HasCrossSheetRefs   bool   `json:"has_cross_sheet_refs,omitempty"`
	HasExternalRefs     bool   `json:"has_external_refs,omitempty"`
	MainFunction        string `json:"main_function,omitempty"`
}

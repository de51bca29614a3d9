// Package api contains API contract definitions for the financial model
// analyzer. Version v1 represents the current stable API version.
package api

// Session API Requests

// SessionCreateRequest represents a request to open an analysis session
// over two versions of a model workbook.
type SessionCreateRequest struct {
	OldFile string `json:"old_file" validate:"required"`
	NewFile string `json:"new_file" validate:"required"`
}

// SelectionsRequest maps statement types to sheet names. Keys must be
// valid statement types and every sheet must exist in both workbooks.
type SelectionsRequest struct {
	Selections map[string]string `json:"selections" validate:"required,min=1,dive,keys,oneof=income_statement balance_sheet cash_flow,endkeys,required"`
}

// PeriodTemplateRequest describes one user-supplied period header token.
type PeriodTemplateRequest struct {
	Name    string `json:"name" validate:"required"`
	Pattern string `json:"pattern" validate:"required"`
	Example string `json:"example,omitempty"`
	Type    string `json:"type,omitempty" validate:"omitempty,oneof=annual quarterly monthly"`
}

// TemplatesAddRequest registers additional period templates on a session.
type TemplatesAddRequest struct {
	Templates []PeriodTemplateRequest `json:"templates" validate:"required,min=1,dive"`
}

// TemplateSuggestRequest asks for template suggestions for unrecognized
// header labels.
type TemplateSuggestRequest struct {
	Labels []string `json:"labels" validate:"required,min=1"`
}

// DrillDownRequest identifies the line item and period to attribute.
type DrillDownRequest struct {
	LineItem string `json:"line_item" validate:"required"`
	Period   string `json:"period" validate:"required"`
}

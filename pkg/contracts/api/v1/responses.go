package api

import (
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// SessionCreateResponse mirrors the session summary returned on creation.
type SessionCreateResponse struct {
	SessionID   string                          `json:"session_id"`
	OldFile     string                          `json:"old_file"`
	NewFile     string                          `json:"new_file"`
	Sheets      []string                        `json:"sheets"`
	Suggestions map[string]domain.StatementType `json:"suggestions"`
}

// StructureResponse carries both versions' probed structure for one
// statement type.
type StructureResponse struct {
	StatementType domain.StatementType   `json:"statement_type"`
	Old           *domain.SheetStructure `json:"old"`
	New           *domain.SheetStructure `json:"new"`
}

// PeriodsResponse reports period label alignment between versions.
type PeriodsResponse struct {
	StatementType domain.StatementType `json:"statement_type"`
	Common        []string             `json:"common"`
	OldOnly       []string             `json:"old_only"`
	NewOnly       []string             `json:"new_only"`
}

// VarianceResponse is the ordered variance table for one period.
type VarianceResponse struct {
	StatementType domain.StatementType    `json:"statement_type"`
	Period        string                  `json:"period"`
	Results       []domain.VarianceResult `json:"results"`
	Count         int                     `json:"count"`
}

// TemplateSuggestResponse lists proposed period templates.
type TemplateSuggestResponse struct {
	Templates []domain.PeriodTemplate `json:"templates"`
	Count     int                     `json:"count"`
}

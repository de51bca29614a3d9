// Package domain contains the core data types shared between the analysis
// engine and its callers. Types here are immutable once constructed; the
// engine only ever returns freshly built values.
package domain

// StatementType identifies which financial statement a sheet represents.
type StatementType string

const (
	StatementIncome    StatementType = "income_statement"
	StatementBalance   StatementType = "balance_sheet"
	StatementCashFlow  StatementType = "cash_flow"
	StatementUnknown   StatementType = "unknown"
)

// AllStatementTypes lists the statement types in presentation order.
var AllStatementTypes = []StatementType{StatementIncome, StatementBalance, StatementCashFlow}

// Valid reports whether t is one of the known statement types.
func (t StatementType) Valid() bool {
	switch t {
	case StatementIncome, StatementBalance, StatementCashFlow:
		return true
	}
	return false
}

// SheetSelection maps a statement type to the sheet name the user chose
// for it. The engine never guesses this mapping at analysis time; sheet
// type detection only ever produces suggestions.
type SheetSelection map[StatementType]string

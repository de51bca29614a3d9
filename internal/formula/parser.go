// Package formula extracts cell and range references from spreadsheet
// formula text. It deliberately does not evaluate anything: the engine
// only needs a formula's input set, since every referenced cell already
// carries its cached value in the loaded workbook.
package formula

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xuri/efp"

	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// Operand is one extracted formula input: either a single cell or a range.
type Operand struct {
	// Position is the operand's ordinal within the formula, counting
	// references left to right. Component pairing across workbook
	// versions keys on it.
	Position int
	Cell     *domain.CellRef
	Range    *domain.RangeRef
}

// Refs returns the operand's constituent cell references. Ranges expand
// up to limit cells.
func (o Operand) Refs(limit int) []domain.CellRef {
	if o.Cell != nil {
		return []domain.CellRef{*o.Cell}
	}
	if o.Range != nil {
		return o.Range.Cells(limit)
	}
	return nil
}

// External reports whether the operand points into another workbook file.
func (o Operand) External() bool {
	if o.Cell != nil {
		return o.Cell.External()
	}
	if o.Range != nil {
		return o.Range.Start.External()
	}
	return false
}

// Result is the outcome of parsing one formula. ParseWarning is set when
// some or all of the formula could not be tokenized; whatever operands
// were recovered are still present, and the caller degrades the node to a
// leaf on its cached value rather than failing the analysis.
type Result struct {
	Expression   string
	Operands     []Operand
	ParseWarning bool
	WarningText  string
}

// HasRefs reports whether any operands were extracted.
func (r Result) HasRefs() bool { return len(r.Operands) > 0 }

// Parser tokenizes formulas with the same tokenizer the spreadsheet
// library itself evaluates with, so reference syntax coverage matches
// what loaded files can actually contain.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse extracts the operand references of a formula defined on
// currentSheet. A leading "=" is tolerated. Function calls (SUM, AVERAGE,
// IF, VLOOKUP and anything else the tokenizer understands) contribute
// their cell and range arguments; their semantics are ignored. Reference
// forms covered: A1, $A$1, Sheet1!A1, 'Sheet Name'!A1, A1:B5 with any
// absolute markers, and [Book.xlsx]Sheet!A1 external references.
//
// Parse never returns an error: malformed syntax yields a Result with
// ParseWarning set and whatever operands were recoverable.
func (p *Parser) Parse(expression, currentSheet string) Result {
	res := Result{Expression: expression}
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(expression), "="))
	if trimmed == "" {
		return res
	}

	ps := efp.ExcelParser()
	tokens := ps.Parse(trimmed)
	if tokens == nil {
		res.ParseWarning = true
		res.WarningText = "formula could not be tokenized"
		p.logger.Warn("formula tokenization failed", slog.String("sheet", currentSheet), slog.String("formula", expression))
		return res
	}

	position := 0
	for _, token := range tokens {
		if token.TType == efp.TokenTypeUnknown {
			res.ParseWarning = true
			res.WarningText = fmt.Sprintf("unrecognized token %q", token.TValue)
			continue
		}
		if token.TType != efp.TokenTypeOperand || token.TSubType != efp.TokenSubTypeRange {
			continue
		}

		op, err := p.parseReference(token.TValue, currentSheet, position)
		if err != nil {
			// Named ranges and structured table references land here;
			// they carry no resolvable address, so the formula keeps its
			// cached value and the node degrades to a leaf.
			res.ParseWarning = true
			res.WarningText = err.Error()
			p.logger.Debug("unresolvable reference",
				slog.String("sheet", currentSheet),
				slog.String("ref", token.TValue),
				slog.String("reason", err.Error()))
			continue
		}
		res.Operands = append(res.Operands, op)
		position++
	}
	return res
}

// parseReference turns one tokenizer operand value into an Operand.
func (p *Parser) parseReference(ref, currentSheet string, position int) (Operand, error) {
	workbook, sheet, cellPart := splitQualifier(ref)

	if start, end, ok := strings.Cut(cellPart, ":"); ok {
		startRef, err := parseCell(start)
		if err != nil {
			return Operand{}, fmt.Errorf("range start %q: %w", start, err)
		}
		endRef, err := parseCell(end)
		if err != nil {
			return Operand{}, fmt.Errorf("range end %q: %w", end, err)
		}
		startRef.Workbook, startRef.Sheet = workbook, sheet
		endRef.Workbook, endRef.Sheet = workbook, sheet
		return Operand{Position: position, Range: &domain.RangeRef{Start: startRef, End: endRef}}, nil
	}

	cell, err := parseCell(cellPart)
	if err != nil {
		return Operand{}, fmt.Errorf("reference %q: %w", ref, err)
	}
	cell.Workbook, cell.Sheet = workbook, sheet
	return Operand{Position: position, Cell: &cell}, nil
}

// splitQualifier separates "[Book.xlsx]Sheet" and "'Sheet Name'" prefixes
// from the cell part of a reference. Sheet stays empty for a same-sheet
// reference; the graph builder resolves those against the formula's own
// sheet.
func splitQualifier(ref string) (workbook, sheet, cellPart string) {
	cellPart = ref
	qualifier, rest, found := strings.Cut(ref, "!")
	if !found {
		return "", "", ref
	}
	cellPart = rest

	qualifier = strings.Trim(qualifier, "'")
	if strings.HasPrefix(qualifier, "[") {
		if end := strings.Index(qualifier, "]"); end > 0 {
			workbook = qualifier[1:end]
			qualifier = qualifier[end+1:]
		}
	}
	sheet = qualifier
	return workbook, sheet, cellPart
}

// parseCell parses an A1-form cell address with optional $ markers.
func parseCell(addr string) (domain.CellRef, error) {
	s := strings.TrimSpace(addr)
	if s == "" {
		return domain.CellRef{}, fmt.Errorf("empty address")
	}

	var ref domain.CellRef
	i := 0
	if s[i] == '$' {
		ref.AbsCol = true
		i++
	}
	colStart := i
	for i < len(s) && isLetter(s[i]) {
		i++
	}
	colName := s[colStart:i]
	if colName == "" {
		return domain.CellRef{}, fmt.Errorf("missing column letters")
	}
	if i < len(s) && s[i] == '$' {
		ref.AbsRow = true
		i++
	}
	rowPart := s[i:]
	if rowPart == "" {
		return domain.CellRef{}, fmt.Errorf("missing row number")
	}
	row, err := strconv.Atoi(rowPart)
	if err != nil || row < 1 {
		return domain.CellRef{}, fmt.Errorf("bad row %q", rowPart)
	}

	col := domain.ColumnNumber(colName)
	if col == 0 {
		return domain.CellRef{}, fmt.Errorf("bad column %q", colName)
	}
	ref.Col, ref.Row = col, row
	return ref, nil
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

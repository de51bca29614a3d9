package structure

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/rray336/financial-model-analyzer/internal/workbook"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// statementKeywords score sheet names and leading labels when suggesting a
// statement type. Matching is substring, case-insensitive, one point each.
var statementKeywords = map[domain.StatementType][]string{
	domain.StatementIncome:    {"income", "p&l", "profit", "revenue", "is", "operations"},
	domain.StatementBalance:   {"balance", "bs", "position", "assets"},
	domain.StatementCashFlow:  {"cash", "cf", "flows"},
}

// SuggestStatementType guesses the statement type of a sheet from its name
// and its first-column labels. Returns StatementUnknown when nothing scores.
func SuggestStatementType(sh *workbook.Sheet) domain.StatementType {
	scores := make(map[domain.StatementType]int)

	name := strings.ToLower(sh.Name())
	for st, words := range statementKeywords {
		for _, w := range words {
			if strings.Contains(name, w) {
				scores[st] += 2
			}
		}
	}

	// Leading labels break sheet-name ties; "Total Revenue" in column A
	// is a stronger income statement signal than a sheet named "Model".
	limit := sh.RowCount()
	if limit > 30 {
		limit = 30
	}
	for row := 1; row <= limit; row++ {
		label := strings.ToLower(sh.Value(row, 1))
		if label == "" {
			continue
		}
		for st, words := range statementKeywords {
			for _, w := range words {
				if len(w) > 2 && strings.Contains(label, w) {
					scores[st]++
				}
			}
		}
	}

	best, bestScore := domain.StatementUnknown, 0
	for _, st := range domain.AllStatementTypes {
		if scores[st] > bestScore {
			best, bestScore = st, scores[st]
		}
	}
	return best
}

// Prober runs full structure discovery for one sheet: period header,
// periods, and line items.
type Prober struct {
	detector  *PeriodDetector
	extractor *LineItemExtractor
	logger    *slog.Logger
}

// NewProber wires a Prober from its parts.
func NewProber(detector *PeriodDetector, extractor *LineItemExtractor, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{detector: detector, extractor: extractor, logger: logger}
}

// Probe discovers the structure of sh. A missing period header is fatal
// for the sheet; everything else degrades to warnings on the result.
func (p *Prober) Probe(sh *workbook.Sheet, statementType domain.StatementType) (*domain.SheetStructure, error) {
	headerRow, periods, err := p.detector.Detect(sh)
	if err != nil {
		return nil, fmt.Errorf("probe sheet %q: %w", sh.Name(), err)
	}

	items := p.extractor.Extract(sh, headerRow, periods, statementType)

	var warnings []string
	if len(items) == 0 {
		warnings = append(warnings, fmt.Sprintf("no line items found below header row %d", headerRow))
	}

	p.logger.Info("sheet structure probed",
		slog.String("sheet", sh.Name()),
		slog.String("statement_type", string(statementType)),
		slog.Int("header_row", headerRow),
		slog.Int("periods", len(periods)),
		slog.Int("line_items", len(items)))

	return &domain.SheetStructure{
		Sheet:         sh.Name(),
		StatementType: statementType,
		HeaderRow:     headerRow,
		Periods:       periods,
		LineItems:     items,
		Warnings:      warnings,
	}, nil
}

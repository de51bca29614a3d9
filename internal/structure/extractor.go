package structure

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/rray336/financial-model-analyzer/internal/workbook"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// ExtractorConfig tunes line item extraction.
type ExtractorConfig struct {
	// EmptyRowStop is the count of consecutive empty rows that ends the
	// scan. Default 10.
	EmptyRowStop int
	// LabelScanCols caps how many leading columns are searched for the
	// item label. Default 5.
	LabelScanCols int
}

// DefaultExtractorConfig returns the standard extraction tuning.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{EmptyRowStop: 10, LabelScanCols: 5}
}

// LineItemExtractor walks the rows below a detected period header and
// collects line items. The stop rule is uniform for all statement types:
// the scan ends at the sheet's last row or after EmptyRowStop consecutive
// empty rows, whichever comes first.
type LineItemExtractor struct {
	cfg      ExtractorConfig
	detector *PeriodDetector
	logger   *slog.Logger
}

// NewLineItemExtractor creates an extractor. The detector is used only to
// reject period-like text as a label candidate; pass the same instance
// used for header detection so template extensions carry over.
func NewLineItemExtractor(cfg ExtractorConfig, detector *PeriodDetector, logger *slog.Logger) *LineItemExtractor {
	if cfg.EmptyRowStop <= 0 {
		cfg.EmptyRowStop = 10
	}
	if cfg.LabelScanCols <= 0 {
		cfg.LabelScanCols = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LineItemExtractor{cfg: cfg, detector: detector, logger: logger}
}

// Extract collects line items from the rows below headerRow. A row becomes
// a LineItem when it has a meaningful label and at least one numeric value
// in a period column. Rows with a label but no numerics are section
// headers: skipped, and they do not advance the empty-row counter. Rows
// with neither label nor numerics are empty and advance the counter.
func (e *LineItemExtractor) Extract(sh *workbook.Sheet, headerRow int, periods []domain.Period, statementType domain.StatementType) []domain.LineItem {
	var items []domain.LineItem
	consecutiveEmpty := 0

	for row := headerRow + 1; row <= sh.RowCount(); row++ {
		label := e.labelFor(sh, row, periods)
		values, formulas := e.periodData(sh, row, periods)

		switch {
		case label != "" && len(values) > 0:
			items = append(items, domain.LineItem{
				Name:          label,
				Sheet:         sh.Name(),
				Row:           row,
				StatementType: statementType,
				Values:        values,
				Formulas:      formulas,
			})
			consecutiveEmpty = 0
		case label == "" && len(values) == 0:
			consecutiveEmpty++
			if consecutiveEmpty >= e.cfg.EmptyRowStop {
				e.logger.Debug("line item scan stopped",
					slog.String("sheet", sh.Name()),
					slog.Int("row", row),
					slog.Int("items", len(items)))
				return items
			}
		default:
			// Section headers and stray numeric rows: not items, not
			// empty. The counter holds.
		}
	}
	return items
}

// labelFor finds the item label for a row: the first cell in the leading
// columns, before the first period column, holding meaningful text that is
// not itself a period token.
func (e *LineItemExtractor) labelFor(sh *workbook.Sheet, row int, periods []domain.Period) string {
	maxCol := e.cfg.LabelScanCols
	if len(periods) > 0 && periods[0].ColumnIndex-1 < maxCol {
		maxCol = periods[0].ColumnIndex - 1
	}
	for col := 1; col <= maxCol; col++ {
		text := strings.TrimSpace(sh.Value(row, col))
		if !meaningfulLabel(text) {
			continue
		}
		if e.detector != nil && e.detector.matchesPeriod(text) {
			continue
		}
		return text
	}
	return ""
}

// periodData collects the numeric values and formulas of a row keyed by
// period label. Non-numeric cells in period columns are ignored.
func (e *LineItemExtractor) periodData(sh *workbook.Sheet, row int, periods []domain.Period) (map[string]float64, map[string]string) {
	values := make(map[string]float64)
	formulas := make(map[string]string)
	for _, p := range periods {
		if v, ok := sh.Numeric(row, p.ColumnIndex); ok {
			values[p.Label] = v
		}
		if f := sh.Formula(row, p.ColumnIndex); f != "" {
			formulas[p.Label] = f
		}
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, formulas
}

// meaningfulLabel reports whether text can serve as a line item name.
// Pure punctuation and formatting runs (separators like "-----" or "===")
// do not qualify.
func meaningfulLabel(text string) bool {
	if text == "" {
		return false
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Package structure infers the layout of a financial statement sheet
// without any hardcoded assumptions about where things live: which row
// carries the period headers, and which rows below it are line items.
package structure

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/rray336/financial-model-analyzer/internal/workbook"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// defaultPeriodPatterns is the built-in token set for recognizing period
// labels in header cells. Order matters only for readability; a cell counts
// once no matter how many patterns hit it.
var defaultPeriodPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Q[1-4]\s?\d{2,4}`),          // Q1 2024, Q3 25
	regexp.MustCompile(`(?i)[1-4]Q\d{2,4}E?`),           // 1Q24, 2Q2024E
	regexp.MustCompile(`(?i)FY[1-4]Q\d{0,4}E?`),         // FY1Q25, FY2Q
	regexp.MustCompile(`(?i)FY\s?\d{4}E?`),              // FY2024, FY 2025E
	regexp.MustCompile(`(?i)CY\s?\d{4}E?`),              // CY2024
	regexp.MustCompile(`\b(19|20)\d{2}E?\b`),            // 2024, 2025E
	regexp.MustCompile(`(?i)(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*[\s-]?\d{2,4}`), // Mar-24
	regexp.MustCompile(`\b\d{1,2}/\d{4}\b`),             // 3/2024
	regexp.MustCompile(`(?i)\d{4}\s?(Actual|Estimate|Forecast|Budget)`),
}

// phone-number and long-digit guards; header cells like "077-123-4567"
// match the year pattern otherwise.
var (
	phonePattern     = regexp.MustCompile(`^\d{3}-\d{3}-\d{4}$`)
	longDigitPattern = regexp.MustCompile(`^\d{10,}$`)
	pureYearPattern  = regexp.MustCompile(`^(19|20)\d{2}E?$`)
)

// NoPeriodHeaderError reports that no row in the scanned range qualified as
// a period header. It is request-level fatal: nothing downstream can run
// without a period axis, and silently defaulting to row 1 would misattribute
// every value, so callers must surface it.
type NoPeriodHeaderError struct {
	Sheet       string
	RowsScanned int
}

func (e *NoPeriodHeaderError) Error() string {
	return fmt.Sprintf("no period header row found in first %d rows of sheet %q", e.RowsScanned, e.Sheet)
}

// DetectorConfig tunes the period header heuristic.
type DetectorConfig struct {
	// ScanRows is how many rows from the top are candidates. Default 10.
	ScanRows int
	// MinPeriodCells is the minimum number of period-like cells a row
	// needs to qualify as the header. Default 3.
	MinPeriodCells int
}

// DefaultDetectorConfig returns the standard detection tuning.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{ScanRows: 10, MinPeriodCells: 3}
}

// PeriodDetector finds the period header row of a sheet and extracts its
// Period records.
type PeriodDetector struct {
	cfg      DetectorConfig
	patterns []*regexp.Regexp
	logger   *slog.Logger
}

// NewPeriodDetector creates a detector with the built-in token set.
func NewPeriodDetector(cfg DetectorConfig, logger *slog.Logger) *PeriodDetector {
	if cfg.ScanRows <= 0 {
		cfg.ScanRows = 10
	}
	if cfg.MinPeriodCells <= 0 {
		cfg.MinPeriodCells = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodDetector{cfg: cfg, patterns: defaultPeriodPatterns, logger: logger}
}

// WithTemplates returns a detector whose token set is extended by the user
// supplied templates. Templates are additive only; the built-in heuristic
// always stays active.
func (d *PeriodDetector) WithTemplates(templates []domain.PeriodTemplate) (*PeriodDetector, error) {
	if len(templates) == 0 {
		return d, nil
	}
	patterns := make([]*regexp.Regexp, 0, len(d.patterns)+len(templates))
	patterns = append(patterns, d.patterns...)
	for _, t := range templates {
		re, err := regexp.Compile(t.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile period template %q: %w", t.Name, err)
		}
		patterns = append(patterns, re)
	}
	return &PeriodDetector{cfg: d.cfg, patterns: patterns, logger: d.logger}, nil
}

// Detect scans the first ScanRows rows of the sheet, scores each by its
// count of period-like cells, and returns the winner's row number together
// with its Period records in strict left-to-right column order. Labels are
// the exact cell text. Ties on score go to the earliest row.
func (d *PeriodDetector) Detect(sh *workbook.Sheet) (int, []domain.Period, error) {
	scanRows := d.cfg.ScanRows
	if rc := sh.RowCount(); rc < scanRows {
		scanRows = rc
	}

	bestRow, bestCount := 0, 0
	for row := 1; row <= scanRows; row++ {
		count := d.countPeriodCells(sh, row)
		if count >= d.cfg.MinPeriodCells && count > bestCount {
			bestRow, bestCount = row, count
		}
	}

	if bestRow == 0 {
		return 0, nil, &NoPeriodHeaderError{Sheet: sh.Name(), RowsScanned: d.cfg.ScanRows}
	}

	periods := d.periodsInRow(sh, bestRow)
	d.logger.Debug("period header detected",
		slog.String("sheet", sh.Name()),
		slog.Int("header_row", bestRow),
		slog.Int("periods", len(periods)))

	return bestRow, periods, nil
}

// countPeriodCells scores one row. The first column is excluded since it
// usually carries the line item label column header.
func (d *PeriodDetector) countPeriodCells(sh *workbook.Sheet, row int) int {
	count := 0
	for col := 2; col <= sh.ColCount(); col++ {
		if d.matchesPeriod(sh.Value(row, col)) {
			count++
		}
	}
	return count
}

// periodsInRow emits Period records for every matching cell of the header
// row, in column order, with labels verbatim.
func (d *PeriodDetector) periodsInRow(sh *workbook.Sheet, row int) []domain.Period {
	var periods []domain.Period
	for col := 2; col <= sh.ColCount(); col++ {
		text := sh.Value(row, col)
		if !d.matchesPeriod(text) {
			continue
		}
		periods = append(periods, domain.Period{
			Label:       text,
			ColumnIndex: col,
			Sheet:       sh.Name(),
			HeaderRow:   row,
		})
	}
	return periods
}

// matchesPeriod reports whether cell text looks like a period label.
func (d *PeriodDetector) matchesPeriod(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	// Unevaluated header formulas are opaque; their display value was
	// already resolved at load time, so a leading "=" here means excelize
	// had nothing cached and there is nothing to match.
	if strings.HasPrefix(trimmed, "=") {
		return false
	}
	if phonePattern.MatchString(trimmed) || longDigitPattern.MatchString(trimmed) {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, word := range []string{"phone", "tel", "fax", "contact"} {
		if strings.Contains(lower, word) {
			return false
		}
	}

	for _, re := range d.patterns {
		loc := re.FindString(trimmed)
		if loc == "" {
			continue
		}
		// Bare four-digit years outside a plausible business range are
		// more likely row counts or identifiers than periods.
		if pureYearPattern.MatchString(trimmed) {
			year, err := strconv.Atoi(strings.TrimSuffix(trimmed, "E"))
			if err != nil || year < 1990 || year > 2050 {
				continue
			}
		}
		return true
	}
	return false
}

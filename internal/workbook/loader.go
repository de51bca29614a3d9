package workbook

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// Load reads an Excel file into an immutable Model. Both the displayed
// values and the raw formula strings are captured; formulas are what the
// dependency graph walks, values are what variance arithmetic uses.
//
// Individual cell read errors are logged and skipped so one bad cell cannot
// sink a whole workbook; only failing to open the file or read a sheet is
// fatal.
func Load(path string, logger *slog.Logger) (*Model, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	m := &Model{
		name:   filepath.Base(path),
		sheets: make(map[string]*Sheet),
	}

	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheetName, err)
		}

		sh := &Sheet{
			name:     sheetName,
			rows:     rows,
			formulas: make(map[cellKey]string),
		}

		for rowIdx, row := range rows {
			for colIdx := range row {
				cellName, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
				if err != nil {
					continue
				}
				formula, err := f.GetCellFormula(sheetName, cellName)
				if err != nil {
					logger.Warn("skipping unreadable cell",
						slog.String("sheet", sheetName),
						slog.String("cell", cellName),
						slog.String("error", err.Error()))
					continue
				}
				if formula != "" {
					sh.formulas[cellKey{rowIdx + 1, colIdx + 1}] = formula
				}
			}
		}

		m.order = append(m.order, sheetName)
		m.sheets[sheetName] = sh

		logger.Debug("loaded sheet",
			slog.String("workbook", m.name),
			slog.String("sheet", sheetName),
			slog.Int("rows", len(rows)),
			slog.Int("formulas", len(sh.formulas)))
	}

	if len(m.sheets) == 0 {
		return nil, fmt.Errorf("workbook %s contains no sheets", path)
	}

	logger.Info("workbook loaded",
		slog.String("workbook", m.name),
		slog.Int("sheets", len(m.sheets)))

	return m, nil
}

// HardCodedCells identifies numeric constant cells on a sheet that no
// formula on the same sheet references. These are the hand-typed overrides
// analysts care about when auditing a model.
func HardCodedCells(sh *Sheet, referenced map[string]bool) []string {
	var out []string
	for row := 1; row <= sh.RowCount(); row++ {
		for col := 1; col <= sh.ColCount(); col++ {
			if sh.Formula(row, col) != "" {
				continue
			}
			if _, ok := sh.Numeric(row, col); !ok {
				continue
			}
			addr := domain.ColumnName(col) + fmt.Sprint(row)
			if !referenced[addr] {
				out = append(out, addr)
			}
		}
	}
	return out
}

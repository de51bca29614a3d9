package workbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
		ok   bool
	}{
		{"plain integer", "100", 100, true},
		{"decimal", "12.5", 12.5, true},
		{"thousands separators", "1,234,567.89", 1234567.89, true},
		{"accounting negative", "(40)", -40, true},
		{"accounting negative with separators", "(1,250.50)", -1250.50, true},
		{"currency prefix", "$99.95", 99.95, true},
		{"currency inside parentheses", "($500)", -500, true},
		{"percent at face value", "12.5%", 12.5, true},
		{"leading minus", "-42", -42, true},
		{"whitespace padded", "  250  ", 250, true},
		{"empty", "", 0, false},
		{"bare dash placeholder", "-", 0, false},
		{"text", "Revenue", 0, false},
		{"formatting dashes", "-----", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumber(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestModelAccessors(t *testing.T) {
	m := NewModel("model.xlsx", map[string][][]string{
		"IS": {
			{"", "FY2023", "FY2024"},
			{"Revenue", "100", "120"},
			{"COGS", "(40)", "(45)"},
			{"Gross Profit", "60", "75"},
		},
		"BS": {
			{"Cash", "10"},
		},
	}, map[string]map[string]string{
		"IS": {
			"B4": "=B2+B3",
			"C4": "=C2+C3",
		},
	})

	t.Run("sheet names sorted", func(t *testing.T) {
		assert.Equal(t, []string{"BS", "IS"}, m.SheetNames())
	})

	t.Run("sheet lookup", func(t *testing.T) {
		require.NotNil(t, m.Sheet("IS"))
		assert.Nil(t, m.Sheet("CF"))
		assert.True(t, m.HasSheet("BS"))
		assert.False(t, m.HasSheet("CF"))
	})

	sh := m.Sheet("IS")

	t.Run("values are 1-based", func(t *testing.T) {
		assert.Equal(t, "FY2023", sh.Value(1, 2))
		assert.Equal(t, "Revenue", sh.Value(2, 1))
		assert.Equal(t, "", sh.Value(99, 99))
		assert.Equal(t, "", sh.Value(0, 0))
	})

	t.Run("numeric parsing through cells", func(t *testing.T) {
		v, ok := sh.Numeric(3, 2)
		require.True(t, ok)
		assert.Equal(t, -40.0, v)

		_, ok = sh.Numeric(2, 1)
		assert.False(t, ok)
	})

	t.Run("formulas only where defined", func(t *testing.T) {
		assert.Equal(t, "=B2+B3", sh.Formula(4, 2))
		assert.Equal(t, "", sh.Formula(2, 2))
	})

	t.Run("cell record", func(t *testing.T) {
		c := sh.Cell(4, 2)
		assert.Equal(t, "IS", c.Sheet)
		assert.Equal(t, "B4", c.Address())
		assert.Equal(t, "60", c.RawValue)
		assert.Equal(t, "=B2+B3", c.Formula)
	})

	t.Run("each formula visits all", func(t *testing.T) {
		seen := make(map[string]string)
		sh.EachFormula(func(row, col int, formula string) {
			seen[sh.Cell(row, col).Address()] = formula
		})
		assert.Len(t, seen, 2)
		assert.Equal(t, "=C2+C3", seen["C4"])
	})

	t.Run("dimensions", func(t *testing.T) {
		assert.Equal(t, 4, sh.RowCount())
		assert.Equal(t, 3, sh.ColCount())
	})
}

func TestHardCodedCells(t *testing.T) {
	m := NewModel("model.xlsx", map[string][][]string{
		"IS": {
			{"", "FY2023"},
			{"Revenue", "100"},
			{"COGS", "40"},
			{"Gross Profit", "60"},
			{"FX Rate", "1.1"},
		},
	}, map[string]map[string]string{
		"IS": {"B4": "=B2-B3"},
	})
	sh := m.Sheet("IS")

	// B2 and B3 are referenced by the gross profit formula; B5 is a bare
	// numeric input nothing points at.
	referenced := map[string]bool{"B2": true, "B3": true}
	cells := HardCodedCells(sh, referenced)

	assert.Contains(t, cells, "B5")
	assert.NotContains(t, cells, "B2")
	assert.NotContains(t, cells, "B3")
	assert.NotContains(t, cells, "B4") // formula cell
	assert.NotContains(t, cells, "A2") // text label
}

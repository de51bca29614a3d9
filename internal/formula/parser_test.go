package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

func TestParser_SingleCellReferences(t *testing.T) {
	p := NewParser(nil)

	tests := []struct {
		name    string
		formula string
		want    domain.CellRef
	}{
		{"relative", "=A1", domain.CellRef{Col: 1, Row: 1}},
		{"absolute", "=$A$1", domain.CellRef{Col: 1, Row: 1, AbsCol: true, AbsRow: true}},
		{"mixed column", "=$B2", domain.CellRef{Col: 2, Row: 2, AbsCol: true}},
		{"mixed row", "=B$2", domain.CellRef{Col: 2, Row: 2, AbsRow: true}},
		{"cross sheet", "=Sheet1!A1", domain.CellRef{Sheet: "Sheet1", Col: 1, Row: 1}},
		{"quoted sheet", "='Income Statement'!C10", domain.CellRef{Sheet: "Income Statement", Col: 3, Row: 10}},
		{"wide column", "=AA10", domain.CellRef{Col: 27, Row: 10}},
		{"no leading equals", "B5*2", domain.CellRef{Col: 2, Row: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Parse(tt.formula, "IS")
			require.False(t, res.ParseWarning, res.WarningText)
			require.Len(t, res.Operands, 1)
			require.NotNil(t, res.Operands[0].Cell)
			assert.Equal(t, tt.want, *res.Operands[0].Cell)
		})
	}
}

func TestParser_Ranges(t *testing.T) {
	p := NewParser(nil)

	res := p.Parse("=SUM(Sheet1!$A$1:$B$5)", "IS")
	require.False(t, res.ParseWarning)
	require.Len(t, res.Operands, 1)
	r := res.Operands[0].Range
	require.NotNil(t, r)
	assert.Equal(t, "Sheet1", r.Start.Sheet)
	assert.Equal(t, domain.CellRef{Sheet: "Sheet1", Col: 1, Row: 1, AbsCol: true, AbsRow: true}, r.Start)
	assert.Equal(t, domain.CellRef{Sheet: "Sheet1", Col: 2, Row: 5, AbsCol: true, AbsRow: true}, r.End)

	cells := r.Cells(0)
	assert.Len(t, cells, 10)
	assert.Equal(t, "Sheet1!A1", cells[0].Address())
	assert.Equal(t, "Sheet1!B5", cells[len(cells)-1].Address())
}

func TestParser_FunctionArguments(t *testing.T) {
	p := NewParser(nil)

	tests := []struct {
		name      string
		formula   string
		wantAddrs []string
	}{
		{"sum range", "=SUM(B2:B10)", []string{"B2", "B10"}},
		{"average", "=AVERAGE(C1,C2,C3)", []string{"C1", "C2", "C3"}},
		{"if", "=IF(A1>0,B1,C1)", []string{"A1", "B1", "C1"}},
		{"vlookup", "=VLOOKUP(A2,D1:E9,2,FALSE)", []string{"A2", "D1", "E9"}},
		{"nested", "=SUM(B2:B4)+IF(C1>0,C2,0)", []string{"B2", "B4", "C1", "C2"}},
		{"arithmetic", "=B2-B3*2", []string{"B2", "B3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Parse(tt.formula, "IS")
			require.False(t, res.ParseWarning, res.WarningText)

			var addrs []string
			for _, op := range res.Operands {
				for _, ref := range op.Refs(0) {
					if op.Range != nil {
						continue
					}
					addrs = append(addrs, ref.Address())
				}
				if op.Range != nil {
					addrs = append(addrs, op.Range.Start.Address(), op.Range.End.Address())
				}
			}
			assert.Equal(t, tt.wantAddrs, addrs)
		})
	}
}

func TestParser_OperandPositions(t *testing.T) {
	p := NewParser(nil)
	res := p.Parse("=B2+C2-D2", "IS")
	require.Len(t, res.Operands, 3)
	for i, op := range res.Operands {
		assert.Equal(t, i, op.Position)
	}
}

func TestParser_ExternalWorkbookReference(t *testing.T) {
	p := NewParser(nil)
	res := p.Parse("='[Model v1.xlsx]IS'!B2*1.1", "IS")
	require.Len(t, res.Operands, 1)
	op := res.Operands[0]
	require.NotNil(t, op.Cell)
	assert.True(t, op.External())
	assert.Equal(t, "Model v1.xlsx", op.Cell.Workbook)
	assert.Equal(t, "IS", op.Cell.Sheet)
}

func TestParser_ConstantsOnly(t *testing.T) {
	p := NewParser(nil)
	res := p.Parse("=100*1.05", "IS")
	assert.False(t, res.ParseWarning)
	assert.False(t, res.HasRefs())
}

func TestParser_Degradation(t *testing.T) {
	p := NewParser(nil)

	t.Run("named range degrades with warning", func(t *testing.T) {
		res := p.Parse("=MyNamedRange*2", "IS")
		assert.True(t, res.ParseWarning)
		assert.Empty(t, res.Operands)
	})

	t.Run("partial recovery keeps good operands", func(t *testing.T) {
		res := p.Parse("=B2+MyNamedRange", "IS")
		assert.True(t, res.ParseWarning)
		require.Len(t, res.Operands, 1)
		assert.Equal(t, "B2", res.Operands[0].Cell.Address())
	})

	t.Run("empty formula", func(t *testing.T) {
		res := p.Parse("", "IS")
		assert.False(t, res.ParseWarning)
		assert.Empty(t, res.Operands)
	})
}

package variance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rray336/financial-model-analyzer/internal/workbook"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

func pairOf(old, new_ *domain.LineItem) domain.MatchedPair {
	p := domain.MatchedPair{OldItem: old, NewItem: new_, Kind: domain.MatchExact, Confidence: 1.0}
	if old == nil {
		p.Kind = domain.MatchNewOnly
		p.Confidence = 0
	}
	if new_ == nil {
		p.Kind = domain.MatchOldOnly
		p.Confidence = 0
	}
	return p
}

func item(name string, row int, values map[string]float64, formulas map[string]string) *domain.LineItem {
	return &domain.LineItem{
		Name: name, Sheet: "IS", Row: row,
		StatementType: domain.StatementIncome,
		Values:        values, Formulas: formulas,
	}
}

func emptyEngine() *Engine {
	m := workbook.NewModel("x.xlsx", nil, nil)
	return NewEngine(m, m, DefaultConfig(), nil)
}

func TestEngine_Variance(t *testing.T) {
	e := emptyEngine()

	t.Run("basic arithmetic", func(t *testing.T) {
		p := pairOf(
			item("Revenue", 2, map[string]float64{"FY2024": 100}, nil),
			item("Revenue", 2, map[string]float64{"FY2024": 120}, nil),
		)
		res := e.Variance(p, "FY2024")
		assert.Equal(t, 20.0, res.AbsoluteVariance)
		assert.Equal(t, 20.0, res.PercentageVariance)
		assert.False(t, res.PercentageUndefined)
		require.NotNil(t, res.OldValue)
		assert.Equal(t, 100.0, *res.OldValue)
	})

	t.Run("negative base uses magnitude", func(t *testing.T) {
		p := pairOf(
			item("Net Loss", 2, map[string]float64{"FY2024": -50}, nil),
			item("Net Loss", 2, map[string]float64{"FY2024": -40}, nil),
		)
		res := e.Variance(p, "FY2024")
		assert.Equal(t, 10.0, res.AbsoluteVariance)
		assert.Equal(t, 20.0, res.PercentageVariance)
	})

	t.Run("zero old value reports undefined not inf", func(t *testing.T) {
		p := pairOf(
			item("New Segment", 2, map[string]float64{"FY2024": 0}, nil),
			item("New Segment", 2, map[string]float64{"FY2024": 50}, nil),
		)
		res := e.Variance(p, "FY2024")
		assert.Equal(t, 50.0, res.AbsoluteVariance)
		assert.True(t, res.PercentageUndefined)
		assert.Equal(t, 0.0, res.PercentageVariance)
	})

	t.Run("missing period on one side disables drill-down", func(t *testing.T) {
		p := pairOf(
			item("Revenue", 2, map[string]float64{"FY2023": 90}, nil),
			item("Revenue", 2, map[string]float64{"FY2024": 120}, nil),
		)
		res := e.Variance(p, "FY2024")
		assert.Nil(t, res.OldValue)
		require.NotNil(t, res.NewValue)
		assert.False(t, res.DrillDownAvailable)
		assert.Equal(t, 0.0, res.AbsoluteVariance)
	})

	t.Run("old-only pair", func(t *testing.T) {
		p := pairOf(item("Discontinued Ops", 2, map[string]float64{"FY2024": 10}, nil), nil)
		res := e.Variance(p, "FY2024")
		assert.Equal(t, domain.MatchOldOnly, res.MatchKind)
		require.NotNil(t, res.OldValue)
		assert.Nil(t, res.NewValue)
		assert.False(t, res.DrillDownAvailable)
	})

	t.Run("fuzzy pair reports both names", func(t *testing.T) {
		p := domain.MatchedPair{
			OldItem:    item("Total Revenue", 2, map[string]float64{"FY2024": 100}, nil),
			NewItem:    item("Total Revenues", 2, map[string]float64{"FY2024": 110}, nil),
			Kind:       domain.MatchFuzzy,
			Confidence: 0.93,
		}
		res := e.Variance(p, "FY2024")
		assert.Equal(t, "Total Revenue", res.LineItemName)
		assert.Equal(t, "Total Revenues", res.MatchedWith)
		assert.Equal(t, 0.93, res.MatchConfidence)
	})

	t.Run("formula makes drill-down available", func(t *testing.T) {
		p := pairOf(
			item("Gross Profit", 4, map[string]float64{"FY2024": 60}, map[string]string{"FY2024": "B2-B3"}),
			item("Gross Profit", 4, map[string]float64{"FY2024": 66}, map[string]string{"FY2024": "B2-B3"}),
		)
		res := e.Variance(p, "FY2024")
		assert.True(t, res.DrillDownAvailable)
	})
}

// drillEngine builds an engine over two one-sheet models that share the
// same layout: row 1 headers, B column is the period under analysis.
func drillEngine(oldValues, newValues [][]string, oldFormulas, newFormulas map[string]string) *Engine {
	oldM := workbook.NewModel("old.xlsx",
		map[string][][]string{"IS": oldValues},
		map[string]map[string]string{"IS": oldFormulas})
	newM := workbook.NewModel("new.xlsx",
		map[string][][]string{"IS": newValues},
		map[string]map[string]string{"IS": newFormulas})
	return NewEngine(oldM, newM, DefaultConfig(), nil)
}

func fyPeriod(col int) domain.Period {
	return domain.Period{Label: "FY2024", ColumnIndex: col, Sheet: "IS", HeaderRow: 1}
}

func TestEngine_DrillDown_Conservation(t *testing.T) {
	// Old: B2=10, B3=20, B4 = B2+B3 = 30. New: B2=15, B3=20, B4 = 35.
	e := drillEngine(
		[][]string{{"", "FY2024"}, {"Units", "10"}, {"Price Effect", "20"}, {"Total", "30"}},
		[][]string{{"", "FY2024"}, {"Units", "15"}, {"Price Effect", "20"}, {"Total", "35"}},
		map[string]string{"B4": "B2+B3"},
		map[string]string{"B4": "B2+B3"},
	)
	p := pairOf(
		item("Total", 4, map[string]float64{"FY2024": 30}, map[string]string{"FY2024": "B2+B3"}),
		item("Total", 4, map[string]float64{"FY2024": 35}, map[string]string{"FY2024": "B2+B3"}),
	)

	res := e.DrillDown(context.Background(), p, fyPeriod(2), fyPeriod(2))
	require.Equal(t, domain.DrillDownAttributed, res.Status)
	assert.Equal(t, 30.0, res.SourceValueOld)
	assert.Equal(t, 35.0, res.SourceValueNew)
	assert.Equal(t, 5.0, res.TotalVariance)
	assert.Equal(t, 5.0, res.TotalExplained)
	assert.Equal(t, 0.0, res.UnexplainedVariance)

	require.Len(t, res.Components, 2)
	units := res.Components[0]
	assert.Equal(t, "Units", units.Name)
	assert.Equal(t, "IS!B2", units.CellRef)
	assert.Equal(t, 5.0, units.VarianceContribution)
	assert.True(t, units.IsLeaf)
	assert.False(t, units.Asymmetric)

	assert.Equal(t, 0.0, res.Components[1].VarianceContribution)
}

func TestEngine_DrillDown_StructuralDrift(t *testing.T) {
	// New formula gains a third operand the old one lacks.
	e := drillEngine(
		[][]string{{"", "FY2024"}, {"Base", "10"}, {"Growth", "20"}, {"", ""}, {"Total", "30"}},
		[][]string{{"", "FY2024"}, {"Base", "10"}, {"Growth", "20"}, {"Acquisition", "7"}, {"Total", "37"}},
		map[string]string{"B5": "B2+B3"},
		map[string]string{"B5": "B2+B3+B4"},
	)
	p := pairOf(
		item("Total", 5, map[string]float64{"FY2024": 30}, map[string]string{"FY2024": "B2+B3"}),
		item("Total", 5, map[string]float64{"FY2024": 37}, map[string]string{"FY2024": "B2+B3+B4"}),
	)

	res := e.DrillDown(context.Background(), p, fyPeriod(2), fyPeriod(2))
	require.Equal(t, domain.DrillDownAttributed, res.Status)
	require.Len(t, res.Components, 3)

	acq := res.Components[2]
	assert.True(t, acq.Asymmetric)
	assert.Equal(t, "Acquisition", acq.Name)
	assert.Nil(t, acq.OldValue)
	require.NotNil(t, acq.NewValue)
	assert.Equal(t, 7.0, acq.VarianceContribution)

	assert.Equal(t, 7.0, res.TotalExplained)
	assert.Equal(t, 0.0, res.UnexplainedVariance)
}

func TestEngine_DrillDown_RangeOperand(t *testing.T) {
	e := drillEngine(
		[][]string{{"", "FY2024"}, {"Seg A", "10"}, {"Seg B", "20"}, {"Seg C", "30"}, {"Total", "60"}},
		[][]string{{"", "FY2024"}, {"Seg A", "12"}, {"Seg B", "20"}, {"Seg C", "33"}, {"Total", "65"}},
		map[string]string{"B5": "SUM(B2:B4)"},
		map[string]string{"B5": "SUM(B2:B4)"},
	)
	p := pairOf(
		item("Total", 5, map[string]float64{"FY2024": 60}, map[string]string{"FY2024": "SUM(B2:B4)"}),
		item("Total", 5, map[string]float64{"FY2024": 65}, map[string]string{"FY2024": "SUM(B2:B4)"}),
	)

	res := e.DrillDown(context.Background(), p, fyPeriod(2), fyPeriod(2))
	require.Equal(t, domain.DrillDownAttributed, res.Status)
	require.Len(t, res.Components, 1)
	c := res.Components[0]
	assert.Equal(t, 5.0, c.VarianceContribution)
	assert.Equal(t, "IS!B2:IS!B4", c.CellRef)
	assert.Equal(t, 0.0, res.UnexplainedVariance)
}

func TestEngine_DrillDown_NoFormula(t *testing.T) {
	e := drillEngine(
		[][]string{{"", "FY2024"}, {"Revenue", "100"}},
		[][]string{{"", "FY2024"}, {"Revenue", "120"}},
		nil, nil,
	)
	p := pairOf(
		item("Revenue", 2, map[string]float64{"FY2024": 100}, nil),
		item("Revenue", 2, map[string]float64{"FY2024": 120}, nil),
	)

	res := e.DrillDown(context.Background(), p, fyPeriod(2), fyPeriod(2))
	assert.Equal(t, domain.DrillDownFailed, res.Status)
	assert.Equal(t, domain.FailureNoFormula, res.FailureReason)
}

func TestEngine_DrillDown_CircularReference(t *testing.T) {
	e := drillEngine(
		[][]string{{"", "FY2024"}, {"Total", "30"}, {"Echo", "30"}},
		[][]string{{"", "FY2024"}, {"Total", "35"}, {"Echo", "35"}},
		map[string]string{"B2": "B3", "B3": "B2"},
		map[string]string{"B2": "B3", "B3": "B2"},
	)
	p := pairOf(
		item("Total", 2, map[string]float64{"FY2024": 30}, map[string]string{"FY2024": "B3"}),
		item("Total", 2, map[string]float64{"FY2024": 35}, map[string]string{"FY2024": "B3"}),
	)

	start := time.Now()
	res := e.DrillDown(context.Background(), p, fyPeriod(2), fyPeriod(2))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, domain.DrillDownFailed, res.Status)
	assert.Equal(t, domain.FailureCircularReference, res.FailureReason)
}

func TestEngine_DrillDown_ParseError(t *testing.T) {
	e := drillEngine(
		[][]string{{"", "FY2024"}, {"Total", "30"}},
		[][]string{{"", "FY2024"}, {"Total", "35"}},
		map[string]string{"B2": "MyName*2"},
		map[string]string{"B2": "OtherName*2"},
	)
	p := pairOf(
		item("Total", 2, map[string]float64{"FY2024": 30}, map[string]string{"FY2024": "MyName*2"}),
		item("Total", 2, map[string]float64{"FY2024": 35}, map[string]string{"FY2024": "OtherName*2"}),
	)

	res := e.DrillDown(context.Background(), p, fyPeriod(2), fyPeriod(2))
	assert.Equal(t, domain.DrillDownFailed, res.Status)
	assert.Equal(t, domain.FailureParseError, res.FailureReason)
	assert.NotEmpty(t, res.Warnings)
}

func TestEngine_DrillDown_Timeout(t *testing.T) {
	e := drillEngine(
		[][]string{{"", "FY2024"}, {"Total", "30"}, {"Input", "10"}},
		[][]string{{"", "FY2024"}, {"Total", "35"}, {"Input", "12"}},
		map[string]string{"B2": "B3"},
		map[string]string{"B2": "B3"},
	)
	e.cfg.DrillDownTimeout = time.Nanosecond
	p := pairOf(
		item("Total", 2, map[string]float64{"FY2024": 30}, map[string]string{"FY2024": "B3"}),
		item("Total", 2, map[string]float64{"FY2024": 35}, map[string]string{"FY2024": "B3"}),
	)

	time.Sleep(time.Millisecond)
	res := e.DrillDown(context.Background(), p, fyPeriod(2), fyPeriod(2))
	assert.Equal(t, domain.DrillDownFailed, res.Status)
	assert.Equal(t, domain.FailureTimeout, res.FailureReason)
}

func TestEngine_DrillDown_UnmatchedPair(t *testing.T) {
	e := emptyEngine()
	p := pairOf(item("Gone", 2, map[string]float64{"FY2024": 5}, nil), nil)
	res := e.DrillDown(context.Background(), p, fyPeriod(2), fyPeriod(2))
	assert.Equal(t, domain.DrillDownFailed, res.Status)
	assert.Equal(t, domain.FailureNoFormula, res.FailureReason)
}

func TestEngine_Preview(t *testing.T) {
	e := emptyEngine()

	t.Run("simple sum", func(t *testing.T) {
		p := pairOf(
			item("Total", 5, nil, map[string]string{"FY2024": "SUM(B2:B4)"}),
			item("Total", 5, nil, map[string]string{"FY2024": "SUM(B2:B4)"}),
		)
		pv := e.Preview(p, "FY2024")
		assert.True(t, pv.CanDrillDown)
		assert.Equal(t, "simple", pv.Complexity)
		assert.Equal(t, "SUM", pv.MainFunction)
		assert.Equal(t, 1, pv.EstimatedComponents)
	})

	t.Run("cross sheet flagged", func(t *testing.T) {
		p := pairOf(
			item("Total", 5, nil, map[string]string{"FY2024": "BS!B2+B3"}),
			item("Total", 5, nil, map[string]string{"FY2024": "BS!B2+B3"}),
		)
		pv := e.Preview(p, "FY2024")
		assert.True(t, pv.CanDrillDown)
		assert.True(t, pv.HasCrossSheetRefs)
	})

	t.Run("no formula", func(t *testing.T) {
		p := pairOf(item("Revenue", 2, nil, nil), item("Revenue", 2, nil, nil))
		pv := e.Preview(p, "FY2024")
		assert.False(t, pv.CanDrillDown)
		assert.NotEmpty(t, pv.Reason)
	})
}

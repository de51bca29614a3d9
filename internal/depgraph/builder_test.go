package depgraph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rray336/financial-model-analyzer/internal/formula"
	"github.com/rray336/financial-model-analyzer/internal/workbook"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

func newTestBuilder(t *testing.T, values map[string][][]string, formulas map[string]map[string]string) *Builder {
	t.Helper()
	model := workbook.NewModel("test.xlsx", values, formulas)
	return NewBuilder(model, formula.NewParser(nil), DefaultBuilderConfig(), nil)
}

func TestBuilder_SimpleTree(t *testing.T) {
	b := newTestBuilder(t,
		map[string][][]string{"IS": {
			{"", ""},
			{"Revenue", "100"},
			{"COGS", "40"},
			{"Gross Profit", "60"},
		}},
		map[string]map[string]string{"IS": {
			"B4": "B2-B3",
		}},
	)

	g, err := b.Build(context.Background(), domain.CellRef{Sheet: "IS", Col: 2, Row: 4})
	require.NoError(t, err)
	require.NotNil(t, g.Root)

	assert.Equal(t, "IS!B4", g.Root.Address())
	assert.True(t, g.Root.HasFormula())
	assert.False(t, g.Root.IsLeaf)
	require.Len(t, g.Root.Operands, 2)

	rev := g.Root.Operands[0].Nodes[0]
	assert.Equal(t, "IS!B2", rev.Address())
	assert.True(t, rev.IsLeaf)
	require.NotNil(t, rev.Value)
	assert.Equal(t, 100.0, *rev.Value)

	cogs := g.Root.Operands[1].Nodes[0]
	assert.Equal(t, "IS!B3", cogs.Address())
	assert.True(t, cogs.IsLeaf)

	assert.False(t, g.Circular)
	assert.Equal(t, 3, g.Size())
}

func TestBuilder_SharedNodes(t *testing.T) {
	b := newTestBuilder(t,
		map[string][][]string{"IS": {
			{"", "10"},
			{"", ""},
			{"", ""},
		}},
		map[string]map[string]string{"IS": {
			"B2": "B1*2",
			"B3": "B1+B2",
		}},
	)

	g, err := b.Build(context.Background(), domain.CellRef{Sheet: "IS", Col: 2, Row: 3})
	require.NoError(t, err)

	// B1 is referenced by both the root and B2 but appears once.
	assert.Equal(t, 3, g.Size())
	b1Direct := g.Root.Operands[0].Nodes[0]
	b1ViaB2 := g.Root.Operands[1].Nodes[0].Operands[0].Nodes[0]
	assert.Same(t, b1Direct, b1ViaB2)
	assert.False(t, g.Circular)
}

func TestBuilder_CircularReference(t *testing.T) {
	b := newTestBuilder(t,
		map[string][][]string{"IS": {
			{"1", "2"},
		}},
		map[string]map[string]string{"IS": {
			"A1": "B1",
			"B1": "A1",
		}},
	)

	deadline := time.Now().Add(5 * time.Second)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	g, err := b.Build(ctx, domain.CellRef{Sheet: "IS", Col: 1, Row: 1})
	require.NoError(t, err)
	assert.True(t, g.Circular)
	assert.True(t, time.Now().Before(deadline), "cycle must be cut, not timed out")

	root := g.Node("IS!A1")
	require.NotNil(t, root)
	assert.True(t, root.Circular)
	assert.NotEmpty(t, g.Warnings)
}

func TestBuilder_SelfReference(t *testing.T) {
	b := newTestBuilder(t,
		map[string][][]string{"IS": {{"5"}}},
		map[string]map[string]string{"IS": {"A1": "A1+1"}},
	)

	g, err := b.Build(context.Background(), domain.CellRef{Sheet: "IS", Col: 1, Row: 1})
	require.NoError(t, err)
	assert.True(t, g.Circular)
	assert.True(t, g.Root.Circular)
}

func TestBuilder_DepthLimit(t *testing.T) {
	// A chain A1 = A2, A2 = A3, ... deeper than the bound.
	const chain = 100
	rows := make([][]string, chain)
	formulas := make(map[string]string, chain)
	for i := 0; i < chain; i++ {
		rows[i] = []string{"1"}
		if i < chain-1 {
			formulas[fmt.Sprintf("A%d", i+1)] = fmt.Sprintf("A%d", i+2)
		}
	}

	model := workbook.NewModel("test.xlsx",
		map[string][][]string{"IS": rows},
		map[string]map[string]string{"IS": formulas})
	b := NewBuilder(model, formula.NewParser(nil), BuilderConfig{MaxDepth: 10, RangeExpandLimit: 256}, nil)

	g, err := b.Build(context.Background(), domain.CellRef{Sheet: "IS", Col: 1, Row: 1})
	require.NoError(t, err)

	truncated := 0
	for i := 1; i <= chain; i++ {
		if n := g.Node(fmt.Sprintf("IS!A%d", i)); n != nil && n.Truncated {
			truncated++
			assert.True(t, n.IsLeaf)
		}
	}
	assert.Equal(t, 1, truncated)
	assert.LessOrEqual(t, g.Size(), 12)
}

func TestBuilder_ContextCancellation(t *testing.T) {
	b := newTestBuilder(t,
		map[string][][]string{"IS": {{"1", "2"}}},
		map[string]map[string]string{"IS": {"A1": "B1"}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Build(ctx, domain.CellRef{Sheet: "IS", Col: 1, Row: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuilder_ExternalReferenceIsLeaf(t *testing.T) {
	b := newTestBuilder(t,
		map[string][][]string{"IS": {{"", "50"}}},
		map[string]map[string]string{"IS": {"B1": "'[Prior Model.xlsx]IS'!B1*1.05"}},
	)

	g, err := b.Build(context.Background(), domain.CellRef{Sheet: "IS", Col: 2, Row: 1})
	require.NoError(t, err)
	require.Len(t, g.Root.Operands, 1)

	ext := g.Root.Operands[0].Nodes[0]
	assert.True(t, ext.IsExternal)
	assert.True(t, ext.IsLeaf)
	assert.Nil(t, ext.Value)
}

func TestBuilder_UnparseableFormulaDegrades(t *testing.T) {
	b := newTestBuilder(t,
		map[string][][]string{"IS": {{"", "75"}}},
		map[string]map[string]string{"IS": {"B1": "SomeNamedRange*3"}},
	)

	g, err := b.Build(context.Background(), domain.CellRef{Sheet: "IS", Col: 2, Row: 1})
	require.NoError(t, err)

	assert.True(t, g.Root.ParseWarning)
	assert.True(t, g.Root.IsLeaf)
	require.NotNil(t, g.Root.Value)
	assert.Equal(t, 75.0, *g.Root.Value)
	assert.NotEmpty(t, g.Warnings)
}

func TestBuilder_RangeExpansion(t *testing.T) {
	b := newTestBuilder(t,
		map[string][][]string{"IS": {
			{"10", ""},
			{"20", ""},
			{"30", ""},
			{"", ""},
		}},
		map[string]map[string]string{"IS": {"B4": "SUM(A1:A3)"}},
	)

	g, err := b.Build(context.Background(), domain.CellRef{Sheet: "IS", Col: 2, Row: 4})
	require.NoError(t, err)
	require.Len(t, g.Root.Operands, 1)
	assert.Len(t, g.Root.Operands[0].Nodes, 3)
	for _, n := range g.Root.Operands[0].Nodes {
		assert.True(t, n.IsLeaf)
		require.NotNil(t, n.Value)
	}
}

package depgraph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rray336/financial-model-analyzer/internal/formula"
	"github.com/rray336/financial-model-analyzer/internal/workbook"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// BuilderConfig bounds graph construction.
type BuilderConfig struct {
	// MaxDepth caps recursion depth; nodes at the bound become truncated
	// leaves. Default 64.
	MaxDepth int
	// RangeExpandLimit caps how many cells one range operand may expand
	// to; larger ranges contribute only their corner cells. Default 256.
	RangeExpandLimit int
}

// DefaultBuilderConfig returns the standard construction bounds.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{MaxDepth: 64, RangeExpandLimit: 256}
}

// Builder constructs dependency graphs over one workbook model.
type Builder struct {
	model  *workbook.Model
	parser *formula.Parser
	cfg    BuilderConfig
	logger *slog.Logger
}

// NewBuilder creates a Builder bound to a loaded workbook.
func NewBuilder(model *workbook.Model, parser *formula.Parser, cfg BuilderConfig, logger *slog.Logger) *Builder {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 64
	}
	if cfg.RangeExpandLimit <= 0 {
		cfg.RangeExpandLimit = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{model: model, parser: parser, cfg: cfg, logger: logger}
}

// Build expands the graph rooted at root. Cycles and depth overruns are
// recorded on the graph, not returned as errors; the only error is
// context cancellation, checked at every node so a deadline cuts even a
// pathological fan-out promptly.
func (b *Builder) Build(ctx context.Context, root domain.CellRef) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*Node)}
	visiting := make(map[string]bool)

	node, err := b.expand(ctx, g, root, visiting, 0)
	if err != nil {
		return nil, err
	}
	g.Root = node
	return g, nil
}

func (b *Builder) expand(ctx context.Context, g *Graph, ref domain.CellRef, visiting map[string]bool, depth int) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dependency graph build canceled at %s: %w", ref.Address(), err)
	}

	addr := ref.Address()
	if existing, ok := g.nodes[addr]; ok {
		if visiting[addr] {
			// Back edge: this cell is an ancestor of itself.
			if !existing.Circular {
				existing.Circular = true
				g.Warnings = append(g.Warnings, fmt.Sprintf("circular reference at %s", addr))
			}
			g.Circular = true
		}
		return existing, nil
	}

	node := &Node{Ref: ref}
	g.nodes[addr] = node

	if ref.External() {
		node.IsLeaf, node.IsExternal = true, true
		return node, nil
	}

	sh := b.model.Sheet(ref.Sheet)
	if sh == nil {
		g.Warnings = append(g.Warnings, fmt.Sprintf("reference to unknown sheet at %s", addr))
		node.IsLeaf = true
		return node, nil
	}

	node.RawValue = sh.Value(ref.Row, ref.Col)
	if v, ok := sh.Numeric(ref.Row, ref.Col); ok {
		node.Value = &v
	}

	expr := sh.Formula(ref.Row, ref.Col)
	if expr == "" {
		node.IsLeaf = true
		return node, nil
	}
	node.Expression = expr

	if depth >= b.cfg.MaxDepth {
		node.IsLeaf, node.Truncated = true, true
		g.Warnings = append(g.Warnings, fmt.Sprintf("depth limit reached at %s", addr))
		return node, nil
	}

	parsed := b.parser.Parse(expr, ref.Sheet)
	if parsed.ParseWarning {
		node.ParseWarning = true
		g.Warnings = append(g.Warnings, fmt.Sprintf("formula at %s: %s", addr, parsed.WarningText))
	}
	if !parsed.HasRefs() {
		// Constants-only or unparseable: the cached value stands in for
		// the whole subtree.
		node.IsLeaf = true
		return node, nil
	}

	visiting[addr] = true
	defer delete(visiting, addr)

	for _, op := range parsed.Operands {
		group := OperandGroup{Position: op.Position}
		for _, childRef := range op.Refs(b.cfg.RangeExpandLimit) {
			child, err := b.expand(ctx, g, childRef.On(ref.Sheet), visiting, depth+1)
			if err != nil {
				return nil, err
			}
			group.Nodes = append(group.Nodes, child)
		}
		node.Operands = append(node.Operands, group)
	}
	return node, nil
}

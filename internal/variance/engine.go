// Package variance computes old-vs-new variances for matched line items
// and attributes a line item's variance to its formula components by
// walking dependency graphs in both workbook versions.
package variance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/rray336/financial-model-analyzer/internal/depgraph"
	"github.com/rray336/financial-model-analyzer/internal/formula"
	"github.com/rray336/financial-model-analyzer/internal/workbook"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// Config tunes the engine.
type Config struct {
	// DrillDownTimeout bounds one drill-down request wall-clock. Default 5s.
	DrillDownTimeout time.Duration
	// Graph bounds dependency graph construction.
	Graph depgraph.BuilderConfig
}

// DefaultConfig returns the standard engine tuning.
func DefaultConfig() Config {
	return Config{DrillDownTimeout: 5 * time.Second, Graph: depgraph.DefaultBuilderConfig()}
}

// Engine computes variances between an old and a new workbook model. It
// only reads the models, so one Engine may serve concurrent requests.
type Engine struct {
	oldModel *workbook.Model
	newModel *workbook.Model
	oldGraph *depgraph.Builder
	newGraph *depgraph.Builder
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates an engine over a loaded old/new model pair.
func NewEngine(oldModel, newModel *workbook.Model, cfg Config, logger *slog.Logger) *Engine {
	if cfg.DrillDownTimeout <= 0 {
		cfg.DrillDownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	parser := formula.NewParser(logger)
	return &Engine{
		oldModel: oldModel,
		newModel: newModel,
		oldGraph: depgraph.NewBuilder(oldModel, parser, cfg.Graph, logger),
		newGraph: depgraph.NewBuilder(newModel, parser, cfg.Graph, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// Variance computes the top-level variance of one matched pair at one
// period. Missing values on either side yield a result carrying only the
// present side, with no variance arithmetic and no drill-down.
func (e *Engine) Variance(pair domain.MatchedPair, period string) domain.VarianceResult {
	res := domain.VarianceResult{
		LineItemName:    pair.Name(),
		MatchConfidence: pair.Confidence,
		MatchKind:       pair.Kind,
	}
	if pair.Matched() && pair.OldItem.Name != pair.NewItem.Name {
		res.LineItemName = pair.OldItem.Name
		res.MatchedWith = pair.NewItem.Name
	}

	var oldVal, newVal *float64
	if pair.OldItem != nil {
		if v, ok := pair.OldItem.Value(period); ok {
			oldVal = &v
		}
	}
	if pair.NewItem != nil {
		if v, ok := pair.NewItem.Value(period); ok {
			newVal = &v
		}
	}
	res.OldValue, res.NewValue = oldVal, newVal

	if oldVal == nil || newVal == nil {
		return res
	}

	res.AbsoluteVariance = *newVal - *oldVal
	if *oldVal == 0 {
		res.PercentageUndefined = true
	} else {
		res.PercentageVariance = res.AbsoluteVariance / abs(*oldVal) * 100
	}
	res.DrillDownAvailable = pair.OldItem.Formula(period) != "" || pair.NewItem.Formula(period) != ""
	return res
}

// Variances computes results for a whole matched set in pair order.
func (e *Engine) Variances(pairs []domain.MatchedPair, period string) []domain.VarianceResult {
	out := make([]domain.VarianceResult, len(pairs))
	for i, p := range pairs {
		out[i] = e.Variance(p, period)
	}
	return out
}

// DrillDown attributes the variance of one matched pair at one period to
// the operands of its formula. The old and new periods are passed
// separately since the same label can sit in different columns of the two
// versions.
//
// Failures are terminal states on the result, never Go errors: a leaf
// item reports no_formula, a cyclic graph circular_reference, an
// unusable root formula parse_error, and an overrun of the configured
// wall-clock budget timeout. A failure of one item never disturbs other
// requests.
func (e *Engine) DrillDown(ctx context.Context, pair domain.MatchedPair, oldPeriod, newPeriod domain.Period) domain.DrillDownResult {
	res := domain.DrillDownResult{
		Status:       domain.DrillDownRequested,
		LineItemName: pair.Name(),
		Period:       newPeriod.Label,
	}
	if !pair.Matched() {
		res.Status = domain.DrillDownFailed
		res.FailureReason = domain.FailureNoFormula
		res.Warnings = append(res.Warnings, "line item is unmatched; nothing to compare")
		return res
	}

	oldRef := domain.CellRef{Sheet: pair.OldItem.Sheet, Row: pair.OldItem.Row, Col: oldPeriod.ColumnIndex}
	newRef := domain.CellRef{Sheet: pair.NewItem.Sheet, Row: pair.NewItem.Row, Col: newPeriod.ColumnIndex}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.DrillDownTimeout)
	defer cancel()

	res.Status = domain.DrillDownGraphBuilding
	oldG, err := e.oldGraph.Build(ctx, oldRef)
	if err != nil {
		return e.failBuild(res, oldRef, err)
	}
	newG, err := e.newGraph.Build(ctx, newRef)
	if err != nil {
		return e.failBuild(res, newRef, err)
	}

	if oldG.Root.Value != nil {
		res.SourceValueOld = *oldG.Root.Value
	}
	if newG.Root.Value != nil {
		res.SourceValueNew = *newG.Root.Value
	}
	res.TotalVariance = res.SourceValueNew - res.SourceValueOld
	res.Warnings = append(res.Warnings, oldG.Warnings...)
	res.Warnings = append(res.Warnings, newG.Warnings...)

	if oldG.Circular || newG.Circular {
		res.Status = domain.DrillDownFailed
		res.FailureReason = domain.FailureCircularReference
		return res
	}
	if !oldG.Root.HasFormula() && !newG.Root.HasFormula() {
		res.Status = domain.DrillDownFailed
		res.FailureReason = domain.FailureNoFormula
		return res
	}
	if rootUnusable(oldG.Root) && rootUnusable(newG.Root) {
		res.Status = domain.DrillDownFailed
		res.FailureReason = domain.FailureParseError
		return res
	}

	res.Status = domain.DrillDownComponentMatching
	res.Components = e.pairComponents(oldG.Root, newG.Root)
	for _, c := range res.Components {
		res.TotalExplained += c.VarianceContribution
	}
	res.UnexplainedVariance = res.TotalVariance - res.TotalExplained
	res.Status = domain.DrillDownAttributed

	e.logger.Info("drill-down attributed",
		slog.String("line_item", res.LineItemName),
		slog.String("period", res.Period),
		slog.Int("components", len(res.Components)),
		slog.Float64("total_variance", res.TotalVariance),
		slog.Float64("unexplained", res.UnexplainedVariance))
	return res
}

func (e *Engine) failBuild(res domain.DrillDownResult, ref domain.CellRef, err error) domain.DrillDownResult {
	res.Status = domain.DrillDownFailed
	if errors.Is(err, context.DeadlineExceeded) {
		res.FailureReason = domain.FailureTimeout
	} else {
		res.FailureReason = domain.FailureParseError
	}
	res.Warnings = append(res.Warnings, fmt.Sprintf("graph build at %s: %v", ref.Address(), err))
	return res
}

// rootUnusable reports a root whose formula exists but yielded no
// operands to attribute against.
func rootUnusable(n *depgraph.Node) bool {
	return n.HasFormula() && len(n.Operands) == 0 && n.ParseWarning
}

// pairComponents matches the two roots' operand groups by position.
// Operands present on only one side are reported asymmetric, with the
// missing side treated as zero so their full delta still counts toward
// the explained total.
func (e *Engine) pairComponents(oldRoot, newRoot *depgraph.Node) []domain.Component {
	n := len(oldRoot.Operands)
	if len(newRoot.Operands) > n {
		n = len(newRoot.Operands)
	}

	components := make([]domain.Component, 0, n)
	for i := 0; i < n; i++ {
		var oldOp, newOp *depgraph.OperandGroup
		if i < len(oldRoot.Operands) {
			oldOp = &oldRoot.Operands[i]
		}
		if i < len(newRoot.Operands) {
			newOp = &newRoot.Operands[i]
		}

		c := domain.Component{Asymmetric: oldOp == nil || newOp == nil}

		var oldTotal, newTotal float64
		var oldPresent, newPresent bool
		if oldOp != nil {
			oldTotal, oldPresent = groupValue(oldOp)
		}
		if newOp != nil {
			newTotal, newPresent = groupValue(newOp)
		}
		if oldPresent {
			v := oldTotal
			c.OldValue = &v
		}
		if newPresent {
			v := newTotal
			c.NewValue = &v
		}
		c.VarianceContribution = newTotal - oldTotal

		// Naming and structure come from the new side when present; old
		// side describes removed operands.
		src := newOp
		model := e.newModel
		if src == nil {
			src = oldOp
			model = e.oldModel
		}
		c.CellRef = groupAddress(src)
		c.Name = e.componentName(model, src)
		c.IsLeaf = groupIsLeaf(src)
		c.HasFormula = groupHasFormula(src)
		c.ParseWarning = groupParseWarning(src)

		components = append(components, c)
	}
	return components
}

// groupValue sums the cached values of a group's nodes. A range operand
// contributes the sum of its cells, mirroring how aggregates consume it.
func groupValue(g *depgraph.OperandGroup) (float64, bool) {
	total, present := 0.0, false
	for _, n := range g.Nodes {
		if n.Value != nil {
			total += *n.Value
			present = true
		}
	}
	return total, present
}

func groupAddress(g *depgraph.OperandGroup) string {
	if len(g.Nodes) == 0 {
		return ""
	}
	if len(g.Nodes) == 1 {
		return g.Nodes[0].Address()
	}
	return g.Nodes[0].Address() + ":" + g.Nodes[len(g.Nodes)-1].Address()
}

func groupIsLeaf(g *depgraph.OperandGroup) bool {
	for _, n := range g.Nodes {
		if !n.IsLeaf {
			return false
		}
	}
	return len(g.Nodes) > 0
}

func groupHasFormula(g *depgraph.OperandGroup) bool {
	for _, n := range g.Nodes {
		if n.HasFormula() {
			return true
		}
	}
	return false
}

func groupParseWarning(g *depgraph.OperandGroup) bool {
	for _, n := range g.Nodes {
		if n.ParseWarning {
			return true
		}
	}
	return false
}

// componentName labels a component by the row label text near its cell,
// falling back to the cell address. Financial models almost always carry
// the line's name in the leading columns of the same row.
func (e *Engine) componentName(model *workbook.Model, g *depgraph.OperandGroup) string {
	addr := groupAddress(g)
	if len(g.Nodes) != 1 || model == nil {
		return addr
	}
	ref := g.Nodes[0].Ref
	if ref.External() {
		return addr
	}
	sh := model.Sheet(ref.Sheet)
	if sh == nil {
		return addr
	}
	for col := 1; col <= 4 && col < ref.Col; col++ {
		text := strings.TrimSpace(sh.Value(ref.Row, col))
		if text == "" {
			continue
		}
		if _, isNum := workbook.ParseNumber(text); isNum {
			continue
		}
		return text
	}
	return addr
}

var funcNamePattern = regexp.MustCompile(`^=?\s*([A-Za-z][A-Za-z0-9._]*)\s*\(`)

// Preview estimates the shape of a drill-down from the new side's formula
// alone, without building graphs.
func (e *Engine) Preview(pair domain.MatchedPair, period string) domain.DrillDownPreview {
	if !pair.Matched() {
		return domain.DrillDownPreview{Reason: "line item is unmatched"}
	}
	expr := pair.NewItem.Formula(period)
	if expr == "" {
		expr = pair.OldItem.Formula(period)
	}
	if expr == "" {
		return domain.DrillDownPreview{Reason: "no formula behind this line item"}
	}

	parsed := formula.NewParser(e.logger).Parse(expr, pair.NewItem.Sheet)
	if !parsed.HasRefs() {
		return domain.DrillDownPreview{Reason: "formula has no traceable cell references"}
	}

	preview := domain.DrillDownPreview{
		CanDrillDown:        true,
		EstimatedComponents: len(parsed.Operands),
	}
	switch {
	case len(parsed.Operands) <= 3:
		preview.Complexity = "simple"
	case len(parsed.Operands) <= 8:
		preview.Complexity = "moderate"
	default:
		preview.Complexity = "complex"
	}
	for _, op := range parsed.Operands {
		if op.External() {
			preview.HasExternalRefs = true
		}
		for _, ref := range op.Refs(1) {
			if ref.Sheet != "" && ref.Sheet != pair.NewItem.Sheet {
				preview.HasCrossSheetRefs = true
			}
		}
	}
	if m := funcNamePattern.FindStringSubmatch(strings.TrimSpace(expr)); m != nil {
		preview.MainFunction = strings.ToUpper(m[1])
	}
	return preview
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	apierrors "github.com/rray336/financial-model-analyzer/internal/errors"
	"github.com/rray336/financial-model-analyzer/internal/formula"
	"github.com/rray336/financial-model-analyzer/internal/infrastructure"
	"github.com/rray336/financial-model-analyzer/internal/matching"
	"github.com/rray336/financial-model-analyzer/internal/structure"
	"github.com/rray336/financial-model-analyzer/internal/variance"
	"github.com/rray336/financial-model-analyzer/internal/workbook"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// Config tunes the analysis pipeline end to end.
type Config struct {
	Detector       structure.DetectorConfig
	Extractor      structure.ExtractorConfig
	FuzzyThreshold float64
	Engine         variance.Config
	SessionTTL     time.Duration
}

// DefaultConfig returns the standard pipeline tuning.
func DefaultConfig() Config {
	return Config{
		Detector:       structure.DefaultDetectorConfig(),
		Extractor:      structure.DefaultExtractorConfig(),
		FuzzyThreshold: matching.DefaultThreshold,
		Engine:         variance.DefaultConfig(),
		SessionTTL:     2 * time.Hour,
	}
}

// SessionInfo is the caller-facing summary of a created session.
type SessionInfo struct {
	SessionID   string                           `json:"session_id"`
	OldFile     string                           `json:"old_file"`
	NewFile     string                           `json:"new_file"`
	Sheets      []string                         `json:"sheets"`
	Suggestions map[string]domain.StatementType  `json:"suggestions"`
}

// AnalysisService orchestrates the full pipeline over stored sessions.
type AnalysisService struct {
	store  *SessionStore
	cfg    Config
	logger *slog.Logger

	// loadFile is swappable so tests can feed in-memory models.
	loadFile func(path string, logger *slog.Logger) (*workbook.Model, error)
}

// NewAnalysisService wires the service.
func NewAnalysisService(store *SessionStore, cfg Config, logger *slog.Logger) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = matching.DefaultThreshold
	}
	return &AnalysisService{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		loadFile: workbook.Load,
	}
}

// CreateSession loads both workbook files and registers a session. The
// two loads run concurrently; either failure aborts the session.
func (a *AnalysisService) CreateSession(ctx context.Context, oldPath, newPath string) (*SessionInfo, error) {
	start := time.Now()
	var oldModel, newModel *workbook.Model
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := a.loadFile(oldPath, a.logger)
		if err != nil {
			return fmt.Errorf("load old workbook: %w", err)
		}
		oldModel = m
		return nil
	})
	g.Go(func() error {
		m, err := a.loadFile(newPath, a.logger)
		if err != nil {
			return fmt.Errorf("load new workbook: %w", err)
		}
		newModel = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if m := infrastructure.MetricsFromContext(ctx); m != nil {
		m.WorkbookLoadDuration.Record(ctx, time.Since(start).Seconds())
	}
	return a.CreateSessionFromModels(ctx, oldModel, newModel)
}

// CreateSessionFromModels registers a session over already-loaded models.
func (a *AnalysisService) CreateSessionFromModels(ctx context.Context, oldModel, newModel *workbook.Model) (*SessionInfo, error) {
	engine := variance.NewEngine(oldModel, newModel, a.cfg.Engine, a.logger)
	s := newSession(oldModel, newModel, engine)
	a.store.Put(s)

	info := &SessionInfo{
		SessionID:   s.ID,
		OldFile:     oldModel.Name(),
		NewFile:     newModel.Name(),
		Sheets:      newModel.SheetNames(),
		Suggestions: a.suggestTypes(ctx, newModel),
	}
	a.logger.Info("session created",
		slog.String("session_id", s.ID),
		slog.String("old_file", info.OldFile),
		slog.String("new_file", info.NewFile),
		slog.Int("sheets", len(info.Sheets)))
	return info, nil
}

// suggestTypes runs sheet type suggestion across all sheets concurrently.
// Suggestions only seed the selection UI; they never route analysis.
func (a *AnalysisService) suggestTypes(ctx context.Context, model *workbook.Model) map[string]domain.StatementType {
	names := model.SheetNames()
	results := make([]domain.StatementType, len(names))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		g.Go(func() error {
			results[i] = structure.SuggestStatementType(model.Sheet(name))
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]domain.StatementType, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out
}

// DeleteSession drops a session and everything cached under it.
func (a *AnalysisService) DeleteSession(id string) {
	a.store.Delete(id)
}

// SetSelections records the statement-to-sheet mapping for a session and
// invalidates all derived caches. Every selected sheet must exist in both
// models.
func (a *AnalysisService) SetSelections(id string, sel domain.SheetSelection) error {
	s, err := a.store.Get(id)
	if err != nil {
		return err
	}
	for st, sheet := range sel {
		if !st.Valid() {
			return fmt.Errorf("unknown statement type %q", st)
		}
		if !s.Old.HasSheet(sheet) {
			return fmt.Errorf("sheet %q not present in old workbook", sheet)
		}
		if !s.New.HasSheet(sheet) {
			return fmt.Errorf("sheet %q not present in new workbook", sheet)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections = make(domain.SheetSelection, len(sel))
	for st, sheet := range sel {
		s.selections[st] = sheet
	}
	s.invalidate()
	return nil
}

// AddTemplates extends the session's period detection token set and
// invalidates derived caches. Patterns must compile.
func (a *AnalysisService) AddTemplates(id string, templates []domain.PeriodTemplate) error {
	s, err := a.store.Get(id)
	if err != nil {
		return err
	}
	if _, err := structure.NewPeriodDetector(a.cfg.Detector, a.logger).WithTemplates(templates); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, templates...)
	s.invalidate()
	return nil
}

// SuggestTemplates proposes period templates for header-like labels the
// default token set did not recognize on the selected sheet.
func (a *AnalysisService) SuggestTemplates(id string, labels []string) ([]domain.PeriodTemplate, error) {
	if _, err := a.store.Get(id); err != nil {
		return nil, err
	}
	return structure.SuggestTemplates(labels), nil
}

// StructurePair is both sides' probed structure for one statement type.
type StructurePair struct {
	Old *domain.SheetStructure `json:"old"`
	New *domain.SheetStructure `json:"new"`
}

// Structure probes the selected sheet for a statement type in both
// models, concurrently, and caches the result until invalidation.
func (a *AnalysisService) Structure(ctx context.Context, id string, st domain.StatementType) (*StructurePair, error) {
	s, err := a.store.Get(id)
	if err != nil {
		return nil, err
	}
	return a.structureLocked(ctx, s, st)
}

func (a *AnalysisService) structureLocked(ctx context.Context, s *Session, st domain.StatementType) (*StructurePair, error) {
	s.mu.RLock()
	if cached, ok := s.structures[st]; ok {
		s.mu.RUnlock()
		infrastructure.RecordCacheAccess(ctx, infrastructure.MetricsFromContext(ctx), "structure", true)
		return &StructurePair{Old: cached.Old, New: cached.New}, nil
	}
	sheet, selected := s.selections[st]
	templates := s.templates
	s.mu.RUnlock()
	infrastructure.RecordCacheAccess(ctx, infrastructure.MetricsFromContext(ctx), "structure", false)

	if !selected {
		return nil, fmt.Errorf("statement type %q: %w", st, apierrors.ErrSheetNotSelected)
	}

	detector, err := structure.NewPeriodDetector(a.cfg.Detector, a.logger).WithTemplates(templates)
	if err != nil {
		return nil, err
	}
	extractor := structure.NewLineItemExtractor(a.cfg.Extractor, detector, a.logger)
	prober := structure.NewProber(detector, extractor, a.logger)

	probeStart := time.Now()
	var oldStruct, newStruct *domain.SheetStructure
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		probed, err := a.probe(prober, s.Old, sheet, st)
		if err != nil {
			return fmt.Errorf("old workbook: %w", err)
		}
		oldStruct = probed
		return nil
	})
	g.Go(func() error {
		probed, err := a.probe(prober, s.New, sheet, st)
		if err != nil {
			return fmt.Errorf("new workbook: %w", err)
		}
		newStruct = probed
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if m := infrastructure.MetricsFromContext(ctx); m != nil {
		m.StructureProbeDuration.Record(ctx, time.Since(probeStart).Seconds())
	}

	s.mu.Lock()
	s.structures[st] = &structurePair{Old: oldStruct, New: newStruct}
	s.mu.Unlock()
	return &StructurePair{Old: oldStruct, New: newStruct}, nil
}

// probe runs structure discovery on one model's sheet and annotates the
// result with hard-coded cells (numeric, no formula, unreferenced), a
// model-quality signal for reviewers.
func (a *AnalysisService) probe(prober *structure.Prober, model *workbook.Model, sheet string, st domain.StatementType) (*domain.SheetStructure, error) {
	sh := model.Sheet(sheet)
	if sh == nil {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}
	res, err := prober.Probe(sh, st)
	if err != nil {
		return nil, err
	}
	res.HardCodedCells = workbook.HardCodedCells(sh, a.referencedCells(sh))
	return res, nil
}

// referencedCells collects every same-sheet address referenced by any
// formula on the sheet.
func (a *AnalysisService) referencedCells(sh *workbook.Sheet) map[string]bool {
	parser := formula.NewParser(a.logger)
	referenced := make(map[string]bool)
	sh.EachFormula(func(row, col int, expr string) {
		parsed := parser.Parse(expr, sh.Name())
		for _, op := range parsed.Operands {
			for _, ref := range op.Refs(a.cfg.Engine.Graph.RangeExpandLimit) {
				if ref.External() || (ref.Sheet != "" && ref.Sheet != sh.Name()) {
					continue
				}
				referenced[fmt.Sprintf("%s%d", domain.ColumnName(ref.Col), ref.Row)] = true
			}
		}
	})
	return referenced
}

// PeriodAlignment summarizes which period labels the two versions share
// for a statement type.
func (a *AnalysisService) PeriodAlignment(ctx context.Context, id string, st domain.StatementType) (*domain.PeriodAlignment, error) {
	s, err := a.store.Get(id)
	if err != nil {
		return nil, err
	}
	pair, err := a.structureLocked(ctx, s, st)
	if err != nil {
		return nil, err
	}

	oldLabels := make(map[string]bool, len(pair.Old.Periods))
	for _, p := range pair.Old.Periods {
		oldLabels[p.Label] = true
	}
	newLabels := make(map[string]bool, len(pair.New.Periods))
	for _, p := range pair.New.Periods {
		newLabels[p.Label] = true
	}

	align := &domain.PeriodAlignment{}
	for _, p := range pair.New.Periods {
		if oldLabels[p.Label] {
			align.Common = append(align.Common, p.Label)
		} else {
			align.NewOnly = append(align.NewOnly, p.Label)
		}
	}
	for _, p := range pair.Old.Periods {
		if !newLabels[p.Label] {
			align.OldOnly = append(align.OldOnly, p.Label)
		}
	}
	return align, nil
}

// matchedPairs returns (building if needed) the matched pair set for a
// statement type. Matching one statement type is a single unit of work;
// concurrency across types is safe because each type caches under its own
// key.
func (a *AnalysisService) matchedPairs(ctx context.Context, s *Session, st domain.StatementType) ([]domain.MatchedPair, error) {
	s.mu.RLock()
	if cached, ok := s.pairs[st]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	pair, err := a.structureLocked(ctx, s, st)
	if err != nil {
		return nil, err
	}
	matcher := matching.NewMatcher(a.cfg.FuzzyThreshold, a.logger)
	pairs := matcher.Match(pair.Old.LineItems, pair.New.LineItems)

	s.mu.Lock()
	s.pairs[st] = pairs
	s.mu.Unlock()
	return pairs, nil
}

// Variance computes the ordered variance list for one statement type and
// period, cached per (statement type, period).
func (a *AnalysisService) Variance(ctx context.Context, id string, st domain.StatementType, period string) ([]domain.VarianceResult, error) {
	s, err := a.store.Get(id)
	if err != nil {
		return nil, err
	}

	key := varianceKey(st, period)
	s.mu.RLock()
	if cached, ok := s.variances[key]; ok {
		s.mu.RUnlock()
		infrastructure.RecordCacheAccess(ctx, infrastructure.MetricsFromContext(ctx), "variance", true)
		return cached, nil
	}
	s.mu.RUnlock()
	infrastructure.RecordCacheAccess(ctx, infrastructure.MetricsFromContext(ctx), "variance", false)

	pairs, err := a.matchedPairs(ctx, s, st)
	if err != nil {
		return nil, err
	}
	results := s.engine.Variances(pairs, period)
	if m := infrastructure.MetricsFromContext(ctx); m != nil {
		m.VarianceComputations.Add(ctx, 1)
	}

	s.mu.Lock()
	s.variances[key] = results
	s.mu.Unlock()
	return results, nil
}

// DrillDown attributes one line item's variance for a period, cached per
// (statement type, line item, period). Failures are states on the result;
// the only errors are unknown sessions, unselected sheets, or unknown
// line items.
func (a *AnalysisService) DrillDown(ctx context.Context, id string, st domain.StatementType, lineItem, period string) (*domain.DrillDownResult, error) {
	s, err := a.store.Get(id)
	if err != nil {
		return nil, err
	}

	key := drillKey(st, lineItem, period)
	s.mu.RLock()
	if cached, ok := s.drills[key]; ok {
		s.mu.RUnlock()
		infrastructure.RecordCacheAccess(ctx, infrastructure.MetricsFromContext(ctx), "drilldown", true)
		return &cached, nil
	}
	s.mu.RUnlock()
	infrastructure.RecordCacheAccess(ctx, infrastructure.MetricsFromContext(ctx), "drilldown", false)

	pair, structs, err := a.findPair(ctx, s, st, lineItem)
	if err != nil {
		return nil, err
	}

	oldPeriod, oldOK := periodByLabel(structs.Old.Periods, period)
	newPeriod, newOK := periodByLabel(structs.New.Periods, period)
	if !oldOK || !newOK {
		res := domain.DrillDownResult{
			Status:        domain.DrillDownFailed,
			FailureReason: domain.FailureNoFormula,
			LineItemName:  lineItem,
			Period:        period,
			Warnings:      []string{fmt.Sprintf("period %q is not present in both versions", period)},
		}
		return &res, nil
	}

	drillStart := time.Now()
	res := s.engine.DrillDown(ctx, pair, oldPeriod, newPeriod)
	infrastructure.RecordDrillDownMetrics(ctx, infrastructure.MetricsFromContext(ctx),
		string(res.Status), string(res.FailureReason), time.Since(drillStart))

	s.mu.Lock()
	s.drills[key] = res
	s.mu.Unlock()
	return &res, nil
}

// Preview estimates a drill-down's shape without building graphs.
func (a *AnalysisService) Preview(ctx context.Context, id string, st domain.StatementType, lineItem, period string) (*domain.DrillDownPreview, error) {
	s, err := a.store.Get(id)
	if err != nil {
		return nil, err
	}
	pair, _, err := a.findPair(ctx, s, st, lineItem)
	if err != nil {
		return nil, err
	}
	pv := s.engine.Preview(pair, period)
	return &pv, nil
}

// findPair locates a matched pair by line item name. Old-side and
// new-side names both resolve, so callers can use whichever label their
// variance table showed.
func (a *AnalysisService) findPair(ctx context.Context, s *Session, st domain.StatementType, lineItem string) (domain.MatchedPair, *StructurePair, error) {
	structs, err := a.structureLocked(ctx, s, st)
	if err != nil {
		return domain.MatchedPair{}, nil, err
	}
	pairs, err := a.matchedPairs(ctx, s, st)
	if err != nil {
		return domain.MatchedPair{}, nil, err
	}
	for _, p := range pairs {
		if (p.OldItem != nil && p.OldItem.Name == lineItem) ||
			(p.NewItem != nil && p.NewItem.Name == lineItem) {
			return p, structs, nil
		}
	}
	return domain.MatchedPair{}, nil, fmt.Errorf("line item %q in %s: %w", lineItem, st, apierrors.ErrLineItemNotFound)
}

// periodByLabel finds a period by its verbatim label.
func periodByLabel(periods []domain.Period, label string) (domain.Period, bool) {
	for _, p := range periods {
		if p.Label == label {
			return p, true
		}
	}
	return domain.Period{}, false
}

package http

import (
	"context"

	"github.com/rray336/financial-model-analyzer/internal/services"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// AnalysisServiceInterface defines the contract between the HTTP layer
// and the analysis service. Kept as an interface so handler tests can
// substitute a stub without loading real workbooks.
type AnalysisServiceInterface interface {
	CreateSession(ctx context.Context, oldPath, newPath string) (*services.SessionInfo, error)
	DeleteSession(id string)
	SetSelections(id string, sel domain.SheetSelection) error
	AddTemplates(id string, templates []domain.PeriodTemplate) error
	SuggestTemplates(id string, labels []string) ([]domain.PeriodTemplate, error)
	Structure(ctx context.Context, id string, st domain.StatementType) (*services.StructurePair, error)
	PeriodAlignment(ctx context.Context, id string, st domain.StatementType) (*domain.PeriodAlignment, error)
	Variance(ctx context.Context, id string, st domain.StatementType, period string) ([]domain.VarianceResult, error)
	DrillDown(ctx context.Context, id string, st domain.StatementType, lineItem, period string) (*domain.DrillDownResult, error)
	Preview(ctx context.Context, id string, st domain.StatementType, lineItem, period string) (*domain.DrillDownPreview, error)
}

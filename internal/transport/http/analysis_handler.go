package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/rray336/financial-model-analyzer/internal/errors"
	"github.com/rray336/financial-model-analyzer/internal/infrastructure"
	api "github.com/rray336/financial-model-analyzer/pkg/contracts/api/v1"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// AnalysisHandler handles session and analysis HTTP requests with
// RFC 7807 compliance.
type AnalysisHandler struct {
	service      AnalysisServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validate     *validator.Validate
}

// NewAnalysisHandler creates a new analysis handler with RFC 7807 error
// handling.
func NewAnalysisHandler(service AnalysisServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *AnalysisHandler {
	return &AnalysisHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "analysis_handler")),
		errorHandler: errorHandler,
		validate:     validator.New(),
	}
}

// Routes returns the session routes with proper Chi patterns
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Use render for consistent JSON responses
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/", h.CreateSession)

	r.Route("/{sessionID}", func(r chi.Router) {
		r.Use(h.SessionCtx) // Validate session ID parameter
		r.Delete("/", h.DeleteSession)
		r.Post("/selections", h.SetSelections)
		r.Get("/structure", h.GetStructure)
		r.Get("/periods", h.GetPeriods)
		r.Get("/variance", h.GetVariance)
		r.Post("/drill-down", h.DrillDown)
		r.Get("/drill-down-preview", h.DrillDownPreview)
		r.Post("/templates", h.AddTemplates)
		r.Post("/templates/suggest", h.SuggestTemplates)
	})

	return r
}

// SessionCtx middleware validates the session ID parameter
func (h *AnalysisHandler) SessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "sessionID") == "" {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("session_id", "Session ID is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateSession handles POST /api/sessions
func (h *AnalysisHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	reqID := infrastructure.GetTraceID(r.Context())

	var req api.SessionCreateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("body", "Invalid JSON request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewValidationError(err.Error()))
		return
	}

	h.logger.InfoContext(r.Context(), "creating analysis session",
		slog.String("request_id", reqID),
		slog.String("old_file", req.OldFile),
		slog.String("new_file", req.NewFile),
	)

	info, err := h.service.CreateSession(r.Context(), req.OldFile, req.NewFile)
	if err != nil {
		infrastructure.WithError(h.logger, err).ErrorContext(r.Context(),
			"failed to create session", slog.String("request_id", reqID))
		h.errorHandler.HandleError(w, r, apierrors.WorkbookLoadError(err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, api.SessionCreateResponse{
		SessionID:   info.SessionID,
		OldFile:     info.OldFile,
		NewFile:     info.NewFile,
		Sheets:      info.Sheets,
		Suggestions: info.Suggestions,
	})
}

// DeleteSession handles DELETE /api/sessions/{sessionID}
func (h *AnalysisHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	h.service.DeleteSession(id)
	render.NoContent(w, r)
}

// SetSelections handles POST /api/sessions/{sessionID}/selections
func (h *AnalysisHandler) SetSelections(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req api.SelectionsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("body", "Invalid JSON request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewValidationError(err.Error()))
		return
	}

	sel := make(domain.SheetSelection, len(req.Selections))
	for st, sheet := range req.Selections {
		sel[domain.StatementType(st)] = sheet
	}

	if err := h.service.SetSelections(id, sel); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status":     "success",
		"selections": req.Selections,
	})
}

// GetStructure handles GET /api/sessions/{sessionID}/structure
func (h *AnalysisHandler) GetStructure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	st, ok := h.statementParam(w, r)
	if !ok {
		return
	}

	pair, err := h.service.Structure(r.Context(), id, st)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.StructureResponse{
		StatementType: st,
		Old:           pair.Old,
		New:           pair.New,
	})
}

// GetPeriods handles GET /api/sessions/{sessionID}/periods
func (h *AnalysisHandler) GetPeriods(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	st, ok := h.statementParam(w, r)
	if !ok {
		return
	}

	align, err := h.service.PeriodAlignment(r.Context(), id, st)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.PeriodsResponse{
		StatementType: st,
		Common:        align.Common,
		OldOnly:       align.OldOnly,
		NewOnly:       align.NewOnly,
	})
}

// GetVariance handles GET /api/sessions/{sessionID}/variance
func (h *AnalysisHandler) GetVariance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	st, ok := h.statementParam(w, r)
	if !ok {
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("period", "Period label is required"))
		return
	}

	results, err := h.service.Variance(r.Context(), id, st, period)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.VarianceResponse{
		StatementType: st,
		Period:        period,
		Results:       results,
		Count:         len(results),
	})
}

// DrillDown handles POST /api/sessions/{sessionID}/drill-down
func (h *AnalysisHandler) DrillDown(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	st, ok := h.statementParam(w, r)
	if !ok {
		return
	}

	var req api.DrillDownRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("body", "Invalid JSON request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewValidationError(err.Error()))
		return
	}

	h.logger.InfoContext(r.Context(), "drill-down requested",
		slog.String("session_id", id),
		slog.String("line_item", req.LineItem),
		slog.String("period", req.Period),
	)

	res, err := h.service.DrillDown(r.Context(), id, st, req.LineItem, req.Period)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, res)
}

// DrillDownPreview handles GET /api/sessions/{sessionID}/drill-down-preview
func (h *AnalysisHandler) DrillDownPreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	st, ok := h.statementParam(w, r)
	if !ok {
		return
	}
	lineItem := r.URL.Query().Get("line_item")
	if lineItem == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("line_item", "Line item name is required"))
		return
	}
	period := r.URL.Query().Get("period")

	pv, err := h.service.Preview(r.Context(), id, st, lineItem, period)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, pv)
}

// AddTemplates handles POST /api/sessions/{sessionID}/templates
func (h *AnalysisHandler) AddTemplates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req api.TemplatesAddRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("body", "Invalid JSON request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewValidationError(err.Error()))
		return
	}

	templates := make([]domain.PeriodTemplate, len(req.Templates))
	for i, t := range req.Templates {
		templates[i] = domain.PeriodTemplate{
			Name:    t.Name,
			Pattern: t.Pattern,
			Example: t.Example,
			Type:    t.Type,
		}
	}

	if err := h.service.AddTemplates(id, templates); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"count":  len(templates),
	})
}

// SuggestTemplates handles POST /api/sessions/{sessionID}/templates/suggest
func (h *AnalysisHandler) SuggestTemplates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req api.TemplateSuggestRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("body", "Invalid JSON request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewValidationError(err.Error()))
		return
	}

	templates, err := h.service.SuggestTemplates(id, req.Labels)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.TemplateSuggestResponse{
		Templates: templates,
		Count:     len(templates),
	})
}

// statementParam extracts and validates the statement query parameter.
func (h *AnalysisHandler) statementParam(w http.ResponseWriter, r *http.Request) (domain.StatementType, bool) {
	st := domain.StatementType(r.URL.Query().Get("statement"))
	if !st.Valid() {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("statement",
			"Statement type must be one of income_statement, balance_sheet, cash_flow"))
		return "", false
	}
	return st, true
}

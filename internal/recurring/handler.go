package recurring

import (
	"context"
	"net/http"
	"strconv"
	"time"

	errors "github.com/frahmantamala/fleet-recurring/internal"
	"github.com/frahmantamala/fleet-recurring/internal/core/common/validation"
	"github.com/frahmantamala/fleet-recurring/internal/core/scope"
	"github.com/frahmantamala/fleet-recurring/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Create(ctx context.Context, sc scope.Scope, dto CreateTemplateDTO) (*Template, error)
	Get(ctx context.Context, sc scope.Scope, id string) (*Template, error)
	List(ctx context.Context, sc scope.Scope, filter ListFilter) ([]*Template, error)
	Update(ctx context.Context, sc scope.Scope, id string, dto UpdateTemplateDTO) (*Template, error)
	Delete(ctx context.Context, sc scope.Scope, id string, cascade bool) error
	SetActive(ctx context.Context, sc scope.Scope, id string, active bool) (*Template, error)
	History(ctx context.Context, sc scope.Scope, id string, from *time.Time) ([]*Generation, error)
}

type EngineAPI interface {
	GenerateForTemplate(ctx context.Context, templateID string, through time.Time) (int, error)
	GenerateAll(ctx context.Context, sc scope.Scope, through time.Time) (*BatchResult, error)
}

type CorrectorAPI interface {
	DeleteAllGenerated(ctx context.Context, templateID string) (int, error)
	DeleteFuture(ctx context.Context, templateID string, from time.Time) (int, error)
	UpdateFuture(ctx context.Context, templateID string, from time.Time, patch EntryPatch) (int, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Handler struct {
	*transport.BaseHandler
	Service   ServiceAPI
	Engine    EngineAPI
	Corrector CorrectorAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, engine EngineAPI, corrector CorrectorAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Engine:      engine,
		Corrector:   corrector,
	}
}

// Routes mounts the recurring endpoints; the caller installs the scope middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.CreateTemplate)
	r.Get("/", h.ListTemplates)
	r.Post("/generate", h.GenerateAll)
	r.Route("/{id}", func(ir chi.Router) {
		ir.Get("/", h.GetTemplate)
		ir.Patch("/", h.UpdateTemplate)
		ir.Delete("/", h.DeleteTemplate)
		ir.Patch("/active", h.SetActive)
		ir.Post("/generate", h.GenerateForTemplate)
		ir.Get("/history", h.GetHistory)
		ir.Delete("/entries", h.DeleteAllGenerated)
		ir.Delete("/entries/future", h.DeleteFuture)
		ir.Patch("/entries/future", h.UpdateFuture)
	})
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	sc, err := h.Scope(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	var dto CreateTemplateDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	t, err := h.Service.Create(r.Context(), sc, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	sc, err := h.Scope(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	filter, err := listFilterFromQuery(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	templates, err := h.Service.List(r.Context(), sc, filter)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if templates == nil {
		templates = []*Template{}
	}
	h.WriteJSON(w, http.StatusOK, TemplatesResponse{Templates: templates})
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, ok := h.scopedTemplate(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	sc, err := h.Scope(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	var dto UpdateTemplateDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	t, err := h.Service.Update(r.Context(), sc, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	sc, err := h.Scope(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	cascade := false
	if raw := r.URL.Query().Get("cascade"); raw != "" {
		cascade, err = strconv.ParseBool(raw)
		if err != nil {
			h.HandleServiceError(w, r, errors.NewValidationFieldError("cascade", "cascade must be a boolean", errors.ErrCodeValidationFailed))
			return
		}
	}

	if err := h.Service.Delete(r.Context(), sc, chi.URLParam(r, "id"), cascade); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	sc, err := h.Scope(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	var req SetActiveRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if req.Active == nil {
		h.HandleServiceError(w, r, errors.NewValidationFieldError("active", "active is required", errors.ErrCodeValidationFailed))
		return
	}

	t, err := h.Service.SetActive(r.Context(), sc, chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) GenerateForTemplate(w http.ResponseWriter, r *http.Request) {
	t, ok := h.scopedTemplate(w, r)
	if !ok {
		return
	}

	var req GenerateRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	through, err := validation.ParseDate("through", req.Through)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	created, err := h.Engine.GenerateForTemplate(r.Context(), t.ID, through)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, GenerateResponse{TemplateID: t.ID, Created: created})
}

func (h *Handler) GenerateAll(w http.ResponseWriter, r *http.Request) {
	sc, err := h.Scope(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	var req GenerateRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	through, err := validation.ParseDate("through", req.Through)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	result, err := h.Engine.GenerateAll(r.Context(), sc, through)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sc, err := h.Scope(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	from, err := optionalDate(r, "from")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	gens, err := h.Service.History(r.Context(), sc, id, from)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if gens == nil {
		gens = []*Generation{}
	}
	h.WriteJSON(w, http.StatusOK, HistoryResponse{TemplateID: id, Generations: gens})
}

func (h *Handler) DeleteAllGenerated(w http.ResponseWriter, r *http.Request) {
	t, ok := h.scopedTemplate(w, r)
	if !ok {
		return
	}

	deleted, err := h.Corrector.DeleteAllGenerated(r.Context(), t.ID)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, DeletedResponse{TemplateID: t.ID, Deleted: deleted})
}

func (h *Handler) DeleteFuture(w http.ResponseWriter, r *http.Request) {
	t, ok := h.scopedTemplate(w, r)
	if !ok {
		return
	}

	from, err := validation.ParseDate("from", r.URL.Query().Get("from"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	deleted, err := h.Corrector.DeleteFuture(r.Context(), t.ID, from)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, DeletedResponse{TemplateID: t.ID, Deleted: deleted})
}

func (h *Handler) UpdateFuture(w http.ResponseWriter, r *http.Request) {
	t, ok := h.scopedTemplate(w, r)
	if !ok {
		return
	}

	var req UpdateFutureRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	from, err := validation.ParseDate("from", req.From)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	updated, err := h.Corrector.UpdateFuture(r.Context(), t.ID, from, req.Patch)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, UpdatedResponse{TemplateID: t.ID, Updated: updated})
}

// scopedTemplate loads the {id} template through the service so engine and
// corrector calls only ever touch templates visible in the request scope.
func (h *Handler) scopedTemplate(w http.ResponseWriter, r *http.Request) (*Template, bool) {
	sc, err := h.Scope(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return nil, false
	}
	t, err := h.Service.Get(r.Context(), sc, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return nil, false
	}
	return t, true
}

func listFilterFromQuery(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{Limit: defaultListLimit}

	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.NewValidationFieldError("active", "active must be a boolean", errors.ErrCodeValidationFailed)
		}
		filter.Active = &active
	}
	if raw := q.Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 && l <= maxListLimit {
			filter.Limit = l
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if o, err := strconv.Atoi(raw); err == nil && o >= 0 {
			filter.Offset = o
		}
	}
	return filter, nil
}

func optionalDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := validation.ParseDate(name, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

package masterdata

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lns-pipeline/lns-pipeline/internal/platform/httpx"
	"github.com/lns-pipeline/lns-pipeline/internal/shared"
)

// Handler exposes master data over HTTP.
type Handler struct {
	service  Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.listCustomers)
		r.Post("/", h.createCustomer)
		r.Get("/{id}", h.getCustomer)
		r.Put("/{id}", h.updateCustomer)
		r.Delete("/{id}", h.deleteCustomer)
	})
	r.Route("/business-units", func(r chi.Router) {
		r.Get("/", h.listBusinessUnits)
		r.Post("/", h.createBusinessUnit)
		r.Get("/{id}", h.getBusinessUnit)
		r.Put("/{id}", h.updateBusinessUnit)
		r.Delete("/{id}", h.deleteBusinessUnit)
	})
}

type customerRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
	Address  string `json:"address" validate:"omitempty,max=500"`
	IsActive *bool  `json:"is_active,omitempty"`
}

type businessUnitRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=200"`
	IsActive *bool  `json:"is_active,omitempty"`
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("per_page"))
	filters := ListFilters{Page: page, Limit: limit, Search: q.Get("search")}
	if raw := q.Get("is_active"); raw != "" {
		active := raw == "true" || raw == "1"
		filters.IsActive = &active
	}
	return filters
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func activeOrDefault(flag *bool) bool {
	if flag == nil {
		return true
	}
	return *flag
}

// ============================================================================
// CUSTOMERS
// ============================================================================

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	filters := parseFilters(r)
	customers, total, err := h.service.ListCustomers(r.Context(), filters)
	if err != nil {
		respondError(w, err)
		return
	}
	if customers == nil {
		customers = []Customer{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data": customers,
		"meta": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	customer, err := h.service.CreateCustomer(r.Context(), Customer{
		Code:     req.Code,
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Address:  req.Address,
		IsActive: activeOrDefault(req.IsActive),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err = h.service.UpdateCustomer(r.Context(), id, Customer{
		Code:     req.Code,
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Address:  req.Address,
		IsActive: activeOrDefault(req.IsActive),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	if err := h.service.DeleteCustomer(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// BUSINESS UNITS
// ============================================================================

func (h *Handler) listBusinessUnits(w http.ResponseWriter, r *http.Request) {
	filters := parseFilters(r)
	units, total, err := h.service.ListBusinessUnits(r.Context(), filters)
	if err != nil {
		respondError(w, err)
		return
	}
	if units == nil {
		units = []BusinessUnit{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data": units,
		"meta": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) getBusinessUnit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	unit, err := h.service.GetBusinessUnit(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) createBusinessUnit(w http.ResponseWriter, r *http.Request) {
	var req businessUnitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	unit, err := h.service.CreateBusinessUnit(r.Context(), BusinessUnit{
		Code:     req.Code,
		Name:     req.Name,
		IsActive: activeOrDefault(req.IsActive),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, unit)
}

func (h *Handler) updateBusinessUnit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req businessUnitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err = h.service.UpdateBusinessUnit(r.Context(), id, BusinessUnit{
		Code:     req.Code,
		Name:     req.Name,
		IsActive: activeOrDefault(req.IsActive),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteBusinessUnit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	if err := h.service.DeleteBusinessUnit(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

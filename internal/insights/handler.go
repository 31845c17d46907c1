package insights

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lns-pipeline/lns-pipeline/internal/platform/httpx"
)

// Handler exposes insight endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers insight routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pipeline", h.pipelineSummary)
	r.Post("/pipeline/refresh", h.refresh)
}

func (h *Handler) pipelineSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.PipelineSummary(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Refresh(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

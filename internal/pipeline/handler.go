package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lns-pipeline/lns-pipeline/internal/platform/httpx"
	"github.com/lns-pipeline/lns-pipeline/internal/shared"
)

// idempotencyGuard claims request keys and rolls failed claims back.
// *shared.IdempotencyStore satisfies it.
type idempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler exposes the pipeline over HTTP.
type Handler struct {
	service     *Service
	validate    *validator.Validate
	idempotency idempotencyGuard
	logger      *slog.Logger
}

// NewHandler constructs the handler. idempotency may be nil, in which
// case Idempotency-Key headers are ignored.
func NewHandler(service *Service, idempotency idempotencyGuard, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:     service,
		validate:    validator.New(),
		idempotency: idempotency,
		logger:      logger,
	}
}

// MountRoutes registers the pipeline routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inquiries", func(r chi.Router) {
		r.Post("/", h.createInquiry)
		r.Get("/", h.listInquiries)
		r.Get("/{id}", h.getInquiry)
		r.Patch("/{id}", h.updateInquiry)
		r.Delete("/{id}", h.deleteInquiry)
		r.Post("/{id}/quotation", h.createQuotation)
	})
	r.Route("/quotations", func(r chi.Router) {
		r.Get("/", h.listQuotations)
		r.Get("/{id}", h.getQuotation)
		r.Patch("/{id}", h.updateQuotation)
		r.Post("/{id}/recompute", h.recomputeQuotationCode)
		r.Post("/{id}/negotiations", h.createNegotiation)
		r.Get("/{id}/negotiations", h.listNegotiations)
		r.Post("/{id}/purchase-order", h.createPurchaseOrder)
	})
	r.Route("/negotiations", func(r chi.Router) {
		r.Get("/{id}", h.getNegotiation)
		r.Patch("/{id}", h.updateNegotiation)
		r.Delete("/{id}", h.deleteNegotiation)
	})
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/{id}", h.getPurchaseOrder)
		r.Patch("/{id}", h.updatePurchaseOrder)
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyExists):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", "request with this idempotency key was already processed")
	default:
		h.logger.Error("pipeline handler error", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// claimIdempotencyKey reserves the Idempotency-Key header when present.
// The returned release func rolls the claim back so a failed request can
// be retried with the same key.
func (h *Handler) claimIdempotencyKey(r *http.Request) (func(), error) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" || h.idempotency == nil {
		return func() {}, nil
	}
	if err := h.idempotency.CheckAndInsert(r.Context(), key, "pipeline"); err != nil {
		return nil, err
	}
	return func() {
		if err := h.idempotency.Delete(r.Context(), key); err != nil {
			h.logger.Warn("idempotency rollback failed", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func queryPage(r *http.Request) (limit, offset, page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 200 {
		perPage = 20
	}
	return perPage, (page - 1) * perPage, page, perPage
}

type listResponse struct {
	Data any               `json:"data"`
	Meta shared.Pagination `json:"meta"`
}

// ============================================================================
// INQUIRIES
// ============================================================================

func (h *Handler) createInquiry(w http.ResponseWriter, r *http.Request) {
	var req CreateInquiryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	release, err := h.claimIdempotencyKey(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	inquiry, err := h.service.CreateInquiry(r.Context(), req)
	if err != nil {
		release()
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inquiry)
}

func (h *Handler) listInquiries(w http.ResponseWriter, r *http.Request) {
	limit, offset, page, perPage := queryPage(r)
	req := ListInquiriesRequest{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "customer_id must be an integer")
			return
		}
		req.CustomerID = &id
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := InquiryStatus(raw)
		req.Status = &status
	}

	inquiries, total, err := h.service.ListInquiries(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if inquiries == nil {
		inquiries = []Inquiry{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: inquiries, Meta: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) getInquiry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	inquiry, err := h.service.GetInquiry(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inquiry)
}

func (h *Handler) updateInquiry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req UpdateInquiryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inquiry, err := h.service.UpdateInquiry(r.Context(), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inquiry)
}

func (h *Handler) deleteInquiry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	if err := h.service.SoftDeleteInquiry(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// QUOTATIONS
// ============================================================================

func (h *Handler) createQuotation(w http.ResponseWriter, r *http.Request) {
	inquiryID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req CreateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	release, err := h.claimIdempotencyKey(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	quotation, err := h.service.CreateQuotation(r.Context(), inquiryID, req)
	if err != nil {
		release()
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quotation)
}

func (h *Handler) listQuotations(w http.ResponseWriter, r *http.Request) {
	limit, offset, page, perPage := queryPage(r)
	req := ListQuotationsRequest{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := QuotationStatus(raw)
		req.Status = &status
	}

	quotations, total, err := h.service.ListQuotations(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if quotations == nil {
		quotations = []Quotation{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: quotations, Meta: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) getQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	quotation, err := h.service.GetQuotation(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quotation)
}

func (h *Handler) updateQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req UpdateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quotation, err := h.service.UpdateQuotation(r.Context(), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quotation)
}

func (h *Handler) recomputeQuotationCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	code, changed, err := h.service.RecomputeQuotationCode(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"code": code, "changed": changed})
}

// ============================================================================
// NEGOTIATIONS
// ============================================================================

func (h *Handler) createNegotiation(w http.ResponseWriter, r *http.Request) {
	quotationID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req CreateNegotiationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	release, err := h.claimIdempotencyKey(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	negotiation, err := h.service.CreateNegotiation(r.Context(), quotationID, req)
	if err != nil {
		release()
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, negotiation)
}

func (h *Handler) listNegotiations(w http.ResponseWriter, r *http.Request) {
	quotationID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	negotiations, err := h.service.ListNegotiations(r.Context(), quotationID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if negotiations == nil {
		negotiations = []Negotiation{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": negotiations})
}

func (h *Handler) getNegotiation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	negotiation, err := h.service.GetNegotiation(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, negotiation)
}

func (h *Handler) updateNegotiation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req UpdateNegotiationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	negotiation, err := h.service.UpdateNegotiation(r.Context(), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, negotiation)
}

func (h *Handler) deleteNegotiation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	if err := h.service.DeleteNegotiation(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// PURCHASE ORDERS
// ============================================================================

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	quotationID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req CreatePurchaseOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	release, err := h.claimIdempotencyKey(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	po, err := h.service.CreatePurchaseOrder(r.Context(), quotationID, req)
	if err != nil {
		release()
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) updatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req UpdatePurchaseOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	po, err := h.service.UpdatePurchaseOrder(r.Context(), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lns-pipeline/lns-pipeline/internal/observability"
	"github.com/lns-pipeline/lns-pipeline/internal/shared"
)

// auditRecorder is the slice of shared.AuditLogger the service uses.
type auditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements the sales pipeline workflow: hierarchical document
// codes, the quotation code cascade and the lifecycle rules between
// inquiries, quotations, negotiations and purchase orders.
type Service struct {
	repo    Repository
	audit   auditRecorder
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the pipeline service. audit and metrics may be nil.
func NewService(repo Repository, audit auditRecorder, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	ref := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%s:%d", entity, action, entityID)))
	if meta == nil {
		meta = map[string]any{}
	}
	meta["ref"] = ref.String()
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("entity", entity), slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observeRecompute(entity, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRecompute(entity, outcome)
}

// ============================================================================
// INQUIRIES
// ============================================================================

// CreateInquiry inserts an inquiry and assigns its code in two phases
// inside a single transaction: first a placeholder code is written with
// the insert, then the final code is derived from the storage-assigned
// identity and written back. No reader outside the transaction ever sees
// the placeholder.
func (s *Service) CreateInquiry(ctx context.Context, req CreateInquiryRequest) (*Inquiry, error) {
	inquiryDate := s.now()
	if req.InquiryDate != nil {
		inquiryDate = *req.InquiryDate
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertInquiry(ctx, Inquiry{
			Code:           PlaceholderInquiryCode(inquiryDate),
			CustomerID:     req.CustomerID,
			BusinessUnitID: req.BusinessUnitID,
			InquiryDate:    inquiryDate,
			DueDate:        req.DueDate,
			Status:         InquiryStatusPending,
			Description:    req.Description,
		})
		if err != nil {
			return err
		}
		id = inserted
		return tx.UpdateInquiryCode(ctx, id, InquiryCode(id, inquiryDate))
	})
	if err != nil {
		return nil, err
	}

	inquiry, err := s.repo.GetInquiry(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "create", "inquiry", id, map[string]any{"code": inquiry.Code})
	return inquiry, nil
}

func (s *Service) GetInquiry(ctx context.Context, id int64) (*Inquiry, error) {
	return s.repo.GetInquiry(ctx, id)
}

func (s *Service) ListInquiries(ctx context.Context, req ListInquiriesRequest) ([]Inquiry, int, error) {
	req.Limit, req.Offset = clampPage(req.Limit, req.Offset)
	return s.repo.ListInquiries(ctx, req)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// UpdateInquiry applies a partial update. The inquiry date is immutable,
// so the inquiry code never changes after creation.
func (s *Service) UpdateInquiry(ctx context.Context, id int64, req UpdateInquiryRequest) (*Inquiry, error) {
	updates := map[string]interface{}{}
	if req.CustomerID != nil {
		updates["customer_id"] = *req.CustomerID
	}
	if req.BusinessUnitID != nil {
		updates["business_unit_id"] = *req.BusinessUnitID
	}
	if req.DueDate != nil {
		updates["due_date"] = *req.DueDate
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(updates) == 0 {
		return s.repo.GetInquiry(ctx, id)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateInquiry(ctx, id, updates)
	})
	if err != nil {
		return nil, err
	}

	inquiry, err := s.repo.GetInquiry(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "update", "inquiry", id, nil)
	return inquiry, nil
}

// SoftDeleteInquiry hides the inquiry from reads. Dependent quotation
// codes are left as written; the cascade treats the hidden parent as
// unresolvable and stops touching them.
func (s *Service) SoftDeleteInquiry(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SoftDeleteInquiry(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "delete", "inquiry", id, nil)
	return nil
}

// ============================================================================
// QUOTATIONS
// ============================================================================

// CreateQuotation opens the single quotation allowed under an inquiry and
// moves the inquiry to "process". The quotation code is derived from the
// parent inquiry identity and the quotation's own creation time, with no
// negotiation suffix yet.
func (s *Service) CreateQuotation(ctx context.Context, inquiryID int64, req CreateQuotationRequest) (*Quotation, error) {
	inquiry, err := s.repo.GetInquiry(ctx, inquiryID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetQuotationByInquiry(ctx, inquiryID); err == nil {
		return nil, fmt.Errorf("%w: inquiry %d already has a quotation", ErrAlreadyExists, inquiryID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	createdAt := s.now()
	code := QuotationCode(inquiry.ID, 0, createdAt)

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertQuotation(ctx, Quotation{
			Code:      code,
			InquiryID: inquiry.ID,
			Status:    QuotationStatusNA,
			DueDate:   req.DueDate,
			CreatedAt: createdAt,
		})
		if err != nil {
			return err
		}
		id = inserted
		return tx.UpdateInquiry(ctx, inquiry.ID, map[string]interface{}{"status": InquiryStatusProcess})
	})
	if err != nil {
		return nil, err
	}

	quotation, err := s.repo.GetQuotation(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "create", "quotation", id, map[string]any{"code": quotation.Code, "inquiry_id": inquiry.ID})
	return quotation, nil
}

func (s *Service) GetQuotation(ctx context.Context, id int64) (*Quotation, error) {
	return s.repo.GetQuotation(ctx, id)
}

func (s *Service) ListQuotations(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	req.Limit, req.Offset = clampPage(req.Limit, req.Offset)
	return s.repo.ListQuotations(ctx, req)
}

// UpdateQuotation applies a partial update, then re-derives the code.
// The inputs to the code are unchanged by the update itself, so the
// recompute is a self-heal for drift rather than a rename.
func (s *Service) UpdateQuotation(ctx context.Context, id int64, req UpdateQuotationRequest) (*Quotation, error) {
	updates := map[string]interface{}{}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.DueDate != nil {
		updates["due_date"] = *req.DueDate
	}
	if len(updates) > 0 {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdateQuotation(ctx, id, updates)
		})
		if err != nil {
			return nil, err
		}
	}

	if _, _, err := s.recomputeQuotationCode(ctx, s.repo, id); err != nil {
		return nil, err
	}

	quotation, err := s.repo.GetQuotation(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "update", "quotation", id, nil)
	return quotation, nil
}

// RecomputeQuotationCode re-derives a quotation code from current state
// and writes it only when it differs. Safe to call any number of times.
// Unlike the cascade step, an unknown quotation id is reported as
// ErrNotFound: direct callers named the quotation themselves.
func (s *Service) RecomputeQuotationCode(ctx context.Context, quotationID int64) (string, bool, error) {
	if _, err := s.repo.GetQuotation(ctx, quotationID); err != nil {
		return "", false, err
	}
	return s.recomputeQuotationCode(ctx, s.repo, quotationID)
}

// recomputeQuotationCode is the cascade step shared by negotiation
// create/delete (in-transaction) and by direct recompute requests
// (against the pool). When the quotation or its parent inquiry cannot be
// resolved the recompute is skipped without error: a missing parent is a
// data-lifecycle state, not a caller mistake.
func (s *Service) recomputeQuotationCode(ctx context.Context, store codeStore, quotationID int64) (string, bool, error) {
	quotation, err := store.GetQuotation(ctx, quotationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.observeRecompute("quotation", "skipped")
			return "", false, nil
		}
		return "", false, err
	}
	inquiry, err := store.GetInquiry(ctx, quotation.InquiryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.observeRecompute("quotation", "skipped")
			s.logger.Debug("quotation code recompute skipped",
				slog.Int64("quotation_id", quotationID),
				slog.Int64("inquiry_id", quotation.InquiryID))
			return "", false, nil
		}
		return "", false, err
	}
	count, err := store.CountNegotiations(ctx, quotation.ID)
	if err != nil {
		return "", false, err
	}

	code := QuotationCode(inquiry.ID, count, quotation.CreatedAt)
	if code == quotation.Code {
		s.observeRecompute("quotation", "unchanged")
		return code, false, nil
	}
	if err := store.UpdateQuotationCode(ctx, quotation.ID, code); err != nil {
		return "", false, err
	}
	s.observeRecompute("quotation", "written")
	s.recordAudit(ctx, "recompute_code", "quotation", quotation.ID, map[string]any{
		"old_code": quotation.Code,
		"new_code": code,
	})
	return code, true, nil
}

// ============================================================================
// NEGOTIATIONS
// ============================================================================

// CreateNegotiation appends a negotiation round under a quotation and
// refreshes the quotation code in the same transaction, so the code and
// the round count can never be observed out of step.
func (s *Service) CreateNegotiation(ctx context.Context, quotationID int64, req CreateNegotiationRequest) (*Negotiation, error) {
	quotation, err := s.repo.GetQuotation(ctx, quotationID)
	if err != nil {
		return nil, err
	}

	createdAt := s.now()
	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		count, err := tx.CountNegotiations(ctx, quotation.ID)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertNegotiation(ctx, Negotiation{
			Code:        NegotiationCode(quotation.InquiryID, count+1, createdAt),
			QuotationID: quotation.ID,
			Amount:      req.Amount,
			Status:      NegotiationStatusPending,
			CreatedAt:   createdAt,
		})
		if err != nil {
			return err
		}
		id = inserted
		_, _, err = s.recomputeQuotationCode(ctx, tx, quotation.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	negotiation, err := s.repo.GetNegotiation(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "create", "negotiation", id, map[string]any{"code": negotiation.Code, "quotation_id": quotation.ID})
	return negotiation, nil
}

func (s *Service) GetNegotiation(ctx context.Context, id int64) (*Negotiation, error) {
	return s.repo.GetNegotiation(ctx, id)
}

func (s *Service) ListNegotiations(ctx context.Context, quotationID int64) ([]Negotiation, error) {
	if _, err := s.repo.GetQuotation(ctx, quotationID); err != nil {
		return nil, err
	}
	return s.repo.ListNegotiations(ctx, quotationID)
}

// UpdateNegotiation changes amount or status. Neither feeds the
// quotation code, so no recompute runs.
func (s *Service) UpdateNegotiation(ctx context.Context, id int64, req UpdateNegotiationRequest) (*Negotiation, error) {
	updates := map[string]interface{}{}
	if req.Amount != nil {
		updates["amount"] = *req.Amount
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if len(updates) == 0 {
		return s.repo.GetNegotiation(ctx, id)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateNegotiation(ctx, id, updates)
	})
	if err != nil {
		return nil, err
	}

	negotiation, err := s.repo.GetNegotiation(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "update", "negotiation", id, nil)
	return negotiation, nil
}

// DeleteNegotiation removes a round and refreshes the quotation code in
// the same transaction. Deleting the last round reverts the code to the
// bare "Q" segment.
func (s *Service) DeleteNegotiation(ctx context.Context, id int64) error {
	var quotationID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		negotiation, err := tx.GetNegotiation(ctx, id)
		if err != nil {
			return err
		}
		quotationID = negotiation.QuotationID
		if err := tx.DeleteNegotiation(ctx, id); err != nil {
			return err
		}
		_, _, err = s.recomputeQuotationCode(ctx, tx, quotationID)
		return err
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "delete", "negotiation", id, map[string]any{"quotation_id": quotationID})
	return nil
}

// ============================================================================
// PURCHASE ORDERS
// ============================================================================

// CreatePurchaseOrder closes the pipeline for a quotation. A quotation
// carries at most one purchase order; the code is fixed at creation and
// never recomputed.
func (s *Service) CreatePurchaseOrder(ctx context.Context, quotationID int64, req CreatePurchaseOrderRequest) (*PurchaseOrder, error) {
	quotation, err := s.repo.GetQuotation(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPurchaseOrderByQuotation(ctx, quotationID); err == nil {
		return nil, fmt.Errorf("%w: quotation %d already has a purchase order", ErrAlreadyExists, quotationID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	createdAt := s.now()
	poDate := createdAt
	if req.PODate != nil {
		poDate = *req.PODate
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertPurchaseOrder(ctx, PurchaseOrder{
			Code:           PurchaseOrderCode(quotation.InquiryID, createdAt),
			QuotationID:    quotation.ID,
			Amount:         req.Amount,
			Status:         PurchaseOrderStatusWIP,
			ContractNumber: req.ContractNumber,
			JobNumber:      req.JobNumber,
			PODate:         poDate,
			CreatedAt:      createdAt,
		})
		if err != nil {
			return err
		}
		id = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}

	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "create", "purchase_order", id, map[string]any{"code": po.Code, "quotation_id": quotation.ID})
	return po, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (*PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

// UpdatePurchaseOrder applies a partial update. The code is immutable.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, id int64, req UpdatePurchaseOrderRequest) (*PurchaseOrder, error) {
	updates := map[string]interface{}{}
	if req.Amount != nil {
		updates["amount"] = *req.Amount
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.ContractNumber != nil {
		updates["contract_number"] = *req.ContractNumber
	}
	if req.JobNumber != nil {
		updates["job_number"] = *req.JobNumber
	}
	if req.PODate != nil {
		updates["po_date"] = *req.PODate
	}
	if len(updates) == 0 {
		return s.repo.GetPurchaseOrder(ctx, id)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePurchaseOrder(ctx, id, updates)
	})
	if err != nil {
		return nil, err
	}

	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "update", "purchase_order", id, nil)
	return po, nil
}

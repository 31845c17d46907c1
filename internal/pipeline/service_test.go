package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory Repository with transaction rollback emulated
// by snapshot restore.
type memRepo struct {
	mu             sync.Mutex
	inquiries      map[int64]*Inquiry
	quotations     map[int64]*Quotation
	negotiations   map[int64]*Negotiation
	purchaseOrders map[int64]*PurchaseOrder
	nextID         int64

	codeWrites          int
	failInquiryCodeStep bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		inquiries:      map[int64]*Inquiry{},
		quotations:     map[int64]*Quotation{},
		negotiations:   map[int64]*Negotiation{},
		purchaseOrders: map[int64]*PurchaseOrder{},
	}
}

func (m *memRepo) snapshot() *memRepo {
	clone := newMemRepo()
	clone.nextID = m.nextID
	for id, inq := range m.inquiries {
		cp := *inq
		clone.inquiries[id] = &cp
	}
	for id, q := range m.quotations {
		cp := *q
		clone.quotations[id] = &cp
	}
	for id, n := range m.negotiations {
		cp := *n
		clone.negotiations[id] = &cp
	}
	for id, po := range m.purchaseOrders {
		cp := *po
		clone.purchaseOrders[id] = &cp
	}
	return clone
}

func (m *memRepo) restore(snap *memRepo) {
	m.inquiries = snap.inquiries
	m.quotations = snap.quotations
	m.negotiations = snap.negotiations
	m.purchaseOrders = snap.purchaseOrders
	m.nextID = snap.nextID
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()
	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memRepo) allocID() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) GetInquiry(ctx context.Context, id int64) (*Inquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.inquiries[id]
	if !ok || inq.DeletedAt != nil {
		return nil, ErrNotFound
	}
	cp := *inq
	return &cp, nil
}

func (m *memRepo) ListInquiries(ctx context.Context, req ListInquiriesRequest) ([]Inquiry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Inquiry
	for _, inq := range m.inquiries {
		if inq.DeletedAt != nil {
			continue
		}
		if req.CustomerID != nil && inq.CustomerID != *req.CustomerID {
			continue
		}
		if req.Status != nil && inq.Status != *req.Status {
			continue
		}
		out = append(out, *inq)
	}
	return out, len(out), nil
}

func (m *memRepo) InsertInquiry(ctx context.Context, inquiry Inquiry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inquiry.ID = m.allocID()
	inquiry.CreatedAt = time.Now()
	inquiry.UpdatedAt = inquiry.CreatedAt
	m.inquiries[inquiry.ID] = &inquiry
	return inquiry.ID, nil
}

func (m *memRepo) UpdateInquiryCode(ctx context.Context, id int64, code string) error {
	if m.failInquiryCodeStep {
		return errors.New("forced failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.inquiries[id]
	if !ok {
		return ErrNotFound
	}
	inq.Code = code
	return nil
}

func (m *memRepo) UpdateInquiry(ctx context.Context, id int64, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.inquiries[id]
	if !ok || inq.DeletedAt != nil {
		return ErrNotFound
	}
	if v, ok := updates["customer_id"]; ok {
		inq.CustomerID = v.(int64)
	}
	if v, ok := updates["status"]; ok {
		inq.Status = v.(InquiryStatus)
	}
	if v, ok := updates["due_date"]; ok {
		d := v.(time.Time)
		inq.DueDate = &d
	}
	if v, ok := updates["description"]; ok {
		d := v.(string)
		inq.Description = &d
	}
	return nil
}

func (m *memRepo) SoftDeleteInquiry(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.inquiries[id]
	if !ok || inq.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now()
	inq.DeletedAt = &now
	return nil
}

func (m *memRepo) GetQuotation(ctx context.Context, id int64) (*Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *memRepo) GetQuotationByInquiry(ctx context.Context, inquiryID int64) (*Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.quotations {
		if q.InquiryID == inquiryID {
			cp := *q
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) ListQuotations(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Quotation
	for _, q := range m.quotations {
		if req.Status != nil && q.Status != *req.Status {
			continue
		}
		out = append(out, *q)
	}
	return out, len(out), nil
}

func (m *memRepo) InsertQuotation(ctx context.Context, quotation Quotation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	quotation.ID = m.allocID()
	quotation.UpdatedAt = quotation.CreatedAt
	m.quotations[quotation.ID] = &quotation
	return quotation.ID, nil
}

func (m *memRepo) UpdateQuotation(ctx context.Context, id int64, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotations[id]
	if !ok {
		return ErrNotFound
	}
	if v, ok := updates["status"]; ok {
		q.Status = v.(QuotationStatus)
	}
	if v, ok := updates["due_date"]; ok {
		d := v.(time.Time)
		q.DueDate = &d
	}
	return nil
}

func (m *memRepo) UpdateQuotationCode(ctx context.Context, id int64, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotations[id]
	if !ok {
		return ErrNotFound
	}
	q.Code = code
	m.codeWrites++
	return nil
}

func (m *memRepo) GetNegotiation(ctx context.Context, id int64) (*Negotiation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.negotiations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *memRepo) ListNegotiations(ctx context.Context, quotationID int64) ([]Negotiation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Negotiation
	for _, n := range m.negotiations {
		if n.QuotationID == quotationID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memRepo) CountNegotiations(ctx context.Context, quotationID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.negotiations {
		if n.QuotationID == quotationID {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) InsertNegotiation(ctx context.Context, negotiation Negotiation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	negotiation.ID = m.allocID()
	negotiation.UpdatedAt = negotiation.CreatedAt
	m.negotiations[negotiation.ID] = &negotiation
	return negotiation.ID, nil
}

func (m *memRepo) UpdateNegotiation(ctx context.Context, id int64, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.negotiations[id]
	if !ok {
		return ErrNotFound
	}
	if v, ok := updates["amount"]; ok {
		n.Amount = v.(float64)
	}
	if v, ok := updates["status"]; ok {
		n.Status = v.(NegotiationStatus)
	}
	return nil
}

func (m *memRepo) DeleteNegotiation(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.negotiations[id]; !ok {
		return ErrNotFound
	}
	delete(m.negotiations, id)
	return nil
}

func (m *memRepo) GetPurchaseOrder(ctx context.Context, id int64) (*PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	po, ok := m.purchaseOrders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *po
	return &cp, nil
}

func (m *memRepo) GetPurchaseOrderByQuotation(ctx context.Context, quotationID int64) (*PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, po := range m.purchaseOrders {
		if po.QuotationID == quotationID {
			cp := *po
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	po.ID = m.allocID()
	po.UpdatedAt = po.CreatedAt
	m.purchaseOrders[po.ID] = &po
	return po.ID, nil
}

func (m *memRepo) UpdatePurchaseOrder(ctx context.Context, id int64, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	po, ok := m.purchaseOrders[id]
	if !ok {
		return ErrNotFound
	}
	if v, ok := updates["amount"]; ok {
		po.Amount = v.(float64)
	}
	if v, ok := updates["status"]; ok {
		po.Status = v.(PurchaseOrderStatus)
	}
	return nil
}

func newTestService(repo *memRepo, at time.Time) *Service {
	svc := NewService(repo, nil, nil, slog.Default())
	svc.now = func() time.Time { return at }
	return svc
}

func mustCreateInquiry(t *testing.T, svc *Service) *Inquiry {
	t.Helper()
	inquiry, err := svc.CreateInquiry(context.Background(), CreateInquiryRequest{CustomerID: 1})
	require.NoError(t, err)
	return inquiry
}

func mustCreateQuotation(t *testing.T, svc *Service, inquiryID int64) *Quotation {
	t.Helper()
	quotation, err := svc.CreateQuotation(context.Background(), inquiryID, CreateQuotationRequest{})
	require.NoError(t, err)
	return quotation
}

// ============================================================================
// INQUIRY CODE ASSIGNMENT
// ============================================================================

func TestCreateInquiryAssignsFinalCode(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)

	assert.Equal(t, "1/I/LNS/V/2025", inquiry.Code)
	assert.Equal(t, InquiryStatusPending, inquiry.Status)
}

func TestCreateInquiryUsesRequestDateForCode(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	date := time.Date(2024, time.November, 3, 0, 0, 0, 0, time.UTC)
	inquiry, err := svc.CreateInquiry(context.Background(), CreateInquiryRequest{CustomerID: 1, InquiryDate: &date})
	require.NoError(t, err)

	assert.Equal(t, "1/I/LNS/XI/2024", inquiry.Code)
}

func TestCreateInquiryCodesEmbedStorageIdentity(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	first := mustCreateInquiry(t, svc)
	second := mustCreateInquiry(t, svc)

	assert.Equal(t, "1/I/LNS/V/2025", first.Code)
	assert.Equal(t, "2/I/LNS/V/2025", second.Code)
	assert.NotEqual(t, first.Code, second.Code)
}

func TestCreateInquiryRollsBackWhenCodeStepFails(t *testing.T) {
	repo := newMemRepo()
	repo.failInquiryCodeStep = true
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	_, err := svc.CreateInquiry(context.Background(), CreateInquiryRequest{CustomerID: 1})
	require.Error(t, err)

	// no half-written row with a placeholder code survives
	assert.Empty(t, repo.inquiries)
}

// ============================================================================
// QUOTATION LIFECYCLE AND CODE CASCADE
// ============================================================================

func TestCreateQuotationDerivesCodeFromInquiry(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)
	svc.now = func() time.Time { return time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC) }
	quotation := mustCreateQuotation(t, svc, inquiry.ID)

	assert.Equal(t, "1/Q/LNS/VI/2025", quotation.Code)
	assert.Equal(t, QuotationStatusNA, quotation.Status)

	updated, err := svc.GetInquiry(context.Background(), inquiry.ID)
	require.NoError(t, err)
	assert.Equal(t, InquiryStatusProcess, updated.Status)
}

func TestCreateQuotationRejectsSecondQuotation(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)
	mustCreateQuotation(t, svc, inquiry.ID)

	_, err := svc.CreateQuotation(context.Background(), inquiry.ID, CreateQuotationRequest{})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateQuotationRequiresLiveInquiry(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	_, err := svc.CreateQuotation(context.Background(), 999, CreateQuotationRequest{})
	assert.ErrorIs(t, err, ErrNotFound)

	inquiry := mustCreateInquiry(t, svc)
	require.NoError(t, svc.SoftDeleteInquiry(context.Background(), inquiry.ID))
	_, err = svc.CreateQuotation(context.Background(), inquiry.ID, CreateQuotationRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNegotiationsAdvanceQuotationCode(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)
	quotation := mustCreateQuotation(t, svc, inquiry.ID)
	assert.Equal(t, "1/Q/LNS/V/2025", quotation.Code)

	first, err := svc.CreateNegotiation(context.Background(), quotation.ID, CreateNegotiationRequest{Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, "1/N1/LNS/V/2025", first.Code)

	refreshed, err := svc.GetQuotation(context.Background(), quotation.ID)
	require.NoError(t, err)
	assert.Equal(t, "1/Q1/LNS/V/2025", refreshed.Code)

	second, err := svc.CreateNegotiation(context.Background(), quotation.ID, CreateNegotiationRequest{Amount: 900})
	require.NoError(t, err)
	assert.Equal(t, "1/N2/LNS/V/2025", second.Code)

	refreshed, err = svc.GetQuotation(context.Background(), quotation.ID)
	require.NoError(t, err)
	assert.Equal(t, "1/Q2/LNS/V/2025", refreshed.Code)
}

func TestQuotationCodeKeepsCreationMonthAcrossNegotiations(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)
	quotation := mustCreateQuotation(t, svc, inquiry.ID)

	// negotiation lands months later; the quotation code keeps V/2025
	svc.now = func() time.Time { return time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC) }
	negotiation, err := svc.CreateNegotiation(context.Background(), quotation.ID, CreateNegotiationRequest{Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, "1/N1/LNS/II/2026", negotiation.Code)

	refreshed, err := svc.GetQuotation(context.Background(), quotation.ID)
	require.NoError(t, err)
	assert.Equal(t, "1/Q1/LNS/V/2025", refreshed.Code)
}

func TestDeleteNegotiationRevertsQuotationCode(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)
	quotation := mustCreateQuotation(t, svc, inquiry.ID)
	first, err := svc.CreateNegotiation(context.Background(), quotation.ID, CreateNegotiationRequest{Amount: 100})
	require.NoError(t, err)
	second, err := svc.CreateNegotiation(context.Background(), quotation.ID, CreateNegotiationRequest{Amount: 90})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteNegotiation(context.Background(), second.ID))
	refreshed, err := svc.GetQuotation(context.Background(), quotation.ID)
	require.NoError(t, err)
	assert.Equal(t, "1/Q1/LNS/V/2025", refreshed.Code)

	// removing the last round reverts to the bare Q segment
	require.NoError(t, svc.DeleteNegotiation(context.Background(), first.ID))
	refreshed, err = svc.GetQuotation(context.Background(), quotation.ID)
	require.NoError(t, err)
	assert.Equal(t, "1/Q/LNS/V/2025", refreshed.Code)
}

func TestRecomputeQuotationCodeIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)
	quotation := mustCreateQuotation(t, svc, inquiry.ID)
	_, err := svc.CreateNegotiation(context.Background(), quotation.ID, CreateNegotiationRequest{Amount: 100})
	require.NoError(t, err)

	writesBefore := repo.codeWrites
	code, changed, err := svc.RecomputeQuotationCode(context.Background(), quotation.ID)
	require.NoError(t, err)
	assert.Equal(t, "1/Q1/LNS/V/2025", code)
	assert.False(t, changed)
	assert.Equal(t, writesBefore, repo.codeWrites)
}

func TestRecomputeRepairsDriftedCode(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)
	quotation := mustCreateQuotation(t, svc, inquiry.ID)

	repo.quotations[quotation.ID].Code = "garbage"

	code, changed, err := svc.RecomputeQuotationCode(context.Background(), quotation.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "1/Q/LNS/V/2025", code)
}

func TestRecomputeSkipsSoftDeletedInquiry(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)
	quotation := mustCreateQuotation(t, svc, inquiry.ID)
	require.NoError(t, svc.SoftDeleteInquiry(context.Background(), inquiry.ID))

	before := repo.quotations[quotation.ID].Code
	code, changed, err := svc.RecomputeQuotationCode(context.Background(), quotation.ID)
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.False(t, changed)
	assert.Equal(t, before, repo.quotations[quotation.ID].Code)
}

func TestRecomputeUnknownQuotationNotFound(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	_, _, err := svc.RecomputeQuotationCode(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateNegotiationDoesNotTouchQuotationCode(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)
	quotation := mustCreateQuotation(t, svc, inquiry.ID)
	negotiation, err := svc.CreateNegotiation(context.Background(), quotation.ID, CreateNegotiationRequest{Amount: 100})
	require.NoError(t, err)

	writesBefore := repo.codeWrites
	status := NegotiationStatusApproved
	_, err = svc.UpdateNegotiation(context.Background(), negotiation.ID, UpdateNegotiationRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, writesBefore, repo.codeWrites)
}

// ============================================================================
// PURCHASE ORDERS
// ============================================================================

func TestCreatePurchaseOrder(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.October, 20, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)
	quotation := mustCreateQuotation(t, svc, inquiry.ID)

	po, err := svc.CreatePurchaseOrder(context.Background(), quotation.ID, CreatePurchaseOrderRequest{Amount: 5000})
	require.NoError(t, err)
	assert.Equal(t, "1/PO/LNS/X/2025", po.Code)
	assert.Equal(t, PurchaseOrderStatusWIP, po.Status)

	_, err = svc.CreatePurchaseOrder(context.Background(), quotation.ID, CreatePurchaseOrderRequest{Amount: 5000})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestPurchaseOrderCodeIgnoresLaterNegotiations(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.October, 20, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)
	quotation := mustCreateQuotation(t, svc, inquiry.ID)
	po, err := svc.CreatePurchaseOrder(context.Background(), quotation.ID, CreatePurchaseOrderRequest{Amount: 5000})
	require.NoError(t, err)

	_, err = svc.CreateNegotiation(context.Background(), quotation.ID, CreateNegotiationRequest{Amount: 4900})
	require.NoError(t, err)

	refreshed, err := svc.GetPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	assert.Equal(t, po.Code, refreshed.Code)
}

// ============================================================================
// SOFT DELETE
// ============================================================================

func TestSoftDeleteInquiryHidesFromReads(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))

	inquiry := mustCreateInquiry(t, svc)
	require.NoError(t, svc.SoftDeleteInquiry(context.Background(), inquiry.ID))

	_, err := svc.GetInquiry(context.Background(), inquiry.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = svc.SoftDeleteInquiry(context.Background(), inquiry.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, total, err := svc.ListInquiries(context.Background(), ListInquiriesRequest{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

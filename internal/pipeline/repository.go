package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lns-pipeline/lns-pipeline/internal/platform/db"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// codeStore is the minimal storage surface the cascade code updater needs.
// Both the pooled repository and the transactional repository satisfy it, so
// a recomputation can run standalone or inside the transaction that
// triggered it.
type codeStore interface {
	GetInquiry(ctx context.Context, id int64) (*Inquiry, error)
	GetQuotation(ctx context.Context, id int64) (*Quotation, error)
	CountNegotiations(ctx context.Context, quotationID int64) (int, error)
	// UpdateQuotationCode writes the code column directly. It must never
	// dispatch the cascade again.
	UpdateQuotationCode(ctx context.Context, id int64, code string) error
}

// Repository provides PostgreSQL backed persistence for the sales pipeline.
type Repository interface {
	codeStore
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	ListInquiries(ctx context.Context, req ListInquiriesRequest) ([]Inquiry, int, error)
	GetQuotationByInquiry(ctx context.Context, inquiryID int64) (*Quotation, error)
	ListQuotations(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error)
	GetNegotiation(ctx context.Context, id int64) (*Negotiation, error)
	ListNegotiations(ctx context.Context, quotationID int64) ([]Negotiation, error)
	GetPurchaseOrder(ctx context.Context, id int64) (*PurchaseOrder, error)
	GetPurchaseOrderByQuotation(ctx context.Context, quotationID int64) (*PurchaseOrder, error)
}

// TxRepository exposes the operations available inside a transaction.
type TxRepository interface {
	codeStore

	InsertInquiry(ctx context.Context, inquiry Inquiry) (int64, error)
	// UpdateInquiryCode is the phase-2 write of the two-phase code
	// assignment, scoped to the just-inserted row.
	UpdateInquiryCode(ctx context.Context, id int64, code string) error
	UpdateInquiry(ctx context.Context, id int64, updates map[string]interface{}) error
	SoftDeleteInquiry(ctx context.Context, id int64) error

	InsertQuotation(ctx context.Context, quotation Quotation) (int64, error)
	UpdateQuotation(ctx context.Context, id int64, updates map[string]interface{}) error

	GetNegotiation(ctx context.Context, id int64) (*Negotiation, error)
	InsertNegotiation(ctx context.Context, negotiation Negotiation) (int64, error)
	UpdateNegotiation(ctx context.Context, id int64, updates map[string]interface{}) error
	DeleteNegotiation(ctx context.Context, id int64) error

	InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	UpdatePurchaseOrder(ctx context.Context, id int64, updates map[string]interface{}) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

// mapWriteError translates unique violations into ErrAlreadyExists.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.ConstraintName)
	}
	return err
}

// numericAmount converts a monetary amount to the NUMERIC(18,2) wire type.
func numericAmount(v float64) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(strconv.FormatFloat(v, 'f', 2, 64)); err != nil {
		return n, fmt.Errorf("encode amount %v: %w", v, err)
	}
	return n, nil
}

// ============================================================================
// INQUIRY OPERATIONS
// ============================================================================

const inquiryColumns = `id, code, customer_id, business_unit_id, inquiry_date, due_date, status, description, created_at, updated_at, deleted_at`

func scanInquiry(row pgx.Row) (*Inquiry, error) {
	var inq Inquiry
	var businessUnitID pgtype.Int8
	var dueDate pgtype.Date
	var description pgtype.Text
	var deletedAt pgtype.Timestamptz

	err := row.Scan(
		&inq.ID, &inq.Code, &inq.CustomerID, &businessUnitID, &inq.InquiryDate,
		&dueDate, &inq.Status, &description, &inq.CreatedAt, &inq.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if businessUnitID.Valid {
		val := businessUnitID.Int64
		inq.BusinessUnitID = &val
	}
	if dueDate.Valid {
		val := dueDate.Time
		inq.DueDate = &val
	}
	if description.Valid {
		val := description.String
		inq.Description = &val
	}
	if deletedAt.Valid {
		val := deletedAt.Time
		inq.DeletedAt = &val
	}
	return &inq, nil
}

func (r *repository) GetInquiry(ctx context.Context, id int64) (*Inquiry, error) {
	query := fmt.Sprintf(`SELECT %s FROM inquiries WHERE id = $1 AND deleted_at IS NULL`, inquiryColumns)
	return scanInquiry(r.db.QueryRow(ctx, query, id))
}

func (r *repository) ListInquiries(ctx context.Context, req ListInquiriesRequest) ([]Inquiry, int, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []interface{}
	argPos := 1

	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM inquiries %s", whereClause)
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM inquiries %s ORDER BY inquiry_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		inquiryColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var inquiries []Inquiry
	for rows.Next() {
		inq, err := scanInquiry(rows)
		if err != nil {
			return nil, 0, err
		}
		inquiries = append(inquiries, *inq)
	}
	return inquiries, total, rows.Err()
}

func (r *repository) InsertInquiry(ctx context.Context, inquiry Inquiry) (int64, error) {
	var businessUnitID pgtype.Int8
	if inquiry.BusinessUnitID != nil {
		businessUnitID = pgtype.Int8{Int64: *inquiry.BusinessUnitID, Valid: true}
	}
	var dueDate pgtype.Date
	if inquiry.DueDate != nil {
		dueDate = pgtype.Date{Time: *inquiry.DueDate, Valid: true}
	}
	var description pgtype.Text
	if inquiry.Description != nil {
		description = pgtype.Text{String: *inquiry.Description, Valid: true}
	}

	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO inquiries (code, customer_id, business_unit_id, inquiry_date, due_date, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id
	`, inquiry.Code, inquiry.CustomerID, businessUnitID, inquiry.InquiryDate, dueDate, inquiry.Status, description).Scan(&id)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return id, nil
}

func (r *repository) UpdateInquiryCode(ctx context.Context, id int64, code string) error {
	tag, err := r.db.Exec(ctx, `UPDATE inquiries SET code = $1, updated_at = NOW() WHERE id = $2`, code, id)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateInquiry(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE inquiries SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"customer_id", "business_unit_id", "due_date", "status", "description"} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d AND deleted_at IS NULL", argPos)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SoftDeleteInquiry(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE inquiries SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// QUOTATION OPERATIONS
// ============================================================================

const quotationColumns = `id, code, inquiry_id, status, due_date, created_at, updated_at`

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var q Quotation
	var dueDate pgtype.Date

	err := row.Scan(&q.ID, &q.Code, &q.InquiryID, &q.Status, &dueDate, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if dueDate.Valid {
		val := dueDate.Time
		q.DueDate = &val
	}
	return &q, nil
}

func (r *repository) GetQuotation(ctx context.Context, id int64) (*Quotation, error) {
	query := fmt.Sprintf(`SELECT %s FROM quotations WHERE id = $1`, quotationColumns)
	return scanQuotation(r.db.QueryRow(ctx, query, id))
}

func (r *repository) GetQuotationByInquiry(ctx context.Context, inquiryID int64) (*Quotation, error) {
	query := fmt.Sprintf(`SELECT %s FROM quotations WHERE inquiry_id = $1`, quotationColumns)
	return scanQuotation(r.db.QueryRow(ctx, query, inquiryID))
}

func (r *repository) ListQuotations(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	conditions := []string{"TRUE"}
	var args []interface{}
	argPos := 1

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM quotations %s", whereClause)
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM quotations %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		quotationColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quotations []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		quotations = append(quotations, *q)
	}
	return quotations, total, rows.Err()
}

func (r *repository) InsertQuotation(ctx context.Context, quotation Quotation) (int64, error) {
	var dueDate pgtype.Date
	if quotation.DueDate != nil {
		dueDate = pgtype.Date{Time: *quotation.DueDate, Valid: true}
	}

	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotations (code, inquiry_id, status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`, quotation.Code, quotation.InquiryID, quotation.Status, dueDate, quotation.CreatedAt).Scan(&id)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return id, nil
}

func (r *repository) UpdateQuotation(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE quotations SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"status", "due_date"} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateQuotationCode(ctx context.Context, id int64, code string) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotations SET code = $1, updated_at = NOW() WHERE id = $2`, code, id)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// NEGOTIATION OPERATIONS
// ============================================================================

const negotiationColumns = `id, code, quotation_id, amount, status, created_at, updated_at`

func scanNegotiation(row pgx.Row) (*Negotiation, error) {
	var n Negotiation
	var amount pgtype.Numeric

	err := row.Scan(&n.ID, &n.Code, &n.QuotationID, &amount, &n.Status, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if amount.Valid {
		f, _ := amount.Float64Value()
		n.Amount = f.Float64
	}
	return &n, nil
}

func (r *repository) GetNegotiation(ctx context.Context, id int64) (*Negotiation, error) {
	query := fmt.Sprintf(`SELECT %s FROM negotiations WHERE id = $1`, negotiationColumns)
	return scanNegotiation(r.db.QueryRow(ctx, query, id))
}

func (r *repository) ListNegotiations(ctx context.Context, quotationID int64) ([]Negotiation, error) {
	query := fmt.Sprintf(`SELECT %s FROM negotiations WHERE quotation_id = $1 ORDER BY id`, negotiationColumns)
	rows, err := r.db.Query(ctx, query, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var negotiations []Negotiation
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			return nil, err
		}
		negotiations = append(negotiations, *n)
	}
	return negotiations, rows.Err()
}

func (r *repository) CountNegotiations(ctx context.Context, quotationID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM negotiations WHERE quotation_id = $1`, quotationID).Scan(&count)
	return count, err
}

func (r *repository) InsertNegotiation(ctx context.Context, negotiation Negotiation) (int64, error) {
	amount, err := numericAmount(negotiation.Amount)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.db.QueryRow(ctx, `
		INSERT INTO negotiations (code, quotation_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`, negotiation.Code, negotiation.QuotationID, amount, negotiation.Status, negotiation.CreatedAt).Scan(&id)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return id, nil
}

func (r *repository) UpdateNegotiation(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE negotiations SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"amount", "status"} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteNegotiation(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM negotiations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// PURCHASE ORDER OPERATIONS
// ============================================================================

const purchaseOrderColumns = `id, code, quotation_id, amount, status, contract_number, job_number, po_date, created_at, updated_at`

func scanPurchaseOrder(row pgx.Row) (*PurchaseOrder, error) {
	var po PurchaseOrder
	var amount pgtype.Numeric
	var contractNumber, jobNumber pgtype.Text

	err := row.Scan(&po.ID, &po.Code, &po.QuotationID, &amount, &po.Status, &contractNumber, &jobNumber, &po.PODate, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if amount.Valid {
		f, _ := amount.Float64Value()
		po.Amount = f.Float64
	}
	if contractNumber.Valid {
		val := contractNumber.String
		po.ContractNumber = &val
	}
	if jobNumber.Valid {
		val := jobNumber.String
		po.JobNumber = &val
	}
	return &po, nil
}

func (r *repository) GetPurchaseOrder(ctx context.Context, id int64) (*PurchaseOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM purchase_orders WHERE id = $1`, purchaseOrderColumns)
	return scanPurchaseOrder(r.db.QueryRow(ctx, query, id))
}

func (r *repository) GetPurchaseOrderByQuotation(ctx context.Context, quotationID int64) (*PurchaseOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM purchase_orders WHERE quotation_id = $1`, purchaseOrderColumns)
	return scanPurchaseOrder(r.db.QueryRow(ctx, query, quotationID))
}

func (r *repository) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	amount, err := numericAmount(po.Amount)
	if err != nil {
		return 0, err
	}
	var contractNumber, jobNumber pgtype.Text
	if po.ContractNumber != nil {
		contractNumber = pgtype.Text{String: *po.ContractNumber, Valid: true}
	}
	if po.JobNumber != nil {
		jobNumber = pgtype.Text{String: *po.JobNumber, Valid: true}
	}

	var id int64
	err = r.db.QueryRow(ctx, `
		INSERT INTO purchase_orders (code, quotation_id, amount, status, contract_number, job_number, po_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id
	`, po.Code, po.QuotationID, amount, po.Status, contractNumber, jobNumber, po.PODate, po.CreatedAt).Scan(&id)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return id, nil
}

func (r *repository) UpdatePurchaseOrder(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE purchase_orders SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"amount", "status", "contract_number", "job_number", "po_date"} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

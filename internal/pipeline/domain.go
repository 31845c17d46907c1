package pipeline

import (
	"time"
)

// ============================================================================
// INQUIRY
// ============================================================================

type InquiryStatus string

const (
	InquiryStatusPending InquiryStatus = "pending"
	InquiryStatusProcess InquiryStatus = "process"
	InquiryStatusNoQuot  InquiryStatus = "no_quot"
)

type Inquiry struct {
	ID             int64         `json:"id" db:"id"`
	Code           string        `json:"code" db:"code"`
	CustomerID     int64         `json:"customer_id" db:"customer_id"`
	BusinessUnitID *int64        `json:"business_unit_id,omitempty" db:"business_unit_id"`
	InquiryDate    time.Time     `json:"inquiry_date" db:"inquiry_date"`
	DueDate        *time.Time    `json:"due_date,omitempty" db:"due_date"`
	Status         InquiryStatus `json:"status" db:"status"`
	Description    *string       `json:"description,omitempty" db:"description"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time    `json:"deleted_at,omitempty" db:"deleted_at"`
}

type CreateInquiryRequest struct {
	CustomerID     int64      `json:"customer_id" validate:"required,gt=0"`
	BusinessUnitID *int64     `json:"business_unit_id,omitempty" validate:"omitempty,gt=0"`
	InquiryDate    *time.Time `json:"inquiry_date,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	Description    *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
}

type UpdateInquiryRequest struct {
	CustomerID     *int64         `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	BusinessUnitID *int64         `json:"business_unit_id,omitempty" validate:"omitempty,gt=0"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	Status         *InquiryStatus `json:"status,omitempty" validate:"omitempty,oneof=pending process no_quot"`
	Description    *string        `json:"description,omitempty" validate:"omitempty,max=2000"`
}

type ListInquiriesRequest struct {
	CustomerID *int64         `json:"customer_id,omitempty"`
	Status     *InquiryStatus `json:"status,omitempty"`
	Limit      int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int            `json:"offset" validate:"gte=0"`
}

// ============================================================================
// QUOTATION
// ============================================================================

type QuotationStatus string

const (
	QuotationStatusNA   QuotationStatus = "n/a"
	QuotationStatusVal  QuotationStatus = "val"
	QuotationStatusLost QuotationStatus = "lost"
	QuotationStatusWIP  QuotationStatus = "wip"
)

type Quotation struct {
	ID        int64           `json:"id" db:"id"`
	Code      string          `json:"code" db:"code"`
	InquiryID int64           `json:"inquiry_id" db:"inquiry_id"`
	Status    QuotationStatus `json:"status" db:"status"`
	DueDate   *time.Time      `json:"due_date,omitempty" db:"due_date"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

type CreateQuotationRequest struct {
	DueDate *time.Time `json:"due_date,omitempty"`
}

type UpdateQuotationRequest struct {
	Status  *QuotationStatus `json:"status,omitempty" validate:"omitempty,oneof=n/a val lost wip"`
	DueDate *time.Time       `json:"due_date,omitempty"`
}

type ListQuotationsRequest struct {
	Status *QuotationStatus `json:"status,omitempty"`
	Limit  int              `json:"limit" validate:"gte=0,lte=1000"`
	Offset int              `json:"offset" validate:"gte=0"`
}

// ============================================================================
// NEGOTIATION
// ============================================================================

type NegotiationStatus string

const (
	NegotiationStatusPending  NegotiationStatus = "pending"
	NegotiationStatusApproved NegotiationStatus = "approved"
	NegotiationStatusRejected NegotiationStatus = "rejected"
)

type Negotiation struct {
	ID          int64             `json:"id" db:"id"`
	Code        string            `json:"code" db:"code"`
	QuotationID int64             `json:"quotation_id" db:"quotation_id"`
	Amount      float64           `json:"amount" db:"amount"`
	Status      NegotiationStatus `json:"status" db:"status"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

type CreateNegotiationRequest struct {
	Amount float64 `json:"amount" validate:"gte=0"`
}

type UpdateNegotiationRequest struct {
	Amount *float64           `json:"amount,omitempty" validate:"omitempty,gte=0"`
	Status *NegotiationStatus `json:"status,omitempty" validate:"omitempty,oneof=pending approved rejected"`
}

// ============================================================================
// PURCHASE ORDER
// ============================================================================

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusWIP  PurchaseOrderStatus = "wip"
	PurchaseOrderStatusAR   PurchaseOrderStatus = "ar"
	PurchaseOrderStatusIBT  PurchaseOrderStatus = "ibt"
	PurchaseOrderStatusClsd PurchaseOrderStatus = "clsd"
)

type PurchaseOrder struct {
	ID             int64               `json:"id" db:"id"`
	Code           string              `json:"code" db:"code"`
	QuotationID    int64               `json:"quotation_id" db:"quotation_id"`
	Amount         float64             `json:"amount" db:"amount"`
	Status         PurchaseOrderStatus `json:"status" db:"status"`
	ContractNumber *string             `json:"contract_number,omitempty" db:"contract_number"`
	JobNumber      *string             `json:"job_number,omitempty" db:"job_number"`
	PODate         time.Time           `json:"po_date" db:"po_date"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"`
}

type CreatePurchaseOrderRequest struct {
	Amount         float64    `json:"amount" validate:"gte=0"`
	ContractNumber *string    `json:"contract_number,omitempty" validate:"omitempty,max=100"`
	JobNumber      *string    `json:"job_number,omitempty" validate:"omitempty,max=100"`
	PODate         *time.Time `json:"po_date,omitempty"`
}

type UpdatePurchaseOrderRequest struct {
	Amount         *float64             `json:"amount,omitempty" validate:"omitempty,gte=0"`
	Status         *PurchaseOrderStatus `json:"status,omitempty" validate:"omitempty,oneof=wip ar ibt clsd"`
	ContractNumber *string              `json:"contract_number,omitempty" validate:"omitempty,max=100"`
	JobNumber      *string              `json:"job_number,omitempty" validate:"omitempty,max=100"`
	PODate         *time.Time           `json:"po_date,omitempty"`
}

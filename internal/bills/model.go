package bills

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillStatus enumerates vendor bill lifecycle values. Bills carry an
// approval step that customer invoices do not: a submitted bill must be
// approved before payments can be recorded against it.
type BillStatus string

const (
	StatusDraft           BillStatus = "DRAFT"
	StatusSubmitted       BillStatus = "SUBMITTED"
	StatusAwaitingPayment BillStatus = "AWAITING_PAYMENT"
	StatusPartiallyPaid   BillStatus = "PARTIALLY_PAID"
	StatusPaid            BillStatus = "PAID"
	StatusOverdue         BillStatus = "OVERDUE"
	StatusVoid            BillStatus = "VOID"
)

// CanTransitionTo reports whether the stored lifecycle permits moving to
// next. Overdue is a read-time projection and never stored.
func (s BillStatus) CanTransitionTo(next BillStatus) bool {
	switch next {
	case StatusSubmitted:
		return s == StatusDraft
	case StatusAwaitingPayment:
		return s == StatusSubmitted
	case StatusPartiallyPaid, StatusPaid:
		return s == StatusAwaitingPayment || s == StatusPartiallyPaid
	case StatusVoid:
		return s != StatusPaid && s != StatusVoid
	}
	return false
}

// Editable reports whether document fields may still change.
func (s BillStatus) Editable() bool {
	return s == StatusDraft
}

// CanApplyPayment reports whether payments may be recorded in this
// stored status.
func (s BillStatus) CanApplyPayment() bool {
	return s == StatusAwaitingPayment || s == StatusPartiallyPaid
}

// AgingEligible reports whether the bill participates in aged payables
// reporting.
func (s BillStatus) AgingEligible() bool {
	return s != StatusPaid && s != StatusDraft && s != StatusVoid
}

// DeriveStatus promotes approved and partially paid bills to Overdue
// past the due date, comparing midnight-normalized dates. Never written
// back.
func DeriveStatus(status BillStatus, dueDate, now time.Time) BillStatus {
	if status != StatusAwaitingPayment && status != StatusPartiallyPaid {
		return status
	}
	if midnight(dueDate).Before(midnight(now)) {
		return StatusOverdue
	}
	return status
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// LineItem belongs to exactly one bill.
type LineItem struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// PaymentRecord is append-only once attached to a bill.
type PaymentRecord struct {
	ID        uuid.UUID       `json:"id"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Reference string          `json:"reference,omitempty"`
}

// Bill model. Totals are derived from the lines and tax rate.
type Bill struct {
	ID             uuid.UUID       `json:"id"`
	Number         string          `json:"number"`
	VendorID       uuid.UUID       `json:"vendor_id"`
	VendorName     string          `json:"vendor_name"`
	VendorInvoice  string          `json:"vendor_invoice,omitempty"`
	IssueDate      time.Time       `json:"issue_date"`
	DueDate        time.Time       `json:"due_date"`
	Items          []LineItem      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`
	Status         BillStatus      `json:"status"`
	ApprovedBy     string          `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	PaymentRecords []PaymentRecord `json:"payment_records,omitempty"`
	Revision       int64           `json:"revision"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PaidAmount sums the attached payment records.
func (b Bill) PaidAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range b.PaymentRecords {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// AmountDue is the outstanding balance.
func (b Bill) AmountDue() decimal.Decimal {
	return b.TotalAmount.Sub(b.PaidAmount())
}

package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus enumerates invoice lifecycle values.
type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "DRAFT"
	StatusSent          InvoiceStatus = "SENT"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusPaid          InvoiceStatus = "PAID"
	StatusOverdue       InvoiceStatus = "OVERDUE"
	StatusVoid          InvoiceStatus = "VOID"
)

// CanTransitionTo reports whether the stored lifecycle permits moving to
// next. Overdue never appears here: it is derived at read time, not
// written.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	switch next {
	case StatusSent:
		return s == StatusDraft
	case StatusPartiallyPaid:
		return s == StatusSent || s == StatusPartiallyPaid
	case StatusPaid:
		return s == StatusSent || s == StatusPartiallyPaid
	case StatusVoid:
		return s != StatusPaid && s != StatusVoid
	}
	return false
}

// Editable reports whether document fields may still change.
func (s InvoiceStatus) Editable() bool {
	return s == StatusDraft
}

// CanApplyPayment reports whether payments may be recorded in this
// stored status.
func (s InvoiceStatus) CanApplyPayment() bool {
	return s == StatusSent || s == StatusPartiallyPaid
}

// Terminal reports whether no further transitions exist.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusPaid || s == StatusVoid
}

// AgingEligible reports whether the document participates in aged
// receivables reporting.
func (s InvoiceStatus) AgingEligible() bool {
	return s != StatusPaid && s != StatusDraft && s != StatusVoid
}

// DeriveStatus promotes Sent and PartiallyPaid invoices to Overdue when
// the due date has passed, comparing midnight-normalized dates so an
// invoice due today is not overdue. The promotion is a read-time
// projection and is never written back.
func DeriveStatus(status InvoiceStatus, dueDate, now time.Time) InvoiceStatus {
	if status != StatusSent && status != StatusPartiallyPaid {
		return status
	}
	due := midnight(dueDate)
	today := midnight(now)
	if due.Before(today) {
		return StatusOverdue
	}
	return status
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// LineItem belongs to exactly one invoice; deleted with it.
type LineItem struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// PaymentRecord is append-only once attached to an invoice.
type PaymentRecord struct {
	ID        uuid.UUID       `json:"id"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Reference string          `json:"reference,omitempty"`
}

// Invoice model. Subtotal, TaxAmount and TotalAmount are always derived
// from the items and tax rate, never taken from client input.
type Invoice struct {
	ID             uuid.UUID       `json:"id"`
	Number         string          `json:"number"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	CustomerName   string          `json:"customer_name"`
	IssueDate      time.Time       `json:"issue_date"`
	DueDate        time.Time       `json:"due_date"`
	Items          []LineItem      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`
	Status         InvoiceStatus   `json:"status"`
	Notes          string          `json:"notes,omitempty"`
	PaymentRecords []PaymentRecord `json:"payment_records,omitempty"`
	Revision       int64           `json:"revision"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PaidAmount sums the attached payment records.
func (inv Invoice) PaidAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range inv.PaymentRecords {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// AmountDue is the outstanding balance.
func (inv Invoice) AmountDue() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.PaidAmount())
}

package quotes

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteStatus enumerates quote lifecycle values.
type QuoteStatus string

const (
	StatusDraft     QuoteStatus = "DRAFT"
	StatusSent      QuoteStatus = "SENT"
	StatusAccepted  QuoteStatus = "ACCEPTED"
	StatusRejected  QuoteStatus = "REJECTED"
	StatusExpired   QuoteStatus = "EXPIRED"
	StatusConverted QuoteStatus = "CONVERTED"
)

// CanTransitionTo reports whether the stored lifecycle permits moving to
// next. Expired is usually derived at read time from the expiry date;
// MarkExpired may persist it once the date has passed.
func (s QuoteStatus) CanTransitionTo(next QuoteStatus) bool {
	switch next {
	case StatusSent:
		return s == StatusDraft
	case StatusAccepted, StatusRejected, StatusExpired:
		return s == StatusSent
	case StatusConverted:
		return s == StatusAccepted
	}
	return false
}

// Editable reports whether quote fields may still change.
func (s QuoteStatus) Editable() bool {
	return s == StatusDraft
}

// Deletable reports whether the quote may be removed. Converted quotes
// are kept as the audit trail behind their invoice.
func (s QuoteStatus) Deletable() bool {
	return s == StatusDraft || s == StatusRejected || s == StatusExpired
}

// DeriveStatus projects sent quotes past their expiry date as Expired.
// Dates are midnight-normalized so a quote expiring today is still open.
func DeriveStatus(status QuoteStatus, expiryDate, now time.Time) QuoteStatus {
	if status != StatusSent {
		return status
	}
	if midnight(expiryDate).Before(midnight(now)) {
		return StatusExpired
	}
	return status
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// LineItem belongs to exactly one quote.
type LineItem struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// Quote model. Totals are derived from the items and tax rate.
type Quote struct {
	ID           uuid.UUID       `json:"id"`
	Number       string          `json:"number"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	IssueDate    time.Time       `json:"issue_date"`
	ExpiryDate   time.Time       `json:"expiry_date"`
	Items        []LineItem      `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Currency     string          `json:"currency"`
	Status       QuoteStatus     `json:"status"`
	Notes        string          `json:"notes,omitempty"`
	InvoiceID    *uuid.UUID      `json:"invoice_id,omitempty"`
	Revision     int64           `json:"revision"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

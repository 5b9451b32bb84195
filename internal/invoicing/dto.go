package invoicing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/probookkeeper/probookkeeper/internal/money"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

// Payment-specific sentinels.
var (
	// ErrNonPositivePayment rejects zero and negative payment amounts.
	ErrNonPositivePayment = fmt.Errorf("%w: payment amount must be positive", internalShared.ErrValidation)
	// ErrOverpaymentNotConfirmed requires explicit caller confirmation
	// before a payment may exceed the outstanding balance.
	ErrOverpaymentNotConfirmed = fmt.Errorf("%w: payment exceeds amount due", internalShared.ErrConfirmationRequired)
	// ErrPaymentNotAllowed rejects payments against documents that are
	// not awaiting payment.
	ErrPaymentNotAllowed = fmt.Errorf("%w: document does not accept payments", internalShared.ErrInvalidStatus)
)

// LineItemInput describes one document line. Negative quantities and
// unit prices are accepted as refund-style credit lines.
type LineItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// InvoiceInput groups fields for creating or editing an invoice draft.
type InvoiceInput struct {
	CustomerID   uuid.UUID       `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	IssueDate    time.Time       `json:"issue_date"`
	DueDate      time.Time       `json:"due_date"`
	Currency     string          `json:"currency"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	Notes        string          `json:"notes,omitempty"`
	Items        []LineItemInput `json:"items"`
}

// Validate checks structural requirements. An empty item list is legal;
// it simply yields zero totals.
func (in InvoiceInput) Validate() error {
	if in.CustomerID == uuid.Nil {
		return fmt.Errorf("%w: customer required", internalShared.ErrValidation)
	}
	if in.IssueDate.IsZero() {
		return fmt.Errorf("%w: issue date required", internalShared.ErrValidation)
	}
	if in.DueDate.IsZero() {
		return fmt.Errorf("%w: due date required", internalShared.ErrValidation)
	}
	if in.DueDate.Before(in.IssueDate) {
		return fmt.Errorf("%w: due date before issue date", internalShared.ErrValidation)
	}
	if !money.ValidCurrency(in.Currency) {
		return fmt.Errorf("%w: unknown currency %q", internalShared.ErrValidation, in.Currency)
	}
	if in.TaxRate.IsNegative() {
		return fmt.Errorf("%w: tax rate must not be negative", internalShared.ErrValidation)
	}
	return nil
}

// UpdateInput wraps an invoice update with its expected revision.
type UpdateInput struct {
	InvoiceID uuid.UUID
	Revision  int64
	Invoice   InvoiceInput
}

// RecordPaymentInput groups fields for recording a payment.
type RecordPaymentInput struct {
	InvoiceID          uuid.UUID       `json:"-"`
	Date               time.Time       `json:"date"`
	Amount             decimal.Decimal `json:"amount"`
	Method             string          `json:"method,omitempty"`
	Reference          string          `json:"reference,omitempty"`
	ConfirmOverpayment bool            `json:"confirm_overpayment,omitempty"`
	IdempotencyKey     string          `json:"-"`
	ActorID            string          `json:"-"`
}

// ListFilter narrows invoice listings. Status filtering is applied after
// read-time status derivation so OVERDUE behaves like a stored status.
type ListFilter struct {
	Status     InvoiceStatus
	CustomerID uuid.UUID
}

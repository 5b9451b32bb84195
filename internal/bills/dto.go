package bills

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/probookkeeper/probookkeeper/internal/money"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

var (
	// ErrNonPositivePayment rejects zero and negative payment amounts.
	ErrNonPositivePayment = fmt.Errorf("%w: payment amount must be positive", internalShared.ErrValidation)
	// ErrOverpaymentNotConfirmed requires explicit caller confirmation
	// before a payment may exceed the outstanding balance.
	ErrOverpaymentNotConfirmed = fmt.Errorf("%w: payment exceeds amount due", internalShared.ErrConfirmationRequired)
	// ErrPaymentNotAllowed rejects payments against bills that have not
	// been approved for payment.
	ErrPaymentNotAllowed = fmt.Errorf("%w: bill does not accept payments", internalShared.ErrInvalidStatus)
	// ErrApproverRequired rejects approvals without an identified actor.
	ErrApproverRequired = fmt.Errorf("%w: approver identity required", internalShared.ErrValidation)
)

// LineItemInput describes one bill line.
type LineItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// BillInput groups fields for creating or editing a bill draft.
type BillInput struct {
	VendorID      uuid.UUID       `json:"vendor_id"`
	VendorName    string          `json:"vendor_name"`
	VendorInvoice string          `json:"vendor_invoice,omitempty"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	Currency      string          `json:"currency"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Notes         string          `json:"notes,omitempty"`
	Items         []LineItemInput `json:"items"`
}

// Validate checks structural requirements.
func (in BillInput) Validate() error {
	if in.VendorID == uuid.Nil {
		return fmt.Errorf("%w: vendor required", internalShared.ErrValidation)
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

// UpdateInput wraps a bill update with its expected revision.
type UpdateInput struct {
	BillID   uuid.UUID
	Revision int64
	Bill     BillInput
}

// RecordPaymentInput groups fields for recording a bill payment.
type RecordPaymentInput struct {
	BillID             uuid.UUID       `json:"-"`
	Date               time.Time       `json:"date"`
	Amount             decimal.Decimal `json:"amount"`
	Method             string          `json:"method,omitempty"`
	Reference          string          `json:"reference,omitempty"`
	ConfirmOverpayment bool            `json:"confirm_overpayment,omitempty"`
	IdempotencyKey     string          `json:"-"`
	ActorID            string          `json:"-"`
}

// ListFilter narrows bill listings.
type ListFilter struct {
	Status   BillStatus
	VendorID uuid.UUID
}

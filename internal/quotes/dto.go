package quotes

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/probookkeeper/probookkeeper/internal/money"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

var (
	// ErrQuoteExpired rejects accepting a quote past its expiry date.
	ErrQuoteExpired = fmt.Errorf("%w: quote has expired", internalShared.ErrInvalidStatus)
	// ErrNotConvertible rejects conversion of quotes that are not
	// accepted.
	ErrNotConvertible = fmt.Errorf("%w: only accepted quotes can be converted", internalShared.ErrInvalidStatus)
)

// LineItemInput describes one quote line.
type LineItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// QuoteInput groups fields for creating or editing a quote draft.
type QuoteInput struct {
	CustomerID   uuid.UUID       `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	IssueDate    time.Time       `json:"issue_date"`
	ExpiryDate   time.Time       `json:"expiry_date"`
	Currency     string          `json:"currency"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	Notes        string          `json:"notes,omitempty"`
	Items        []LineItemInput `json:"items"`
}

// Validate checks structural requirements.
func (in QuoteInput) Validate() error {
	if in.CustomerID == uuid.Nil {
		return fmt.Errorf("%w: customer required", internalShared.ErrValidation)
	}
	if in.IssueDate.IsZero() {
		return fmt.Errorf("%w: issue date required", internalShared.ErrValidation)
	}
	if in.ExpiryDate.IsZero() {
		return fmt.Errorf("%w: expiry date required", internalShared.ErrValidation)
	}
	if in.ExpiryDate.Before(in.IssueDate) {
		return fmt.Errorf("%w: expiry date before issue date", internalShared.ErrValidation)
	}
	if !money.ValidCurrency(in.Currency) {
		return fmt.Errorf("%w: unknown currency %q", internalShared.ErrValidation, in.Currency)
	}
	if in.TaxRate.IsNegative() {
		return fmt.Errorf("%w: tax rate must not be negative", internalShared.ErrValidation)
	}
	return nil
}

// UpdateInput wraps a quote update with its expected revision.
type UpdateInput struct {
	QuoteID  uuid.UUID
	Revision int64
	Quote    QuoteInput
}

// ListFilter narrows quote listings.
type ListFilter struct {
	Status     QuoteStatus
	CustomerID uuid.UUID
}

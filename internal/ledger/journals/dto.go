package journals

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/probookkeeper/probookkeeper/internal/ledger/shared"
	"github.com/probookkeeper/probookkeeper/internal/money"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

// LineInput describes a journal line for an entry request.
type LineInput struct {
	AccountID   uuid.UUID       `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// EntryInput groups fields required to save a journal entry.
type EntryInput struct {
	Date     time.Time   `json:"date"`
	Memo     string      `json:"memo,omitempty"`
	Currency string      `json:"currency"`
	Lines    []LineInput `json:"lines"`
}

// Validate ensures the entry is balanceable: at least two lines, every
// line referencing an account with exactly one non-negative side set, and
// rounded debit and credit sums equal and greater than zero.
func (in EntryInput) Validate() error {
	if in.Date.IsZero() {
		return fmt.Errorf("%w: entry date required", internalShared.ErrValidation)
	}
	if in.Currency != "" && !money.ValidCurrency(in.Currency) {
		return fmt.Errorf("%w: unknown currency %q", internalShared.ErrValidation, in.Currency)
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == uuid.Nil {
			return fmt.Errorf("%w: line %d missing account", internalShared.ErrValidation, idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", internalShared.ErrValidation, idx)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d must set exactly one of debit or credit", internalShared.ErrValidation, idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	debit = money.Round2(debit)
	credit = money.Round2(credit)
	if !debit.Equal(credit) {
		return shared.ErrUnbalanced
	}
	if !debit.IsPositive() {
		return shared.ErrZeroEntry
	}
	return nil
}

// Totals returns the rounded debit and credit sums.
func (in EntryInput) Totals() (debit, credit decimal.Decimal) {
	for _, line := range in.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return money.Round2(debit), money.Round2(credit)
}

// AccountIDs returns the distinct account references of the entry.
func (in EntryInput) AccountIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(in.Lines))
	out := make([]uuid.UUID, 0, len(in.Lines))
	for _, line := range in.Lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		out = append(out, line.AccountID)
	}
	return out
}

// UpdateInput wraps an entry update with its expected revision.
type UpdateInput struct {
	EntryID  uuid.UUID
	Revision int64
	Entry    EntryInput
}

// PostInput wraps parameters for posting.
type PostInput struct {
	EntryID  uuid.UUID
	Revision int64
	ActorID  string
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	EntryID uuid.UUID
	ActorID string
	Reason  string
}

package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft  JournalStatus = "DRAFT"
	JournalStatusPosted JournalStatus = "POSTED"
	JournalStatusVoid   JournalStatus = "VOID"
)

// CanTransitionTo reports whether the lifecycle permits moving to next.
func (s JournalStatus) CanTransitionTo(next JournalStatus) bool {
	switch s {
	case JournalStatusDraft:
		return next == JournalStatusPosted
	case JournalStatusPosted:
		return next == JournalStatusVoid
	}
	return false
}

// Editable reports whether the entry's lines may still change.
func (s JournalStatus) Editable() bool {
	return s == JournalStatusDraft
}

// Deletable reports whether hard deletion is allowed. Posted entries are
// never deletable; they must be voided to preserve the audit trail.
func (s JournalStatus) Deletable() bool {
	return s == JournalStatusDraft || s == JournalStatusVoid
}

// JournalEntry captures a double-entry record.
type JournalEntry struct {
	ID           uuid.UUID       `json:"id"`
	EntryNumber  string          `json:"entry_number"`
	Date         time.Time       `json:"date"`
	Memo         string          `json:"memo,omitempty"`
	Currency     string          `json:"currency"`
	Status       JournalStatus   `json:"status"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	Revision     int64           `json:"revision"`
	PostedAt     *time.Time      `json:"posted_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Lines        []JournalLine   `json:"lines"`
}

// JournalLine stores a debit or credit amount for an account. Exactly one
// side is non-zero.
type JournalLine struct {
	ID          uuid.UUID       `json:"id"`
	EntryID     uuid.UUID       `json:"entry_id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

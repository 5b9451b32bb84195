// Package shared holds sentinel errors common to the ledger modules.
package shared

import (
	"fmt"

	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("%w: journal lines must balance", internalShared.ErrValidation)
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = fmt.Errorf("%w: journal requires at least two lines", internalShared.ErrValidation)
	// ErrZeroEntry indicates a balanced entry whose total movement is zero.
	ErrZeroEntry = fmt.Errorf("%w: journal total must be greater than zero", internalShared.ErrValidation)
	// ErrAccountNotFound indicates a line references an unknown account.
	ErrAccountNotFound = fmt.Errorf("%w: account reference", internalShared.ErrNotFound)
	// ErrEntryImmutable indicates an attempt to edit a posted or void entry.
	ErrEntryImmutable = fmt.Errorf("%w: posted and void entries are immutable", internalShared.ErrInvalidStatus)
	// ErrEntryNotDeletable indicates deletion of a posted entry; void it instead.
	ErrEntryNotDeletable = fmt.Errorf("%w: posted entries must be voided, not deleted", internalShared.ErrInvalidStatus)
)

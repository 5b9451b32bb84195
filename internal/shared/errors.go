package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks input that fails business validation.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidStatus indicates an illegal document state transition.
	ErrInvalidStatus = errors.New("invalid status transition")
	// ErrVersionConflict indicates a stale optimistic revision on update.
	ErrVersionConflict = errors.New("document revision conflict")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrConfirmationRequired indicates the request is valid but needs an
	// explicit caller confirmation flag before it takes effect.
	ErrConfirmationRequired = errors.New("confirmation required")
)

package shared

import "errors"

// Error kinds surfaced by every cash ledger operation. Callers match them with errors.Is.
var (
	// ErrValidation indicates malformed input rejected before any store access.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the actor lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState indicates the entity is not in the state the operation requires.
	ErrInvalidState = errors.New("invalid state")
	// ErrInsufficientFunds indicates a bucket's available amount is too small.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrConflict indicates a concurrent modification detected during check-then-write.
	ErrConflict = errors.New("conflict")
	// ErrNotFound indicates resource not found or outside the caller's branch scope.
	ErrNotFound = errors.New("not found")
	// ErrTransientStore indicates the store was unreachable or timed out.
	ErrTransientStore = errors.New("store temporarily unavailable")
)

var kinds = []error{
	ErrValidation,
	ErrForbidden,
	ErrInvalidState,
	ErrInsufficientFunds,
	ErrConflict,
	ErrNotFound,
	ErrTransientStore,
}

// Kind returns the error kind wrapped by err, or nil when err carries none.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Retryable reports whether the caller may safely retry the failed operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrTransientStore)
}

// WriteObserver receives the outcome of every cash ledger write.
type WriteObserver interface {
	ObserveWrite(operation string, err error)
}

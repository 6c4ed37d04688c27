package entitle

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios. The taxonomy matters to
// callers: denials are expected business outcomes surfaced to the end user,
// provider failures are retryable dependency faults that left no partial
// state, and not-found errors indicate a stale or invalid identifier.
var (
	// General errors
	ErrNotFound      = errors.New("entitle: not found")
	ErrAlreadyExists = errors.New("entitle: already exists")
	ErrInvalidInput  = errors.New("entitle: invalid input")

	// Entitlement errors
	ErrRecordNotFound      = errors.New("entitle: entitlement record not found")
	ErrInsufficientCredits = errors.New("entitle: insufficient credits")
	ErrUnknownCreditKind   = errors.New("entitle: unknown credit kind")
	ErrUnknownTier         = errors.New("entitle: unknown plan tier")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("entitle: subscription not found")
	ErrSubscriptionExists   = errors.New("entitle: subscription already exists")
	ErrAlreadyCancelled     = errors.New("entitle: subscription already cancelled")
	ErrProviderIDMissing    = errors.New("entitle: subscription has no provider id")

	// Provider errors
	ErrProviderFailure       = errors.New("entitle: provider call failed")
	ErrProviderNotConfigured = errors.New("entitle: provider not configured")

	// Journal errors
	ErrJournalBufferFull = errors.New("entitle: journal buffer full")

	// Store errors
	ErrStoreClosed       = errors.New("entitle: store is closed")
	ErrTransactionFailed = errors.New("entitle: transaction failed")
	ErrMigrationFailed   = errors.New("entitle: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("entitle: validation failed for %s: %s", e.Field, e.Message)
}

// IsDenial returns true if the error is an expected business rejection that
// should be surfaced to the caller as-is, never logged as a fault.
func IsDenial(err error) bool {
	return errors.Is(err, ErrInsufficientCredits) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrProviderIDMissing)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsRetryable returns true if the error is temporary and the whole operation
// can safely be retried from scratch: no operation in this package leaves
// partially-applied state behind a retryable error.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderFailure) ||
		errors.Is(err, ErrJournalBufferFull) ||
		errors.Is(err, ErrTransactionFailed)
}

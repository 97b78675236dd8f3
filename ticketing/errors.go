/*
errors.go - Centralized error types for the ticketing engine

PURPOSE:
  All expected failure conditions in one place. The HTTP layer maps these
  to status codes; callers use errors.Is / errors.As.

ERROR CATEGORIES:
  1. Lookup failures      - ErrNotFound
  2. Business rejections  - ErrInsufficientInventory, ErrPromotionPrice,
                            ErrForbidden, ErrInvalidState
  3. Invariant breaches   - ErrLedgerInvariant (should never happen; a
                            concurrency bug if it does)

PROPAGATION POLICY:
  Everything except ErrLedgerInvariant is an expected, recoverable-by-the-
  caller condition and propagates with no partial side effects (atomicity
  inside Store.WithTx guarantees this). ErrLedgerInvariant fails the
  operation closed and must be logged loudly at the call site.
*/
package ticketing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced tier, event, account or
	// transaction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientInventory is returned when the requested quantity
	// exceeds a tier's remaining quota at reservation time.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrPromotionPrice is returned when a non-discounted tier is selected
	// while a promotion window is open for the event.
	ErrPromotionPrice = errors.New("promotion price violation")

	// ErrForbidden is returned when the actor does not own the resource
	// they are trying to mutate (wrong buyer, wrong organizer).
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState is returned when the requested transition is not
	// legal from the transaction's current status.
	ErrInvalidState = errors.New("invalid transaction state")

	// ErrLedgerInvariant signals that a ledger operation would have driven
	// a balance or quota negative outside the conditional-reserve path.
	// This is a bug signal, not a user-facing error.
	ErrLedgerInvariant = errors.New("ledger invariant violation")

	// ErrInvalidInput is returned for malformed requests that slipped past
	// boundary validation (zero quantity, empty tier list, negative amount).
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientInventoryError reports how many seats were actually left so
// the client can re-render the availability.
type InsufficientInventoryError struct {
	TierID    TierID
	Requested int
	Remaining int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory on tier %s: requested %d, remaining %d",
		e.TierID, e.Requested, e.Remaining)
}

func (e *InsufficientInventoryError) Unwrap() error { return ErrInsufficientInventory }

// PromotionPriceError reports why the selected tier was rejected during an
// active promotion window.
type PromotionPriceError struct {
	EventID      EventID
	TierID       TierID
	TierPrice    Money
	NominalPrice Money
}

func (e *PromotionPriceError) Error() string {
	return fmt.Sprintf("tier %s priced %d is not discounted below the event's nominal price %d during an active promotion",
		e.TierID, e.TierPrice, e.NominalPrice)
}

func (e *PromotionPriceError) Unwrap() error { return ErrPromotionPrice }

// InvalidStateError reports the transition that was refused.
type InvalidStateError struct {
	TransactionID TransactionID
	Current       TransactionStatus
	Expected      TransactionStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("transaction %s is %s, expected %s",
		e.TransactionID, e.Current, e.Expected)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// LedgerInvariantError carries enough context to debug the concurrency bug
// that produced it.
type LedgerInvariantError struct {
	Op     string // "release", "consume", "restore", ...
	Detail string
}

func (e *LedgerInvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violated in %s: %s", e.Op, e.Detail)
}

func (e *LedgerInvariantError) Unwrap() error { return ErrLedgerInvariant }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is an expected rejection of the
// caller's request rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrPromotionPrice) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

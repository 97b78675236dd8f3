/*
store.go - Persistence interface for the ticketing engine

PURPOSE:
  Defines the boundary between domain logic and the database. Two
  implementations exist: store/sqlite (production) and ticketing/store
  (in-memory, for tests and dev).

CONDITIONAL WRITES:
  The quota/seat/point decrements and the status transitions are
  conditional: they report whether the guarded update applied. This is what
  makes concurrent checkouts race-free — two reservations against a tier
  with quota=1 can never both see the decrement succeed, and a transaction
  can never be moved out of a status it is no longer in.

ATOMIC UNITS:
  WithTx executes a function against a transaction-scoped Store. Every
  logical operation that spans the transaction row, the inventory counters
  and the point balance (checkout, reject, expire, cancel) runs inside one
  WithTx call: either everything commits or nothing does.

SEE ALSO:
  - store/sqlite/sqlite.go: Production implementation
  - ticketing/store/memory.go: In-memory implementation
*/
package ticketing

import (
	"context"
	"time"
)

// Store is the persistence contract for all engine entities.
//
// Methods returning (bool, error) are conditional writes: false with a nil
// error means the guard did not hold (insufficient quota, wrong status) and
// nothing was mutated.
type Store interface {
	// --- Accounts ---

	CreateAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id AccountID) (*Account, error)

	// AddPoints unconditionally increments an account's balance.
	AddPoints(ctx context.Context, id AccountID, amount Money) error

	// DeductPoints decrements the balance only if it holds at least amount.
	DeductPoints(ctx context.Context, id AccountID, amount Money) (bool, error)

	// --- Events and tiers ---

	// CreateEvent persists the event and its tiers as one unit.
	CreateEvent(ctx context.Context, e Event, tiers []TicketTier) error
	GetEvent(ctx context.Context, id EventID) (*Event, error)

	// ListEvents returns events whose end date is after now, filtered.
	ListEvents(ctx context.Context, f EventListFilter, now time.Time) ([]Event, error)

	// CreateTier appends one tier to an existing event. The event's seat
	// counter is not touched; callers adjust it in the same unit.
	CreateTier(ctx context.Context, t TicketTier) error

	GetTier(ctx context.Context, id TierID) (*TicketTier, error)
	ListTiers(ctx context.Context, eventID EventID) ([]TicketTier, error)

	// DecrementTierQuota subtracts qty only if the remaining quota covers it.
	DecrementTierQuota(ctx context.Context, id TierID, qty int) (bool, error)

	// IncrementTierQuota adds qty back. Always succeeds for an existing tier.
	IncrementTierQuota(ctx context.Context, id TierID, qty int) error

	// DecrementEventSeats subtracts qty only if availableSeats covers it.
	DecrementEventSeats(ctx context.Context, id EventID, qty int) (bool, error)

	// IncrementEventSeats adds qty back to the aggregate counter.
	IncrementEventSeats(ctx context.Context, id EventID, qty int) error

	// --- Promotions ---

	CreatePromotion(ctx context.Context, p Promotion) error

	// ActivePromotions returns the event's promotions whose window contains at.
	ActivePromotions(ctx context.Context, eventID EventID, at time.Time) ([]Promotion, error)

	// --- Transactions ---

	CreateTransaction(ctx context.Context, t Transaction) error
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// UpdateTransactionStatus moves id from one status to another. The write
	// applies only if the transaction is currently in from.
	UpdateTransactionStatus(ctx context.Context, id TransactionID, from, to TransactionStatus, at time.Time) (bool, error)

	// SetPaymentProof stores the proof reference and advances the status,
	// conditional on the transaction currently being in from.
	SetPaymentProof(ctx context.Context, id TransactionID, proofRef string, from, to TransactionStatus, at time.Time) (bool, error)

	// ListTransactionsByBuyer returns the buyer's transactions newest first.
	ListTransactionsByBuyer(ctx context.Context, buyerID AccountID) ([]Transaction, error)

	// ListTransactionsByOrganizer returns transactions against the
	// organizer's events, newest first.
	ListTransactionsByOrganizer(ctx context.Context, organizerID AccountID) ([]Transaction, error)

	// ListOverdue returns transactions in status created at or before cutoff.
	ListOverdue(ctx context.Context, status TransactionStatus, cutoff time.Time) ([]Transaction, error)

	// --- Points usage ---

	CreatePointsUsage(ctx context.Context, u PointsUsage) error
	GetPointsUsage(ctx context.Context, txID TransactionID) (*PointsUsage, error)

	// DeletePointsUsage removes the usage marker, reporting whether a row
	// existed. This is the idempotency guard for point restoration.
	DeletePointsUsage(ctx context.Context, txID TransactionID) (bool, error)

	// --- Point grants ---

	CreatePointGrant(ctx context.Context, g PointGrant) error
	ListPointGrants(ctx context.Context, accountID AccountID) ([]PointGrant, error)

	// DeactivateExpiredGrants flips active to false on grants whose expiry
	// has passed, returning how many were flipped. The live balance is not
	// touched.
	DeactivateExpiredGrants(ctx context.Context, now time.Time) (int, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn against a transaction-scoped Store. If fn returns
	// an error the transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

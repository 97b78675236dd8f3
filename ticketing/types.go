/*
Package ticketing provides the core transaction and inventory engine for the
event-ticketing marketplace.

PURPOSE:
  This package contains the domain types and algorithms for managing ticket
  inventory, loyalty points, and the purchase transaction lifecycle. It owns
  the three conservation invariants of the system:

    1. Tier quota never goes negative and is never lost or double-counted.
    2. An event's availableSeats tracks the sum of its tiers' quotas at
       every quiescent point.
    3. An account's point balance never goes negative and is restored
       exactly once when a transaction is rolled back.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: Integer currency units (no fractional cents in this market)
  - Account, Event, TicketTier, Promotion: Catalog entities
  - Transaction: One checkout attempt and its lifecycle status
  - PointsUsage: The marker row recording points consumed by a transaction
  - PointGrant: A point award with an expiry date

DESIGN PRINCIPLES:
  1. All shared counters (quota, seats, points) are mutated only through
     the InventoryLedger and PointLedger operations in this package.
  2. Every multi-entity mutation runs inside Store.WithTx — all-or-nothing.
  3. Status transitions are conditional writes: the store refuses to move a
     transaction out of a state it is no longer in.

SEE ALSO:
  - engine.go: Checkout / payment-proof / confirm state machine
  - inventory.go, points.go: Ledger operations
  - rollback.go: Compensator shared by reject and the expiry sweep
  - sweep.go: Deadline enforcement
*/
package ticketing

import "time"

// =============================================================================
// MONEY - Integer currency units
// =============================================================================

// Money is an amount in whole currency units. Prices, point redemptions and
// totals are all non-negative; one point offsets one unit of currency.
type Money int64

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type EventID string
type TierID string
type PromotionID string
type TransactionID string
type GrantID string

// Role distinguishes the two kinds of authenticated principals.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleOrganizer Role = "organizer"
)

// =============================================================================
// CATALOG ENTITIES
// =============================================================================

// Account is the opaque authenticated principal. Registration and session
// issuance live outside this system; the engine only needs the id, the role,
// and the redeemable point balance.
type Account struct {
	ID        AccountID
	Name      string
	Role      Role
	Points    Money
	CreatedAt time.Time
}

// Event is the aggregate an organizer sells tickets for. NominalPrice is the
// cheapest tier price recorded at creation and anchors the promotion check:
// while a promotion window is open, only tiers priced strictly below
// NominalPrice may be bought. AvailableSeats equals the sum of remaining
// tier quotas whenever no transaction is mid-flight.
type Event struct {
	ID             EventID
	OrganizerID    AccountID
	Name           string
	Description    string
	Category       string
	Location       string
	StartDate      time.Time
	EndDate        time.Time
	NominalPrice   Money
	AvailableSeats int
	CreatedAt      time.Time
}

// TicketTier is the unit of inventory. Quota is remaining, not lifetime:
// lifetime-issued minus lifetime-sold.
type TicketTier struct {
	ID      TierID
	EventID EventID
	Name    string
	Price   Money
	Quota   int
}

// Promotion marks a time window during which only discounted tiers are a
// legitimate purchase. The discount itself lives in tier pricing; the
// promotion stores no amount.
type Promotion struct {
	ID        PromotionID
	EventID   EventID
	Title     string
	StartDate time.Time
	EndDate   time.Time
}

// =============================================================================
// TRANSACTION - One checkout attempt (aggregate root)
// =============================================================================

type TransactionStatus string

const (
	StatusWaitingPayment      TransactionStatus = "waiting_payment"
	StatusWaitingConfirmation TransactionStatus = "waiting_confirmation"
	StatusDone                TransactionStatus = "done"
	StatusRejected            TransactionStatus = "rejected"
	StatusExpired             TransactionStatus = "expired"
	StatusCanceled            TransactionStatus = "canceled"
)

// Terminal reports whether no further transition is legal from s.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusDone, StatusRejected, StatusExpired, StatusCanceled:
		return true
	}
	return false
}

// RollbackEligible reports whether a transaction in s still holds reserved
// inventory. Only non-terminal states hold reservations; once a transaction
// is terminal its inventory has either been kept (done) or restored.
func (s TransactionStatus) RollbackEligible() bool {
	return s == StatusWaitingPayment || s == StatusWaitingConfirmation
}

// Transaction records one checkout attempt. Rows are never deleted; the
// status history is the audit trail. TotalPrice is the final amount after
// any point deduction.
type Transaction struct {
	ID           TransactionID
	BuyerID      AccountID
	EventID      EventID
	TierID       TierID
	Quantity     int
	TotalPrice   Money
	Status       TransactionStatus
	PaymentProof string // opaque reference from the proof store, "" until submitted
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PointsUsage records the points a transaction consumed at checkout.
// At most one row per transaction. Its presence is the marker that the
// buyer's balance has not yet been refunded: the compensator deletes it
// when restoring points, which makes a second rollback a no-op.
type PointsUsage struct {
	TransactionID TransactionID
	UsedPoints    Money
	OffsetAmount  Money
}

// =============================================================================
// POINT GRANT - Awarded points with an expiry date
// =============================================================================

// PointGrant is the history record behind a balance increment. The expiry
// sweep flips Active to false once ExpiresAt passes; the live balance is
// deliberately not reduced at that moment.
type PointGrant struct {
	ID            GrantID
	AccountID     AccountID
	Amount        Money
	Reason        string
	ExpiresAt     time.Time
	Active        bool
	TransactionID TransactionID // optional originating transaction
	CreatedAt     time.Time
}

// =============================================================================
// CHECKOUT INPUT/OUTPUT
// =============================================================================

// CheckoutInput is the request to reserve tickets.
type CheckoutInput struct {
	BuyerID   AccountID
	TierID    TierID
	Quantity  int
	UsePoints bool
}

// CheckoutResult reports what the reservation committed.
type CheckoutResult struct {
	TransactionID TransactionID
	FinalPrice    Money
	PointsUsed    Money
}

// ConfirmAction is the organizer's decision on a waiting_confirmation
// transaction.
type ConfirmAction string

const (
	ActionAccept ConfirmAction = "accept"
	ActionReject ConfirmAction = "reject"
)

// =============================================================================
// EVENT CREATION INPUT
// =============================================================================

// TierSpec describes one tier at event-creation time.
type TierSpec struct {
	Name  string
	Price Money
	Quota int
}

// EventInput is the request to create an event with its tiers.
type EventInput struct {
	Name        string
	Description string
	Category    string
	Location    string
	StartDate   time.Time
	EndDate     time.Time
	Tiers       []TierSpec
}

// EventListFilter narrows the public catalog listing. Zero values match
// everything; only events ending after the query time are returned.
type EventListFilter struct {
	Query    string
	Category string
	Location string
}

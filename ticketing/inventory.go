/*
inventory.go - Inventory ledger over tier quota and event seats

PURPOSE:
  Owns the "never go negative, never over-sell" invariant for ticket
  inventory. Reserve and Release are the only code paths allowed to mutate
  TicketTier.Quota and Event.AvailableSeats.

CONCURRENCY:
  Reserve relies on the store's conditional decrement: the quota check and
  the subtraction are one guarded write, so two concurrent reservations
  against a tier with quota=1 can never both succeed. No read-then-write
  window exists.

SEE ALSO:
  - engine.go: Calls Reserve inside the checkout unit of work
  - rollback.go: Calls Release when a transaction is rolled back
*/
package ticketing

import "context"

// InventoryLedger performs atomic quota accounting against a Store. It is a
// stateless wrapper: construct one over the transaction-scoped store inside
// a WithTx block.
type InventoryLedger struct {
	store Store
}

func NewInventoryLedger(store Store) *InventoryLedger {
	return &InventoryLedger{store: store}
}

// Reserve decrements the tier's quota and the parent event's availableSeats
// by qty. If the tier cannot cover qty, nothing is mutated and an
// InsufficientInventoryError carrying the remaining quota is returned.
//
// A seat-counter shortfall after the tier decrement succeeded means the two
// counters have diverged, which the reserve/release discipline makes
// impossible; it surfaces as ErrLedgerInvariant.
func (l *InventoryLedger) Reserve(ctx context.Context, tierID TierID, qty int) error {
	tier, err := l.store.GetTier(ctx, tierID)
	if err != nil {
		return err
	}
	if tier == nil {
		return ErrNotFound
	}

	ok, err := l.store.DecrementTierQuota(ctx, tierID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return &InsufficientInventoryError{
			TierID:    tierID,
			Requested: qty,
			Remaining: tier.Quota,
		}
	}

	ok, err = l.store.DecrementEventSeats(ctx, tier.EventID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return &LedgerInvariantError{
			Op:     "reserve",
			Detail: "tier quota covered the reservation but event seats did not",
		}
	}
	return nil
}

// Release returns qty to the tier's quota and the parent event's
// availableSeats. It succeeds unconditionally for an existing tier; calling
// it at most once per rollback is the caller's responsibility (the
// compensator's status guard).
func (l *InventoryLedger) Release(ctx context.Context, tierID TierID, qty int) error {
	tier, err := l.store.GetTier(ctx, tierID)
	if err != nil {
		return err
	}
	if tier == nil {
		return ErrNotFound
	}

	if err := l.store.IncrementTierQuota(ctx, tierID, qty); err != nil {
		return err
	}
	return l.store.IncrementEventSeats(ctx, tier.EventID, qty)
}

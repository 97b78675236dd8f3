/*
rollback.go - Compensator restoring inventory and points

PURPOSE:
  Given a transaction id, restores whatever that transaction had reserved:
  tier quota, the event's aggregate seat counter, and any consumed points.
  Invoked from exactly two call sites — the organizer reject path and the
  expiry sweep — and both must produce the same effect.

IDEMPOTENCY:
  Rollback must never double-restore. Two guards enforce this:
    1. Inventory is released only while the transaction is still in a
       rollback-eligible (non-terminal) status. The caller moves the
       transaction to its terminal status in the same atomic unit, so a
       second invocation sees a terminal status and does nothing.
    2. Points are restored only if the PointsUsage row still exists; the
       row is deleted in the same unit, so a second pass finds no marker.
*/
package ticketing

import "context"

// Compensator restores a transaction's reserved inventory and points.
type Compensator struct{}

// Rollback undoes the reservation held by txID against the given store.
// The store must be transaction-scoped (called inside WithTx) so the
// release, the point restore, and the caller's status change commit as one
// unit. A missing transaction or an already-terminal one is a no-op.
func (Compensator) Rollback(ctx context.Context, store Store, txID TransactionID) error {
	txn, err := store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if txn == nil {
		return nil
	}
	if !txn.Status.RollbackEligible() {
		return nil
	}

	inv := NewInventoryLedger(store)
	if err := inv.Release(ctx, txn.TierID, txn.Quantity); err != nil {
		return err
	}

	usage, err := store.GetPointsUsage(ctx, txID)
	if err != nil {
		return err
	}
	if usage != nil {
		deleted, err := store.DeletePointsUsage(ctx, txID)
		if err != nil {
			return err
		}
		if deleted {
			pts := NewPointLedger(store, SystemClock{})
			if err := pts.Restore(ctx, txn.BuyerID, usage.UsedPoints); err != nil {
				return err
			}
		}
	}
	return nil
}

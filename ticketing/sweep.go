/*
sweep.go - Deadline enforcement for overdue transactions and stale grants

PURPOSE:
  Finds transactions that have overstayed a state-specific deadline and
  forces them through rollback into a terminal failure state:

    waiting_payment       older than PaymentDeadline      -> expired
    waiting_confirmation  older than ConfirmationDeadline -> canceled

  Both deadlines are measured from the transaction's CREATION time, not
  from the time it entered its current state. A waiting_confirmation
  transaction's three-day clock therefore starts at checkout, not at
  proof submission. Downstream integrations depend on this anchor; a test
  asserts it literally.

  The same pass also flips the active flag on point grants whose expiry
  has passed. The live balance is not reduced.

ERROR POLICY:
  Each overdue transaction is processed independently — a failure on one
  is logged and the sweep continues with the rest. The sweep never
  surfaces errors to any user.

SEE ALSO:
  - api/scheduler.go: Timer lifecycle and in-flight guard around RunSweep
*/
package ticketing

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Production deadlines.
const (
	DefaultPaymentDeadline      = 2 * time.Hour
	DefaultConfirmationDeadline = 3 * 24 * time.Hour
)

// SweepConfig sets the deadlines enforced by RunSweep.
type SweepConfig struct {
	PaymentDeadline      time.Duration
	ConfirmationDeadline time.Duration
}

// DefaultSweepConfig returns the production deadlines.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		PaymentDeadline:      DefaultPaymentDeadline,
		ConfirmationDeadline: DefaultConfirmationDeadline,
	}
}

// SweepResult reports what one sweep pass did.
type SweepResult struct {
	Expired       int // waiting_payment past deadline -> expired
	Canceled      int // waiting_confirmation past deadline -> canceled
	GrantsExpired int // point grants flipped inactive
	Failed        int // transactions whose processing errored (logged, skipped)
}

// RunSweep performs one expiry pass at the engine clock's current time.
func (e *Engine) RunSweep(ctx context.Context, cfg SweepConfig) (SweepResult, error) {
	now := e.clock.Now()
	var result SweepResult

	expired, err := e.sweepStatus(ctx, StatusWaitingPayment, StatusExpired,
		now.Add(-cfg.PaymentDeadline), now, &result.Failed)
	if err != nil {
		return result, err
	}
	result.Expired = expired

	canceled, err := e.sweepStatus(ctx, StatusWaitingConfirmation, StatusCanceled,
		now.Add(-cfg.ConfirmationDeadline), now, &result.Failed)
	if err != nil {
		return result, err
	}
	result.Canceled = canceled

	flipped, err := e.store.DeactivateExpiredGrants(ctx, now)
	if err != nil {
		// Grant expiry is bookkeeping; a failure here must not mask the
		// transaction sweep that already ran.
		e.logger.WithError(err).Error("failed to deactivate expired point grants")
	} else {
		result.GrantsExpired = flipped
	}

	if result.Expired > 0 || result.Canceled > 0 || result.GrantsExpired > 0 || result.Failed > 0 {
		e.logger.WithFields(logrus.Fields{
			"expired":        result.Expired,
			"canceled":       result.Canceled,
			"grants_expired": result.GrantsExpired,
			"failed":         result.Failed,
		}).Info("expiry sweep completed")
	}
	return result, nil
}

// sweepStatus rolls back and terminates every transaction in from created
// at or before cutoff. Per-transaction failures are logged and skipped.
func (e *Engine) sweepStatus(ctx context.Context, from, to TransactionStatus, cutoff, now time.Time, failed *int) (int, error) {
	overdue, err := e.store.ListOverdue(ctx, from, cutoff)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, txn := range overdue {
		txn := txn
		err := e.store.WithTx(ctx, func(s Store) error {
			if err := e.compensator.Rollback(ctx, s, txn.ID); err != nil {
				return err
			}
			ok, err := s.UpdateTransactionStatus(ctx, txn.ID, from, to, now)
			if err != nil {
				return err
			}
			if !ok {
				// Someone resolved it between the listing and this unit.
				return &InvalidStateError{TransactionID: txn.ID, Current: "changed concurrently", Expected: from}
			}
			return nil
		})
		if err != nil {
			*failed++
			e.logger.WithError(err).WithFields(logrus.Fields{
				"transaction_id": txn.ID,
				"from":           from,
				"to":             to,
			}).Error("sweep failed for transaction")
			continue
		}
		processed++
		e.logger.WithFields(logrus.Fields{
			"transaction_id": txn.ID,
			"status":         to,
			"created_at":     txn.CreatedAt,
		}).Info("transaction swept")
	}
	return processed, nil
}

/*
points.go - Loyalty point ledger

PURPOSE:
  Owns each account's redeemable point balance and the grant history. The
  balance never goes negative: Consume takes min(requested, balance) and
  the store's conditional decrement guards the subtraction itself.

GRANTS:
  Every balance increment that comes from an award (referral bonus, manual
  organizer grant) appends a PointGrant record with an expiry date. The
  expiry sweep later flips the record's active flag; the balance is not
  reduced at that moment; balances are reconciled out of band.

SEE ALSO:
  - engine.go: Consume at checkout, Grant via grantPoints
  - rollback.go: Restore when a transaction is rolled back
*/
package ticketing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PointLedger performs atomic point accounting against a Store. Like the
// inventory ledger it is stateless; construct it over the transaction-scoped
// store inside a WithTx block.
type PointLedger struct {
	store Store
	clock Clock
}

func NewPointLedger(store Store, clock Clock) *PointLedger {
	return &PointLedger{store: store, clock: clock}
}

// Consume decrements the account's balance by min(amount, balance) and
// returns the amount actually consumed. It never consumes more than
// requested and never drives the balance negative. A zero return with a nil
// error means the account had nothing to redeem.
func (l *PointLedger) Consume(ctx context.Context, accountID AccountID, amount Money) (Money, error) {
	if amount <= 0 {
		return 0, nil
	}

	acct, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if acct == nil {
		return 0, ErrNotFound
	}

	consume := amount
	if acct.Points < consume {
		consume = acct.Points
	}
	if consume == 0 {
		return 0, nil
	}

	ok, err := l.store.DeductPoints(ctx, accountID, consume)
	if err != nil {
		return 0, err
	}
	if !ok {
		// The balance moved under us outside the unit of work. The store's
		// serialization should make this unreachable.
		return 0, &LedgerInvariantError{
			Op:     "consume",
			Detail: fmt.Sprintf("balance for %s dropped below %d mid-operation", accountID, consume),
		}
	}
	return consume, nil
}

// Restore unconditionally increments the account's balance. Invoked only by
// the rollback compensator, which holds the PointsUsage marker guaranteeing
// exactly-once restoration.
func (l *PointLedger) Restore(ctx context.Context, accountID AccountID, amount Money) error {
	if amount <= 0 {
		return nil
	}
	return l.store.AddPoints(ctx, accountID, amount)
}

// Grant increments the balance and appends a PointGrant record expiring
// expiresInDays from now. Returns the created grant.
func (l *PointLedger) Grant(ctx context.Context, accountID AccountID, amount Money, reason string, expiresInDays int) (*PointGrant, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: grant amount must be positive, got %d", ErrInvalidInput, amount)
	}

	acct, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrNotFound
	}

	now := l.clock.Now()
	grant := PointGrant{
		ID:        GrantID(uuid.NewString()),
		AccountID: accountID,
		Amount:    amount,
		Reason:    reason,
		ExpiresAt: now.Add(time.Duration(expiresInDays) * 24 * time.Hour),
		Active:    true,
		CreatedAt: now,
	}

	if err := l.store.AddPoints(ctx, accountID, amount); err != nil {
		return nil, err
	}
	if err := l.store.CreatePointGrant(ctx, grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

package ticketing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehall/ticketing-engine/ticketing"
	"github.com/gatehall/ticketing-engine/ticketing/store"
)

// The ledgers are exercised here against the in-memory store; the engine
// tests cover the same paths through sqlite.

func newLedgerFixture(t *testing.T) (*store.Memory, *fakeClock) {
	t.Helper()
	mem := store.NewMemory()
	clock := &fakeClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, mem.CreateAccount(context.Background(), ticketing.Account{
		ID: "acct-1", Name: "Alice", Role: ticketing.RoleCustomer, Points: 0, CreatedAt: clock.Now(),
	}))
	return mem, clock
}

// =============================================================================
// POINT LEDGER
// =============================================================================

func TestPointLedger_ConsumeTakesTheSmallerOfBalanceAndAmount(t *testing.T) {
	mem, clock := newLedgerFixture(t)
	ctx := context.Background()
	require.NoError(t, mem.AddPoints(ctx, "acct-1", 50000))
	ledger := ticketing.NewPointLedger(mem, clock)

	used, err := ledger.Consume(ctx, "acct-1", 120000)
	require.NoError(t, err)
	assert.Equal(t, ticketing.Money(50000), used)

	acct, err := mem.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, ticketing.Money(0), acct.Points)
}

func TestPointLedger_ConsumeZeroBalanceIsANoop(t *testing.T) {
	mem, clock := newLedgerFixture(t)
	ledger := ticketing.NewPointLedger(mem, clock)

	used, err := ledger.Consume(context.Background(), "acct-1", 10000)
	require.NoError(t, err)
	assert.Equal(t, ticketing.Money(0), used)
}

func TestPointLedger_ConsumeUnknownAccount(t *testing.T) {
	mem, clock := newLedgerFixture(t)
	ledger := ticketing.NewPointLedger(mem, clock)

	_, err := ledger.Consume(context.Background(), "ghost", 10000)
	assert.ErrorIs(t, err, ticketing.ErrNotFound)
}

func TestPointLedger_GrantSetsExpiryAndBalance(t *testing.T) {
	mem, clock := newLedgerFixture(t)
	ctx := context.Background()
	ledger := ticketing.NewPointLedger(mem, clock)

	grant, err := ledger.Grant(ctx, "acct-1", 25000, "referral bonus", 30)
	require.NoError(t, err)
	assert.True(t, grant.Active)
	assert.Equal(t, clock.Now().Add(30*24*time.Hour), grant.ExpiresAt)

	acct, err := mem.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, ticketing.Money(25000), acct.Points)

	_, err = ledger.Grant(ctx, "acct-1", 0, "nothing", 30)
	assert.ErrorIs(t, err, ticketing.ErrInvalidInput)
}

func TestPointLedger_RestoreAddsBack(t *testing.T) {
	mem, clock := newLedgerFixture(t)
	ctx := context.Background()
	require.NoError(t, mem.AddPoints(ctx, "acct-1", 20000))
	ledger := ticketing.NewPointLedger(mem, clock)

	used, err := ledger.Consume(ctx, "acct-1", 20000)
	require.NoError(t, err)
	require.Equal(t, ticketing.Money(20000), used)

	require.NoError(t, ledger.Restore(ctx, "acct-1", used))

	acct, err := mem.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, ticketing.Money(20000), acct.Points)
}

// =============================================================================
// PROMOTION FILTER
// =============================================================================

func seedFilterEvent(t *testing.T, mem *store.Memory, now time.Time, promoStart, promoEnd time.Time) *ticketing.Event {
	t.Helper()
	ctx := context.Background()
	event := ticketing.Event{
		ID:             "event-1",
		OrganizerID:    "org-1",
		Name:           "Gala",
		StartDate:      now.Add(7 * 24 * time.Hour),
		EndDate:        now.Add(8 * 24 * time.Hour),
		NominalPrice:   100000,
		AvailableSeats: 10,
		CreatedAt:      now,
	}
	require.NoError(t, mem.CreateEvent(ctx, event, nil))
	require.NoError(t, mem.CreatePromotion(ctx, ticketing.Promotion{
		ID:        "promo-1",
		EventID:   event.ID,
		Title:     "Gala Week",
		StartDate: promoStart,
		EndDate:   promoEnd,
	}))
	return &event
}

func TestPromotionFilter_TierBelowNominalPasses(t *testing.T) {
	mem, clock := newLedgerFixture(t)
	now := clock.Now()
	event := seedFilterEvent(t, mem, now, now.Add(-time.Hour), now.Add(time.Hour))
	filter := ticketing.NewPromotionFilter(mem)

	tier := &ticketing.TicketTier{ID: "tier-1", EventID: event.ID, Price: 99999}
	assert.NoError(t, filter.CheckEligibility(context.Background(), event, tier, now))
}

func TestPromotionFilter_TierAtNominalIsViolation(t *testing.T) {
	mem, clock := newLedgerFixture(t)
	now := clock.Now()
	event := seedFilterEvent(t, mem, now, now.Add(-time.Hour), now.Add(time.Hour))
	filter := ticketing.NewPromotionFilter(mem)

	tier := &ticketing.TicketTier{ID: "tier-1", EventID: event.ID, Price: 100000}
	err := filter.CheckEligibility(context.Background(), event, tier, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, ticketing.ErrPromotionPrice)

	var promoErr *ticketing.PromotionPriceError
	require.ErrorAs(t, err, &promoErr)
	assert.Equal(t, ticketing.Money(100000), promoErr.TierPrice)
}

func TestPromotionFilter_OutsideWindowAnyPricePasses(t *testing.T) {
	mem, clock := newLedgerFixture(t)
	now := clock.Now()
	event := seedFilterEvent(t, mem, now, now.Add(time.Hour), now.Add(2*time.Hour))
	filter := ticketing.NewPromotionFilter(mem)

	tier := &ticketing.TicketTier{ID: "tier-1", EventID: event.ID, Price: 150000}
	assert.NoError(t, filter.CheckEligibility(context.Background(), event, tier, now))
}

func TestPromotionFilter_WindowBoundariesAreInclusive(t *testing.T) {
	mem, clock := newLedgerFixture(t)
	now := clock.Now()
	event := seedFilterEvent(t, mem, now, now, now.Add(time.Hour))
	filter := ticketing.NewPromotionFilter(mem)

	tier := &ticketing.TicketTier{ID: "tier-1", EventID: event.ID, Price: 100000}
	assert.ErrorIs(t, filter.CheckEligibility(context.Background(), event, tier, now), ticketing.ErrPromotionPrice)
	assert.ErrorIs(t, filter.CheckEligibility(context.Background(), event, tier, now.Add(time.Hour)), ticketing.ErrPromotionPrice)
	assert.NoError(t, filter.CheckEligibility(context.Background(), event, tier, now.Add(time.Hour+time.Second)))
}

// =============================================================================
// INVENTORY LEDGER AND COMPENSATOR
// =============================================================================

func seedInventory(t *testing.T, mem *store.Memory, now time.Time, quota int) ticketing.TicketTier {
	t.Helper()
	tier := ticketing.TicketTier{ID: "tier-1", EventID: "event-1", Name: "GA", Price: 50000, Quota: quota}
	require.NoError(t, mem.CreateEvent(context.Background(), ticketing.Event{
		ID:             "event-1",
		OrganizerID:    "org-1",
		Name:           "Gala",
		StartDate:      now.Add(24 * time.Hour),
		EndDate:        now.Add(25 * time.Hour),
		NominalPrice:   50000,
		AvailableSeats: quota,
		CreatedAt:      now,
	}, []ticketing.TicketTier{tier}))
	return tier
}

func TestInventoryLedger_ReserveShortfallCarriesRemaining(t *testing.T) {
	mem, clock := newLedgerFixture(t)
	tier := seedInventory(t, mem, clock.Now(), 2)
	ledger := ticketing.NewInventoryLedger(mem)

	err := ledger.Reserve(context.Background(), tier.ID, 3)
	require.Error(t, err)

	var invErr *ticketing.InsufficientInventoryError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, 2, invErr.Remaining)

	got, err := mem.GetTier(context.Background(), tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Quota)
}

func TestCompensator_RollbackIsIdempotent(t *testing.T) {
	// GIVEN: A waiting_payment transaction holding 2 seats and 10000 points
	// WHEN: Rollback runs twice
	// THEN: The second pass is a no-op once the status is terminal

	mem, clock := newLedgerFixture(t)
	ctx := context.Background()
	now := clock.Now()
	tier := seedInventory(t, mem, now, 5)

	require.NoError(t, mem.AddPoints(ctx, "acct-1", 10000))
	inv := ticketing.NewInventoryLedger(mem)
	require.NoError(t, inv.Reserve(ctx, tier.ID, 2))

	deducted, err := mem.DeductPoints(ctx, "acct-1", 10000)
	require.NoError(t, err)
	require.True(t, deducted)

	require.NoError(t, mem.CreateTransaction(ctx, ticketing.Transaction{
		ID:         "txn-1",
		BuyerID:    "acct-1",
		EventID:    "event-1",
		TierID:     tier.ID,
		Quantity:   2,
		TotalPrice: 90000,
		Status:     ticketing.StatusWaitingPayment,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
	require.NoError(t, mem.CreatePointsUsage(ctx, ticketing.PointsUsage{
		TransactionID: "txn-1", UsedPoints: 10000, OffsetAmount: 10000,
	}))

	var comp ticketing.Compensator
	require.NoError(t, comp.Rollback(ctx, mem, "txn-1"))

	ok, err := mem.UpdateTransactionStatus(ctx, "txn-1",
		ticketing.StatusWaitingPayment, ticketing.StatusExpired, now)
	require.NoError(t, err)
	require.True(t, ok)

	// Terminal transactions are skipped outright.
	require.NoError(t, comp.Rollback(ctx, mem, "txn-1"))

	got, err := mem.GetTier(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quota)

	acct, err := mem.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, ticketing.Money(10000), acct.Points)

	usage, err := mem.GetPointsUsage(ctx, "txn-1")
	require.NoError(t, err)
	assert.Nil(t, usage)
}

func TestCompensator_UnknownTransactionIsANoop(t *testing.T) {
	mem, _ := newLedgerFixture(t)
	var comp ticketing.Compensator
	assert.NoError(t, comp.Rollback(context.Background(), mem, "ghost"))
}

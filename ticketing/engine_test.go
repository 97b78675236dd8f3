package ticketing_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehall/ticketing-engine/store/sqlite"
	"github.com/gatehall/ticketing-engine/ticketing"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEngine(t *testing.T, opts ...ticketing.EngineOption) (*ticketing.Engine, *sqlite.Store, *fakeClock) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &fakeClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]ticketing.EngineOption{ticketing.WithClock(clock)}, opts...)
	engine := ticketing.NewEngine(store, testLogger(), opts...)
	return engine, store, clock
}

// marketplace is a seeded organizer, buyer and one event with two tiers.
type marketplace struct {
	organizer ticketing.AccountID
	buyer     ticketing.AccountID
	event     *ticketing.Event
	regular   ticketing.TicketTier // price 100000, quota 10
	vip       ticketing.TicketTier // price 150000, quota 4
}

func seedMarketplace(t *testing.T, engine *ticketing.Engine, clock *fakeClock) marketplace {
	t.Helper()
	ctx := context.Background()

	_, err := engine.CreateAccount(ctx, "org-1", "Concert Hall", ticketing.RoleOrganizer)
	require.NoError(t, err)
	_, err = engine.CreateAccount(ctx, "buyer-1", "Alice", ticketing.RoleCustomer)
	require.NoError(t, err)

	event, err := engine.CreateEvent(ctx, "org-1", ticketing.EventInput{
		Name:      "Spring Concert",
		Category:  "music",
		Location:  "Jakarta",
		StartDate: clock.Now().Add(7 * 24 * time.Hour),
		EndDate:   clock.Now().Add(8 * 24 * time.Hour),
		Tiers: []ticketing.TierSpec{
			{Name: "Regular", Price: 100000, Quota: 10},
			{Name: "VIP", Price: 150000, Quota: 4},
		},
	})
	require.NoError(t, err)

	detail, err := engine.GetEventDetail(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, detail.Tiers, 2)

	m := marketplace{organizer: "org-1", buyer: "buyer-1", event: event}
	for _, tier := range detail.Tiers {
		switch tier.Name {
		case "Regular":
			m.regular = tier
		case "VIP":
			m.vip = tier
		}
	}
	return m
}

func tierQuota(t *testing.T, store *sqlite.Store, id ticketing.TierID) int {
	t.Helper()
	tier, err := store.GetTier(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, tier)
	return tier.Quota
}

func eventSeats(t *testing.T, store *sqlite.Store, id ticketing.EventID) int {
	t.Helper()
	event, err := store.GetEvent(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, event)
	return event.AvailableSeats
}

func buyerBalance(t *testing.T, store *sqlite.Store, id ticketing.AccountID) ticketing.Money {
	t.Helper()
	acct, err := store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, acct)
	return acct.Points
}

// =============================================================================
// CHECKOUT
// =============================================================================

func TestCheckout_ReservesInventory(t *testing.T) {
	// GIVEN: A tier with quota 10 on an event with 14 seats
	// WHEN: A buyer checks out 3 tickets
	// THEN: Quota drops to 7, seats to 11, transaction is waiting_payment

	engine, store, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()

	result, err := engine.Checkout(ctx, ticketing.CheckoutInput{
		BuyerID:  m.buyer,
		TierID:   m.regular.ID,
		Quantity: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, ticketing.Money(300000), result.FinalPrice)
	assert.Equal(t, ticketing.Money(0), result.PointsUsed)
	assert.Equal(t, 7, tierQuota(t, store, m.regular.ID))
	assert.Equal(t, 11, eventSeats(t, store, m.event.ID))

	detail, err := engine.GetTransaction(ctx, result.TransactionID, m.buyer)
	require.NoError(t, err)
	assert.Equal(t, ticketing.StatusWaitingPayment, detail.Transaction.Status)
	assert.Nil(t, detail.PointsUsage)
}

func TestCheckout_RedeemsPoints_CappedAtBalance(t *testing.T) {
	// GIVEN: A buyer holding 50000 points
	// WHEN: They check out one 100000 ticket with usePoints
	// THEN: 50000 points are consumed, final price is 50000, balance is 0

	engine, store, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()

	_, err := engine.GrantPoints(ctx, m.organizer, m.buyer, 50000, "referral bonus")
	require.NoError(t, err)

	result, err := engine.Checkout(ctx, ticketing.CheckoutInput{
		BuyerID:   m.buyer,
		TierID:    m.regular.ID,
		Quantity:  1,
		UsePoints: true,
	})
	require.NoError(t, err)

	assert.Equal(t, ticketing.Money(50000), result.PointsUsed)
	assert.Equal(t, ticketing.Money(50000), result.FinalPrice)
	assert.Equal(t, ticketing.Money(0), buyerBalance(t, store, m.buyer))

	detail, err := engine.GetTransaction(ctx, result.TransactionID, m.buyer)
	require.NoError(t, err)
	require.NotNil(t, detail.PointsUsage)
	assert.Equal(t, ticketing.Money(50000), detail.PointsUsage.UsedPoints)
}

func TestCheckout_RedeemsPoints_CappedAtSubtotal(t *testing.T) {
	// GIVEN: A buyer holding more points than the order subtotal
	// WHEN: They check out one 100000 ticket with usePoints
	// THEN: Only 100000 points are consumed and the final price is 0

	engine, store, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()

	_, err := engine.GrantPoints(ctx, m.organizer, m.buyer, 500000, "loyalty")
	require.NoError(t, err)

	result, err := engine.Checkout(ctx, ticketing.CheckoutInput{
		BuyerID:   m.buyer,
		TierID:    m.regular.ID,
		Quantity:  1,
		UsePoints: true,
	})
	require.NoError(t, err)

	assert.Equal(t, ticketing.Money(100000), result.PointsUsed)
	assert.Equal(t, ticketing.Money(0), result.FinalPrice)
	assert.Equal(t, ticketing.Money(400000), buyerBalance(t, store, m.buyer))
}

func TestCheckout_InsufficientInventory_NothingMutated(t *testing.T) {
	// GIVEN: A tier with quota 10
	// WHEN: A buyer requests 30 tickets
	// THEN: The error carries the remaining quota and no state changed

	engine, store, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()

	_, err := engine.Checkout(ctx, ticketing.CheckoutInput{
		BuyerID:  m.buyer,
		TierID:   m.regular.ID,
		Quantity: 30,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ticketing.ErrInsufficientInventory)

	var invErr *ticketing.InsufficientInventoryError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, 10, invErr.Remaining)
	assert.Equal(t, 30, invErr.Requested)

	assert.Equal(t, 10, tierQuota(t, store, m.regular.ID))
	assert.Equal(t, 14, eventSeats(t, store, m.event.ID))

	txns, err := engine.ListTransactions(ctx, m.buyer)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestCheckout_UnknownTier_NotFound(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	seedMarketplace(t, engine, clock)

	_, err := engine.Checkout(context.Background(), ticketing.CheckoutInput{
		BuyerID:  "buyer-1",
		TierID:   "no-such-tier",
		Quantity: 1,
	})
	assert.ErrorIs(t, err, ticketing.ErrNotFound)
}

func TestCheckout_ZeroQuantity_Rejected(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)

	_, err := engine.Checkout(context.Background(), ticketing.CheckoutInput{
		BuyerID:  m.buyer,
		TierID:   m.regular.ID,
		Quantity: 0,
	})
	assert.ErrorIs(t, err, ticketing.ErrInvalidInput)
}

// =============================================================================
// PROMOTION WINDOW
// =============================================================================

// seedPromoEvent walks the organizer's own flow: create an event whose
// single tier fixes the nominal price at 100000, open a promotion window
// around the clock's now, then add a discounted 80000 tier.
func seedPromoEvent(t *testing.T, engine *ticketing.Engine, clock *fakeClock) (discounted, full ticketing.TicketTier) {
	t.Helper()
	ctx := context.Background()
	now := clock.Now()

	_, err := engine.CreateAccount(ctx, "promo-org", "Promoter", ticketing.RoleOrganizer)
	require.NoError(t, err)

	event, err := engine.CreateEvent(ctx, "promo-org", ticketing.EventInput{
		Name:      "Promo Night",
		StartDate: now.Add(7 * 24 * time.Hour),
		EndDate:   now.Add(8 * 24 * time.Hour),
		Tiers:     []ticketing.TierSpec{{Name: "Regular", Price: 100000, Quota: 5}},
	})
	require.NoError(t, err)

	_, err = engine.CreatePromotion(ctx, "promo-org", event.ID, "Early Bird",
		now.Add(-time.Hour), now.Add(24*time.Hour))
	require.NoError(t, err)

	added, err := engine.AddTiers(ctx, "promo-org", event.ID,
		[]ticketing.TierSpec{{Name: "Promo", Price: 80000, Quota: 5}})
	require.NoError(t, err)
	require.Len(t, added, 1)

	detail, err := engine.GetEventDetail(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, detail.Tiers, 2)
	for _, tier := range detail.Tiers {
		switch tier.Name {
		case "Promo":
			discounted = tier
		case "Regular":
			full = tier
		}
	}
	return discounted, full
}

func TestCheckout_ActivePromotion_RejectsNonDiscountedTier(t *testing.T) {
	// GIVEN: An active promotion on an event with nominal price 100000
	// WHEN: A buyer selects the tier priced exactly 100000
	// THEN: Checkout fails with a promotion price violation, no state change

	engine, store, clock := newTestEngine(t)
	ctx := context.Background()
	_, err := engine.CreateAccount(ctx, "buyer-1", "Alice", ticketing.RoleCustomer)
	require.NoError(t, err)
	_, full := seedPromoEvent(t, engine, clock)

	_, err = engine.Checkout(ctx, ticketing.CheckoutInput{
		BuyerID:  "buyer-1",
		TierID:   full.ID,
		Quantity: 1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ticketing.ErrPromotionPrice)

	var promoErr *ticketing.PromotionPriceError
	require.ErrorAs(t, err, &promoErr)
	assert.Equal(t, ticketing.Money(100000), promoErr.TierPrice)
	assert.Equal(t, ticketing.Money(100000), promoErr.NominalPrice)

	assert.Equal(t, 5, tierQuota(t, store, full.ID))
}

func TestCheckout_ActivePromotion_AllowsDiscountedTier(t *testing.T) {
	// GIVEN: An active promotion
	// WHEN: A buyer selects the tier priced strictly below nominal
	// THEN: Checkout succeeds

	engine, _, clock := newTestEngine(t)
	ctx := context.Background()
	_, err := engine.CreateAccount(ctx, "buyer-1", "Alice", ticketing.RoleCustomer)
	require.NoError(t, err)
	discounted, _ := seedPromoEvent(t, engine, clock)

	result, err := engine.Checkout(ctx, ticketing.CheckoutInput{
		BuyerID:  "buyer-1",
		TierID:   discounted.ID,
		Quantity: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, ticketing.Money(80000), result.FinalPrice)
}

func TestCheckout_PromotionWindowClosed_AnyTierEligible(t *testing.T) {
	// GIVEN: A promotion that ended yesterday (clock moved past its window)
	// WHEN: A buyer selects the full-price tier
	// THEN: Checkout succeeds

	engine, _, clock := newTestEngine(t)
	ctx := context.Background()
	_, err := engine.CreateAccount(ctx, "buyer-1", "Alice", ticketing.RoleCustomer)
	require.NoError(t, err)
	_, full := seedPromoEvent(t, engine, clock)

	clock.Advance(48 * time.Hour)

	_, err = engine.Checkout(ctx, ticketing.CheckoutInput{
		BuyerID:  "buyer-1",
		TierID:   full.ID,
		Quantity: 1,
	})
	require.NoError(t, err)
}

// =============================================================================
// ADDING TIERS
// =============================================================================

func TestAddTiers_RaisesSeatsAndKeepsNominal(t *testing.T) {
	// GIVEN: An event with nominal 100000 and 14 seats
	// WHEN: The organizer adds a 6-seat tier priced above nominal
	// THEN: Seats rise to 20 and the nominal price stays fixed

	engine, store, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()

	added, err := engine.AddTiers(ctx, m.organizer, m.event.ID,
		[]ticketing.TierSpec{{Name: "Late Release", Price: 120000, Quota: 6}})
	require.NoError(t, err)
	require.Len(t, added, 1)

	assert.Equal(t, 20, eventSeats(t, store, m.event.ID))
	assert.Equal(t, 6, tierQuota(t, store, added[0].ID))

	event, err := store.GetEvent(ctx, m.event.ID)
	require.NoError(t, err)
	assert.Equal(t, ticketing.Money(100000), event.NominalPrice)
}

func TestAddTiers_NonOwner_Forbidden(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()

	_, err := engine.CreateAccount(ctx, "org-2", "Rival Hall", ticketing.RoleOrganizer)
	require.NoError(t, err)

	_, err = engine.AddTiers(ctx, "org-2", m.event.ID,
		[]ticketing.TierSpec{{Name: "Sneaky", Price: 1000, Quota: 5}})
	assert.ErrorIs(t, err, ticketing.ErrForbidden)
	assert.Equal(t, 14, eventSeats(t, store, m.event.ID))
}

func TestAddTiers_MalformedTier_Rejected(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)

	_, err := engine.AddTiers(context.Background(), m.organizer, m.event.ID,
		[]ticketing.TierSpec{{Name: "", Price: 1000, Quota: 5}})
	assert.ErrorIs(t, err, ticketing.ErrInvalidInput)

	_, err = engine.AddTiers(context.Background(), m.organizer, m.event.ID, nil)
	assert.ErrorIs(t, err, ticketing.ErrInvalidInput)
}

func TestAddTiers_DiscountedTierMakesPromotedEventPurchasable(t *testing.T) {
	// GIVEN: An event whose only tier carries the nominal price, with a
	//        promotion window open — no tier is purchasable
	// WHEN: The organizer adds a tier priced below nominal
	// THEN: The new tier can be bought while the window is still open

	engine, _, clock := newTestEngine(t)
	ctx := context.Background()
	now := clock.Now()

	_, err := engine.CreateAccount(ctx, "org-1", "Hall", ticketing.RoleOrganizer)
	require.NoError(t, err)
	_, err = engine.CreateAccount(ctx, "buyer-1", "Alice", ticketing.RoleCustomer)
	require.NoError(t, err)

	event, err := engine.CreateEvent(ctx, "org-1", ticketing.EventInput{
		Name:      "Flash Night",
		StartDate: now.Add(7 * 24 * time.Hour),
		EndDate:   now.Add(8 * 24 * time.Hour),
		Tiers:     []ticketing.TierSpec{{Name: "Regular", Price: 100000, Quota: 5}},
	})
	require.NoError(t, err)
	_, err = engine.CreatePromotion(ctx, "org-1", event.ID, "Flash Sale",
		now.Add(-time.Hour), now.Add(24*time.Hour))
	require.NoError(t, err)

	detail, err := engine.GetEventDetail(ctx, event.ID)
	require.NoError(t, err)
	_, err = engine.Checkout(ctx, ticketing.CheckoutInput{
		BuyerID: "buyer-1", TierID: detail.Tiers[0].ID, Quantity: 1,
	})
	require.ErrorIs(t, err, ticketing.ErrPromotionPrice)

	added, err := engine.AddTiers(ctx, "org-1", event.ID,
		[]ticketing.TierSpec{{Name: "Flash", Price: 75000, Quota: 5}})
	require.NoError(t, err)

	result, err := engine.Checkout(ctx, ticketing.CheckoutInput{
		BuyerID: "buyer-1", TierID: added[0].ID, Quantity: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, ticketing.Money(75000), result.FinalPrice)
}

// =============================================================================
// PAYMENT PROOF
// =============================================================================

func checkout(t *testing.T, engine *ticketing.Engine, m marketplace, qty int, usePoints bool) ticketing.TransactionID {
	t.Helper()
	result, err := engine.Checkout(context.Background(), ticketing.CheckoutInput{
		BuyerID:   m.buyer,
		TierID:    m.regular.ID,
		Quantity:  qty,
		UsePoints: usePoints,
	})
	require.NoError(t, err)
	return result.TransactionID
}

func TestSubmitPaymentProof_AdvancesToWaitingConfirmation(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()
	txID := checkout(t, engine, m, 1, false)

	err := engine.SubmitPaymentProof(ctx, txID, m.buyer, "proofs/receipt-1.png")
	require.NoError(t, err)

	detail, err := engine.GetTransaction(ctx, txID, m.buyer)
	require.NoError(t, err)
	assert.Equal(t, ticketing.StatusWaitingConfirmation, detail.Transaction.Status)
	assert.Equal(t, "proofs/receipt-1.png", detail.Transaction.PaymentProof)
}

func TestSubmitPaymentProof_WrongBuyer_Forbidden(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()
	txID := checkout(t, engine, m, 1, false)

	_, err := engine.CreateAccount(ctx, "buyer-2", "Mallory", ticketing.RoleCustomer)
	require.NoError(t, err)

	err = engine.SubmitPaymentProof(ctx, txID, "buyer-2", "proofs/fake.png")
	assert.ErrorIs(t, err, ticketing.ErrForbidden)
}

func TestSubmitPaymentProof_DuplicateSubmit_InvalidState(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()
	txID := checkout(t, engine, m, 1, false)

	require.NoError(t, engine.SubmitPaymentProof(ctx, txID, m.buyer, "proofs/first.png"))

	err := engine.SubmitPaymentProof(ctx, txID, m.buyer, "proofs/second.png")
	assert.ErrorIs(t, err, ticketing.ErrInvalidState)
}

// =============================================================================
// CONFIRM
// =============================================================================

func TestConfirm_Accept_MovesToDone(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()
	txID := checkout(t, engine, m, 2, false)
	require.NoError(t, engine.SubmitPaymentProof(ctx, txID, m.buyer, "proofs/r.png"))

	err := engine.Confirm(ctx, txID, m.organizer, ticketing.ActionAccept)
	require.NoError(t, err)

	detail, err := engine.GetTransaction(ctx, txID, m.organizer)
	require.NoError(t, err)
	assert.Equal(t, ticketing.StatusDone, detail.Transaction.Status)

	// Seats stay committed on accept.
	assert.Equal(t, 8, tierQuota(t, store, m.regular.ID))
	assert.Equal(t, 12, eventSeats(t, store, m.event.ID))
}

func TestConfirm_Reject_RestoresInventoryAndPoints(t *testing.T) {
	// GIVEN: A waiting_confirmation transaction that consumed 20000 points
	// WHEN: The organizer rejects it
	// THEN: Balance rises by 20000, usage row removed, quota and seats
	//       restored, status rejected

	engine, store, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()

	_, err := engine.GrantPoints(ctx, m.organizer, m.buyer, 20000, "welcome")
	require.NoError(t, err)

	txID := checkout(t, engine, m, 2, true)
	require.NoError(t, engine.SubmitPaymentProof(ctx, txID, m.buyer, "proofs/r.png"))
	require.Equal(t, ticketing.Money(0), buyerBalance(t, store, m.buyer))

	err = engine.Confirm(ctx, txID, m.organizer, ticketing.ActionReject)
	require.NoError(t, err)

	detail, err := engine.GetTransaction(ctx, txID, m.buyer)
	require.NoError(t, err)
	assert.Equal(t, ticketing.StatusRejected, detail.Transaction.Status)
	assert.Nil(t, detail.PointsUsage, "usage marker must be removed")

	assert.Equal(t, ticketing.Money(20000), buyerBalance(t, store, m.buyer))
	assert.Equal(t, 10, tierQuota(t, store, m.regular.ID))
	assert.Equal(t, 14, eventSeats(t, store, m.event.ID))
}

func TestConfirm_NonOwningOrganizer_Forbidden(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()
	txID := checkout(t, engine, m, 1, false)
	require.NoError(t, engine.SubmitPaymentProof(ctx, txID, m.buyer, "proofs/r.png"))

	_, err := engine.CreateAccount(ctx, "org-2", "Rival Hall", ticketing.RoleOrganizer)
	require.NoError(t, err)

	err = engine.Confirm(ctx, txID, "org-2", ticketing.ActionAccept)
	assert.ErrorIs(t, err, ticketing.ErrForbidden)
}

func TestConfirm_BeforeProof_InvalidState(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	txID := checkout(t, engine, m, 1, false)

	err := engine.Confirm(context.Background(), txID, m.organizer, ticketing.ActionAccept)
	assert.ErrorIs(t, err, ticketing.ErrInvalidState)
}

func TestConfirm_TerminalStatusIsImmutable(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()
	txID := checkout(t, engine, m, 1, false)
	require.NoError(t, engine.SubmitPaymentProof(ctx, txID, m.buyer, "proofs/r.png"))
	require.NoError(t, engine.Confirm(ctx, txID, m.organizer, ticketing.ActionAccept))

	err := engine.Confirm(ctx, txID, m.organizer, ticketing.ActionReject)
	assert.ErrorIs(t, err, ticketing.ErrInvalidState)

	err = engine.SubmitPaymentProof(ctx, txID, m.buyer, "proofs/late.png")
	assert.ErrorIs(t, err, ticketing.ErrInvalidState)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestCheckout_Concurrent_NeverOversells(t *testing.T) {
	// GIVEN: A tier with quota 1
	// WHEN: Two buyers race to check out the last ticket
	// THEN: Exactly one succeeds and quota ends at 0

	engine, store, clock := newTestEngine(t)
	ctx := context.Background()
	_, err := engine.CreateAccount(ctx, "org-1", "Hall", ticketing.RoleOrganizer)
	require.NoError(t, err)
	_, err = engine.CreateAccount(ctx, "buyer-a", "A", ticketing.RoleCustomer)
	require.NoError(t, err)
	_, err = engine.CreateAccount(ctx, "buyer-b", "B", ticketing.RoleCustomer)
	require.NoError(t, err)

	event, err := engine.CreateEvent(ctx, "org-1", ticketing.EventInput{
		Name:      "Last Seat",
		StartDate: clock.Now().Add(24 * time.Hour),
		EndDate:   clock.Now().Add(25 * time.Hour),
		Tiers:     []ticketing.TierSpec{{Name: "Only", Price: 50000, Quota: 1}},
	})
	require.NoError(t, err)

	detail, err := engine.GetEventDetail(ctx, event.ID)
	require.NoError(t, err)
	tierID := detail.Tiers[0].ID

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, buyer := range []ticketing.AccountID{"buyer-a", "buyer-b"} {
		wg.Add(1)
		go func(i int, buyer ticketing.AccountID) {
			defer wg.Done()
			_, errs[i] = engine.Checkout(ctx, ticketing.CheckoutInput{
				BuyerID:  buyer,
				TierID:   tierID,
				Quantity: 1,
			})
		}(i, buyer)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ticketing.ErrInsufficientInventory)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one checkout may win the last seat")
	assert.Equal(t, 0, tierQuota(t, store, tierID))
	assert.Equal(t, 0, eventSeats(t, store, event.ID))
}

// =============================================================================
// POINT GRANTS AND DASHBOARD
// =============================================================================

func TestGrantPoints_OrganizerOnly(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()

	grant, err := engine.GrantPoints(ctx, m.organizer, m.buyer, 10000, "referral bonus")
	require.NoError(t, err)
	assert.Equal(t, ticketing.Money(10000), grant.Amount)
	assert.True(t, grant.Active)
	assert.Equal(t, clock.Now().Add(90*24*time.Hour), grant.ExpiresAt)
	assert.Equal(t, ticketing.Money(10000), buyerBalance(t, store, m.buyer))

	_, err = engine.GrantPoints(ctx, m.buyer, m.buyer, 10000, "self-serve")
	assert.ErrorIs(t, err, ticketing.ErrForbidden)
}

func TestGetPointsSummary_ListsGrants(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()

	_, err := engine.GrantPoints(ctx, m.organizer, m.buyer, 10000, "referral bonus")
	require.NoError(t, err)
	_, err = engine.GrantPoints(ctx, m.organizer, m.buyer, 5000, "apology")
	require.NoError(t, err)

	summary, err := engine.GetPointsSummary(ctx, m.buyer)
	require.NoError(t, err)
	assert.Equal(t, ticketing.Money(15000), summary.Balance)
	assert.Len(t, summary.Grants, 2)
}

func TestOrganizerDashboard_AggregatesDoneTransactions(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	m := seedMarketplace(t, engine, clock)
	ctx := context.Background()

	// One accepted sale of 2 tickets, one rejected sale.
	done := checkout(t, engine, m, 2, false)
	require.NoError(t, engine.SubmitPaymentProof(ctx, done, m.buyer, "proofs/a.png"))
	require.NoError(t, engine.Confirm(ctx, done, m.organizer, ticketing.ActionAccept))

	rejected := checkout(t, engine, m, 1, false)
	require.NoError(t, engine.SubmitPaymentProof(ctx, rejected, m.buyer, "proofs/b.png"))
	require.NoError(t, engine.Confirm(ctx, rejected, m.organizer, ticketing.ActionReject))

	report, err := engine.OrganizerDashboard(ctx, m.organizer)
	require.NoError(t, err)
	require.Len(t, report.Events, 1)

	ev := report.Events[0]
	assert.Equal(t, 2, ev.TicketsSold)
	assert.Equal(t, ticketing.Money(200000), ev.GrossRevenue)
	assert.Equal(t, 1, ev.CountByStatus[ticketing.StatusDone])
	assert.Equal(t, 1, ev.CountByStatus[ticketing.StatusRejected])
	assert.Equal(t, "200000", report.AverageOrderValue.String())

	// A customer may not pull the dashboard.
	_, err = engine.OrganizerDashboard(ctx, m.buyer)
	assert.ErrorIs(t, err, ticketing.ErrForbidden)
}

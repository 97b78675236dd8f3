/*
engine.go - Transaction state machine

PURPOSE:
  The Engine drives every checkout attempt through its lifecycle:

    waiting_payment -> waiting_confirmation -> done | rejected
    waiting_payment -> expired   (expiry sweep, sweep.go)
    waiting_confirmation -> canceled (expiry sweep, sweep.go)

  It composes the promotion filter, the inventory ledger, the point ledger
  and the rollback compensator, and is the only component that creates or
  transitions Transaction rows.

ATOMICITY:
  Each operation that touches more than one counter runs inside a single
  Store.WithTx unit: checkout (transaction row + quota + seats + points +
  usage marker) and reject (rollback + status). Readers concurrent with a
  commit see either the full pre-state or the full post-state.

NUMERIC POLICY:
  All monetary and point values are non-negative integers. Redemption is
  one currency unit per point, capped at both the buyer's balance and the
  order subtotal, so the final price can never go negative.

SEE ALSO:
  - rollback.go: Compensation shared with the expiry sweep
  - sweep.go: Deadline-driven terminal transitions
*/
package ticketing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultGrantTTLDays is how long awarded points stay active when the
// caller does not specify otherwise.
const DefaultGrantTTLDays = 90

// Engine owns the transaction lifecycle and all ledger mutations.
type Engine struct {
	store    TxStore
	clock    Clock
	logger   *logrus.Logger
	notifier Notifier

	compensator  Compensator
	grantTTLDays int
}

// EngineOption customizes Engine construction.
type EngineOption func(*Engine)

// WithClock injects a clock (tests use a fake one).
func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithNotifier injects the outbound notification capability.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

// WithGrantTTLDays overrides the default point-grant lifetime.
func WithGrantTTLDays(days int) EngineOption {
	return func(e *Engine) { e.grantTTLDays = days }
}

// NewEngine creates an engine over the given store.
func NewEngine(store TxStore, logger *logrus.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:        store,
		clock:        SystemClock{},
		logger:       logger,
		grantTTLDays: DefaultGrantTTLDays,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = &LogNotifier{Logger: logger}
	}
	return e
}

// =============================================================================
// CHECKOUT - Create a transaction and reserve inventory
// =============================================================================

// Checkout reserves qty tickets on a tier for the buyer, optionally
// redeeming loyalty points against the subtotal. On success the transaction
// starts in waiting_payment with its inventory and points committed; on any
// failure nothing persists.
func (e *Engine) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	now := e.clock.Now()
	var result CheckoutResult

	err := e.store.WithTx(ctx, func(s Store) error {
		tier, err := s.GetTier(ctx, in.TierID)
		if err != nil {
			return err
		}
		if tier == nil {
			return fmt.Errorf("ticket tier %s: %w", in.TierID, ErrNotFound)
		}

		event, err := s.GetEvent(ctx, tier.EventID)
		if err != nil {
			return err
		}
		if event == nil {
			return fmt.Errorf("event %s: %w", tier.EventID, ErrNotFound)
		}

		buyer, err := s.GetAccount(ctx, in.BuyerID)
		if err != nil {
			return err
		}
		if buyer == nil {
			return fmt.Errorf("account %s: %w", in.BuyerID, ErrNotFound)
		}

		if err := NewPromotionFilter(s).CheckEligibility(ctx, event, tier, now); err != nil {
			return err
		}

		// Early quota check so the caller learns the remaining count even
		// before the guarded decrement runs.
		if tier.Quota < in.Quantity {
			return &InsufficientInventoryError{
				TierID:    tier.ID,
				Requested: in.Quantity,
				Remaining: tier.Quota,
			}
		}

		rawTotal := tier.Price * Money(in.Quantity)
		var pointsUsed Money
		if in.UsePoints && buyer.Points > 0 {
			pointsUsed, err = NewPointLedger(s, e.clock).Consume(ctx, in.BuyerID, rawTotal)
			if err != nil {
				return err
			}
		}
		finalPrice := rawTotal - pointsUsed

		txn := Transaction{
			ID:         TransactionID(uuid.NewString()),
			BuyerID:    in.BuyerID,
			EventID:    event.ID,
			TierID:     tier.ID,
			Quantity:   in.Quantity,
			TotalPrice: finalPrice,
			Status:     StatusWaitingPayment,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.CreateTransaction(ctx, txn); err != nil {
			return err
		}

		if pointsUsed > 0 {
			if err := s.CreatePointsUsage(ctx, PointsUsage{
				TransactionID: txn.ID,
				UsedPoints:    pointsUsed,
				OffsetAmount:  pointsUsed,
			}); err != nil {
				return err
			}
		}

		if err := NewInventoryLedger(s).Reserve(ctx, tier.ID, in.Quantity); err != nil {
			return err
		}

		result = CheckoutResult{
			TransactionID: txn.ID,
			FinalPrice:    finalPrice,
			PointsUsed:    pointsUsed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"transaction_id": result.TransactionID,
		"tier_id":        in.TierID,
		"quantity":       in.Quantity,
		"final_price":    result.FinalPrice,
		"points_used":    result.PointsUsed,
	}).Info("checkout reserved")

	return &result, nil
}

// =============================================================================
// SUBMIT PAYMENT PROOF - waiting_payment -> waiting_confirmation
// =============================================================================

// SubmitPaymentProof stores the proof reference and advances the
// transaction to waiting_confirmation. Only the transaction's buyer may
// submit; the proof reference is stored verbatim.
func (e *Engine) SubmitPaymentProof(ctx context.Context, txID TransactionID, buyerID AccountID, proofRef string) error {
	if proofRef == "" {
		return fmt.Errorf("%w: payment proof reference required", ErrInvalidInput)
	}

	txn, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("transaction %s: %w", txID, ErrNotFound)
	}
	if txn.BuyerID != buyerID {
		return fmt.Errorf("transaction %s does not belong to %s: %w", txID, buyerID, ErrForbidden)
	}
	if txn.Status != StatusWaitingPayment {
		return &InvalidStateError{TransactionID: txID, Current: txn.Status, Expected: StatusWaitingPayment}
	}

	ok, err := e.store.SetPaymentProof(ctx, txID, proofRef,
		StatusWaitingPayment, StatusWaitingConfirmation, e.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		// Lost a race with the sweep or a duplicate submit.
		current, err := e.store.GetTransaction(ctx, txID)
		if err != nil || current == nil {
			return &InvalidStateError{TransactionID: txID, Current: "unknown", Expected: StatusWaitingPayment}
		}
		return &InvalidStateError{TransactionID: txID, Current: current.Status, Expected: StatusWaitingPayment}
	}

	e.logger.WithField("transaction_id", txID).Info("payment proof submitted")
	return nil
}

// =============================================================================
// CONFIRM - waiting_confirmation -> done | rejected
// =============================================================================

// Confirm resolves a waiting_confirmation transaction. Only the organizer
// who owns the transaction's event may confirm. Accept keeps the sale:
// seats stay committed. Reject rolls back inventory and points and moves
// the transaction to rejected, all in one atomic unit.
func (e *Engine) Confirm(ctx context.Context, txID TransactionID, organizerID AccountID, action ConfirmAction) error {
	if action != ActionAccept && action != ActionReject {
		return fmt.Errorf("%w: action must be accept or reject", ErrInvalidInput)
	}

	txn, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("transaction %s: %w", txID, ErrNotFound)
	}

	event, err := e.store.GetEvent(ctx, txn.EventID)
	if err != nil {
		return err
	}
	if event == nil {
		return fmt.Errorf("event %s: %w", txn.EventID, ErrNotFound)
	}
	if event.OrganizerID != organizerID {
		return fmt.Errorf("event %s is not owned by %s: %w", event.ID, organizerID, ErrForbidden)
	}
	if txn.Status != StatusWaitingConfirmation {
		return &InvalidStateError{TransactionID: txID, Current: txn.Status, Expected: StatusWaitingConfirmation}
	}

	now := e.clock.Now()
	target := StatusDone
	if action == ActionReject {
		target = StatusRejected
	}

	err = e.store.WithTx(ctx, func(s Store) error {
		if action == ActionReject {
			if err := e.compensator.Rollback(ctx, s, txID); err != nil {
				return err
			}
		}
		ok, err := s.UpdateTransactionStatus(ctx, txID, StatusWaitingConfirmation, target, now)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidStateError{TransactionID: txID, Current: "changed concurrently", Expected: StatusWaitingConfirmation}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"transaction_id": txID,
		"status":         target,
	}).Info("transaction confirmed")

	// Best-effort notification; never blocks the transition.
	go e.notifier.Notify(context.WithoutCancel(ctx), txn.BuyerID,
		fmt.Sprintf("Transaction %s", target),
		fmt.Sprintf("Your order for event %q is now %s.", event.Name, target))

	return nil
}

// =============================================================================
// POINT GRANTS
// =============================================================================

// GrantPoints awards points to an account. Only organizers may grant.
// The grant expires after the engine's configured TTL.
func (e *Engine) GrantPoints(ctx context.Context, actorID, targetID AccountID, amount Money, reason string) (*PointGrant, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: grant amount must be positive", ErrInvalidInput)
	}

	actor, err := e.store.GetAccount(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, fmt.Errorf("account %s: %w", actorID, ErrNotFound)
	}
	if actor.Role != RoleOrganizer {
		return nil, fmt.Errorf("account %s is not an organizer: %w", actorID, ErrForbidden)
	}

	var grant *PointGrant
	err = e.store.WithTx(ctx, func(s Store) error {
		grant, err = NewPointLedger(s, e.clock).Grant(ctx, targetID, amount, reason, e.grantTTLDays)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"account_id": targetID,
		"amount":     amount,
		"grant_id":   grant.ID,
	}).Info("points granted")

	return grant, nil
}

// =============================================================================
// EVENT CATALOG
// =============================================================================

// CreateEvent creates an event together with its ticket tiers. The nominal
// price is the cheapest tier price and availableSeats starts as the sum of
// tier quotas. Only organizers may create events.
func (e *Engine) CreateEvent(ctx context.Context, organizerID AccountID, in EventInput) (*Event, error) {
	if in.Name == "" || len(in.Tiers) == 0 {
		return nil, fmt.Errorf("%w: event name and at least one tier required", ErrInvalidInput)
	}
	if !in.EndDate.After(in.StartDate) {
		return nil, fmt.Errorf("%w: event end must be after start", ErrInvalidInput)
	}

	organizer, err := e.store.GetAccount(ctx, organizerID)
	if err != nil {
		return nil, err
	}
	if organizer == nil {
		return nil, fmt.Errorf("account %s: %w", organizerID, ErrNotFound)
	}
	if organizer.Role != RoleOrganizer {
		return nil, fmt.Errorf("account %s is not an organizer: %w", organizerID, ErrForbidden)
	}

	totalSeats := 0
	nominal := Money(0)
	for i, t := range in.Tiers {
		if t.Quota < 0 || t.Price < 0 || t.Name == "" {
			return nil, fmt.Errorf("%w: tier %d is malformed", ErrInvalidInput, i)
		}
		totalSeats += t.Quota
		if i == 0 || t.Price < nominal {
			nominal = t.Price
		}
	}

	now := e.clock.Now()
	event := Event{
		ID:             EventID(uuid.NewString()),
		OrganizerID:    organizerID,
		Name:           in.Name,
		Description:    in.Description,
		Category:       in.Category,
		Location:       in.Location,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		NominalPrice:   nominal,
		AvailableSeats: totalSeats,
		CreatedAt:      now,
	}

	tiers := make([]TicketTier, len(in.Tiers))
	for i, t := range in.Tiers {
		tiers[i] = TicketTier{
			ID:      TierID(uuid.NewString()),
			EventID: event.ID,
			Name:    t.Name,
			Price:   t.Price,
			Quota:   t.Quota,
		}
	}

	if err := e.store.CreateEvent(ctx, event, tiers); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"event_id": event.ID,
		"tiers":    len(tiers),
		"seats":    totalSeats,
	}).Info("event created")

	return &event, nil
}

// AddTiers appends new ticket tiers to an event the organizer owns and
// raises availableSeats by the added quotas, as one unit. The nominal price
// is not recomputed: tiers priced below it are how an organizer offers a
// real discount while a promotion window is open.
func (e *Engine) AddTiers(ctx context.Context, organizerID AccountID, eventID EventID, specs []TierSpec) ([]TicketTier, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: at least one tier required", ErrInvalidInput)
	}
	for i, t := range specs {
		if t.Quota < 0 || t.Price < 0 || t.Name == "" {
			return nil, fmt.Errorf("%w: tier %d is malformed", ErrInvalidInput, i)
		}
	}

	var tiers []TicketTier
	err := e.store.WithTx(ctx, func(s Store) error {
		event, err := s.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event == nil {
			return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
		}
		if event.OrganizerID != organizerID {
			return fmt.Errorf("event %s is not owned by %s: %w", eventID, organizerID, ErrForbidden)
		}

		addedSeats := 0
		tiers = make([]TicketTier, len(specs))
		for i, t := range specs {
			tiers[i] = TicketTier{
				ID:      TierID(uuid.NewString()),
				EventID: eventID,
				Name:    t.Name,
				Price:   t.Price,
				Quota:   t.Quota,
			}
			if err := s.CreateTier(ctx, tiers[i]); err != nil {
				return err
			}
			addedSeats += t.Quota
		}
		return s.IncrementEventSeats(ctx, eventID, addedSeats)
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"event_id": eventID,
		"tiers":    len(tiers),
	}).Info("tiers added to event")

	return tiers, nil
}

// CreatePromotion opens a promotion window on an event the organizer owns.
func (e *Engine) CreatePromotion(ctx context.Context, organizerID AccountID, eventID EventID, title string, start, end time.Time) (*Promotion, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: promotion title required", ErrInvalidInput)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: promotion end must be after start", ErrInvalidInput)
	}

	event, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if event.OrganizerID != organizerID {
		return nil, fmt.Errorf("event %s is not owned by %s: %w", eventID, organizerID, ErrForbidden)
	}

	promo := Promotion{
		ID:        PromotionID(uuid.NewString()),
		EventID:   eventID,
		Title:     title,
		StartDate: start,
		EndDate:   end,
	}
	if err := e.store.CreatePromotion(ctx, promo); err != nil {
		return nil, err
	}
	return &promo, nil
}

// EventDetail is an event with its tiers and currently-active promotions.
type EventDetail struct {
	Event      Event
	Tiers      []TicketTier
	Promotions []Promotion
}

// GetEventDetail returns the event with tiers and active promotions.
func (e *Engine) GetEventDetail(ctx context.Context, id EventID) (*EventDetail, error) {
	event, err := e.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}

	tiers, err := e.store.ListTiers(ctx, id)
	if err != nil {
		return nil, err
	}
	promos, err := e.store.ActivePromotions(ctx, id, e.clock.Now())
	if err != nil {
		return nil, err
	}
	return &EventDetail{Event: *event, Tiers: tiers, Promotions: promos}, nil
}

// ListEvents returns upcoming events matching the filter, each with tiers
// and active promotions for catalog rendering.
func (e *Engine) ListEvents(ctx context.Context, f EventListFilter) ([]EventDetail, error) {
	now := e.clock.Now()
	events, err := e.store.ListEvents(ctx, f, now)
	if err != nil {
		return nil, err
	}

	details := make([]EventDetail, 0, len(events))
	for _, ev := range events {
		tiers, err := e.store.ListTiers(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		promos, err := e.store.ActivePromotions(ctx, ev.ID, now)
		if err != nil {
			return nil, err
		}
		details = append(details, EventDetail{Event: ev, Tiers: tiers, Promotions: promos})
	}
	return details, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// TransactionDetail is a transaction with its points usage, if any.
type TransactionDetail struct {
	Transaction Transaction
	PointsUsage *PointsUsage
}

// ListTransactions returns the buyer's transactions, newest first.
func (e *Engine) ListTransactions(ctx context.Context, buyerID AccountID) ([]TransactionDetail, error) {
	txns, err := e.store.ListTransactionsByBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	details := make([]TransactionDetail, 0, len(txns))
	for _, txn := range txns {
		usage, err := e.store.GetPointsUsage(ctx, txn.ID)
		if err != nil {
			return nil, err
		}
		details = append(details, TransactionDetail{Transaction: txn, PointsUsage: usage})
	}
	return details, nil
}

// GetTransaction returns one transaction. Visible to its buyer and to the
// organizer of its event; anyone else gets Forbidden.
func (e *Engine) GetTransaction(ctx context.Context, txID TransactionID, actorID AccountID) (*TransactionDetail, error) {
	txn, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, fmt.Errorf("transaction %s: %w", txID, ErrNotFound)
	}

	if txn.BuyerID != actorID {
		event, err := e.store.GetEvent(ctx, txn.EventID)
		if err != nil {
			return nil, err
		}
		if event == nil || event.OrganizerID != actorID {
			return nil, fmt.Errorf("transaction %s: %w", txID, ErrForbidden)
		}
	}

	usage, err := e.store.GetPointsUsage(ctx, txID)
	if err != nil {
		return nil, err
	}
	return &TransactionDetail{Transaction: *txn, PointsUsage: usage}, nil
}

// PointsSummary is an account's balance with its grant history.
type PointsSummary struct {
	AccountID AccountID
	Balance   Money
	Grants    []PointGrant
}

// GetPointsSummary returns the balance and grant history for an account.
func (e *Engine) GetPointsSummary(ctx context.Context, accountID AccountID) (*PointsSummary, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	grants, err := e.store.ListPointGrants(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &PointsSummary{AccountID: accountID, Balance: acct.Points, Grants: grants}, nil
}

// CreateAccount registers a principal record. Credentials and sessions are
// handled outside this system; this exists so the engine is operable.
func (e *Engine) CreateAccount(ctx context.Context, id AccountID, name string, role Role) (*Account, error) {
	if id == "" || (role != RoleCustomer && role != RoleOrganizer) {
		return nil, fmt.Errorf("%w: account id and a valid role required", ErrInvalidInput)
	}
	acct := Account{
		ID:        id,
		Name:      name,
		Role:      role,
		Points:    0,
		CreatedAt: e.clock.Now(),
	}
	if err := e.store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

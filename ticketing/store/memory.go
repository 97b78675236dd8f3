// Package store provides the in-memory Store implementation (for testing/dev).
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gatehall/ticketing-engine/ticketing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation of ticketing.TxStore
// =============================================================================

// Memory holds every entity in maps guarded by one RWMutex. Conditional
// writes follow the same contract as the SQLite store: false with a nil
// error means the guard did not hold and nothing was mutated.
type Memory struct {
	mu           sync.RWMutex
	accounts     map[ticketing.AccountID]ticketing.Account
	events       map[ticketing.EventID]ticketing.Event
	tiers        map[ticketing.TierID]ticketing.TicketTier
	promotions   map[ticketing.PromotionID]ticketing.Promotion
	transactions map[ticketing.TransactionID]ticketing.Transaction
	usage        map[ticketing.TransactionID]ticketing.PointsUsage
	grants       map[ticketing.GrantID]ticketing.PointGrant
}

func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[ticketing.AccountID]ticketing.Account),
		events:       make(map[ticketing.EventID]ticketing.Event),
		tiers:        make(map[ticketing.TierID]ticketing.TicketTier),
		promotions:   make(map[ticketing.PromotionID]ticketing.Promotion),
		transactions: make(map[ticketing.TransactionID]ticketing.Transaction),
		usage:        make(map[ticketing.TransactionID]ticketing.PointsUsage),
		grants:       make(map[ticketing.GrantID]ticketing.PointGrant),
	}
}

// view is the lock-free implementation all public methods delegate to.
// WithTx hands it out directly while holding the write lock.
type view struct {
	m *Memory
}

// =============================================================================
// LOCKED WRAPPERS (ticketing.TxStore interface)
// =============================================================================

func (m *Memory) CreateAccount(ctx context.Context, a ticketing.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.CreateAccount(ctx, a)
}

func (m *Memory) GetAccount(ctx context.Context, id ticketing.AccountID) (*ticketing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.GetAccount(ctx, id)
}

func (m *Memory) AddPoints(ctx context.Context, id ticketing.AccountID, amount ticketing.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.AddPoints(ctx, id, amount)
}

func (m *Memory) DeductPoints(ctx context.Context, id ticketing.AccountID, amount ticketing.Money) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.DeductPoints(ctx, id, amount)
}

func (m *Memory) CreateEvent(ctx context.Context, e ticketing.Event, tiers []ticketing.TicketTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.CreateEvent(ctx, e, tiers)
}

func (m *Memory) GetEvent(ctx context.Context, id ticketing.EventID) (*ticketing.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.GetEvent(ctx, id)
}

func (m *Memory) ListEvents(ctx context.Context, f ticketing.EventListFilter, now time.Time) ([]ticketing.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.ListEvents(ctx, f, now)
}

func (m *Memory) CreateTier(ctx context.Context, t ticketing.TicketTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.CreateTier(ctx, t)
}

func (m *Memory) GetTier(ctx context.Context, id ticketing.TierID) (*ticketing.TicketTier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.GetTier(ctx, id)
}

func (m *Memory) ListTiers(ctx context.Context, eventID ticketing.EventID) ([]ticketing.TicketTier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.ListTiers(ctx, eventID)
}

func (m *Memory) DecrementTierQuota(ctx context.Context, id ticketing.TierID, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.DecrementTierQuota(ctx, id, qty)
}

func (m *Memory) IncrementTierQuota(ctx context.Context, id ticketing.TierID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.IncrementTierQuota(ctx, id, qty)
}

func (m *Memory) DecrementEventSeats(ctx context.Context, id ticketing.EventID, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.DecrementEventSeats(ctx, id, qty)
}

func (m *Memory) IncrementEventSeats(ctx context.Context, id ticketing.EventID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.IncrementEventSeats(ctx, id, qty)
}

func (m *Memory) CreatePromotion(ctx context.Context, p ticketing.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.CreatePromotion(ctx, p)
}

func (m *Memory) ActivePromotions(ctx context.Context, eventID ticketing.EventID, at time.Time) ([]ticketing.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.ActivePromotions(ctx, eventID, at)
}

func (m *Memory) CreateTransaction(ctx context.Context, t ticketing.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.CreateTransaction(ctx, t)
}

func (m *Memory) GetTransaction(ctx context.Context, id ticketing.TransactionID) (*ticketing.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.GetTransaction(ctx, id)
}

func (m *Memory) UpdateTransactionStatus(ctx context.Context, id ticketing.TransactionID, from, to ticketing.TransactionStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.UpdateTransactionStatus(ctx, id, from, to, at)
}

func (m *Memory) SetPaymentProof(ctx context.Context, id ticketing.TransactionID, proofRef string, from, to ticketing.TransactionStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.SetPaymentProof(ctx, id, proofRef, from, to, at)
}

func (m *Memory) ListTransactionsByBuyer(ctx context.Context, buyerID ticketing.AccountID) ([]ticketing.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.ListTransactionsByBuyer(ctx, buyerID)
}

func (m *Memory) ListTransactionsByOrganizer(ctx context.Context, organizerID ticketing.AccountID) ([]ticketing.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.ListTransactionsByOrganizer(ctx, organizerID)
}

func (m *Memory) ListOverdue(ctx context.Context, status ticketing.TransactionStatus, cutoff time.Time) ([]ticketing.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.ListOverdue(ctx, status, cutoff)
}

func (m *Memory) CreatePointsUsage(ctx context.Context, u ticketing.PointsUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.CreatePointsUsage(ctx, u)
}

func (m *Memory) GetPointsUsage(ctx context.Context, txID ticketing.TransactionID) (*ticketing.PointsUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.GetPointsUsage(ctx, txID)
}

func (m *Memory) DeletePointsUsage(ctx context.Context, txID ticketing.TransactionID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.DeletePointsUsage(ctx, txID)
}

func (m *Memory) CreatePointGrant(ctx context.Context, g ticketing.PointGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.CreatePointGrant(ctx, g)
}

func (m *Memory) ListPointGrants(ctx context.Context, accountID ticketing.AccountID) ([]ticketing.PointGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m}.ListPointGrants(ctx, accountID)
}

func (m *Memory) DeactivateExpiredGrants(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m}.DeactivateExpiredGrants(ctx, now)
}

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ticketing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(view{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// =============================================================================
// SNAPSHOT / RESTORE
// =============================================================================

type memorySnapshot struct {
	accounts     map[ticketing.AccountID]ticketing.Account
	events       map[ticketing.EventID]ticketing.Event
	tiers        map[ticketing.TierID]ticketing.TicketTier
	promotions   map[ticketing.PromotionID]ticketing.Promotion
	transactions map[ticketing.TransactionID]ticketing.Transaction
	usage        map[ticketing.TransactionID]ticketing.PointsUsage
	grants       map[ticketing.GrantID]ticketing.PointGrant
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		accounts:     copyMap(m.accounts),
		events:       copyMap(m.events),
		tiers:        copyMap(m.tiers),
		promotions:   copyMap(m.promotions),
		transactions: copyMap(m.transactions),
		usage:        copyMap(m.usage),
		grants:       copyMap(m.grants),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.accounts = s.accounts
	m.events = s.events
	m.tiers = s.tiers
	m.promotions = s.promotions
	m.transactions = s.transactions
	m.usage = s.usage
	m.grants = s.grants
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// =============================================================================
// VIEW - Lock-free Store implementation
// =============================================================================

// --- Accounts ---

func (v view) CreateAccount(_ context.Context, a ticketing.Account) error {
	if _, ok := v.m.accounts[a.ID]; ok {
		return fmt.Errorf("account %s already exists", a.ID)
	}
	v.m.accounts[a.ID] = a
	return nil
}

func (v view) GetAccount(_ context.Context, id ticketing.AccountID) (*ticketing.Account, error) {
	a, ok := v.m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (v view) AddPoints(_ context.Context, id ticketing.AccountID, amount ticketing.Money) error {
	a, ok := v.m.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, ticketing.ErrNotFound)
	}
	a.Points += amount
	v.m.accounts[id] = a
	return nil
}

func (v view) DeductPoints(_ context.Context, id ticketing.AccountID, amount ticketing.Money) (bool, error) {
	a, ok := v.m.accounts[id]
	if !ok || a.Points < amount {
		return false, nil
	}
	a.Points -= amount
	v.m.accounts[id] = a
	return true, nil
}

// --- Events and tiers ---

func (v view) CreateEvent(_ context.Context, e ticketing.Event, tiers []ticketing.TicketTier) error {
	if _, ok := v.m.events[e.ID]; ok {
		return fmt.Errorf("event %s already exists", e.ID)
	}
	v.m.events[e.ID] = e
	for _, t := range tiers {
		v.m.tiers[t.ID] = t
	}
	return nil
}

func (v view) GetEvent(_ context.Context, id ticketing.EventID) (*ticketing.Event, error) {
	e, ok := v.m.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (v view) ListEvents(_ context.Context, f ticketing.EventListFilter, now time.Time) ([]ticketing.Event, error) {
	var events []ticketing.Event
	for _, e := range v.m.events {
		if !e.EndDate.After(now) {
			continue
		}
		if f.Query != "" &&
			!strings.Contains(strings.ToLower(e.Name), strings.ToLower(f.Query)) &&
			!strings.Contains(strings.ToLower(e.Description), strings.ToLower(f.Query)) {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Location != "" && e.Location != f.Location {
			continue
		}
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].StartDate.Before(events[j].StartDate)
	})
	return events, nil
}

func (v view) CreateTier(_ context.Context, t ticketing.TicketTier) error {
	if _, ok := v.m.events[t.EventID]; !ok {
		return fmt.Errorf("event %s: %w", t.EventID, ticketing.ErrNotFound)
	}
	if _, ok := v.m.tiers[t.ID]; ok {
		return fmt.Errorf("tier %s already exists", t.ID)
	}
	v.m.tiers[t.ID] = t
	return nil
}

func (v view) GetTier(_ context.Context, id ticketing.TierID) (*ticketing.TicketTier, error) {
	t, ok := v.m.tiers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (v view) ListTiers(_ context.Context, eventID ticketing.EventID) ([]ticketing.TicketTier, error) {
	var tiers []ticketing.TicketTier
	for _, t := range v.m.tiers {
		if t.EventID == eventID {
			tiers = append(tiers, t)
		}
	}
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].Price < tiers[j].Price
	})
	return tiers, nil
}

func (v view) DecrementTierQuota(_ context.Context, id ticketing.TierID, qty int) (bool, error) {
	t, ok := v.m.tiers[id]
	if !ok || t.Quota < qty {
		return false, nil
	}
	t.Quota -= qty
	v.m.tiers[id] = t
	return true, nil
}

func (v view) IncrementTierQuota(_ context.Context, id ticketing.TierID, qty int) error {
	t, ok := v.m.tiers[id]
	if !ok {
		return fmt.Errorf("tier %s: %w", id, ticketing.ErrNotFound)
	}
	t.Quota += qty
	v.m.tiers[id] = t
	return nil
}

func (v view) DecrementEventSeats(_ context.Context, id ticketing.EventID, qty int) (bool, error) {
	e, ok := v.m.events[id]
	if !ok || e.AvailableSeats < qty {
		return false, nil
	}
	e.AvailableSeats -= qty
	v.m.events[id] = e
	return true, nil
}

func (v view) IncrementEventSeats(_ context.Context, id ticketing.EventID, qty int) error {
	e, ok := v.m.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, ticketing.ErrNotFound)
	}
	e.AvailableSeats += qty
	v.m.events[id] = e
	return nil
}

// --- Promotions ---

func (v view) CreatePromotion(_ context.Context, p ticketing.Promotion) error {
	if _, ok := v.m.promotions[p.ID]; ok {
		return fmt.Errorf("promotion %s already exists", p.ID)
	}
	v.m.promotions[p.ID] = p
	return nil
}

func (v view) ActivePromotions(_ context.Context, eventID ticketing.EventID, at time.Time) ([]ticketing.Promotion, error) {
	var promos []ticketing.Promotion
	for _, p := range v.m.promotions {
		if p.EventID == eventID && !at.Before(p.StartDate) && !at.After(p.EndDate) {
			promos = append(promos, p)
		}
	}
	return promos, nil
}

// --- Transactions ---

func (v view) CreateTransaction(_ context.Context, t ticketing.Transaction) error {
	if _, ok := v.m.transactions[t.ID]; ok {
		return fmt.Errorf("transaction %s already exists", t.ID)
	}
	v.m.transactions[t.ID] = t
	return nil
}

func (v view) GetTransaction(_ context.Context, id ticketing.TransactionID) (*ticketing.Transaction, error) {
	t, ok := v.m.transactions[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (v view) UpdateTransactionStatus(_ context.Context, id ticketing.TransactionID, from, to ticketing.TransactionStatus, at time.Time) (bool, error) {
	t, ok := v.m.transactions[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = at
	v.m.transactions[id] = t
	return true, nil
}

func (v view) SetPaymentProof(_ context.Context, id ticketing.TransactionID, proofRef string, from, to ticketing.TransactionStatus, at time.Time) (bool, error) {
	t, ok := v.m.transactions[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.PaymentProof = proofRef
	t.UpdatedAt = at
	v.m.transactions[id] = t
	return true, nil
}

func (v view) ListTransactionsByBuyer(_ context.Context, buyerID ticketing.AccountID) ([]ticketing.Transaction, error) {
	var txns []ticketing.Transaction
	for _, t := range v.m.transactions {
		if t.BuyerID == buyerID {
			txns = append(txns, t)
		}
	}
	sortNewestFirst(txns)
	return txns, nil
}

func (v view) ListTransactionsByOrganizer(_ context.Context, organizerID ticketing.AccountID) ([]ticketing.Transaction, error) {
	var txns []ticketing.Transaction
	for _, t := range v.m.transactions {
		if e, ok := v.m.events[t.EventID]; ok && e.OrganizerID == organizerID {
			txns = append(txns, t)
		}
	}
	sortNewestFirst(txns)
	return txns, nil
}

func (v view) ListOverdue(_ context.Context, status ticketing.TransactionStatus, cutoff time.Time) ([]ticketing.Transaction, error) {
	var txns []ticketing.Transaction
	for _, t := range v.m.transactions {
		if t.Status == status && !t.CreatedAt.After(cutoff) {
			txns = append(txns, t)
		}
	}
	sort.Slice(txns, func(i, j int) bool {
		return txns[i].CreatedAt.Before(txns[j].CreatedAt)
	})
	return txns, nil
}

func sortNewestFirst(txns []ticketing.Transaction) {
	sort.Slice(txns, func(i, j int) bool {
		return txns[i].CreatedAt.After(txns[j].CreatedAt)
	})
}

// --- Points usage ---

func (v view) CreatePointsUsage(_ context.Context, u ticketing.PointsUsage) error {
	if _, ok := v.m.usage[u.TransactionID]; ok {
		return fmt.Errorf("points usage for %s already exists", u.TransactionID)
	}
	v.m.usage[u.TransactionID] = u
	return nil
}

func (v view) GetPointsUsage(_ context.Context, txID ticketing.TransactionID) (*ticketing.PointsUsage, error) {
	u, ok := v.m.usage[txID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (v view) DeletePointsUsage(_ context.Context, txID ticketing.TransactionID) (bool, error) {
	if _, ok := v.m.usage[txID]; !ok {
		return false, nil
	}
	delete(v.m.usage, txID)
	return true, nil
}

// --- Point grants ---

func (v view) CreatePointGrant(_ context.Context, g ticketing.PointGrant) error {
	if _, ok := v.m.grants[g.ID]; ok {
		return fmt.Errorf("grant %s already exists", g.ID)
	}
	v.m.grants[g.ID] = g
	return nil
}

func (v view) ListPointGrants(_ context.Context, accountID ticketing.AccountID) ([]ticketing.PointGrant, error) {
	var grants []ticketing.PointGrant
	for _, g := range v.m.grants {
		if g.AccountID == accountID {
			grants = append(grants, g)
		}
	}
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].CreatedAt.After(grants[j].CreatedAt)
	})
	return grants, nil
}

func (v view) DeactivateExpiredGrants(_ context.Context, now time.Time) (int, error) {
	n := 0
	for id, g := range v.m.grants {
		if g.Active && !g.ExpiresAt.After(now) {
			g.Active = false
			v.m.grants[id] = g
			n++
		}
	}
	return n, nil
}

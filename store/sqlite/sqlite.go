/*
Package sqlite provides the SQLite-backed implementation of the ticketing
storage interface.

PURPOSE:
  Implements ticketing.Store and ticketing.TxStore using database/sql over
  mattn/go-sqlite3. In production, the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

CONDITIONAL WRITES:
  The oversell and negative-balance guards are single guarded UPDATEs:

    UPDATE ticket_tiers SET quota = quota - ? WHERE id = ? AND quota >= ?

  The affected-row count tells the caller whether the guard held. There is
  no read-then-write window, so concurrent reservations cannot both pass a
  quota they jointly exceed. CHECK constraints back the guards: a write
  that would drive a counter negative fails at the database even if a code
  path bypasses the conditional form.

ATOMIC UNITS:
  WithTx wraps a function in BEGIN/COMMIT. The transaction-scoped store it
  passes to the function runs every statement on the same *sql.Tx, so a
  checkout's transaction row, quota decrement, seat decrement, point
  deduction and usage marker commit together or not at all.

KEY TABLES:
  accounts:      Buyers and organizers, with the live point balance
  events:        Catalog entries with the aggregate seat counter
  ticket_tiers:  Per-tier price and remaining quota
  promotions:    Time-windowed promotion records
  transactions:  Purchase lifecycle rows
  points_usage:  Redemption marker, one row per transaction at most
  point_grants:  Audit trail of point awards with expiry

INDEXES:
  - idx_transactions_status_created: Expiry sweep (hot path)
  - idx_transactions_buyer:          Buyer history listing
  - idx_grants_active_expiry:        Grant expiry sweep

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite is opened in WAL mode so
  readers don't block. In production with PostgreSQL, database-level
  concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/ticketing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ticketing.NewEngine(store, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ticketing/store.go: Interface definitions
  - ticketing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gatehall/ticketing-engine/ticketing"
)

// Store implements ticketing.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps the in-memory database coherent and the
	// write path serialized under the package-level mutex.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		organizer_id TEXT NOT NULL REFERENCES accounts(id),
		name TEXT NOT NULL,
		description TEXT,
		category TEXT,
		location TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		nominal_price INTEGER NOT NULL,
		available_seats INTEGER NOT NULL CHECK (available_seats >= 0),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_organizer ON events(organizer_id);
	CREATE INDEX IF NOT EXISTS idx_events_end_date ON events(end_date);

	CREATE TABLE IF NOT EXISTS ticket_tiers (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id),
		name TEXT NOT NULL,
		price INTEGER NOT NULL,
		quota INTEGER NOT NULL CHECK (quota >= 0)
	);

	CREATE INDEX IF NOT EXISTS idx_tiers_event ON ticket_tiers(event_id);

	CREATE TABLE IF NOT EXISTS promotions (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id),
		title TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_promotions_event_window
		ON promotions(event_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL REFERENCES accounts(id),
		event_id TEXT NOT NULL REFERENCES events(id),
		tier_id TEXT NOT NULL REFERENCES ticket_tiers(id),
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		total_price INTEGER NOT NULL CHECK (total_price >= 0),
		status TEXT NOT NULL,
		payment_proof TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_status_created
		ON transactions(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_buyer
		ON transactions(buyer_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_event
		ON transactions(event_id);

	CREATE TABLE IF NOT EXISTS points_usage (
		transaction_id TEXT PRIMARY KEY REFERENCES transactions(id),
		used_points INTEGER NOT NULL CHECK (used_points > 0),
		offset_amount INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS point_grants (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount INTEGER NOT NULL CHECK (amount > 0),
		reason TEXT,
		expires_at TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		transaction_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_grants_account ON point_grants(account_id);
	CREATE INDEX IF NOT EXISTS idx_grants_active_expiry
		ON point_grants(active, expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKED WRAPPERS (ticketing.TxStore interface)
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, a ticketing.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreateAccount(ctx, a)
}

func (s *Store) GetAccount(ctx context.Context, id ticketing.AccountID) (*ticketing.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetAccount(ctx, id)
}

func (s *Store) AddPoints(ctx context.Context, id ticketing.AccountID, amount ticketing.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.AddPoints(ctx, id, amount)
}

func (s *Store) DeductPoints(ctx context.Context, id ticketing.AccountID, amount ticketing.Money) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeductPoints(ctx, id, amount)
}

func (s *Store) CreateEvent(ctx context.Context, e ticketing.Event, tiers []ticketing.TicketTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := (queries{db: sqlTx}).CreateEvent(ctx, e, tiers); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) CreateTier(ctx context.Context, t ticketing.TicketTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreateTier(ctx, t)
}

func (s *Store) GetEvent(ctx context.Context, id ticketing.EventID) (*ticketing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetEvent(ctx, id)
}

func (s *Store) ListEvents(ctx context.Context, f ticketing.EventListFilter, now time.Time) ([]ticketing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListEvents(ctx, f, now)
}

func (s *Store) GetTier(ctx context.Context, id ticketing.TierID) (*ticketing.TicketTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetTier(ctx, id)
}

func (s *Store) ListTiers(ctx context.Context, eventID ticketing.EventID) ([]ticketing.TicketTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListTiers(ctx, eventID)
}

func (s *Store) DecrementTierQuota(ctx context.Context, id ticketing.TierID, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DecrementTierQuota(ctx, id, qty)
}

func (s *Store) IncrementTierQuota(ctx context.Context, id ticketing.TierID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.IncrementTierQuota(ctx, id, qty)
}

func (s *Store) DecrementEventSeats(ctx context.Context, id ticketing.EventID, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DecrementEventSeats(ctx, id, qty)
}

func (s *Store) IncrementEventSeats(ctx context.Context, id ticketing.EventID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.IncrementEventSeats(ctx, id, qty)
}

func (s *Store) CreatePromotion(ctx context.Context, p ticketing.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreatePromotion(ctx, p)
}

func (s *Store) ActivePromotions(ctx context.Context, eventID ticketing.EventID, at time.Time) ([]ticketing.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ActivePromotions(ctx, eventID, at)
}

func (s *Store) CreateTransaction(ctx context.Context, t ticketing.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreateTransaction(ctx, t)
}

func (s *Store) GetTransaction(ctx context.Context, id ticketing.TransactionID) (*ticketing.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetTransaction(ctx, id)
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id ticketing.TransactionID, from, to ticketing.TransactionStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpdateTransactionStatus(ctx, id, from, to, at)
}

func (s *Store) SetPaymentProof(ctx context.Context, id ticketing.TransactionID, proofRef string, from, to ticketing.TransactionStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetPaymentProof(ctx, id, proofRef, from, to, at)
}

func (s *Store) ListTransactionsByBuyer(ctx context.Context, buyerID ticketing.AccountID) ([]ticketing.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListTransactionsByBuyer(ctx, buyerID)
}

func (s *Store) ListTransactionsByOrganizer(ctx context.Context, organizerID ticketing.AccountID) ([]ticketing.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListTransactionsByOrganizer(ctx, organizerID)
}

func (s *Store) ListOverdue(ctx context.Context, status ticketing.TransactionStatus, cutoff time.Time) ([]ticketing.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListOverdue(ctx, status, cutoff)
}

func (s *Store) CreatePointsUsage(ctx context.Context, u ticketing.PointsUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreatePointsUsage(ctx, u)
}

func (s *Store) GetPointsUsage(ctx context.Context, txID ticketing.TransactionID) (*ticketing.PointsUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetPointsUsage(ctx, txID)
}

func (s *Store) DeletePointsUsage(ctx context.Context, txID ticketing.TransactionID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeletePointsUsage(ctx, txID)
}

func (s *Store) CreatePointGrant(ctx context.Context, g ticketing.PointGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreatePointGrant(ctx, g)
}

func (s *Store) ListPointGrants(ctx context.Context, accountID ticketing.AccountID) ([]ticketing.PointGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListPointGrants(ctx, accountID)
}

func (s *Store) DeactivateExpiredGrants(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeactivateExpiredGrants(ctx, now)
}

// WithTx executes fn against a transaction-scoped store. If fn returns an
// error the transaction is rolled back and nothing fn wrote survives.
func (s *Store) WithTx(ctx context.Context, fn func(ticketing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// QUERIES - shared between the locked store and transaction scopes
// =============================================================================

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ticketing.Store against any dbtx, without locking.
// Store wraps it with the mutex; WithTx hands it out over a *sql.Tx.
type queries struct {
	db dbtx
}

// --- Accounts ---

func (q queries) CreateAccount(ctx context.Context, a ticketing.Account) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, role, points, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Role, int64(a.Points), formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (q queries) GetAccount(ctx context.Context, id ticketing.AccountID) (*ticketing.Account, error) {
	var (
		a         ticketing.Account
		points    int64
		createdAt string
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, role, points, created_at FROM accounts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Role, &points, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Points = ticketing.Money(points)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func (q queries) AddPoints(ctx context.Context, id ticketing.AccountID, amount ticketing.Money) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET points = points + ? WHERE id = ?`, int64(amount), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, ticketing.ErrNotFound)
	}
	return nil
}

func (q queries) DeductPoints(ctx context.Context, id ticketing.AccountID, amount ticketing.Money) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET points = points - ? WHERE id = ? AND points >= ?`,
		int64(amount), id, int64(amount))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- Events and tiers ---

func (q queries) CreateEvent(ctx context.Context, e ticketing.Event, tiers []ticketing.TicketTier) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO events
			(id, organizer_id, name, description, category, location,
			 start_date, end_date, nominal_price, available_seats, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrganizerID, e.Name, e.Description, e.Category, e.Location,
		formatTime(e.StartDate), formatTime(e.EndDate),
		int64(e.NominalPrice), e.AvailableSeats, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	for _, t := range tiers {
		_, err := q.db.ExecContext(ctx,
			`INSERT INTO ticket_tiers (id, event_id, name, price, quota) VALUES (?, ?, ?, ?, ?)`,
			t.ID, t.EventID, t.Name, int64(t.Price), t.Quota)
		if err != nil {
			return fmt.Errorf("failed to create tier: %w", err)
		}
	}
	return nil
}

func (q queries) CreateTier(ctx context.Context, t ticketing.TicketTier) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO ticket_tiers (id, event_id, name, price, quota) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.EventID, t.Name, int64(t.Price), t.Quota)
	if err != nil {
		return fmt.Errorf("failed to create tier: %w", err)
	}
	return nil
}

func (q queries) GetEvent(ctx context.Context, id ticketing.EventID) (*ticketing.Event, error) {
	e, err := scanEvent(q.db.QueryRowContext(ctx, `
		SELECT id, organizer_id, name, description, category, location,
		       start_date, end_date, nominal_price, available_seats, created_at
		FROM events WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (q queries) ListEvents(ctx context.Context, f ticketing.EventListFilter, now time.Time) ([]ticketing.Event, error) {
	query := `
		SELECT id, organizer_id, name, description, category, location,
		       start_date, end_date, nominal_price, available_seats, created_at
		FROM events WHERE end_date > ?`
	args := []any{formatTime(now)}

	if f.Query != "" {
		query += ` AND (name LIKE ? OR description LIKE ?)`
		like := "%" + f.Query + "%"
		args = append(args, like, like)
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Location != "" {
		query += ` AND location = ?`
		args = append(args, f.Location)
	}
	query += ` ORDER BY start_date ASC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ticketing.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (q queries) GetTier(ctx context.Context, id ticketing.TierID) (*ticketing.TicketTier, error) {
	var (
		t     ticketing.TicketTier
		price int64
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT id, event_id, name, price, quota FROM ticket_tiers WHERE id = ?`, id,
	).Scan(&t.ID, &t.EventID, &t.Name, &price, &t.Quota)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Price = ticketing.Money(price)
	return &t, nil
}

func (q queries) ListTiers(ctx context.Context, eventID ticketing.EventID) ([]ticketing.TicketTier, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, event_id, name, price, quota FROM ticket_tiers WHERE event_id = ? ORDER BY price ASC`,
		eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []ticketing.TicketTier
	for rows.Next() {
		var (
			t     ticketing.TicketTier
			price int64
		)
		if err := rows.Scan(&t.ID, &t.EventID, &t.Name, &price, &t.Quota); err != nil {
			return nil, err
		}
		t.Price = ticketing.Money(price)
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (q queries) DecrementTierQuota(ctx context.Context, id ticketing.TierID, qty int) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE ticket_tiers SET quota = quota - ? WHERE id = ? AND quota >= ?`,
		qty, id, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (q queries) IncrementTierQuota(ctx context.Context, id ticketing.TierID, qty int) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE ticket_tiers SET quota = quota + ? WHERE id = ?`, qty, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tier %s: %w", id, ticketing.ErrNotFound)
	}
	return nil
}

func (q queries) DecrementEventSeats(ctx context.Context, id ticketing.EventID, qty int) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE events SET available_seats = available_seats - ? WHERE id = ? AND available_seats >= ?`,
		qty, id, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (q queries) IncrementEventSeats(ctx context.Context, id ticketing.EventID, qty int) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE events SET available_seats = available_seats + ? WHERE id = ?`, qty, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("event %s: %w", id, ticketing.ErrNotFound)
	}
	return nil
}

// --- Promotions ---

func (q queries) CreatePromotion(ctx context.Context, p ticketing.Promotion) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO promotions (id, event_id, title, start_date, end_date) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.EventID, p.Title, formatTime(p.StartDate), formatTime(p.EndDate))
	if err != nil {
		return fmt.Errorf("failed to create promotion: %w", err)
	}
	return nil
}

func (q queries) ActivePromotions(ctx context.Context, eventID ticketing.EventID, at time.Time) ([]ticketing.Promotion, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, event_id, title, start_date, end_date
		FROM promotions
		WHERE event_id = ? AND start_date <= ? AND end_date >= ?`,
		eventID, formatTime(at), formatTime(at))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promos []ticketing.Promotion
	for rows.Next() {
		var (
			p          ticketing.Promotion
			start, end string
		)
		if err := rows.Scan(&p.ID, &p.EventID, &p.Title, &start, &end); err != nil {
			return nil, err
		}
		p.StartDate = parseTime(start)
		p.EndDate = parseTime(end)
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

// --- Transactions ---

const txColumns = `id, buyer_id, event_id, tier_id, quantity, total_price, status, payment_proof, created_at, updated_at`

func (q queries) CreateTransaction(ctx context.Context, t ticketing.Transaction) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.BuyerID, t.EventID, t.TierID, t.Quantity, int64(t.TotalPrice),
		t.Status, nullString(t.PaymentProof),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (q queries) GetTransaction(ctx context.Context, id ticketing.TransactionID) (*ticketing.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q queries) UpdateTransactionStatus(ctx context.Context, id ticketing.TransactionID, from, to ticketing.TransactionStatus, at time.Time) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, formatTime(at), id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (q queries) SetPaymentProof(ctx context.Context, id ticketing.TransactionID, proofRef string, from, to ticketing.TransactionStatus, at time.Time) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, payment_proof = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, proofRef, formatTime(at), id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (q queries) ListTransactionsByBuyer(ctx context.Context, buyerID ticketing.AccountID) ([]ticketing.Transaction, error) {
	return q.listTransactions(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE buyer_id = ? ORDER BY created_at DESC`,
		buyerID)
}

func (q queries) ListTransactionsByOrganizer(ctx context.Context, organizerID ticketing.AccountID) ([]ticketing.Transaction, error) {
	return q.listTransactions(ctx, `
		SELECT t.id, t.buyer_id, t.event_id, t.tier_id, t.quantity, t.total_price,
		       t.status, t.payment_proof, t.created_at, t.updated_at
		FROM transactions t
		JOIN events e ON e.id = t.event_id
		WHERE e.organizer_id = ?
		ORDER BY t.created_at DESC`,
		organizerID)
}

func (q queries) ListOverdue(ctx context.Context, status ticketing.TransactionStatus, cutoff time.Time) ([]ticketing.Transaction, error) {
	return q.listTransactions(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE status = ? AND created_at <= ? ORDER BY created_at ASC`,
		status, formatTime(cutoff))
}

func (q queries) listTransactions(ctx context.Context, query string, args ...any) ([]ticketing.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []ticketing.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// --- Points usage ---

func (q queries) CreatePointsUsage(ctx context.Context, u ticketing.PointsUsage) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO points_usage (transaction_id, used_points, offset_amount) VALUES (?, ?, ?)`,
		u.TransactionID, int64(u.UsedPoints), int64(u.OffsetAmount))
	if err != nil {
		return fmt.Errorf("failed to create points usage: %w", err)
	}
	return nil
}

func (q queries) GetPointsUsage(ctx context.Context, txID ticketing.TransactionID) (*ticketing.PointsUsage, error) {
	var (
		u            ticketing.PointsUsage
		used, offset int64
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT transaction_id, used_points, offset_amount FROM points_usage WHERE transaction_id = ?`,
		txID,
	).Scan(&u.TransactionID, &used, &offset)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.UsedPoints = ticketing.Money(used)
	u.OffsetAmount = ticketing.Money(offset)
	return &u, nil
}

func (q queries) DeletePointsUsage(ctx context.Context, txID ticketing.TransactionID) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM points_usage WHERE transaction_id = ?`, txID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- Point grants ---

func (q queries) CreatePointGrant(ctx context.Context, g ticketing.PointGrant) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO point_grants
			(id, account_id, amount, reason, expires_at, active, transaction_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.AccountID, int64(g.Amount), g.Reason,
		formatTime(g.ExpiresAt), boolInt(g.Active),
		nullString(string(g.TransactionID)), formatTime(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create point grant: %w", err)
	}
	return nil
}

func (q queries) ListPointGrants(ctx context.Context, accountID ticketing.AccountID) ([]ticketing.PointGrant, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, account_id, amount, reason, expires_at, active, transaction_id, created_at
		FROM point_grants WHERE account_id = ? ORDER BY created_at DESC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []ticketing.PointGrant
	for rows.Next() {
		var (
			g                    ticketing.PointGrant
			amount               int64
			activeInt            int
			expiresAt, createdAt string
			reason, txID         sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.AccountID, &amount, &reason,
			&expiresAt, &activeInt, &txID, &createdAt); err != nil {
			return nil, err
		}
		g.Amount = ticketing.Money(amount)
		g.Reason = reason.String
		g.ExpiresAt = parseTime(expiresAt)
		g.Active = activeInt != 0
		g.TransactionID = ticketing.TransactionID(txID.String)
		g.CreatedAt = parseTime(createdAt)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (q queries) DeactivateExpiredGrants(ctx context.Context, now time.Time) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE point_grants SET active = 0 WHERE active = 1 AND expires_at <= ?`,
		formatTime(now))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// SCAN AND FORMAT HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*ticketing.Event, error) {
	var (
		e                        ticketing.Event
		desc, category, location sql.NullString
		start, end, createdAt    string
		nominal                  int64
	)
	err := r.Scan(&e.ID, &e.OrganizerID, &e.Name, &desc, &category, &location,
		&start, &end, &nominal, &e.AvailableSeats, &createdAt)
	if err != nil {
		return nil, err
	}
	e.Description = desc.String
	e.Category = category.String
	e.Location = location.String
	e.StartDate = parseTime(start)
	e.EndDate = parseTime(end)
	e.NominalPrice = ticketing.Money(nominal)
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

func scanTransaction(r rowScanner) (ticketing.Transaction, error) {
	var (
		t                    ticketing.Transaction
		total                int64
		proof                sql.NullString
		createdAt, updatedAt string
	)
	err := r.Scan(&t.ID, &t.BuyerID, &t.EventID, &t.TierID, &t.Quantity,
		&total, &t.Status, &proof, &createdAt, &updatedAt)
	if err != nil {
		return t, err
	}
	t.TotalPrice = ticketing.Money(total)
	t.PaymentProof = proof.String
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

// formatTime stores instants as RFC3339 UTC so lexical ordering in SQL
// matches chronological ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

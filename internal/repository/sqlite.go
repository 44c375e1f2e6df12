package repository

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository provides data access methods
type Repository struct {
	db *sql.DB
	tx *sql.Tx
}

// New creates a new Repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &Repository{db: db}

	if err := repo.migrate(); err != nil {
		return nil, err
	}

	return repo, nil
}

// DB returns the underlying database connection
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// InTx runs fn against a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise. Only the writer passed to fn may
// be used inside it: the pool holds a single connection.
func (r *Repository) InTx(ctx context.Context, fn func(w AuctionWriter) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&Repository{db: r.db, tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// migrate runs database migrations
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS lots (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT,
			base_price TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'available',
			approved BOOLEAN NOT NULL DEFAULT 0,
			highest_bid TEXT,
			highest_bidder TEXT,
			round INTEGER NOT NULL DEFAULT 1,
			live_since DATETIME,
			closed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bidders (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			ceiling TEXT NOT NULL,
			committed TEXT NOT NULL DEFAULT '0',
			spent TEXT NOT NULL DEFAULT '0',
			active BOOLEAN NOT NULL DEFAULT 1,
			token TEXT UNIQUE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bid_records (
			id TEXT PRIMARY KEY,
			lot_id TEXT NOT NULL,
			bidder_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			round INTEGER NOT NULL,
			is_winning BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (lot_id) REFERENCES lots(id),
			FOREIGN KEY (bidder_id) REFERENCES bidders(id)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lots_status ON lots(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bid_records_lot ON bid_records(lot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bidders_token ON bidders(token)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return err
		}
	}

	// Note: public_url is intentionally not set here - app sets it
	// with the detected LAN address on startup
	defaultSettings := map[string]string{
		"auction_title": "Player Auction",
	}

	for key, value := range defaultSettings {
		_, err := r.db.Exec(`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, key, value)
		if err != nil {
			return err
		}
	}

	return nil
}

// ==================== Lot Methods ====================

const lotColumns = `id, name, category, base_price, status, approved, highest_bid, highest_bidder,
	round, live_since, closed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLot(s rowScanner) (*models.Lot, error) {
	var (
		lot           models.Lot
		category      sql.NullString
		status        string
		highestBid    decimal.NullDecimal
		highestBidder sql.NullString
		liveSince     sql.NullTime
		closedAt      sql.NullTime
	)
	err := s.Scan(&lot.ID, &lot.Name, &category, &lot.BasePrice, &status, &lot.Approved,
		&highestBid, &highestBidder, &lot.Round, &liveSince, &closedAt, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	lot.Category = category.String
	lot.Status = models.LotStatus(status)
	if highestBid.Valid {
		bid := highestBid.Decimal
		lot.HighestBid = &bid
	}
	lot.HighestBidder = highestBidder.String
	if liveSince.Valid {
		ts := liveSince.Time
		lot.LiveSince = &ts
	}
	if closedAt.Valid {
		ts := closedAt.Time
		lot.ClosedAt = &ts
	}
	return &lot, nil
}

func (r *Repository) queryLots(ctx context.Context, query string, args ...interface{}) ([]models.Lot, error) {
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []models.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, *lot)
	}
	return lots, rows.Err()
}

// LoadLotByID retrieves a lot
func (r *Repository) LoadLotByID(ctx context.Context, id string) (*models.Lot, error) {
	lot, err := scanLot(r.q().QueryRowContext(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return lot, err
}

// ListLots returns every lot in creation order
func (r *Repository) ListLots(ctx context.Context) ([]models.Lot, error) {
	return r.queryLots(ctx, `SELECT `+lotColumns+` FROM lots ORDER BY created_at, rowid`)
}

// ListLotsByStatus returns the lots in a status, in creation order
func (r *Repository) ListLotsByStatus(ctx context.Context, status models.LotStatus) ([]models.Lot, error) {
	return r.queryLots(ctx, `SELECT `+lotColumns+` FROM lots WHERE status = ? ORDER BY created_at, rowid`, string(status))
}

// ListUnsoldLots returns unsold lots, limited to one round when round > 0
func (r *Repository) ListUnsoldLots(ctx context.Context, round int) ([]models.Lot, error) {
	if round > 0 {
		return r.queryLots(ctx, `SELECT `+lotColumns+` FROM lots WHERE status = ? AND round = ? ORDER BY created_at, rowid`,
			string(models.LotUnsold), round)
	}
	return r.ListLotsByStatus(ctx, models.LotUnsold)
}

// CreateLot inserts a new lot
func (r *Repository) CreateLot(ctx context.Context, lot *models.Lot) error {
	_, err := r.q().ExecContext(ctx, `
		INSERT INTO lots (id, name, category, base_price, status, approved, round, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, lot.ID, lot.Name, lot.Category, lot.BasePrice.String(), string(lot.Status), lot.Approved, lot.Round,
		lot.CreatedAt, lot.UpdatedAt)
	return err
}

// UpdateLotDetails edits the catalogue fields of an available lot
func (r *Repository) UpdateLotDetails(ctx context.Context, id, name, category string, basePrice decimal.Decimal) error {
	result, err := r.q().ExecContext(ctx, `
		UPDATE lots SET name = ?, category = ?, base_price = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, name, category, basePrice.String(), time.Now().UTC(), id, string(models.LotAvailable))
	if err != nil {
		return err
	}
	return r.requireEditable(ctx, result, id)
}

// ApproveLot sets the approval flag of a lot
func (r *Repository) ApproveLot(ctx context.Context, id string, approved bool) error {
	result, err := r.q().ExecContext(ctx, `UPDATE lots SET approved = ?, updated_at = ? WHERE id = ?`,
		approved, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteLot removes an available lot that never received a bid
func (r *Repository) DeleteLot(ctx context.Context, id string) error {
	result, err := r.q().ExecContext(ctx, `
		DELETE FROM lots WHERE id = ? AND status = ?
		AND NOT EXISTS (SELECT 1 FROM bid_records WHERE lot_id = lots.id)
	`, id, string(models.LotAvailable))
	if err != nil {
		return err
	}
	return r.requireEditable(ctx, result, id)
}

// requireEditable tells a missing lot apart from one that is past Available
func (r *Repository) requireEditable(ctx context.Context, result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM lots WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrNotAvailable
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RoundSummaries counts lots per status for every round
func (r *Repository) RoundSummaries(ctx context.Context) ([]models.RoundSummary, error) {
	rows, err := r.q().QueryContext(ctx, `
		SELECT round,
			COUNT(*),
			SUM(CASE WHEN status = 'sold' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'unsold' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'available' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'live' THEN 1 ELSE 0 END)
		FROM lots
		GROUP BY round
		ORDER BY round
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.RoundSummary
	for rows.Next() {
		var s models.RoundSummary
		if err := rows.Scan(&s.Round, &s.Total, &s.Sold, &s.Unsold, &s.Available, &s.Live); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// SaveLotState writes the auction-controlled fields of a lot
func (r *Repository) SaveLotState(ctx context.Context, lot *models.Lot) error {
	var highestBid interface{}
	if lot.HighestBid != nil {
		highestBid = lot.HighestBid.String()
	}
	var highestBidder interface{}
	if lot.HighestBidder != "" {
		highestBidder = lot.HighestBidder
	}
	result, err := r.q().ExecContext(ctx, `
		UPDATE lots SET status = ?, highest_bid = ?, highest_bidder = ?, round = ?,
			live_since = ?, closed_at = ?, updated_at = ?
		WHERE id = ?
	`, string(lot.Status), highestBid, highestBidder, lot.Round,
		nullTime(lot.LiveSince), nullTime(lot.ClosedAt), lot.UpdatedAt, lot.ID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// ==================== Bid Methods ====================

const bidColumns = `id, lot_id, bidder_id, amount, round, is_winning, created_at`

func scanBid(s rowScanner) (*models.BidRecord, error) {
	var rec models.BidRecord
	if err := s.Scan(&rec.ID, &rec.LotID, &rec.BidderID, &rec.Amount, &rec.Round, &rec.Winning, &rec.Timestamp); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveBidRecord appends an accepted bid. When the record is winning, the
// previous winner of the lot loses its flag.
func (r *Repository) SaveBidRecord(ctx context.Context, rec *models.BidRecord) error {
	if rec.Winning {
		if err := r.ClearWinningBid(ctx, rec.LotID); err != nil {
			return err
		}
	}
	_, err := r.q().ExecContext(ctx, `
		INSERT INTO bid_records (id, lot_id, bidder_id, amount, round, is_winning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.LotID, rec.BidderID, rec.Amount.String(), rec.Round, rec.Winning, rec.Timestamp)
	return err
}

// ClearWinningBid removes the winner flag from every bid on the lot
func (r *Repository) ClearWinningBid(ctx context.Context, lotID string) error {
	_, err := r.q().ExecContext(ctx, `UPDATE bid_records SET is_winning = 0 WHERE lot_id = ? AND is_winning = 1`, lotID)
	return err
}

// ListBids returns the bid history of a lot, newest first
func (r *Repository) ListBids(ctx context.Context, lotID string) ([]models.BidRecord, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT `+bidColumns+` FROM bid_records WHERE lot_id = ? ORDER BY rowid DESC`, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []models.BidRecord
	for rows.Next() {
		rec, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *rec)
	}
	return bids, rows.Err()
}

// LoadWinningBid returns the flagged winner of a lot
func (r *Repository) LoadWinningBid(ctx context.Context, lotID string) (*models.BidRecord, error) {
	rec, err := scanBid(r.q().QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bid_records WHERE lot_id = ? AND is_winning = 1`, lotID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

// ==================== Bidder Methods ====================

const bidderColumns = `id, name, ceiling, committed, spent, active, created_at`

func scanBidder(s rowScanner) (*models.BidderAccount, error) {
	var a models.BidderAccount
	if err := s.Scan(&a.ID, &a.Name, &a.Ceiling, &a.Committed, &a.Spent, &a.Active, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// LoadBidderAccount retrieves a bidder's account
func (r *Repository) LoadBidderAccount(ctx context.Context, id string) (*models.BidderAccount, error) {
	a, err := scanBidder(r.q().QueryRowContext(ctx, `SELECT `+bidderColumns+` FROM bidders WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

// ListBidders returns all bidders ordered by name
func (r *Repository) ListBidders(ctx context.Context) ([]models.BidderAccount, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT `+bidderColumns+` FROM bidders ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bidders []models.BidderAccount
	for rows.Next() {
		a, err := scanBidder(rows)
		if err != nil {
			return nil, err
		}
		bidders = append(bidders, *a)
	}
	return bidders, rows.Err()
}

// CreateBidder inserts a new bidder account
func (r *Repository) CreateBidder(ctx context.Context, acct *models.BidderAccount) error {
	_, err := r.q().ExecContext(ctx, `
		INSERT INTO bidders (id, name, ceiling, committed, spent, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, acct.ID, acct.Name, acct.Ceiling.String(), acct.Committed.String(), acct.Spent.String(), acct.Active, acct.CreatedAt)
	return err
}

// SaveBidderAccount writes the ledger fields of an account
func (r *Repository) SaveBidderAccount(ctx context.Context, acct *models.BidderAccount) error {
	result, err := r.q().ExecContext(ctx, `
		UPDATE bidders SET ceiling = ?, committed = ?, spent = ? WHERE id = ?
	`, acct.Ceiling.String(), acct.Committed.String(), acct.Spent.String(), acct.ID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetBidderActive enables or disables a bidder
func (r *Repository) SetBidderActive(ctx context.Context, id string, active bool) error {
	result, err := r.q().ExecContext(ctx, `UPDATE bidders SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetBidderToken stores the bearer token of a bidder, replacing any previous one
func (r *Repository) SetBidderToken(ctx context.Context, id, token string) error {
	result, err := r.q().ExecContext(ctx, `UPDATE bidders SET token = ? WHERE id = ?`, token, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// FindBidderByToken resolves a bearer token to a bidder id
func (r *Repository) FindBidderByToken(ctx context.Context, token string) (string, error) {
	var id string
	err := r.q().QueryRowContext(ctx, `SELECT id FROM bidders WHERE token = ?`, token).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

// ==================== Settings Methods ====================

// GetSetting retrieves a setting value
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.q().QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// SetSetting updates a setting value
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.q().ExecContext(ctx, `INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return err
}

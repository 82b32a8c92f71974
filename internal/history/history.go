// Package history is the local record of executed swaps. Each trade is
// keyed by chain and transaction hash, starts out pending, and is settled
// when the receipt lands.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

type Trade struct {
	ID             string
	ChainID        int64
	Venue          string
	FromToken      string
	ToToken        string
	FromAmount     string
	QuotedToAmount string
	Slippage       float64
	TxHash         string
	Status         Status
	GasUsed        uint64
	CreatedAt      time.Time
	FinishedAt     *time.Time
}

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT NOT NULL,
			chain_id INTEGER NOT NULL,
			venue TEXT NOT NULL,
			from_token TEXT NOT NULL,
			to_token TEXT NOT NULL,
			from_amount TEXT NOT NULL,
			quoted_to_amount TEXT NOT NULL,
			slippage REAL NOT NULL,
			tx_hash TEXT NOT NULL,
			status TEXT NOT NULL,
			gas_used INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			finished_at INTEGER,
			PRIMARY KEY (chain_id, tx_hash)
		);`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init history schema: %w", err)
		}
	}

	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withLock(fn func() error) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock history: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock history: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

// Record inserts a trade as pending. Re-recording the same (chain, tx hash)
// overwrites the row, so retried submissions stay deduplicated.
func (s *Store) Record(trade Trade) error {
	return s.withLock(func() error {
		_, err := s.db.Exec(`
			INSERT INTO trades (id, chain_id, venue, from_token, to_token, from_amount, quoted_to_amount, slippage, tx_hash, status, gas_used, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chain_id, tx_hash) DO UPDATE SET
				id=excluded.id,
				venue=excluded.venue,
				status=excluded.status
		`, trade.ID, trade.ChainID, trade.Venue, trade.FromToken, trade.ToToken,
			trade.FromAmount, trade.QuotedToAmount, trade.Slippage, trade.TxHash,
			string(StatusPending), trade.GasUsed, time.Now().UTC().Unix())
		if err != nil {
			return fmt.Errorf("history write: %w", err)
		}
		return nil
	})
}

// Settle marks a pending trade confirmed or failed.
func (s *Store) Settle(chainID int64, txHash string, status Status, gasUsed uint64) error {
	return s.withLock(func() error {
		result, err := s.db.Exec(`
			UPDATE trades SET status = ?, gas_used = ?, finished_at = ?
			WHERE chain_id = ? AND tx_hash = ?
		`, string(status), gasUsed, time.Now().UTC().Unix(), chainID, txHash)
		if err != nil {
			return fmt.Errorf("history settle: %w", err)
		}
		n, err := result.RowsAffected()
		if err == nil && n == 0 {
			return fmt.Errorf("history settle: no trade for chain %d tx %s", chainID, txHash)
		}
		return nil
	})
}

// Get returns one trade by its chain and transaction hash.
func (s *Store) Get(chainID int64, txHash string) (Trade, error) {
	row := s.db.QueryRow(`
		SELECT id, chain_id, venue, from_token, to_token, from_amount, quoted_to_amount, slippage, tx_hash, status, gas_used, created_at, finished_at
		FROM trades WHERE chain_id = ? AND tx_hash = ?
	`, chainID, txHash)
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Trade{}, fmt.Errorf("no trade for chain %d tx %s", chainID, txHash)
	}
	return trade, err
}

// List returns the most recent trades, newest first.
func (s *Store) List(limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, chain_id, venue, from_token, to_token, from_amount, quoted_to_amount, slippage, tx_hash, status, gas_used, created_at, finished_at
		FROM trades ORDER BY created_at DESC, tx_hash DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history list: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, trade)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(row scanner) (Trade, error) {
	var trade Trade
	var status string
	var createdUnix int64
	var finishedUnix sql.NullInt64
	err := row.Scan(&trade.ID, &trade.ChainID, &trade.Venue, &trade.FromToken, &trade.ToToken,
		&trade.FromAmount, &trade.QuotedToAmount, &trade.Slippage, &trade.TxHash,
		&status, &trade.GasUsed, &createdUnix, &finishedUnix)
	if err != nil {
		return Trade{}, err
	}
	trade.Status = Status(status)
	trade.CreatedAt = time.Unix(createdUnix, 0).UTC()
	if finishedUnix.Valid {
		t := time.Unix(finishedUnix.Int64, 0).UTC()
		trade.FinishedAt = &t
	}
	return trade, nil
}

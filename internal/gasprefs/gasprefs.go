// Package gasprefs remembers the gas price a user last picked per chain, so
// simulation can reuse it instead of the gas market's normal tier. Entries
// age out: a selection older than an hour is ignored.
package gasprefs

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

const maxAge = time.Hour

type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

type Selection struct {
	GasPriceWei string
	Level       string
	ChosenAt    time.Time
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create gas prefs directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite gas prefs: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS gas_selections (chain_id INTEGER PRIMARY KEY, gas_price_wei TEXT NOT NULL, level TEXT NOT NULL, chosen_at INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init gas prefs schema: %w", err)
		}
	}

	return &Store{db: db, lock: flock.New(lockPath), now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Last returns the user's most recent gas selection for a chain, or a miss
// when none exists or the selection has aged out.
func (s *Store) Last(chainID int64) (Selection, bool, error) {
	var sel Selection
	var chosenUnix int64
	err := s.db.QueryRow(
		"SELECT gas_price_wei, level, chosen_at FROM gas_selections WHERE chain_id = ?", chainID,
	).Scan(&sel.GasPriceWei, &sel.Level, &chosenUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Selection{}, false, nil
		}
		return Selection{}, false, fmt.Errorf("gas prefs read: %w", err)
	}
	sel.ChosenAt = time.Unix(chosenUnix, 0).UTC()
	if s.now().UTC().Sub(sel.ChosenAt) > maxAge {
		return Selection{}, false, nil
	}
	return sel, true, nil
}

func (s *Store) Record(chainID int64, gasPriceWei, level string) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock gas prefs: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock gas prefs: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	_, err = s.db.Exec(`
		INSERT INTO gas_selections (chain_id, gas_price_wei, level, chosen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chain_id) DO UPDATE SET
			gas_price_wei=excluded.gas_price_wei,
			level=excluded.level,
			chosen_at=excluded.chosen_at
	`, chainID, gasPriceWei, level, s.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("gas prefs write: %w", err)
	}
	return nil
}

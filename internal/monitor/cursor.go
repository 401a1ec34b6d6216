package monitor

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

// CursorStore persists per-address stream positions and dispatched event
// ids so a restarted daemon resumes where it left off instead of
// replaying history. The seen-insert and cursor-advance happen in one
// transaction: an event is either fully dispatched or not at all.
type CursorStore struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenCursorStore(path, lockPath string) (*CursorStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cursor store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cursor lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cursor sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS cursors (
			address TEXT PRIMARY KEY,
			cursor TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS seen_events (
			event_id TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			seen_at INTEGER NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_seen_events_seen_at ON seen_events(seen_at);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cursor schema: %w", err)
		}
	}
	return &CursorStore{db: db, lock: flock.New(lockPath)}, nil
}

func (s *CursorStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Cursor returns the last dispatched position for an address, or "" when
// the address has never been watched.
func (s *CursorStore) Cursor(address string) (string, error) {
	var cursor string
	err := s.db.QueryRow("SELECT cursor FROM cursors WHERE address = ?", address).Scan(&cursor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read cursor: %w", err)
	}
	return cursor, nil
}

// Seen reports whether an event id was already dispatched.
func (s *CursorStore) Seen(eventID string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM seen_events WHERE event_id = ?", eventID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read seen event: %w", err)
	}
	return true, nil
}

// MarkDispatched records the event id and advances the address cursor
// atomically. A duplicate event id is reported via the bool so the
// caller can count it without treating it as a failure.
func (s *CursorStore) MarkDispatched(address, eventID, cursor string) (bool, error) {
	if err := s.acquire(); err != nil {
		return false, err
	}
	defer func() { _ = s.lock.Unlock() }()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin cursor transaction: %w", err)
	}
	now := time.Now().UTC().Unix()
	res, err := tx.Exec(
		"INSERT OR IGNORE INTO seen_events (event_id, address, seen_at) VALUES (?, ?, ?)",
		eventID, address, now,
	)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("record seen event: %w", err)
	}
	inserted, _ := res.RowsAffected()
	if inserted == 0 {
		_ = tx.Rollback()
		return false, nil
	}
	_, err = tx.Exec(`
		INSERT INTO cursors (address, cursor, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET cursor=excluded.cursor, updated_at=excluded.updated_at
	`, address, cursor, now)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("advance cursor: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit cursor transaction: %w", err)
	}
	return true, nil
}

// PruneSeen drops dedup entries older than the grace period so the seen
// table stays bounded. Cursors are never pruned.
func (s *CursorStore) PruneSeen(grace time.Duration) (int64, error) {
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer func() { _ = s.lock.Unlock() }()

	cutoff := time.Now().UTC().Add(-grace).Unix()
	res, err := s.db.Exec("DELETE FROM seen_events WHERE seen_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune seen events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *CursorStore) acquire() error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock cursor store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cursor store: timeout acquiring lock")
	}
	return nil
}

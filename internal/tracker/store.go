package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Store is the bounded operation log, keyed by correlation token.
// Writes take a file lock (single writer); terminal states never
// regress regardless of what a later write asks for.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create operation store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create operation lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open operation sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS operations (
			query_id TEXT PRIMARY KEY,
			wallet_label TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			submitted_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_operations_status_updated ON operations(status, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init operation schema: %w", err)
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

// Put inserts or replaces an operation record without transition checks.
// Used only for the initial record at submission time.
func (s *Store) Put(operation TrackedOperation) error {
	if strings.TrimSpace(operation.QueryID) == "" {
		return fmt.Errorf("put operation: missing query id")
	}
	if err := s.acquire(); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()
	return s.write(operation)
}

// Transition applies a state update. Once an operation is terminal the
// stored state is returned unchanged: repeated polls are idempotent and
// state never regresses.
func (s *Store) Transition(queryID string, status Status, result *Result) (TrackedOperation, error) {
	if err := s.acquire(); err != nil {
		return TrackedOperation{}, err
	}
	defer func() { _ = s.lock.Unlock() }()

	current, err := s.Get(queryID)
	if err != nil {
		return TrackedOperation{}, err
	}
	if current.Status.Terminal() {
		return current, nil
	}
	current.Status = status
	if result != nil {
		current.Result = result
	}
	current.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := s.write(current); err != nil {
		return TrackedOperation{}, err
	}
	return current, nil
}

func (s *Store) Get(queryID string) (TrackedOperation, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM operations WHERE query_id = ?", queryID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TrackedOperation{}, fmt.Errorf("operation not found: %s", queryID)
		}
		return TrackedOperation{}, fmt.Errorf("read operation: %w", err)
	}
	var operation TrackedOperation
	if err := json.Unmarshal(payload, &operation); err != nil {
		return TrackedOperation{}, fmt.Errorf("decode operation payload: %w", err)
	}
	return operation, nil
}

func (s *Store) List(status string, limit int) ([]TrackedOperation, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(status) == "" {
		rows, err = s.db.Query("SELECT payload FROM operations ORDER BY updated_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM operations WHERE status = ? ORDER BY updated_at DESC LIMIT ?", status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	operations := make([]TrackedOperation, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan operation row: %w", err)
		}
		var operation TrackedOperation
		if err := json.Unmarshal(payload, &operation); err != nil {
			return nil, fmt.Errorf("decode operation row: %w", err)
		}
		operations = append(operations, operation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operation rows: %w", err)
	}
	return operations, nil
}

// Archive deletes terminal operations whose last update is older than
// the grace period, keeping the log bounded.
func (s *Store) Archive(grace time.Duration) (int64, error) {
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer func() { _ = s.lock.Unlock() }()

	cutoff := time.Now().UTC().Add(-grace).Unix()
	res, err := s.db.Exec(
		"DELETE FROM operations WHERE status IN (?, ?, ?) AND updated_at < ?",
		StatusConfirmed, StatusFailed, StatusExpired, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("archive operations: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) write(operation TrackedOperation) error {
	payload, err := json.Marshal(operation)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	submittedUnix := parseRFC3339Unix(operation.SubmittedAt)
	updatedUnix := parseRFC3339Unix(operation.UpdatedAt)

	_, err = s.db.Exec(`
		INSERT INTO operations (query_id, wallet_label, kind, status, submitted_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_id) DO UPDATE SET
			status=excluded.status,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, operation.QueryID, operation.WalletLabel, operation.Kind, operation.Status, submittedUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save operation: %w", err)
	}
	return nil
}

func (s *Store) acquire() error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock operation store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock operation store: timeout acquiring lock")
	}
	return nil
}

func parseRFC3339Unix(v string) int64 {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Now().UTC().Unix()
	}
	return t.UTC().Unix()
}

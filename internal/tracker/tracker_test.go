package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "ops.db"), filepath.Join(dir, "ops.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *Store, queryID string, status Status) {
	t.Helper()
	operation := NewTrackedOperation(queryID, "hot", "transfer", time.Now())
	operation.Status = status
	if err := store.Put(operation); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

type scriptedLookup struct {
	answers []Status
	result  *Result
	err     error
	calls   int
}

func (s *scriptedLookup) OperationStatus(context.Context, string) (Status, *Result, error) {
	s.calls++
	if s.err != nil {
		return StatusPending, nil, s.err
	}
	idx := s.calls - 1
	if idx >= len(s.answers) {
		idx = len(s.answers) - 1
	}
	return s.answers[idx], s.result, nil
}

func TestStoreTerminalStatesNeverRegress(t *testing.T) {
	store := testStore(t)
	seed(t, store, "q-1", StatusBroadcast)

	confirmed, err := store.Transition("q-1", StatusConfirmed, &Result{TxHash: "0xabc"})
	if err != nil {
		t.Fatalf("Transition to confirmed failed: %v", err)
	}
	if confirmed.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", confirmed.Status)
	}

	// A later poll reporting an earlier state must be ignored.
	after, err := store.Transition("q-1", StatusPending, nil)
	if err != nil {
		t.Fatalf("Transition after terminal failed: %v", err)
	}
	if after.Status != StatusConfirmed {
		t.Fatalf("terminal state regressed to %s", after.Status)
	}
	if after.Result == nil || after.Result.TxHash != "0xabc" {
		t.Fatalf("terminal result lost: %+v", after.Result)
	}
}

func TestStoreListFiltersByStatus(t *testing.T) {
	store := testStore(t)
	seed(t, store, "q-1", StatusPending)
	seed(t, store, "q-2", StatusConfirmed)
	seed(t, store, "q-3", StatusPending)

	pending, err := store.List(string(StatusPending), 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	all, err := store.List("", 10)
	if err != nil {
		t.Fatalf("List all failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 operations, got %d", len(all))
	}
}

func TestStoreArchiveRemovesOnlyOldTerminal(t *testing.T) {
	store := testStore(t)
	old := NewTrackedOperation("q-old", "hot", "transfer", time.Now().Add(-48*time.Hour))
	old.Status = StatusConfirmed
	old.UpdatedAt = time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)
	if err := store.Put(old); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	seed(t, store, "q-live", StatusPending)
	seed(t, store, "q-fresh", StatusConfirmed)

	removed, err := store.Archive(24 * time.Hour)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := store.Get("q-live"); err != nil {
		t.Fatalf("pending operation must survive archive: %v", err)
	}
	if _, err := store.Get("q-fresh"); err != nil {
		t.Fatalf("fresh terminal operation must survive archive: %v", err)
	}
}

func TestAwaitReachesConfirmed(t *testing.T) {
	store := testStore(t)
	seed(t, store, "q-1", StatusPending)
	lookup := &scriptedLookup{
		answers: []Status{StatusBroadcast, StatusBroadcast, StatusConfirmed},
		result:  &Result{TxHash: "0xdef", FeeUnits: "900000"},
	}
	tr := New(lookup, store, time.Millisecond, 10)

	operation, err := tr.Await(context.Background(), "q-1")
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if operation.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", operation.Status)
	}
	if operation.Result == nil || operation.Result.TxHash != "0xdef" {
		t.Fatalf("missing result: %+v", operation.Result)
	}
}

func TestAwaitTerminalShortCircuits(t *testing.T) {
	store := testStore(t)
	seed(t, store, "q-1", StatusFailed)
	lookup := &scriptedLookup{answers: []Status{StatusConfirmed}}
	tr := New(lookup, store, time.Millisecond, 10)

	operation, err := tr.Await(context.Background(), "q-1")
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if operation.Status != StatusFailed {
		t.Fatalf("expected stored failed state, got %s", operation.Status)
	}
	if lookup.calls != 0 {
		t.Fatalf("terminal operation must not be polled, got %d calls", lookup.calls)
	}
}

func TestAwaitBudgetExhaustionMarksExpired(t *testing.T) {
	store := testStore(t)
	seed(t, store, "q-1", StatusPending)
	lookup := &scriptedLookup{answers: []Status{StatusBroadcast}}
	tr := New(lookup, store, time.Millisecond, 3)

	operation, err := tr.Await(context.Background(), "q-1")
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if operation.Status != StatusExpired {
		t.Fatalf("expected expired after budget exhaustion, got %s", operation.Status)
	}
	stored, err := store.Get("q-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != StatusExpired {
		t.Fatalf("expired state not persisted, got %s", stored.Status)
	}
}

func TestAwaitUnreachableLookupExpires(t *testing.T) {
	store := testStore(t)
	seed(t, store, "q-1", StatusPending)
	lookup := &scriptedLookup{err: clierr.New(clierr.CodeUnavailable, "aggregator down")}
	tr := New(lookup, store, time.Millisecond, 20)

	operation, err := tr.Await(context.Background(), "q-1")
	if !clierr.Is(err, clierr.CodeExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
	if operation.Status != StatusExpired {
		t.Fatalf("expected expired status, got %s", operation.Status)
	}
	if lookup.calls != maxLookupFailures {
		t.Fatalf("expected %d lookup attempts, got %d", maxLookupFailures, lookup.calls)
	}
}

func TestAwaitUnknownOperation(t *testing.T) {
	store := testStore(t)
	tr := New(&scriptedLookup{}, store, time.Millisecond, 3)
	_, err := tr.Await(context.Background(), "missing")
	if !clierr.Is(err, clierr.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAwaitAllPreservesInputOrder(t *testing.T) {
	store := testStore(t)
	seed(t, store, "q-a", StatusConfirmed)
	seed(t, store, "q-b", StatusFailed)
	tr := New(&scriptedLookup{}, store, time.Millisecond, 3)

	results := tr.AwaitAll(context.Background(), []string{"q-a", "q-b"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Operation.QueryID != "q-a" || results[1].Operation.QueryID != "q-b" {
		t.Fatalf("results out of order: %+v", results)
	}
}

package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/r3labs/sse/v2"
)

func testCursorStore(t *testing.T) *CursorStore {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenCursorStore(filepath.Join(dir, "monitor.db"), filepath.Join(dir, "monitor.lock"))
	if err != nil {
		t.Fatalf("OpenCursorStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

const watchedAddr = "0x52908400098527886E0F7030069857D2E4169EE7"

type recordingDispatcher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func testDaemon(t *testing.T, store *CursorStore, dispatcher Dispatcher) *Daemon {
	t.Helper()
	daemon, err := NewDaemon(Config{
		StreamURL: "http://localhost:0/v1/events/stream",
		Address:   watchedAddr,
	}, store, dispatcher)
	if err != nil {
		t.Fatalf("NewDaemon failed: %v", err)
	}
	return daemon
}

func rawEvent(id, address string) *sse.Event {
	data := fmt.Sprintf(`{"id":%q,"address":%q,"type":"transaction","timestamp":1700000000}`, id, address)
	return &sse.Event{ID: []byte(id), Data: []byte(data)}
}

func TestCursorStoreMarkDispatchedAtomic(t *testing.T) {
	store := testCursorStore(t)

	fresh, err := store.MarkDispatched(watchedAddr, "evt-1", "evt-1")
	if err != nil {
		t.Fatalf("MarkDispatched failed: %v", err)
	}
	if !fresh {
		t.Fatal("first mark must be fresh")
	}

	fresh, err = store.MarkDispatched(watchedAddr, "evt-1", "evt-9")
	if err != nil {
		t.Fatalf("duplicate MarkDispatched failed: %v", err)
	}
	if fresh {
		t.Fatal("duplicate event id must not be fresh")
	}

	// Duplicate mark must not advance the cursor.
	cursor, err := store.Cursor(watchedAddr)
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	if cursor != "evt-1" {
		t.Fatalf("expected cursor evt-1, got %s", cursor)
	}
}

func TestCursorStoreUnknownAddress(t *testing.T) {
	store := testCursorStore(t)
	cursor, err := store.Cursor(watchedAddr)
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	if cursor != "" {
		t.Fatalf("expected empty cursor, got %q", cursor)
	}
}

func TestDaemonDispatchesEachEventOnce(t *testing.T) {
	store := testCursorStore(t)
	dispatcher := &recordingDispatcher{}
	daemon := testDaemon(t, store, dispatcher)

	ctx := context.Background()
	daemon.handle(ctx, rawEvent("evt-1", watchedAddr))
	// Replay of the same event after a reconnect.
	daemon.handle(ctx, rawEvent("evt-1", watchedAddr))
	daemon.handle(ctx, rawEvent("evt-2", watchedAddr))

	if dispatcher.count() != 2 {
		t.Fatalf("expected 2 dispatches, got %d", dispatcher.count())
	}
	stats := daemon.Stats()
	if stats.Dispatched != 2 || stats.Duplicates != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	cursor, err := store.Cursor(watchedAddr)
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	if cursor != "evt-2" {
		t.Fatalf("expected cursor evt-2, got %s", cursor)
	}
}

func TestDaemonDispatchFailureLeavesEventUnmarked(t *testing.T) {
	store := testCursorStore(t)
	dispatcher := &recordingDispatcher{err: fmt.Errorf("sink unavailable")}
	daemon := testDaemon(t, store, dispatcher)

	daemon.handle(context.Background(), rawEvent("evt-1", watchedAddr))
	seen, err := store.Seen("evt-1")
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if seen {
		t.Fatal("failed dispatch must not mark the event as seen")
	}

	// Once the sink recovers, the replayed event goes through.
	dispatcher.mu.Lock()
	dispatcher.err = nil
	dispatcher.mu.Unlock()
	daemon.handle(context.Background(), rawEvent("evt-1", watchedAddr))
	if dispatcher.count() != 1 {
		t.Fatalf("expected 1 dispatch after recovery, got %d", dispatcher.count())
	}
}

func TestDaemonIgnoresOtherAddressesAndHeartbeats(t *testing.T) {
	store := testCursorStore(t)
	dispatcher := &recordingDispatcher{}
	daemon := testDaemon(t, store, dispatcher)

	ctx := context.Background()
	daemon.handle(ctx, rawEvent("evt-1", "0x8617E340B3D01FA5F11F306F4090FD50E238070D"))
	daemon.handle(ctx, &sse.Event{Data: []byte("heartbeat")})
	daemon.handle(ctx, &sse.Event{Data: []byte("")})

	if dispatcher.count() != 0 {
		t.Fatalf("expected no dispatches, got %d", dispatcher.count())
	}
}

func TestDaemonSkipsUndecodableEvents(t *testing.T) {
	store := testCursorStore(t)
	dispatcher := &recordingDispatcher{}
	daemon := testDaemon(t, store, dispatcher)

	daemon.handle(context.Background(), &sse.Event{ID: []byte("evt-x"), Data: []byte("{not json")})
	if dispatcher.count() != 0 {
		t.Fatalf("expected no dispatches, got %d", dispatcher.count())
	}
	if daemon.Stats().Failures != 1 {
		t.Fatalf("expected failure counted, got %+v", daemon.Stats())
	}
}

func TestDaemonStartStopIdempotent(t *testing.T) {
	store := testCursorStore(t)
	daemon := testDaemon(t, store, &recordingDispatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := daemon.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if !daemon.IsRunning() {
		t.Fatal("daemon should be running")
	}
	daemon.Stop()
	daemon.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for daemon.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("daemon did not stop")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

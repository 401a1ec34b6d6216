// Package monitor consumes the aggregator's account event stream,
// deduplicates it and dispatches each event exactly once.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/r3labs/sse/v2"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
)

// Event is one account event from the stream.
type Event struct {
	ID        string          `json:"id"`
	Address   string          `json:"address"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Dispatcher receives each event exactly once, in stream order.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// LineDispatcher writes one JSON line per event. It backs `monitor run`.
type LineDispatcher struct {
	mu  sync.Mutex
	Out io.Writer
}

func (d *LineDispatcher) Dispatch(_ context.Context, event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err = fmt.Fprintln(d.Out, string(line))
	return err
}

// Config describes a daemon watching one address.
type Config struct {
	StreamURL  string
	APIKey     string
	Address    string
	MaxBackoff time.Duration

	// Diag receives reconnect and dispatch-failure diagnostics. Defaults
	// to io.Discard.
	Diag io.Writer
}

// Stats are cumulative counters for a daemon run.
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Duplicates int64 `json:"duplicates"`
	Failures   int64 `json:"failures"`
}

// Daemon subscribes to the event stream for a single address. Start and
// Stop are idempotent. On reconnect the server replays from the
// persisted cursor, and the dedup store guarantees the overlap is
// dispatched at most once.
type Daemon struct {
	cfg        Config
	cursors    *CursorStore
	dispatcher Dispatcher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	stats   Stats
}

func NewDaemon(cfg Config, cursors *CursorStore, dispatcher Dispatcher) (*Daemon, error) {
	if strings.TrimSpace(cfg.StreamURL) == "" {
		return nil, clierr.New(clierr.CodeValidation, "monitor stream url is required")
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, clierr.New(clierr.CodeValidation, "monitor address is required")
	}
	if cursors == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing cursor store")
	}
	if dispatcher == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing dispatcher")
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Diag == nil {
		cfg.Diag = io.Discard
	}
	return &Daemon{cfg: cfg, cursors: cursors, dispatcher: dispatcher}, nil
}

// Start launches the subscription loop. Calling Start on a running
// daemon is a no-op.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}

	cursor, err := d.cursors.Cursor(d.cfg.Address)
	if err != nil {
		d.mu.Unlock()
		return clierr.Wrap(clierr.CodeInternal, "load stream cursor", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	client := sse.NewClient(d.cfg.StreamURL)
	if d.cfg.APIKey != "" {
		client.Headers["Authorization"] = "Bearer " + d.cfg.APIKey
	}
	if cursor != "" {
		client.Headers["Last-Event-ID"] = cursor
	}
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 500 * time.Millisecond
	retry.MaxInterval = d.cfg.MaxBackoff
	retry.MaxElapsedTime = 0
	// Bound reconnects to the run context so Stop halts the retry loop.
	client.ReconnectStrategy = backoff.WithContext(retry, runCtx)
	client.ReconnectNotify = func(err error, wait time.Duration) {
		fmt.Fprintf(d.cfg.Diag, "monitor: stream disconnected (%v), reconnecting in %s\n", err, wait)
	}
	d.running = true
	d.cancel = cancel
	d.done = make(chan struct{})
	done := d.done
	d.mu.Unlock()

	go func() {
		defer close(done)
		err := client.SubscribeRawWithContext(runCtx, func(msg *sse.Event) {
			d.handle(runCtx, msg)
		})
		if err != nil && runCtx.Err() == nil {
			fmt.Fprintf(d.cfg.Diag, "monitor: subscription ended: %v\n", err)
		}
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()
	return nil
}

// Stop cancels the subscription and waits for the loop to exit. Calling
// Stop on a stopped daemon is a no-op.
func (d *Daemon) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

func (d *Daemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

// handle processes one raw stream message: decode, dedup, dispatch,
// then persist the seen-mark and cursor together. A dispatch failure
// leaves the event unmarked so the next replay retries it.
func (d *Daemon) handle(ctx context.Context, msg *sse.Event) {
	data := strings.TrimSpace(string(msg.Data))
	if data == "" || data == "heartbeat" {
		return
	}
	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		d.count(func(s *Stats) { s.Failures++ })
		fmt.Fprintf(d.cfg.Diag, "monitor: skipping undecodable event: %v\n", err)
		return
	}
	if event.ID == "" {
		event.ID = string(msg.ID)
	}
	if event.ID == "" {
		d.count(func(s *Stats) { s.Failures++ })
		fmt.Fprintln(d.cfg.Diag, "monitor: skipping event without id")
		return
	}
	if event.Address != "" && !strings.EqualFold(event.Address, d.cfg.Address) {
		return
	}

	seen, err := d.cursors.Seen(event.ID)
	if err != nil {
		d.count(func(s *Stats) { s.Failures++ })
		fmt.Fprintf(d.cfg.Diag, "monitor: dedup lookup failed for %s: %v\n", event.ID, err)
		return
	}
	if seen {
		d.count(func(s *Stats) { s.Duplicates++ })
		return
	}

	if err := d.dispatcher.Dispatch(ctx, event); err != nil {
		d.count(func(s *Stats) { s.Failures++ })
		fmt.Fprintf(d.cfg.Diag, "monitor: dispatch failed for %s: %v\n", event.ID, err)
		return
	}
	fresh, err := d.cursors.MarkDispatched(d.cfg.Address, event.ID, event.ID)
	if err != nil {
		fmt.Fprintf(d.cfg.Diag, "monitor: cursor update failed for %s: %v\n", event.ID, err)
		return
	}
	if fresh {
		d.count(func(s *Stats) { s.Dispatched++ })
	} else {
		d.count(func(s *Stats) { s.Duplicates++ })
	}
}

func (d *Daemon) count(apply func(*Stats)) {
	d.mu.Lock()
	apply(&d.stats)
	d.mu.Unlock()
}

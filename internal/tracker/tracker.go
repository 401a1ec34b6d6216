package tracker

import (
	"context"
	"sync"
	"time"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
)

// StatusLookup is the remote status collaborator.
type StatusLookup interface {
	OperationStatus(ctx context.Context, queryID string) (Status, *Result, error)
}

// Tracker polls operations until they reach a terminal state. Each token
// is polled independently; tracking many tokens does not serialize them.
type Tracker struct {
	lookup   StatusLookup
	store    *Store
	interval time.Duration
	maxPolls int
}

func New(lookup StatusLookup, store *Store, interval time.Duration, maxPolls int) *Tracker {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if maxPolls <= 0 {
		maxPolls = 40
	}
	return &Tracker{lookup: lookup, store: store, interval: interval, maxPolls: maxPolls}
}

// consecutive lookup failures tolerated before the poll loop gives up.
const maxLookupFailures = 5

// Await polls a correlation token until terminal, the poll budget runs
// out, or ctx is cancelled. An exhausted budget records Expired: unknown
// is distinct from an on-chain rejection. Cancellation leaves the stored
// state exactly as the last completed poll wrote it.
func (t *Tracker) Await(ctx context.Context, queryID string) (TrackedOperation, error) {
	current, err := t.store.Get(queryID)
	if err != nil {
		return TrackedOperation{}, clierr.Wrap(clierr.CodeNotFound, "load tracked operation", err)
	}
	if current.Status.Terminal() {
		return current, nil
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	failures := 0
	for poll := 0; poll < t.maxPolls; poll++ {
		status, result, err := t.lookup.OperationStatus(ctx, queryID)
		if err != nil {
			if ctx.Err() != nil {
				return current, clierr.Wrap(clierr.CodeUnavailable, "status poll cancelled", ctx.Err())
			}
			failures++
			if failures >= maxLookupFailures {
				expired, terr := t.store.Transition(queryID, StatusExpired, &Result{Description: "status lookup unreachable"})
				if terr != nil {
					return current, clierr.Wrap(clierr.CodeInternal, "record expired operation", terr)
				}
				return expired, clierr.Wrap(clierr.CodeExpired, "status lookup unreachable, operation marked expired", err)
			}
		} else {
			failures = 0
			current, err = t.store.Transition(queryID, status, result)
			if err != nil {
				return current, clierr.Wrap(clierr.CodeInternal, "record operation state", err)
			}
			if current.Status.Terminal() {
				return current, nil
			}
		}

		select {
		case <-ctx.Done():
			return current, clierr.Wrap(clierr.CodeUnavailable, "status poll cancelled", ctx.Err())
		case <-ticker.C:
		}
	}

	expired, err := t.store.Transition(queryID, StatusExpired, &Result{Description: "poll budget exhausted before a terminal state"})
	if err != nil {
		return current, clierr.Wrap(clierr.CodeInternal, "record expired operation", err)
	}
	return expired, nil
}

// AwaitResult pairs an operation with the error its poll loop ended with.
type AwaitResult struct {
	Operation TrackedOperation
	Err       error
}

// AwaitAll tracks many tokens concurrently. Results arrive in input
// order; a slow token never blocks polling of the others.
func (t *Tracker) AwaitAll(ctx context.Context, queryIDs []string) []AwaitResult {
	results := make([]AwaitResult, len(queryIDs))
	var wg sync.WaitGroup
	for i, queryID := range queryIDs {
		wg.Add(1)
		go func(i int, queryID string) {
			defer wg.Done()
			operation, err := t.Await(ctx, queryID)
			results[i] = AwaitResult{Operation: operation, Err: err}
		}(i, queryID)
	}
	wg.Wait()
	return results
}

package gate

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
	"github.com/ggonzalez94/custody-cli/internal/op"
	"github.com/ggonzalez94/custody-cli/internal/tracker"
)

type fakeEmulator struct {
	report EmulationReport
	err    error
}

func (f *fakeEmulator) Emulate(context.Context, op.MessageEnvelope) (EmulationReport, error) {
	return f.report, f.err
}

type fakeSubmitter struct {
	queryID string
	err     error
	calls   int
}

func (f *fakeSubmitter) Submit(context.Context, op.SignedEnvelope) (string, error) {
	f.calls++
	return f.queryID, f.err
}

func testStore(t *testing.T) *tracker.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := tracker.OpenStore(filepath.Join(dir, "ops.db"), filepath.Join(dir, "ops.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func signedEnvelope(validUntil int64) op.SignedEnvelope {
	return op.SignedEnvelope{
		Envelope: op.MessageEnvelope{
			Kind:        op.KindTransfer,
			Destination: "0x52908400098527886E0F7030069857D2E4169EE7",
			Value:       big.NewInt(100),
			Bounce:      true,
			ValidUntil:  validUntil,
		},
		Signature:      make([]byte, 65),
		PublicKey:      make([]byte, 65),
		Sender:         "0x8617E340B3D01FA5F11F306F4090FD50E238070D",
		IdempotencyKey: "key-1",
	}
}

func okReport() EmulationReport {
	return EmulationReport{Success: true, FeeUnits: "1200000"}
}

func TestSubmitRequiresConfirmation(t *testing.T) {
	submitter := &fakeSubmitter{queryID: "q-1"}
	g := New(&fakeEmulator{report: okReport()}, submitter, testStore(t))

	_, err := g.ConfirmAndSubmit(context.Background(), signedEnvelope(0), okReport(), ConfirmOptions{})
	if !clierr.Is(err, clierr.CodeSafetyGate) {
		t.Fatalf("expected safety gate error, got %v", err)
	}
	if submitter.calls != 0 {
		t.Fatalf("submitter must not be called without confirmation, got %d calls", submitter.calls)
	}
}

func TestFailedEmulationAbortsWithoutForce(t *testing.T) {
	submitter := &fakeSubmitter{queryID: "q-1"}
	g := New(&fakeEmulator{}, submitter, testStore(t))
	report := EmulationReport{Success: false, FailureReason: "destination contract reverts"}

	_, err := g.ConfirmAndSubmit(context.Background(), signedEnvelope(0), report, ConfirmOptions{Confirmed: true})
	if !clierr.Is(err, clierr.CodeSafetyGate) {
		t.Fatalf("expected safety gate error, got %v", err)
	}
	if submitter.calls != 0 {
		t.Fatalf("failed emulation must block submission, got %d calls", submitter.calls)
	}
}

func TestForceOverridesFailedEmulation(t *testing.T) {
	submitter := &fakeSubmitter{queryID: "q-1"}
	g := New(&fakeEmulator{}, submitter, testStore(t))
	report := EmulationReport{Success: false, FailureReason: "destination contract reverts"}

	operation, err := g.ConfirmAndSubmit(context.Background(), signedEnvelope(0), report, ConfirmOptions{Confirmed: true, Force: true})
	if err != nil {
		t.Fatalf("forced submission failed: %v", err)
	}
	if operation.Status != tracker.StatusBroadcast {
		t.Fatalf("expected broadcast status, got %s", operation.Status)
	}
	if submitter.calls != 1 {
		t.Fatalf("expected one submission, got %d", submitter.calls)
	}
}

func TestSubmitRecordsOperation(t *testing.T) {
	store := testStore(t)
	submitter := &fakeSubmitter{queryID: "q-42"}
	g := New(&fakeEmulator{report: okReport()}, submitter, store)

	operation, err := g.ConfirmAndSubmit(context.Background(), signedEnvelope(0), okReport(), ConfirmOptions{Confirmed: true, WalletLabel: "hot"})
	if err != nil {
		t.Fatalf("ConfirmAndSubmit failed: %v", err)
	}
	if operation.QueryID != "q-42" || operation.WalletLabel != "hot" {
		t.Fatalf("unexpected operation: %+v", operation)
	}

	stored, err := store.Get("q-42")
	if err != nil {
		t.Fatalf("operation not recorded: %v", err)
	}
	if stored.Status != tracker.StatusBroadcast {
		t.Fatalf("expected stored broadcast status, got %s", stored.Status)
	}
}

func TestEnvelopeConsumedExactlyOnce(t *testing.T) {
	submitter := &fakeSubmitter{queryID: "q-1"}
	g := New(&fakeEmulator{report: okReport()}, submitter, testStore(t))
	signed := signedEnvelope(0)
	opts := ConfirmOptions{Confirmed: true}

	if _, err := g.ConfirmAndSubmit(context.Background(), signed, okReport(), opts); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	_, err := g.ConfirmAndSubmit(context.Background(), signed, okReport(), opts)
	if !clierr.Is(err, clierr.CodeSafetyGate) {
		t.Fatalf("expected safety gate on replay, got %v", err)
	}
	if submitter.calls != 1 {
		t.Fatalf("expected exactly one submission, got %d", submitter.calls)
	}
}

func TestRemoteRejectionIsTerminal(t *testing.T) {
	store := testStore(t)
	submitter := &fakeSubmitter{err: clierr.New(clierr.CodeRemoteRejected, "invalid signature")}
	g := New(&fakeEmulator{report: okReport()}, submitter, store)
	signed := signedEnvelope(0)

	operation, err := g.ConfirmAndSubmit(context.Background(), signed, okReport(), ConfirmOptions{Confirmed: true})
	if !clierr.Is(err, clierr.CodeRemoteRejected) {
		t.Fatalf("expected remote rejection, got %v", err)
	}
	if operation.Status != tracker.StatusFailed {
		t.Fatalf("expected failed status, got %s", operation.Status)
	}
	stored, err := store.Get(operation.QueryID)
	if err != nil {
		t.Fatalf("rejected operation not recorded: %v", err)
	}
	if stored.Status != tracker.StatusFailed {
		t.Fatalf("expected stored failed status, got %s", stored.Status)
	}

	// The rejected envelope stays consumed: no verbatim retry.
	_, err = g.ConfirmAndSubmit(context.Background(), signed, okReport(), ConfirmOptions{Confirmed: true})
	if !clierr.Is(err, clierr.CodeSafetyGate) {
		t.Fatalf("expected safety gate on retry of rejected envelope, got %v", err)
	}
	if submitter.calls != 1 {
		t.Fatalf("rejected envelope must never be resubmitted, got %d calls", submitter.calls)
	}
}

func TestUnknownOutcomeTrackedAsPending(t *testing.T) {
	store := testStore(t)
	submitter := &fakeSubmitter{err: clierr.New(clierr.CodeUnavailable, "connection reset")}
	g := New(&fakeEmulator{report: okReport()}, submitter, store)

	operation, err := g.ConfirmAndSubmit(context.Background(), signedEnvelope(0), okReport(), ConfirmOptions{Confirmed: true})
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if operation.QueryID != "key-1" {
		t.Fatalf("expected fallback to idempotency key, got %s", operation.QueryID)
	}
	stored, err := store.Get("key-1")
	if err != nil {
		t.Fatalf("pending operation not recorded: %v", err)
	}
	if stored.Status != tracker.StatusPending {
		t.Fatalf("expected pending status, got %s", stored.Status)
	}
}

func TestExpiredEnvelopeRejected(t *testing.T) {
	submitter := &fakeSubmitter{queryID: "q-1"}
	g := New(&fakeEmulator{report: okReport()}, submitter, testStore(t))
	g.now = func() time.Time { return time.Unix(2_000_000_000, 0) }

	_, err := g.ConfirmAndSubmit(context.Background(), signedEnvelope(1_999_999_000), okReport(), ConfirmOptions{Confirmed: true})
	if !clierr.Is(err, clierr.CodeExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
	if submitter.calls != 0 {
		t.Fatalf("expired envelope must not be submitted, got %d calls", submitter.calls)
	}
}

func TestAutoConfirmSkipsPrompt(t *testing.T) {
	submitter := &fakeSubmitter{queryID: "q-1"}
	g := New(&fakeEmulator{report: okReport()}, submitter, testStore(t))

	operation, err := g.ConfirmAndSubmit(context.Background(), signedEnvelope(0), okReport(), ConfirmOptions{AutoConfirm: true})
	if err != nil {
		t.Fatalf("auto-confirmed submission failed: %v", err)
	}
	if operation.Status != tracker.StatusBroadcast {
		t.Fatalf("expected broadcast status, got %s", operation.Status)
	}
}

func TestProposeWrapsEmulatorFailure(t *testing.T) {
	g := New(&fakeEmulator{err: clierr.New(clierr.CodeUnavailable, "emulator down")}, &fakeSubmitter{}, testStore(t))
	_, err := g.Propose(context.Background(), signedEnvelope(0).Envelope)
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

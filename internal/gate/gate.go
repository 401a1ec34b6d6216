// Package gate enforces the emulate-before-confirm safety policy between
// a built envelope and the submission service.
package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
	"github.com/ggonzalez94/custody-cli/internal/op"
	"github.com/ggonzalez94/custody-cli/internal/tracker"
)

// BalanceDelta is one predicted account movement from a dry run.
type BalanceDelta struct {
	Address string `json:"address"`
	Asset   string `json:"asset,omitempty"`
	Delta   string `json:"delta"`
}

// EmulationReport is the outcome of dry-running an envelope against
// current chain state.
type EmulationReport struct {
	Success       bool           `json:"success"`
	FailureReason string         `json:"failure_reason,omitempty"`
	FeeUnits      string         `json:"fee_units,omitempty"`
	BalanceDeltas []BalanceDelta `json:"balance_deltas,omitempty"`
	Risk          string         `json:"risk,omitempty"`
}

// Emulator dry-runs an envelope without committing it.
type Emulator interface {
	Emulate(ctx context.Context, envelope op.MessageEnvelope) (EmulationReport, error)
}

// Submitter broadcasts a signed envelope, returning a correlation token
// or an immediate rejection.
type Submitter interface {
	Submit(ctx context.Context, signed op.SignedEnvelope) (string, error)
}

// ConfirmOptions control the gate. Confirmed is the caller's explicit
// go-ahead for this envelope. AutoConfirm is the configured opt-out of
// the interactive gate. Force additionally overrides a failing
// emulation; it is the only way past one.
type ConfirmOptions struct {
	Confirmed   bool
	AutoConfirm bool
	Force       bool

	// WalletLabel tags the tracked record with the sending wallet.
	WalletLabel string
}

// Gate walks an envelope through Built -> Emulated -> {Submitted |
// Aborted}. Each envelope digest is consumed at most once: a rejected or
// submitted envelope can never be replayed verbatim.
type Gate struct {
	emulator  Emulator
	submitter Submitter
	store     *tracker.Store
	now       func() time.Time

	mu       sync.Mutex
	consumed map[[32]byte]bool
}

func New(emulator Emulator, submitter Submitter, store *tracker.Store) *Gate {
	return &Gate{
		emulator:  emulator,
		submitter: submitter,
		store:     store,
		now:       time.Now,
		consumed:  make(map[[32]byte]bool),
	}
}

// Propose emulates a built envelope. Every submission path goes through
// here first; there is no kind-specific exemption.
func (g *Gate) Propose(ctx context.Context, envelope op.MessageEnvelope) (EmulationReport, error) {
	report, err := g.emulator.Emulate(ctx, envelope)
	if err != nil {
		return EmulationReport{}, clierr.Wrap(clierr.CodeUnavailable, "emulate envelope", err)
	}
	return report, nil
}

// ConfirmAndSubmit submits a signed envelope after checking the safety
// policy against its emulation report. It records the operation in the
// tracker store before returning, including on partial failures.
func (g *Gate) ConfirmAndSubmit(ctx context.Context, signed op.SignedEnvelope, report EmulationReport, opts ConfirmOptions) (tracker.TrackedOperation, error) {
	envelope := signed.Envelope
	if envelope.ValidUntil > 0 && g.now().UTC().Unix() > envelope.ValidUntil {
		return tracker.TrackedOperation{}, clierr.New(clierr.CodeExpired, "envelope validity window has passed, rebuild the operation")
	}
	if len(signed.Signature) == 0 {
		return tracker.TrackedOperation{}, clierr.New(clierr.CodeValidation, "envelope is not signed")
	}

	if !report.Success && !opts.Force {
		reason := strings.TrimSpace(report.FailureReason)
		if reason == "" {
			reason = "emulation predicted failure"
		}
		return tracker.TrackedOperation{}, clierr.New(clierr.CodeSafetyGate, fmt.Sprintf("aborted: %s (pass --force to override)", reason))
	}
	if !opts.Confirmed && !opts.AutoConfirm {
		return tracker.TrackedOperation{}, clierr.New(clierr.CodeSafetyGate, "submission requires explicit confirmation")
	}

	if err := g.consume(envelope); err != nil {
		return tracker.TrackedOperation{}, err
	}

	queryID, err := g.submitter.Submit(ctx, signed)
	if queryID == "" {
		queryID = signed.IdempotencyKey
	}
	operation := tracker.NewTrackedOperation(queryID, opts.WalletLabel, string(envelope.Kind), g.now())

	if err != nil {
		if clierr.Is(err, clierr.CodeRemoteRejected) {
			// Terminal by policy: the envelope digest stays consumed and
			// the caller must rebuild to retry.
			operation.Status = tracker.StatusFailed
			operation.Result = &tracker.Result{Description: err.Error()}
			if g.store != nil {
				_ = g.store.Put(operation)
			}
			return operation, err
		}
		// Outcome unknown: the message may or may not have reached the
		// network. Record it pending so the tracker resolves it.
		if g.store != nil {
			_ = g.store.Put(operation)
		}
		return operation, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("submission outcome unknown for %s, tracking as %s", envelope.Kind, queryID), err)
	}

	operation.Status = tracker.StatusBroadcast
	if g.store != nil {
		if err := g.store.Put(operation); err != nil {
			return operation, clierr.Wrap(clierr.CodeInternal, "record submitted operation", err)
		}
	}
	return operation, nil
}

// consume marks an envelope digest as used, rejecting reuse.
func (g *Gate) consume(envelope op.MessageEnvelope) error {
	digest := envelope.Digest()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.consumed[digest] {
		return clierr.New(clierr.CodeSafetyGate, "envelope already submitted, rebuild the operation to retry")
	}
	g.consumed[digest] = true
	return nil
}

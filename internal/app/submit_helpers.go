package app

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
	"github.com/ggonzalez94/custody-cli/internal/gate"
	"github.com/ggonzalez94/custody-cli/internal/keystore"
	"github.com/ggonzalez94/custody-cli/internal/model"
	"github.com/ggonzalez94/custody-cli/internal/op"
	"github.com/ggonzalez94/custody-cli/internal/registry"
	"github.com/ggonzalez94/custody-cli/internal/signer"
	"github.com/ggonzalez94/custody-cli/internal/tracker"
)

// submitFlags are the flags every submitting command shares.
type submitFlags struct {
	wallet   string
	password string
	yes      bool
	force    bool
	await    bool
}

func (f *submitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.wallet, "wallet", "", "Wallet label to send from")
	cmd.Flags().StringVar(&f.password, "password", "", "Wallet password (or CUSTODY_WALLET_PASSWORD)")
	cmd.Flags().BoolVar(&f.yes, "yes", false, "Confirm submission without prompting")
	cmd.Flags().BoolVar(&f.force, "force", false, "Submit even when emulation predicts failure")
	cmd.Flags().BoolVar(&f.await, "await", false, "Poll until the operation reaches a terminal state")
	_ = cmd.MarkFlagRequired("wallet")
}

func (f *submitFlags) resolvePassword() (string, error) {
	if f.password != "" {
		return f.password, nil
	}
	if v := os.Getenv("CUSTODY_WALLET_PASSWORD"); v != "" {
		return v, nil
	}
	return "", clierr.New(clierr.CodeUsage, "wallet password required: pass --password or set CUSTODY_WALLET_PASSWORD")
}

// submitOperation runs the full lifecycle for one operation: build,
// emulate, confirm, sign inside an unlock scope, submit, track.
func (s *runtimeState) submitOperation(cmd *cobra.Command, flags submitFlags, operation op.Operation) error {
	password, err := flags.resolvePassword()
	if err != nil {
		return err
	}
	wallets, err := s.openKeystore()
	if err != nil {
		return err
	}
	wallet, err := wallets.Get(flags.wallet)
	if err != nil {
		return err
	}
	opsStore, err := s.openOpsStore()
	if err != nil {
		return err
	}

	ctx, cancel := s.commandContext(cmd)
	defer cancel()

	walletState, err := s.client.WalletState(ctx, wallet.Address)
	if err != nil {
		return err
	}

	builder := op.NewBuilder(s.client, s.client, registry.Default(), s.settings.DomainSuffix)
	envelope, err := builder.Build(ctx, operation, walletState)
	if err != nil {
		return err
	}

	g := gate.New(s.client, s.client, opsStore)
	report, err := g.Propose(ctx, envelope)
	if err != nil {
		return err
	}

	preview := previewOf(envelope)
	confirmed := flags.yes
	if !confirmed && !s.settings.AutoConfirm && (report.Success || flags.force) {
		confirmed, err = s.promptConfirm(cmd, preview, report)
		if err != nil {
			return err
		}
	}

	var signed op.SignedEnvelope
	err = wallets.Unlock(flags.wallet, password, func(key *keystore.UnlockedKey) error {
		var signErr error
		signed, signErr = signer.SignEnvelope(key, envelope)
		return signErr
	})
	if err != nil {
		return err
	}

	tracked, err := g.ConfirmAndSubmit(ctx, signed, report, gate.ConfirmOptions{
		Confirmed:   confirmed,
		AutoConfirm: s.settings.AutoConfirm,
		Force:       flags.force,
		WalletLabel: flags.wallet,
	})
	if err != nil {
		return err
	}

	if flags.await {
		awaitCtx, awaitCancel := context.WithTimeout(cmd.Context(), awaitBudget(s.settings.PollInterval, s.settings.MaxPolls))
		defer awaitCancel()
		tr := tracker.New(s.client, opsStore, s.settings.PollInterval, s.settings.MaxPolls)
		tracked, err = tr.Await(awaitCtx, tracked.QueryID)
		if err != nil {
			return err
		}
	}

	view := model.SubmissionView{Preview: preview, Emulation: report, Operation: tracked}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil, false)
}

// promptConfirm shows the envelope preview and emulation verdict on
// stderr and reads a yes/no answer from stdin.
func (s *runtimeState) promptConfirm(cmd *cobra.Command, preview model.MessagePreview, report gate.EmulationReport) (bool, error) {
	w := s.runner.stderr
	fmt.Fprintf(w, "about to submit %s\n", preview.Kind)
	fmt.Fprintf(w, "  destination: %s\n", preview.Destination)
	fmt.Fprintf(w, "  value:       %s minimal units\n", preview.Value)
	fmt.Fprintf(w, "  bounce:      %v\n", preview.Bounce)
	if report.FeeUnits != "" {
		fmt.Fprintf(w, "  est. fee:    %s minimal units\n", report.FeeUnits)
	}
	if !report.Success {
		fmt.Fprintf(w, "  WARNING: emulation predicts failure: %s\n", report.FailureReason)
	}
	fmt.Fprint(w, "proceed? [y/N]: ")

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func (s *runtimeState) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := s.settings.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// Build plus emulate plus submit is several round trips.
	return context.WithTimeout(cmd.Context(), 4*timeout)
}

func awaitBudget(interval time.Duration, maxPolls int) time.Duration {
	return time.Duration(maxPolls+2) * interval * 2
}

func previewOf(envelope op.MessageEnvelope) model.MessagePreview {
	digest := envelope.Digest()
	return model.MessagePreview{
		Kind:        string(envelope.Kind),
		Destination: envelope.Destination,
		Value:       envelope.Value.String(),
		Bounce:      envelope.Bounce,
		ValidUntil:  envelope.ValidUntil,
		PayloadSize: len(envelope.Payload),
		Digest:      hex.EncodeToString(digest[:]),
	}
}

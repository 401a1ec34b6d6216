// Package app wires the command tree: configuration, the aggregator
// client, the local stores and the output envelope.
package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/custody-cli/internal/aggregator"
	"github.com/ggonzalez94/custody-cli/internal/config"
	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
	"github.com/ggonzalez94/custody-cli/internal/keystore"
	"github.com/ggonzalez94/custody-cli/internal/model"
	"github.com/ggonzalez94/custody-cli/internal/monitor"
	"github.com/ggonzalez94/custody-cli/internal/out"
	"github.com/ggonzalez94/custody-cli/internal/schema"
	"github.com/ggonzalez94/custody-cli/internal/tracker"
	"github.com/ggonzalez94/custody-cli/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithStreams(os.Stdout, os.Stderr, os.Stdin)
}

func NewRunnerWithStreams(stdout, stderr io.Writer, stdin io.Reader) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		stdin:  stdin,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string

	client      *aggregator.Client
	wallets     *keystore.Store
	opsStore    *tracker.Store
	cursorStore *monitor.CursorStore
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SetIn(r.stdin)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	state.closeStores()
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Wallet custody and transaction lifecycle CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.lastCommand = trimRootPath(cmd.CommandPath())
			if s.client == nil {
				s.client = aggregator.New(settings.AggregatorURL, settings.AggregatorAPIKey, settings.Timeout, settings.Retries)
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Aggregator request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per aggregator read")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newWalletCommand())
	cmd.AddCommand(s.newTransferCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newLiquidityCommand())
	cmd.AddCommand(s.newStakeCommand())
	cmd.AddCommand(s.newUnstakeCommand())
	cmd.AddCommand(s.newLendCommand())
	cmd.AddCommand(s.newFarmCommand())
	cmd.AddCommand(s.newOpsCommand())
	cmd.AddCommand(s.newMonitorCommand())
	cmd.AddCommand(s.newPoolsCommand())
	cmd.AddCommand(s.newTokensCommand())
	cmd.AddCommand(s.newQuoteCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), doc, nil, false)
		},
	}
	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Short())
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) openKeystore() (*keystore.Store, error) {
	if s.wallets != nil {
		return s.wallets, nil
	}
	store, err := keystore.Open(s.settings.KeystoreDir, gethkeystore.StandardScryptN, gethkeystore.StandardScryptP)
	if err != nil {
		return nil, err
	}
	s.wallets = store
	return store, nil
}

func (s *runtimeState) openOpsStore() (*tracker.Store, error) {
	if s.opsStore != nil {
		return s.opsStore, nil
	}
	store, err := tracker.OpenStore(s.settings.OpsDBPath, s.settings.OpsLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open operation store", err)
	}
	s.opsStore = store
	return store, nil
}

func (s *runtimeState) openCursorStore() (*monitor.CursorStore, error) {
	if s.cursorStore != nil {
		return s.cursorStore, nil
	}
	store, err := monitor.OpenCursorStore(s.settings.CursorDBPath, s.settings.CursorLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open cursor store", err)
	}
	s.cursorStore = store
	return store, nil
}

func (s *runtimeState) closeStores() {
	if s.opsStore != nil {
		_ = s.opsStore.Close()
	}
	if s.cursorStore != nil {
		_ = s.cursorStore.Close()
	}
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := clierr.Code(code).Kind()
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

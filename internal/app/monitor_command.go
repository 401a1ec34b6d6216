package app

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
	"github.com/ggonzalez94/custody-cli/internal/id"
	"github.com/ggonzalez94/custody-cli/internal/monitor"
)

func (s *runtimeState) newMonitorCommand() *cobra.Command {
	root := &cobra.Command{Use: "monitor", Short: "Account event stream daemon"}
	root.AddCommand(s.newMonitorRunCommand())
	root.AddCommand(s.newMonitorPruneCommand())
	return root
}

func (s *runtimeState) newMonitorRunCommand() *cobra.Command {
	var wallet, address string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream account events to stdout, one JSON line each",
		Long: "Subscribes to the aggregator event stream for one account and prints\n" +
			"each event exactly once. The stream position is persisted, so a\n" +
			"restarted daemon resumes without replaying dispatched events.",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := address
			if target == "" && wallet != "" {
				wallets, err := s.openKeystore()
				if err != nil {
					return err
				}
				w, err := wallets.Get(wallet)
				if err != nil {
					return err
				}
				target = w.Address
			}
			if target == "" {
				return clierr.New(clierr.CodeUsage, "--wallet or --address is required")
			}
			canonical, err := id.ParseAddress(target)
			if err != nil {
				return err
			}

			cursors, err := s.openCursorStore()
			if err != nil {
				return err
			}
			daemon, err := monitor.NewDaemon(monitor.Config{
				StreamURL:  s.settings.StreamURL,
				APIKey:     s.settings.AggregatorAPIKey,
				Address:    canonical,
				MaxBackoff: s.settings.MonitorMaxBackoff,
				Diag:       s.runner.stderr,
			}, cursors, &monitor.LineDispatcher{Out: s.runner.stdout})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return daemon.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "Watch a stored wallet's address")
	cmd.Flags().StringVar(&address, "address", "", "Watch an explicit address")
	return cmd
}

func (s *runtimeState) newMonitorPruneCommand() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop old dedup entries from the cursor store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cursors, err := s.openCursorStore()
			if err != nil {
				return err
			}
			removed, err := cursors.PruneSeen(grace)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "prune dedup entries", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{"removed": removed}, nil, false)
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 30*24*time.Hour, "Keep dedup entries newer than this")
	return cmd
}

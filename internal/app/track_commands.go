package app

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/custody-cli/internal/tracker"
)

func (s *runtimeState) newOpsCommand() *cobra.Command {
	root := &cobra.Command{Use: "ops", Short: "Tracked operation lifecycle"}
	root.AddCommand(s.newOpsListCommand())
	root.AddCommand(s.newOpsStatusCommand())
	root.AddCommand(s.newOpsAwaitCommand())
	root.AddCommand(s.newOpsArchiveCommand())
	return root
}

func (s *runtimeState) newOpsListCommand() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked operations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openOpsStore()
			if err != nil {
				return err
			}
			operations, err := store.List(status, limit)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), operations, nil, false)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, broadcast, confirmed, failed, expired)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum operations to return")
	return cmd
}

func (s *runtimeState) newOpsStatusCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "status <query-id>",
		Short: "Show one tracked operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openOpsStore()
			if err != nil {
				return err
			}
			operation, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if refresh && !operation.Status.Terminal() {
				ctx, cancel := s.commandContext(cmd)
				defer cancel()
				status, result, lookupErr := s.client.OperationStatus(ctx, args[0])
				if lookupErr == nil {
					operation, err = store.Transition(args[0], status, result)
					if err != nil {
						return err
					}
				}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), operation, nil, false)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Poll the aggregator once before reporting")
	return cmd
}

func (s *runtimeState) newOpsAwaitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "await <query-id> [query-id...]",
		Short: "Poll operations until they reach a terminal state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openOpsStore()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), awaitBudget(s.settings.PollInterval, s.settings.MaxPolls))
			defer cancel()

			tr := tracker.New(s.client, store, s.settings.PollInterval, s.settings.MaxPolls)
			if len(args) == 1 {
				operation, err := tr.Await(ctx, args[0])
				if err != nil {
					return err
				}
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), operation, nil, false)
			}

			results := tr.AwaitAll(ctx, args)
			operations := make([]tracker.TrackedOperation, 0, len(results))
			warnings := []string(nil)
			partial := false
			for _, res := range results {
				operations = append(operations, res.Operation)
				if res.Err != nil {
					warnings = append(warnings, res.Err.Error())
					partial = true
				}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), operations, warnings, partial)
		},
	}
	return cmd
}

func (s *runtimeState) newOpsArchiveCommand() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Delete terminal operations older than the grace period",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openOpsStore()
			if err != nil {
				return err
			}
			removed, err := store.Archive(grace)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{"removed": removed}, nil, false)
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 7*24*time.Hour, "Keep terminal operations newer than this")
	return cmd
}

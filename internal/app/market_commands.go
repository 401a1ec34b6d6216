package app

import (
	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
	"github.com/ggonzalez94/custody-cli/internal/id"
)

func (s *runtimeState) newPoolsCommand() *cobra.Command {
	var token string
	var limit int
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "List liquidity pools known to the aggregator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			pools, err := s.client.Pools(ctx, token, limit)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), pools, nil, false)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Filter pools containing a token address")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum pools to return")
	return cmd
}

func (s *runtimeState) newTokensCommand() *cobra.Command {
	var query string
	var limit int
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Search the aggregator token registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			tokens, err := s.client.Tokens(ctx, query, limit)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), tokens, nil, false)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Symbol or name to search for")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum tokens to return")
	return cmd
}

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var tokenIn, tokenOut, amountIn string
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Get an indicative swap quote (no commitment)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tokenIn == "" || tokenOut == "" {
				return clierr.New(clierr.CodeUsage, "--token-in and --token-out are required")
			}
			if _, err := id.ParseAmount(amountIn); err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			quote, err := s.client.Quote(ctx, tokenIn, tokenOut, amountIn)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), quote, nil, false)
		},
	}
	cmd.Flags().StringVar(&tokenIn, "token-in", "", "Token to sell")
	cmd.Flags().StringVar(&tokenOut, "token-out", "", "Token to buy")
	cmd.Flags().StringVar(&amountIn, "amount-in", "", "Input amount in minimal units")
	_ = cmd.MarkFlagRequired("amount-in")
	return cmd
}

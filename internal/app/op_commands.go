package app

import (
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/custody-cli/internal/id"
	"github.com/ggonzalez94/custody-cli/internal/op"
)

func (s *runtimeState) newTransferCommand() *cobra.Command {
	var flags submitFlags
	var to, amount, comment string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send native coins to an address or domain name",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := id.ParseAmount(amount)
			if err != nil {
				return err
			}
			return s.submitOperation(cmd, flags, op.Transfer{To: to, Amount: value, Comment: comment})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&to, "to", "", "Destination address or domain name")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in minimal units")
	cmd.Flags().StringVar(&comment, "comment", "", "Optional transfer comment")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	var flags submitFlags
	var pool, tokenIn, tokenOut, amountIn, minOut string
	var slippageBps int64
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap tokens through a pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := id.ParseAmount(amountIn)
			if err != nil {
				return err
			}
			min, err := id.ParseNonNegative(minOut)
			if err != nil {
				return err
			}
			return s.submitOperation(cmd, flags, op.Swap{
				Pool:        pool,
				TokenIn:     tokenIn,
				TokenOut:    tokenOut,
				AmountIn:    in,
				MinOut:      min,
				SlippageBps: slippageBps,
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&pool, "pool", "", "Pool contract address")
	cmd.Flags().StringVar(&tokenIn, "token-in", "", "Token to sell")
	cmd.Flags().StringVar(&tokenOut, "token-out", "", "Token to buy")
	cmd.Flags().StringVar(&amountIn, "amount-in", "", "Input amount in minimal units")
	cmd.Flags().StringVar(&minOut, "min-out", "", "Minimum acceptable output in minimal units")
	cmd.Flags().Int64Var(&slippageBps, "slippage-bps", 100, "Slippage tolerance in basis points")
	_ = cmd.MarkFlagRequired("pool")
	_ = cmd.MarkFlagRequired("token-in")
	_ = cmd.MarkFlagRequired("token-out")
	_ = cmd.MarkFlagRequired("amount-in")
	return cmd
}

func (s *runtimeState) newLiquidityCommand() *cobra.Command {
	root := &cobra.Command{Use: "liquidity", Short: "DEX liquidity positions"}

	var provideFlags submitFlags
	var providePool, amountA, amountB, minLP string
	provideCmd := &cobra.Command{
		Use:   "provide",
		Short: "Deposit both sides of a pool pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := id.ParseAmount(amountA)
			if err != nil {
				return err
			}
			b, err := id.ParseAmount(amountB)
			if err != nil {
				return err
			}
			lp, err := id.ParseNonNegative(minLP)
			if err != nil {
				return err
			}
			return s.submitOperation(cmd, provideFlags, op.ProvideLiquidity{Pool: providePool, AmountA: a, AmountB: b, MinLP: lp})
		},
	}
	provideFlags.register(provideCmd)
	provideCmd.Flags().StringVar(&providePool, "pool", "", "Pool contract address")
	provideCmd.Flags().StringVar(&amountA, "amount-a", "", "Token A amount in minimal units")
	provideCmd.Flags().StringVar(&amountB, "amount-b", "", "Token B amount in minimal units")
	provideCmd.Flags().StringVar(&minLP, "min-lp", "", "Minimum LP tokens to accept")
	_ = provideCmd.MarkFlagRequired("pool")
	_ = provideCmd.MarkFlagRequired("amount-a")
	_ = provideCmd.MarkFlagRequired("amount-b")
	root.AddCommand(provideCmd)

	var withdrawFlags submitFlags
	var withdrawPool, lpAmount, minA, minB string
	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Burn LP tokens and withdraw the pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			lp, err := id.ParseAmount(lpAmount)
			if err != nil {
				return err
			}
			a, err := id.ParseNonNegative(minA)
			if err != nil {
				return err
			}
			b, err := id.ParseNonNegative(minB)
			if err != nil {
				return err
			}
			return s.submitOperation(cmd, withdrawFlags, op.WithdrawLiquidity{Pool: withdrawPool, LPAmount: lp, MinA: a, MinB: b})
		},
	}
	withdrawFlags.register(withdrawCmd)
	withdrawCmd.Flags().StringVar(&withdrawPool, "pool", "", "Pool contract address")
	withdrawCmd.Flags().StringVar(&lpAmount, "lp-amount", "", "LP tokens to burn in minimal units")
	withdrawCmd.Flags().StringVar(&minA, "min-a", "", "Minimum token A to accept")
	withdrawCmd.Flags().StringVar(&minB, "min-b", "", "Minimum token B to accept")
	_ = withdrawCmd.MarkFlagRequired("pool")
	_ = withdrawCmd.MarkFlagRequired("lp-amount")
	root.AddCommand(withdrawCmd)

	return root
}

func (s *runtimeState) newStakeCommand() *cobra.Command {
	var flags submitFlags
	var validator, amount string
	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Delegate native coins to a validator pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := id.ParseAmount(amount)
			if err != nil {
				return err
			}
			return s.submitOperation(cmd, flags, op.Stake{Validator: validator, Amount: value})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&validator, "validator", "", "Validator pool address (default pool when omitted)")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in minimal units")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newUnstakeCommand() *cobra.Command {
	var flags submitFlags
	var validator, amount string
	cmd := &cobra.Command{
		Use:   "unstake",
		Short: "Withdraw a delegation from a validator pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := id.ParseAmount(amount)
			if err != nil {
				return err
			}
			return s.submitOperation(cmd, flags, op.Unstake{Validator: validator, Amount: value})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&validator, "validator", "", "Validator pool address (default pool when omitted)")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in minimal units")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newLendCommand() *cobra.Command {
	root := &cobra.Command{Use: "lend", Short: "Lending market positions"}

	var depositFlags submitFlags
	var depositMarket, depositAmount string
	depositCmd := &cobra.Command{
		Use:   "deposit",
		Short: "Supply an asset to a lending market",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := id.ParseAmount(depositAmount)
			if err != nil {
				return err
			}
			return s.submitOperation(cmd, depositFlags, op.LendDeposit{Market: depositMarket, Amount: value})
		},
	}
	depositFlags.register(depositCmd)
	depositCmd.Flags().StringVar(&depositMarket, "market", "", "Lending market address")
	depositCmd.Flags().StringVar(&depositAmount, "amount", "", "Amount in minimal units")
	_ = depositCmd.MarkFlagRequired("market")
	_ = depositCmd.MarkFlagRequired("amount")
	root.AddCommand(depositCmd)

	var withdrawFlags submitFlags
	var withdrawMarket, withdrawAmount string
	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Redeem a supplied asset from a lending market",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := id.ParseAmount(withdrawAmount)
			if err != nil {
				return err
			}
			return s.submitOperation(cmd, withdrawFlags, op.LendWithdraw{Market: withdrawMarket, Amount: value})
		},
	}
	withdrawFlags.register(withdrawCmd)
	withdrawCmd.Flags().StringVar(&withdrawMarket, "market", "", "Lending market address")
	withdrawCmd.Flags().StringVar(&withdrawAmount, "amount", "", "Amount in minimal units")
	_ = withdrawCmd.MarkFlagRequired("market")
	_ = withdrawCmd.MarkFlagRequired("amount")
	root.AddCommand(withdrawCmd)

	return root
}

func (s *runtimeState) newFarmCommand() *cobra.Command {
	root := &cobra.Command{Use: "farm", Short: "Farming positions"}

	var lockFlags submitFlags
	var lockFarm, lockAmount string
	var lockDays int64
	lockCmd := &cobra.Command{
		Use:   "lock",
		Short: "Lock tokens into a farming position",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := id.ParseAmount(lockAmount)
			if err != nil {
				return err
			}
			return s.submitOperation(cmd, lockFlags, op.FarmLock{Farm: lockFarm, Amount: value, LockDays: lockDays})
		},
	}
	lockFlags.register(lockCmd)
	lockCmd.Flags().StringVar(&lockFarm, "farm", "", "Farm contract address")
	lockCmd.Flags().StringVar(&lockAmount, "amount", "", "Amount in minimal units")
	lockCmd.Flags().Int64Var(&lockDays, "lock-days", 0, "Lock duration in days (0 for flexible)")
	_ = lockCmd.MarkFlagRequired("farm")
	_ = lockCmd.MarkFlagRequired("amount")
	root.AddCommand(lockCmd)

	var withdrawFlags submitFlags
	var withdrawFarm, withdrawAmount string
	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Exit a farming position",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := id.ParseAmount(withdrawAmount)
			if err != nil {
				return err
			}
			return s.submitOperation(cmd, withdrawFlags, op.FarmWithdraw{Farm: withdrawFarm, Amount: value})
		},
	}
	withdrawFlags.register(withdrawCmd)
	withdrawCmd.Flags().StringVar(&withdrawFarm, "farm", "", "Farm contract address")
	withdrawCmd.Flags().StringVar(&withdrawAmount, "amount", "", "Amount in minimal units")
	_ = withdrawCmd.MarkFlagRequired("farm")
	_ = withdrawCmd.MarkFlagRequired("amount")
	root.AddCommand(withdrawCmd)

	return root
}

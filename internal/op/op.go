// Package op models user-requested on-chain operations as a closed set
// of variants and builds them into unsigned message envelopes.
package op

import (
	"fmt"
	"math/big"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
)

// Kind tags an operation variant. The set is closed: dispatch is a type
// switch over the variants below, not a string lookup.
type Kind string

const (
	KindTransfer          Kind = "transfer"
	KindSwap              Kind = "swap"
	KindProvideLiquidity  Kind = "dex-provide-liquidity"
	KindWithdrawLiquidity Kind = "dex-withdraw-liquidity"
	KindStake             Kind = "stake"
	KindUnstake           Kind = "unstake"
	KindLendDeposit       Kind = "lending-deposit"
	KindLendWithdraw      Kind = "lending-withdraw"
	KindFarmLock          Kind = "farm-lock"
	KindFarmWithdraw      Kind = "farm-withdraw"
)

// Operation is the discriminated union of buildable requests. Each
// variant carries only its required fields. The unexported method seals
// the set to this package.
type Operation interface {
	Kind() Kind
	validate() error
}

// Transfer moves native coins to a counterparty wallet or domain name.
type Transfer struct {
	To      string
	Amount  *big.Int
	Comment string
}

func (t Transfer) Kind() Kind { return KindTransfer }

func (t Transfer) validate() error {
	if t.To == "" {
		return clierr.New(clierr.CodeValidation, "transfer destination is required")
	}
	return requirePositive("amount", t.Amount)
}

// Swap trades one token for another through an aggregator-listed pool.
type Swap struct {
	Pool        string
	TokenIn     string
	TokenOut    string
	AmountIn    *big.Int
	MinOut      *big.Int
	SlippageBps int64
}

func (s Swap) Kind() Kind { return KindSwap }

func (s Swap) validate() error {
	if err := requirePositive("amount_in", s.AmountIn); err != nil {
		return err
	}
	if err := requireNonNegative("min_out", s.MinOut); err != nil {
		return err
	}
	if s.SlippageBps < 0 || s.SlippageBps > 10_000 {
		return clierr.New(clierr.CodeValidation, "slippage must be between 0 and 10000 bps")
	}
	return nil
}

// ProvideLiquidity deposits both sides of a pool pair.
type ProvideLiquidity struct {
	Pool    string
	AmountA *big.Int
	AmountB *big.Int
	MinLP   *big.Int
}

func (p ProvideLiquidity) Kind() Kind { return KindProvideLiquidity }

func (p ProvideLiquidity) validate() error {
	if err := requirePositive("amount_a", p.AmountA); err != nil {
		return err
	}
	if err := requirePositive("amount_b", p.AmountB); err != nil {
		return err
	}
	return requireNonNegative("min_lp", p.MinLP)
}

// WithdrawLiquidity burns LP tokens and withdraws the pair.
type WithdrawLiquidity struct {
	Pool     string
	LPAmount *big.Int
	MinA     *big.Int
	MinB     *big.Int
}

func (w WithdrawLiquidity) Kind() Kind { return KindWithdrawLiquidity }

func (w WithdrawLiquidity) validate() error {
	if err := requirePositive("lp_amount", w.LPAmount); err != nil {
		return err
	}
	if err := requireNonNegative("min_a", w.MinA); err != nil {
		return err
	}
	return requireNonNegative("min_b", w.MinB)
}

// Stake delegates native coins to a validator pool.
type Stake struct {
	Validator string
	Amount    *big.Int
}

func (s Stake) Kind() Kind { return KindStake }

func (s Stake) validate() error {
	return requirePositive("amount", s.Amount)
}

// Unstake withdraws a delegation.
type Unstake struct {
	Validator string
	Amount    *big.Int
}

func (u Unstake) Kind() Kind { return KindUnstake }

func (u Unstake) validate() error {
	return requirePositive("amount", u.Amount)
}

// LendDeposit supplies an asset to a lending market.
type LendDeposit struct {
	Market string
	Amount *big.Int
}

func (l LendDeposit) Kind() Kind { return KindLendDeposit }

func (l LendDeposit) validate() error {
	if l.Market == "" {
		return clierr.New(clierr.CodeValidation, "lending market is required")
	}
	return requirePositive("amount", l.Amount)
}

// LendWithdraw redeems a supplied asset from a lending market.
type LendWithdraw struct {
	Market string
	Amount *big.Int
}

func (l LendWithdraw) Kind() Kind { return KindLendWithdraw }

func (l LendWithdraw) validate() error {
	if l.Market == "" {
		return clierr.New(clierr.CodeValidation, "lending market is required")
	}
	return requirePositive("amount", l.Amount)
}

// FarmLock locks tokens into a farming position.
type FarmLock struct {
	Farm     string
	Amount   *big.Int
	LockDays int64
}

func (f FarmLock) Kind() Kind { return KindFarmLock }

func (f FarmLock) validate() error {
	if err := requirePositive("amount", f.Amount); err != nil {
		return err
	}
	if f.LockDays < 0 {
		return clierr.New(clierr.CodeValidation, "lock_days must be non-negative")
	}
	return nil
}

// FarmWithdraw exits a farming position.
type FarmWithdraw struct {
	Farm   string
	Amount *big.Int
}

func (f FarmWithdraw) Kind() Kind { return KindFarmWithdraw }

func (f FarmWithdraw) validate() error {
	return requirePositive("amount", f.Amount)
}

func requirePositive(field string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("%s must be a positive integer in minimal units", field))
	}
	return nil
}

func requireNonNegative(field string, v *big.Int) error {
	if v != nil && v.Sign() < 0 {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("%s must be non-negative", field))
	}
	return nil
}

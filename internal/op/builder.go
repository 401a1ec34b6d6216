package op

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
	"github.com/ggonzalez94/custody-cli/internal/id"
	"github.com/ggonzalez94/custody-cli/internal/registry"
)

// AddressStatusLookup reports whether an account is deployed on-chain.
type AddressStatusLookup interface {
	AddressStatus(ctx context.Context, address string) (id.AddressStatus, error)
}

// NameResolver resolves a domain reference to a wallet address.
type NameResolver interface {
	ResolveName(ctx context.Context, name string) (string, error)
}

// WalletState is the builder's best-effort view of the sending wallet.
// Balance may be nil when unknown; the remote side then owns the
// insufficient-balance rejection.
type WalletState struct {
	Address  string
	Deployed bool
	Balance  *big.Int
}

// Builder turns an Operation into an unsigned MessageEnvelope. Given the
// same operation, wallet state and collaborator answers, the output is
// byte-identical.
type Builder struct {
	status       AddressStatusLookup
	resolver     NameResolver
	catalog      *registry.Catalog
	domainSuffix string
	validity     time.Duration
	now          func() time.Time
}

func NewBuilder(status AddressStatusLookup, resolver NameResolver, catalog *registry.Catalog, domainSuffix string) *Builder {
	return &Builder{
		status:       status,
		resolver:     resolver,
		catalog:      catalog,
		domainSuffix: domainSuffix,
		validity:     5 * time.Minute,
		now:          time.Now,
	}
}

func (b *Builder) Build(ctx context.Context, operation Operation, state WalletState) (MessageEnvelope, error) {
	if operation == nil {
		return MessageEnvelope{}, clierr.New(clierr.CodeUsage, "missing operation")
	}
	if err := operation.validate(); err != nil {
		return MessageEnvelope{}, err
	}

	var (
		destination string
		value       *big.Int
		payload     []byte
		err         error
	)

	switch o := operation.(type) {
	case Transfer:
		destination, err = b.resolveDestination(ctx, o.To)
		if err != nil {
			return MessageEnvelope{}, err
		}
		value = o.Amount
		payload, err = encodeComment(o.Comment)
	case Swap:
		var entry registry.Entry
		entry, err = b.catalogEntry(o)
		if err != nil {
			return MessageEnvelope{}, err
		}
		destination, value = entry.Contract, entry.GasBudget
		payload, err = encodeSwap(entry.Opcode, o)
	case ProvideLiquidity:
		var entry registry.Entry
		entry, err = b.catalogEntry(o)
		if err != nil {
			return MessageEnvelope{}, err
		}
		destination, value = entry.Contract, entry.GasBudget
		payload, err = encodeProvideLiquidity(entry.Opcode, o)
	case WithdrawLiquidity:
		var entry registry.Entry
		entry, err = b.catalogEntry(o)
		if err != nil {
			return MessageEnvelope{}, err
		}
		destination, value = entry.Contract, entry.GasBudget
		payload, err = encodeWithdrawLiquidity(entry.Opcode, o)
	case Stake:
		var entry registry.Entry
		entry, err = b.catalogEntry(o)
		if err != nil {
			return MessageEnvelope{}, err
		}
		destination = entry.Contract
		if o.Validator != "" {
			destination, err = id.ParseAddress(o.Validator)
			if err != nil {
				return MessageEnvelope{}, err
			}
		}
		// Stake rides the delegated coins plus the fee headroom.
		value = new(big.Int).Add(o.Amount, entry.GasBudget)
		payload, err = encodeAmountOnly(entry.Opcode, o.Amount)
	case Unstake:
		var entry registry.Entry
		entry, err = b.catalogEntry(o)
		if err != nil {
			return MessageEnvelope{}, err
		}
		destination = entry.Contract
		if o.Validator != "" {
			destination, err = id.ParseAddress(o.Validator)
			if err != nil {
				return MessageEnvelope{}, err
			}
		}
		value = entry.GasBudget
		payload, err = encodeAmountOnly(entry.Opcode, o.Amount)
	case LendDeposit:
		var entry registry.Entry
		entry, err = b.catalogEntry(o)
		if err != nil {
			return MessageEnvelope{}, err
		}
		destination, value = entry.Contract, entry.GasBudget
		payload, err = encodeMarketAmount(entry.Opcode, o.Market, o.Amount)
	case LendWithdraw:
		var entry registry.Entry
		entry, err = b.catalogEntry(o)
		if err != nil {
			return MessageEnvelope{}, err
		}
		destination, value = entry.Contract, entry.GasBudget
		payload, err = encodeMarketAmount(entry.Opcode, o.Market, o.Amount)
	case FarmLock:
		var entry registry.Entry
		entry, err = b.catalogEntry(o)
		if err != nil {
			return MessageEnvelope{}, err
		}
		destination, value = entry.Contract, entry.GasBudget
		payload, err = encodeFarmLock(entry.Opcode, o)
	case FarmWithdraw:
		var entry registry.Entry
		entry, err = b.catalogEntry(o)
		if err != nil {
			return MessageEnvelope{}, err
		}
		destination, value = entry.Contract, entry.GasBudget
		payload, err = encodeFarmWithdraw(entry.Opcode, o)
	default:
		return MessageEnvelope{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported operation: %s", operation.Kind()))
	}
	if err != nil {
		return MessageEnvelope{}, err
	}

	if state.Balance != nil && value.Cmp(state.Balance) > 0 {
		return MessageEnvelope{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("operation needs %s minimal units but wallet balance is %s", value, state.Balance))
	}

	bounce, err := b.bounceFor(ctx, destination)
	if err != nil {
		return MessageEnvelope{}, err
	}

	return MessageEnvelope{
		Kind:        operation.Kind(),
		Destination: destination,
		Value:       new(big.Int).Set(value),
		Payload:     payload,
		Bounce:      bounce,
		ValidUntil:  b.now().UTC().Add(b.validity).Unix(),
	}, nil
}

// resolveDestination accepts an address or a domain reference. Resolution
// is attempted only when the strict suffix predicate holds; everything
// else must be a checksummed address.
func (b *Builder) resolveDestination(ctx context.Context, to string) (string, error) {
	if id.IsDomainReference(to, b.domainSuffix) {
		resolved, err := b.resolver.ResolveName(ctx, to)
		if err != nil {
			return "", clierr.Wrap(clierr.CodeValidation, fmt.Sprintf("resolve domain %s", to), err)
		}
		return id.ParseAddress(resolved)
	}
	return id.ParseAddress(to)
}

// bounceFor applies the mandatory bounce policy: a bounce-eligible
// message to an account that is not live would strand the funds in a
// bounce-pending state, so anything not reported active sends
// non-bouncing.
func (b *Builder) bounceFor(ctx context.Context, destination string) (bool, error) {
	status, err := b.status.AddressStatus(ctx, destination)
	if err != nil {
		return false, clierr.Wrap(clierr.CodeUnavailable, "look up destination address status", err)
	}
	return status == id.AddressActive, nil
}

func (b *Builder) catalogEntry(operation Operation) (registry.Entry, error) {
	entry, ok := b.catalog.Lookup(string(operation.Kind()))
	if !ok {
		return registry.Entry{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("operation %s is not in the catalog", operation.Kind()))
	}
	return entry, nil
}

var (
	typeAddress = mustABIType("address")
	typeUint256 = mustABIType("uint256")
	typeUint64  = mustABIType("uint64")
	typeString  = mustABIType("string")
)

func mustABIType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return ty
}

func packPayload(opcode uint32, args abi.Arguments, values ...any) ([]byte, error) {
	packed, err := args.Pack(values...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode operation payload", err)
	}
	out := make([]byte, 4, 4+len(packed))
	out[0] = byte(opcode >> 24)
	out[1] = byte(opcode >> 16)
	out[2] = byte(opcode >> 8)
	out[3] = byte(opcode)
	return append(out, packed...), nil
}

func encodeComment(comment string) ([]byte, error) {
	if comment == "" {
		return nil, nil
	}
	return packPayload(0, abi.Arguments{{Type: typeString}}, comment)
}

func encodeSwap(opcode uint32, o Swap) ([]byte, error) {
	pool, err := parsePayloadAddress("pool", o.Pool)
	if err != nil {
		return nil, err
	}
	tokenIn, err := parsePayloadAddress("token_in", o.TokenIn)
	if err != nil {
		return nil, err
	}
	tokenOut, err := parsePayloadAddress("token_out", o.TokenOut)
	if err != nil {
		return nil, err
	}
	return packPayload(opcode,
		abi.Arguments{{Type: typeAddress}, {Type: typeAddress}, {Type: typeAddress}, {Type: typeUint256}, {Type: typeUint256}, {Type: typeUint64}},
		pool, tokenIn, tokenOut, o.AmountIn, zeroIfNil(o.MinOut), uint64(o.SlippageBps))
}

func encodeProvideLiquidity(opcode uint32, o ProvideLiquidity) ([]byte, error) {
	pool, err := parsePayloadAddress("pool", o.Pool)
	if err != nil {
		return nil, err
	}
	return packPayload(opcode,
		abi.Arguments{{Type: typeAddress}, {Type: typeUint256}, {Type: typeUint256}, {Type: typeUint256}},
		pool, o.AmountA, o.AmountB, zeroIfNil(o.MinLP))
}

func encodeWithdrawLiquidity(opcode uint32, o WithdrawLiquidity) ([]byte, error) {
	pool, err := parsePayloadAddress("pool", o.Pool)
	if err != nil {
		return nil, err
	}
	return packPayload(opcode,
		abi.Arguments{{Type: typeAddress}, {Type: typeUint256}, {Type: typeUint256}, {Type: typeUint256}},
		pool, o.LPAmount, zeroIfNil(o.MinA), zeroIfNil(o.MinB))
}

func encodeAmountOnly(opcode uint32, amount *big.Int) ([]byte, error) {
	return packPayload(opcode, abi.Arguments{{Type: typeUint256}}, amount)
}

func encodeMarketAmount(opcode uint32, market string, amount *big.Int) ([]byte, error) {
	addr, err := parsePayloadAddress("market", market)
	if err != nil {
		return nil, err
	}
	return packPayload(opcode, abi.Arguments{{Type: typeAddress}, {Type: typeUint256}}, addr, amount)
}

func encodeFarmLock(opcode uint32, o FarmLock) ([]byte, error) {
	farm, err := parsePayloadAddress("farm", o.Farm)
	if err != nil {
		return nil, err
	}
	return packPayload(opcode, abi.Arguments{{Type: typeAddress}, {Type: typeUint256}, {Type: typeUint64}}, farm, o.Amount, uint64(o.LockDays))
}

func encodeFarmWithdraw(opcode uint32, o FarmWithdraw) ([]byte, error) {
	farm, err := parsePayloadAddress("farm", o.Farm)
	if err != nil {
		return nil, err
	}
	return packPayload(opcode, abi.Arguments{{Type: typeAddress}, {Type: typeUint256}}, farm, o.Amount)
}

func parsePayloadAddress(field, raw string) (common.Address, error) {
	canonical, err := id.ParseAddress(raw)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeValidation, fmt.Sprintf("invalid %s address", field), err)
	}
	return common.HexToAddress(canonical), nil
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

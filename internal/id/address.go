package id

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
)

// DefaultDomainSuffix is the recognized name-service suffix. A string is a
// domain reference if and only if it ends with this suffix; anything else
// (including arbitrary wallet labels) is not.
const DefaultDomainSuffix = ".eth"

// AddressStatus is the deployment state of an on-chain account as reported
// by the aggregator's address-status lookup.
type AddressStatus string

const (
	AddressUninitialized AddressStatus = "uninitialized"
	AddressActive        AddressStatus = "active"
	AddressUnknown       AddressStatus = "unknown"
)

// ParseAddress validates input against the chain's checksum format and
// returns the canonical checksummed form. Mixed-case input must carry a
// valid EIP-55 checksum; all-lowercase and all-uppercase hex are accepted
// as checksum-agnostic.
func ParseAddress(input string) (string, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return "", clierr.New(clierr.CodeValidation, "address is required")
	}
	if !common.IsHexAddress(raw) {
		return "", clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid address: %s", input))
	}
	addr := common.HexToAddress(raw)
	hexPart := strings.TrimPrefix(raw, "0x")
	hexPart = strings.TrimPrefix(hexPart, "0X")
	if hexPart != strings.ToLower(hexPart) && hexPart != strings.ToUpper(hexPart) {
		if raw != addr.Hex() {
			return "", clierr.New(clierr.CodeValidation, fmt.Sprintf("address checksum mismatch: %s", input))
		}
	}
	return addr.Hex(), nil
}

// IsDomainReference is the strict, total domain predicate: true iff the
// input ends with the recognized suffix and has a non-empty name part.
// Resolution call sites must only resolve when this holds, never on a
// looks-like heuristic.
func IsDomainReference(input, suffix string) bool {
	s := strings.TrimSpace(strings.ToLower(input))
	suffix = strings.ToLower(strings.TrimSpace(suffix))
	if suffix == "" {
		suffix = DefaultDomainSuffix
	}
	if !strings.HasSuffix(s, suffix) {
		return false
	}
	return len(s) > len(suffix)
}

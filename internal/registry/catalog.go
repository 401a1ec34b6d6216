// Package registry holds the operation catalog: the read-only mapping
// from an operation tag to the contract that handles it, the payload
// opcode, and the coins attached to cover forwarding fees. It is owned
// by configuration and consumed by the builder.
package registry

import (
	"math/big"
	"sort"
	"strings"
)

type Entry struct {
	Tag       string
	Contract  string
	Opcode    uint32
	GasBudget *big.Int
}

type Catalog struct {
	entries map[string]Entry
}

func NewCatalog(entries []Entry) *Catalog {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[strings.ToLower(strings.TrimSpace(e.Tag))] = e
	}
	return &Catalog{entries: m}
}

func (c *Catalog) Lookup(tag string) (Entry, bool) {
	e, ok := c.entries[strings.ToLower(strings.TrimSpace(tag))]
	return e, ok
}

func (c *Catalog) Tags() []string {
	tags := make([]string, 0, len(c.entries))
	for tag := range c.entries {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func gas(milli int64) *big.Int {
	// Budgets are in minimal units; 1e6 units ≈ the fee headroom the
	// aggregator recommends per protocol call.
	return new(big.Int).Mul(big.NewInt(milli), big.NewInt(1_000_000))
}

// Default returns the built-in catalog for the aggregator's mainnet
// deployment.
func Default() *Catalog {
	return NewCatalog([]Entry{
		{Tag: "swap", Contract: "0x52908400098527886E0F7030069857D2E4169EE7", Opcode: 0x25938561, GasBudget: gas(150)},
		{Tag: "dex-provide-liquidity", Contract: "0x52908400098527886E0F7030069857D2E4169EE7", Opcode: 0xfcf9e58f, GasBudget: gas(300)},
		{Tag: "dex-withdraw-liquidity", Contract: "0x52908400098527886E0F7030069857D2E4169EE7", Opcode: 0x595f07bc, GasBudget: gas(250)},
		{Tag: "stake", Contract: "0x8617E340B3D01FA5F11F306F4090FD50E238070D", Opcode: 0x47d54391, GasBudget: gas(200)},
		{Tag: "unstake", Contract: "0x8617E340B3D01FA5F11F306F4090FD50E238070D", Opcode: 0x319b0cdc, GasBudget: gas(200)},
		{Tag: "lending-deposit", Contract: "0xde709F2102306220921060314715629080E2fB77", Opcode: 0x211a3b9e, GasBudget: gas(250)},
		{Tag: "lending-withdraw", Contract: "0xde709F2102306220921060314715629080E2fB77", Opcode: 0x60d4f81d, GasBudget: gas(250)},
		{Tag: "farm-lock", Contract: "0x27b1FdB04752BBc536007A920D24ACB045561c26", Opcode: 0x6ec9dc65, GasBudget: gas(300)},
		{Tag: "farm-withdraw", Contract: "0x27b1FdB04752BBc536007A920D24ACB045561c26", Opcode: 0x2256764e, GasBudget: gas(300)},
	})
}

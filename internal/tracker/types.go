// Package tracker follows submitted operations to a terminal state.
package tracker

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusBroadcast Status = "broadcast"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusExpired
}

// Result is the terminal outcome detail reported by the status lookup.
type Result struct {
	TxHash      string `json:"tx_hash,omitempty"`
	FeeUnits    string `json:"fee_units,omitempty"`
	Description string `json:"description,omitempty"`
}

// TrackedOperation is one submitted operation keyed by its correlation
// token. QueryID is server-assigned, or the client idempotency key until
// the server issues one.
type TrackedOperation struct {
	QueryID     string  `json:"query_id"`
	WalletLabel string  `json:"wallet_label,omitempty"`
	Kind        string  `json:"kind"`
	Status      Status  `json:"status"`
	SubmittedAt string  `json:"submitted_at"`
	UpdatedAt   string  `json:"updated_at"`
	Result      *Result `json:"result,omitempty"`
}

func NewTrackedOperation(queryID, walletLabel, kind string, now time.Time) TrackedOperation {
	ts := now.UTC().Format(time.RFC3339)
	return TrackedOperation{
		QueryID:     queryID,
		WalletLabel: walletLabel,
		Kind:        kind,
		Status:      StatusPending,
		SubmittedAt: ts,
		UpdatedAt:   ts,
	}
}

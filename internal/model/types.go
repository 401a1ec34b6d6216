// Package model defines the output envelope and the presentation types
// commands render.
package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Partial   bool      `json:"partial"`
}

// WalletInfo is the public view of a stored wallet. No key material.
type WalletInfo struct {
	Label     string `json:"label"`
	Address   string `json:"address"`
	CreatedAt string `json:"created_at"`
}

// MessagePreview summarizes a built envelope before confirmation.
type MessagePreview struct {
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
	Value       string `json:"value"`
	Bounce      bool   `json:"bounce"`
	ValidUntil  int64  `json:"valid_until"`
	PayloadSize int    `json:"payload_size"`
	Digest      string `json:"digest"`
}

// SubmissionView is the outcome of a gated submission: the preview that
// was approved, the emulation verdict, and the tracked operation.
type SubmissionView struct {
	Preview   MessagePreview `json:"preview"`
	Emulation any            `json:"emulation,omitempty"`
	Operation any            `json:"operation"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

// Package signer produces signatures and authentication proofs from a
// scoped unlocked key. It never persists key material.
package signer

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
	"github.com/ggonzalez94/custody-cli/internal/keystore"
	"github.com/ggonzalez94/custody-cli/internal/op"
)

// SignMessage signs arbitrary bytes with the wallet's key. Signatures
// are deterministic (RFC 6979), so equal inputs produce equal output and
// no signing nonce is ever reused.
func SignMessage(key *keystore.UnlockedKey, message []byte) ([]byte, error) {
	if key == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing unlocked key")
	}
	sig, err := key.Sign(crypto.Keccak256(message))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "sign message", err)
	}
	return sig, nil
}

// SignEnvelope signs a built envelope's canonical bytes and attaches the
// public key and a client-assigned idempotency key for submission.
func SignEnvelope(key *keystore.UnlockedKey, envelope op.MessageEnvelope) (op.SignedEnvelope, error) {
	sig, err := SignMessage(key, envelope.CanonicalBytes())
	if err != nil {
		return op.SignedEnvelope{}, err
	}
	return op.SignedEnvelope{
		Envelope:       envelope,
		Signature:      sig,
		PublicKey:      key.PublicKey(),
		Sender:         key.Address(),
		IdempotencyKey: uuid.NewString(),
	}, nil
}

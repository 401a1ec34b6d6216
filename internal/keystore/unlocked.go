package keystore

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

// UnlockedKey is decrypted key material with a lifetime bounded to one
// Unlock scope. It is never persisted and never shared across scopes;
// wipe zeroes the scalar and the cached byte forms.
type UnlockedKey struct {
	priv    *ecdsa.PrivateKey
	privRaw []byte
	pubRaw  []byte
	address string
	wiped   bool
}

func newUnlockedKey(pk *ecdsa.PrivateKey, address string) *UnlockedKey {
	return &UnlockedKey{
		priv:    pk,
		privRaw: crypto.FromECDSA(pk),
		pubRaw:  crypto.FromECDSAPub(&pk.PublicKey),
		address: address,
	}
}

func (k *UnlockedKey) Address() string { return k.address }

// PublicKey returns a copy of the uncompressed public key bytes.
func (k *UnlockedKey) PublicKey() []byte {
	out := make([]byte, len(k.pubRaw))
	copy(out, k.pubRaw)
	return out
}

// Sign produces a 65-byte [R || S || V] signature over a 32-byte digest.
// go-ethereum signs deterministically (RFC 6979), so no per-signature
// randomness can be reused.
func (k *UnlockedKey) Sign(digest []byte) ([]byte, error) {
	if k.wiped || k.priv == nil {
		return nil, errors.New("key material already wiped")
	}
	return crypto.Sign(digest, k.priv)
}

func (k *UnlockedKey) wipe() {
	if k.wiped {
		return
	}
	k.wiped = true
	zeroBytes(k.privRaw)
	zeroBytes(k.pubRaw)
	zeroKey(k.priv)
	k.priv = nil
}

func zeroKey(pk *ecdsa.PrivateKey) {
	if pk == nil || pk.D == nil {
		return
	}
	b := pk.D.Bits()
	for i := range b {
		b[i] = 0
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package signer

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
	"github.com/ggonzalez94/custody-cli/internal/keystore"
)

// ProofFreshness is the replay window: verifiers reject proofs whose
// timestamp is older than this or from the future.
const ProofFreshness = 5 * time.Minute

const proofPrefix = "custody-proof/v1"

// AuthProof is a signed, time-bounded statement binding the wallet's
// address and public key to a requesting domain. Built fresh per request
// and never reused.
type AuthProof struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
	Domain    string `json:"domain"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	StateInit string `json:"state_init,omitempty"`
}

type stateInit struct {
	Version   string `json:"version"`
	PublicKey string `json:"public_key"`
}

// BuildAuthProof constructs and signs the canonical proof payload. When
// the wallet contract is not yet deployed, a state-init blob is embedded
// so the verifier can check the address-to-key binding without an
// on-chain lookup.
func BuildAuthProof(key *keystore.UnlockedKey, domain, nonce string, deployed bool) (AuthProof, error) {
	if key == nil {
		return AuthProof{}, clierr.New(clierr.CodeInternal, "missing unlocked key")
	}
	if domain == "" {
		return AuthProof{}, clierr.New(clierr.CodeValidation, "proof domain is required")
	}
	if nonce == "" {
		return AuthProof{}, clierr.New(clierr.CodeValidation, "proof nonce is required")
	}
	ts := time.Now().UTC().Unix()
	payload := proofPayload(key.Address(), domain, nonce, ts)
	sig, err := key.Sign(crypto.Keccak256(payload))
	if err != nil {
		return AuthProof{}, clierr.Wrap(clierr.CodeInternal, "sign auth proof", err)
	}

	proof := AuthProof{
		Address:   key.Address(),
		PublicKey: hex.EncodeToString(key.PublicKey()),
		Domain:    domain,
		Nonce:     nonce,
		Timestamp: ts,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}
	if !deployed {
		blob, err := json.Marshal(stateInit{Version: "v1", PublicKey: proof.PublicKey})
		if err != nil {
			return AuthProof{}, clierr.Wrap(clierr.CodeInternal, "encode state init", err)
		}
		proof.StateInit = base64.StdEncoding.EncodeToString(blob)
	}
	return proof, nil
}

// VerifyProof checks the signature, the key-to-address binding and the
// freshness window. This mirrors what the remote verifier does and backs
// `wallet proof --verify`.
func VerifyProof(proof AuthProof) error {
	age := time.Since(time.Unix(proof.Timestamp, 0))
	if age > ProofFreshness || age < -ProofFreshness {
		return clierr.New(clierr.CodeExpired, "proof timestamp outside freshness window")
	}
	pub, err := hex.DecodeString(proof.PublicKey)
	if err != nil {
		return clierr.Wrap(clierr.CodeValidation, "decode proof public key", err)
	}
	pubKey, err := crypto.UnmarshalPubkey(pub)
	if err != nil {
		return clierr.Wrap(clierr.CodeValidation, "parse proof public key", err)
	}
	if crypto.PubkeyToAddress(*pubKey).Hex() != proof.Address {
		return clierr.New(clierr.CodeAuth, "proof public key does not match wallet address")
	}
	sig, err := base64.StdEncoding.DecodeString(proof.Signature)
	if err != nil {
		return clierr.Wrap(clierr.CodeValidation, "decode proof signature", err)
	}
	if len(sig) != 65 {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("proof signature must be 65 bytes, got %d", len(sig)))
	}
	digest := crypto.Keccak256(proofPayload(proof.Address, proof.Domain, proof.Nonce, proof.Timestamp))
	if !crypto.VerifySignature(crypto.CompressPubkey(pubKey), digest, sig[:64]) {
		return clierr.New(clierr.CodeAuth, "proof signature verification failed")
	}
	return nil
}

func proofPayload(address, domain, nonce string, ts int64) []byte {
	var buf bytes.Buffer
	buf.WriteString(proofPrefix)
	buf.WriteByte(0)
	buf.WriteString(address)
	buf.WriteByte(0)
	buf.WriteString(domain)
	buf.WriteByte(0)
	buf.WriteString(nonce)
	buf.WriteByte(0)
	_ = binary.Write(&buf, binary.BigEndian, uint64(ts))
	return buf.Bytes()
}

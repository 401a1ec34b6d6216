package op

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// MessageEnvelope is an unsigned, fully built message. It is immutable
// once built and consumed exactly once by submission.
type MessageEnvelope struct {
	Kind        Kind     `json:"kind"`
	Destination string   `json:"destination"`
	Value       *big.Int `json:"value"`
	Payload     []byte   `json:"payload"`
	Bounce      bool     `json:"bounce"`
	ValidUntil  int64    `json:"valid_until"`
}

// CanonicalBytes is the byte string that gets signed. Fixed-width fields
// keep the encoding unambiguous.
func (e MessageEnvelope) CanonicalBytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("custody-envelope/v1\x00")
	buf.WriteString(string(e.Kind))
	buf.WriteByte(0)
	buf.WriteString(e.Destination)
	buf.WriteByte(0)
	value := e.Value
	if value == nil {
		value = new(big.Int)
	}
	valueBytes := value.Bytes()
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(valueBytes)))
	buf.Write(valueBytes)
	if e.Bounce {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	_ = binary.Write(&buf, binary.BigEndian, uint64(e.ValidUntil))
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(e.Payload)))
	buf.Write(e.Payload)
	return buf.Bytes()
}

// Digest identifies the envelope for one-shot consumption tracking.
func (e MessageEnvelope) Digest() [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(e.CanonicalBytes()))
	return out
}

// SignedEnvelope is a MessageEnvelope plus the wallet's signature over
// its canonical bytes, ready for submission.
type SignedEnvelope struct {
	Envelope       MessageEnvelope `json:"envelope"`
	Signature      []byte          `json:"signature"`
	PublicKey      []byte          `json:"public_key"`
	Sender         string          `json:"sender"`
	IdempotencyKey string          `json:"idempotency_key"`
}

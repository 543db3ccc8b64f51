package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/trichter/internal/gate"
)

// ErrCommitWrite wraps any sink failure. The chain head is unchanged when it is returned.
var ErrCommitWrite = errors.New("commit write failed")

// #region hash
// Hash is a SHA-256 digest.
type Hash [32]byte

// String returns the lowercase hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the genesis hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText encodes the hash as hex.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex hash.
func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("decode hash: expected %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// #endregion hash

// #region payload
// Payload is the tick data committed on FIRE.
type Payload struct {
	Timestamp float64    `json:"timestamp"` // tick time, never wall clock
	Nodes     uint64     `json:"nodes"`
	Edges     uint64     `json:"edges"`
	Proof     gate.Proof `json:"proof"`
	Seed      Hash       `json:"seed"` // run seed digest, zero when unseeded
}

// SeedDigest hashes a run seed into the value committed as Payload.Seed.
// The empty seed maps to the zero hash.
func SeedDigest(seed string) Hash {
	if seed == "" {
		return Hash{}
	}
	return sha256.Sum256([]byte(seed))
}

// #endregion payload

// #region commit-data
// CommitData is one link of the chain.
type CommitData struct {
	Hash     Hash    `json:"hash"`
	Seq      uint64  `json:"seq"`
	PrevHash Hash    `json:"prev_hash"`
	Payload  Payload `json:"payload"`
}

// Timestamp returns the committed tick time.
func (c CommitData) Timestamp() float64 {
	return c.Payload.Timestamp
}

// #endregion commit-data

// #region sink
// Sink persists commits. Implementations must serialize writes per ledger.
type Sink interface {
	Put(ctx context.Context, c CommitData) error
}

// Loader reads back a persisted chain in sequence order.
type Loader interface {
	Load(ctx context.Context) ([]CommitData, error)
}

// #endregion sink

// #region verify-error
// VerifyError locates the first broken link.
type VerifyError struct {
	Index  int
	Seq    uint64
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("chain broken at index %d (seq %d): %s", e.Index, e.Seq, e.Reason)
}

// #endregion verify-error

package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// encodingVersion prefixes every canonical payload.
const encodingVersion byte = 1

// #region encode
// Encode returns the canonical byte form hashed for a commit: version, seq,
// timestamp, node and edge counts, proof fields, validity flag, seed digest
// and the previous hash. All integers and float bits are big-endian.
func Encode(seq uint64, p Payload, prev Hash) []byte {
	buf := make([]byte, 0, 1+8*7+1+len(p.Seed)+len(prev))
	buf = append(buf, encodingVersion)
	buf = binary.BigEndian.AppendUint64(buf, seq)
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(p.Timestamp))
	buf = binary.BigEndian.AppendUint64(buf, p.Nodes)
	buf = binary.BigEndian.AppendUint64(buf, p.Edges)
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(p.Proof.DeltaPi))
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(p.Proof.Phi))
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(p.Proof.DeltaV))
	if p.Proof.Valid {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, p.Seed[:]...)
	return append(buf, prev[:]...)
}

// Digest hashes the canonical encoding.
func Digest(seq uint64, p Payload, prev Hash) Hash {
	return sha256.Sum256(Encode(seq, p, prev))
}

// #endregion encode

// #region chain
// Chain is a single-writer hash chain. Reads may run concurrently.
type Chain struct {
	mu      sync.RWMutex
	head    Hash
	nextSeq uint64
	commits []CommitData
	sink    Sink
}

// NewChain starts at the genesis hash. sink may be nil.
func NewChain(sink Sink) *Chain {
	return &Chain{nextSeq: 1, sink: sink}
}

// Commit links p to the current head and persists it through the sink.
// The head only advances once the sink accepts the write.
func (c *Chain) Commit(ctx context.Context, p Payload) (CommitData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cd := CommitData{
		Hash:     Digest(c.nextSeq, p, c.head),
		Seq:      c.nextSeq,
		PrevHash: c.head,
		Payload:  p,
	}
	if c.sink != nil {
		if err := c.sink.Put(ctx, cd); err != nil {
			return CommitData{}, fmt.Errorf("%w: seq %d: %w", ErrCommitWrite, cd.Seq, err)
		}
	}

	c.head = cd.Hash
	c.nextSeq++
	c.commits = append(c.commits, cd)
	return cd, nil
}

// Restore replaces the chain contents with verified commits, e.g. from a Loader.
func (c *Chain) Restore(commits []CommitData) error {
	if err := Verify(commits); err != nil {
		return fmt.Errorf("restore chain: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.commits = append([]CommitData(nil), commits...)
	c.head = Hash{}
	c.nextSeq = 1
	if n := len(commits); n > 0 {
		c.head = commits[n-1].Hash
		c.nextSeq = commits[n-1].Seq + 1
	}
	return nil
}

// Head returns the hash of the latest commit, or the zero hash.
func (c *Chain) Head() Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

// Len returns the number of commits.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.commits)
}

// Commits returns a copy of all commits in order.
func (c *Chain) Commits() []CommitData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]CommitData(nil), c.commits...)
}

// Hashes returns the ordered commit hashes.
func (c *Chain) Hashes() []Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Hash, len(c.commits))
	for i, cd := range c.commits {
		out[i] = cd.Hash
	}
	return out
}

// #endregion chain

// #region verify
// Verify recomputes every link from the genesis hash.
func Verify(commits []CommitData) error {
	prev := Hash{}
	seq := uint64(1)
	for i, cd := range commits {
		if cd.Seq != seq {
			return &VerifyError{Index: i, Seq: cd.Seq, Reason: fmt.Sprintf("expected seq %d", seq)}
		}
		if cd.PrevHash != prev {
			return &VerifyError{Index: i, Seq: cd.Seq, Reason: "previous hash mismatch"}
		}
		if want := Digest(cd.Seq, cd.Payload, prev); want != cd.Hash {
			return &VerifyError{Index: i, Seq: cd.Seq, Reason: "hash does not match payload"}
		}
		prev = cd.Hash
		seq++
	}
	return nil
}

// #endregion verify

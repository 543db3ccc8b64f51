package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/danielpatrickdp/trichter/internal/gate"
)

type failingSink struct {
	fail  bool
	calls int
}

func (s *failingSink) Put(_ context.Context, _ CommitData) error {
	s.calls++
	if s.fail {
		return errors.New("disk full")
	}
	return nil
}

func payload(ts float64) Payload {
	return Payload{
		Timestamp: ts,
		Nodes:     4,
		Edges:     3,
		Proof:     gate.Proof{DeltaPi: 0.01, Phi: 0.8, DeltaV: -0.2, Valid: true},
	}
}

// #region test-commit
func TestCommitLinksToPrevious(t *testing.T) {
	c := NewChain(nil)
	ctx := context.Background()

	first, err := c.Commit(ctx, payload(1))
	if err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	if !first.PrevHash.IsZero() || first.Seq != 1 {
		t.Fatalf("first commit should link to genesis with seq 1: %+v", first)
	}

	second, err := c.Commit(ctx, payload(2))
	if err != nil {
		t.Fatalf("commit 2: %v", err)
	}
	if second.PrevHash != first.Hash || second.Seq != 2 {
		t.Fatalf("second commit not linked: %+v", second)
	}
	if c.Head() != second.Hash {
		t.Errorf("head should be latest hash")
	}
	if err := Verify(c.Commits()); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestDigestDependsOnPrevious(t *testing.T) {
	p := payload(5)
	a := Digest(1, p, Hash{})
	b := Digest(1, p, Hash{1})
	if a == b {
		t.Fatal("digest must change with the previous hash")
	}
	if Digest(1, p, Hash{}) != a {
		t.Fatal("digest must be deterministic")
	}
}

func TestDigestDependsOnSeed(t *testing.T) {
	a, b := payload(5), payload(5)
	a.Seed = SeedDigest("seed-A")
	b.Seed = SeedDigest("seed-B")
	if Digest(1, a, Hash{}) == Digest(1, b, Hash{}) {
		t.Fatal("digest must change with the seed")
	}
	if !SeedDigest("").IsZero() {
		t.Error("empty seed should map to the zero hash")
	}
	if SeedDigest("seed-A") != a.Seed {
		t.Error("seed digest must be deterministic")
	}
}

func TestFailedWriteDoesNotAdvanceHead(t *testing.T) {
	sink := &failingSink{}
	c := NewChain(sink)
	ctx := context.Background()

	ok, err := c.Commit(ctx, payload(1))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	sink.fail = true
	_, err = c.Commit(ctx, payload(2))
	if !errors.Is(err, ErrCommitWrite) {
		t.Fatalf("expected ErrCommitWrite, got %v", err)
	}
	if c.Head() != ok.Hash || c.Len() != 1 {
		t.Fatalf("head advanced after failed write")
	}

	// Retrying the same payload after recovery yields seq 2 linked to the first commit.
	sink.fail = false
	retry, err := c.Commit(ctx, payload(2))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.Seq != 2 || retry.PrevHash != ok.Hash {
		t.Fatalf("retry not linked correctly: %+v", retry)
	}
	if sink.calls != 3 {
		t.Errorf("expected 3 sink calls, got %d", sink.calls)
	}
}

// #endregion test-commit

// #region test-verify
func TestVerifyDetectsTampering(t *testing.T) {
	c := NewChain(nil)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := c.Commit(ctx, payload(float64(i))); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	commits := c.Commits()
	commits[2].Payload.Nodes = 99

	err := Verify(commits)
	var verr *VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VerifyError, got %v", err)
	}
	if verr.Index != 2 {
		t.Errorf("expected break at index 2, got %d", verr.Index)
	}
}

func TestVerifyDetectsGap(t *testing.T) {
	c := NewChain(nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c.Commit(ctx, payload(float64(i)))
	}
	commits := c.Commits()
	if err := Verify(append(commits[:1], commits[2:]...)); err == nil {
		t.Fatal("expected gap to be detected")
	}
}

func TestRestoreResumesChain(t *testing.T) {
	src := NewChain(nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		src.Commit(ctx, payload(float64(i)))
	}

	dst := NewChain(nil)
	if err := dst.Restore(src.Commits()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	a, _ := src.Commit(ctx, payload(9))
	b, _ := dst.Commit(ctx, payload(9))
	if a.Hash != b.Hash {
		t.Fatal("restored chain diverged from source")
	}
}

func TestHashJSONRoundtrip(t *testing.T) {
	h := Digest(1, payload(1), Hash{})
	raw, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Hash
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != h {
		t.Fatal("hash changed through JSON")
	}
}

// #endregion test-verify

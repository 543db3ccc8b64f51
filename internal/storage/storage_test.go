package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/ledger/sqlitesink"
	"github.com/danielpatrickdp/trichter/internal/state"
)

// =============================================================================
// Helpers
// =============================================================================

func firedOutput(id string) *cognitive.Output {
	return &cognitive.Output{
		Trajectory: []state.State5D{{X: 1}, {X: 0.9}},
		Spectral:   cognitive.Spectral{Psi: 0.2, Rho: 0.9, Omega: 0.01},
		Route:      cognitive.Route{ID: "S7-0123456", Permutation: []int{0, 1, 2, 3, 4, 5, 6}},
		Proof:      gate.Proof{DeltaPi: 0.01, Phi: 0.8, DeltaV: -0.1, Valid: true},
		Decision:   gate.Fire,
		Knowledge: &cognitive.Knowledge{
			ID:       id,
			TicID:    "TIC-001",
			RouteID:  "S7-0123456",
			SeedPath: "MEF/test/stage/0001",
		},
		Ticks: 2,
	}
}

func heldOutput() *cognitive.Output {
	return &cognitive.Output{
		Trajectory: []state.State5D{{X: 1}},
		Decision:   gate.Hold,
		Ticks:      1,
	}
}

func openSQLite(t *testing.T, fireOnly bool) *SQLite {
	t.Helper()
	store, err := sqlitesink.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	b, err := NewSQLite(store.DB(), fireOnly)
	require.NoError(t, err)
	return b
}

// =============================================================================
// Memory
// =============================================================================

func TestMemory_StoreRetrieve(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Store(ctx, firedOutput("MEF-TIC-001-S7-0123456-test_see"))
	require.NoError(t, err)
	assert.Equal(t, "MEF-TIC-001-S7-0123456-test_see", id)

	got, err := m.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, gate.Fire, got.Decision)
	assert.Equal(t, "TIC-001", got.Knowledge.TicID)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, got.Route.Permutation)

	got.Decision = gate.Hold
	again, err := m.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, gate.Fire, again.Decision, "retrieve must return a copy")
}

func TestMemory_FallbackID(t *testing.T) {
	m := NewMemory()
	m.now = func() time.Time { return time.UnixMilli(1700000000123) }

	id, err := m.Store(context.Background(), heldOutput())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "MEM-1700000000123-"), id)
	assert.Len(t, id, len("MEM-1700000000123-")+8)
}

func TestMemory_NotFound(t *testing.T) {
	_, err := NewMemory().Retrieve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_StatsTrackReplaceAndFailures(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Store(ctx, firedOutput("A"))
	require.NoError(t, err)
	_, err = m.Store(ctx, firedOutput("A"))
	require.NoError(t, err)

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalItems)
	assert.Equal(t, uint64(2), st.SuccessfulWrites)
	assert.Equal(t, TypeMemory, st.BackendType)
	single := st.TotalSizeBytes
	assert.Positive(t, single)

	_, err = m.Store(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidData)

	require.NoError(t, m.Close())
	_, err = m.Store(ctx, firedOutput("B"))
	assert.ErrorIs(t, err, ErrUnavailable)

	st, _ = m.Stats(ctx)
	assert.Equal(t, uint64(2), st.FailedWrites)
	assert.Equal(t, single, st.TotalSizeBytes)

	healthy, err := m.HealthCheck(ctx)
	require.NoError(t, err)
	assert.False(t, healthy)
}

func TestMemory_ConcurrentStoresKeepStatsConsistent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Store(ctx, firedOutput(fmt.Sprintf("K-%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, st.TotalItems)
	assert.Equal(t, m.Len(), st.TotalItems)
	assert.Equal(t, uint64(50), st.SuccessfulWrites)

	m.Clear()
	st, _ = m.Stats(ctx)
	assert.Equal(t, Stats{BackendType: TypeMemory}, st)
}

// =============================================================================
// SQLite
// =============================================================================

func TestSQLite_StoreRetrieve(t *testing.T) {
	ctx := context.Background()
	b := openSQLite(t, false)

	id, err := b.Store(ctx, firedOutput("MEF-X"))
	require.NoError(t, err)
	assert.Equal(t, "MEF-X", id)

	holdID, err := b.Store(ctx, heldOutput())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(holdID, "SQL-"), holdID)

	got, err := b.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, gate.Proof{DeltaPi: 0.01, Phi: 0.8, DeltaV: -0.1, Valid: true}, got.Proof)

	_, err = b.Retrieve(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	st, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalItems)
	assert.Equal(t, uint64(2), st.SuccessfulWrites)
	assert.Positive(t, st.TotalSizeBytes)

	healthy, err := b.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, healthy)
}

func TestSQLite_FireOnlyRefusesHold(t *testing.T) {
	ctx := context.Background()
	b := openSQLite(t, true)

	_, err := b.Store(ctx, heldOutput())
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = b.Store(ctx, firedOutput("MEF-Y"))
	require.NoError(t, err)

	st, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalItems)
	assert.Equal(t, uint64(1), st.FailedWrites)
	assert.Equal(t, uint64(1), st.SuccessfulWrites)
}

// =============================================================================
// Retry
// =============================================================================

type flakyBackend struct {
	*Memory
	failures int
	calls    int
	err      error
}

func (f *flakyBackend) Store(ctx context.Context, out *cognitive.Output) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return f.Memory.Store(ctx, out)
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffFactor: 2}
}

func TestWithRetry_RecoversFromTransientFailures(t *testing.T) {
	f := &flakyBackend{Memory: NewMemory(), failures: 2, err: ErrUnavailable}
	id, err := WithRetry(f, fastRetry()).Store(context.Background(), firedOutput("R"))
	require.NoError(t, err)
	assert.Equal(t, "R", id)
	assert.Equal(t, 3, f.calls)
}

func TestWithRetry_GivesUp(t *testing.T) {
	f := &flakyBackend{Memory: NewMemory(), failures: 10, err: ErrUnavailable}
	_, err := WithRetry(f, fastRetry()).Store(context.Background(), firedOutput("R"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, f.calls)
}

func TestWithRetry_DoesNotRetryInvalidData(t *testing.T) {
	f := &flakyBackend{Memory: NewMemory(), failures: 10, err: fmt.Errorf("%w: bad", ErrInvalidData)}
	_, err := WithRetry(f, fastRetry()).Store(context.Background(), firedOutput("R"))
	assert.ErrorIs(t, err, ErrInvalidData)
	assert.Equal(t, 1, f.calls)
}

func TestWithRetry_HonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &flakyBackend{Memory: NewMemory()}
	_, err := WithRetry(f, RetryConfig{}).Store(ctx, firedOutput("R"))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, f.calls)
}

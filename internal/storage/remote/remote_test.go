package remote

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/ledger"
	"github.com/danielpatrickdp/trichter/internal/state"
	"github.com/danielpatrickdp/trichter/internal/storage"
)

// =============================================================================
// Helpers
// =============================================================================

type fixture struct {
	client  *Client
	server  *Server
	backend *storage.Memory
}

func startServer(t *testing.T) fixture {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	backend := storage.NewMemory()
	srv := NewServer(backend)

	gs := grpc.NewServer()
	srv.Register(context.Background(), gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return fixture{client: NewClientWithConn(conn), server: srv, backend: backend}
}

func sampleOutput() *cognitive.Output {
	return &cognitive.Output{
		Trajectory: []state.State5D{{X: 1, Y: 0.5, Z: 0.3, Psi: 0.2, Omega: 0.1}, {X: 0.995, Y: 0.4975}},
		Spectral:   cognitive.Spectral{Psi: 0.1666, Rho: 1, Omega: -0.001},
		Route:      cognitive.Route{ID: "S7-6543210", Permutation: []int{6, 5, 4, 3, 2, 1, 0}},
		Proof:      gate.Proof{DeltaPi: 0.002, Phi: 0.8, DeltaV: -0.03, Valid: true},
		Decision:   gate.Fire,
		Knowledge: &cognitive.Knowledge{
			ID:       "MEF-TIC-9-S7-6543210-seed",
			TicID:    "TIC-9",
			RouteID:  "S7-6543210",
			SeedPath: "MEF/remote/0001",
			Payload:  map[string]any{"commit_head": "abc"},
		},
		Commits: []ledger.CommitData{{Seq: 1, Hash: ledger.Hash{1, 2, 3}}},
		Ticks:   11,
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestRemote_StoreRetrieveRoundTrip(t *testing.T) {
	f := startServer(t)
	ctx := context.Background()
	in := sampleOutput()

	id, err := f.client.Store(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in.Knowledge.ID, id)
	assert.Equal(t, 1, f.backend.Len())

	got, err := f.client.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, in.Trajectory, got.Trajectory)
	assert.Equal(t, in.Proof, got.Proof)
	assert.Equal(t, in.Route, got.Route)
	assert.Equal(t, in.Commits[0].Hash, got.Commits[0].Hash)
	assert.Equal(t, "abc", got.Knowledge.Payload["commit_head"])
}

func TestRemote_NotFoundMapsToSentinel(t *testing.T) {
	f := startServer(t)
	_, err := f.client.Retrieve(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRemote_StatsAndHealth(t *testing.T) {
	f := startServer(t)
	ctx := context.Background()

	_, err := f.client.Store(ctx, sampleOutput())
	require.NoError(t, err)

	st, err := f.client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalItems)
	assert.Equal(t, uint64(1), st.SuccessfulWrites)
	assert.Equal(t, "remote:memory", st.BackendType)

	healthy, err := f.client.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, healthy)

	require.NoError(t, f.backend.Close())
	assert.False(t, f.server.RefreshHealth(ctx))
	healthy, err = f.client.HealthCheck(ctx)
	require.NoError(t, err)
	assert.False(t, healthy)
}

func TestRemote_BackendFailureCountedOnce(t *testing.T) {
	f := startServer(t)
	ctx := context.Background()
	require.NoError(t, f.backend.Close())

	_, err := f.client.Store(ctx, sampleOutput())
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	st, err := f.backend.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.FailedWrites)
	assert.Zero(t, f.client.failed.Load())
}

func TestRemote_NilOutputRejected(t *testing.T) {
	f := startServer(t)
	_, err := f.client.Store(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrInvalidData)
}

package remote

// #region imports
import (
	"context"
	"fmt"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
	"github.com/danielpatrickdp/trichter/internal/metrics"
	"github.com/danielpatrickdp/trichter/internal/storage"
)

// #endregion

// #region client-struct
// Client is a storage.Backend backed by a remote Server.
type Client struct {
	conn   *grpc.ClientConn
	owned  bool
	failed atomic.Uint64 // writes that never reached the server's backend
}

var _ storage.Backend = (*Client)(nil)

// NewClient connects to a storage server at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, owned: true}, nil
}

// NewClientWithConn uses an existing connection. Close leaves it open.
func NewClientWithConn(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close shuts down the connection if the client opened it.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}

// #endregion client-struct

// #region store
// Store sends the output to the server.
func (c *Client) Store(ctx context.Context, out *cognitive.Output) (string, error) {
	in, err := outputToStruct(out)
	if err != nil {
		c.failed.Add(1)
		metrics.StorageWrites.WithLabelValues(storage.TypeRemote, metrics.ResultError).Inc()
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidData, err)
	}
	res := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, storeMethod, in, res); err != nil {
		switch status.Code(err) {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.Unknown:
			c.failed.Add(1)
		}
		metrics.StorageWrites.WithLabelValues(storage.TypeRemote, metrics.ResultError).Inc()
		return "", fromStatus("store", err)
	}
	metrics.StorageWrites.WithLabelValues(storage.TypeRemote, metrics.ResultOK).Inc()
	return res.GetValue(), nil
}

// #endregion store

// #region read
// Retrieve fetches one output by id.
func (c *Client) Retrieve(ctx context.Context, id string) (*cognitive.Output, error) {
	res := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, retrieveMethod, wrapperspb.String(id), res); err != nil {
		return nil, fromStatus("retrieve", err)
	}
	return structToOutput(res)
}

// HealthCheck asks the server's health service about the storage service.
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	res, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fromStatus("health", err)
	}
	return res.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Stats returns the server's stats plus writes that failed in transport.
func (c *Client) Stats(ctx context.Context) (storage.Stats, error) {
	res := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, statsMethod, &emptypb.Empty{}, res); err != nil {
		return storage.Stats{}, fromStatus("stats", err)
	}
	st := structToStats(res)
	st.FailedWrites += c.failed.Load()
	st.BackendType = storage.TypeRemote + ":" + st.BackendType
	return st, nil
}

// #endregion read

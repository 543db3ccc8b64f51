package remote

// #region imports
import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/danielpatrickdp/trichter/internal/storage"
)

// #endregion

// #region server-struct
// Server serves a storage.Backend and the standard health service.
type Server struct {
	backend storage.Backend
	health  *health.Server
}

// NewServer wraps backend.
func NewServer(backend storage.Backend) *Server {
	return &Server{backend: backend, health: health.NewServer()}
}

// Register installs the storage and health services on gs and publishes
// the backend's current health.
func (s *Server) Register(ctx context.Context, gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(gs, s.health)
	s.RefreshHealth(ctx)
}

// RefreshHealth asks the backend whether it is healthy and publishes the
// answer for ServiceName.
func (s *Server) RefreshHealth(ctx context.Context) bool {
	ok, err := s.backend.HealthCheck(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if err != nil || !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		ok = false
	}
	s.health.SetServingStatus(ServiceName, st)
	return ok
}

// Shutdown marks every service as not serving.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// #endregion server-struct

// #region rpc
// Store decodes the output and writes it to the backend.
func (s *Server) Store(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	out, err := structToOutput(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, err := s.backend.Store(ctx, out)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(id), nil
}

// Retrieve loads one output by id.
func (s *Server) Retrieve(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	out, err := s.backend.Retrieve(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := outputToStruct(out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return res, nil
}

// Stats returns the backend stats.
func (s *Server) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := statsToStruct(st)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode stats: %v", err))
	}
	return res, nil
}

// #endregion rpc

// Package remote exposes a storage.Backend over gRPC. Messages are protobuf
// well-known types carrying the JSON form of each output, so no generated
// stubs are needed.
package remote

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
	"github.com/danielpatrickdp/trichter/internal/storage"
)

// #endregion

// #region descriptor
// ServiceName is the fully qualified gRPC service name.
const ServiceName = "trichter.storage.v1.Storage"

const (
	storeMethod    = "/" + ServiceName + "/Store"
	retrieveMethod = "/" + ServiceName + "/Retrieve"
	statsMethod    = "/" + ServiceName + "/Stats"
)

// storageService is the server-side contract behind serviceDesc.
type storageService interface {
	Store(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	Retrieve(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*storageService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Store", Handler: storeHandler},
		{MethodName: "Retrieve", Handler: retrieveHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Metadata: "trichter/storage/v1/storage.proto",
}

func storeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(storageService).Store(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: storeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(storageService).Store(ctx, req.(*structpb.Struct))
	})
}

func retrieveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(storageService).Retrieve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: retrieveMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(storageService).Retrieve(ctx, req.(*wrapperspb.StringValue))
	})
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(storageService).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statsMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(storageService).Stats(ctx, req.(*emptypb.Empty))
	})
}

// #endregion descriptor

// #region convert
func outputToStruct(out *cognitive.Output) (*structpb.Struct, error) {
	if out == nil {
		return nil, errors.New("nil output")
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("output to struct: %w", err)
	}
	return s, nil
}

func structToOutput(s *structpb.Struct) (*cognitive.Output, error) {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("struct to json: %w", err)
	}
	var out cognitive.Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	return &out, nil
}

func statsToStruct(st storage.Stats) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"total_items":       st.TotalItems,
		"total_size_bytes":  st.TotalSizeBytes,
		"successful_writes": st.SuccessfulWrites,
		"failed_writes":     st.FailedWrites,
		"backend_type":      st.BackendType,
	})
}

func structToStats(s *structpb.Struct) storage.Stats {
	f := s.GetFields()
	return storage.Stats{
		TotalItems:       int(f["total_items"].GetNumberValue()),
		TotalSizeBytes:   int64(f["total_size_bytes"].GetNumberValue()),
		SuccessfulWrites: uint64(f["successful_writes"].GetNumberValue()),
		FailedWrites:     uint64(f["failed_writes"].GetNumberValue()),
		BackendType:      f["backend_type"].GetStringValue(),
	}
}

// #endregion convert

// #region status
// toStatus maps backend errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidData):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrUnavailable):
		// codes.Unavailable is reserved for transport failures.
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus maps gRPC codes back onto storage sentinels.
func fromStatus(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s rpc: %w", op, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%s rpc: %w: %s", op, storage.ErrNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%s rpc: %w: %s", op, storage.ErrInvalidData, st.Message())
	case codes.Unavailable, codes.FailedPrecondition:
		return fmt.Errorf("%s rpc: %w: %s", op, storage.ErrUnavailable, st.Message())
	}
	return fmt.Errorf("%s rpc: %w", op, err)
}

// #endregion status

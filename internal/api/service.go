package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mirador.reliability.v1.ReliabilityReports"

const (
	reportMethod       = "/" + ServiceName + "/Report"
	graphMethod        = "/" + ServiceName + "/Graph"
	saveSettingsMethod = "/" + ServiceName + "/SaveSettings"
)

// ReliabilityReportsServer is the server API of the reliability report service. Requests and
// responses are dashboard-shaped JSON objects carried as google.protobuf.Struct.
type ReliabilityReportsServer interface {
	Report(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Graph(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveSettings(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterReliabilityReportsServer registers srv on s.
func RegisterReliabilityReportsServer(s grpc.ServiceRegistrar, srv ReliabilityReportsServer) {
	s.RegisterService(&ReliabilityReportsServiceDesc, srv)
}

// ReliabilityReportsServiceDesc describes the unary methods of the service.
var ReliabilityReportsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReliabilityReportsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Report", Handler: unaryHandler(reportMethod, ReliabilityReportsServer.Report)},
		{MethodName: "Graph", Handler: unaryHandler(graphMethod, ReliabilityReportsServer.Graph)},
		{MethodName: "SaveSettings", Handler: unaryHandler(saveSettingsMethod, ReliabilityReportsServer.SaveSettings)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/reliability/v1/reliability.proto",
}

type structMethod func(ReliabilityReportsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structMethod) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReliabilityReportsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ReliabilityReportsServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ReliabilityReportsClient is the client API of the reliability report service.
type ReliabilityReportsClient struct {
	cc grpc.ClientConnInterface
}

// NewReliabilityReportsClient wraps a client connection.
func NewReliabilityReportsClient(cc grpc.ClientConnInterface) *ReliabilityReportsClient {
	return &ReliabilityReportsClient{cc: cc}
}

// Report calls ReliabilityReports/Report.
func (c *ReliabilityReportsClient) Report(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, reportMethod, in, opts...)
}

// Graph calls ReliabilityReports/Graph.
func (c *ReliabilityReportsClient) Graph(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, graphMethod, in, opts...)
}

// SaveSettings calls ReliabilityReports/SaveSettings.
func (c *ReliabilityReportsClient) SaveSettings(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, saveSettingsMethod, in, opts...)
}

func (c *ReliabilityReportsClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

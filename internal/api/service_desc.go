package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "exposure.v1.ExposureSearch"

// ExposureSearchServer is the gRPC contract. Every message is a
// google.protobuf.Struct so clients need no generated stubs.
type ExposureSearchServer interface {
	Search(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SearchSource(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSources(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SourceHealth(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SystemHealth(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterExposureSearchServer attaches srv to registrar.
func RegisterExposureSearchServer(registrar grpc.ServiceRegistrar, srv ExposureSearchServer) {
	registrar.RegisterService(&ExposureSearchServiceDesc, srv)
}

type unaryMethod func(ExposureSearchServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ExposureSearchServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ExposureSearchServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ExposureSearchServiceDesc describes the service for grpc.Server.RegisterService.
var ExposureSearchServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExposureSearchServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Search", ExposureSearchServer.Search),
		unaryHandler("SearchSource", ExposureSearchServer.SearchSource),
		unaryHandler("ListSources", ExposureSearchServer.ListSources),
		unaryHandler("SourceHealth", ExposureSearchServer.SourceHealth),
		unaryHandler("SystemHealth", ExposureSearchServer.SystemHealth),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "exposure/v1/exposure_search.proto",
}

// ExposureSearchClient is a thin client over the Struct-typed service.
type ExposureSearchClient struct {
	cc grpc.ClientConnInterface
}

// NewExposureSearchClient wraps cc.
func NewExposureSearchClient(cc grpc.ClientConnInterface) *ExposureSearchClient {
	return &ExposureSearchClient{cc: cc}
}

// Invoke calls method with in and returns the decoded response.
func (c *ExposureSearchClient) Invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

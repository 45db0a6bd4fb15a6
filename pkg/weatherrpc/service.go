// Package weatherrpc defines the WeatherService gRPC API. Requests carry the city
// name as a StringValue and responses carry the upstream-shaped weather document
// as a Struct, so no generated message types are needed.
package weatherrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "weatherrpc.WeatherService"
	// GetWeatherFullMethodName is the full method name of GetWeather.
	GetWeatherFullMethodName = "/" + ServiceName + "/GetWeather"
)

// WeatherServiceServer is the server API for WeatherService.
type WeatherServiceServer interface {
	// GetWeather returns the current weather document for a city.
	GetWeather(ctx context.Context, city *wrapperspb.StringValue) (*structpb.Struct, error)
}

// UnimplementedWeatherServiceServer can be embedded for forward compatibility.
type UnimplementedWeatherServiceServer struct{}

// GetWeather implements WeatherServiceServer.
func (UnimplementedWeatherServiceServer) GetWeather(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetWeather not implemented")
}

// RegisterWeatherServiceServer registers srv on s.
func RegisterWeatherServiceServer(s grpc.ServiceRegistrar, srv WeatherServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func getWeatherHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WeatherServiceServer).GetWeather(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetWeatherFullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WeatherServiceServer).GetWeather(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc.ServiceDesc for WeatherService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WeatherServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetWeather",
			Handler:    getWeatherHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

// WeatherServiceClient is the client API for WeatherService.
type WeatherServiceClient interface {
	GetWeather(ctx context.Context, city *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type weatherServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewWeatherServiceClient creates a client over cc.
func NewWeatherServiceClient(cc grpc.ClientConnInterface) WeatherServiceClient {
	return &weatherServiceClient{cc: cc}
}

func (c *weatherServiceClient) GetWeather(ctx context.Context, city *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetWeatherFullMethodName, city, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

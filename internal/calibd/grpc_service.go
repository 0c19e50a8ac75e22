package calibd

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// CalibrationServiceName is the fully qualified gRPC service name
const CalibrationServiceName = "calibration.v1.CalibrationService"

// CalibrationServiceServer is the server API. Requests and responses are
// google.protobuf.Struct messages so no generated code is needed.
type CalibrationServiceServer interface {
	StartCalibration(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCalibration(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopCalibration(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(CalibrationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// CalibrationServiceDesc describes the service for grpc.Server.RegisterService
var CalibrationServiceDesc = grpc.ServiceDesc{
	ServiceName: CalibrationServiceName,
	HandlerType: (*CalibrationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartCalibration", Handler: unaryHandler("StartCalibration", CalibrationServiceServer.StartCalibration)},
		{MethodName: "GetCalibration", Handler: unaryHandler("GetCalibration", CalibrationServiceServer.GetCalibration)},
		{MethodName: "StopCalibration", Handler: unaryHandler("StopCalibration", CalibrationServiceServer.StopCalibration)},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterCalibrationServiceServer registers srv on s
func RegisterCalibrationServiceServer(s grpc.ServiceRegistrar, srv CalibrationServiceServer) {
	s.RegisterService(&CalibrationServiceDesc, srv)
}

func unaryHandler(name string, call structMethod) grpc.MethodHandler {
	fullMethod := "/" + CalibrationServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CalibrationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CalibrationServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// CalibrationClient calls CalibrationService over a client connection
type CalibrationClient struct {
	cc grpc.ClientConnInterface
}

func NewCalibrationClient(cc grpc.ClientConnInterface) *CalibrationClient {
	return &CalibrationClient{cc: cc}
}

func (c *CalibrationClient) StartCalibration(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "StartCalibration", in, opts...)
}

func (c *CalibrationClient) GetCalibration(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetCalibration", in, opts...)
}

func (c *CalibrationClient) StopCalibration(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "StopCalibration", in, opts...)
}

func (c *CalibrationClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+CalibrationServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

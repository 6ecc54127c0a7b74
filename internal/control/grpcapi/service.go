// Package grpcapi exposes the session manager as the sandbox.v1.SandboxControl
// gRPC service. Every request and response is a google.protobuf.Struct
// carrying the same keyed form the REST and socket surfaces use, so the
// service is declared by hand instead of generated from a .proto file.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sandbox.v1.SandboxControl"

// Full method names.
const (
	MethodCreateSession   = "/" + ServiceName + "/CreateSession"
	MethodGetSession      = "/" + ServiceName + "/GetSession"
	MethodListSessions    = "/" + ServiceName + "/ListSessions"
	MethodDeleteSession   = "/" + ServiceName + "/DeleteSession"
	MethodResetSession    = "/" + ServiceName + "/ResetSession"
	MethodRunToCompletion = "/" + ServiceName + "/RunToCompletion"
	MethodStep            = "/" + ServiceName + "/Step"
	MethodControl         = "/" + ServiceName + "/Control"
	MethodWatch           = "/" + ServiceName + "/Watch"
)

// SandboxControlServer is the server API of the service.
type SandboxControlServer interface {
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunToCompletion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Control(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*structpb.Struct, SandboxControl_WatchServer) error
}

// SandboxControl_WatchServer is the server side of a Watch stream.
type SandboxControl_WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchServer struct {
	grpc.ServerStream
}

func (w *watchServer) Send(m *structpb.Struct) error { return w.ServerStream.SendMsg(m) }

type unaryCall func(SandboxControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SandboxControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SandboxControlServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SandboxControlServer).Watch(in, &watchServer{stream})
}

// ServiceDesc describes the service for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SandboxControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSession", Handler: unaryHandler(MethodCreateSession, SandboxControlServer.CreateSession)},
		{MethodName: "GetSession", Handler: unaryHandler(MethodGetSession, SandboxControlServer.GetSession)},
		{MethodName: "ListSessions", Handler: unaryHandler(MethodListSessions, SandboxControlServer.ListSessions)},
		{MethodName: "DeleteSession", Handler: unaryHandler(MethodDeleteSession, SandboxControlServer.DeleteSession)},
		{MethodName: "ResetSession", Handler: unaryHandler(MethodResetSession, SandboxControlServer.ResetSession)},
		{MethodName: "RunToCompletion", Handler: unaryHandler(MethodRunToCompletion, SandboxControlServer.RunToCompletion)},
		{MethodName: "Step", Handler: unaryHandler(MethodStep, SandboxControlServer.Step)},
		{MethodName: "Control", Handler: unaryHandler(MethodControl, SandboxControlServer.Control)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "sandbox/v1/sandbox.proto",
}

// RegisterSandboxControlServer registers srv on s.
func RegisterSandboxControlServer(s grpc.ServiceRegistrar, srv SandboxControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

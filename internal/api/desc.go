package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lostfound.chat.v1.ChatService"

func method(name string) string { return "/" + ServiceName + "/" + name }

type chatServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func newStruct() *structpb.Struct { return new(structpb.Struct) }
func newEmpty() *emptypb.Empty    { return new(emptypb.Empty) }

func unary[Req, Resp proto.Message](name string, newReq func() Req, fn func(*Service, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Service)
			if interceptor == nil {
				return fn(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(s, ctx, req.(Req))
			})
		},
	}
}

// ServiceDesc describes ChatService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*chatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", newEmpty, (*Service).Status),
		unary("Login", newStruct, (*Service).Login),
		unary("Verify", newEmpty, (*Service).Verify),
		unary("ListChats", newEmpty, (*Service).ListChats),
		unary("StartChat", newStruct, (*Service).StartChat),
		unary("OpenChat", newStruct, (*Service).OpenChat),
		unary("CloseChat", newEmpty, (*Service).CloseChat),
		unary("ListMessages", newStruct, (*Service).ListMessages),
		unary("SearchMessages", newStruct, (*Service).SearchMessages),
		unary("SendText", newStruct, (*Service).SendText),
		unary("InputChanged", newStruct, (*Service).InputChanged),
		unary("MarkRead", newStruct, (*Service).MarkRead),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := newStruct()
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(*Service).WatchEvents(in, stream)
			},
		},
	},
	Metadata: "lostfound/chat/v1/chat.proto",
}

// Register adds the service to a gRPC server.
func Register(srv *grpc.Server, s *Service) {
	srv.RegisterService(&ServiceDesc, s)
}

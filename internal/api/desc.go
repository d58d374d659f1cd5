package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified admin service name.
const ServiceName = "huddle.v1.AdminService"

// AdminServer is implemented by Service.
type AdminServer interface {
	CreateUser(context.Context, *CreateUserRequest) (*UserReply, error)
	IssueToken(context.Context, *IssueTokenRequest) (*TokenReply, error)
	CreateDirectChat(context.Context, *CreateDirectChatRequest) (*ChatReply, error)
	CreateGroupChat(context.Context, *CreateGroupChatRequest) (*ChatReply, error)
	History(context.Context, *HistoryRequest) (*HistoryReply, error)
	Status(context.Context, *StatusRequest) (*StatusReply, error)
	WatchMessages(*WatchRequest, MessageSender) error
}

// MessageSender is the server side of the WatchMessages stream.
type MessageSender interface {
	Send(*MessageEvent) error
	Context() context.Context
}

func methodPath(name string) string { return "/" + ServiceName + "/" + name }

func unary[Req, Resp any](name string, call func(AdminServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AdminServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPath(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(AdminServer), ctx, req.(*Req))
			})
		},
	}
}

type watchStream struct{ grpc.ServerStream }

func (w watchStream) Send(m *MessageEvent) error { return w.ServerStream.SendMsg(m) }

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateUser", AdminServer.CreateUser),
		unary("IssueToken", AdminServer.IssueToken),
		unary("CreateDirectChat", AdminServer.CreateDirectChat),
		unary("CreateGroupChat", AdminServer.CreateGroupChat),
		unary("History", AdminServer.History),
		unary("Status", AdminServer.Status),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchMessages",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(AdminServer).WatchMessages(in, watchStream{stream})
			},
		},
	},
	Metadata: "huddle/v1/admin",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&serviceDesc, srv)
}

// ServerCodec is the option every admin gRPC server must be built with.
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(jsonCodec{})
}

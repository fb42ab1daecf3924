package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// PeerServer handles RPCs from peer nodes.
type PeerServer interface {
	Connect(ctx context.Context, req *NodeInfo) (*NodeInfo, error)
	Echo(ctx context.Context, req *Echo) (*Echo, error)
	Pull(ctx context.Context, req *SlotUpdate) (*UpdateResult, error)
	Heartbeat(ctx context.Context, req *NodeVersion) (*NodeVersion, error)
	NewNodeNotify(ctx context.Context, req *NodeInfo) (*UpdateResult, error)
	DeleteNodeNotify(ctx context.Context, req *NodeInfo) (*UpdateResult, error)
}

// RegisterPeerServer registers the peer service on the given gRPC server.
func RegisterPeerServer(s grpc.ServiceRegistrar, srv PeerServer) {
	s.RegisterService(&peerServiceDesc, srv)
}

var peerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PeerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: TypeConnect.methodName(),
			Handler:    unaryHandler(TypeConnect, PeerServer.Connect),
		},
		{
			MethodName: TypeEcho.methodName(),
			Handler:    unaryHandler(TypeEcho, PeerServer.Echo),
		},
		{
			MethodName: TypePull.methodName(),
			Handler:    unaryHandler(TypePull, PeerServer.Pull),
		},
		{
			MethodName: TypeHeartbeat.methodName(),
			Handler:    unaryHandler(TypeHeartbeat, PeerServer.Heartbeat),
		},
		{
			MethodName: TypeNewNodeNotify.methodName(),
			Handler:    unaryHandler(TypeNewNodeNotify, PeerServer.NewNodeNotify),
		},
		{
			MethodName: TypeDeleteNodeNotify.methodName(),
			Handler:    unaryHandler(TypeDeleteNodeNotify, PeerServer.DeleteNodeNotify),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gossip/peer",
}

func unaryHandler[Req any, Resp any](
	rpcType Type,
	call func(PeerServer, context.Context, *Req) (*Resp, error),
) func(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	return func(
		srv any,
		ctx context.Context,
		dec func(any) error,
		interceptor grpc.UnaryServerInterceptor,
	) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PeerServer), ctx, req)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: rpcType.FullMethod(),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PeerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

package node

import (
	"context"

	"github.com/tangrc99/Gossip/pkg/rpc"
)

// PeerClient sends RPCs to a single peer.
//
// Errors caused by the peer being unreachable must wrap rpc.ErrUnavailable,
// so the node can distinguish them from the peer rejecting the request.
type PeerClient interface {
	Connect(ctx context.Context, req *rpc.NodeInfo) (*rpc.NodeInfo, error)
	Echo(ctx context.Context, req *rpc.Echo) (*rpc.Echo, error)
	Pull(ctx context.Context, req *rpc.SlotUpdate) (*rpc.UpdateResult, error)
	Heartbeat(ctx context.Context, req *rpc.NodeVersion) (*rpc.NodeVersion, error)
	NewNodeNotify(ctx context.Context, req *rpc.NodeInfo) (*rpc.UpdateResult, error)
	DeleteNodeNotify(ctx context.Context, req *rpc.NodeInfo) (*rpc.UpdateResult, error)
	Close() error
}

// Transport creates clients for peers.
type Transport interface {
	Dial(addr string) (PeerClient, error)
}

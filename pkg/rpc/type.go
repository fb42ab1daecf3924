package rpc

// Type is an identifier for a peer RPC.
type Type uint16

const (
	// TypeConnect exchanges node identities when connecting to a peer.
	TypeConnect Type = iota + 1
	// TypeEcho checks a peer is reachable.
	TypeEcho
	// TypePull pushes a slot snapshot to a peer.
	TypePull
	// TypeHeartbeat exchanges a slot version with a peer to detect peers
	// that are behind.
	TypeHeartbeat
	// TypeNewNodeNotify notifies a peer about a node joining the cluster.
	TypeNewNodeNotify
	// TypeDeleteNodeNotify notifies a peer about a node leaving the cluster.
	TypeDeleteNodeNotify
)

const serviceName = "gossip.Peer"

func (t Type) String() string {
	switch t {
	case TypeConnect:
		return "connect"
	case TypeEcho:
		return "echo"
	case TypePull:
		return "pull"
	case TypeHeartbeat:
		return "heartbeat"
	case TypeNewNodeNotify:
		return "new-node-notify"
	case TypeDeleteNodeNotify:
		return "delete-node-notify"
	default:
		return "unknown"
	}
}

// FullMethod returns the gRPC method name for the type.
func (t Type) FullMethod() string {
	return "/" + serviceName + "/" + t.methodName()
}

func (t Type) methodName() string {
	switch t {
	case TypeConnect:
		return "Connect"
	case TypeEcho:
		return "Echo"
	case TypePull:
		return "Pull"
	case TypeHeartbeat:
		return "Heartbeat"
	case TypeNewNodeNotify:
		return "NewNodeNotify"
	case TypeDeleteNodeNotify:
		return "DeleteNodeNotify"
	default:
		return "Unknown"
	}
}

package rpc

const (
	// EchoKey is the key sent in a liveness probe.
	EchoKey = "echo"
	// EchoValue is the value a peer replies with to a liveness probe.
	EchoValue = "hello"
)

// NodeInfo identifies a node in the cluster.
type NodeInfo struct {
	Name    string `codec:"name"`
	Address string `codec:"address"`
	// Version is the version of the nodes local slot.
	Version int64 `codec:"version"`
	// Visited contains the names of the nodes the message has already
	// reached.
	Visited []string `codec:"visited"`
}

type Echo struct {
	Key   string `codec:"key"`
	Value string `codec:"value"`
}

// SlotUpdate contains a full snapshot of a slot.
type SlotUpdate struct {
	// Name is the name of the node that owns the slot.
	Name    string            `codec:"name"`
	Version int64             `codec:"version"`
	Entries map[string]string `codec:"entries"`
	Visited []string          `codec:"visited"`
}

type UpdateResult struct {
	Version int64 `codec:"version"`
	Succeed bool  `codec:"succeed"`
}

// NodeVersion contains the version of a slot as known by a node.
type NodeVersion struct {
	Node    string `codec:"node"`
	Slot    string `codec:"slot"`
	Version int64  `codec:"version"`
}

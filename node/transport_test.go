package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/tangrc99/Gossip/pkg/rpc"
)

type pullRecord struct {
	addr   string
	update *rpc.SlotUpdate
}

// memNetwork routes peer RPCs between in-process nodes.
type memNetwork struct {
	nodes map[string]*Node
	down  map[string]bool
	pulls []pullRecord
	mu    sync.Mutex
}

func newMemNetwork() *memNetwork {
	return &memNetwork{
		nodes: make(map[string]*Node),
		down:  make(map[string]bool),
	}
}

func (m *memNetwork) Add(n *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes[n.LocalNode().InternalAddr] = n
}

func (m *memNetwork) SetDown(addr string, down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.down[addr] = down
}

// Pulls returns the slot updates sent to the given address.
func (m *memNetwork) Pulls(addr string) []*rpc.SlotUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	var updates []*rpc.SlotUpdate
	for _, r := range m.pulls {
		if r.addr == addr {
			updates = append(updates, r.update)
		}
	}
	return updates
}

func (m *memNetwork) Dial(addr string) (PeerClient, error) {
	return &memClient{network: m, addr: addr}, nil
}

func (m *memNetwork) target(addr string) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[addr]
	if !ok || m.down[addr] {
		return nil, fmt.Errorf("%w: %s", rpc.ErrUnavailable, addr)
	}
	return n, nil
}

var _ Transport = &memNetwork{}

type memClient struct {
	network *memNetwork
	addr    string
}

func (c *memClient) Connect(_ context.Context, req *rpc.NodeInfo) (*rpc.NodeInfo, error) {
	n, err := c.network.target(c.addr)
	if err != nil {
		return nil, err
	}
	return n.OnConnect(req.Name, req.Address, req.Version)
}

func (c *memClient) Echo(_ context.Context, req *rpc.Echo) (*rpc.Echo, error) {
	if _, err := c.network.target(c.addr); err != nil {
		return nil, err
	}
	return &rpc.Echo{Key: req.Key, Value: rpc.EchoValue}, nil
}

func (c *memClient) Pull(_ context.Context, req *rpc.SlotUpdate) (*rpc.UpdateResult, error) {
	n, err := c.network.target(c.addr)
	if err != nil {
		return nil, err
	}

	c.network.mu.Lock()
	c.network.pulls = append(c.network.pulls, pullRecord{addr: c.addr, update: req})
	c.network.mu.Unlock()

	version, err := n.OnPull(req.Name, req.Entries, req.Version, req.Visited)
	return &rpc.UpdateResult{Version: version, Succeed: err == nil}, nil
}

func (c *memClient) Heartbeat(_ context.Context, req *rpc.NodeVersion) (*rpc.NodeVersion, error) {
	n, err := c.network.target(c.addr)
	if err != nil {
		return nil, err
	}
	return &rpc.NodeVersion{
		Node:    n.Name(),
		Slot:    req.Slot,
		Version: n.OnHeartbeat(req.Node, req.Slot, req.Version),
	}, nil
}

func (c *memClient) NewNodeNotify(_ context.Context, req *rpc.NodeInfo) (*rpc.UpdateResult, error) {
	n, err := c.network.target(c.addr)
	if err != nil {
		return nil, err
	}
	accepted := n.OnNewPeerNotice(req.Name, req.Address, req.Version, req.Visited)
	return &rpc.UpdateResult{Succeed: accepted}, nil
}

func (c *memClient) DeleteNodeNotify(_ context.Context, req *rpc.NodeInfo) (*rpc.UpdateResult, error) {
	n, err := c.network.target(c.addr)
	if err != nil {
		return nil, err
	}
	n.OnPeerDepartedNotice(req.Name, req.Address, req.Version, req.Visited)
	return &rpc.UpdateResult{Succeed: true}, nil
}

func (c *memClient) Close() error {
	return nil
}

var _ PeerClient = &memClient{}

package cluster

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tangrc99/Gossip/pkg/log"
)

// Manager runs a cluster of in-process nodes.
type Manager struct {
	nodes []*Node

	token string

	mu sync.Mutex

	logger log.Logger
}

func NewManager(opts ...Option) *Manager {
	options := options{
		logger: log.NewNopLogger(),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	return &Manager{
		token:  options.token,
		logger: options.logger.WithSubsystem("cluster.manager"),
	}
}

// Update adds or removes nodes to match the given number of nodes. New
// nodes join the existing nodes. The oldest nodes are removed first.
func (m *Manager) Update(nodes int) {
	m.logger.Info("update", zap.Int("nodes", nodes))

	m.mu.Lock()
	defer m.mu.Unlock()

	if nodes > len(m.nodes) {
		added := nodes - len(m.nodes)
		for i := 0; i != added; i++ {
			m.addNodeLocked()
		}
	} else if len(m.nodes) > nodes {
		removed := len(m.nodes) - nodes
		for i := 0; i != removed; i++ {
			m.removeNodeLocked()
		}
	}
}

func (m *Manager) Nodes() []*Node {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy nodes to avoid race conditions when m.nodes is updated.
	var nodes []*Node
	nodes = append(nodes, m.nodes...)
	return nodes
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := len(m.nodes)
	for i := 0; i != removed; i++ {
		m.removeNodeLocked()
	}
}

func (m *Manager) addNodeLocked() {
	var peerAddrs []string
	for _, node := range m.nodes {
		peerAddrs = append(peerAddrs, node.PeerAddr())
	}

	node := NewNode(
		WithJoin(peerAddrs),
		WithToken(m.token),
		WithLogger(m.logger),
	)
	node.Start()

	m.logger.Info("added node", zap.String("node", node.Name()))

	m.nodes = append(m.nodes, node)
}

func (m *Manager) removeNodeLocked() {
	// Remove the oldest node.
	node := m.nodes[0]
	m.nodes = m.nodes[1:]
	node.Stop()

	m.logger.Info("removed node", zap.String("node", node.Name()))
}

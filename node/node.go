package node

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangrc99/Gossip/pkg/log"
	"github.com/tangrc99/Gossip/pkg/rpc"
	"github.com/tangrc99/Gossip/pkg/slot"
)

// LocalNode contains the identity of the local node.
type LocalNode struct {
	Name string `json:"name"`
	// InternalAddr is the address peers connect to. May be empty if the peer
	// listener is disabled.
	InternalAddr string `json:"internal_addr"`
	// ExternalAddr is the address clients connect to. May be empty if the
	// client listener is disabled.
	ExternalAddr string `json:"external_addr"`
}

// Value is the value of a key in a slot.
type Value struct {
	// Owner is the name of the node that owns the slot.
	Owner   string `json:"owner"`
	Value   string `json:"value"`
	Version int64  `json:"version"`
}

// Node is a member of the gossip cluster.
//
// Each node owns a local slot containing the key-value pairs written to that
// node, which is propagated to the other nodes in the cluster. The node also
// replicates the slots of every other node it learns about.
//
// Updates are propagated by pushing the full slot snapshot to a random subset
// of peers, which relay the update on to their own peers, excluding those the
// update has already visited. A background daemon then detects peers that are
// behind using heartbeats, pushes them the latest snapshot, retries failed
// calls, and removes peers that are unreachable.
type Node struct {
	local LocalNode

	localSlot *slot.Slot

	// slots contains the slots known by the node, keyed by owner name.
	slots   map[string]*slot.Slot
	slotsMu sync.Mutex

	// peers contains the known peers, keyed by name. peerIndex contains the
	// peer names for random selection.
	peers     map[string]*PeerLink
	peerIndex []string
	peersMu   sync.Mutex

	// lowerSlots contains the names of peers found to be behind that need
	// to be pushed the local slot.
	lowerSlots *nameQueue

	retries *retryQueue

	// unhealthy contains the names of peers that were found to be not alive.
	// Only accessed by the daemon.
	unhealthy map[string]struct{}

	conf      *Config
	transport Transport

	tickFuncs []TickFunc

	shutdown   *atomic.Bool
	shutdownCh chan struct{}
	departed   *atomic.Bool
	closed     *atomic.Bool

	// wg tracks background goroutines closing removed peers. wgMu orders
	// wg.Add against the closed flag so Close doesn't miss a goroutine.
	wg   sync.WaitGroup
	wgMu sync.Mutex

	metrics *Metrics
	logger  log.Logger
}

// New creates a node with the given identity. The node doesn't do anything
// in the background until Run is called.
func New(
	local LocalNode,
	conf *Config,
	transport Transport,
	opts ...Option,
) (*Node, error) {
	if local.Name == "" {
		return nil, ErrEmptyName
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt.apply(&options)
	}

	localSlot := slot.New(local.Name)
	n := &Node{
		local:     local,
		localSlot: localSlot,
		slots: map[string]*slot.Slot{
			local.Name: localSlot,
		},
		peers:      make(map[string]*PeerLink),
		lowerSlots: newNameQueue(),
		retries:    &retryQueue{},
		unhealthy:  make(map[string]struct{}),
		conf:       conf,
		transport:  transport,
		tickFuncs:  options.tickFuncs,
		shutdown:   atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
		departed:   atomic.NewBool(false),
		closed:     atomic.NewBool(false),
		metrics:    NewMetrics(),
		logger:     options.logger.WithSubsystem("node"),
	}
	n.metrics.Slots.Set(1)
	return n, nil
}

func (n *Node) Name() string {
	return n.local.Name
}

func (n *Node) LocalNode() LocalNode {
	return n.local
}

// Token returns the token clients must present, or an empty string if
// clients aren't authenticated.
func (n *Node) Token() string {
	return n.conf.Token
}

func (n *Node) Metrics() *Metrics {
	return n.metrics
}

// Write sets the key in the local slot and propagates the update to the
// cluster. Returns the new version of the local slot.
func (n *Node) Write(key string, value string) (int64, error) {
	version, err := n.localSlot.Put(key, value)
	if err != nil {
		return version, fmt.Errorf("write: %w", err)
	}
	n.propagateLocal()
	return version, nil
}

// Remove deletes the key from the local slot and propagates the update to
// the cluster. Returns the new version of the local slot.
func (n *Node) Remove(key string) (int64, error) {
	if key == "" {
		return slot.VersionRejected, fmt.Errorf("remove: %w", slot.ErrEmptyKey)
	}
	version, err := n.localSlot.Delete(key)
	if err != nil {
		return version, fmt.Errorf("remove: %w", err)
	}
	n.propagateLocal()
	return version, nil
}

// ReadLocal returns the value of the key in the local slot.
func (n *Node) ReadLocal(key string) (string, bool) {
	v, _, ok := n.localSlot.Lookup(key)
	return v, ok
}

// ReadAll returns the value of the key in every slot that contains it,
// sorted by owner.
//
// wantLatest is accepted for compatibility though the node doesn't query
// peers for a more recent value.
func (n *Node) ReadAll(key string, wantLatest bool) []Value {
	if wantLatest {
		n.logger.Debug(
			"read all: latest not supported; using local replicas",
			zap.String("key", key),
		)
	}

	var values []Value
	for _, s := range n.Slots() {
		v, version, ok := s.Lookup(key)
		if !ok {
			continue
		}
		values = append(values, Value{
			Owner:   s.Name(),
			Value:   v,
			Version: version,
		})
	}
	sort.Slice(values, func(i, j int) bool {
		return values[i].Owner < values[j].Owner
	})
	return values
}

// OnPull handles a slot update from a peer.
//
// If the update isn't older than the known slot version, the update is
// relayed to peers the update hasn't visited and merged into the slot.
// Returns the resulting slot version.
func (n *Node) OnPull(
	origin string,
	entries map[string]string,
	version int64,
	visited []string,
) (int64, error) {
	if origin == "" {
		return slot.VersionRejected, ErrEmptyName
	}
	// Only the local node updates its own slot.
	if origin == n.local.Name {
		return slot.VersionRejected, ErrSelfReference
	}

	s := n.ensureSlot(origin)
	if version < s.Version() {
		n.metrics.UpdatesInbound.WithLabelValues("stale").Inc()
		return slot.VersionRejected, slot.ErrStaleVersion
	}

	update := &rpc.SlotUpdate{
		Name:    origin,
		Version: version,
		Entries: entries,
		Visited: appendVisited(visited, n.local.Name),
	}
	for _, peer := range n.selectPeers(n.conf.Fanout, update.Visited) {
		peer.Propagate(update, RetryAnyLive)
		n.metrics.Relays.Inc()
	}

	result, err := s.MergeAll(entries, version)
	if err != nil {
		n.metrics.UpdatesInbound.WithLabelValues("stale").Inc()
		return result, err
	}
	n.metrics.UpdatesInbound.WithLabelValues("applied").Inc()
	return result, nil
}

// OnHeartbeat handles a peers version of the given slot, either from a
// heartbeat request or the response to a heartbeat. If the peer is behind it
// is queued to be pushed the local slot.
//
// Returns the local version of the slot, or slot.VersionRejected if the slot
// is unknown.
func (n *Node) OnHeartbeat(peerName string, slotName string, slotVersion int64) int64 {
	s, ok := n.Slot(slotName)
	if !ok {
		return slot.VersionRejected
	}

	version := s.Version()
	if slotVersion < version && peerName != n.local.Name {
		if n.lowerSlots.Push(peerName) {
			n.logger.Debug(
				"peer behind",
				zap.String("peer", peerName),
				zap.String("slot", slotName),
				zap.Int64("peer-version", slotVersion),
				zap.Int64("version", version),
			)
		}
	}
	return version
}

// RequestShutdown requests the node daemon to stop, after which the node
// notifies the cluster it is leaving. Returns false if a shutdown was
// already requested.
func (n *Node) RequestShutdown() bool {
	if !n.shutdown.CompareAndSwap(false, true) {
		return false
	}
	close(n.shutdownCh)
	n.logger.Info("shutdown requested")
	return true
}

// ShutdownCh returns a channel that is closed when a shutdown is requested.
func (n *Node) ShutdownCh() <-chan struct{} {
	return n.shutdownCh
}

// Slot returns the slot owned by the node with the given name.
func (n *Node) Slot(name string) (*slot.Slot, bool) {
	n.slotsMu.Lock()
	defer n.slotsMu.Unlock()

	s, ok := n.slots[name]
	return s, ok
}

// Slots returns all known slots.
func (n *Node) Slots() []*slot.Slot {
	n.slotsMu.Lock()
	defer n.slotsMu.Unlock()

	slots := make([]*slot.Slot, 0, len(n.slots))
	for _, s := range n.slots {
		slots = append(slots, s)
	}
	return slots
}

// MemoryUsed returns the total size of all known slots.
func (n *Node) MemoryUsed() int {
	var used int
	for _, s := range n.Slots() {
		used += s.MemoryUsed()
	}
	return used
}

// Peer returns the peer with the given name.
func (n *Node) Peer(name string) (PeerRecord, bool) {
	peer, ok := n.peer(name)
	if !ok {
		return PeerRecord{}, false
	}
	return peer.Record(), true
}

// Peers returns all known peers sorted by name.
func (n *Node) Peers() []PeerRecord {
	n.peersMu.Lock()
	records := make([]PeerRecord, 0, len(n.peers))
	for _, peer := range n.peers {
		records = append(records, peer.Record())
	}
	n.peersMu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
	return records
}

// propagateLocal sends a snapshot of the local slot to a random subset of
// peers.
func (n *Node) propagateLocal() {
	entries, version := n.localSlot.Snapshot()
	update := &rpc.SlotUpdate{
		Name:    n.local.Name,
		Version: version,
		Entries: entries,
		Visited: []string{n.local.Name},
	}
	for _, peer := range n.selectPeers(n.conf.Fanout, update.Visited) {
		peer.Propagate(update, RetryAnyLive)
	}
}

func (n *Node) ensureSlot(name string) *slot.Slot {
	n.slotsMu.Lock()
	defer n.slotsMu.Unlock()

	s, ok := n.slots[name]
	if !ok {
		s = slot.New(name)
		n.slots[name] = s
		n.metrics.Slots.Set(float64(len(n.slots)))
	}
	return s
}

func (n *Node) peer(name string) (*PeerLink, bool) {
	n.peersMu.Lock()
	defer n.peersMu.Unlock()

	peer, ok := n.peers[name]
	return peer, ok
}

func (n *Node) retry(task *retryTask) {
	n.retries.Push(task)
}

// appendVisited returns a copy of visited including name.
func appendVisited(visited []string, name string) []string {
	updated := make([]string, 0, len(visited)+1)
	for _, v := range visited {
		if v == name {
			continue
		}
		updated = append(updated, v)
	}
	return append(updated, name)
}

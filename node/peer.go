package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tangrc99/Gossip/pkg/log"
	"github.com/tangrc99/Gossip/pkg/rpc"
)

// PeerRecord contains the identity and liveness of a peer.
type PeerRecord struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	// Version is the last known version of the peers local slot.
	Version     int64     `json:"version"`
	Alive       bool      `json:"alive"`
	LastContact time.Time `json:"last_contact"`
}

type completion struct {
	call *call
	resp any
	err  error
}

// PeerLink sends RPCs to a single peer and tracks the peers liveness.
//
// Asynchronous calls return immediately, and their results are handled by a
// single drain goroutine per peer in the order the calls complete.
type PeerLink struct {
	client PeerClient

	// node is the local node that owns the link.
	node *Node

	// mu protects the below fields.
	mu          sync.Mutex
	name        string
	address     string
	version     int64
	alive       bool
	lastContact time.Time
	closed      bool

	// inflight tracks outstanding asynchronous calls.
	inflight sync.WaitGroup

	completions chan completion

	done      chan struct{}
	drainDone chan struct{}

	logger log.Logger
}

func newPeerLink(
	name string,
	address string,
	version int64,
	client PeerClient,
	node *Node,
) *PeerLink {
	link := &PeerLink{
		client:      client,
		node:        node,
		name:        name,
		address:     address,
		version:     version,
		alive:       true,
		lastContact: time.Now(),
		completions: make(chan completion, 16),
		done:        make(chan struct{}),
		drainDone:   make(chan struct{}),
		logger: node.logger.WithSubsystem("node.peer").With(
			zap.String("peer-addr", address),
		),
	}
	go link.drain()
	return link
}

func (l *PeerLink) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.name
}

func (l *PeerLink) Address() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.address
}

func (l *PeerLink) Version() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.version
}

func (l *PeerLink) Alive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.alive
}

func (l *PeerLink) LastContact() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lastContact
}

// Record returns a copy of the peers identity and liveness.
func (l *PeerLink) Record() PeerRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	return PeerRecord{
		Name:        l.name,
		Address:     l.address,
		Version:     l.version,
		Alive:       l.alive,
		LastContact: l.lastContact,
	}
}

// Connect sends the local node identity to the peer, and adopts the peers
// identity from the response. Returns the name of the peer.
func (l *PeerLink) Connect(ctx context.Context, local *rpc.NodeInfo) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.node.conf.HandshakeTimeout)
	defer cancel()

	resp, err := l.client.Connect(ctx, local)
	l.observe(rpc.TypeConnect, err)
	if err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}
	if resp.Name == "" {
		return "", fmt.Errorf("connect: %w", ErrEmptyName)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// The name is fixed once known.
	if l.name == "" {
		l.name = resp.Name
	}
	if resp.Address != "" {
		l.address = resp.Address
	}
	l.version = resp.Version
	return l.name, nil
}

// Probe sends an echo to the peer and returns whether the peer replied.
func (l *PeerLink) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, l.node.conf.ProbeTimeout)
	defer cancel()

	_, err := l.client.Echo(ctx, &rpc.Echo{Key: rpc.EchoKey})
	l.observe(rpc.TypeEcho, err)
	if err != nil {
		l.logger.Debug("probe failed", zap.Error(err))
		l.markUnreachable()
		return false
	}
	return true
}

// Propagate sends the slot update to the peer.
func (l *PeerLink) Propagate(update *rpc.SlotUpdate, retry RetryPolicy) {
	l.send(&call{
		rpcType:  rpc.TypePull,
		req:      update,
		retry:    retry,
		attempts: l.node.conf.RetryAttempts,
	})
}

// SendHeartbeat sends the version of the local slot to the peer. onResponse
// is called with the peers version of the slot.
func (l *PeerLink) SendHeartbeat(req *rpc.NodeVersion, onResponse func(resp *rpc.NodeVersion)) {
	l.send(&call{
		rpcType: rpc.TypeHeartbeat,
		req:     req,
		retry:   RetryNone,
		onResponse: func(_ *PeerLink, resp any) {
			onResponse(resp.(*rpc.NodeVersion))
		},
	})
}

// NotifyNewPeer notifies the peer about a node joining the cluster.
func (l *PeerLink) NotifyNewPeer(info *rpc.NodeInfo) {
	l.send(&call{
		rpcType:  rpc.TypeNewNodeNotify,
		req:      info,
		retry:    RetryAnyLive,
		attempts: l.node.conf.RetryAttempts,
	})
}

// NotifyPeerDeparted notifies the peer about a node leaving the cluster.
func (l *PeerLink) NotifyPeerDeparted(info *rpc.NodeInfo) {
	l.send(&call{
		rpcType:  rpc.TypeDeleteNodeNotify,
		req:      info,
		retry:    RetryAnyLive,
		attempts: l.node.conf.RetryAttempts,
	})
}

// Close stops the links drain loop and closes the client. Close waits for
// in-flight calls to complete until the context is cancelled.
func (l *PeerLink) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	inflightDone := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(inflightDone)
	}()
	select {
	case <-inflightDone:
	case <-ctx.Done():
	}

	close(l.done)
	<-l.drainDone

	return l.client.Close()
}

// send issues the call in the background. The result is handled on the
// drain loop.
func (l *PeerLink) send(c *call) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.inflight.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.inflight.Done()

		ctx, cancel := context.WithTimeout(
			context.Background(), l.node.conf.CallTimeout,
		)
		defer cancel()

		resp, err := l.issue(ctx, c)
		select {
		case l.completions <- completion{call: c, resp: resp, err: err}:
		case <-l.done:
		}
	}()
}

func (l *PeerLink) issue(ctx context.Context, c *call) (any, error) {
	switch c.rpcType {
	case rpc.TypePull:
		return l.client.Pull(ctx, c.req.(*rpc.SlotUpdate))
	case rpc.TypeHeartbeat:
		return l.client.Heartbeat(ctx, c.req.(*rpc.NodeVersion))
	case rpc.TypeNewNodeNotify:
		return l.client.NewNodeNotify(ctx, c.req.(*rpc.NodeInfo))
	case rpc.TypeDeleteNodeNotify:
		return l.client.DeleteNodeNotify(ctx, c.req.(*rpc.NodeInfo))
	default:
		return nil, fmt.Errorf("unsupported async call: %s", c.rpcType)
	}
}

func (l *PeerLink) drain() {
	defer close(l.drainDone)

	for {
		select {
		case c := <-l.completions:
			l.complete(c)
		case <-l.done:
			return
		}
	}
}

func (l *PeerLink) complete(c completion) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(
				"completion handler panic",
				zap.String("type", c.call.rpcType.String()),
				zap.Any("err", r),
			)
		}
	}()

	l.observe(c.call.rpcType, c.err)

	if c.err == nil {
		if c.call.onResponse != nil {
			c.call.onResponse(l, c.resp)
		}
		return
	}

	l.logger.Debug(
		"call failed",
		zap.String("type", c.call.rpcType.String()),
		zap.Error(c.err),
	)

	if c.call.retry != RetryNone && c.call.attempts > 0 {
		l.node.retry(&retryTask{
			call:   c.call,
			target: l.Name(),
		})
	}
}

// observe updates the peers liveness given the result of a call.
func (l *PeerLink) observe(rpcType rpc.Type, err error) {
	result := "success"
	switch {
	case err == nil:
		l.markAlive()
	case errors.Is(err, rpc.ErrUnavailable):
		result = "unavailable"
		l.markUnreachable()
	default:
		result = "error"
	}
	l.node.metrics.CallsTotal.WithLabelValues(rpcType.String(), result).Inc()
}

func (l *PeerLink) markAlive() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.alive {
		l.logger.Info("peer alive", zap.String("peer", l.name))
	}
	l.alive = true
	l.lastContact = time.Now()
}

func (l *PeerLink) markUnreachable() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.alive {
		l.logger.Info("peer unreachable", zap.String("peer", l.name))
	}
	l.alive = false
}

// markDeparted marks the peer as not alive if the given version isn't older
// than the peers known version. Returns false if the version is stale.
func (l *PeerLink) markDeparted(version int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if version < l.version {
		return false
	}
	l.version = version
	l.alive = false
	return true
}

// refresh marks the peer alive after it reconnects.
func (l *PeerLink) refresh(address string, version int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if address != "" {
		l.address = address
	}
	if version > l.version {
		l.version = version
	}
	l.alive = true
	l.lastContact = time.Now()
}

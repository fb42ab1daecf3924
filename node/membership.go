package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tangrc99/Gossip/pkg/backoff"
	"github.com/tangrc99/Gossip/pkg/rpc"
)

// ConnectTo connects to the node at the given address and adds it as a
// peer, then notifies the other peers about the new node. Returns the name of
// the connected node.
func (n *Node) ConnectTo(ctx context.Context, addr string) (string, error) {
	if n.closed.Load() {
		return "", ErrClosed
	}
	if addr == "" {
		return "", fmt.Errorf("connect: missing address")
	}
	if n.local.InternalAddr != "" && addr == n.local.InternalAddr {
		return "", fmt.Errorf("connect: %s: %w", addr, ErrSelfReference)
	}

	client, err := n.transport.Dial(addr)
	if err != nil {
		return "", fmt.Errorf("connect: %s: %w", addr, err)
	}
	link := newPeerLink("", addr, 0, client, n)

	name, err := link.Connect(ctx, &rpc.NodeInfo{
		Name:    n.local.Name,
		Address: n.local.InternalAddr,
		Version: n.localSlot.Version(),
	})
	if err == nil && name == n.local.Name {
		err = ErrSelfReference
	}
	if err != nil {
		_ = link.Close(ctx)
		return "", fmt.Errorf("connect: %s: %w", addr, err)
	}

	record := link.Record()
	existing, err := n.addPeer(link, true)
	if err != nil {
		_ = link.Close(ctx)
		return "", fmt.Errorf("connect: %s: %w", addr, err)
	}
	if existing != nil {
		n.closePeer(existing)
	}
	n.ensureSlot(record.Name)

	n.logger.Info(
		"connected to peer",
		zap.String("peer", record.Name),
		zap.String("addr", record.Address),
	)

	n.floodNewPeer(&rpc.NodeInfo{
		Name:    record.Name,
		Address: record.Address,
		Version: record.Version,
		Visited: []string{n.local.Name},
	})

	return record.Name, nil
}

// Join connects to each of the given addresses in parallel, retrying
// unreachable nodes until the context is cancelled.
//
// Returns the names of the nodes connected to. If any address couldn't be
// connected to, the returned error contains the failure for each.
func (n *Node) Join(ctx context.Context, addrs []string) ([]string, error) {
	var (
		mu    sync.Mutex
		names []string
		errs  *multierror.Error
	)

	var group errgroup.Group
	for _, addr := range addrs {
		if addr == n.local.InternalAddr {
			continue
		}

		addr := addr
		group.Go(func() error {
			name, err := n.joinAddr(ctx, addr)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs = multierror.Append(errs, err)
				return nil
			}
			names = append(names, name)
			return nil
		})
	}
	// Errors are collected in errs rather than returned.
	_ = group.Wait()

	return names, errs.ErrorOrNil()
}

func (n *Node) joinAddr(ctx context.Context, addr string) (string, error) {
	b := backoff.New(0, time.Millisecond*100, time.Second*5)
	for {
		name, err := n.ConnectTo(ctx, addr)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, rpc.ErrUnavailable) {
			return "", err
		}

		n.logger.Debug(
			"join: node unavailable; retrying",
			zap.String("addr", addr),
			zap.Error(err),
		)
		if !b.Wait(ctx) {
			return "", err
		}
	}
}

// OnConnect handles a connection from a new node. Returns the local node
// identity.
func (n *Node) OnConnect(name string, address string, version int64) (*rpc.NodeInfo, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if name == n.local.Name {
		return nil, ErrSelfReference
	}
	if n.closed.Load() {
		return nil, ErrClosed
	}

	if peer, ok := n.peer(name); ok {
		// The node is reconnecting.
		peer.refresh(address, version)
	} else {
		n.OnNewPeerNotice(name, address, version, []string{n.local.Name})
	}

	return &rpc.NodeInfo{
		Name:    n.local.Name,
		Address: n.local.InternalAddr,
		Version: n.localSlot.Version(),
	}, nil
}

// OnNewPeerNotice handles a notification that a node joined the cluster.
//
// If the node is unknown it is added as a peer and the notification is
// relayed to peers it hasn't visited. Returns false if the node was ignored.
func (n *Node) OnNewPeerNotice(
	name string,
	address string,
	version int64,
	visited []string,
) bool {
	if name == "" || address == "" || n.closed.Load() {
		return false
	}
	if name == n.local.Name || address == n.local.InternalAddr {
		return false
	}
	if _, ok := n.peer(name); ok {
		return false
	}

	client, err := n.transport.Dial(address)
	if err != nil {
		n.logger.Warn(
			"new peer: failed to dial",
			zap.String("peer", name),
			zap.String("addr", address),
			zap.Error(err),
		)
		return false
	}
	link := newPeerLink(name, address, version, client, n)
	existing, err := n.addPeer(link, false)
	if err != nil || existing != nil {
		// Either the node closed or another notification for the same node
		// won the race.
		n.closePeer(link)
		return false
	}

	n.logger.Info(
		"added peer",
		zap.String("peer", name),
		zap.String("addr", address),
	)

	n.floodNewPeer(&rpc.NodeInfo{
		Name:    name,
		Address: address,
		Version: version,
		Visited: appendVisited(visited, n.local.Name),
	})
	return true
}

// OnPeerDepartedNotice handles a notification that a node left the cluster.
// The node is marked as not alive and the notification is relayed to peers
// it hasn't visited.
func (n *Node) OnPeerDepartedNotice(
	name string,
	address string,
	version int64,
	visited []string,
) {
	peer, ok := n.peer(name)
	if !ok {
		return
	}
	if !peer.markDeparted(version) {
		n.logger.Debug(
			"peer departed: stale notice",
			zap.String("peer", name),
			zap.Int64("version", version),
		)
		return
	}

	n.logger.Info(
		"peer departed",
		zap.String("peer", name),
		zap.String("addr", address),
	)

	info := &rpc.NodeInfo{
		Name:    name,
		Address: address,
		Version: version,
		Visited: appendVisited(visited, n.local.Name),
	}
	for _, p := range n.selectPeers(n.conf.Fanout, info.Visited) {
		if p.Name() == name {
			continue
		}
		p.NotifyPeerDeparted(info)
	}
}

// Leave notifies a random subset of peers that the local node is leaving the
// cluster. The notification is only sent once.
func (n *Node) Leave() {
	if !n.departed.CompareAndSwap(false, true) {
		return
	}

	info := &rpc.NodeInfo{
		Name:    n.local.Name,
		Address: n.local.InternalAddr,
		Version: n.localSlot.Version(),
		Visited: []string{n.local.Name},
	}
	peers := n.selectPeers(n.conf.Fanout, info.Visited)
	for _, peer := range peers {
		peer.NotifyPeerDeparted(info)
	}

	n.logger.Info("leaving cluster", zap.Int("notified", len(peers)))
}

func (n *Node) floodNewPeer(info *rpc.NodeInfo) {
	exclude := appendVisited(info.Visited, info.Name)
	for _, peer := range n.selectPeers(n.conf.Fanout, exclude) {
		peer.NotifyNewPeer(info)
	}
}

// addPeer adds the link to the peer table. If a peer with the same name
// exists and replace is true, the existing peer is replaced and returned.
// Otherwise the existing peer is kept and returned.
//
// Returns ErrClosed if the node is closed, in which case the caller owns the
// link.
func (n *Node) addPeer(link *PeerLink, replace bool) (*PeerLink, error) {
	name := link.Name()

	n.peersMu.Lock()
	defer n.peersMu.Unlock()

	// Close swaps out the peer table under peersMu after setting closed, so
	// a link added here is either closed by Close or rejected.
	if n.closed.Load() {
		return nil, ErrClosed
	}

	existing, ok := n.peers[name]
	if ok && !replace {
		return existing, nil
	}
	n.peers[name] = link
	if !ok {
		n.peerIndex = append(n.peerIndex, name)
	}
	return existing, nil
}

// removePeer removes the peer from the peer table and closes the link.
func (n *Node) removePeer(name string) bool {
	n.peersMu.Lock()
	link, ok := n.peers[name]
	if ok {
		delete(n.peers, name)
		for i, indexed := range n.peerIndex {
			if indexed == name {
				n.peerIndex[i] = n.peerIndex[len(n.peerIndex)-1]
				n.peerIndex = n.peerIndex[:len(n.peerIndex)-1]
				break
			}
		}
	}
	n.peersMu.Unlock()

	if ok {
		n.closePeer(link)
	}
	return ok
}

// closePeer closes the link in the background. Once the node is closed the
// link is closed before returning.
func (n *Node) closePeer(link *PeerLink) {
	n.wgMu.Lock()
	if n.closed.Load() {
		n.wgMu.Unlock()
		n.closeLink(link)
		return
	}
	n.wg.Add(1)
	n.wgMu.Unlock()

	go func() {
		defer n.wg.Done()
		n.closeLink(link)
	}()
}

func (n *Node) closeLink(link *PeerLink) {
	ctx, cancel := context.WithTimeout(context.Background(), n.conf.CallTimeout)
	defer cancel()

	if err := link.Close(ctx); err != nil {
		n.logger.Debug("failed to close peer", zap.Error(err))
	}
}

package node

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tangrc99/Gossip/pkg/rpc"
)

// Run runs the node daemon until the context is cancelled or a shutdown is
// requested. Once stopped the node notifies the cluster it is leaving.
//
// Each tick the daemon pushes the local slot to one peer that is behind,
// redrives failed calls and checks for unhealthy peers to remove. Every
// health check interval it also sends a heartbeat to a random peer.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info(
		"starting node",
		zap.String("name", n.local.Name),
		zap.String("internal-addr", n.local.InternalAddr),
		zap.String("external-addr", n.local.ExternalAddr),
	)

	ticker := time.NewTicker(n.conf.TickInterval)
	defer ticker.Stop()

	healthCheckTicks := int(n.conf.HealthCheckInterval / n.conf.TickInterval)
	if healthCheckTicks < 1 {
		healthCheckTicks = 1
	}

	var ticks int
	for !n.shutdown.Load() {
		select {
		case <-ticker.C:
		case <-n.shutdownCh:
			continue
		case <-ctx.Done():
			n.Leave()
			return nil
		}

		ticks++
		n.tick(ctx, ticks%healthCheckTicks == 0)
	}

	n.Leave()
	return nil
}

// Close notifies the cluster the node is leaving, if not already done, then
// closes every peer link, waiting for in-flight calls to complete until the
// context is cancelled.
func (n *Node) Close(ctx context.Context) error {
	// Set under wgMu so any later closePeer sees closed and doesn't use wg.
	n.wgMu.Lock()
	swapped := n.closed.CompareAndSwap(false, true)
	n.wgMu.Unlock()
	if !swapped {
		return ErrClosed
	}
	n.Leave()

	n.peersMu.Lock()
	links := make([]*PeerLink, 0, len(n.peers))
	for _, link := range n.peers {
		links = append(links, link)
	}
	n.peers = make(map[string]*PeerLink)
	n.peerIndex = nil
	n.peersMu.Unlock()

	for _, link := range links {
		if err := link.Close(ctx); err != nil {
			n.logger.Debug("failed to close peer", zap.Error(err))
		}
	}
	n.wg.Wait()
	return nil
}

func (n *Node) tick(ctx context.Context, healthCheck bool) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("daemon tick panic", zap.Any("err", r))
		}
	}()

	n.repair()
	n.redriveRetries()
	for _, f := range n.tickFuncs {
		f(ctx)
	}
	if healthCheck {
		n.healthCheck()
	}
	n.evictUnhealthy(ctx)
	n.updateMetrics()
}

// repair pushes the local slot to the next peer known to be behind.
func (n *Node) repair() {
	name, ok := n.lowerSlots.Pop()
	if !ok {
		return
	}
	peer, ok := n.peer(name)
	if !ok {
		return
	}

	entries, version := n.localSlot.Snapshot()
	peer.Propagate(&rpc.SlotUpdate{
		Name:    n.local.Name,
		Version: version,
		Entries: entries,
		Visited: []string{n.local.Name},
	}, RetryOriginal)
	n.metrics.RepairPushes.Inc()

	n.logger.Debug(
		"repair push",
		zap.String("peer", name),
		zap.Int64("version", version),
	)
}

// redriveRetries resends each failed call according to its retry policy.
func (n *Node) redriveRetries() {
	for _, task := range n.retries.Drain() {
		var target *PeerLink
		switch task.call.retry {
		case RetryOriginal:
			if peer, ok := n.peer(task.target); ok {
				target = peer
			}
		case RetryAnyLive:
			exclude := append(task.call.exclude(), task.target)
			if peers := n.selectPeers(1, exclude); len(peers) > 0 {
				target = peers[0]
			}
		}

		if target == nil {
			n.metrics.Retries.WithLabelValues("dropped").Inc()
			n.logger.Debug(
				"retry: no target; dropping call",
				zap.String("type", task.call.rpcType.String()),
				zap.String("policy", task.call.retry.String()),
			)
			continue
		}

		retried := *task.call
		retried.attempts--
		target.send(&retried)
		n.metrics.Retries.WithLabelValues("redriven").Inc()
	}
}

// healthCheck sends a heartbeat to a random peer and marks peers that aren't
// alive as unhealthy.
func (n *Node) healthCheck() {
	n.heartbeat()

	for _, record := range n.Peers() {
		if !record.Alive {
			n.unhealthy[record.Name] = struct{}{}
		}
	}
}

func (n *Node) heartbeat() {
	peers := n.selectPeers(1, nil)
	if len(peers) == 0 {
		return
	}
	peer := peers[0]

	req := &rpc.NodeVersion{
		Node:    n.local.Name,
		Slot:    n.local.Name,
		Version: n.localSlot.Version(),
	}
	peer.SendHeartbeat(req, func(resp *rpc.NodeVersion) {
		name := resp.Node
		if name == "" {
			name = peer.Name()
		}
		n.OnHeartbeat(name, resp.Slot, resp.Version)
	})
}

// evictUnhealthy removes unhealthy peers that haven't been contacted within
// the eviction timeout and don't respond to a probe.
func (n *Node) evictUnhealthy(ctx context.Context) {
	for name := range n.unhealthy {
		peer, ok := n.peer(name)
		if !ok {
			delete(n.unhealthy, name)
			continue
		}
		if peer.Alive() {
			delete(n.unhealthy, name)
			continue
		}
		if time.Since(peer.LastContact()) <= n.conf.EvictionTimeout {
			continue
		}

		if peer.Probe(ctx) {
			n.logger.Info("peer recovered", zap.String("peer", name))
			delete(n.unhealthy, name)
			continue
		}

		n.removePeer(name)
		delete(n.unhealthy, name)
		n.metrics.Evictions.Inc()
		n.logger.Warn(
			"removed unreachable peer",
			zap.String("peer", name),
			zap.String("addr", peer.Address()),
		)
	}
}

func (n *Node) updateMetrics() {
	var alive, notAlive int
	for _, record := range n.Peers() {
		if record.Alive {
			alive++
		} else {
			notAlive++
		}
	}
	n.metrics.Peers.WithLabelValues("true").Set(float64(alive))
	n.metrics.Peers.WithLabelValues("false").Set(float64(notAlive))
	n.metrics.MemoryUsed.Set(float64(n.MemoryUsed()))
}

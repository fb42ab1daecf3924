package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangrc99/Gossip/pkg/rpc"
)

func TestNode_ConnectTo(t *testing.T) {
	t.Run("connect", func(t *testing.T) {
		network := newMemNetwork()
		a := testNode(t, network, "node-a")
		b := testNode(t, network, "node-b")

		name, err := a.ConnectTo(context.Background(), b.LocalNode().InternalAddr)
		require.NoError(t, err)
		assert.Equal(t, "node-b", name)

		// Both nodes know about each other.
		peer, ok := a.Peer("node-b")
		require.True(t, ok)
		assert.Equal(t, "node-b:8001", peer.Address)
		assert.True(t, peer.Alive)

		peer, ok = b.Peer("node-a")
		require.True(t, ok)
		assert.Equal(t, "node-a:8001", peer.Address)

		_, ok = a.Slot("node-b")
		assert.True(t, ok)
	})

	t.Run("flood new peer", func(t *testing.T) {
		network := newMemNetwork()
		a := testNode(t, network, "node-a")
		b := testNode(t, network, "node-b")
		c := testNode(t, network, "node-c")

		_, err := a.ConnectTo(context.Background(), b.LocalNode().InternalAddr)
		require.NoError(t, err)
		_, err = a.ConnectTo(context.Background(), c.LocalNode().InternalAddr)
		require.NoError(t, err)

		// node-b learns about node-c from node-a.
		assert.Eventually(t, func() bool {
			_, ok := b.Peer("node-c")
			return ok
		}, time.Second, time.Millisecond*10)
	})

	t.Run("self", func(t *testing.T) {
		network := newMemNetwork()
		a := testNode(t, network, "node-a")

		_, err := a.ConnectTo(context.Background(), a.LocalNode().InternalAddr)
		assert.ErrorIs(t, err, ErrSelfReference)
		assert.Empty(t, a.Peers())
	})

	t.Run("unreachable", func(t *testing.T) {
		network := newMemNetwork()
		a := testNode(t, network, "node-a")

		_, err := a.ConnectTo(context.Background(), "unknown:8001")
		assert.ErrorIs(t, err, rpc.ErrUnavailable)
		assert.Empty(t, a.Peers())
	})

	t.Run("closed", func(t *testing.T) {
		network := newMemNetwork()
		a := testNode(t, network, "node-a")
		b := testNode(t, network, "node-b")

		require.NoError(t, a.Close(context.Background()))

		_, err := a.ConnectTo(context.Background(), b.LocalNode().InternalAddr)
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, a.Close(context.Background()), ErrClosed)
	})
}

func TestNode_Close(t *testing.T) {
	network := newMemNetwork()
	a := testNode(t, network, "node-a")
	b := testNode(t, network, "node-b")

	_, err := a.ConnectTo(context.Background(), b.LocalNode().InternalAddr)
	require.NoError(t, err)

	require.NoError(t, a.Close(context.Background()))

	// node-b is notified node-a left.
	assert.Eventually(t, func() bool {
		peer, ok := b.Peer("node-a")
		return ok && !peer.Alive
	}, time.Second, time.Millisecond*10)
	assert.Empty(t, a.Peers())

	// A link added after the node closed is rejected and closed.
	client, err := network.Dial(b.LocalNode().InternalAddr)
	require.NoError(t, err)
	link := newPeerLink("node-b", b.LocalNode().InternalAddr, 0, client, a)
	existing, err := a.addPeer(link, true)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, existing)
	assert.Empty(t, a.Peers())

	a.closePeer(link)
	link.mu.Lock()
	assert.True(t, link.closed)
	link.mu.Unlock()

	assert.ErrorIs(t, a.Close(context.Background()), ErrClosed)
}

func TestNode_Join(t *testing.T) {
	network := newMemNetwork()
	a := testNode(t, network, "node-a")
	b := testNode(t, network, "node-b")
	c := testNode(t, network, "node-c")

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*500)
	defer cancel()

	names, err := a.Join(ctx, []string{
		b.LocalNode().InternalAddr,
		c.LocalNode().InternalAddr,
		"unknown:8001",
		// Ignored.
		a.LocalNode().InternalAddr,
	})
	assert.ErrorIs(t, err, rpc.ErrUnavailable)
	assert.ElementsMatch(t, []string{"node-b", "node-c"}, names)
}

func TestNode_OnNewPeerNotice(t *testing.T) {
	t.Run("self", func(t *testing.T) {
		a := testNode(t, newMemNetwork(), "node-a")

		assert.False(t, a.OnNewPeerNotice("node-x", "node-a:8001", 0, nil))
		assert.False(t, a.OnNewPeerNotice("node-a", "node-x:8001", 0, nil))
		assert.Empty(t, a.Peers())
	})

	t.Run("new peer", func(t *testing.T) {
		network := newMemNetwork()
		a := testNode(t, network, "node-a")
		testNode(t, network, "node-b")

		assert.True(t, a.OnNewPeerNotice("node-b", "node-b:8001", 5, []string{"node-c"}))

		peer, ok := a.Peer("node-b")
		require.True(t, ok)
		assert.Equal(t, int64(5), peer.Version)
		assert.True(t, peer.Alive)

		// Known peers are ignored.
		assert.False(t, a.OnNewPeerNotice("node-b", "node-b:8001", 6, []string{"node-c"}))
	})

	t.Run("relay", func(t *testing.T) {
		network := newMemNetwork()
		a := testNode(t, network, "node-a")
		b := testNode(t, network, "node-b")
		testNode(t, network, "node-c")

		_, err := a.ConnectTo(context.Background(), b.LocalNode().InternalAddr)
		require.NoError(t, err)

		assert.True(t, a.OnNewPeerNotice("node-c", "node-c:8001", 0, []string{"node-d"}))

		assert.Eventually(t, func() bool {
			_, ok := b.Peer("node-c")
			return ok
		}, time.Second, time.Millisecond*10)
	})
}

func TestNode_OnPeerDepartedNotice(t *testing.T) {
	t.Run("unknown", func(t *testing.T) {
		a := testNode(t, newMemNetwork(), "node-a")

		a.OnPeerDepartedNotice("node-b", "node-b:8001", 10, nil)
		assert.Empty(t, a.Peers())
	})

	t.Run("stale", func(t *testing.T) {
		network := newMemNetwork()
		a := testNode(t, network, "node-a")
		testNode(t, network, "node-b")

		require.True(t, a.OnNewPeerNotice("node-b", "node-b:8001", 10, nil))

		a.OnPeerDepartedNotice("node-b", "node-b:8001", 5, nil)
		peer, _ := a.Peer("node-b")
		assert.True(t, peer.Alive)
	})

	t.Run("departed", func(t *testing.T) {
		network := newMemNetwork()
		a := testNode(t, network, "node-a")
		testNode(t, network, "node-b")

		require.True(t, a.OnNewPeerNotice("node-b", "node-b:8001", 10, nil))

		a.OnPeerDepartedNotice("node-b", "node-b:8001", 10, nil)
		peer, ok := a.Peer("node-b")
		require.True(t, ok)
		assert.False(t, peer.Alive)
	})

	t.Run("relay", func(t *testing.T) {
		network := newMemNetwork()
		a := testNode(t, network, "node-a")
		b := testNode(t, network, "node-b")
		c := testNode(t, network, "node-c")

		_, err := a.ConnectTo(context.Background(), b.LocalNode().InternalAddr)
		require.NoError(t, err)
		_, err = a.ConnectTo(context.Background(), c.LocalNode().InternalAddr)
		require.NoError(t, err)
		assert.Eventually(t, func() bool {
			_, ok := b.Peer("node-c")
			return ok
		}, time.Second, time.Millisecond*10)

		a.OnPeerDepartedNotice("node-c", "node-c:8001", c.localSlot.Version(), nil)

		assert.Eventually(t, func() bool {
			peer, _ := b.Peer("node-c")
			return !peer.Alive
		}, time.Second, time.Millisecond*10)
	})
}

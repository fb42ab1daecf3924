package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangrc99/Gossip/node"
	"github.com/tangrc99/Gossip/pkg/log"
	"github.com/tangrc99/Gossip/pkg/rpc"
	"github.com/tangrc99/Gossip/pkg/status"
	"github.com/tangrc99/Gossip/server/api"
)

type unreachableTransport struct {
}

func (t *unreachableTransport) Dial(addr string) (node.PeerClient, error) {
	return nil, fmt.Errorf("dial %s: %w", addr, rpc.ErrUnavailable)
}

func testAPI(t *testing.T, token string) (*url.URL, *node.Node) {
	conf := node.DefaultConfig("node-1")
	conf.Token = token
	n, err := node.New(node.LocalNode{
		Name:         "node-1",
		InternalAddr: "127.0.0.1:8001",
	}, conf, &unreachableTransport{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := api.NewServer(n, prometheus.NewRegistry(), log.NewNopLogger())
	server.AddStatus("/node", node.NewStatus(n))
	go func() {
		assert.NoError(t, server.Serve(ln))
	}()

	t.Cleanup(func() {
		_ = server.Shutdown(context.Background())
		_ = n.Close(context.Background())
	})

	u, err := url.Parse("http://" + ln.Addr().String())
	require.NoError(t, err)
	return u, n
}

func TestClient_Keys(t *testing.T) {
	u, _ := testAPI(t, "")
	client := NewClient(u, "")
	defer client.Close()

	ctx := context.Background()

	version, err := client.Insert(ctx, "k1", "v1")
	require.NoError(t, err)
	assert.Greater(t, version, int64(0))

	v, err := client.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	values, err := client.Search(ctx, "k1", true)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "node-1", values[0].Owner)
	assert.Equal(t, "v1", values[0].Value)

	deleteVersion, err := client.Delete(ctx, "k1")
	require.NoError(t, err)
	assert.Greater(t, deleteVersion, version)

	_, err = client.Get(ctx, "k1")
	var errorInfo *status.ErrorInfo
	require.True(t, errors.As(err, &errorInfo))
	assert.Equal(t, http.StatusNotFound, errorInfo.StatusCode)
	assert.Equal(t, "not found", errorInfo.Message)
}

func TestClient_Token(t *testing.T) {
	u, _ := testAPI(t, "secret")

	t.Run("echo discovers token", func(t *testing.T) {
		client := NewClient(u, "")
		defer client.Close()

		token, err := client.Echo(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "secret", token)
	})

	t.Run("mismatch", func(t *testing.T) {
		client := NewClient(u, "wrong")
		defer client.Close()

		_, err := client.Insert(context.Background(), "k1", "v1")
		var errorInfo *status.ErrorInfo
		require.True(t, errors.As(err, &errorInfo))
		assert.Equal(t, http.StatusPreconditionFailed, errorInfo.StatusCode)
		assert.Equal(t, "token not matched", errorInfo.Message)
	})

	t.Run("match", func(t *testing.T) {
		client := NewClient(u, "secret")
		defer client.Close()

		_, err := client.Insert(context.Background(), "k1", "v1")
		assert.NoError(t, err)
	})
}

func TestClient_Cluster(t *testing.T) {
	u, n := testAPI(t, "")
	client := NewClient(u, "")
	defer client.Close()

	ctx := context.Background()

	t.Run("status", func(t *testing.T) {
		snapshot, err := client.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, "node-1", snapshot.Name)
		assert.Empty(t, snapshot.Peers)

		peers, err := client.Peers(ctx)
		require.NoError(t, err)
		assert.Empty(t, peers)

		slots, err := client.Slots(ctx)
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.Equal(t, "node-1", slots[0].Name)
	})

	t.Run("connect unreachable", func(t *testing.T) {
		err := client.Connect(ctx, "10.26.104.14:8001")
		assert.Error(t, err)
	})

	t.Run("shutdown", func(t *testing.T) {
		accepted, err := client.Shutdown(ctx)
		require.NoError(t, err)
		assert.True(t, accepted)

		<-n.ShutdownCh()
	})
}

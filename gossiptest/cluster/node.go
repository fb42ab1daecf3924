package cluster

import (
	"net/url"
	"time"

	"github.com/tangrc99/Gossip/client"
	"github.com/tangrc99/Gossip/node"
	"github.com/tangrc99/Gossip/pkg/log"
	"github.com/tangrc99/Gossip/server"
	"github.com/tangrc99/Gossip/server/config"
)

// Node is an in-process node listening on loopback with short intervals.
type Node struct {
	server *server.Server
}

func NewNode(opts ...Option) *Node {
	options := options{
		logger: log.NewNopLogger(),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	conf := config.Default()
	conf.Node.Token = options.token
	conf.Node.TickInterval = time.Millisecond * 10
	conf.Node.HealthCheckInterval = time.Millisecond * 50
	conf.Node.EvictionTimeout = time.Millisecond * 500
	conf.Node.ProbeTimeout = time.Millisecond * 200
	conf.Node.CallTimeout = time.Second
	conf.Peer.BindAddr = "127.0.0.1:0"
	conf.API.BindAddr = "127.0.0.1:0"
	conf.Cluster.Join = options.join
	conf.Cluster.JoinTimeout = time.Second * 10
	conf.GracePeriod = time.Second * 5

	s, err := server.NewServer(
		conf,
		options.logger,
	)
	if err != nil {
		panic("server: " + err.Error())
	}

	return &Node{
		server: s,
	}
}

func (n *Node) Name() string {
	return n.server.Config().Node.Name
}

func (n *Node) PeerAddr() string {
	return n.server.Config().Peer.AdvertiseAddr
}

func (n *Node) APIAddr() string {
	return n.server.Config().API.AdvertiseAddr
}

func (n *Node) Node() *node.Node {
	return n.server.Node()
}

// Client returns an API client for the node.
func (n *Node) Client() *client.Client {
	return client.NewClient(&url.URL{
		Scheme: "http",
		Host:   n.APIAddr(),
	}, n.server.Config().Node.Token)
}

func (n *Node) Start() {
	n.server.Start()
}

func (n *Node) Stop() {
	if err := n.server.Shutdown(); err != nil {
		panic("shutdown node: " + err.Error())
	}
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/tangrc99/Gossip/node"
	"github.com/tangrc99/Gossip/pkg/log"
)

type PeerConfig struct {
	// BindAddr is the address to bind to listen for incoming RPCs from
	// peers. If empty the node doesn't listen for peers.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address to advertise to other nodes.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`
}

type APIConfig struct {
	// BindAddr is the address to bind to listen for incoming HTTP
	// connections from clients. If empty the API is disabled.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address to advertise to clients.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`
}

type ClusterConfig struct {
	// Join contains a list of peer addresses of nodes in the cluster to
	// join.
	Join []string `json:"join" yaml:"join"`

	// JoinTimeout is the time to keep retrying unreachable nodes when
	// joining.
	JoinTimeout time.Duration `json:"join_timeout" yaml:"join_timeout"`

	AbortIfJoinFails bool `json:"abort_if_join_fails" yaml:"abort_if_join_fails"`
}

func (c *ClusterConfig) Validate() error {
	if len(c.Join) > 0 && c.JoinTimeout <= 0 {
		return fmt.Errorf("missing join timeout")
	}
	return nil
}

type Config struct {
	Node    node.Config   `json:"node" yaml:"node"`
	Peer    PeerConfig    `json:"peer" yaml:"peer"`
	API     APIConfig     `json:"api" yaml:"api"`
	Cluster ClusterConfig `json:"cluster" yaml:"cluster"`
	Log     log.Config    `json:"log" yaml:"log"`

	// GracePeriod is the duration to gracefully shutdown the node. During
	// the grace period, the node notifies the cluster it is leaving and
	// waits for in-flight calls and requests to complete.
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period"`
}

// Default returns the default configuration, matching the flag defaults.
func Default() *Config {
	return &Config{
		Node: *node.DefaultConfig(""),
		Peer: PeerConfig{
			BindAddr: ":8001",
		},
		API: APIConfig{
			BindAddr: ":8002",
		},
		Cluster: ClusterConfig{
			JoinTimeout: time.Minute,
		},
		Log: log.Config{
			Level: "info",
		},
		GracePeriod: time.Minute,
	}
}

func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if err := c.Cluster.Validate(); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	if len(c.Cluster.Join) > 0 && c.Peer.BindAddr == "" {
		return fmt.Errorf("cluster: cannot join without a peer bind addr")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if c.GracePeriod == 0 {
		return fmt.Errorf("missing grace period")
	}

	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	defaults := Default()

	c.Node.RegisterFlags(fs)

	fs.StringVar(
		&c.Peer.BindAddr,
		"peer.bind-addr",
		defaults.Peer.BindAddr,
		`
The host/port to listen for RPCs from other nodes in the cluster.

If the host is unspecified it defaults to all listeners, such as
'--peer.bind-addr :8001' will listen on '0.0.0.0:8001'.

If empty the node doesn't accept connections from peers.`,
	)
	fs.StringVar(
		&c.Peer.AdvertiseAddr,
		"peer.advertise-addr",
		"",
		`
Peer listen address to advertise to other nodes in the cluster.

Such as if the listen address is ':8001', the advertised address may be
'10.26.104.45:8001' or 'node1.cluster:8001'.

By default, if the bind address includes an IP to bind to that will be used.
If the bind address does not include an IP (such as ':8001') the nodes
private IP will be used, such as a bind address of ':8001' may have an
advertise address of '10.16.104.14:8001'.`,
	)

	fs.StringVar(
		&c.API.BindAddr,
		"api.bind-addr",
		defaults.API.BindAddr,
		`
The host/port to listen for client HTTP requests.

If the host is unspecified it defaults to all listeners, such as
'--api.bind-addr :8002' will listen on '0.0.0.0:8002'.

If empty the client API is disabled.`,
	)
	fs.StringVar(
		&c.API.AdvertiseAddr,
		"api.advertise-addr",
		"",
		`
API listen address to advertise in the node status.

By default the advertise address is derived from the bind address the same
as '--peer.advertise-addr'.`,
	)

	fs.StringSliceVar(
		&c.Cluster.Join,
		"cluster.join",
		nil,
		`
A list of peer addresses of nodes in the cluster to join, such as
'--cluster.join 10.26.104.14:8001,10.26.104.75:8001'.

Each node notifies the other known nodes about new members, so the initial
set of configured nodes only needs to be a subset of the cluster.`,
	)
	fs.DurationVar(
		&c.Cluster.JoinTimeout,
		"cluster.join-timeout",
		defaults.Cluster.JoinTimeout,
		`
Duration to keep retrying unreachable nodes when joining the cluster.`,
	)
	fs.BoolVar(
		&c.Cluster.AbortIfJoinFails,
		"cluster.abort-if-join-fails",
		false,
		`
Whether the node should abort if it is configured with nodes to join but
fails to join any of them.`,
	)

	c.Log.RegisterFlags(fs)

	fs.DurationVar(
		&c.GracePeriod,
		"grace-period",
		defaults.GracePeriod,
		`
Maximum duration after a shutdown signal is received (SIGTERM or
SIGINT) or a shutdown request to gracefully shutdown the node before
terminating. This includes announcing to the cluster the node is leaving,
waiting for in-flight calls to peers and handling in-progress requests.`,
	)
}

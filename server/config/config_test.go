package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangrc99/Gossip/node"
	"github.com/tangrc99/Gossip/pkg/config"
	"github.com/tangrc99/Gossip/pkg/log"
)

// Tests the default configuration is valid.
func TestConfig_Default(t *testing.T) {
	conf := Default()
	conf.Node.Name = "my-node"
	assert.NoError(t, conf.Validate())
}

// Tests loading the node configuration from YAML.
func TestConfig_LoadYAML(t *testing.T) {
	yaml := `
node:
  name: my-node
  token: my-token
  fanout: 5
  tick_interval: 500ms
  health_check_interval: 10s
  eviction_timeout: 1m
  handshake_timeout: 3s
  probe_timeout: 4s
  call_timeout: 5s
  retry_attempts: 2

peer:
  bind_addr: 10.15.104.25:8001
  advertise_addr: 1.2.3.4:8001

api:
  bind_addr: 10.15.104.25:8002
  advertise_addr: 1.2.3.4:8002

cluster:
  join:
    - 10.26.104.12:8001
    - 10.26.104.73:8001
  join_timeout: 2m
  abort_if_join_fails: true

log:
  level: debug
  subsystems:
    - foo
    - bar

grace_period: 2m
`

	f, err := os.CreateTemp("", "gossip")
	require.NoError(t, err)
	defer os.Remove(f.Name())

	_, err = f.WriteString(yaml)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var loadedConf Config
	require.NoError(t, config.Load(f.Name(), &loadedConf, false))

	expectedConf := Config{
		Node: node.Config{
			Name:                "my-node",
			Token:               "my-token",
			Fanout:              5,
			TickInterval:        time.Millisecond * 500,
			HealthCheckInterval: time.Second * 10,
			EvictionTimeout:     time.Minute,
			HandshakeTimeout:    time.Second * 3,
			ProbeTimeout:        time.Second * 4,
			CallTimeout:         time.Second * 5,
			RetryAttempts:       2,
		},
		Peer: PeerConfig{
			BindAddr:      "10.15.104.25:8001",
			AdvertiseAddr: "1.2.3.4:8001",
		},
		API: APIConfig{
			BindAddr:      "10.15.104.25:8002",
			AdvertiseAddr: "1.2.3.4:8002",
		},
		Cluster: ClusterConfig{
			Join: []string{
				"10.26.104.12:8001",
				"10.26.104.73:8001",
			},
			JoinTimeout:      2 * time.Minute,
			AbortIfJoinFails: true,
		},
		Log: log.Config{
			Level: "debug",
			Subsystems: []string{
				"foo",
				"bar",
			},
		},
		GracePeriod: 2 * time.Minute,
	}
	assert.Equal(t, expectedConf, loadedConf)
	assert.NoError(t, loadedConf.Validate())
}

// Tests loading the node configuration from flags.
func TestConfig_LoadFlags(t *testing.T) {
	args := []string{
		"--node.name", "my-node",
		"--node.token", "my-token",
		"--node.fanout", "5",
		"--node.tick-interval", "500ms",
		"--node.health-check-interval", "10s",
		"--node.eviction-timeout", "1m",
		"--node.handshake-timeout", "3s",
		"--node.probe-timeout", "4s",
		"--node.call-timeout", "5s",
		"--node.retry-attempts", "2",
		"--peer.bind-addr", "10.15.104.25:8001",
		"--peer.advertise-addr", "1.2.3.4:8001",
		"--api.bind-addr", "",
		"--cluster.join", "10.26.104.12:8001,10.26.104.73:8001",
		"--cluster.join-timeout", "2m",
		"--cluster.abort-if-join-fails",
		"--log.level", "debug",
		"--log.subsystems", "foo,bar",
		"--grace-period", "2m",
	}

	fs := pflag.NewFlagSet("", pflag.PanicOnError)

	var loadedConf Config
	loadedConf.RegisterFlags(fs)

	require.NoError(t, fs.Parse(args))

	expectedConf := Config{
		Node: node.Config{
			Name:                "my-node",
			Token:               "my-token",
			Fanout:              5,
			TickInterval:        time.Millisecond * 500,
			HealthCheckInterval: time.Second * 10,
			EvictionTimeout:     time.Minute,
			HandshakeTimeout:    time.Second * 3,
			ProbeTimeout:        time.Second * 4,
			CallTimeout:         time.Second * 5,
			RetryAttempts:       2,
		},
		Peer: PeerConfig{
			BindAddr:      "10.15.104.25:8001",
			AdvertiseAddr: "1.2.3.4:8001",
		},
		API: APIConfig{},
		Cluster: ClusterConfig{
			Join: []string{
				"10.26.104.12:8001",
				"10.26.104.73:8001",
			},
			JoinTimeout:      2 * time.Minute,
			AbortIfJoinFails: true,
		},
		Log: log.Config{
			Level: "debug",
			Subsystems: []string{
				"foo",
				"bar",
			},
		},
		GracePeriod: 2 * time.Minute,
	}
	assert.Equal(t, expectedConf, loadedConf)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("join without peer listener", func(t *testing.T) {
		conf := Default()
		conf.Peer.BindAddr = ""
		conf.Cluster.Join = []string{"10.26.104.12:8001"}
		assert.Error(t, conf.Validate())
	})

	t.Run("name and prefix", func(t *testing.T) {
		conf := Default()
		conf.Node.Name = "my-node"
		conf.Node.NamePrefix = "my-"
		assert.Error(t, conf.Validate())
	})

	t.Run("missing grace period", func(t *testing.T) {
		conf := Default()
		conf.GracePeriod = 0
		assert.Error(t, conf.Validate())
	})
}

package node

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	// Name is a unique identifier for the node in the cluster.
	Name string `json:"name" yaml:"name"`

	// NamePrefix is a node name prefix, where a unique suffix is generated
	// for the rest of the name.
	NamePrefix string `json:"name_prefix" yaml:"name_prefix"`

	// Token is a shared secret clients must present. If empty, clients
	// aren't authenticated.
	Token string `json:"token" yaml:"token"`

	// Fanout is the number of peers each update is propagated to.
	Fanout int `json:"fanout" yaml:"fanout"`

	// TickInterval is the interval between daemon ticks.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`

	// HealthCheckInterval is the interval between heartbeats and checks for
	// unhealthy peers.
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval"`

	// EvictionTimeout is the duration since last contacting a peer before
	// the peer is probed and removed if unreachable.
	EvictionTimeout time.Duration `json:"eviction_timeout" yaml:"eviction_timeout"`

	// HandshakeTimeout is the timeout when connecting to a peer.
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`

	// ProbeTimeout is the timeout when probing an unhealthy peer.
	ProbeTimeout time.Duration `json:"probe_timeout" yaml:"probe_timeout"`

	// CallTimeout bounds asynchronous peer calls, after which the peer is
	// considered unavailable.
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`

	// RetryAttempts is the number of times a failed call is redriven.
	RetryAttempts int `json:"retry_attempts" yaml:"retry_attempts"`
}

// DefaultConfig returns the default node configuration with the given name.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:                name,
		Fanout:              3,
		TickInterval:        time.Second,
		HealthCheckInterval: time.Second * 5,
		EvictionTimeout:     time.Second * 30,
		HandshakeTimeout:    time.Second * 2,
		ProbeTimeout:        time.Second * 2,
		CallTimeout:         time.Second * 10,
		RetryAttempts:       3,
	}
}

func (c *Config) Validate() error {
	if c.Name != "" && c.NamePrefix != "" {
		return fmt.Errorf("cannot specify both name and name prefix")
	}
	if c.Fanout <= 0 {
		return fmt.Errorf("fanout must be positive")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("missing tick interval")
	}
	if c.HealthCheckInterval < c.TickInterval {
		return fmt.Errorf("health check interval must be at least the tick interval")
	}
	if c.EvictionTimeout <= 0 {
		return fmt.Errorf("missing eviction timeout")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("missing handshake timeout")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("missing probe timeout")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("missing call timeout")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	defaults := DefaultConfig("")

	fs.StringVar(
		&c.Name,
		"node.name",
		"",
		`
A unique name for the node in the cluster.

By default a random name will be generated for the node.`,
	)
	fs.StringVar(
		&c.NamePrefix,
		"node.name-prefix",
		"",
		`
A prefix for the node name.

A unique random identifier is generated and appended to the given prefix.`,
	)
	fs.StringVar(
		&c.Token,
		"node.token",
		"",
		`
Token clients must include in the 'token' header of each request.

If empty clients aren't authenticated.`,
	)
	fs.IntVar(
		&c.Fanout,
		"node.fanout",
		defaults.Fanout,
		`
Number of random peers each update is propagated to.`,
	)
	fs.DurationVar(
		&c.TickInterval,
		"node.tick-interval",
		defaults.TickInterval,
		`
Interval between background ticks, which repair peers that are behind and
retry failed calls.`,
	)
	fs.DurationVar(
		&c.HealthCheckInterval,
		"node.health-check-interval",
		defaults.HealthCheckInterval,
		`
Interval between heartbeats to a random peer and checks for unhealthy
peers.`,
	)
	fs.DurationVar(
		&c.EvictionTimeout,
		"node.eviction-timeout",
		defaults.EvictionTimeout,
		`
Duration since last contact with an unhealthy peer before probing it. If the
probe fails the peer is removed from the cluster.`,
	)
	fs.DurationVar(
		&c.HandshakeTimeout,
		"node.handshake-timeout",
		defaults.HandshakeTimeout,
		`
Timeout connecting to a new peer.`,
	)
	fs.DurationVar(
		&c.ProbeTimeout,
		"node.probe-timeout",
		defaults.ProbeTimeout,
		`
Timeout probing an unhealthy peer.`,
	)
	fs.DurationVar(
		&c.CallTimeout,
		"node.call-timeout",
		defaults.CallTimeout,
		`
Timeout for background calls to peers, such as propagating updates.`,
	)
	fs.IntVar(
		&c.RetryAttempts,
		"node.retry-attempts",
		defaults.RetryAttempts,
		`
Number of times a failed call to a peer is retried.`,
	)
}

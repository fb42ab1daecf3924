package cluster

import (
	"github.com/tangrc99/Gossip/pkg/log"
)

type options struct {
	join   []string
	token  string
	logger log.Logger
}

type joinOption struct {
	Join []string
}

func (o joinOption) apply(opts *options) {
	opts.join = o.Join
}

// WithJoin configures the peer addresses of the nodes to join.
func WithJoin(join []string) Option {
	return joinOption{Join: join}
}

type tokenOption string

func (o tokenOption) apply(opts *options) {
	opts.token = string(o)
}

// WithToken configures the token clients must send.
func WithToken(token string) Option {
	return tokenOption(token)
}

type loggerOption struct {
	Logger log.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.logger = o.Logger
}

// WithLogger configures the logger. Defaults to no output.
func WithLogger(logger log.Logger) Option {
	return loggerOption{Logger: logger}
}

type Option interface {
	apply(*options)
}

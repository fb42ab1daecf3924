package node

import (
	"context"

	"github.com/tangrc99/Gossip/pkg/log"
)

// TickFunc runs on each daemon tick after the built-in tasks.
type TickFunc func(ctx context.Context)

type options struct {
	tickFuncs []TickFunc
	logger    log.Logger
}

type Option interface {
	apply(*options)
}

func defaultOptions() options {
	return options{
		logger: log.NewNopLogger(),
	}
}

type tickFuncOption struct {
	TickFunc TickFunc
}

func (o tickFuncOption) apply(opts *options) {
	opts.tickFuncs = append(opts.tickFuncs, o.TickFunc)
}

// WithTickFunc adds a task to run on each daemon tick.
func WithTickFunc(f TickFunc) Option {
	return tickFuncOption{TickFunc: f}
}

type loggerOption struct {
	Logger log.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.logger = o.Logger
}

func WithLogger(l log.Logger) Option {
	return loggerOption{Logger: l}
}

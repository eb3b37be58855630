package amqp

import (
	"github.com/pkg/errors"

	"github.com/orderwise/orderwise/pubsub/transport"
)

type ConsumeOptions struct {
	Exclusive     bool
	NoLocal       bool
	NoWait        bool
	PrefetchCount uint
}

type SendOptions struct {
	Mandatory bool
	Immediate bool
}

func consumeOpt(name string, apply func(*ConsumeOptions)) transport.ConsumeOpts {
	return func(options interface{}) error {
		opts, ok := options.(*ConsumeOptions)
		if !ok {
			return errors.Errorf("%s must be called on amqp.ConsumeOptions", name)
		}

		apply(opts)

		return nil
	}
}

// WithQosPrefetchCount bounds the number of unacked deliveries per channel.
// Usually set to the subscriber's worker count.
func WithQosPrefetchCount(limit uint) transport.ConsumeOpts {
	return consumeOpt("WithQosPrefetchCount", func(o *ConsumeOptions) { o.PrefetchCount = limit })
}

func WithExclusive() transport.ConsumeOpts {
	return consumeOpt("WithExclusive", func(o *ConsumeOptions) { o.Exclusive = true })
}

func WithMandatory() transport.SendOpts {
	return func(options interface{}) error {
		opts, ok := options.(*SendOptions)
		if !ok {
			return errors.Errorf("WithMandatory must be called on amqp.SendOptions")
		}

		opts.Mandatory = true

		return nil
	}
}

// Package transport abstracts the message broker behind the saga bus. Two
// implementations exist, AMQP and Kafka, and the rest of the system only sees
// this contract.
package transport

import "context"

// Transport is a connected broker client. Connect must be called before Send
// or Consume; Disconnect drains and closes the underlying connections.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	// CreateTopic declares the destination so publishes never race consumers.
	CreateTopic(ctx context.Context, topic Topic) error
	// CreateQueue declares a consumable queue. Kafka treats queues and topics
	// as the same thing and ignores the binds.
	CreateQueue(ctx context.Context, queue Queue, queueBind ...QueueBind) error

	// Consume fans packages from all given queues into one channel. The
	// channel closes when ctx is canceled and all internal consumers exited.
	Consume(ctx context.Context, queues []Queue, options ...ConsumeOpts) (<-chan IncomingPkg, error)
	Send(ctx context.Context, outboundPkg OutboundPkg, options ...SendOpts) error
}

type Topic interface {
	Name() string
}

type Queue interface {
	Name() string
}

// QueueBind routes a topic into a queue. AMQP-only; the binding key supports
// the broker's wildcard syntax.
type QueueBind interface {
	DestinationTopic() string
	BindingKey() string
}

// ConsumeOpts and SendOpts carry broker specific settings, e.g. the prefetch
// count. Each implementation validates the options type it receives.
type ConsumeOpts func(options interface{}) error
type SendOpts func(options interface{}) error

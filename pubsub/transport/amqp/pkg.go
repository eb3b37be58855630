package amqp

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/orderwise/orderwise/pubsub/transport"
)

type inAmqpPkg struct {
	delivery   amqp.Delivery
	receivedAt time.Time
	origin     string
}

func (i inAmqpPkg) UID() string {
	if uid, ok := i.Headers()["uid"].(string); ok {
		return uid
	}

	return ""
}

func (i inAmqpPkg) Origin() string {
	return i.origin
}

func (i inAmqpPkg) Payload() []byte {
	return i.delivery.Body
}

func (i inAmqpPkg) Headers() map[string]interface{} {
	if i.delivery.Headers == nil {
		i.delivery.Headers = make(amqp.Table)
	}

	return i.delivery.Headers
}

func (i inAmqpPkg) Ack(options ...transport.AcknowledgmentOption) error {
	opts := collectAckOpts(options)

	return i.delivery.Ack(opts.multiple)
}

func (i inAmqpPkg) Nack(options ...transport.AcknowledgmentOption) error {
	opts := collectAckOpts(options)

	return i.delivery.Nack(opts.multiple, opts.requeue)
}

func (i inAmqpPkg) Reject(options ...transport.AcknowledgmentOption) error {
	opts := collectAckOpts(options)

	return i.delivery.Reject(opts.requeue)
}

func (i inAmqpPkg) ReceivedAt() time.Time {
	return i.receivedAt
}

func WithRequeue() transport.AcknowledgmentOption {
	return func(options map[string]interface{}) {
		options["requeue"] = true
	}
}

func WithMultiple() transport.AcknowledgmentOption {
	return func(options map[string]interface{}) {
		options["multiple"] = true
	}
}

type ackOpts struct {
	requeue  bool
	multiple bool
}

func collectAckOpts(passedOpts []transport.AcknowledgmentOption) ackOpts {
	optsMap := map[string]interface{}{}
	for _, opt := range passedOpts {
		opt(optsMap)
	}

	var opts ackOpts
	opts.requeue, _ = optsMap["requeue"].(bool)
	opts.multiple, _ = optsMap["multiple"].(bool)

	return opts
}

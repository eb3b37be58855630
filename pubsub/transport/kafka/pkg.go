package kafka

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/orderwise/orderwise/pubsub/transport"
)

type inKafkaPkg struct {
	msg        kafkago.Message
	reader     *kafkago.Reader
	ctx        context.Context
	receivedAt time.Time
	origin     string
}

func (i inKafkaPkg) UID() string {
	for _, h := range i.msg.Headers {
		if h.Key == "uid" {
			return string(h.Value)
		}
	}
	return ""
}

func (i inKafkaPkg) Origin() string {
	return i.origin
}

func (i inKafkaPkg) Payload() []byte {
	return i.msg.Value
}

func (i inKafkaPkg) Headers() map[string]interface{} {
	headers := make(map[string]interface{}, len(i.msg.Headers))
	for _, h := range i.msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return headers
}

// Ack commits the offset. Everything before it on the partition is considered
// processed, so the subscriber must keep per-partition ordering.
func (i inKafkaPkg) Ack(options ...transport.AcknowledgmentOption) error {
	return i.reader.CommitMessages(i.ctx, i.msg)
}

// Nack leaves the offset uncommitted: the message is redelivered after a
// rebalance or restart. Kafka has no per-message requeue.
func (i inKafkaPkg) Nack(options ...transport.AcknowledgmentOption) error {
	return nil
}

func (i inKafkaPkg) Reject(options ...transport.AcknowledgmentOption) error {
	return i.reader.CommitMessages(i.ctx, i.msg)
}

func (i inKafkaPkg) ReceivedAt() time.Time {
	return i.receivedAt
}

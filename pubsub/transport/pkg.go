package transport

import "time"

// IncomingPkg is one delivery pulled off a queue. Ack and Nack settle it with
// the broker; exactly one of them must be called per package.
type IncomingPkg interface {
	UID() string
	Origin() string
	Payload() []byte
	Headers() map[string]interface{}
	ReceivedAt() time.Time

	Ack(options ...AcknowledgmentOption) error
	Nack(options ...AcknowledgmentOption) error
	Reject(options ...AcknowledgmentOption) error
}

// AcknowledgmentOption tweaks broker specific settlement flags, e.g. requeue
// on the AMQP transport.
type AcknowledgmentOption func(options map[string]interface{})

// DeliveryDestination addresses an outbound publish. The routing key doubles
// as the partitioning key on Kafka.
type DeliveryDestination struct {
	DestinationTopic string
	RoutingKey       string
}

// OutboundPkg is a serialized message ready to publish.
type OutboundPkg interface {
	Payload() []byte
	ContentType() string
	Headers() map[string]interface{}
	Destination() DeliveryDestination
}

type outboundPkg struct {
	payload     []byte
	contentType string
	headers     map[string]interface{}
	destination DeliveryDestination
}

func NewOutboundPkg(payload []byte, contentType string, destination DeliveryDestination, headers map[string]interface{}) OutboundPkg {
	return &outboundPkg{
		payload:     payload,
		contentType: contentType,
		destination: destination,
		headers:     headers,
	}
}

func (o *outboundPkg) Payload() []byte {
	return o.payload
}

func (o *outboundPkg) ContentType() string {
	return o.contentType
}

func (o *outboundPkg) Headers() map[string]interface{} {
	return o.headers
}

func (o *outboundPkg) Destination() DeliveryDestination {
	return o.destination
}

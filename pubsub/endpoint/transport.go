package endpoint

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/orderwise/orderwise/pubsub/message"
	"github.com/orderwise/orderwise/pubsub/transport"
)

// NewTransportEndpoint binds a named delivery destination to a transport. It
// works the same over AMQP and Kafka, the destination semantics belong to the
// plugin.
func NewTransportEndpoint(name string, t transport.Transport, destination transport.DeliveryDestination, msgMarshaller message.Marshaller) Endpoint {
	return &transportEndpoint{name: name, transport: t, destination: destination, msgMarshaller: msgMarshaller}
}

type transportEndpoint struct {
	transport     transport.Transport
	destination   transport.DeliveryDestination
	msgMarshaller message.Marshaller
	name          string
}

func (a transportEndpoint) Name() string {
	return a.name
}

func (a transportEndpoint) Send(ctx context.Context, msg *message.OutcomingMessage, opts ...DeliveryOption) error {
	deliveryOpts := &deliveryOptions{}

	for _, opt := range opts {
		if err := opt(deliveryOpts); err != nil {
			return errors.Wrapf(err, "compiling delivery options for message %s", msg.UID())
		}
	}

	dataToSend, err := a.msgMarshaller.Marshal(msg.Payload())

	if err != nil {
		return errors.Wrapf(err, "serializing message %s to json", msg.UID())
	}

	toSend := transport.NewOutboundPkg(dataToSend, "application/json", a.destination, msg.Headers())

	if deliveryOpts.delay != nil {
		select {
		case <-ctx.Done():
			return errors.Errorf("failed to send message %s. Was waiting for the delay and parent ctx closed.", msg.UID())
		case <-time.After(*deliveryOpts.delay):
		}
	}

	return a.transport.Send(ctx, toSend)
}

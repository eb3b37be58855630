package subscriber

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderwise/orderwise/log"
	"github.com/orderwise/orderwise/pubsub/message"
	"github.com/orderwise/orderwise/pubsub/transport"
)

type Processor interface {
	Process(ctx context.Context, inPkg transport.IncomingPkg) error
}

// MsgHandler consumes one decoded message.
type MsgHandler interface {
	Handle(ctx context.Context, msg *message.ReceivedMessage) error
}

type processor struct {
	logger        log.Logger
	msgMarshaller message.Marshaller
	handler       MsgHandler
}

func NewMessageProcessor(msgMarshaller message.Marshaller, handler MsgHandler, logger log.Logger) Processor {
	return &processor{msgMarshaller: msgMarshaller, handler: handler, logger: logger}
}

func (p *processor) Process(ctx context.Context, inPkg transport.IncomingPkg) error {
	obj, err := p.msgMarshaller.Unmarshal(inPkg.Payload())

	if err != nil {
		p.logger.Logf(log.ErrorLevel, "failed to decode package %s into a message. %s", inPkg.UID(), err)
		return errors.WithStack(err)
	}

	msg := message.NewReceivedMessage(inPkg.UID(), obj, inPkg.Headers(), inPkg.ReceivedAt(), inPkg.Origin())

	if err := p.handler.Handle(ctx, msg); err != nil {
		return errors.Wrapf(err, "handling message %s of kind %s", msg.UID(), obj.GroupKind())
	}

	return nil
}

// Package amqp implements the transport contract over RabbitMQ. Topics are
// topic exchanges, queues are durable queues bound to them.
package amqp

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/orderwise/orderwise/log"
	"github.com/orderwise/orderwise/pubsub/transport"
)

func NewTransport(url string, logger log.Logger) transport.Transport {
	return &amqpTransport{url: url, logger: logger}
}

type amqpTransport struct {
	url    string
	logger log.Logger

	connection        *amqp.Connection
	publishingChannel *amqp.Channel
}

func (t *amqpTransport) Connect(ctx context.Context) error {
	conn, err := amqp.Dial(t.url)
	if err != nil {
		return errors.Wrap(err, "dialing amqp broker")
	}

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "opening publishing channel")
	}

	t.connection = conn
	t.publishingChannel = ch

	return nil
}

func (t *amqpTransport) CreateTopic(ctx context.Context, topic transport.Topic) error {
	if err := t.checkConnection(); err != nil {
		return err
	}

	tp, ok := topic.(amqpTopic)
	if !ok {
		return errors.Errorf("topic %s was not built with amqp.Topic", topic.Name())
	}

	err := t.publishingChannel.ExchangeDeclare(tp.name, "topic", tp.durable, tp.autoDelete, false, false, nil)

	return errors.Wrapf(err, "declaring exchange %s", tp.name)
}

func (t *amqpTransport) CreateQueue(ctx context.Context, q transport.Queue, qbs ...transport.QueueBind) error {
	if err := t.checkConnection(); err != nil {
		return err
	}

	queue, ok := q.(amqpQueue)
	if !ok {
		return errors.Errorf("queue %s was not built with amqp.Queue", q.Name())
	}

	if _, err := t.publishingChannel.QueueDeclare(queue.queueName, queue.durable, queue.autoDelete, queue.exclusive, queue.noWait, nil); err != nil {
		return errors.Wrapf(err, "declaring queue %s", queue.queueName)
	}

	for _, item := range qbs {
		bind, ok := item.(amqpQueueBind)
		if !ok {
			return errors.Errorf("queue bind for %s was not built with amqp.QueueBind", queue.queueName)
		}

		if err := t.publishingChannel.QueueBind(queue.queueName, bind.binding, bind.destination, bind.noWait, nil); err != nil {
			return errors.Wrapf(err, "binding queue %s to exchange %s", queue.queueName, bind.destination)
		}
	}

	return nil
}

func (t *amqpTransport) Send(ctx context.Context, outboundPkg transport.OutboundPkg, options ...transport.SendOpts) error {
	if err := t.checkConnection(); err != nil {
		return err
	}

	sendOptions := &SendOptions{}

	for _, opt := range options {
		if err := opt(sendOptions); err != nil {
			return errors.Wrap(err, "compiling send options")
		}
	}

	err := t.publishingChannel.PublishWithContext(
		ctx,
		outboundPkg.Destination().DestinationTopic,
		outboundPkg.Destination().RoutingKey,
		sendOptions.Mandatory,
		sendOptions.Immediate,
		amqp.Publishing{
			Headers:      outboundPkg.Headers(),
			ContentType:  outboundPkg.ContentType(),
			Body:         outboundPkg.Payload(),
			DeliveryMode: amqp.Persistent,
		},
	)

	return errors.Wrapf(err, "publishing to exchange %s", outboundPkg.Destination().DestinationTopic)
}

func (t *amqpTransport) Consume(ctx context.Context, queues []transport.Queue, options ...transport.ConsumeOpts) (<-chan transport.IncomingPkg, error) {
	if err := t.checkConnection(); err != nil {
		return nil, err
	}

	consumingChannel, err := t.connection.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "opening consuming channel")
	}

	consumeOptions := &ConsumeOptions{}

	for _, opt := range options {
		if err := opt(consumeOptions); err != nil {
			return nil, errors.Wrap(err, "compiling consume options")
		}
	}

	if consumeOptions.PrefetchCount > 0 {
		if err := consumingChannel.Qos(int(consumeOptions.PrefetchCount), 0, false); err != nil {
			return nil, errors.Wrap(err, "setting channel qos")
		}
	}

	income := make(chan transport.IncomingPkg)
	consumersWait := &sync.WaitGroup{}
	consumersCtx, cancelConsumers := context.WithCancel(ctx)

	for _, q := range queues {
		deliveries, err := consumingChannel.Consume(q.Name(), q.Name(), false, consumeOptions.Exclusive, consumeOptions.NoLocal, consumeOptions.NoWait, nil)
		if err != nil {
			cancelConsumers() // stops consumers already started on previous iterations
			return nil, errors.Wrapf(err, "consuming %s", q.Name())
		}

		consumersWait.Add(1)

		go func(queue transport.Queue, deliveries <-chan amqp.Delivery) {
			defer consumersWait.Done()
			defer func() {
				if err := consumingChannel.Cancel(queue.Name(), true); err != nil {
					t.logger.Logf(log.ErrorLevel, "error canceling consumer %s. %s", queue.Name(), err)
				}
			}()

			for {
				select {
				case msg, open := <-deliveries:
					if !open {
						t.logger.Logf(log.WarnLevel, "amqp consumer closed channel for queue %s", queue.Name())
						return
					}

					income <- &inAmqpPkg{origin: queue.Name(), receivedAt: time.Now(), delivery: msg}
				case <-consumersCtx.Done():
					t.logger.Logf(log.WarnLevel, "canceled context. Stopped consuming queue %s", queue.Name())
					return
				}
			}
		}(q, deliveries)
	}

	go func() {
		consumersWait.Wait()
		close(income)

		if err := consumingChannel.Close(); err != nil {
			t.logger.Logf(log.ErrorLevel, "error closing amqp channel. %s", err)
		}
	}()

	return income, nil //nolint:govet
}

func (t *amqpTransport) Disconnect(ctx context.Context) error {
	if t.connection == nil || t.publishingChannel == nil {
		return nil
	}

	if err := t.publishingChannel.Close(); err != nil {
		return errors.Wrap(err, "closing publishing channel")
	}

	return errors.Wrap(t.connection.Close(), "closing connection")
}

func (t *amqpTransport) checkConnection() error {
	if t.connection == nil {
		return errors.Errorf("transport is not connected. Use transport.Connect first")
	}

	return nil
}

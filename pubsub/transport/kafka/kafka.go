package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/orderwise/orderwise/log"
	"github.com/orderwise/orderwise/pubsub/transport"
)

// NewTransport returns a Kafka-backed transport. Topics play both roles of the
// contract: CreateTopic and CreateQueue map onto the same thing, consumption is
// coordinated by the consumer group id.
func NewTransport(brokers []string, groupID string, logger log.Logger) transport.Transport {
	return &kafkaTransport{brokers: brokers, groupID: groupID, logger: logger}
}

type kafkaTransport struct {
	brokers []string
	groupID string
	logger  log.Logger

	writer  *kafkago.Writer
	readers []*kafkago.Reader
}

func (t *kafkaTransport) Connect(ctx context.Context) error {
	t.writer = &kafkago.Writer{
		Addr:                   kafkago.TCP(t.brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}

	return nil
}

// CreateTopic pre-creates a topic so the first publish doesn't race consumers.
func (t *kafkaTransport) CreateTopic(ctx context.Context, topic transport.Topic) error {
	conn, err := kafkago.DialContext(ctx, "tcp", t.brokers[0])
	if err != nil {
		return errors.Wrap(err, "dialing kafka broker")
	}

	defer conn.Close()

	if err := conn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic.Name(),
		NumPartitions:     -1,
		ReplicationFactor: -1,
	}); err != nil {
		return errors.Wrapf(err, "creating topic %s", topic.Name())
	}

	return nil
}

func (t *kafkaTransport) CreateQueue(ctx context.Context, q transport.Queue, qbs ...transport.QueueBind) error {
	// a queue is a topic in kafka terms
	return t.CreateTopic(ctx, Topic(q.Name()))
}

func (t *kafkaTransport) Send(ctx context.Context, outboundPkg transport.OutboundPkg, options ...transport.SendOpts) error {
	if t.writer == nil {
		return errors.Errorf("transport is not connected. Use transport.Connect first")
	}

	headers := make([]kafkago.Header, 0, len(outboundPkg.Headers()))

	for k, v := range outboundPkg.Headers() {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(fmt.Sprint(v))})
	}

	msg := kafkago.Message{
		Topic:   outboundPkg.Destination().DestinationTopic,
		Key:     []byte(outboundPkg.Destination().RoutingKey),
		Value:   outboundPkg.Payload(),
		Headers: headers,
	}

	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "writing message to topic %s", msg.Topic)
	}

	return nil
}

func (t *kafkaTransport) Consume(ctx context.Context, queues []transport.Queue, options ...transport.ConsumeOpts) (<-chan transport.IncomingPkg, error) {
	income := make(chan transport.IncomingPkg)

	consumersWait := &sync.WaitGroup{}

	for _, q := range queues {
		reader := kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:        t.brokers,
			Topic:          q.Name(),
			GroupID:        t.groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0, // synchronous commits, the processor decides when
		})

		t.readers = append(t.readers, reader)

		consumersWait.Add(1)

		go func(queue transport.Queue, reader *kafkago.Reader) {
			defer consumersWait.Done()

			for {
				msg, err := reader.FetchMessage(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}

					t.logger.Logf(log.ErrorLevel, "fetching message from topic %s. %s", queue.Name(), err)
					return
				}

				select {
				case income <- &inKafkaPkg{origin: queue.Name(), receivedAt: time.Now(), msg: msg, reader: reader, ctx: ctx}:
				case <-ctx.Done():
					return
				}
			}
		}(q, reader)
	}

	go func() {
		consumersWait.Wait()
		close(income)
	}()

	return income, nil
}

func (t *kafkaTransport) Disconnect(ctx context.Context) error {
	for _, reader := range t.readers {
		if err := reader.Close(); err != nil {
			t.logger.Logf(log.ErrorLevel, "error closing kafka reader. %s", err)
		}
	}

	if t.writer != nil {
		if err := t.writer.Close(); err != nil {
			return errors.Wrap(err, "closing kafka writer")
		}
	}

	return nil
}

func Topic(name string) transport.Topic {
	return kafkaTopic{name: name}
}

type kafkaTopic struct {
	name string
}

func (t kafkaTopic) Name() string {
	return t.name
}

func Queue(name string) transport.Queue {
	return kafkaQueue{name: name}
}

type kafkaQueue struct {
	name string
}

func (q kafkaQueue) Name() string {
	return q.name
}

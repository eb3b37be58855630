package subscriber

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/orderwise/orderwise/log"
	busErrs "github.com/orderwise/orderwise/pubsub/errors"
	"github.com/orderwise/orderwise/pubsub/message"
	"github.com/orderwise/orderwise/pubsub/transport"
)

// Subscriber starts listening to queues and processes messages
type Subscriber interface {
	// Run listens queues for packages and processes them. Gracefully shuts down either on os.Signal or ctx.Done() or Stop()
	Run(ctx context.Context, queues ...transport.Queue) error
	// Stop gracefully stops subscriber and calls transport.Disconnect().
	Stop(ctx context.Context) error
}

// Config allows to configure subscriber workflow
type Config struct {
	// WorkersCount specifies a number of workers that process packages
	WorkersCount uint
	// PackageProcessingMaxTime amount of time for a package to be processed
	PackageProcessingMaxTime time.Duration
	// GracefulShutdownTimeout amount of time for graceful shutdown
	GracefulShutdownTimeout time.Duration
}

var DefaultConfig = Config{
	WorkersCount:             10,
	PackageProcessingMaxTime: time.Second * 60,
	GracefulShutdownTimeout:  time.Second * 61,
}

type subscriberOpts struct {
	config      *Config
	consumeOpts []transport.ConsumeOpts
}

type Opt func(o *subscriberOpts)

func WithConfig(c *Config) Opt {
	return func(o *subscriberOpts) {
		o.config = c
	}
}

// WithConsumeOpts passes transport specific options to Consume, e.g. the
// prefetch count of the amqp transport.
func WithConsumeOpts(opts ...transport.ConsumeOpts) Opt {
	return func(o *subscriberOpts) {
		o.consumeOpts = opts
	}
}

// NewSubscriber creates default subscriber implementation
func NewSubscriber(transport transport.Transport, processor Processor, logger log.Logger, opts ...Opt) Subscriber {
	sOpts := &subscriberOpts{}

	for _, o := range opts {
		o(sOpts)
	}

	config := &DefaultConfig

	if sOpts.config != nil {
		config = sOpts.config
	}

	return &subscriber{
		transport:   transport,
		logger:      logger,
		processor:   processor,
		workers:     newPool(config.WorkersCount),
		config:      config,
		consumeOpts: sOpts.consumeOpts,
	}
}

type subscriber struct {
	transport   transport.Transport
	logger      log.Logger
	processor   Processor
	workers     *pool
	config      *Config
	consumeOpts []transport.ConsumeOpts
}

func (s *subscriber) Run(ctx context.Context, queues ...transport.Queue) error {
	s.logger.Logf(log.InfoLevel, "started subscriber. Listening to queues: %v", queues)

	signalChan := make(chan os.Signal, 1)
	defer close(signalChan)

	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	consumerCtx, cancelConsumerCtx := context.WithCancel(ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.GracefulShutdownTimeout)
	defer shutdownCancel()
	defer cancelConsumerCtx()

	consumedPkgs, err := s.transport.Consume(consumerCtx, queues, s.consumeOpts...)

	if err != nil {
		return errors.WithStack(err)
	}

	s.workers.start(consumerCtx)

	for {
		select {
		case incomingPkg, open := <-consumedPkgs:
			if !open {
				return nil
			}

			pkg := incomingPkg
			if !s.workers.submit(consumerCtx, func() { s.processPackage(ctx, pkg) }) {
				s.logger.Logf(log.InfoLevel, "subscriber's context was canceled while waiting for a free worker")
				return nil
			}
		case <-ctx.Done():
			s.logger.Logf(log.InfoLevel, "subscriber's context was canceled")
			if err := s.Stop(shutdownCtx); err != nil {
				s.logger.Logf(log.ErrorLevel, "error stopping subscriber gracefully %s", err)
				return errors.Wrapf(err, "stopping subscriber gracefully")
			}
			return nil
		case <-signalChan:
			s.logger.Logf(log.InfoLevel, "received kill signal")
			if err := s.Stop(shutdownCtx); err != nil {
				s.logger.Logf(log.ErrorLevel, "error stopping subscriber gracefully %s", err)
				return errors.Wrapf(err, "stopping subscriber gracefully")
			}
			return nil
		}
	}
}

func (s *subscriber) processPackage(ctx context.Context, inPkg transport.IncomingPkg) {
	processorCtx, processorCancel := context.WithTimeout(ctx, s.config.PackageProcessingMaxTime)
	defer processorCancel()

	s.logger.Logf(log.DebugLevel, "started processing package id %s", inPkg.UID())

	if err := s.processor.Process(processorCtx, inPkg); err != nil {
		s.logger.Logf(log.ErrorLevel, "error happened while processing pkg %s from %s. %s", inPkg.UID(), inPkg.Origin(), err)

		// undecodable payloads and messages the handler refused for good are
		// dropped, everything else goes back to the queue for redelivery
		var (
			decoderErr message.DecoderErr
			statusErr  busErrs.StatusErr
		)

		noRetry := errors.As(err, &statusErr) && statusErr.Status == busErrs.NoRetry

		if errors.As(err, &decoderErr) || noRetry {
			if err := inPkg.Ack(); err != nil {
				s.logger.Logf(log.ErrorLevel, "error acking package %s. %s", inPkg.UID(), err)
			}
			return
		}

		if err := inPkg.Nack(); err != nil {
			s.logger.Logf(log.ErrorLevel, "error nacking package %s. %s", inPkg.UID(), err)
		}

		return
	}

	if err := inPkg.Ack(); err != nil {
		s.logger.Logf(log.ErrorLevel, "error acking package %s. %s", inPkg.UID(), err)
		return
	}

	s.logger.Logf(log.DebugLevel, "acked package id %s", inPkg.UID())
}

func (s *subscriber) Stop(ctx context.Context) error {
	if s.workers.busy() > 0 {
		s.logger.Logf(log.InfoLevel, "graceful shutdown. Waiting subscriber for finishing %d packages in progress", s.workers.busy())
	}

	waitingTicker := time.NewTicker(time.Second)
	defer waitingTicker.Stop()

	for s.workers.busy() > 0 {
		select {
		case <-ctx.Done():
			s.logger.Logf(log.WarnLevel, "stopped subscriber because of canceled parent ctx")
			return nil
		case <-waitingTicker.C:
			s.logger.Logf(log.InfoLevel, "waiting for workers to finish the remaining packages. In progress: %d", s.workers.busy())
		}
	}

	s.logger.Logf(log.InfoLevel, "all packages are processed. Disconnecting from transport.")

	return s.transport.Disconnect(ctx)
}

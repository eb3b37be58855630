package outbox

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/orderwise/orderwise/log"
	"github.com/orderwise/orderwise/metrics"
	"github.com/orderwise/orderwise/pubsub/endpoint"
	"github.com/orderwise/orderwise/pubsub/message"
	sagaPkg "github.com/orderwise/orderwise/saga"
)

const (
	defaultInterval  = time.Millisecond * 500
	defaultBatchSize = 50
)

type opts struct {
	interval time.Duration
	batch    int
}

type Opt func(o *opts)

func WithInterval(interval time.Duration) Opt {
	return func(o *opts) {
		o.interval = interval
	}
}

func WithBatchSize(batch int) Opt {
	return func(o *opts) {
		o.batch = batch
	}
}

// Relay drains the durable outbox onto the bus. Commands are enqueued in the
// same transaction as the events that caused them, the relay is the only thing
// that talks to the broker afterwards. Publishing is at least once, a crash
// between Send and MarkDispatched resends the command and consumers dedupe by
// message uid.
type Relay struct {
	store    sagaPkg.Store
	router   endpoint.Router
	logger   log.Logger
	interval time.Duration
	batch    int
}

func NewRelay(store sagaPkg.Store, router endpoint.Router, logger log.Logger, options ...Opt) *Relay {
	o := &opts{interval: defaultInterval, batch: defaultBatchSize}

	for _, opt := range options {
		opt(o)
	}

	return &Relay{
		store:    store,
		router:   router,
		logger:   logger,
		interval: o.interval,
		batch:    o.batch,
	}
}

// Run polls the outbox until ctx is canceled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Log(log.InfoLevel, "outbox relay stopped")
			return
		case <-ticker.C:
			if err := r.relayOnce(ctx); err != nil {
				r.logger.Logf(log.ErrorLevel, "outbox relay pass failed: %s", err)
			}
		}
	}
}

func (r *Relay) relayOnce(ctx context.Context) error {
	records, err := r.store.FetchPendingCommands(ctx, r.batch)

	if err != nil {
		return errors.Wrap(err, "fetching pending outbox commands")
	}

	var dispatched []string

	for _, rec := range records {
		if err := r.publish(ctx, rec); err != nil {
			metrics.OutboxFailures.Inc()
			r.logger.Logf(log.ErrorLevel, "publishing outbox command %s for order %s: %s", rec.UID, rec.OrderUID, err)

			if err := r.store.MarkFailed(ctx, rec.UID); err != nil {
				r.logger.Logf(log.ErrorLevel, "marking outbox command %s failed: %s", rec.UID, err)
			}

			continue
		}

		dispatched = append(dispatched, rec.UID)
	}

	if len(dispatched) == 0 {
		return nil
	}

	if err := r.store.MarkDispatched(ctx, dispatched); err != nil {
		return errors.Wrap(err, "marking outbox commands dispatched")
	}

	metrics.OutboxDispatched.Add(float64(len(dispatched)))

	return nil
}

func (r *Relay) publish(ctx context.Context, rec sagaPkg.OutboxRecord) error {
	endpoints := r.router.Route(rec.Payload)

	if len(endpoints) == 0 {
		return errors.Errorf("no endpoints registered for %s", rec.Payload.GroupKind())
	}

	headers := message.Headers{}
	headers.SetOrderUID(rec.OrderUID)

	outcoming := message.NewOutcomingMessage(rec.Payload, message.WithHeaders(headers))

	for _, a := range endpoints {
		if err := a.Send(ctx, outcoming); err != nil {
			return errors.Wrapf(err, "sending via endpoint %s", a.Name())
		}
	}

	return nil
}

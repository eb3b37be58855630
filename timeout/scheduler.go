package timeout

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/orderwise/orderwise/log"
	"github.com/orderwise/orderwise/metrics"
	"github.com/orderwise/orderwise/pubsub/endpoint"
	"github.com/orderwise/orderwise/pubsub/message"
	sagaPkg "github.com/orderwise/orderwise/saga"
	"github.com/orderwise/orderwise/saga/contracts"
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
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

// Scheduler turns expired SLA entries into Timeout messages on the saga's
// inbound topic. The entry is deleted only after the publish succeeded, a
// crash in between republishes and the decider discards the second one by its
// token.
type Scheduler struct {
	store    sagaPkg.Store
	endpoint endpoint.Endpoint
	logger   log.Logger
	interval time.Duration
	batch    int
}

func NewScheduler(store sagaPkg.Store, ep endpoint.Endpoint, logger log.Logger, options ...Opt) *Scheduler {
	o := &opts{interval: defaultInterval, batch: defaultBatchSize}

	for _, opt := range options {
		opt(o)
	}

	return &Scheduler{
		store:    store,
		endpoint: ep,
		logger:   logger,
		interval: o.interval,
		batch:    o.batch,
	}
}

// Run polls for due timeouts until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Log(log.InfoLevel, "timeout scheduler stopped")
			return
		case <-ticker.C:
			if err := s.fireDue(ctx); err != nil {
				s.logger.Logf(log.ErrorLevel, "timeout scheduler pass failed: %s", err)
			}
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) error {
	entries, err := s.store.DueTimeouts(ctx, time.Now(), s.batch)

	if err != nil {
		return errors.Wrap(err, "querying due timeouts")
	}

	for _, entry := range entries {
		headers := message.Headers{}
		headers.SetOrderUID(entry.OrderUID)

		msg := message.NewOutcomingMessage(
			&contracts.Timeout{OrderUID: entry.OrderUID, Token: entry.Token},
			message.WithHeaders(headers),
		)

		if err := s.endpoint.Send(ctx, msg); err != nil {
			// left in place, the next tick retries
			s.logger.Logf(log.ErrorLevel, "publishing timeout for order %s token %d: %s", entry.OrderUID, entry.Token, err)
			continue
		}

		metrics.TimeoutsFired.Inc()

		if err := s.store.DeleteTimeout(ctx, entry.OrderUID, entry.Token); err != nil {
			s.logger.Logf(log.ErrorLevel, "deleting fired timeout of order %s: %s", entry.OrderUID, err)
		}
	}

	return nil
}

package handler

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/orderwise/orderwise/idempotency"
	"github.com/orderwise/orderwise/log"
	"github.com/orderwise/orderwise/metrics"
	busErrs "github.com/orderwise/orderwise/pubsub/errors"
	"github.com/orderwise/orderwise/pubsub/message"
	sagaPkg "github.com/orderwise/orderwise/saga"
	"github.com/orderwise/orderwise/saga/contracts"
)

const (
	defaultCommitRetries = 3
	commitRetryBackoff   = time.Millisecond * 50
)

// Alerter receives conditions that need an operator: protocol violations,
// failed refunds, exhausted commit retries.
type Alerter interface {
	Alert(ctx context.Context, orderUID string, reason string, details string)
}

type logAlerter struct {
	logger log.Logger
}

func (a logAlerter) Alert(_ context.Context, orderUID string, reason string, details string) {
	a.logger.WithFields(log.Fields{
		"orderUID": orderUID,
		"reason":   reason,
	}).Logf(log.ErrorLevel, "order saga alert: %s", details)
}

type opts struct {
	alerter       Alerter
	commitRetries int
}

type Opt func(o *opts)

func WithAlerter(alerter Alerter) Opt {
	return func(o *opts) {
		o.alerter = alerter
	}
}

func WithCommitRetries(retries int) Opt {
	return func(o *opts) {
		o.commitRetries = retries
	}
}

// OrderEventsHandler drives one order saga per inbound message: dedupe,
// replay, decide, commit. It owns no business rules, those live in the
// decider.
type OrderEventsHandler struct {
	store         sagaPkg.Store
	decider       sagaPkg.Decider
	ledger        idempotency.Ledger
	slas          map[sagaPkg.State]time.Duration
	logger        log.Logger
	alerter       Alerter
	commitRetries int
}

func NewOrderEventsHandler(
	store sagaPkg.Store,
	decider sagaPkg.Decider,
	ledger idempotency.Ledger,
	slas map[sagaPkg.State]time.Duration,
	logger log.Logger,
	options ...Opt,
) *OrderEventsHandler {
	o := &opts{commitRetries: defaultCommitRetries}

	for _, opt := range options {
		opt(o)
	}

	if o.alerter == nil {
		o.alerter = logAlerter{logger: logger}
	}

	return &OrderEventsHandler{
		store:         store,
		decider:       decider,
		ledger:        ledger,
		slas:          slas,
		logger:        logger,
		alerter:       o.alerter,
		commitRetries: o.commitRetries,
	}
}

func (h *OrderEventsHandler) Handle(ctx context.Context, msg *message.ReceivedMessage) error {
	correlated, ok := msg.Payload().(contracts.Correlated)

	if !ok {
		return busErrs.WithStatusErr(busErrs.NoRetry, errors.Errorf("message %s of kind %s carries no order uid", msg.UID(), msg.Payload().GroupKind()))
	}

	orderUID := correlated.CorrelationID()

	if orderUID == "" {
		return busErrs.WithStatusErr(busErrs.NoRetry, errors.Errorf("message %s of kind %s has an empty order uid", msg.UID(), msg.Payload().GroupKind()))
	}

	logger := h.logger.WithFields(log.Fields{
		"orderUID":   orderUID,
		"messageUID": msg.UID(),
	})

	processed, err := h.ledger.IsProcessed(ctx, orderUID, msg.UID())

	if err != nil {
		return errors.Wrapf(err, "checking idempotency ledger for message %s", msg.UID())
	}

	if processed {
		metrics.DuplicateMessages.Inc()
		logger.Log(log.DebugLevel, "message already processed, dropping redelivery")
		return nil
	}

	for attempt := 0; ; attempt++ {
		err := h.process(ctx, orderUID, msg, logger)

		if err == nil {
			h.ledger.MarkProcessed(ctx, orderUID, msg.UID())
			return nil
		}

		// a concurrent delivery of the same message won the inbox race, its
		// commit already holds everything this one would write
		var alreadyProcessed sagaPkg.AlreadyProcessedErr

		if errors.As(err, &alreadyProcessed) {
			metrics.DuplicateMessages.Inc()
			logger.Log(log.DebugLevel, "message committed by a concurrent delivery, dropping this one")
			h.ledger.MarkProcessed(ctx, orderUID, msg.UID())
			return nil
		}

		var conflict sagaPkg.VersionConflictErr

		if !errors.As(err, &conflict) {
			return err
		}

		metrics.VersionConflicts.Inc()

		if attempt+1 >= h.commitRetries {
			h.alert(ctx, orderUID, "commit_retries_exhausted", err.Error())
			return errors.Wrapf(err, "gave up committing message %s after %d attempts", msg.UID(), h.commitRetries)
		}

		logger.Logf(log.InfoLevel, "concurrent append detected, re-deciding (attempt %d)", attempt+1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(commitRetryBackoff):
		}
	}
}

func (h *OrderEventsHandler) alert(ctx context.Context, orderUID string, reason string, details string) {
	metrics.Alerts.WithLabelValues(reason).Inc()
	h.alerter.Alert(ctx, orderUID, reason, details)
}

func (h *OrderEventsHandler) process(ctx context.Context, orderUID string, msg *message.ReceivedMessage, logger log.Logger) error {
	events, err := h.store.Load(ctx, orderUID)

	if err != nil {
		return errors.Wrapf(err, "loading event stream of order %s", orderUID)
	}

	orderSaga := sagaPkg.Replay(orderUID, events)
	expectedVersion := orderSaga.StreamVersion
	stateBefore := orderSaga.CurrentState

	decision := h.decider.Decide(orderSaga, msg.Payload())

	switch decision.Outcome {
	case sagaPkg.OutcomeDuplicate:
		metrics.DuplicateMessages.Inc()
		logger.Logf(log.DebugLevel, "duplicate fact in state %s: %s", orderSaga.CurrentState, decision.Reason)
	case sagaPkg.OutcomeStale:
		metrics.StaleMessages.Inc()
		logger.Logf(log.DebugLevel, "stale message in state %s: %s", orderSaga.CurrentState, decision.Reason)
	case sagaPkg.OutcomeViolation:
		metrics.Violations.WithLabelValues(string(orderSaga.CurrentState)).Inc()
		h.alert(ctx, orderUID, "protocol_violation", decision.Reason)
	}

	for i, ev := range decision.Events {
		orderSaga.Apply(ev, expectedVersion+int64(i)+1)
	}

	if decision.Outcome == sagaPkg.OutcomeApplied && orderSaga.CurrentState != stateBefore {
		metrics.Transitions.WithLabelValues(string(stateBefore), string(orderSaga.CurrentState)).Inc()
		logger.Logf(log.InfoLevel, "order moved %s -> %s", stateBefore, orderSaga.CurrentState)
	}

	if decision.Reason == sagaPkg.ReasonRefundFailed && decision.Outcome == sagaPkg.OutcomeApplied {
		h.alert(ctx, orderUID, sagaPkg.ReasonRefundFailed, "refund failed after cancellation, payment needs manual reconciliation")
	}

	commit := sagaPkg.Commit{
		OrderUID:        orderUID,
		ExpectedVersion: expectedVersion,
		MessageUID:      msg.UID(),
		Events:          decision.Events,
		Commands:        outbound(decision),
		Snapshot:        orderSaga,
	}

	// only a moved stream re-arms the SLA clock, otherwise a redelivery would
	// extend the deadline
	if len(decision.Events) > 0 {
		commit.Timeout = h.timeoutFor(orderSaga)
	}

	if err := h.store.CommitDecision(ctx, commit); err != nil {
		return err
	}

	return nil
}

// outbound collects everything the outbox has to publish: the decided
// commands plus the order-status notifications recorded in the stream.
func outbound(decision sagaPkg.Decision) []message.Object {
	out := make([]message.Object, 0, len(decision.Commands)+1)
	out = append(out, decision.Commands...)

	for _, ev := range decision.Events {
		switch ev.(type) {
		case *contracts.OrderPlaced, *contracts.OrderCancelled, *contracts.OrderDelivered:
			out = append(out, ev)
		}
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// timeoutFor arms the SLA clock of the state the saga ended up in. The token
// equals the stream version at which the wait started, a response or timeout
// carrying an older token is ignored by the decider.
func (h *OrderEventsHandler) timeoutFor(s sagaPkg.OrderSaga) *sagaPkg.TimeoutEntry {
	if !s.CurrentState.Awaiting() || s.PendingTimeoutToken == nil {
		return nil
	}

	window, ok := h.slas[s.CurrentState]

	if !ok {
		return nil
	}

	return &sagaPkg.TimeoutEntry{
		OrderUID: s.OrderUID,
		Token:    *s.PendingTimeoutToken,
		FireAt:   time.Now().Add(window),
	}
}

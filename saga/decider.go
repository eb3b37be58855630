package saga

import (
	"github.com/orderwise/orderwise/pubsub/message"
	"github.com/orderwise/orderwise/saga/contracts"
)

type Outcome string

const (
	// OutcomeApplied means the message produced events and possibly commands
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the fact is already reflected in the state
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeStale means the message arrived too late to matter: a timeout
	// whose token no longer matches, or anything after a terminal state
	OutcomeStale Outcome = "stale"
	// OutcomeViolation means the (state, message) pair must not occur. The
	// runtime treats it as fatal and raises an incident instead of dropping it.
	OutcomeViolation Outcome = "violation"
)

// Reason codes forwarded to notification consumers with OrderCancelled.
const (
	ReasonPaymentDeclined      = "payment_declined"
	ReasonCaptureFailed        = "capture_failed"
	ReasonInventoryUnavailable = "inventory_unavailable"
	ReasonDeliveryFailed       = "delivery_failed"
	ReasonAuthorizationTimeout = "authorization_timeout"
	ReasonReservationTimeout   = "reservation_timeout"
	ReasonCaptureTimeout       = "capture_timeout"
	ReasonFulfillmentTimeout   = "fulfillment_timeout"
	ReasonDeliveryTimeout      = "delivery_timeout"
	ReasonRefundFailed         = "refund_failed"
)

// Decision is the full result of one transition: events to append to the
// order's stream and commands to enqueue into the outbox, all committed
// atomically by the runtime.
type Decision struct {
	Outcome  Outcome
	Reason   string
	Events   []message.Object
	Commands []message.Object
}

func applied(events []message.Object, commands ...message.Object) Decision {
	return Decision{Outcome: OutcomeApplied, Events: events, Commands: commands}
}

func duplicate(reason string) Decision {
	return Decision{Outcome: OutcomeDuplicate, Reason: reason}
}

func stale(reason string) Decision {
	return Decision{Outcome: OutcomeStale, Reason: reason}
}

func violation(reason string) Decision {
	return Decision{Outcome: OutcomeViolation, Reason: reason}
}

// Decider is the pure transition function of the saga. It is total: every
// (state, message type) pair yields a Decision, there is no silent drop.
type Decider struct {
	// MaxDeliveryAttempts bounds redispatches after failed deliveries
	MaxDeliveryAttempts int
	policy              CompensationPolicy
}

func NewDecider(maxDeliveryAttempts int) Decider {
	return Decider{MaxDeliveryAttempts: maxDeliveryAttempts, policy: CompensationPolicy{}}
}

// Decide evaluates one inbound message against the current state. Deduplication
// by message uid happens in the runtime before this point; Decide itself only
// sees business content.
func (d Decider) Decide(s OrderSaga, msg message.Object) Decision {
	// a timeout is translated into the failure it stands for, then evaluated
	// through the same table
	if timeout, ok := msg.(*contracts.Timeout); ok {
		return d.decideTimeout(s, timeout)
	}

	if s.CurrentState.Terminal() {
		return d.decideTerminal(s, msg)
	}

	switch s.CurrentState {
	case StateNone:
		return d.decideNone(s, msg)
	case StatePlaced:
		return d.decidePlaced(s, msg)
	case StateReservingInventory:
		return d.decideReserving(s, msg)
	case StateCapturingPayment:
		return d.decideCapturing(s, msg)
	case StateFulfilling:
		return d.decideFulfilling(s, msg)
	case StateShipped:
		return d.decideShipped(s, msg)
	}

	return violation("unknown saga state " + string(s.CurrentState))
}

func (d Decider) decideNone(s OrderSaga, msg message.Object) Decision {
	checkout, ok := msg.(*contracts.CheckoutCompleted)
	if !ok {
		return violation("message for an order that was never placed")
	}

	placed := &contracts.OrderPlaced{
		OrderUID:    checkout.OrderUID,
		CustomerUID: checkout.CustomerUID,
		Items:       checkout.Items,
		Total:       checkout.Total,
	}
	authorize := &contracts.AuthorizePayment{
		OrderUID:    checkout.OrderUID,
		CustomerUID: checkout.CustomerUID,
		Total:       checkout.Total,
	}

	return applied([]message.Object{placed}, authorize)
}

func (d Decider) decidePlaced(s OrderSaga, msg message.Object) Decision {
	switch m := msg.(type) {
	case *contracts.CheckoutCompleted:
		return duplicate("order already placed")
	case *contracts.PaymentAuthorized:
		reserve := &contracts.ReserveInventory{OrderUID: s.OrderUID, Items: s.Items}
		return applied([]message.Object{m}, reserve)
	case *contracts.PaymentFailed:
		return d.cancel(s, ReasonPaymentDeclined, StepPayment, m)
	}

	return violation("unexpected message while awaiting payment authorization")
}

func (d Decider) decideReserving(s OrderSaga, msg message.Object) Decision {
	switch m := msg.(type) {
	case *contracts.PaymentAuthorized:
		return duplicate("payment already authorized")
	case *contracts.ReservationConfirmed:
		capture := &contracts.CapturePayment{OrderUID: s.OrderUID, Total: s.Total}
		return applied([]message.Object{m}, capture)
	case *contracts.ReservationFailed:
		return d.cancel(s, ReasonInventoryUnavailable, StepInventory, m)
	}

	return violation("unexpected message while awaiting inventory reservation")
}

func (d Decider) decideCapturing(s OrderSaga, msg message.Object) Decision {
	switch m := msg.(type) {
	case *contracts.ReservationConfirmed:
		return duplicate("reservation already confirmed")
	case *contracts.PaymentCaptured:
		commit := &contracts.CommitReservation{OrderUID: s.OrderUID}
		fulfill := &contracts.RequestFulfillment{OrderUID: s.OrderUID, Items: s.Items}
		return applied([]message.Object{m}, commit, fulfill)
	case *contracts.PaymentCaptureFailed:
		return d.cancel(s, ReasonCaptureFailed, StepPayment, m)
	case *contracts.ReservationFailed:
		// inventory reneged after confirming, while capture is in flight
		return d.cancel(s, ReasonInventoryUnavailable, StepInventory, m)
	}

	return violation("unexpected message while awaiting payment capture")
}

func (d Decider) decideFulfilling(s OrderSaga, msg message.Object) Decision {
	switch m := msg.(type) {
	case *contracts.PaymentCaptured:
		return duplicate("payment already captured")
	case *contracts.ReservationCommitted:
		return applied([]message.Object{m})
	case *contracts.ShipmentDispatched:
		return applied([]message.Object{m})
	case *contracts.ReservationFailed:
		// late failure racing a successful capture: evaluated against the
		// current state, so the captured payment gets refunded
		return d.cancel(s, ReasonInventoryUnavailable, StepInventory, m)
	}

	return violation("unexpected message while awaiting dispatch")
}

func (d Decider) decideShipped(s OrderSaga, msg message.Object) Decision {
	switch m := msg.(type) {
	case *contracts.ShipmentDispatched:
		return duplicate("shipment already dispatched")
	case *contracts.ReservationCommitted:
		return applied([]message.Object{m})
	case *contracts.ShipmentDelivered:
		delivered := &contracts.OrderDelivered{OrderUID: s.OrderUID}
		return applied([]message.Object{m, delivered})
	case *contracts.ShipmentDeliveryFailed:
		if m.Attempt <= s.DeliveryAttempts {
			return duplicate("delivery attempt already recorded")
		}

		if m.Attempt < d.MaxDeliveryAttempts {
			redispatch := &contracts.RequestRedispatch{OrderUID: s.OrderUID, Attempt: m.Attempt + 1}
			return applied([]message.Object{m}, redispatch)
		}

		return d.cancel(s, ReasonDeliveryFailed, StepFulfillment, m)
	}

	return violation("unexpected message while awaiting delivery confirmation")
}

// decideTerminal accepts redeliveries after the saga finished. Late successful
// responses to commands the saga issued earlier still get corrective
// compensation so no money or stock leaks; everything else is a no-op.
func (d Decider) decideTerminal(s OrderSaga, msg message.Object) Decision {
	if s.CurrentState == StateDelivered {
		return stale("order already delivered")
	}

	switch m := msg.(type) {
	case *contracts.PaymentCaptured:
		if s.PaymentState == PaymentCaptured || s.PaymentState == PaymentRefunded {
			return duplicate("capture already recorded")
		}

		refund := &contracts.RefundPayment{OrderUID: s.OrderUID, Total: s.Total, Reason: s.CancelReason}
		return applied([]message.Object{m}, refund)
	case *contracts.ReservationConfirmed, *contracts.ReservationCommitted:
		if s.InventoryState == InventoryReleased || s.InventoryState == InventoryFailed {
			return duplicate("reservation already settled")
		}

		release := &contracts.ReleaseReservation{OrderUID: s.OrderUID, Reason: s.CancelReason}
		return applied([]message.Object{m}, release)
	case *contracts.ReservationReleased:
		if s.InventoryState == InventoryReleased {
			return duplicate("release already recorded")
		}
		return applied([]message.Object{m})
	case *contracts.RefundCompleted:
		if s.PaymentState == PaymentRefunded {
			return duplicate("refund already recorded")
		}
		return applied([]message.Object{m})
	case *contracts.RefundFailed:
		// recorded so operators see it; the runtime raises an incident
		return Decision{Outcome: OutcomeApplied, Reason: ReasonRefundFailed, Events: []message.Object{m}}
	}

	return stale("order already cancelled")
}

func (d Decider) decideTimeout(s OrderSaga, timeout *contracts.Timeout) Decision {
	if s.PendingTimeoutToken == nil || *s.PendingTimeoutToken != timeout.Token {
		return stale("timeout token does not match the pending wait")
	}

	switch s.CurrentState {
	case StatePlaced:
		return d.cancel(s, ReasonAuthorizationTimeout, StepPayment, nil)
	case StateReservingInventory:
		return d.cancel(s, ReasonReservationTimeout, StepInventory, nil)
	case StateCapturingPayment:
		return d.cancel(s, ReasonCaptureTimeout, StepPayment, nil)
	case StateFulfilling:
		return d.cancel(s, ReasonFulfillmentTimeout, StepFulfillment, nil)
	case StateShipped:
		// same branch as an explicit delivery failure
		attempt := s.DeliveryAttempts + 1
		if attempt < d.MaxDeliveryAttempts {
			failure := &contracts.ShipmentDeliveryFailed{OrderUID: s.OrderUID, Attempt: attempt, Reason: ReasonDeliveryTimeout}
			redispatch := &contracts.RequestRedispatch{OrderUID: s.OrderUID, Attempt: attempt + 1}
			return applied([]message.Object{failure}, redispatch)
		}
		return d.cancel(s, ReasonDeliveryTimeout, StepFulfillment, nil)
	}

	return stale("nothing awaited in state " + string(s.CurrentState))
}

// cancel builds the terminal failure decision: the triggering fact (when there
// is one), corrective commands from the compensation policy, and the
// OrderCancelled notification last. Commands are enqueued in the same atomic
// commit, before the saga becomes visible as cancelled.
func (d Decider) cancel(s OrderSaga, reason string, failed Step, fact message.Object) Decision {
	var events []message.Object

	if fact != nil {
		events = append(events, fact)
	}

	events = append(events, &contracts.OrderCancelled{OrderUID: s.OrderUID, Reason: reason})

	commands := d.policy.Commands(failed, CompletedSteps{
		PaymentCaptured:    s.PaymentState == PaymentCaptured,
		InventoryReserved:  s.InventoryState == InventoryReserved,
		InventoryCommitted: s.InventoryState == InventoryCommitted,
	}, s.OrderUID, s.Total, reason)

	return Decision{Outcome: OutcomeApplied, Reason: reason, Events: events, Commands: commands}
}

// Package saga holds the order lifecycle state machine: the aggregate state,
// the pure transition function and the compensation policy. No I/O happens
// here; persistence and transports live around it.
package saga

import (
	"github.com/orderwise/orderwise/pubsub/message"
	"github.com/orderwise/orderwise/saga/contracts"
)

type State string

const (
	// StateNone means no event was ever recorded for the order
	StateNone               State = ""
	StatePlaced             State = "placed"
	StateReservingInventory State = "reserving_inventory"
	StateCapturingPayment   State = "capturing_payment"
	StateFulfilling         State = "fulfilling"
	StateShipped            State = "shipped"
	StateDelivered          State = "delivered"
	StateCancelled          State = "cancelled"
)

func (s State) Terminal() bool {
	return s == StateDelivered || s == StateCancelled
}

// Awaiting reports whether the state waits on an external response and is
// therefore covered by a timeout.
func (s State) Awaiting() bool {
	switch s {
	case StatePlaced, StateReservingInventory, StateCapturingPayment, StateFulfilling, StateShipped:
		return true
	}
	return false
}

type PaymentState string

const (
	PaymentUnattempted PaymentState = "unattempted"
	PaymentAuthorized  PaymentState = "authorized"
	PaymentCaptured    PaymentState = "captured"
	PaymentFailed      PaymentState = "failed"
	PaymentRefunded    PaymentState = "refunded"
)

type InventoryState string

const (
	InventoryUnreserved InventoryState = "unreserved"
	InventoryReserved   InventoryState = "reserved"
	InventoryCommitted  InventoryState = "committed"
	InventoryReleased   InventoryState = "released"
	InventoryFailed     InventoryState = "failed"
)

type FulfillmentState string

const (
	FulfillmentNotStarted FulfillmentState = "not_started"
	FulfillmentDispatched FulfillmentState = "dispatched"
	FulfillmentDelivered  FulfillmentState = "delivered"
	FulfillmentFailed     FulfillmentState = "failed"
)

// OrderSaga is the aggregate. It is never mutated outside of Apply: every
// field is derivable by folding the order's event stream from empty.
type OrderSaga struct {
	OrderUID    string
	CustomerUID string
	Items       []contracts.LineItem
	Total       contracts.Money

	CurrentState     State
	PaymentState     PaymentState
	InventoryState   InventoryState
	FulfillmentState FulfillmentState

	// StreamVersion is the version of the last applied event
	StreamVersion int64
	// PendingTimeoutToken equals the version at which the current wait began,
	// nil when nothing is awaited
	PendingTimeoutToken *int64
	DeliveryAttempts    int
	CancelReason        string
}

func NewOrderSaga(orderUID string) OrderSaga {
	return OrderSaga{
		OrderUID:         orderUID,
		PaymentState:     PaymentUnattempted,
		InventoryState:   InventoryUnreserved,
		FulfillmentState: FulfillmentNotStarted,
	}
}

// Apply folds one recorded event into the state. version is the stream version
// the event was recorded at.
func (s *OrderSaga) Apply(ev message.Object, version int64) {
	s.StreamVersion = version

	switch e := ev.(type) {
	case *contracts.OrderPlaced:
		s.OrderUID = e.OrderUID
		s.CustomerUID = e.CustomerUID
		s.Items = e.Items
		s.Total = e.Total
		s.enter(StatePlaced, version)
	case *contracts.PaymentAuthorized:
		s.PaymentState = PaymentAuthorized
		s.enter(StateReservingInventory, version)
	case *contracts.PaymentFailed:
		s.PaymentState = PaymentFailed
	case *contracts.ReservationConfirmed:
		s.InventoryState = InventoryReserved
		if !s.CurrentState.Terminal() {
			s.enter(StateCapturingPayment, version)
		}
	case *contracts.ReservationFailed:
		s.InventoryState = InventoryFailed
	case *contracts.PaymentCaptured:
		s.PaymentState = PaymentCaptured
		if !s.CurrentState.Terminal() {
			s.enter(StateFulfilling, version)
		}
	case *contracts.PaymentCaptureFailed:
		s.PaymentState = PaymentFailed
	case *contracts.ReservationCommitted:
		s.InventoryState = InventoryCommitted
	case *contracts.ReservationReleased:
		s.InventoryState = InventoryReleased
	case *contracts.RefundCompleted:
		s.PaymentState = PaymentRefunded
	case *contracts.RefundFailed:
		// payment stays captured, the incident is raised by the runtime
	case *contracts.ShipmentDispatched:
		s.FulfillmentState = FulfillmentDispatched
		s.enter(StateShipped, version)
	case *contracts.ShipmentDeliveryFailed:
		s.DeliveryAttempts = e.Attempt
		// the wait restarts when a redispatch was requested
		if s.CurrentState == StateShipped {
			s.enter(StateShipped, version)
		}
	case *contracts.ShipmentDelivered:
		s.FulfillmentState = FulfillmentDelivered
		s.enter(StateDelivered, version)
	case *contracts.OrderCancelled:
		s.CancelReason = e.Reason
		if s.FulfillmentState == FulfillmentDispatched {
			s.FulfillmentState = FulfillmentFailed
		}
		s.enter(StateCancelled, version)
	}
}

func (s *OrderSaga) enter(next State, version int64) {
	s.CurrentState = next

	if next.Awaiting() {
		token := version
		s.PendingTimeoutToken = &token
		return
	}

	s.PendingTimeoutToken = nil
}

// Replay rebuilds the aggregate from its ordered event stream.
func Replay(orderUID string, events []RecordedEvent) OrderSaga {
	s := NewOrderSaga(orderUID)

	for _, rec := range events {
		s.Apply(rec.Payload, rec.Version)
	}

	return s
}

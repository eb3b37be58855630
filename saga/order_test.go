package saga

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderwise/orderwise/saga/contracts"
)

func TestOrderSaga_ApplyOrderPlaced(t *testing.T) {
	s := NewOrderSaga("order-1")

	s.Apply(&contracts.OrderPlaced{
		OrderUID:    "order-1",
		CustomerUID: "customer-1",
		Items:       []contracts.LineItem{{SKU: "sku-1", Quantity: 1, UnitPrice: contracts.Money{Amount: 700, Currency: "EUR"}}},
		Total:       contracts.Money{Amount: 700, Currency: "EUR"},
	}, 1)

	assert.Equal(t, StatePlaced, s.CurrentState)
	assert.Equal(t, "customer-1", s.CustomerUID)
	assert.Equal(t, int64(700), s.Total.Amount)
	assert.Equal(t, int64(1), s.StreamVersion)
	require.NotNil(t, s.PendingTimeoutToken)
	assert.Equal(t, int64(1), *s.PendingTimeoutToken)
}

func TestOrderSaga_TokenFollowsTheWait(t *testing.T) {
	s := NewOrderSaga("order-1")

	s.Apply(&contracts.OrderPlaced{OrderUID: "order-1"}, 1)
	require.NotNil(t, s.PendingTimeoutToken)
	assert.Equal(t, int64(1), *s.PendingTimeoutToken)

	s.Apply(&contracts.PaymentAuthorized{OrderUID: "order-1"}, 2)
	assert.Equal(t, StateReservingInventory, s.CurrentState)
	require.NotNil(t, s.PendingTimeoutToken)
	assert.Equal(t, int64(2), *s.PendingTimeoutToken)

	s.Apply(&contracts.ReservationConfirmed{OrderUID: "order-1"}, 3)
	assert.Equal(t, StateCapturingPayment, s.CurrentState)
	require.NotNil(t, s.PendingTimeoutToken)
	assert.Equal(t, int64(3), *s.PendingTimeoutToken)
}

func TestOrderSaga_TerminalStatesClearTheToken(t *testing.T) {
	t.Run("delivered", func(t *testing.T) {
		s := NewOrderSaga("order-1")
		s.Apply(&contracts.OrderPlaced{OrderUID: "order-1"}, 1)
		s.Apply(&contracts.PaymentAuthorized{OrderUID: "order-1"}, 2)
		s.Apply(&contracts.ReservationConfirmed{OrderUID: "order-1"}, 3)
		s.Apply(&contracts.PaymentCaptured{OrderUID: "order-1"}, 4)
		s.Apply(&contracts.ShipmentDispatched{OrderUID: "order-1"}, 5)
		s.Apply(&contracts.ShipmentDelivered{OrderUID: "order-1"}, 6)

		assert.Equal(t, StateDelivered, s.CurrentState)
		assert.Equal(t, FulfillmentDelivered, s.FulfillmentState)
		assert.Nil(t, s.PendingTimeoutToken)
	})

	t.Run("cancelled", func(t *testing.T) {
		s := NewOrderSaga("order-1")
		s.Apply(&contracts.OrderPlaced{OrderUID: "order-1"}, 1)
		s.Apply(&contracts.OrderCancelled{OrderUID: "order-1", Reason: ReasonAuthorizationTimeout}, 2)

		assert.Equal(t, StateCancelled, s.CurrentState)
		assert.Equal(t, ReasonAuthorizationTimeout, s.CancelReason)
		assert.Nil(t, s.PendingTimeoutToken)
	})
}

func TestOrderSaga_SubStatesSurviveCancellation(t *testing.T) {
	s := NewOrderSaga("order-1")
	s.Apply(&contracts.OrderPlaced{OrderUID: "order-1"}, 1)
	s.Apply(&contracts.PaymentAuthorized{OrderUID: "order-1"}, 2)
	s.Apply(&contracts.ReservationConfirmed{OrderUID: "order-1"}, 3)
	s.Apply(&contracts.PaymentCaptured{OrderUID: "order-1"}, 4)
	s.Apply(&contracts.OrderCancelled{OrderUID: "order-1", Reason: ReasonFulfillmentTimeout}, 5)

	// the ledgers keep recording after the order is terminal
	assert.Equal(t, StateCancelled, s.CurrentState)
	assert.Equal(t, PaymentCaptured, s.PaymentState)
	assert.Equal(t, InventoryReserved, s.InventoryState)

	s.Apply(&contracts.ReservationReleased{OrderUID: "order-1"}, 6)
	s.Apply(&contracts.RefundCompleted{OrderUID: "order-1"}, 7)

	assert.Equal(t, StateCancelled, s.CurrentState)
	assert.Equal(t, InventoryReleased, s.InventoryState)
	assert.Equal(t, PaymentRefunded, s.PaymentState)
	assert.Equal(t, int64(7), s.StreamVersion)
}

func TestOrderSaga_LateResponsesDoNotRevive(t *testing.T) {
	s := NewOrderSaga("order-1")
	s.Apply(&contracts.OrderPlaced{OrderUID: "order-1"}, 1)
	s.Apply(&contracts.PaymentAuthorized{OrderUID: "order-1"}, 2)
	s.Apply(&contracts.OrderCancelled{OrderUID: "order-1", Reason: ReasonReservationTimeout}, 3)

	// a confirmation that lost the race against the timeout
	s.Apply(&contracts.ReservationConfirmed{OrderUID: "order-1"}, 4)

	assert.Equal(t, StateCancelled, s.CurrentState)
	assert.Equal(t, InventoryReserved, s.InventoryState)
	assert.Nil(t, s.PendingTimeoutToken)
}

func TestOrderSaga_DeliveryFailureRestartsTheWait(t *testing.T) {
	s := NewOrderSaga("order-1")
	s.Apply(&contracts.OrderPlaced{OrderUID: "order-1"}, 1)
	s.Apply(&contracts.PaymentAuthorized{OrderUID: "order-1"}, 2)
	s.Apply(&contracts.ReservationConfirmed{OrderUID: "order-1"}, 3)
	s.Apply(&contracts.PaymentCaptured{OrderUID: "order-1"}, 4)
	s.Apply(&contracts.ShipmentDispatched{OrderUID: "order-1"}, 5)
	s.Apply(&contracts.ShipmentDeliveryFailed{OrderUID: "order-1", Attempt: 1}, 6)

	assert.Equal(t, StateShipped, s.CurrentState)
	assert.Equal(t, 1, s.DeliveryAttempts)
	require.NotNil(t, s.PendingTimeoutToken)
	assert.Equal(t, int64(6), *s.PendingTimeoutToken)
}

func TestOrderSaga_CancellationMarksDispatchedFulfillmentFailed(t *testing.T) {
	s := NewOrderSaga("order-1")
	s.Apply(&contracts.OrderPlaced{OrderUID: "order-1"}, 1)
	s.Apply(&contracts.PaymentAuthorized{OrderUID: "order-1"}, 2)
	s.Apply(&contracts.ReservationConfirmed{OrderUID: "order-1"}, 3)
	s.Apply(&contracts.PaymentCaptured{OrderUID: "order-1"}, 4)
	s.Apply(&contracts.ShipmentDispatched{OrderUID: "order-1"}, 5)
	s.Apply(&contracts.ShipmentDeliveryFailed{OrderUID: "order-1", Attempt: 3}, 6)
	s.Apply(&contracts.OrderCancelled{OrderUID: "order-1", Reason: ReasonDeliveryFailed}, 7)

	assert.Equal(t, StateCancelled, s.CurrentState)
	assert.Equal(t, FulfillmentFailed, s.FulfillmentState)
}

func TestReplay(t *testing.T) {
	events := []RecordedEvent{
		{Version: 1, Payload: &contracts.OrderPlaced{OrderUID: "order-1", CustomerUID: "customer-1"}},
		{Version: 2, Payload: &contracts.PaymentAuthorized{OrderUID: "order-1"}},
		{Version: 3, Payload: &contracts.ReservationConfirmed{OrderUID: "order-1"}},
	}

	s := Replay("order-1", events)

	assert.Equal(t, StateCapturingPayment, s.CurrentState)
	assert.Equal(t, "customer-1", s.CustomerUID)
	assert.Equal(t, PaymentAuthorized, s.PaymentState)
	assert.Equal(t, InventoryReserved, s.InventoryState)
	assert.Equal(t, int64(3), s.StreamVersion)

	t.Run("empty stream yields the zero saga", func(t *testing.T) {
		s := Replay("order-2", nil)
		assert.Equal(t, StateNone, s.CurrentState)
		assert.Equal(t, int64(0), s.StreamVersion)
		assert.Nil(t, s.PendingTimeoutToken)
	})
}

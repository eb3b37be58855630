// Package contracts declares every message the order lifecycle saga consumes or
// publishes. All types are registered in the default scheme so transports can
// decode them by group and kind.
package contracts

import (
	"github.com/orderwise/orderwise/pubsub/message"
	"github.com/orderwise/orderwise/runtime/scheme"
)

const (
	OrdersGroup      scheme.Group = "orders"
	PaymentsGroup    scheme.Group = "payments"
	InventoryGroup   scheme.Group = "inventory"
	FulfillmentGroup scheme.Group = "fulfillment"
)

func init() {
	scheme.KnownTypesRegistryInstance.AddKnownTypes(OrdersGroup,
		&CheckoutCompleted{},
		&Timeout{},
		&OrderPlaced{},
		&OrderCancelled{},
		&OrderDelivered{},
	)
	scheme.KnownTypesRegistryInstance.AddKnownTypes(PaymentsGroup,
		&AuthorizePayment{},
		&CapturePayment{},
		&RefundPayment{},
		&PaymentAuthorized{},
		&PaymentFailed{},
		&PaymentCaptured{},
		&PaymentCaptureFailed{},
		&RefundCompleted{},
		&RefundFailed{},
	)
	scheme.KnownTypesRegistryInstance.AddKnownTypes(InventoryGroup,
		&ReserveInventory{},
		&CommitReservation{},
		&ReleaseReservation{},
		&ReservationConfirmed{},
		&ReservationFailed{},
		&ReservationCommitted{},
		&ReservationReleased{},
	)
	scheme.KnownTypesRegistryInstance.AddKnownTypes(FulfillmentGroup,
		&RequestFulfillment{},
		&RequestRedispatch{},
		&ShipmentDispatched{},
		&ShipmentDelivered{},
		&ShipmentDeliveryFailed{},
	)
}

// Money is an amount in minor units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type LineItem struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice Money  `json:"unit_price"`
}

// Correlated is implemented by every contract so the consumer can route a
// message to its saga instance.
type Correlated interface {
	CorrelationID() string
}

// CheckoutCompleted creates the saga. Published by the checkout front once a
// customer has paid-intent confirmed their basket.
type CheckoutCompleted struct {
	message.ObjectMeta
	OrderUID    string     `json:"order_uid"`
	CustomerUID string     `json:"customer_uid"`
	Items       []LineItem `json:"items"`
	Total       Money      `json:"total"`
}

func (c CheckoutCompleted) CorrelationID() string { return c.OrderUID }

// Timeout fires when an awaited response did not arrive within its SLA window.
// Token equals the stream version at which the wait began; a stale token is
// absorbed as a no-op.
type Timeout struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
	Token    int64  `json:"token"`
}

func (c Timeout) CorrelationID() string { return c.OrderUID }

// --- order status notifications, also the saga's own stream events ---

type OrderPlaced struct {
	message.ObjectMeta
	OrderUID    string     `json:"order_uid"`
	CustomerUID string     `json:"customer_uid"`
	Items       []LineItem `json:"items"`
	Total       Money      `json:"total"`
}

func (c OrderPlaced) CorrelationID() string { return c.OrderUID }

type OrderCancelled struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
	Reason   string `json:"reason"`
}

func (c OrderCancelled) CorrelationID() string { return c.OrderUID }

type OrderDelivered struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
}

func (c OrderDelivered) CorrelationID() string { return c.OrderUID }

// --- commands to Payments ---

type AuthorizePayment struct {
	message.ObjectMeta
	OrderUID    string `json:"order_uid"`
	CustomerUID string `json:"customer_uid"`
	Total       Money  `json:"total"`
}

func (c AuthorizePayment) CorrelationID() string { return c.OrderUID }

type CapturePayment struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
	Total    Money  `json:"total"`
}

func (c CapturePayment) CorrelationID() string { return c.OrderUID }

type RefundPayment struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
	Total    Money  `json:"total"`
	Reason   string `json:"reason"`
}

func (c RefundPayment) CorrelationID() string { return c.OrderUID }

// --- responses from Payments ---

type PaymentAuthorized struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
}

func (c PaymentAuthorized) CorrelationID() string { return c.OrderUID }

type PaymentFailed struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
	Reason   string `json:"reason"`
}

func (c PaymentFailed) CorrelationID() string { return c.OrderUID }

type PaymentCaptured struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
}

func (c PaymentCaptured) CorrelationID() string { return c.OrderUID }

type PaymentCaptureFailed struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
	Reason   string `json:"reason"`
}

func (c PaymentCaptureFailed) CorrelationID() string { return c.OrderUID }

type RefundCompleted struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
}

func (c RefundCompleted) CorrelationID() string { return c.OrderUID }

type RefundFailed struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
	Reason   string `json:"reason"`
}

func (c RefundFailed) CorrelationID() string { return c.OrderUID }

// --- commands to Inventory ---

type ReserveInventory struct {
	message.ObjectMeta
	OrderUID string     `json:"order_uid"`
	Items    []LineItem `json:"items"`
}

func (c ReserveInventory) CorrelationID() string { return c.OrderUID }

type CommitReservation struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
}

func (c CommitReservation) CorrelationID() string { return c.OrderUID }

type ReleaseReservation struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
	Reason   string `json:"reason"`
}

func (c ReleaseReservation) CorrelationID() string { return c.OrderUID }

// --- responses from Inventory ---

type ReservationConfirmed struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
}

func (c ReservationConfirmed) CorrelationID() string { return c.OrderUID }

type ReservationFailed struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
	Reason   string `json:"reason"`
}

func (c ReservationFailed) CorrelationID() string { return c.OrderUID }

type ReservationCommitted struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
}

func (c ReservationCommitted) CorrelationID() string { return c.OrderUID }

type ReservationReleased struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
}

func (c ReservationReleased) CorrelationID() string { return c.OrderUID }

// --- commands to Fulfillment ---

type RequestFulfillment struct {
	message.ObjectMeta
	OrderUID string     `json:"order_uid"`
	Items    []LineItem `json:"items"`
}

func (c RequestFulfillment) CorrelationID() string { return c.OrderUID }

type RequestRedispatch struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
	Attempt  int    `json:"attempt"`
}

func (c RequestRedispatch) CorrelationID() string { return c.OrderUID }

// --- responses from Fulfillment ---

type ShipmentDispatched struct {
	message.ObjectMeta
	OrderUID    string `json:"order_uid"`
	TrackingRef string `json:"tracking_ref"`
}

func (c ShipmentDispatched) CorrelationID() string { return c.OrderUID }

type ShipmentDelivered struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
}

func (c ShipmentDelivered) CorrelationID() string { return c.OrderUID }

type ShipmentDeliveryFailed struct {
	message.ObjectMeta
	OrderUID string `json:"order_uid"`
	Attempt  int    `json:"attempt"`
	Reason   string `json:"reason"`
}

func (c ShipmentDeliveryFailed) CorrelationID() string { return c.OrderUID }

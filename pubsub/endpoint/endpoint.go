// Package endpoint publishes messages to their destinations. The router maps
// message types to endpoints, a transport endpoint serializes and hands the
// message to the broker.
package endpoint

import (
	"context"
	"time"

	"github.com/orderwise/orderwise/pubsub/message"
)

type Endpoint interface {
	// Name identifies the endpoint in logs and errors
	Name() string
	// Send publishes the message to the endpoint's destination
	Send(ctx context.Context, message *message.OutcomingMessage, options ...DeliveryOption) error
}

type DeliveryOption func(o *deliveryOptions) error

type deliveryOptions struct {
	delay *time.Duration
}

// WithDelay holds the publish back for the given duration. The wait happens
// in-process, so it only suits short delays.
func WithDelay(delay time.Duration) DeliveryOption {
	return func(o *deliveryOptions) error {
		o.delay = &delay
		return nil
	}
}

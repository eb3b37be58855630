package saga

import (
	"time"

	"github.com/orderwise/orderwise/pubsub/message"
)

// RecordedEvent is one entry of an order's append-only stream. Version is
// monotonic per order, CausationUID is the uid of the inbound message that
// produced the event.
type RecordedEvent struct {
	OrderUID     string
	Version      int64
	Payload      message.Object
	CausationUID string
	RecordedAt   time.Time
}

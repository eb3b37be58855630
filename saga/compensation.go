package saga

import (
	"github.com/orderwise/orderwise/pubsub/message"
	"github.com/orderwise/orderwise/saga/contracts"
)

// Step names the lifecycle step that failed and triggered compensation.
type Step string

const (
	StepPayment     Step = "payment"
	StepInventory   Step = "inventory"
	StepFulfillment Step = "fulfillment"
)

// CompletedSteps is the set of already-completed steps at failure time.
type CompletedSteps struct {
	PaymentCaptured    bool
	InventoryReserved  bool
	InventoryCommitted bool
}

// CompensationPolicy maps (failed step, completed steps) to the corrective
// commands undoing what already happened:
//
//   - a captured payment always gets a refund; a mere authorization is left to
//     expire on the payment provider's side
//   - a live reservation gets released, unless inventory is the step that
//     failed (there is nothing held to release)
//
// Release and refund touch independent services and may be dispatched
// concurrently; both are enqueued before the saga is marked cancelled.
type CompensationPolicy struct{}

func (CompensationPolicy) Commands(failed Step, done CompletedSteps, orderUID string, total contracts.Money, reason string) []message.Object {
	var commands []message.Object

	if (done.InventoryReserved || done.InventoryCommitted) && failed != StepInventory {
		commands = append(commands, &contracts.ReleaseReservation{OrderUID: orderUID, Reason: reason})
	}

	if done.PaymentCaptured {
		commands = append(commands, &contracts.RefundPayment{OrderUID: orderUID, Total: total, Reason: reason})
	}

	return commands
}

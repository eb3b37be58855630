package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters of the order lifecycle runtime, registered on the default
// registry and served by promhttp alongside the status API.
var (
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderwise",
		Name:      "saga_transitions_total",
		Help:      "State transitions applied to order sagas",
	}, []string{"from", "to"})

	DuplicateMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orderwise",
		Name:      "duplicate_messages_total",
		Help:      "Inbound messages dropped by the idempotency ledger",
	})

	StaleMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orderwise",
		Name:      "stale_messages_total",
		Help:      "Inbound messages discarded because the saga moved on",
	})

	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orderwise",
		Name:      "version_conflicts_total",
		Help:      "Optimistic concurrency conflicts on event stream appends",
	})

	Violations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderwise",
		Name:      "protocol_violations_total",
		Help:      "Messages that are not valid in the saga's current state",
	}, []string{"state"})

	Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderwise",
		Name:      "alerts_total",
		Help:      "Conditions escalated to operators",
	}, []string{"reason"})

	OutboxDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orderwise",
		Name:      "outbox_dispatched_total",
		Help:      "Commands relayed from the outbox to the bus",
	})

	OutboxFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orderwise",
		Name:      "outbox_failures_total",
		Help:      "Outbox relay attempts that failed to publish",
	})

	TimeoutsFired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orderwise",
		Name:      "timeouts_fired_total",
		Help:      "SLA timeout messages published to the saga inbound topic",
	})
)

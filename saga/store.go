package saga

import (
	"context"
	"time"

	"github.com/orderwise/orderwise/pubsub/message"
)

const (
	eventsTableName   = "order_events"
	outboxTableName   = "order_outbox"
	inboxTableName    = "order_inbox"
	timeoutsTableName = "saga_timeouts"
	snapshotTableName = "order_sagas"
)

// VersionConflictErr marks a concurrent append to the same order stream. The
// runtime reloads and re-decides when it sees one.
type VersionConflictErr struct {
	error
}

func WithVersionConflictErr(err error) error {
	return VersionConflictErr{err}
}

// AlreadyProcessedErr marks a commit whose message uid is already in the
// inbox: another worker won the race for the same delivery. Retrying cannot
// succeed, the runtime drops the message as a duplicate.
type AlreadyProcessedErr struct {
	error
}

func WithAlreadyProcessedErr(err error) error {
	return AlreadyProcessedErr{err}
}

// Commit is everything one decide cycle persists. The store writes it as a
// single transaction: events are the atomic unit with the idempotency record
// and the outbox rows, exactly or none.
type Commit struct {
	OrderUID string
	// ExpectedVersion is the stream version the decision was made against.
	// Events get versions ExpectedVersion+1..+n; a concurrent writer on the
	// same range surfaces as VersionConflictErr.
	ExpectedVersion int64
	// MessageUID of the inbound message, recorded in the idempotency ledger
	MessageUID string
	Events     []message.Object
	Commands   []message.Object
	// Timeout to arm for the resulting state, nil when nothing is awaited
	Timeout *TimeoutEntry
	// Snapshot of the resulting aggregate, kept as a queryable read model
	Snapshot OrderSaga
}

type TimeoutEntry struct {
	OrderUID string
	Token    int64
	FireAt   time.Time
}

// OutboxRecord is one command awaiting relay to the bus.
type OutboxRecord struct {
	UID       string
	OrderUID  string
	Payload   message.Object
	Retries   int
	CreatedAt time.Time
}

type FilterOption func(opts *filterOptions)

func WithState(state State) FilterOption {
	return func(opts *filterOptions) {
		opts.state = state
	}
}

func WithLimit(limit int) FilterOption {
	return func(opts *filterOptions) {
		opts.limit = &limit
	}
}

func WithOffset(offset int) FilterOption {
	return func(opts *filterOptions) {
		opts.offset = &offset
	}
}

type filterOptions struct {
	state  State
	limit  *int
	offset *int
}

type Store interface {
	// Load returns the ordered event stream of an order, empty when the order
	// was never placed
	Load(ctx context.Context, orderUID string) ([]RecordedEvent, error)
	// IsProcessed checks the idempotency ledger for the inbound message uid
	IsProcessed(ctx context.Context, orderUID string, messageUID string) (bool, error)
	// CommitDecision atomically appends events, records the idempotency key,
	// enqueues outbox commands and re-arms the timeout
	CommitDecision(ctx context.Context, commit Commit) error

	// FetchPendingCommands returns up to batch outbox rows awaiting relay
	FetchPendingCommands(ctx context.Context, batch int) ([]OutboxRecord, error)
	MarkDispatched(ctx context.Context, uids []string) error
	MarkFailed(ctx context.Context, uid string) error

	// DueTimeouts returns timeout entries whose SLA expired at now
	DueTimeouts(ctx context.Context, now time.Time, batch int) ([]TimeoutEntry, error)
	DeleteTimeout(ctx context.Context, orderUID string, token int64) error

	// GetSnapshot returns the read-model snapshot of one order, nil if unknown
	GetSnapshot(ctx context.Context, orderUID string) (*OrderSaga, error)
	GetSnapshotsByFilter(ctx context.Context, filters ...FilterOption) ([]OrderSaga, error)
}

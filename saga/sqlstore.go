package saga

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/orderwise/orderwise/pubsub/message"
)

const (
	MYSQLDriver SQLDriver = "mysql"
	PGDriver    SQLDriver = "pg"

	outboxStatusPending    = "pending"
	outboxStatusDispatched = "dispatched"
)

type SQLDriver string

type sqlStore struct {
	msgMarshaller message.Marshaller
	db            *sql.DB
	driver        SQLDriver
}

// NewSQLStore creates the saga store, it supports mysql and postgres drivers.
// The driver param is required because of https://github.com/golang/go/issues/3602.
func NewSQLStore(db *sql.DB, driver SQLDriver, msgMarshaller message.Marshaller) (Store, error) {
	s := &sqlStore{db: db, driver: driver, msgMarshaller: msgMarshaller}
	if err := s.initTables(); err != nil {
		return nil, errors.Wrapf(err, "initializing tables for SQLStore, driver %s", driver)
	}

	return s, nil
}

func (s sqlStore) Load(ctx context.Context, orderUID string) ([]RecordedEvent, error) {
	rows, err := s.db.QueryContext(
		ctx,
		s.prepQuery(fmt.Sprintf("SELECT order_uid, version, payload, causation_uid, recorded_at FROM %v WHERE order_uid=? ORDER BY version ASC;", eventsTableName)),
		orderUID,
	)

	if err != nil {
		return nil, errors.Wrapf(err, "querying events of order %s", orderUID)
	}

	defer rows.Close()

	var events []RecordedEvent

	for rows.Next() {
		var (
			rec     RecordedEvent
			payload []byte
		)

		if err := rows.Scan(&rec.OrderUID, &rec.Version, &payload, &rec.CausationUID, &rec.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "scanning event row")
		}

		obj, err := s.msgMarshaller.Unmarshal(payload)

		if err != nil {
			return nil, errors.Wrapf(err, "unmarshalling event v%d of order %s", rec.Version, orderUID)
		}

		rec.Payload = obj
		events = append(events, rec)
	}

	return events, errors.WithStack(rows.Err())
}

func (s sqlStore) IsProcessed(ctx context.Context, orderUID string, messageUID string) (bool, error) {
	var exists int

	err := s.db.QueryRowContext(
		ctx,
		s.prepQuery(fmt.Sprintf("SELECT 1 FROM %v WHERE order_uid=? AND message_uid=?;", inboxTableName)),
		orderUID,
		messageUID,
	).Scan(&exists)

	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, errors.Wrapf(err, "checking idempotency ledger for message %s", messageUID)
	}

	return true, nil
}

// CommitDecision writes one decide cycle in a single transaction: inbox record,
// event appends guarded by the (order_uid, version) primary key, outbox rows,
// the re-armed timeout and the snapshot.
func (s sqlStore) CommitDecision(ctx context.Context, commit Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)

	if err != nil {
		return errors.Wrapf(err, "beginning a transaction for order %s", commit.OrderUID)
	}

	if err := s.commitInTx(ctx, tx, commit); err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			return errors.Wrapf(rErr, "rollback when %s", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "committing decision for order %s", commit.OrderUID)
	}

	return nil
}

func (s sqlStore) commitInTx(ctx context.Context, tx *sql.Tx, commit Commit) error {
	now := time.Now()

	_, err := tx.ExecContext(
		ctx,
		s.prepQuery(fmt.Sprintf("INSERT INTO %v (order_uid, message_uid, processed_at) VALUES (?, ?, ?);", inboxTableName)),
		commit.OrderUID,
		commit.MessageUID,
		now,
	)

	if err != nil {
		if isDuplicateKey(err) {
			// another worker processed this very message first
			return WithAlreadyProcessedErr(errors.Errorf("message %s already recorded for order %s", commit.MessageUID, commit.OrderUID))
		}
		return errors.Wrapf(err, "recording message %s in the idempotency ledger", commit.MessageUID)
	}

	for i, ev := range commit.Events {
		payload, err := s.msgMarshaller.Marshal(ev)

		if err != nil {
			return errors.Wrapf(err, "marshalling event %T of order %s", ev, commit.OrderUID)
		}

		version := commit.ExpectedVersion + int64(i) + 1

		_, err = tx.ExecContext(
			ctx,
			s.prepQuery(fmt.Sprintf("INSERT INTO %v (order_uid, version, name, payload, causation_uid, recorded_at) VALUES (?, ?, ?, ?, ?, ?);", eventsTableName)),
			commit.OrderUID,
			version,
			ev.GroupKind().String(),
			payload,
			commit.MessageUID,
			now,
		)

		if err != nil {
			if isDuplicateKey(err) {
				return WithVersionConflictErr(errors.Errorf("concurrent append at version %d of order %s", version, commit.OrderUID))
			}
			return errors.Wrapf(err, "appending event v%d of order %s", version, commit.OrderUID)
		}
	}

	for _, cmd := range commit.Commands {
		payload, err := s.msgMarshaller.Marshal(cmd)

		if err != nil {
			return errors.Wrapf(err, "marshalling command %T of order %s", cmd, commit.OrderUID)
		}

		_, err = tx.ExecContext(
			ctx,
			s.prepQuery(fmt.Sprintf("INSERT INTO %v (uid, order_uid, name, payload, status, retries, created_at) VALUES (?, ?, ?, ?, ?, 0, ?);", outboxTableName)),
			uuid.New().String(),
			commit.OrderUID,
			cmd.GroupKind().String(),
			payload,
			outboxStatusPending,
			now,
		)

		if err != nil {
			return errors.Wrapf(err, "enqueueing command %T for order %s", cmd, commit.OrderUID)
		}
	}

	// timeouts move only when the stream moved, otherwise a redelivered
	// duplicate would push the SLA deadline forward
	if len(commit.Events) > 0 {
		if _, err := tx.ExecContext(
			ctx,
			s.prepQuery(fmt.Sprintf("DELETE FROM %v WHERE order_uid=?;", timeoutsTableName)),
			commit.OrderUID,
		); err != nil {
			return errors.Wrapf(err, "clearing pending timeout of order %s", commit.OrderUID)
		}

		if commit.Timeout != nil {
			if _, err := tx.ExecContext(
				ctx,
				s.prepQuery(fmt.Sprintf("INSERT INTO %v (order_uid, token, fire_at) VALUES (?, ?, ?);", timeoutsTableName)),
				commit.Timeout.OrderUID,
				commit.Timeout.Token,
				commit.Timeout.FireAt,
			); err != nil {
				return errors.Wrapf(err, "arming timeout for order %s", commit.OrderUID)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, s.prepQuery(s.snapshotUpsertQuery()),
		commit.Snapshot.OrderUID,
		commit.Snapshot.CustomerUID,
		string(commit.Snapshot.CurrentState),
		string(commit.Snapshot.PaymentState),
		string(commit.Snapshot.InventoryState),
		string(commit.Snapshot.FulfillmentState),
		commit.Snapshot.StreamVersion,
		commit.Snapshot.CancelReason,
		commit.Snapshot.DeliveryAttempts,
		now,
	); err != nil {
		return errors.Wrapf(err, "updating snapshot of order %s", commit.OrderUID)
	}

	return nil
}

func (s sqlStore) snapshotUpsertQuery() string {
	insert := fmt.Sprintf("INSERT INTO %v (uid, customer_uid, state, payment_state, inventory_state, fulfillment_state, version, cancel_reason, delivery_attempts, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", snapshotTableName)

	if s.driver == PGDriver {
		return insert + " ON CONFLICT (uid) DO UPDATE SET state=excluded.state, payment_state=excluded.payment_state, inventory_state=excluded.inventory_state, fulfillment_state=excluded.fulfillment_state, version=excluded.version, cancel_reason=excluded.cancel_reason, delivery_attempts=excluded.delivery_attempts, updated_at=excluded.updated_at;"
	}

	return insert + " ON DUPLICATE KEY UPDATE state=VALUES(state), payment_state=VALUES(payment_state), inventory_state=VALUES(inventory_state), fulfillment_state=VALUES(fulfillment_state), version=VALUES(version), cancel_reason=VALUES(cancel_reason), delivery_attempts=VALUES(delivery_attempts), updated_at=VALUES(updated_at);"
}

func (s sqlStore) FetchPendingCommands(ctx context.Context, batch int) ([]OutboxRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		s.prepQuery(fmt.Sprintf("SELECT uid, order_uid, payload, retries, created_at FROM %v WHERE status=? ORDER BY created_at ASC LIMIT %d;", outboxTableName, batch)),
		outboxStatusPending,
	)

	if err != nil {
		return nil, errors.Wrap(err, "querying pending outbox commands")
	}

	defer rows.Close()

	var records []OutboxRecord

	for rows.Next() {
		var (
			rec     OutboxRecord
			payload []byte
		)

		if err := rows.Scan(&rec.UID, &rec.OrderUID, &payload, &rec.Retries, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning outbox row")
		}

		obj, err := s.msgMarshaller.Unmarshal(payload)

		if err != nil {
			return nil, errors.Wrapf(err, "unmarshalling outbox command %s", rec.UID)
		}

		rec.Payload = obj
		records = append(records, rec)
	}

	return records, errors.WithStack(rows.Err())
}

func (s sqlStore) MarkDispatched(ctx context.Context, uids []string) error {
	if len(uids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(uids)), ",")

	args := make([]interface{}, 0, len(uids)+2)
	args = append(args, outboxStatusDispatched, time.Now())

	for _, uid := range uids {
		args = append(args, uid)
	}

	_, err := s.db.ExecContext(
		ctx,
		s.prepQuery(fmt.Sprintf("UPDATE %v SET status=?, dispatched_at=? WHERE uid IN (%s);", outboxTableName, placeholders)),
		args...,
	)

	return errors.Wrap(err, "marking outbox commands dispatched")
}

func (s sqlStore) MarkFailed(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(
		ctx,
		s.prepQuery(fmt.Sprintf("UPDATE %v SET retries=retries+1 WHERE uid=?;", outboxTableName)),
		uid,
	)

	return errors.Wrapf(err, "incrementing retries of outbox command %s", uid)
}

func (s sqlStore) DueTimeouts(ctx context.Context, now time.Time, batch int) ([]TimeoutEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		s.prepQuery(fmt.Sprintf("SELECT order_uid, token, fire_at FROM %v WHERE fire_at <= ? ORDER BY fire_at ASC LIMIT %d;", timeoutsTableName, batch)),
		now,
	)

	if err != nil {
		return nil, errors.Wrap(err, "querying due timeouts")
	}

	defer rows.Close()

	var entries []TimeoutEntry

	for rows.Next() {
		var entry TimeoutEntry

		if err := rows.Scan(&entry.OrderUID, &entry.Token, &entry.FireAt); err != nil {
			return nil, errors.Wrap(err, "scanning timeout row")
		}

		entries = append(entries, entry)
	}

	return entries, errors.WithStack(rows.Err())
}

func (s sqlStore) DeleteTimeout(ctx context.Context, orderUID string, token int64) error {
	_, err := s.db.ExecContext(
		ctx,
		s.prepQuery(fmt.Sprintf("DELETE FROM %v WHERE order_uid=? AND token=?;", timeoutsTableName)),
		orderUID,
		token,
	)

	return errors.Wrapf(err, "deleting timeout of order %s", orderUID)
}

func (s sqlStore) GetSnapshot(ctx context.Context, orderUID string) (*OrderSaga, error) {
	snapshot := OrderSaga{}

	err := s.db.QueryRowContext(
		ctx,
		s.prepQuery(fmt.Sprintf("SELECT uid, customer_uid, state, payment_state, inventory_state, fulfillment_state, version, cancel_reason, delivery_attempts FROM %v WHERE uid=?;", snapshotTableName)),
		orderUID,
	).Scan(
		&snapshot.OrderUID,
		&snapshot.CustomerUID,
		&snapshot.CurrentState,
		&snapshot.PaymentState,
		&snapshot.InventoryState,
		&snapshot.FulfillmentState,
		&snapshot.StreamVersion,
		&snapshot.CancelReason,
		&snapshot.DeliveryAttempts,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "querying snapshot of order %s", orderUID)
	}

	return &snapshot, nil
}

func (s sqlStore) GetSnapshotsByFilter(ctx context.Context, filters ...FilterOption) ([]OrderSaga, error) {
	if len(filters) == 0 {
		return nil, errors.Errorf("no filters found, you have to specify at least one so result won't be whole store")
	}

	opts := &filterOptions{}

	for _, filter := range filters {
		filter(opts)
	}

	query := fmt.Sprintf("SELECT uid, customer_uid, state, payment_state, inventory_state, fulfillment_state, version, cancel_reason, delivery_attempts FROM %v", snapshotTableName)

	var args []interface{}

	if opts.state != "" {
		query += " WHERE state = ?"
		args = append(args, string(opts.state))
	}

	query += " ORDER BY updated_at DESC"

	if opts.limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *opts.limit)
	}

	if opts.offset != nil {
		query += fmt.Sprintf(" OFFSET %d", *opts.offset)
	}

	query += ";"

	rows, err := s.db.QueryContext(ctx, s.prepQuery(query), args...)

	if err != nil {
		return nil, errors.Wrap(err, "querying snapshots with filter")
	}

	defer rows.Close()

	var snapshots []OrderSaga

	for rows.Next() {
		snapshot := OrderSaga{}

		if err := rows.Scan(
			&snapshot.OrderUID,
			&snapshot.CustomerUID,
			&snapshot.CurrentState,
			&snapshot.PaymentState,
			&snapshot.InventoryState,
			&snapshot.FulfillmentState,
			&snapshot.StreamVersion,
			&snapshot.CancelReason,
			&snapshot.DeliveryAttempts,
		); err != nil {
			return nil, errors.Wrap(err, "scanning snapshot row")
		}

		snapshots = append(snapshots, snapshot)
	}

	return snapshots, errors.WithStack(rows.Err())
}

func (s sqlStore) initTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})

	if err != nil {
		return errors.WithStack(err)
	}

	createQueries := []string{
		fmt.Sprintf(`create table if not exists %v
	(
		order_uid varchar(255) not null,
		version bigint not null,
		name varchar(255) not null,
		payload text not null,
		causation_uid varchar(255) not null,
		recorded_at timestamp not null,
		primary key (order_uid, version)
	);`, eventsTableName),
		fmt.Sprintf(`create table if not exists %v
	(
		order_uid varchar(255) not null,
		message_uid varchar(255) not null,
		processed_at timestamp not null,
		primary key (order_uid, message_uid)
	);`, inboxTableName),
		fmt.Sprintf(`create table if not exists %v
	(
		uid varchar(255) not null primary key,
		order_uid varchar(255) not null,
		name varchar(255) not null,
		payload text not null,
		status varchar(32) not null,
		retries int not null,
		created_at timestamp not null,
		dispatched_at timestamp null
	);`, outboxTableName),
		fmt.Sprintf(`create table if not exists %v
	(
		order_uid varchar(255) not null primary key,
		token bigint not null,
		fire_at timestamp not null
	);`, timeoutsTableName),
		fmt.Sprintf(`create table if not exists %v
	(
		uid varchar(255) not null primary key,
		customer_uid varchar(255) null,
		state varchar(64) not null,
		payment_state varchar(64) not null,
		inventory_state varchar(64) not null,
		fulfillment_state varchar(64) not null,
		version bigint not null,
		cancel_reason varchar(255) null,
		delivery_attempts int not null,
		updated_at timestamp not null
	);`, snapshotTableName),
	}

	for _, query := range createQueries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			if rErr := tx.Rollback(); rErr != nil {
				return errors.Wrapf(rErr, "error rollback when %s", err)
			}
			return errors.WithStack(err)
		}
	}

	return errors.WithStack(tx.Commit())
}

func (s sqlStore) prepQuery(query string) string {
	var res []byte

	counter := 1

	for i := 0; i < len(query); i++ {
		if query[i] == '?' && s.driver == PGDriver {
			res = append(append(res, '$'), []byte(strconv.Itoa(counter))...)
			counter++

			continue
		}
		res = append(res, query[i])
	}

	return string(res)
}

// isDuplicateKey sniffs driver error strings because database/sql exposes no
// portable code. Covers mysql ("Duplicate entry") and postgres ("duplicate key
// value violates unique constraint").
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate")
}

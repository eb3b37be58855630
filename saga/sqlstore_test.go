package saga

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderwise/orderwise/pubsub/message"
	"github.com/orderwise/orderwise/runtime/scheme"
	"github.com/orderwise/orderwise/saga/contracts"
	mockMessage "github.com/orderwise/orderwise/testing/mocks/pubsub/message"
)

var createTableQueries = []string{
	"create table if not exists order_events ( order_uid varchar(255) not null, version bigint not null, name varchar(255) not null, payload text not null, causation_uid varchar(255) not null, recorded_at timestamp not null, primary key (order_uid, version) );",
	"create table if not exists order_inbox ( order_uid varchar(255) not null, message_uid varchar(255) not null, processed_at timestamp not null, primary key (order_uid, message_uid) );",
	"create table if not exists order_outbox ( uid varchar(255) not null primary key, order_uid varchar(255) not null, name varchar(255) not null, payload text not null, status varchar(32) not null, retries int not null, created_at timestamp not null, dispatched_at timestamp null );",
	"create table if not exists saga_timeouts ( order_uid varchar(255) not null primary key, token bigint not null, fire_at timestamp not null );",
	"create table if not exists order_sagas ( uid varchar(255) not null primary key, customer_uid varchar(255) null, state varchar(64) not null, payment_state varchar(64) not null, inventory_state varchar(64) not null, fulfillment_state varchar(64) not null, version bigint not null, cancel_reason varchar(255) null, delivery_attempts int not null, updated_at timestamp not null );",
}

func createStore(t *testing.T, ctrl *gomock.Controller, driver SQLDriver) (Store, sqlmock.Sqlmock, *mockMessage.MockMarshaller) {
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
	)
	require.NoError(t, err)

	marshallerMock := mockMessage.NewMockMarshaller(ctrl)

	mock.ExpectBegin()
	for _, query := range createTableQueries {
		mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	store, err := NewSQLStore(db, driver, marshallerMock)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	return store, mock, marshallerMock
}

func TestSQLStore_InitTables(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	marshallerMock := mockMessage.NewMockMarshaller(ctrl)

	t.Run("error committing", func(t *testing.T) {
		db, mock, err := sqlmock.New(
			sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		)
		require.NoError(t, err)

		mock.ExpectBegin()
		for _, query := range createTableQueries {
			mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(1, 1))
		}
		mock.ExpectCommit().WillReturnError(errors.New("error commit"))

		_, err = NewSQLStore(db, MYSQLDriver, marshallerMock)
		require.Error(t, err)
		assert.EqualError(t, err, "initializing tables for SQLStore, driver mysql: error commit")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error creating events table", func(t *testing.T) {
		db, mock, err := sqlmock.New(
			sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec(createTableQueries[0]).WillReturnError(errors.New("error exec"))
		mock.ExpectRollback()

		_, err = NewSQLStore(db, MYSQLDriver, marshallerMock)
		require.Error(t, err)
		assert.EqualError(t, err, "initializing tables for SQLStore, driver mysql: error exec")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLStore_CommitDecision(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()

	placed := &contracts.OrderPlaced{OrderUID: "order-1", CustomerUID: "customer-1"}
	placed.SetGroupKind(&scheme.GroupKind{Group: "orders", Kind: "OrderPlaced"})

	authorize := &contracts.AuthorizePayment{OrderUID: "order-1"}
	authorize.SetGroupKind(&scheme.GroupKind{Group: "payments", Kind: "AuthorizePayment"})

	fireAt := time.Now().Add(time.Minute * 2)

	commit := Commit{
		OrderUID:        "order-1",
		ExpectedVersion: 0,
		MessageUID:      "msg-1",
		Events:          []message.Object{placed},
		Commands:        []message.Object{authorize},
		Timeout:         &TimeoutEntry{OrderUID: "order-1", Token: 1, FireAt: fireAt},
		Snapshot: OrderSaga{
			OrderUID:         "order-1",
			CustomerUID:      "customer-1",
			CurrentState:     StatePlaced,
			PaymentState:     PaymentUnattempted,
			InventoryState:   InventoryUnreserved,
			FulfillmentState: FulfillmentNotStarted,
			StreamVersion:    1,
		},
	}

	t.Run("mysql happy path", func(t *testing.T) {
		store, dbMock, marshallerMock := createStore(t, ctrl, MYSQLDriver)

		marshallerMock.EXPECT().Marshal(placed).Return([]byte("placed"), nil)
		marshallerMock.EXPECT().Marshal(authorize).Return([]byte("authorize"), nil)

		dbMock.ExpectBegin()
		dbMock.ExpectExec("INSERT INTO order_inbox (order_uid, message_uid, processed_at) VALUES (?, ?, ?);").
			WithArgs("order-1", "msg-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO order_events (order_uid, version, name, payload, causation_uid, recorded_at) VALUES (?, ?, ?, ?, ?, ?);").
			WithArgs("order-1", int64(1), "orders.OrderPlaced", []byte("placed"), "msg-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO order_outbox (uid, order_uid, name, payload, status, retries, created_at) VALUES (?, ?, ?, ?, ?, 0, ?);").
			WithArgs(sqlmock.AnyArg(), "order-1", "payments.AuthorizePayment", []byte("authorize"), "pending", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("DELETE FROM saga_timeouts WHERE order_uid=?;").
			WithArgs("order-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		dbMock.ExpectExec("INSERT INTO saga_timeouts (order_uid, token, fire_at) VALUES (?, ?, ?);").
			WithArgs("order-1", int64(1), fireAt).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO order_sagas (uid, customer_uid, state, payment_state, inventory_state, fulfillment_state, version, cancel_reason, delivery_attempts, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE state=VALUES(state), payment_state=VALUES(payment_state), inventory_state=VALUES(inventory_state), fulfillment_state=VALUES(fulfillment_state), version=VALUES(version), cancel_reason=VALUES(cancel_reason), delivery_attempts=VALUES(delivery_attempts), updated_at=VALUES(updated_at);").
			WithArgs("order-1", "customer-1", "placed", "unattempted", "unreserved", "not_started", int64(1), "", 0, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()

		err := store.CommitDecision(ctx, commit)
		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("concurrent append returns version conflict", func(t *testing.T) {
		store, dbMock, marshallerMock := createStore(t, ctrl, MYSQLDriver)

		marshallerMock.EXPECT().Marshal(placed).Return([]byte("placed"), nil)

		dbMock.ExpectBegin()
		dbMock.ExpectExec("INSERT INTO order_inbox (order_uid, message_uid, processed_at) VALUES (?, ?, ?);").
			WithArgs("order-1", "msg-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO order_events (order_uid, version, name, payload, causation_uid, recorded_at) VALUES (?, ?, ?, ?, ?, ?);").
			WithArgs("order-1", int64(1), "orders.OrderPlaced", []byte("placed"), "msg-1", sqlmock.AnyArg()).
			WillReturnError(errors.New("Error 1062: Duplicate entry 'order-1-1' for key 'PRIMARY'"))
		dbMock.ExpectRollback()

		err := store.CommitDecision(ctx, commit)
		require.Error(t, err)
		assert.True(t, errors.As(err, &VersionConflictErr{}))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("duplicate inbox record marks the message already processed", func(t *testing.T) {
		store, dbMock, _ := createStore(t, ctrl, MYSQLDriver)

		dbMock.ExpectBegin()
		dbMock.ExpectExec("INSERT INTO order_inbox (order_uid, message_uid, processed_at) VALUES (?, ?, ?);").
			WithArgs("order-1", "msg-1", sqlmock.AnyArg()).
			WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "order_inbox_pkey"`))
		dbMock.ExpectRollback()

		err := store.CommitDecision(ctx, commit)
		require.Error(t, err)
		assert.True(t, errors.As(err, &AlreadyProcessedErr{}))
		// not a stream conflict, retrying this commit can never succeed
		assert.False(t, errors.As(err, &VersionConflictErr{}))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("pg placeholders", func(t *testing.T) {
		store, dbMock, marshallerMock := createStore(t, ctrl, PGDriver)

		marshallerMock.EXPECT().Marshal(placed).Return([]byte("placed"), nil)
		marshallerMock.EXPECT().Marshal(authorize).Return([]byte("authorize"), nil)

		dbMock.ExpectBegin()
		dbMock.ExpectExec("INSERT INTO order_inbox (order_uid, message_uid, processed_at) VALUES ($1, $2, $3);").
			WithArgs("order-1", "msg-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO order_events (order_uid, version, name, payload, causation_uid, recorded_at) VALUES ($1, $2, $3, $4, $5, $6);").
			WithArgs("order-1", int64(1), "orders.OrderPlaced", []byte("placed"), "msg-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO order_outbox (uid, order_uid, name, payload, status, retries, created_at) VALUES ($1, $2, $3, $4, $5, 0, $6);").
			WithArgs(sqlmock.AnyArg(), "order-1", "payments.AuthorizePayment", []byte("authorize"), "pending", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("DELETE FROM saga_timeouts WHERE order_uid=$1;").
			WithArgs("order-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		dbMock.ExpectExec("INSERT INTO saga_timeouts (order_uid, token, fire_at) VALUES ($1, $2, $3);").
			WithArgs("order-1", int64(1), fireAt).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO order_sagas (uid, customer_uid, state, payment_state, inventory_state, fulfillment_state, version, cancel_reason, delivery_attempts, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT (uid) DO UPDATE SET state=excluded.state, payment_state=excluded.payment_state, inventory_state=excluded.inventory_state, fulfillment_state=excluded.fulfillment_state, version=excluded.version, cancel_reason=excluded.cancel_reason, delivery_attempts=excluded.delivery_attempts, updated_at=excluded.updated_at;").
			WithArgs("order-1", "customer-1", "placed", "unattempted", "unreserved", "not_started", int64(1), "", 0, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()

		err := store.CommitDecision(ctx, commit)
		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestSQLStore_Load(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()

	t.Run("loads and decodes the stream", func(t *testing.T) {
		store, dbMock, marshallerMock := createStore(t, ctrl, MYSQLDriver)

		recordedAt := time.Now()

		rows := sqlmock.NewRows([]string{"order_uid", "version", "payload", "causation_uid", "recorded_at"}).
			AddRow("order-1", int64(1), []byte("placed"), "msg-1", recordedAt).
			AddRow("order-1", int64(2), []byte("authorized"), "msg-2", recordedAt)

		dbMock.ExpectQuery("SELECT order_uid, version, payload, causation_uid, recorded_at FROM order_events WHERE order_uid=? ORDER BY version ASC;").
			WithArgs("order-1").
			WillReturnRows(rows)

		placed := &contracts.OrderPlaced{OrderUID: "order-1"}
		authorized := &contracts.PaymentAuthorized{OrderUID: "order-1"}

		marshallerMock.EXPECT().Unmarshal([]byte("placed")).Return(placed, nil)
		marshallerMock.EXPECT().Unmarshal([]byte("authorized")).Return(authorized, nil)

		events, err := store.Load(ctx, "order-1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, int64(1), events[0].Version)
		assert.Same(t, placed, events[0].Payload)
		assert.Equal(t, "msg-2", events[1].CausationUID)
		assert.Same(t, authorized, events[1].Payload)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("empty stream for unknown order", func(t *testing.T) {
		store, dbMock, _ := createStore(t, ctrl, MYSQLDriver)

		dbMock.ExpectQuery("SELECT order_uid, version, payload, causation_uid, recorded_at FROM order_events WHERE order_uid=? ORDER BY version ASC;").
			WithArgs("unknown").
			WillReturnRows(sqlmock.NewRows([]string{"order_uid", "version", "payload", "causation_uid", "recorded_at"}))

		events, err := store.Load(ctx, "unknown")
		require.NoError(t, err)
		assert.Empty(t, events)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestSQLStore_IsProcessed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()

	store, dbMock, _ := createStore(t, ctrl, MYSQLDriver)

	dbMock.ExpectQuery("SELECT 1 FROM order_inbox WHERE order_uid=? AND message_uid=?;").
		WithArgs("order-1", "msg-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	processed, err := store.IsProcessed(ctx, "order-1", "msg-1")
	require.NoError(t, err)
	assert.True(t, processed)

	dbMock.ExpectQuery("SELECT 1 FROM order_inbox WHERE order_uid=? AND message_uid=?;").
		WithArgs("order-1", "msg-2").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	processed, err = store.IsProcessed(ctx, "order-1", "msg-2")
	require.NoError(t, err)
	assert.False(t, processed)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestSQLStore_Outbox(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()

	t.Run("fetch pending", func(t *testing.T) {
		store, dbMock, marshallerMock := createStore(t, ctrl, MYSQLDriver)

		createdAt := time.Now()

		dbMock.ExpectQuery("SELECT uid, order_uid, payload, retries, created_at FROM order_outbox WHERE status=? ORDER BY created_at ASC LIMIT 50;").
			WithArgs("pending").
			WillReturnRows(sqlmock.NewRows([]string{"uid", "order_uid", "payload", "retries", "created_at"}).
				AddRow("cmd-1", "order-1", []byte("authorize"), 0, createdAt))

		authorize := &contracts.AuthorizePayment{OrderUID: "order-1"}
		marshallerMock.EXPECT().Unmarshal([]byte("authorize")).Return(authorize, nil)

		records, err := store.FetchPendingCommands(ctx, 50)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "cmd-1", records[0].UID)
		assert.Same(t, authorize, records[0].Payload)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("mark dispatched", func(t *testing.T) {
		store, dbMock, _ := createStore(t, ctrl, MYSQLDriver)

		dbMock.ExpectExec("UPDATE order_outbox SET status=?, dispatched_at=? WHERE uid IN (?,?);").
			WithArgs("dispatched", sqlmock.AnyArg(), "cmd-1", "cmd-2").
			WillReturnResult(sqlmock.NewResult(0, 2))

		require.NoError(t, store.MarkDispatched(ctx, []string{"cmd-1", "cmd-2"}))
		require.NoError(t, store.MarkDispatched(ctx, nil))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("mark failed", func(t *testing.T) {
		store, dbMock, _ := createStore(t, ctrl, MYSQLDriver)

		dbMock.ExpectExec("UPDATE order_outbox SET retries=retries+1 WHERE uid=?;").
			WithArgs("cmd-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.MarkFailed(ctx, "cmd-1"))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestSQLStore_Timeouts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()

	store, dbMock, _ := createStore(t, ctrl, MYSQLDriver)

	now := time.Now()
	fireAt := now.Add(-time.Minute)

	dbMock.ExpectQuery("SELECT order_uid, token, fire_at FROM saga_timeouts WHERE fire_at <= ? ORDER BY fire_at ASC LIMIT 100;").
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"order_uid", "token", "fire_at"}).
			AddRow("order-1", int64(3), fireAt))

	entries, err := store.DueTimeouts(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "order-1", entries[0].OrderUID)
	assert.Equal(t, int64(3), entries[0].Token)

	dbMock.ExpectExec("DELETE FROM saga_timeouts WHERE order_uid=? AND token=?;").
		WithArgs("order-1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.DeleteTimeout(ctx, "order-1", 3))
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestSQLStore_Snapshots(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()

	snapshotColumns := []string{"uid", "customer_uid", "state", "payment_state", "inventory_state", "fulfillment_state", "version", "cancel_reason", "delivery_attempts"}

	t.Run("get snapshot", func(t *testing.T) {
		store, dbMock, _ := createStore(t, ctrl, MYSQLDriver)

		dbMock.ExpectQuery("SELECT uid, customer_uid, state, payment_state, inventory_state, fulfillment_state, version, cancel_reason, delivery_attempts FROM order_sagas WHERE uid=?;").
			WithArgs("order-1").
			WillReturnRows(sqlmock.NewRows(snapshotColumns).
				AddRow("order-1", "customer-1", "fulfilling", "captured", "committed", "not_started", int64(5), "", 0))

		snapshot, err := store.GetSnapshot(ctx, "order-1")
		require.NoError(t, err)
		require.NotNil(t, snapshot)
		assert.Equal(t, StateFulfilling, snapshot.CurrentState)
		assert.Equal(t, int64(5), snapshot.StreamVersion)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("get snapshot of unknown order", func(t *testing.T) {
		store, dbMock, _ := createStore(t, ctrl, MYSQLDriver)

		dbMock.ExpectQuery("SELECT uid, customer_uid, state, payment_state, inventory_state, fulfillment_state, version, cancel_reason, delivery_attempts FROM order_sagas WHERE uid=?;").
			WithArgs("unknown").
			WillReturnRows(sqlmock.NewRows(snapshotColumns))

		snapshot, err := store.GetSnapshot(ctx, "unknown")
		require.NoError(t, err)
		assert.Nil(t, snapshot)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("filter requires at least one option", func(t *testing.T) {
		store, _, _ := createStore(t, ctrl, MYSQLDriver)

		_, err := store.GetSnapshotsByFilter(ctx)
		require.Error(t, err)
		assert.EqualError(t, err, "no filters found, you have to specify at least one so result won't be whole store")
	})

	t.Run("filter by state with limit and offset", func(t *testing.T) {
		store, dbMock, _ := createStore(t, ctrl, MYSQLDriver)

		dbMock.ExpectQuery("SELECT uid, customer_uid, state, payment_state, inventory_state, fulfillment_state, version, cancel_reason, delivery_attempts FROM order_sagas WHERE state = ? ORDER BY updated_at DESC LIMIT 10 OFFSET 20;").
			WithArgs("cancelled").
			WillReturnRows(sqlmock.NewRows(snapshotColumns).
				AddRow("order-2", "customer-2", "cancelled", "refunded", "released", "not_started", int64(8), "payment_declined", 0))

		snapshots, err := store.GetSnapshotsByFilter(ctx, WithState(StateCancelled), WithLimit(10), WithOffset(20))
		require.NoError(t, err)
		require.Len(t, snapshots, 1)
		assert.Equal(t, "payment_declined", snapshots[0].CancelReason)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

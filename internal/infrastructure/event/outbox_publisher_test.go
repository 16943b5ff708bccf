package event

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupPublisherMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

// outboxRowArgs lists the insert arguments of one outbox row in column order,
// pinning the routing columns and leaving generated values open
func outboxRowArgs(event shared.DomainEvent, maxRetries int) []driver.Value {
	return []driver.Value{
		sqlmock.AnyArg(),      // id
		event.TenantID(),      // tenant_id
		event.EventID(),       // event_id
		event.EventType(),     // event_type
		event.CorrelationID(), // correlation_id
		sqlmock.AnyArg(),      // payload
		string(shared.OutboxStatusPending),
		0,          // retry_count
		maxRetries, // max_retries
		"",         // last_error
		sqlmock.AnyArg(),
		sqlmock.AnyArg(),
		sqlmock.AnyArg(),
		sqlmock.AnyArg(),
	}
}

func TestOutboxPublisher_PublishWithTx(t *testing.T) {
	db, mock := setupPublisherMockDB(t)
	serializer := NewEventSerializer()
	serializer.Register("receipt.ready.v1", &testEvent{})
	publisher := NewOutboxPublisher(serializer)
	ctx := context.Background()

	event := shared.NewEnvelope("receipt.ready.v1", uuid.New(), "upload-7f3a", testPayload{DocumentID: "doc-1"})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "outbox_events"`)).
		WithArgs(outboxRowArgs(event, shared.DefaultMaxRetries)...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.PublishWithTx(ctx, tx, event)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxPublisher_PublishWithTx_MaxRetriesPerEntry(t *testing.T) {
	db, mock := setupPublisherMockDB(t)
	serializer := NewEventSerializer()
	serializer.Register("receipt.ready.v1", &testEvent{})
	serializer.Register("ledger.posted.v1", &testEvent{})
	publisher := NewOutboxPublisher(serializer, WithMaxRetries(8))
	ctx := context.Background()

	tenantID := uuid.New()
	ready := newTestEvent("receipt.ready.v1", tenantID)
	posted := shared.NewEnvelope("ledger.posted.v1", tenantID, ready.CorrelationID(), testPayload{DocumentID: "doc-2"})

	var args []driver.Value
	args = append(args, outboxRowArgs(ready, 8)...)
	args = append(args, outboxRowArgs(posted, 8)...)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "outbox_events"`)).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.PublishWithTx(ctx, tx, ready, posted)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxPublisher_PublishWithTx_MultipleEvents(t *testing.T) {
	db, mock := setupPublisherMockDB(t)
	serializer := NewEventSerializer()
	serializer.Register("receipt.ready.v1", &testEvent{})
	publisher := NewOutboxPublisher(serializer)
	ctx := context.Background()

	tenantID := uuid.New()
	events := []shared.DomainEvent{
		newTestEvent("receipt.ready.v1", tenantID),
		newTestEvent("receipt.ready.v1", tenantID),
		newTestEvent("receipt.ready.v1", tenantID),
	}

	var args []driver.Value
	for _, e := range events {
		args = append(args, outboxRowArgs(e, shared.DefaultMaxRetries)...)
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "outbox_events"`)).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, int64(len(events))))
	mock.ExpectCommit()

	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.PublishWithTx(ctx, tx, events...)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxPublisher_PublishWithTx_EmptyEvents(t *testing.T) {
	db, mock := setupPublisherMockDB(t)
	serializer := NewEventSerializer()
	publisher := NewOutboxPublisher(serializer)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.PublishWithTx(ctx, tx)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxPublisher_PublishWithTx_TransactionRollback(t *testing.T) {
	db, mock := setupPublisherMockDB(t)
	serializer := NewEventSerializer()
	serializer.Register("receipt.ready.v1", &testEvent{})
	publisher := NewOutboxPublisher(serializer)
	ctx := context.Background()

	tenantID := uuid.New()
	event := newTestEvent("receipt.ready.v1", tenantID)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "outbox_events"`)).
		WithArgs(outboxRowArgs(event, shared.DefaultMaxRetries)...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	testErr := errors.New("simulated error")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := publisher.PublishWithTx(ctx, tx, event); err != nil {
			return err
		}
		return testErr
	})

	require.Error(t, err)
	assert.Equal(t, testErr, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxPublisher_WithMaxRetries(t *testing.T) {
	serializer := NewEventSerializer()

	assert.Equal(t, shared.DefaultMaxRetries, NewOutboxPublisher(serializer).maxRetries)
	assert.Equal(t, 8, NewOutboxPublisher(serializer, WithMaxRetries(8)).maxRetries)
	assert.Equal(t, shared.DefaultMaxRetries, NewOutboxPublisher(serializer, WithMaxRetries(0)).maxRetries)
}

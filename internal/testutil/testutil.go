// Package testutil provides common test utilities for the ledger backend.
// It wires an in-memory SQLite database to the real transaction scope and
// outbox so application tests exercise the same persistence code as production.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/event"
	"github.com/livestatement/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/require"
)

// Env is a migrated in-memory database with a transaction scope that records
// envelopes into the outbox.
type Env struct {
	DB         *persistence.Database
	Serializer *event.EventSerializer
	Scope      *persistence.GormTransactionScope
	Gate       *persistence.GormProcessingJobRepository
	Outbox     *event.GormOutboxRepository
}

// NewEnv opens a private in-memory SQLite database with the full schema
func NewEnv(t *testing.T) *Env {
	t.Helper()

	d, err := persistence.OpenSQLite(":memory:")
	require.NoError(t, err, "Failed to open sqlite")
	require.NoError(t, d.AutoMigrate(), "Failed to migrate schema")
	t.Cleanup(func() { _ = d.Close() })

	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)

	return &Env{
		DB:         d,
		Serializer: serializer,
		Scope:      persistence.NewGormTransactionScope(d.DB, event.NewOutboxPublisher(serializer)),
		Gate:       persistence.NewGormProcessingJobRepository(d.DB),
		Outbox:     event.NewGormOutboxRepository(d.DB),
	}
}

// RecordedEvents decodes the pending outbox entries, oldest first.
// With eventTypes set only those types are returned.
func (e *Env) RecordedEvents(t *testing.T, eventTypes ...string) []shared.DomainEvent {
	t.Helper()

	entries, err := e.Outbox.FindPending(context.Background(), 1000)
	require.NoError(t, err)

	want := make(map[string]bool, len(eventTypes))
	for _, et := range eventTypes {
		want[et] = true
	}

	events := make([]shared.DomainEvent, 0, len(entries))
	for _, entry := range entries {
		if len(want) > 0 && !want[entry.EventType] {
			continue
		}
		evt, err := e.Serializer.Deserialize(entry.EventType, entry.Payload)
		require.NoError(t, err, "Failed to decode outbox entry %s", entry.ID)
		events = append(events, evt)
	}
	return events
}

// NewTestUUID generates a deterministic UUID for testing.
func NewTestUUID(seed string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(seed))
}

// TestTenantID returns a standard tenant ID for tests.
func TestTenantID() uuid.UUID {
	return NewTestUUID("test-tenant")
}

// TestUserID returns a standard user ID for tests.
func TestUserID() uuid.UUID {
	return NewTestUUID("test-user")
}

// RequireEventually retries condition until it passes or the timeout elapses.
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...interface{}) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}

	require.Fail(t, "Condition not met within timeout", msgAndArgs...)
}

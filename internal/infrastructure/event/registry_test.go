package event

import (
	"context"
	"testing"

	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

type mockHandler struct {
	eventTypes []string
}

func newMockHandler(eventTypes ...string) *mockHandler {
	return &mockHandler{eventTypes: eventTypes}
}

func (h *mockHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	return nil
}

func (h *mockHandler) EventTypes() []string {
	return h.eventTypes
}

func TestHandlerRegistry_Handlers_ByType(t *testing.T) {
	registry := NewHandlerRegistry()
	posting := newMockHandler("posting")
	snapshots := newMockHandler("snapshots")
	registry.Register(posting, "receipt.ready.v1")
	registry.Register(snapshots, "ledger.posted.v1")

	assert.Equal(t, []shared.EventHandler{posting}, registry.Handlers("receipt.ready.v1"))
	assert.Equal(t, []shared.EventHandler{snapshots}, registry.Handlers("ledger.posted.v1"))
	assert.Empty(t, registry.Handlers("receipt.hold.v1"))
}

func TestHandlerRegistry_Handlers_RegistrationOrder(t *testing.T) {
	registry := NewHandlerRegistry()
	first := newMockHandler("first")
	second := newMockHandler("second")
	registry.Register(first, "ledger.posted.v1")
	registry.Register(second, "ledger.posted.v1")

	assert.Equal(t, []shared.EventHandler{first, second}, registry.Handlers("ledger.posted.v1"))
}

func TestHandlerRegistry_Handlers_UntypedAfterTyped(t *testing.T) {
	registry := NewHandlerRegistry()
	audit := newMockHandler("audit")
	posting := newMockHandler("posting")
	registry.Register(audit)
	registry.Register(posting, "receipt.ready.v1")

	assert.Equal(t, []shared.EventHandler{posting, audit}, registry.Handlers("receipt.ready.v1"))
	assert.Equal(t, []shared.EventHandler{audit}, registry.Handlers("reconciliation.completed.v1"))
}

func TestHandlerRegistry_EventTypes(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.Register(newMockHandler(), "receipt.ready.v1", "ledger.posted.v1")
	registry.Register(newMockHandler())

	assert.Equal(t, []string{"ledger.posted.v1", "receipt.ready.v1"}, registry.EventTypes())
}

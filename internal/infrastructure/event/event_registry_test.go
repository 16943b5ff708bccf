package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterAllEvents(t *testing.T) {
	serializer := NewEventSerializer()

	RegisterAllEvents(serializer)

	assert.Equal(t, []string{
		"ledger.posted.v1",
		"receipt.extracted.v1",
		"receipt.hold.v1",
		"receipt.ready.v1",
		"receipt.received.v1",
		"reconciliation.completed.v1",
	}, serializer.RegisteredTypes())
}

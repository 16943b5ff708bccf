package event

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReadyEvent(t *testing.T) *receipt.ReceiptReadyEvent {
	t.Helper()
	r, err := receipt.NewReceipt(uuid.New(), uuid.New())
	require.NoError(t, err)
	return receipt.NewReceiptReadyEvent(r, 0.92, "corr-1")
}

func TestEventSerializer_Register(t *testing.T) {
	serializer := NewEventSerializer()

	serializer.Register(receipt.EventTypeReceiptReady, &receipt.ReceiptReadyEvent{})

	assert.True(t, serializer.IsRegistered(receipt.EventTypeReceiptReady))
	assert.False(t, serializer.IsRegistered("receipt.ready.v2"))
}

func TestEventSerializer_RegisteredTypes(t *testing.T) {
	serializer := NewEventSerializer()

	serializer.Register(receipt.EventTypeReceiptReady, &receipt.ReceiptReadyEvent{})
	serializer.Register(receipt.EventTypeReceiptHold, &receipt.ReceiptHoldEvent{})

	assert.Equal(t, []string{receipt.EventTypeReceiptHold, receipt.EventTypeReceiptReady}, serializer.RegisteredTypes())
}

func TestEventSerializer_Serialize_EnvelopeShape(t *testing.T) {
	serializer := NewEventSerializer()
	event := newReadyEvent(t)

	data, err := serializer.Serialize(event)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, event.EventID().String(), wire["messageId"])
	assert.Equal(t, receipt.EventTypeReceiptReady, wire["type"])
	assert.Equal(t, event.TenantID().String(), wire["tenantId"])
	assert.Equal(t, "corr-1", wire["correlationId"])
	assert.Contains(t, wire, "occurredAt")

	payload, ok := wire["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, event.Data.ReceiptID.String(), payload["receiptId"])
	assert.Equal(t, 0.92, payload["confidence"])
}

func TestEventSerializer_Deserialize_RoundTrip(t *testing.T) {
	serializer := NewEventSerializer()
	serializer.Register(receipt.EventTypeReceiptReady, &receipt.ReceiptReadyEvent{})

	original := newReadyEvent(t)
	data, err := serializer.Serialize(original)
	require.NoError(t, err)

	deserialized, err := serializer.Deserialize(receipt.EventTypeReceiptReady, data)
	require.NoError(t, err)

	event, ok := deserialized.(*receipt.ReceiptReadyEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventID(), event.EventID())
	assert.Equal(t, original.TenantID(), event.TenantID())
	assert.Equal(t, original.CorrelationID(), event.CorrelationID())
	assert.True(t, original.OccurredAt().Equal(event.OccurredAt()))
	assert.Equal(t, original.Data, event.Data)
	assert.Equal(t, original.DedupeKey(), event.DedupeKey())
}

func TestEventSerializer_Deserialize_UnknownType(t *testing.T) {
	serializer := NewEventSerializer()

	_, err := serializer.Deserialize("invoice.created.v1", []byte(`{}`))

	require.ErrorIs(t, err, ErrUnknownEventType)
	assert.True(t, IsPermanent(err))
}

func TestEventSerializer_Deserialize_InvalidJSON(t *testing.T) {
	serializer := NewEventSerializer()
	serializer.Register(receipt.EventTypeReceiptReady, &receipt.ReceiptReadyEvent{})

	_, err := serializer.Deserialize(receipt.EventTypeReceiptReady, []byte(`invalid json`))

	require.ErrorIs(t, err, ErrMalformedEnvelope)
	assert.True(t, IsPermanent(err))
}

func TestEventSerializer_Deserialize_MissingHeaderFields(t *testing.T) {
	serializer := NewEventSerializer()
	serializer.Register(receipt.EventTypeReceiptReady, &receipt.ReceiptReadyEvent{})

	_, err := serializer.Deserialize(receipt.EventTypeReceiptReady,
		[]byte(`{"type":"receipt.ready.v1","data":{}}`))

	require.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestEventSerializer_Deserialize_TypeMismatch(t *testing.T) {
	serializer := NewEventSerializer()
	serializer.Register(receipt.EventTypeReceiptReady, &receipt.ReceiptReadyEvent{})
	serializer.Register(receipt.EventTypeReceiptHold, &receipt.ReceiptHoldEvent{})

	data, err := serializer.Serialize(newReadyEvent(t))
	require.NoError(t, err)

	_, err = serializer.Deserialize(receipt.EventTypeReceiptHold, data)

	require.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestPeekHeader(t *testing.T) {
	event := newReadyEvent(t)
	data, err := json.Marshal(event)
	require.NoError(t, err)

	header, err := PeekHeader(data)

	require.NoError(t, err)
	assert.Equal(t, event.EventID(), header.MessageID)
	assert.Equal(t, receipt.EventTypeReceiptReady, header.Type)
}

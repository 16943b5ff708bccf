package nats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/config"
	"github.com/livestatement/backend/internal/infrastructure/event"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSerializer() *event.EventSerializer {
	s := event.NewEventSerializer()
	event.RegisterAllEvents(s)
	return s
}

func newReadyEvent() *receipt.ReceiptReadyEvent {
	return shared.NewEnvelope(receipt.EventTypeReceiptReady, uuid.New(), "corr-1", receipt.ReceiptReady{
		ReceiptID:    uuid.New(),
		FileObjectID: uuid.New(),
		Confidence:   0.93,
	})
}

// fakeJetStream records published messages
type fakeJetStream struct {
	mu        sync.Mutex
	published []*nats.Msg
	seen      map[string]bool
	err       error
}

func (f *fakeJetStream) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	id := msg.Header.Get(nats.MsgIdHdr)
	if f.seen[id] {
		return &jetstream.PubAck{Stream: "LEDGER_EVENTS", Duplicate: true}, nil
	}
	f.seen[id] = true
	f.published = append(f.published, msg)
	return &jetstream.PubAck{Stream: "LEDGER_EVENTS", Sequence: uint64(len(f.published))}, nil
}

// fakeDelivery implements Delivery
type fakeDelivery struct {
	subject   string
	data      []byte
	delivered uint64

	acked    bool
	nakDelay time.Duration
	naked    bool
	termed   bool
}

func (d *fakeDelivery) Data() []byte    { return d.data }
func (d *fakeDelivery) Subject() string { return d.subject }
func (d *fakeDelivery) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{NumDelivered: d.delivered}, nil
}
func (d *fakeDelivery) Ack() error { d.acked = true; return nil }
func (d *fakeDelivery) NakWithDelay(delay time.Duration) error {
	d.naked = true
	d.nakDelay = delay
	return nil
}
func (d *fakeDelivery) Term() error { d.termed = true; return nil }

// recordingDispatcher implements shared.EventPublisher
type recordingDispatcher struct {
	events []shared.DomainEvent
	err    error
}

func (r *recordingDispatcher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	r.events = append(r.events, events...)
	return r.err
}

func TestPublisher_MessageCarriesEnvelopeIdentity(t *testing.T) {
	p := newPublisher(&fakeJetStream{}, newSerializer(), zap.NewNop())
	evt := newReadyEvent()

	msg, err := p.Message(evt)
	require.NoError(t, err)

	assert.Equal(t, receipt.EventTypeReceiptReady, msg.Subject)
	assert.Equal(t, evt.EventID().String(), msg.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, "corr-1", msg.Header.Get(HeaderCorrelationID))
	assert.Equal(t, evt.TenantID().String(), msg.Header.Get(HeaderTenantID))

	header, err := event.PeekHeader(msg.Data)
	require.NoError(t, err)
	assert.Equal(t, evt.EventID(), header.MessageID)
}

func TestPublisher_Publish(t *testing.T) {
	t.Run("republishing the same envelope is deduplicated by the stream", func(t *testing.T) {
		js := &fakeJetStream{}
		p := newPublisher(js, newSerializer(), zap.NewNop())
		evt := newReadyEvent()

		require.NoError(t, p.Publish(context.Background(), evt))
		require.NoError(t, p.Publish(context.Background(), evt))

		assert.Len(t, js.published, 1)
	})

	t.Run("stream errors are returned", func(t *testing.T) {
		js := &fakeJetStream{err: errors.New("no responders")}
		p := newPublisher(js, newSerializer(), zap.NewNop())

		err := p.Publish(context.Background(), newReadyEvent())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no responders")
	})
}

func TestConsumer_Handle(t *testing.T) {
	serializer := newSerializer()
	cfg := config.NATSConfig{MaxDeliver: 5}

	encode := func(t *testing.T, e shared.DomainEvent) []byte {
		t.Helper()
		data, err := serializer.Serialize(e)
		require.NoError(t, err)
		return data
	}

	t.Run("dispatches a known envelope and acks", func(t *testing.T) {
		dispatcher := &recordingDispatcher{}
		c := NewConsumer(serializer, dispatcher, cfg, zap.NewNop())
		evt := newReadyEvent()
		msg := &fakeDelivery{subject: evt.EventType(), data: encode(t, evt), delivered: 1}

		outcome := c.Handle(context.Background(), msg)

		assert.Equal(t, OutcomeAck, outcome)
		assert.True(t, msg.acked)
		require.Len(t, dispatcher.events, 1)
		got, ok := dispatcher.events[0].(*receipt.ReceiptReadyEvent)
		require.True(t, ok)
		assert.Equal(t, evt.Data.ReceiptID, got.Data.ReceiptID)
		assert.Equal(t, evt.DedupeKey(), got.DedupeKey())
	})

	t.Run("naks when a handler fails", func(t *testing.T) {
		dispatcher := &recordingDispatcher{err: errors.New("db down")}
		c := NewConsumer(serializer, dispatcher, cfg, zap.NewNop())
		evt := newReadyEvent()
		msg := &fakeDelivery{subject: evt.EventType(), data: encode(t, evt), delivered: 2}

		outcome := c.Handle(context.Background(), msg)

		assert.Equal(t, OutcomeNak, outcome)
		assert.True(t, msg.naked)
		assert.False(t, msg.acked)
		assert.Equal(t, 4*time.Second, msg.nakDelay)
	})

	t.Run("terminates unknown envelope types", func(t *testing.T) {
		dispatcher := &recordingDispatcher{}
		c := NewConsumer(serializer, dispatcher, cfg, zap.NewNop())
		evt := shared.NewEnvelope("receipt.shredded.v1", uuid.New(), "", receipt.ReceiptReady{ReceiptID: uuid.New()})
		msg := &fakeDelivery{subject: "receipt.shredded.v1", data: encode(t, evt), delivered: 1}

		outcome := c.Handle(context.Background(), msg)

		assert.Equal(t, OutcomeTerm, outcome)
		assert.True(t, msg.termed)
		assert.Empty(t, dispatcher.events)
	})

	t.Run("terminates malformed payloads", func(t *testing.T) {
		dispatcher := &recordingDispatcher{}
		c := NewConsumer(serializer, dispatcher, cfg, zap.NewNop())
		msg := &fakeDelivery{subject: receipt.EventTypeReceiptReady, data: []byte(`{"type":`), delivered: 1}

		outcome := c.Handle(context.Background(), msg)

		assert.Equal(t, OutcomeTerm, outcome)
		assert.True(t, msg.termed)
		assert.Empty(t, dispatcher.events)
	})

	t.Run("terminates envelopes without a tenant", func(t *testing.T) {
		dispatcher := &recordingDispatcher{}
		c := NewConsumer(serializer, dispatcher, cfg, zap.NewNop())
		evt := shared.NewEnvelope(receipt.EventTypeReceiptReady, uuid.Nil, "", receipt.ReceiptReady{ReceiptID: uuid.New()})
		msg := &fakeDelivery{subject: receipt.EventTypeReceiptReady, data: encode(t, evt), delivered: 1}

		assert.Equal(t, OutcomeTerm, c.Handle(context.Background(), msg))
	})
}

func TestNakDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, NakDelay(0))
	assert.Equal(t, 2*time.Second, NakDelay(1))
	assert.Equal(t, 4*time.Second, NakDelay(2))
	assert.Equal(t, 16*time.Second, NakDelay(4))
	assert.Equal(t, 30*time.Second, NakDelay(5))
	assert.Equal(t, 30*time.Second, NakDelay(50))
}

func TestStreamAndConsumerConfig(t *testing.T) {
	cfg := config.NATSConfig{
		Stream:     "LEDGER_EVENTS",
		Subjects:   []string{"receipt.>", "ledger.>"},
		Consumer:   "ledger-core",
		AckWait:    45 * time.Second,
		MaxDeliver: 7,
	}

	stream := StreamConfig(cfg)
	assert.Equal(t, "LEDGER_EVENTS", stream.Name)
	assert.Equal(t, []string{"receipt.>", "ledger.>"}, stream.Subjects)
	assert.Positive(t, stream.Duplicates)

	consumer := ConsumerConfig(cfg)
	assert.Equal(t, "ledger-core", consumer.Durable)
	assert.Equal(t, jetstream.AckExplicitPolicy, consumer.AckPolicy)
	assert.Equal(t, 45*time.Second, consumer.AckWait)
	assert.Equal(t, 7, consumer.MaxDeliver)
}

func TestConnect_RequiresURL(t *testing.T) {
	_, err := Connect(config.NATSConfig{}, nil)
	require.Error(t, err)
}

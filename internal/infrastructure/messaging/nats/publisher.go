package nats

import (
	"context"
	"fmt"

	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/event"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// Header names set on every published envelope
const (
	HeaderCorrelationID = "Ledger-Correlation-Id"
	HeaderTenantID      = "Ledger-Tenant-Id"
)

// msgPublisher is the part of jetstream.JetStream the publisher needs
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher publishes envelopes to JetStream. Plugged into the outbox
// processor it becomes the relay from the outbox table to the stream.
type Publisher struct {
	js         msgPublisher
	serializer *event.EventSerializer
	logger     *zap.Logger
}

// NewPublisher creates a JetStream publisher
func NewPublisher(js jetstream.JetStream, serializer *event.EventSerializer, logger *zap.Logger) *Publisher {
	return newPublisher(js, serializer, logger)
}

func newPublisher(js msgPublisher, serializer *event.EventSerializer, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{js: js, serializer: serializer, logger: logger}
}

// Message builds the NATS message for an envelope
func (p *Publisher) Message(e shared.DomainEvent) (*nats.Msg, error) {
	data, err := p.serializer.Serialize(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", e.EventType(), err)
	}
	msg := nats.NewMsg(e.EventType())
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, e.EventID().String())
	msg.Header.Set(HeaderCorrelationID, e.CorrelationID())
	msg.Header.Set(HeaderTenantID, e.TenantID().String())
	return msg, nil
}

// Publish sends each envelope and waits for the stream acknowledgement.
// A duplicate ack means the stream already holds the message id.
func (p *Publisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, e := range events {
		msg, err := p.Message(e)
		if err != nil {
			return err
		}
		ack, err := p.js.PublishMsg(ctx, msg)
		if err != nil {
			return fmt.Errorf("failed to publish %s: %w", e.EventType(), err)
		}
		if ack != nil && ack.Duplicate {
			p.logger.Debug("stream already holds envelope",
				zap.String("event_id", e.EventID().String()),
				zap.String("event_type", e.EventType()),
			)
		}
	}
	return nil
}

var _ shared.EventPublisher = (*Publisher)(nil)

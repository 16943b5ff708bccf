package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/config"
	"github.com/livestatement/backend/internal/infrastructure/event"
	"github.com/livestatement/backend/internal/infrastructure/logger"
	"github.com/livestatement/backend/internal/infrastructure/metrics"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// Outcome is how a delivery was answered
type Outcome string

const (
	OutcomeAck  Outcome = "ack"
	OutcomeNak  Outcome = "nak"
	OutcomeTerm Outcome = "term"
)

// Delivery is the part of jetstream.Msg the consumer acts on
type Delivery interface {
	Data() []byte
	Subject() string
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

const (
	baseNakDelay = 2 * time.Second
	maxNakDelay  = 30 * time.Second
)

// Consumer decodes JetStream deliveries and hands the envelopes to a dispatcher,
// usually the in-process bus holding the gated handlers.
type Consumer struct {
	serializer *event.EventSerializer
	dispatcher shared.EventPublisher
	maxDeliver int
	logger     *zap.Logger

	consumeCtx jetstream.ConsumeContext
}

// NewConsumer creates a consumer
func NewConsumer(serializer *event.EventSerializer, dispatcher shared.EventPublisher, cfg config.NATSConfig, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		serializer: serializer,
		dispatcher: dispatcher,
		maxDeliver: cfg.MaxDeliver,
		logger:     log,
	}
}

// Start consumes from the durable consumer until Stop is called
func (c *Consumer) Start(ctx context.Context, consumer jetstream.Consumer) error {
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		c.Handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.consumeCtx = cc
	c.logger.Info("jetstream consumer started")
	return nil
}

// Stop stops delivery; in-flight messages finish first
func (c *Consumer) Stop() {
	if c.consumeCtx != nil {
		c.consumeCtx.Drain()
		c.consumeCtx = nil
		c.logger.Info("jetstream consumer stopped")
	}
}

// Handle processes one delivery.
// Undecodable envelopes and unknown types are terminated, handler errors are
// negatively acknowledged with a growing delay, everything else is acked.
func (c *Consumer) Handle(ctx context.Context, msg Delivery) Outcome {
	eventType := msg.Subject()

	header, err := event.PeekHeader(msg.Data())
	if err == nil {
		eventType = header.Type
		var evt shared.DomainEvent
		evt, err = c.serializer.Deserialize(header.Type, msg.Data())
		if err == nil {
			return c.dispatch(ctx, msg, evt)
		}
	}

	c.logger.Error("rejecting undeliverable message",
		zap.String("subject", msg.Subject()),
		zap.String("event_type", eventType),
		zap.Error(err),
	)
	if termErr := msg.Term(); termErr != nil {
		c.logger.Warn("failed to terminate message", zap.Error(termErr))
	}
	metrics.DeliveriesTotal.WithLabelValues(eventType, string(OutcomeTerm)).Inc()
	return OutcomeTerm
}

func (c *Consumer) dispatch(ctx context.Context, msg Delivery, evt shared.DomainEvent) Outcome {
	ctx, log := logger.WithEvent(ctx, c.logger, evt)

	if err := c.dispatcher.Publish(ctx, evt); err != nil {
		delivered := c.numDelivered(msg)
		if c.maxDeliver > 0 && delivered >= uint64(c.maxDeliver) {
			log.Error("delivery attempts exhausted, message will not be redelivered",
				zap.Uint64("delivered", delivered),
				zap.Error(err),
			)
		} else {
			log.Warn("handler failed, message will be redelivered",
				zap.Uint64("delivered", delivered),
				zap.Error(err),
			)
		}
		if nakErr := msg.NakWithDelay(NakDelay(delivered)); nakErr != nil {
			log.Warn("failed to nak message", zap.Error(nakErr))
		}
		metrics.DeliveriesTotal.WithLabelValues(evt.EventType(), string(OutcomeNak)).Inc()
		return OutcomeNak
	}

	if err := msg.Ack(); err != nil {
		// The handlers are gated; a redelivery after a lost ack is skipped.
		log.Warn("failed to ack message", zap.Error(err))
	}
	metrics.DeliveriesTotal.WithLabelValues(evt.EventType(), string(OutcomeAck)).Inc()
	return OutcomeAck
}

func (c *Consumer) numDelivered(msg Delivery) uint64 {
	meta, err := msg.Metadata()
	if err != nil || meta == nil {
		return 1
	}
	return meta.NumDelivered
}

// NakDelay is the redelivery delay after the given number of deliveries
func NakDelay(delivered uint64) time.Duration {
	if delivered == 0 {
		delivered = 1
	}
	delay := baseNakDelay
	for i := uint64(1); i < delivered; i++ {
		delay *= 2
		if delay >= maxNakDelay {
			return maxNakDelay
		}
	}
	return delay
}

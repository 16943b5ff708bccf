// Package nats carries envelopes over NATS JetStream.
//
// The relay publishes committed outbox entries with the envelope type as the
// subject and the message id as Nats-Msg-Id, so the stream drops duplicate
// publishes. The consumer dispatches deliveries to the registered handlers and
// answers each one with Ack, Nak or Term.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/livestatement/backend/internal/infrastructure/config"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// Client owns a NATS connection and its JetStream context
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	cfg    config.NATSConfig
	logger *zap.Logger
}

// Connect dials NATS and opens a JetStream context
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("livestatement-ledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Client{conn: conn, js: js, cfg: cfg, logger: logger}, nil
}

// StreamConfig returns the stream every envelope subject is captured by
func StreamConfig(cfg config.NATSConfig) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   cfg.Subjects,
		MaxAge:     7 * 24 * time.Hour,
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: 10 * time.Minute,
	}
}

// ConsumerConfig returns the durable consumer configuration.
// Redelivery is driven by AckWait and stops after MaxDeliver attempts.
func ConsumerConfig(cfg config.NATSConfig) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:          cfg.Consumer,
		Durable:       cfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: 256,
	}
}

// EnsureStream creates or updates the envelope stream
func (c *Client) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, StreamConfig(c.cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", c.cfg.Stream, err)
	}
	return stream, nil
}

// EnsureConsumer creates or updates the durable consumer on the stream
func (c *Client) EnsureConsumer(ctx context.Context) (jetstream.Consumer, error) {
	stream, err := c.EnsureStream(ctx)
	if err != nil {
		return nil, err
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, ConsumerConfig(c.cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", c.cfg.Consumer, err)
	}
	return consumer, nil
}

// JetStream exposes the JetStream context
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// IsConnected reports whether the connection is up
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains the connection
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Drain()
}

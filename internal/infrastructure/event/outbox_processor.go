package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Dispatch outcomes recorded per envelope type
const (
	outcomeSent     = "sent"
	outcomeFailed   = "failed"
	outcomeRejected = "rejected"
)

// OutboxProcessor relays committed outbox entries to a publisher: the in-process
// bus, or the JetStream publisher when a broker sits between relay and handlers.
// Delivery is at least once; an entry is claimed before dispatch so two relays
// never send the same batch.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	publisher  shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	publisher shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	return &OutboxProcessor{
		repo:       repo,
		publisher:  publisher,
		serializer: serializer,
		config:     config,
		logger:     logger,
	}
}

// Start polls the outbox in the background until Stop or ctx is done
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("outbox relay started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Bool("cleanup", p.config.CleanupEnabled),
	)
	return nil
}

// Stop cancels polling and waits for the in-flight batch
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("outbox relay stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) run(ctx context.Context) {
	defer p.wg.Done()

	poll := time.NewTicker(p.config.PollInterval)
	defer poll.Stop()

	// A nil channel never fires, which disables cleanup
	var cleanup <-chan time.Time
	if p.config.CleanupEnabled {
		t := time.NewTicker(p.config.CleanupInterval)
		defer t.Stop()
		cleanup = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			p.ProcessOnce(ctx)
		case <-cleanup:
			p.cleanup(ctx)
		}
	}
}

// ProcessOnce claims and dispatches one batch of pending entries and one batch of
// entries whose retry time has come. It returns how many entries it dispatched.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) int {
	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find pending entries", zap.Error(err))
		return 0
	}
	n := p.dispatchAll(ctx, pending)

	retryable, err := p.repo.FindRetryable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find retryable entries", zap.Error(err))
		return n
	}
	return n + p.dispatchAll(ctx, retryable)
}

func (p *OutboxProcessor) dispatchAll(ctx context.Context, entries []*shared.OutboxEntry) int {
	if len(entries) == 0 {
		return 0
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to claim outbox entries", zap.Error(err))
		return 0
	}
	for _, entry := range claimed {
		p.dispatch(ctx, entry)
	}
	return len(claimed)
}

func (p *OutboxProcessor) dispatch(ctx context.Context, entry *shared.OutboxEntry) {
	log := p.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("correlation_id", entry.CorrelationID),
	)

	evt, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err != nil {
		log.Error("failed to decode outbox entry", zap.Error(err))
		if IsPermanent(err) {
			// unknown type or malformed payload: no retry can succeed
			entry.MarkDead(err.Error())
			p.settle(ctx, log, entry, outcomeRejected)
			return
		}
		entry.MarkFailed(err.Error())
		p.settle(ctx, log, entry, outcomeFailed)
		return
	}

	if err := p.publisher.Publish(ctx, evt); err != nil {
		log.Error("failed to deliver envelope", zap.Error(err))
		entry.MarkFailed(err.Error())
		p.settle(ctx, log, entry, outcomeFailed)
		return
	}

	entry.MarkSent()
	p.settle(ctx, log, entry, outcomeSent)
}

// settle persists the entry's new state and records the outcome
func (p *OutboxProcessor) settle(ctx context.Context, log *zap.Logger, entry *shared.OutboxEntry, outcome string) {
	metrics.OutboxDispatchedTotal.WithLabelValues(entry.EventType, outcome).Inc()
	if entry.IsDead() {
		log.Warn("envelope moved to dead letters",
			zap.String("tenant_id", entry.TenantID.String()),
			zap.Int("retry_count", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)
	}
	if err := p.repo.Update(ctx, entry); err != nil {
		log.Error("failed to update outbox entry", zap.String("status", string(entry.Status)), zap.Error(err))
		return
	}
	if outcome == outcomeSent {
		log.Debug("envelope delivered")
	}
}

func (p *OutboxProcessor) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to clean up outbox", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("cleaned up sent outbox entries", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
}

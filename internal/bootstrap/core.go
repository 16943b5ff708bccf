// Package bootstrap assembles the posting core: repositories, services and the
// gated event handlers, over one database.
package bootstrap

import (
	"fmt"
	"time"

	appevent "github.com/livestatement/backend/internal/application/event"
	ledgerapp "github.com/livestatement/backend/internal/application/ledger"
	receiptapp "github.com/livestatement/backend/internal/application/receipt"
	reconapp "github.com/livestatement/backend/internal/application/reconciliation"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/reconciliation"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/event"
	"github.com/livestatement/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// Deps are the collaborators the core does not build itself
type Deps struct {
	Files     receipt.FileStore
	Extractor receipt.Extractor

	// Cache is the optional succeeded-job cache in front of the gate
	Cache    shared.IdempotencyStore
	CacheTTL time.Duration

	// Catalog defaults to the embedded reconciliation metric catalog
	Catalog *reconciliation.Catalog

	// MaxRetries bounds relay attempts per outbox entry; zero keeps the default
	MaxRetries int
}

// Core is the wired posting core
type Core struct {
	DB         *persistence.Database
	Serializer *event.EventSerializer
	Scope      *persistence.GormTransactionScope
	Gate       *persistence.GormProcessingJobRepository
	Outbox     *event.GormOutboxRepository

	// Bus dispatches envelopes to the gated handlers
	Bus *event.InMemoryEventBus

	Posting     *ledgerapp.PostingService
	Snapshots   *ledgerapp.SnapshotService
	Recon       *reconapp.Service
	Submissions *receiptapp.SubmissionService
	Reviews     *receiptapp.ReviewService
	DeadLetters *appevent.OutboxService

	Handlers []*event.IdempotentHandler
}

// NewCore wires services and subscribes every handler, behind the gate, to the bus
func NewCore(db *persistence.Database, deps Deps, logger *zap.Logger) (*Core, error) {
	catalog := deps.Catalog
	if catalog == nil {
		var err error
		catalog, err = reconciliation.DefaultCatalog()
		if err != nil {
			return nil, fmt.Errorf("failed to load reconciliation catalog: %w", err)
		}
	}

	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)

	scope := persistence.NewGormTransactionScope(db.DB, event.NewOutboxPublisher(serializer, event.WithMaxRetries(deps.MaxRetries)))
	gate := persistence.NewGormProcessingJobRepository(db.DB)
	outbox := event.NewGormOutboxRepository(db.DB)

	posting := ledgerapp.NewPostingService(scope, logger)
	snapshots := ledgerapp.NewSnapshotService(scope, logger)

	c := &Core{
		DB:          db,
		Serializer:  serializer,
		Scope:       scope,
		Gate:        gate,
		Outbox:      outbox,
		Bus:         event.NewInMemoryEventBus(logger),
		Posting:     posting,
		Snapshots:   snapshots,
		Recon:       reconapp.NewService(scope, catalog, logger),
		Submissions: receiptapp.NewSubmissionService(scope, logger),
		Reviews:     receiptapp.NewReviewService(scope, logger),
		DeadLetters: appevent.NewOutboxService(outbox, gate, logger),
	}

	var opts []event.IdempotentHandlerOption
	if deps.Cache != nil {
		cfg := shared.DefaultIdempotencyConfig()
		if deps.CacheTTL > 0 {
			cfg.TTL = deps.CacheTTL
		}
		opts = append(opts, event.WithSucceededCache(deps.Cache), event.WithIdempotencyConfig(cfg))
	}

	handlers := []struct {
		jobType string
		handler shared.EventHandler
	}{
		{receiptapp.JobTypeExtraction, receiptapp.NewExtractionHandler(scope, deps.Files, deps.Extractor, logger)},
		{ledgerapp.JobTypeReceiptPosting, ledgerapp.NewReceiptReadyHandler(scope, posting, logger)},
		{ledgerapp.JobTypeSnapshotRecompute, ledgerapp.NewSnapshotHandler(snapshots, logger)},
		{ledgerapp.JobTypeVariancePosting, ledgerapp.NewReconciliationCompletedHandler(scope, posting, logger)},
	}
	for _, h := range handlers {
		gated := event.NewIdempotentHandler(h.jobType, h.handler, gate, logger.With(zap.String("job_type", h.jobType)), opts...)
		c.Bus.Subscribe(gated)
		c.Handlers = append(c.Handlers, gated)
	}

	return c, nil
}

// GateStats returns the gate counters of every handler, keyed by job type
func (c *Core) GateStats() map[string]event.IdempotencyStats {
	stats := make(map[string]event.IdempotencyStats, len(c.Handlers))
	for _, h := range c.Handlers {
		stats[h.JobType()] = h.GetMetrics().Stats()
	}
	return stats
}

// Relay builds the outbox processor that delivers committed envelopes to publisher,
// the bus itself unless a broker relay is given
func (c *Core) Relay(publisher shared.EventPublisher, cfg event.OutboxProcessorConfig, logger *zap.Logger) *event.OutboxProcessor {
	if publisher == nil {
		publisher = c.Bus
	}
	return event.NewOutboxProcessor(c.Outbox, publisher, c.Serializer, cfg, logger)
}

package persistence

import (
	"context"
	"errors"

	"github.com/livestatement/backend/internal/application/transaction"
	"github.com/livestatement/backend/internal/domain/audit"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/reconciliation"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/event"
	"github.com/livestatement/backend/internal/infrastructure/metrics"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Every write made through the scoped repositories is recorded; the commit guards
// see the full change set before the transaction commits.
type GormTransactionScope struct {
	db     *gorm.DB
	outbox *event.OutboxPublisher
	guards []shared.CommitGuard
}

// NewGormTransactionScope creates a new GormTransactionScope.
// The ledger append-only guard is always installed; extra guards run after it.
func NewGormTransactionScope(db *gorm.DB, outbox *event.OutboxPublisher, guards ...shared.CommitGuard) *GormTransactionScope {
	all := make([]shared.CommitGuard, 0, len(guards)+1)
	all = append(all, ledger.GuardAppendOnly)
	all = append(all, guards...)
	return &GormTransactionScope{db: db, outbox: outbox, guards: all}
}

// Execute runs fn within a database transaction.
// fn's error, a guard rejection or a cancelled context rolls everything back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos transaction.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changes := shared.NewChangeSet()
		repos := &gormTransactionalRepositories{tx: tx, changes: changes, outbox: s.outbox}
		if err := fn(repos); err != nil {
			return err
		}
		pending := changes.Changes()
		for _, guard := range s.guards {
			if err := guard(pending); err != nil {
				if errors.Is(err, ledger.ErrLedgerAppendOnly) {
					metrics.LedgerGuardRejectionsTotal.Inc()
				}
				return err
			}
		}
		return ctx.Err()
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx      *gorm.DB
	changes *shared.ChangeSet
	outbox  *event.OutboxPublisher
}

func (r *gormTransactionalRepositories) Receipts() receipt.ReceiptRepository {
	return NewGormReceiptRepository(r.tx).WithTx(r.tx, r.changes)
}

func (r *gormTransactionalRepositories) Extractions() receipt.ExtractionRepository {
	return NewGormExtractionRepository(r.tx).WithTx(r.tx, r.changes)
}

func (r *gormTransactionalRepositories) Reviews() receipt.ReviewRepository {
	return NewGormReviewRepository(r.tx).WithTx(r.tx, r.changes)
}

func (r *gormTransactionalRepositories) Ledger() ledger.EntryRepository {
	return NewGormLedgerRepository(r.tx).WithTx(r.tx, r.changes)
}

func (r *gormTransactionalRepositories) Snapshots() ledger.SnapshotRepository {
	return NewGormSnapshotRepository(r.tx).WithTx(r.tx, r.changes)
}

func (r *gormTransactionalRepositories) Statements() reconciliation.StatementRepository {
	return NewGormStatementRepository(r.tx).WithTx(r.tx, r.changes)
}

func (r *gormTransactionalRepositories) Runs() reconciliation.RunRepository {
	return NewGormRunRepository(r.tx).WithTx(r.tx, r.changes)
}

func (r *gormTransactionalRepositories) Audit() audit.Repository {
	return NewGormAuditRepository(r.tx).WithTx(r.tx, r.changes)
}

func (r *gormTransactionalRepositories) Events() transaction.EventRecorder {
	return &outboxRecorder{tx: r.tx, changes: r.changes, outbox: r.outbox}
}

// outboxRecorder writes envelopes to the outbox table in the same transaction
type outboxRecorder struct {
	tx      *gorm.DB
	changes *shared.ChangeSet
	outbox  *event.OutboxPublisher
}

func (o *outboxRecorder) Record(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	if o.outbox == nil {
		return errors.New("transaction scope has no outbox publisher")
	}
	if err := o.outbox.PublishWithTx(ctx, o.tx, events...); err != nil {
		return err
	}
	for _, e := range events {
		o.changes.Record(shared.PendingChange{Kind: shared.ChangeInsert, Target: targetOutboxEvent, ID: e.EventID()})
	}
	return nil
}

var (
	_ transaction.TransactionScope          = (*GormTransactionScope)(nil)
	_ transaction.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)

// Package transaction defines the unit of work every handler runs in.
//
// One handler invocation is one transaction: state changes, ledger rows, audit
// events and outgoing envelopes commit together or not at all.
package transaction

import (
	"context"

	"github.com/livestatement/backend/internal/domain/audit"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/reconciliation"
	"github.com/livestatement/backend/internal/domain/shared"
)

// TransactionScope runs a function inside a database transaction.
// If the function returns an error, the transaction is rolled back.
// Before commit, the recorded changes are checked by the commit guards;
// a guard error also rolls back.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// EventRecorder queues envelopes for delivery once the transaction commits
type EventRecorder interface {
	Record(ctx context.Context, events ...shared.DomainEvent) error
}

// TransactionalRepositories provides access to all repositories within a transaction.
// All repositories returned share the same underlying database transaction.
type TransactionalRepositories interface {
	Receipts() receipt.ReceiptRepository
	Extractions() receipt.ExtractionRepository
	Reviews() receipt.ReviewRepository
	Ledger() ledger.EntryRepository
	Snapshots() ledger.SnapshotRepository
	Statements() reconciliation.StatementRepository
	Runs() reconciliation.RunRepository
	Audit() audit.Repository
	Events() EventRecorder
}

package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
)

// ErrDuplicateSource signals that an entry for the source already exists
var ErrDuplicateSource = shared.NewDomainError("DUPLICATE_SOURCE", "A ledger entry already exists for this source")

// EntryRepository stores ledger entries. Entries are append-only: Save on an
// existing entry and Delete are recorded as changes and rejected at commit.
type EntryRepository interface {
	// Append inserts a new entry with its lines and links.
	// Returns ErrDuplicateSource if an entry for the same source already exists.
	Append(ctx context.Context, entry *LedgerEntry) error
	Save(ctx context.Context, entry *LedgerEntry) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*LedgerEntry, error)
	FindBySource(ctx context.Context, tenantID uuid.UUID, sourceType SourceType, sourceID uuid.UUID) (*LedgerEntry, error)
	FindReversalOf(ctx context.Context, tenantID, entryID uuid.UUID) (*LedgerEntry, error)
	// LineFacts returns every line of entries dated within the period
	LineFacts(ctx context.Context, tenantID uuid.UUID, period Period) ([]LineFact, error)
}

// SnapshotRepository stores period snapshots, one row per (tenant, period type, period key)
type SnapshotRepository interface {
	// LockPeriod blocks other recomputes of the period until the transaction ends.
	// Callers take it before reading ledger lines so the last writer saw every committed line.
	LockPeriod(ctx context.Context, tenantID uuid.UUID, periodType PeriodType, periodKey string) error
	// Upsert replaces the snapshot and its details for the period
	Upsert(ctx context.Context, snapshot *Snapshot) error
	Find(ctx context.Context, tenantID uuid.UUID, periodType PeriodType, periodKey string) (*Snapshot, error)
}

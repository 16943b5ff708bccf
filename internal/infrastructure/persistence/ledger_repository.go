package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/persistence/models"
	"github.com/livestatement/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedgerRepository implements EntryRepository using GORM.
// It never issues UPDATE or DELETE against ledger tables: Save on an existing entry
// and Delete are only recorded, and the commit guard rejects them.
type GormLedgerRepository struct {
	db      *gorm.DB
	changes changeLog
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// WithTx returns a new repository bound to the transaction
func (r *GormLedgerRepository) WithTx(tx *gorm.DB, recorder shared.ChangeRecorder) *GormLedgerRepository {
	return &GormLedgerRepository{db: tx, changes: changeLog{recorder: recorder}}
}

// Append inserts the entry with its lines and links.
// The insert runs in a savepoint so a duplicate source leaves the outer transaction usable.
func (r *GormLedgerRepository) Append(ctx context.Context, entry *ledger.LedgerEntry) error {
	model := models.LedgerEntryModelFromDomain(entry)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateSource
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	r.changes.record(shared.ChangeInsert, ledger.TargetLedgerEntry, entry.ID)
	for _, l := range entry.Lines {
		r.changes.record(shared.ChangeInsert, ledger.TargetLedgerLine, l.ID)
	}
	for _, lk := range entry.SourceLinks {
		r.changes.record(shared.ChangeInsert, ledger.TargetLedgerSourceLink, lk.ID)
	}
	return nil
}

// Save appends a new entry. For an entry that already exists the update is recorded
// without touching the database, so the unit of work fails at commit.
func (r *GormLedgerRepository) Save(ctx context.Context, entry *ledger.LedgerEntry) error {
	exists, err := r.exists(ctx, entry.TenantID, entry.ID)
	if err != nil {
		return err
	}
	if !exists {
		return r.Append(ctx, entry)
	}
	if r.changes.recorder == nil {
		return fmt.Errorf("%w: update of %s %s", ledger.ErrLedgerAppendOnly, ledger.TargetLedgerEntry, entry.ID)
	}
	r.changes.record(shared.ChangeUpdate, ledger.TargetLedgerEntry, entry.ID)
	return nil
}

// Delete records the deletion; the commit guard rejects it
func (r *GormLedgerRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if r.changes.recorder == nil {
		return fmt.Errorf("%w: delete of %s %s", ledger.ErrLedgerAppendOnly, ledger.TargetLedgerEntry, id)
	}
	r.changes.record(shared.ChangeDelete, ledger.TargetLedgerEntry, id)
	return nil
}

func (r *GormLedgerRepository) exists(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.LedgerEntryModel{}).
		Scopes(tenant.Scope(tenantID)).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormLedgerRepository) findOne(ctx context.Context, tenantID uuid.UUID, query string, args ...any) (*ledger.LedgerEntry, error) {
	var model models.LedgerEntryModel
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Preload("SourceLinks").
		Scopes(tenant.Scope(tenantID)).
		Where(query, args...).
		Take(&model).Error
	if err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByID finds an entry with its lines and links
func (r *GormLedgerRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.LedgerEntry, error) {
	return r.findOne(ctx, tenantID, "id = ?", id)
}

// FindBySource finds the single entry posted for a source
func (r *GormLedgerRepository) FindBySource(ctx context.Context, tenantID uuid.UUID, sourceType ledger.SourceType, sourceID uuid.UUID) (*ledger.LedgerEntry, error) {
	return r.findOne(ctx, tenantID, "source_type = ? AND source_id = ?", sourceType, sourceID)
}

// FindReversalOf finds the entry that reverses entryID
func (r *GormLedgerRepository) FindReversalOf(ctx context.Context, tenantID, entryID uuid.UUID) (*ledger.LedgerEntry, error) {
	return r.findOne(ctx, tenantID, "reverse_entry_id = ?", entryID)
}

// LineFacts returns every line of the tenant's entries dated within the period
func (r *GormLedgerRepository) LineFacts(ctx context.Context, tenantID uuid.UUID, period ledger.Period) ([]ledger.LineFact, error) {
	if tenantID == uuid.Nil {
		return nil, tenant.ErrTenantIDRequired
	}
	var rows []models.LineFactRow
	err := r.db.WithContext(ctx).
		Table("ledger_lines AS l").
		Select("l.line_type AS line_type, l.amount AS amount, e.evidence AS evidence").
		Joins("JOIN ledger_entries e ON e.id = l.entry_id").
		Where("e.tenant_id = ? AND e.entry_date >= ? AND e.entry_date < ?", tenantID, period.Start, period.End).
		Order("e.entry_date ASC, e.created_at ASC, l.line_no ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load line facts: %w", err)
	}
	facts := make([]ledger.LineFact, len(rows))
	for i, row := range rows {
		facts[i] = ledger.LineFact{LineType: row.LineType, Amount: row.Amount, Evidence: row.Evidence}
	}
	return facts, nil
}

var _ ledger.EntryRepository = (*GormLedgerRepository)(nil)

// GormSnapshotRepository implements SnapshotRepository using GORM
type GormSnapshotRepository struct {
	db      *gorm.DB
	changes changeLog
}

// NewGormSnapshotRepository creates a new GormSnapshotRepository
func NewGormSnapshotRepository(db *gorm.DB) *GormSnapshotRepository {
	return &GormSnapshotRepository{db: db}
}

// WithTx returns a new repository bound to the transaction
func (r *GormSnapshotRepository) WithTx(tx *gorm.DB, recorder shared.ChangeRecorder) *GormSnapshotRepository {
	return &GormSnapshotRepository{db: tx, changes: changeLog{recorder: recorder}}
}

// LockPeriod takes a transaction-scoped Postgres advisory lock on the period.
// SQLite admits one writer at a time, so there it is a no-op.
func (r *GormSnapshotRepository) LockPeriod(ctx context.Context, tenantID uuid.UUID, periodType ledger.PeriodType, periodKey string) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	key := "ledger_snapshot:" + tenantID.String() + ":" + string(periodType) + ":" + periodKey
	if err := r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error; err != nil {
		return fmt.Errorf("failed to lock snapshot period: %w", err)
	}
	return nil
}

// Upsert replaces the period's snapshot and its details.
// The row keeps its original ID; s.ID is updated to it.
func (r *GormSnapshotRepository) Upsert(ctx context.Context, s *ledger.Snapshot) error {
	model, err := models.LedgerSnapshotModelFromDomain(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	db := r.db.WithContext(ctx)

	err = db.Omit("Details").Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "period_type"}, {Name: "period_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"calculated_at", "authority_score", "evidence_pct", "estimated_pct",
			"totals", "line_count", "evidenced_count",
		}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	var stored models.LedgerSnapshotModel
	if err := db.Select("id").Scopes(tenant.Scope(s.TenantID)).
		Where("period_type = ? AND period_key = ?", s.PeriodType, s.PeriodKey).
		Take(&stored).Error; err != nil {
		return fmt.Errorf("failed to read snapshot id: %w", err)
	}
	s.ID = stored.ID

	if err := db.Where("tenant_id = ? AND snapshot_id = ?", s.TenantID, s.ID).
		Delete(&models.SnapshotDetailModel{}).Error; err != nil {
		return fmt.Errorf("failed to clear snapshot details: %w", err)
	}
	if len(s.Details) > 0 {
		details := make([]models.SnapshotDetailModel, len(s.Details))
		for i, d := range s.Details {
			details[i] = models.SnapshotDetailModel{
				ID:           uuid.New(),
				SnapshotID:   s.ID,
				TenantID:     s.TenantID,
				MetricKey:    d.MetricKey,
				Value:        d.Value,
				EvidencePct:  d.EvidencePct,
				EstimatedPct: d.EstimatedPct,
			}
		}
		if err := db.Create(&details).Error; err != nil {
			return fmt.Errorf("failed to write snapshot details: %w", err)
		}
	}

	r.changes.record(shared.ChangeUpdate, targetSnapshot, s.ID)
	return nil
}

// Find loads the snapshot of a period with its details
func (r *GormSnapshotRepository) Find(ctx context.Context, tenantID uuid.UUID, periodType ledger.PeriodType, periodKey string) (*ledger.Snapshot, error) {
	var model models.LedgerSnapshotModel
	err := r.db.WithContext(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("metric_key ASC") }).
		Scopes(tenant.Scope(tenantID)).
		Where("period_type = ? AND period_key = ?", periodType, periodKey).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

var _ ledger.SnapshotRepository = (*GormSnapshotRepository)(nil)

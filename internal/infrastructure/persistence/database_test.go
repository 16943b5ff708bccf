package persistence

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDatabase creates a Database instance with a mocked SQL connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

// TestDatabase_Stats tests the Stats method
func TestDatabase_Stats(t *testing.T) {
	t.Run("returns ConnectionStats from underlying DB", func(t *testing.T) {
		db, _, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		stats, err := db.Stats()

		assert.NoError(t, err)
		assert.GreaterOrEqual(t, stats.OpenConnections, 0)
		assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
	})
}

// TestDatabase_Ping tests the Ping method
func TestDatabase_Ping(t *testing.T) {
	t.Run("successful ping", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing()

		err := db.Ping()
		assert.NoError(t, err)

		err = mock.ExpectationsWereMet()
		assert.NoError(t, err)
	})
}

// TestDatabase_Close tests the Close method
func TestDatabase_Close(t *testing.T) {
	t.Run("successful close", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		_ = mockDB

		mock.ExpectClose()

		err := db.Close()
		assert.NoError(t, err)

		err = mock.ExpectationsWereMet()
		assert.NoError(t, err)
	})
}

// TestDatabase_Ping_EdgeCases tests Ping method edge cases
func TestDatabase_Ping_EdgeCases(t *testing.T) {
	t.Run("ping with MonitorPingsOption enabled", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockDB.Close()

		mock.ExpectPing()

		dialector := postgres.New(postgres.Config{
			Conn:       mockDB,
			DriverName: "postgres",
		})

		gormDB, err := gorm.Open(dialector, &gorm.Config{
			SkipDefaultTransaction: true,
		})
		require.NoError(t, err)

		db := &Database{DB: gormDB}

		mock.ExpectPing()

		err = db.Ping()
		assert.NoError(t, err)

		err = mock.ExpectationsWereMet()
		assert.NoError(t, err)
	})
}

// newTestDB opens a private in-memory SQLite database with the full schema
func newTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate())
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestOpenSQLite_MigratesSchema(t *testing.T) {
	d := newTestDB(t)

	for _, m := range AllModels() {
		assert.True(t, d.DB.Migrator().HasTable(m), "missing table for %T", m)
	}
	require.NoError(t, d.Ping())
}

func TestLedgerGuard_RejectsWrites(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	entry := newReceiptEntry(t, uuid.New(), "113.00", "13.00")
	require.NoError(t, NewGormLedgerRepository(d.DB).Append(ctx, entry))

	t.Run("model update", func(t *testing.T) {
		err := d.DB.Model(&models.LedgerEntryModel{}).
			Where("tenant_id = ? AND id = ?", entry.TenantID, entry.ID).
			Update("description", "changed").Error
		assert.ErrorIs(t, err, ledger.ErrLedgerAppendOnly)
	})

	t.Run("model delete", func(t *testing.T) {
		err := d.DB.Where("entry_id = ?", entry.ID).Delete(&models.LedgerLineModel{}).Error
		assert.ErrorIs(t, err, ledger.ErrLedgerAppendOnly)
	})

	t.Run("raw update", func(t *testing.T) {
		err := d.DB.Exec(`UPDATE ledger_entries SET description = ? WHERE id = ?`, "changed", entry.ID).Error
		assert.ErrorIs(t, err, ledger.ErrLedgerAppendOnly)
	})

	t.Run("raw delete", func(t *testing.T) {
		err := d.DB.Exec(`DELETE FROM "ledger_source_links"`).Error
		assert.ErrorIs(t, err, ledger.ErrLedgerAppendOnly)
	})

	stored, err := NewGormLedgerRepository(d.DB).FindByID(ctx, entry.TenantID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.Description, stored.Description)
	assert.Len(t, stored.Lines, 2)
	assert.Len(t, stored.SourceLinks, 1)
}

func TestSnapshotRepository_LockPeriod(t *testing.T) {
	tenantID := uuid.New()

	t.Run("postgres takes a transaction advisory lock", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`)).
			WithArgs("ledger_snapshot:" + tenantID.String() + ":MONTHLY:2025-12").
			WillReturnResult(sqlmock.NewResult(0, 0))

		repo := NewGormSnapshotRepository(db.DB)
		require.NoError(t, repo.LockPeriod(context.Background(), tenantID, ledger.PeriodTypeMonthly, "2025-12"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sqlite is a no-op", func(t *testing.T) {
		d := newTestDB(t)
		repo := NewGormSnapshotRepository(d.DB)
		assert.NoError(t, repo.LockPeriod(context.Background(), tenantID, ledger.PeriodTypeYTD, "2025"))
	})
}

package persistence

import (
	"fmt"
	"time"

	"github.com/livestatement/backend/internal/infrastructure/config"
	"github.com/livestatement/backend/internal/infrastructure/persistence/models"
	"github.com/livestatement/backend/internal/infrastructure/persistence/tenant"
	"github.com/livestatement/backend/internal/infrastructure/telemetry"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database holds the database connection and provides methods for database operations
type Database struct {
	DB *gorm.DB
}

// Option customizes how a Database is opened
type Option func(*options)

type options struct {
	logger  logger.Interface
	tracing *telemetry.DBTracingPlugin
}

// WithGormLogger sets the gorm logger, usually a logger.GormLogger backed by zap
func WithGormLogger(l logger.Interface) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracing registers the otelgorm plugin on the connection
func WithTracing(p *telemetry.DBTracingPlugin) Option {
	return func(o *options) {
		o.tracing = p
	}
}

// NewDatabase creates a new PostgreSQL connection with the given configuration
func NewDatabase(cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	d, err := open(postgres.Open(cfg.DSN()), opts...)
	if err != nil {
		return nil, err
	}

	sqlDB, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return d, nil
}

// OpenSQLite opens a SQLite database, used for tests and local tooling.
// The pool is limited to one connection so an in-memory database is shared by every statement.
func OpenSQLite(dsn string, opts ...Option) (*Database, error) {
	d, err := open(sqlite.Open(dsn), opts...)
	if err != nil {
		return nil, err
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return d, nil
}

func open(dialector gorm.Dialector, opts ...Option) (*Database, error) {
	o := &options{logger: logger.Default.LogMode(logger.Silent)}
	for _, opt := range opts {
		opt(o)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 o.logger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := RegisterLedgerGuard(db); err != nil {
		return nil, fmt.Errorf("failed to register ledger guard: %w", err)
	}
	if err := tenant.RegisterWriteGuard(db, TenantTables...); err != nil {
		return nil, fmt.Errorf("failed to register tenant guard: %w", err)
	}
	if o.tracing != nil {
		if err := o.tracing.Register(db); err != nil {
			return nil, fmt.Errorf("failed to register db tracing: %w", err)
		}
	}

	return &Database{DB: db}, nil
}

// TenantTables are the tables whose updates and deletes must name a tenant
var TenantTables = []string{
	"receipts",
	"receipt_reviews",
	"processing_jobs",
	"ledger_snapshots",
	"ledger_snapshot_details",
	"statements",
	"statement_lines",
	"reconciliation_runs",
	"reconciliation_variances",
}

// AllModels lists every persistence model, in dependency order
func AllModels() []any {
	return []any{
		&models.ReceiptModel{},
		&models.ReceiptExtractionModel{},
		&models.ReceiptReviewModel{},
		&models.ProcessingJobModel{},
		&models.LedgerEntryModel{},
		&models.LedgerLineModel{},
		&models.LedgerSourceLinkModel{},
		&models.LedgerSnapshotModel{},
		&models.SnapshotDetailModel{},
		&models.StatementModel{},
		&models.StatementLineModel{},
		&models.ReconciliationRunModel{},
		&models.ReconciliationVarianceModel{},
		&models.AuditEventModel{},
		&models.OutboxEntryModel{},
	}
}

// AutoMigrate creates the schema from the models. Production schemas come from
// the SQL migrations; this is for tests and local SQLite databases.
func (d *Database) AutoMigrate() error {
	return d.DB.AutoMigrate(AllModels()...)
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

// Stats returns database connection pool statistics and an error if unable to retrieve
func (d *Database) Stats() (ConnectionStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	stats := sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
		MaxIdleClosed:      stats.MaxIdleClosed,
		MaxIdleTimeClosed:  stats.MaxIdleTimeClosed,
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,
	}, nil
}

// ConnectionStats holds database connection pool statistics
type ConnectionStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	MaxIdleClosed      int64
	MaxIdleTimeClosed  int64
	MaxLifetimeClosed  int64
}

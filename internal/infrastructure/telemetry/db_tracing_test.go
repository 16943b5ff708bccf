package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRow struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100"`
	CreatedAt time.Time
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func setupRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, sr
}

func attrMap(span sdktrace.ReadOnlySpan) map[string]any {
	out := make(map[string]any)
	for _, kv := range span.Attributes() {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestDBTracingPlugin_Register_Disabled(t *testing.T) {
	db := setupTestDB(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	require.NoError(t, plugin.Register(db))
	assert.Nil(t, db.Callback().Query().Get("otel_slow_query:query"))
}

func TestDBTracingPlugin_Register_Enabled(t *testing.T) {
	db := setupTestDB(t)
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.DBSystem = "sqlite"

	require.NoError(t, NewDBTracingPlugin(cfg, zap.NewNop()).Register(db))
	assert.NotNil(t, db.Callback().Query().Get("otel_slow_query:query"))
	assert.NotNil(t, db.Callback().Create().Get("otel_timing:before_create"))

	require.NoError(t, db.Create(&tracedRow{Name: "receipt"}).Error)
	var got tracedRow
	require.NoError(t, db.First(&got, "name = ?", "receipt").Error)
	assert.Equal(t, "receipt", got.Name)
}

func TestDBTracingPlugin_Register_EmitsSpans(t *testing.T) {
	db := setupTestDB(t)
	tp, sr := setupRecorder(t)
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true

	require.NoError(t, NewDBTracingPlugin(cfg, zap.NewNop()).Register(db))

	ctx, root := tp.Tracer("test").Start(context.Background(), "ledger.post")
	require.NoError(t, db.WithContext(ctx).Create(&tracedRow{Name: "entry"}).Error)
	root.End()

	assert.NotEmpty(t, sr.Ended())
}

func TestAfterQuery_SetsAttributesAndFlagsSlowQuery(t *testing.T) {
	db := setupTestDB(t)
	tp, sr := setupRecorder(t)
	plugin := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: time.Millisecond}, zap.NewNop())

	ctx, span := tp.Tracer("test").Start(context.Background(), "db.query")
	ctx = context.WithValue(ctx, queryStartTimeKey, time.Now().Add(-time.Second))

	tx := db.WithContext(ctx)
	tx.Statement.Table = "ledger_entries"
	tx.Statement.RowsAffected = 3
	plugin.afterQuery(tx)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	attrs := attrMap(spans[0])
	assert.Equal(t, "ledger_entries", attrs["db.sql.table"])
	assert.Equal(t, int64(3), attrs["db.rows_affected"])
	assert.Equal(t, true, attrs["db.slow_query"])

	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "slow_query_warning", spans[0].Events()[0].Name)
}

func TestAfterQuery_RecordsErrorButNotRecordNotFound(t *testing.T) {
	db := setupTestDB(t)
	tp, sr := setupRecorder(t)
	plugin := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: time.Hour}, zap.NewNop())

	ctx, span := tp.Tracer("test").Start(context.Background(), "db.missing")
	tx := db.WithContext(ctx)
	tx.Error = gorm.ErrRecordNotFound
	plugin.afterQuery(tx)
	span.End()

	ctx, span = tp.Tracer("test").Start(context.Background(), "db.failed")
	tx = db.WithContext(ctx)
	tx.Error = errors.New("constraint violated")
	plugin.afterQuery(tx)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "constraint violated", spans[1].Status().Description)
}

func TestAfterQuery_NoSpanIsNoop(t *testing.T) {
	db := setupTestDB(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	assert.NotPanics(t, func() {
		plugin.afterQuery(db.WithContext(context.Background()))
	})
}

package bootstrap

import (
	"context"
	"fmt"

	"github.com/livestatement/backend/internal/infrastructure/config"
	"github.com/livestatement/backend/internal/infrastructure/logger"
	"github.com/livestatement/backend/internal/infrastructure/persistence"
	"github.com/livestatement/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Version is stamped at build time with -ldflags "-X .../bootstrap.Version=..."
var Version = "dev"

// NewLogger builds the process logger from config
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
}

// NewTracerProvider installs the OpenTelemetry tracer provider; a disabled config keeps the no-op provider
func NewTracerProvider(ctx context.Context, cfg *config.Config, log *zap.Logger) (*telemetry.TracerProvider, error) {
	return telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    Version,
		Environment:       cfg.App.Env,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
}

// OpenDatabase connects to Postgres with the zap gorm logger and, when enabled, query tracing
func OpenDatabase(cfg *config.Config, log *zap.Logger) (*persistence.Database, error) {
	opts := []persistence.Option{
		persistence.WithGormLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))),
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		tracing := telemetry.DefaultDBTracingConfig()
		tracing.Enabled = true
		tracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
		if cfg.Telemetry.DBSlowQueryThresh > 0 {
			tracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
		}
		opts = append(opts, persistence.WithTracing(telemetry.NewDBTracingPlugin(tracing, log)))
	}

	db, err := persistence.NewDatabase(&cfg.Database, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

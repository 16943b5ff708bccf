// Command worker runs the posting core: it relays committed envelopes, runs the
// gated handlers and serves the ops HTTP surface.
package main

import (
	"context"
	"errors"
	"io/fs"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/livestatement/backend/internal/bootstrap"
	"github.com/livestatement/backend/internal/infrastructure/cache"
	"github.com/livestatement/backend/internal/infrastructure/config"
	"github.com/livestatement/backend/internal/infrastructure/event"
	"github.com/livestatement/backend/internal/infrastructure/extractor"
	natsx "github.com/livestatement/backend/internal/infrastructure/messaging/nats"
	"github.com/livestatement/backend/internal/infrastructure/storage"
	"github.com/livestatement/backend/internal/interfaces/ops"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is fine; the environment and config.toml still apply
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic("Failed to load .env: " + err.Error())
	}

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Worker stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting ledger worker",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", bootstrap.Version),
		zap.String("transport", cfg.Event.Transport),
	)

	tp, err := bootstrap.NewTracerProvider(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	db, err := bootstrap.OpenDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	files, err := storage.NewS3FileStore(ctx, &cfg.Storage, storage.WithLogger(log))
	if err != nil {
		return err
	}
	extract, err := extractor.NewHTTPExtractor(cfg.Extractor, log)
	if err != nil {
		return err
	}
	succeeded, err := cache.NewSucceededJobCache(ctx, cfg.Idempotency, cfg.Redis, log)
	if err != nil {
		return err
	}
	if succeeded != nil {
		defer func() { _ = succeeded.Close() }()
	}

	core, err := bootstrap.NewCore(db, bootstrap.Deps{
		Files:      files,
		Extractor:  extract,
		Cache:      succeeded,
		CacheTTL:   cfg.Idempotency.TTL,
		MaxRetries: cfg.Event.MaxRetries,
	}, log)
	if err != nil {
		return err
	}

	checks := map[string]ops.Pinger{"database": db}

	relayCfg := event.OutboxProcessorConfig{
		BatchSize:        cfg.Event.BatchSize,
		PollInterval:     cfg.Event.PollInterval,
		CleanupEnabled:   cfg.Event.CleanupEnabled,
		CleanupRetention: cfg.Event.CleanupRetention,
		CleanupInterval:  event.DefaultOutboxProcessorConfig().CleanupInterval,
	}

	var relay *event.OutboxProcessor
	switch cfg.Event.Transport {
	case config.TransportNATS:
		client, err := natsx.Connect(cfg.NATS, log)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		if _, err := client.EnsureStream(ctx); err != nil {
			return err
		}
		durable, err := client.EnsureConsumer(ctx)
		if err != nil {
			return err
		}
		consumer := natsx.NewConsumer(core.Serializer, core.Bus, cfg.NATS, log)
		if err := consumer.Start(ctx, durable); err != nil {
			return err
		}
		defer consumer.Stop()

		relay = core.Relay(natsx.NewPublisher(client.JetStream(), core.Serializer, log), relayCfg, log)
		checks["nats"] = ops.PingerFunc(func() error {
			if !client.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		})
	default:
		relay = core.Relay(nil, relayCfg, log)
	}

	if cfg.Event.ProcessorEnabled {
		if err := relay.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := relay.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox relay", zap.Error(err))
			}
		}()
	} else {
		log.Warn("Outbox relay disabled; committed envelopes are not delivered by this process")
	}

	if cfg.Ops.Enabled {
		if cfg.App.Env == "production" {
			gin.SetMode(gin.ReleaseMode)
		}
		var routerOpts []ops.RouterOption
		if cfg.Telemetry.Enabled {
			routerOpts = append(routerOpts, ops.WithTracing(cfg.Telemetry.ServiceName))
		}
		engine := ops.NewRouter(ops.Handlers{
			System: ops.NewSystemHandler(cfg.App.Name, bootstrap.Version, checks, ops.WithGateStats(core.GateStats)),
			Outbox: ops.NewOutboxHandler(core.DeadLetters),
			Ledger: ops.NewLedgerHandler(core.Snapshots, core.Recon, core.Submissions, core.Reviews),
		}, log, routerOpts...)
		server := ops.NewServer(cfg.Ops.ListenAddr, engine, cfg.Ops.ShutdownTimeout, log)
		server.Start()
		defer func() {
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error("Error shutting down ops server", zap.Error(err))
			}
		}()
	}

	log.Info("Ledger worker running")
	<-ctx.Done()
	log.Info("Shutting down ledger worker")
	return nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	importapp "github.com/salesplan/backend/internal/application/import"
	"github.com/salesplan/backend/internal/infrastructure/cache"
	"github.com/salesplan/backend/internal/infrastructure/config"
	"github.com/salesplan/backend/internal/infrastructure/event"
	"github.com/salesplan/backend/internal/infrastructure/logger"
	"github.com/salesplan/backend/internal/infrastructure/persistence"
	"github.com/salesplan/backend/internal/infrastructure/storage"
	"github.com/salesplan/backend/internal/infrastructure/telemetry"
	"github.com/salesplan/backend/internal/interfaces/http/handler"
	"github.com/salesplan/backend/internal/interfaces/http/router"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		TimeFormat:  "2006-01-02T15:04:05.000Z07:00",
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	tel, log := setupTelemetry(ctx, cfg, baseLog)
	defer func() {
		tel.shutdown(log)
		_ = logger.Sync(log)
	}()

	log.Info("Starting import service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	db, err := persistence.NewDatabase(&cfg.Database, log, cfg.Log.SQLLevel)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, log)
		if err := plugin.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Database tracing disabled", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	// Repositories
	batchRepo := persistence.NewGormImportBatchRepository(db.DB)
	rowRepo := persistence.NewGormStagingRowRepository(db.DB)
	oppRepo := persistence.NewGormOpportunityRepository(db.DB)
	leadRepo := persistence.NewGormLeadRepository(db.DB)
	goLiveRepo := persistence.NewGormGoLiveRepository(db.DB)

	directoryStore, err := cache.NewDirectoryStoreFactory(cfg.Redis, cache.WithLogger(log)).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create user directory cache", zap.Error(err))
	}
	if closer, ok := directoryStore.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}
	userRepo := cache.NewCachedUserRepository(persistence.NewGormUserRepository(db.DB), directoryStore, cfg.Redis.DirectoryTTL, log)

	// Events
	eventBus := event.NewInMemoryEventBus(log)
	audit := event.NewAuditLogHandler(log)
	eventBus.Subscribe(audit, audit.EventTypes()...)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() { _ = eventBus.Stop(context.Background()) }()

	var importMetrics *telemetry.ImportMetrics
	if meter := tel.meter(); meter != nil {
		importMetrics, err = telemetry.NewImportMetrics(telemetry.ImportMetricsConfig{Meter: meter, Logger: log})
		if err != nil {
			log.Warn("Import metrics disabled", zap.Error(err))
		}
	}

	opts := []importapp.ServiceOption{
		importapp.WithEventPublisher(eventBus),
		importapp.WithMetrics(importMetrics),
		importapp.WithLogger(log),
	}
	if cfg.Import.ArchiveEnabled {
		archive, err := storage.NewS3ExportArchive(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create export archive", zap.Error(err))
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Warn("Export archive bucket not verified", zap.Error(err))
		}
		opts = append(opts, importapp.WithArchive(archive))
	} else {
		opts = append(opts, importapp.WithArchive(storage.NopExportArchive{}))
	}

	importService := importapp.NewImportService(batchRepo, rowRepo, oppRepo, userRepo, importapp.Config{
		MaxFileSize:     cfg.Import.MaxFileSize,
		MaxRows:         cfg.Import.MaxRows,
		DefaultEncoding: cfg.Import.DefaultEncoding,
	}, opts...)
	commitEngine := importapp.NewCommitEngine(batchRepo, rowRepo, oppRepo, leadRepo, cfg.Import.CommitTimeout, opts...)
	rollbackEngine := importapp.NewRollbackEngine(batchRepo, oppRepo, leadRepo, goLiveRepo, opts...)

	// HTTP
	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		Logger:         log,
		Meter:          tel.meter(),
		CORSOrigins:    cfg.HTTP.CORSAllowOrigins,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		Tracing:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get sql.DB", zap.Error(err))
	}
	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, sqlDB)
	router.NewRouter(engine).
		Health(systemHandler.Health).
		Register(systemHandler).
		Register(handler.NewImportHandler(importService, commitEngine, rollbackEngine, cfg.Import.MaxFileSize)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// streamed commits run inside requests; give them the commit timeout to finish
	shutdownTimeout := 30 * time.Second
	if cfg.Import.CommitTimeout > shutdownTimeout {
		shutdownTimeout = cfg.Import.CommitTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

// telemetryProviders holds the OpenTelemetry providers for shutdown
type telemetryProviders struct {
	tracer *telemetry.TracerProvider
	meters *telemetry.MeterProvider
	logs   *telemetry.LoggerProvider
}

// setupTelemetry starts tracing, metrics and log export. Failures only disable
// the affected signal. The returned logger also exports to the collector when
// log export is enabled.
func setupTelemetry(ctx context.Context, cfg *config.Config, log *zap.Logger) (*telemetryProviders, *zap.Logger) {
	t := cfg.Telemetry
	tel := &telemetryProviders{}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           t.Enabled,
		CollectorEndpoint: t.CollectorEndpoint,
		SamplingRatio:     t.SamplingRatio,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		log.Warn("Tracing disabled", zap.Error(err))
	} else {
		tel.tracer = tp
	}

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           t.Enabled && t.MetricsEnabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ExportInterval:    t.MetricsInterval,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		log.Warn("Metrics disabled", zap.Error(err))
	} else {
		tel.meters = mp
	}

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           t.Enabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		log.Warn("Log export disabled", zap.Error(err))
		return tel, log
	}
	tel.logs = lp
	if lp.IsEnabled() {
		log = telemetry.Bridge(log, telemetry.NewZapOTELCore(t.ServiceName, lp, zapcore.InfoLevel))
	}
	return tel, log
}

// meter returns nil when metrics are disabled
func (t *telemetryProviders) meter() metric.Meter {
	if t.meters == nil || !t.meters.IsEnabled() {
		return nil
	}
	return t.meters.Meter("salesplan-backend")
}

func (t *telemetryProviders) shutdown(log *zap.Logger) {
	ctx := context.Background()
	if t.logs != nil {
		if err := t.logs.Shutdown(ctx); err != nil {
			log.Warn("Log provider shutdown failed", zap.Error(err))
		}
	}
	if t.meters != nil {
		if err := t.meters.Shutdown(ctx); err != nil {
			log.Warn("Meter provider shutdown failed", zap.Error(err))
		}
	}
	if t.tracer != nil {
		if err := t.tracer.Shutdown(ctx); err != nil {
			log.Warn("Tracer provider shutdown failed", zap.Error(err))
		}
	}
}

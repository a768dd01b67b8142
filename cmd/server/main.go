package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rpgsheets/backend/internal/application/generation"
	"github.com/rpgsheets/backend/internal/domain/shared"
	"github.com/rpgsheets/backend/internal/infrastructure/cache"
	"github.com/rpgsheets/backend/internal/infrastructure/config"
	"github.com/rpgsheets/backend/internal/infrastructure/logger"
	"github.com/rpgsheets/backend/internal/infrastructure/migration"
	"github.com/rpgsheets/backend/internal/infrastructure/persistence"
	"github.com/rpgsheets/backend/internal/infrastructure/printing"
	"github.com/rpgsheets/backend/internal/infrastructure/printing/sheets"
	"github.com/rpgsheets/backend/internal/infrastructure/scheduler"
	"github.com/rpgsheets/backend/internal/infrastructure/storage"
	"github.com/rpgsheets/backend/internal/infrastructure/telemetry"
	"github.com/rpgsheets/backend/internal/interfaces/http/handler"
	"github.com/rpgsheets/backend/internal/interfaces/http/middleware"
	"github.com/rpgsheets/backend/internal/interfaces/http/router"
	"github.com/rpgsheets/backend/migrations"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLog, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.App.Name,
		ServiceVersion:    version,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
		Profiling: telemetry.ProfilerConfig{
			Enabled:              cfg.Telemetry.Profiling.Enabled,
			ServerAddress:        cfg.Telemetry.Profiling.ServerAddress,
			ApplicationName:      cfg.App.Name,
			BasicAuthUser:        cfg.Telemetry.Profiling.BasicAuthUser,
			BasicAuthPassword:    cfg.Telemetry.Profiling.BasicAuthPassword,
			SpanProfiles:         cfg.Telemetry.Profiling.SpanProfiles,
			MutexProfileFraction: cfg.Telemetry.Profiling.MutexProfileFraction,
			BlockProfileRate:     cfg.Telemetry.Profiling.BlockProfileRate,
		},
	}, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	log := providers.Logs.Bridge(baseLog, level)
	defer func() { _ = log.Sync() }()

	log.Info("Starting sheet service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("engine", cfg.Rendering.Engine),
	)

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	dbSystem := cfg.Database.Driver
	if dbSystem == "postgres" {
		dbSystem = "postgresql"
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:            cfg.Telemetry.Enabled && cfg.Telemetry.DBTracing,
		DBSystem:           dbSystem,
		SlowQueryThreshold: cfg.Telemetry.SlowQuery,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	if err := prepareSchema(cfg, db, log); err != nil {
		log.Fatal("Failed to prepare database schema", zap.Error(err))
	}

	// Rendering
	engine, err := newEngine(cfg.Rendering, log)
	if err != nil {
		log.Fatal("Failed to initialize PDF engine", zap.Error(err))
	}
	documents := printing.NewDocumentRenderer(engine, &printing.DocumentRendererConfig{
		Timeout: cfg.Rendering.Timeout,
		Logger:  log,
	})
	renderPool := printing.NewRenderPool(&printing.RenderPoolConfig{
		Size:           cfg.Rendering.PoolSize,
		MaxQueue:       cfg.Rendering.MaxQueue,
		AcquireTimeout: cfg.Rendering.AcquireTimeout,
		Logger:         log,
	})
	templates, err := sheets.NewRenderer(log)
	if err != nil {
		log.Fatal("Failed to load sheet layouts", zap.Error(err))
	}

	// Artifact storage
	artifacts, err := printing.NewFileSystemStorage(&printing.FileSystemStorageConfig{
		BasePath: cfg.Storage.OutputDir,
		Logger:   log,
	})
	if err != nil {
		log.Fatal("Failed to initialize artifact storage", zap.Error(err))
	}
	var mirror generation.ArtifactMirror = storage.NopMirror{}
	if cfg.Storage.S3.Enabled {
		s3Mirror, err := storage.NewS3Mirror(&cfg.Storage.S3, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize S3 mirror", zap.Error(err))
		}
		if err := s3Mirror.EnsureBucket(ctx); err != nil {
			log.Warn("S3 bucket check failed, uploads may fail", zap.Error(err))
		}
		mirror = s3Mirror
	}

	locker, err := cache.NewLockerFactory(cfg.Redis, cache.WithLogger(log)).CreateLocker()
	if err != nil {
		log.Fatal("Failed to initialize locker", zap.Error(err))
	}

	metrics, err := telemetry.NewGenerationMetrics(providers.Meter.Meter(telemetry.TracerName))
	if err != nil {
		log.Fatal("Failed to register generation metrics", zap.Error(err))
	}

	// Generation
	pool, err := scheduler.NewWorkerPool(scheduler.WorkerPoolConfig{
		Workers:   cfg.Generation.Workers,
		QueueSize: cfg.Generation.QueueSize,
	}, log)
	if err != nil {
		log.Fatal("Failed to create worker pool", zap.Error(err))
	}

	jobs := persistence.NewGormJobRepository(db.DB)
	clock := shared.SystemClock{}
	manager := generation.NewManager(generation.ManagerDeps{
		Jobs:       jobs,
		Characters: persistence.NewGormCharacterStore(db.DB),
		Templates:  templates,
		Renderer:   documents,
		Pool:       renderPool,
		Storage:    artifacts,
		Mirror:     mirror,
		Dispatcher: pool,
		Recorder:   metrics,
		Clock:      clock,
	}, generation.ManagerConfig{
		Retention:     cfg.Generation.Retention,
		DispatchBatch: cfg.Generation.DispatchBatch,
	}, log)

	shares := generation.NewShareService(jobs, clock, cfg.Share.MaxHours, log)
	downloads := generation.NewDownloadService(jobs, artifacts, nil, shares, log).WithRecorder(metrics)
	cleanup := generation.NewCleanupService(jobs, artifacts, mirror, locker, generation.CleanupConfig{
		BatchSize: cfg.Cleanup.BatchSize,
		OrphanAge: cfg.Cleanup.OrphanGrace,
		LockTTL:   cfg.Cleanup.LockTTL,
	}, log).WithRecorder(metrics)

	if err := pool.Start(ctx, manager.Execute); err != nil {
		log.Fatal("Failed to start worker pool", zap.Error(err))
	}
	if n, err := manager.RecoverInterrupted(ctx); err != nil {
		log.Error("Failed to recover interrupted jobs", zap.Error(err))
	} else if n > 0 {
		log.Info("Recovered interrupted jobs", zap.Int("count", n))
	}

	triggers, err := newTriggers(cfg, manager, cleanup, clock, log)
	if err != nil {
		log.Fatal("Failed to create scheduled tasks", zap.Error(err))
	}
	for _, t := range triggers {
		if err := t.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduled task", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engineHTTP := gin.New()
	if err := engineHTTP.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	engineHTTP.Use(logger.RequestID())
	engineHTTP.Use(logger.Recovery(log))
	engineHTTP.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.App.Name,
		Enabled:     cfg.Telemetry.Enabled,
		SkipPaths:   []string{"/health"},
	})...)
	engineHTTP.Use(logger.GinMiddleware(log))
	engineHTTP.Use(middleware.Secure())
	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	engineHTTP.Use(middleware.CORSWithConfig(corsConfig))
	engineHTTP.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	generationHandler := handler.NewGenerationHandler(manager, shares, downloads)
	adminHandler := handler.NewAdminHandler(cleanup, clock)
	systemHandler := handler.NewSystemHandler(cfg.App.Name, version,
		handler.HealthCheck{Name: "database", Check: func(context.Context) error { return db.Ping() }},
		handler.HealthCheck{Name: "storage", Check: func(context.Context) error {
			_, err := os.Stat(artifacts.BasePath())
			return err
		}},
	)

	shareLimiter := middleware.NewRateLimiter(cfg.Share.RatePerMinute, cfg.Share.RateBurst)
	identity := middleware.RequireUser()

	router.NewRouter(engineHTTP, router.WithAPIVersion("v1")).
		Register(
			handler.SystemRoutes(systemHandler),
			handler.GenerationRoutes(generationHandler, identity),
			handler.SharedRoutes(generationHandler).Use(middleware.RateLimit(shareLimiter)),
			handler.AdminRoutes(adminHandler, identity),
		).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engineHTTP,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	for _, t := range triggers {
		if err := t.Stop(shutdownCtx); err != nil {
			log.Warn("Scheduled task did not stop cleanly", zap.Error(err))
		}
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		log.Warn("Worker pool did not drain before timeout", zap.Error(err))
	}
	cancel()

	if err := engine.Close(); err != nil {
		log.Warn("Failed to close PDF engine", zap.Error(err))
	}
	if err := locker.Close(); err != nil {
		log.Warn("Failed to close locker", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		baseLog.Warn("Failed to flush telemetry", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		baseLog.Error("Failed to close database", zap.Error(err))
	}

	baseLog.Info("Server exited")
}

// prepareSchema runs the SQL migrations on postgres and falls back to
// AutoMigrate for sqlite, which the migration files do not target.
func prepareSchema(cfg *config.Config, db *persistence.Database, log *zap.Logger) error {
	if cfg.Database.Driver != "postgres" {
		return db.AutoMigrate()
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, migrations.FS, log)
	if err != nil {
		return err
	}
	return m.Up()
}

func newEngine(cfg config.RenderingConfig, log *zap.Logger) (printing.PDFRenderer, error) {
	switch cfg.Engine {
	case "wkhtmltopdf":
		return printing.NewWkhtmltopdfRenderer(&printing.WkhtmltopdfConfig{
			BinaryPath:     cfg.WkhtmltopdfPath,
			DefaultTimeout: cfg.Timeout,
			Logger:         log,
		})
	case "stub":
		log.Warn("Using stub PDF engine, generated files are placeholders")
		return printing.NewStubRenderer(), nil
	default:
		return printing.NewChromedpRenderer(&printing.ChromedpConfig{
			DefaultTimeout: cfg.Timeout,
			RemoteURL:      cfg.ChromeRemoteURL,
			ExecPath:       cfg.ChromePath,
			NoSandbox:      cfg.NoSandbox,
			Logger:         log,
		})
	}
}

func newTriggers(
	cfg *config.Config,
	manager *generation.Manager,
	cleanup *generation.CleanupService,
	clock shared.Clock,
	log *zap.Logger,
) ([]*scheduler.IntervalTrigger, error) {
	dispatch, err := scheduler.NewIntervalTrigger(scheduler.IntervalTriggerConfig{
		Name:     "generation-dispatch",
		Interval: cfg.Generation.DispatchInterval,
	}, func(ctx context.Context) error {
		if _, err := manager.RecoverInterrupted(ctx); err != nil {
			return err
		}
		_, err := manager.DispatchPending(ctx, cfg.Generation.DispatchInterval)
		return err
	}, log)
	if err != nil {
		return nil, err
	}
	triggers := []*scheduler.IntervalTrigger{dispatch}

	if !cfg.Cleanup.Enabled {
		return triggers, nil
	}
	sweep, err := scheduler.NewIntervalTrigger(scheduler.IntervalTriggerConfig{
		Name:       "artifact-cleanup",
		Interval:   cfg.Cleanup.Interval,
		RunOnStart: true,
	}, func(ctx context.Context) error {
		_, err := cleanup.Sweep(ctx, clock.Now())
		return err
	}, log)
	if err != nil {
		return nil, err
	}
	return append(triggers, sweep), nil
}

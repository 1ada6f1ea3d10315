package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mescon/Linkarr/internal/api"
	"github.com/mescon/Linkarr/internal/clock"
	"github.com/mescon/Linkarr/internal/config"
	"github.com/mescon/Linkarr/internal/db"
	"github.com/mescon/Linkarr/internal/eventbus"
	"github.com/mescon/Linkarr/internal/fingerprint"
	"github.com/mescon/Linkarr/internal/logger"
	"github.com/mescon/Linkarr/internal/metrics"
	"github.com/mescon/Linkarr/internal/notifier"
	"github.com/mescon/Linkarr/internal/parser"
	"github.com/mescon/Linkarr/internal/services"
)

func main() {
	// Define command line flags (these override environment variables)
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	// Configuration flags - all can also be set via environment variables (LINKARR_*)
	flagPort := flag.String("port", "", "HTTP server port (env: LINKARR_PORT, default: 3091)")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: LINKARR_LOG_LEVEL, default: info)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: LINKARR_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Database file path (env: LINKARR_DATABASE_PATH)")
	flagWatchFolder := flag.String("watch-folder", "", "Folder monitored for downloads (env: LINKARR_WATCH_FOLDER, default: /media/downloads)")
	flagMediaRoot := flag.String("media-root", "", "Root of the library tree (env: LINKARR_MEDIA_ROOT, default: /media)")
	flagDryRun := flag.Bool("dry-run", false, "Dry run mode - log placements without touching files (env: LINKARR_DRY_RUN)")
	flagWorkers := flag.Int("workers", 0, "Number of pipeline workers (env: LINKARR_WORKERS, default: 3)")
	flagGracePeriod := flag.Duration("grace-period", 0, "Minimum quiet time before a file is trusted (env: LINKARR_GRACE_PERIOD, default: 2m)")
	flagMaxAttempts := flag.Int("max-attempts", 0, "Stability checks before abandoning a path (env: LINKARR_MAX_ATTEMPTS, default: 30)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("Linkarr %s\n", config.Version)
		os.Exit(0)
	}

	config.Load()
	config.ApplyFlags(config.FlagOverrides{
		Port:         flagPort,
		LogLevel:     flagLogLevel,
		DataDir:      flagDataDir,
		DatabasePath: flagDatabasePath,
		WatchFolder:  flagWatchFolder,
		MediaRoot:    flagMediaRoot,
		DryRun:       flagDryRun,
		Workers:      flagWorkers,
		GracePeriod:  flagGracePeriod,
		MaxAttempts:  flagMaxAttempts,
	})
	cfg := config.Get()

	logger.Init(cfg.LogDir)
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("========================================")
	logger.Infof("Starting Linkarr %s...", config.Version)
	logger.Infof("Watched-folder media importer for Jellyfin-style libraries")
	logger.Infof("========================================")

	logger.Infof("Configuration:")
	logger.Infof("  Port: %s", cfg.Port)
	logger.Infof("  Log Level: %s", cfg.LogLevel)
	logger.Infof("  Data Directory: %s", cfg.DataDir)
	logger.Infof("  Database: %s", cfg.DatabasePath)
	logger.Infof("  Watch Folder: %s", cfg.WatchFolder)
	logger.Infof("  TV Library: %s", cfg.TVRoot())
	logger.Infof("  Movie Library: %s", cfg.MovieRoot())
	logger.Infof("  Workers: %d", cfg.Workers)
	logger.Infof("  Grace Period: %s", cfg.GracePeriod)
	logger.Infof("  Retry Backoff: %s .. %s (%d attempts)", cfg.RetryBaseDelay, cfg.RetryMaxDelay, cfg.MaxAttempts)
	logger.Infof("  Rescan Schedule: %s", cfg.RescanCron)
	logger.Infof("  Janitor Schedule: %s", cfg.JanitorCron)
	if cfg.DryRun {
		logger.Infof("  ⚠️  DRY-RUN MODE: ENABLED (no files will be linked)")
	}

	logger.Infof("Initializing database: %s", cfg.DatabasePath)
	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Database initialized successfully")

	stopCheckpoints := repo.StartPeriodicCheckpoint(15 * time.Minute)

	logger.Infof("Initializing Event Bus...")
	eb := eventbus.NewEventBus(repo.DB)
	logger.Infof("✓ Event Bus initialized")

	logger.Infof("Initializing core services...")
	fileParser := parser.New(cfg.DailyShowTitles)
	logger.Infof("✓ Filename Parser (episode/movie classification)")

	store := fingerprint.NewStore(repo.DB)
	logger.Infof("✓ Fingerprint Ledger (idempotent imports)")

	placer := &services.Placer{
		TVRoot:    cfg.TVRoot(),
		MovieRoot: cfg.MovieRoot(),
		DryRun:    cfg.DryRun,
		Parser:    fileParser,
	}
	logger.Infof("✓ Placement Engine (hardlink with copy fallback)")

	pipeline := services.NewPipeline(cfg, fileParser, store, eb, placer, clock.NewRealClock())
	pipeline.Start()
	logger.Infof("✓ Ingestion Pipeline (%d workers)", cfg.Workers)

	watcher := services.NewWatcher(cfg, pipeline, eb)
	if err := watcher.Start(); err != nil {
		logger.Errorf("Failed to start watcher: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Watch Folder Source (inotify + scheduled rescan)")

	janitor := services.NewJanitor(cfg, eb, fileParser)
	if err := janitor.Start(); err != nil {
		logger.Errorf("Failed to start janitor: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Library Janitor (%s)", cfg.JanitorCron)

	logger.Infof("Initializing Notification Service...")
	notifierService := notifier.NewNotifier(eb, cfg.NotificationURLs, cfg.NotificationThrottle)
	notifierService.Start()

	logger.Infof("Initializing Metrics Service...")
	metricsService := metrics.NewMetricsService(eb)
	metricsService.Start()
	logger.Infof("✓ Metrics Service (Prometheus endpoint at /metrics)")

	logger.Infof("Initializing REST API and WebSocket server...")
	apiServer := api.NewRESTServer(api.ServerDeps{
		DB:        repo.DB,
		EventBus:  eb,
		Store:     store,
		Rescanner: watcher,
		Janitor:   janitor,
		Metrics:   metricsService,
	})
	go func() {
		if err := apiServer.Start(cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Failed to start API server: %v", err)
			os.Exit(1)
		}
	}()

	logger.Infof("========================================")
	logger.Infof("✓ Linkarr %s started successfully", config.Version)
	logger.Infof("✓ Server listening on port %s", cfg.Port)
	logger.Infof("========================================")

	// Graceful shutdown on signal or on a fatal pipeline error (the
	// fingerprint ledger going away must stop the whole daemon, loudly).
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		logger.Infof("========================================")
		logger.Infof("Received signal %v, initiating graceful shutdown...", sig)
		logger.Infof("========================================")
	case err := <-pipeline.Fatal():
		exitCode = 1
		logger.Errorf("========================================")
		logger.Errorf("FATAL: %v", err)
		logger.Errorf("Pipeline halted, initiating shutdown...")
		logger.Errorf("========================================")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown in reverse order of startup
	logger.Infof("Stopping Watcher...")
	watcher.Stop()
	logger.Infof("✓ Watcher stopped")

	logger.Infof("Stopping Janitor...")
	janitor.Stop()
	logger.Infof("✓ Janitor stopped")

	logger.Infof("Stopping Pipeline (finishing in-flight files)...")
	pipeline.Shutdown()
	logger.Infof("✓ Pipeline stopped")

	logger.Infof("Stopping Event Bus...")
	eb.Shutdown()
	logger.Infof("✓ Event Bus stopped")

	logger.Infof("Stopping API Server...")
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API Server shutdown error: %v", err)
	} else {
		logger.Infof("✓ API Server stopped")
	}

	stopCheckpoints()
	logger.Infof("Closing database connection...")
	if err := repo.GracefulClose(); err != nil {
		logger.Errorf("Failed to close database connection: %v", err)
	} else {
		logger.Infof("✓ Database connection closed")
	}

	logger.Infof("========================================")
	logger.Infof("✓ Linkarr shutdown complete")
	logger.Infof("========================================")
	os.Exit(exitCode)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"file-renamer/activity"
	"file-renamer/clock"
	"file-renamer/guard"
	"file-renamer/internal"
	"file-renamer/observability"
	"file-renamer/ratelimit"
	"file-renamer/rename"
	"file-renamer/repositories"
	"file-renamer/runtime"
	"file-renamer/runtime/workers"
	"file-renamer/session"
	"file-renamer/thumbnail"
	"file-renamer/transfer"
	"file-renamer/transport/local"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const (
	debugPort     = 8081
	debugEndpoint = "/inspect"
	consoleUser   = 1
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Renamer terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run owns every resource so that deferred cleanup happens before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	if logger.Enabled(ctx, slog.LevelDebug) {
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", debugPort, debugEndpoint))
		database.StartDebugServer(db, debugPort, debugEndpoint, ActivityMapper)
	}

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)
	monitoring := observability.NewMonitoringManager(logger)

	// 4. Core components
	system := clock.System{}
	sessions := session.NewStore(system)
	limiter := ratelimit.NewLimiter(system, config.HourlyFileLimit, config.RateWindow)
	messageGuard := guard.NewGuard(system)

	transport := local.NewTransport(logger, system, os.Stdout, local.Config{
		OutboxDir:    config.OutboxDir,
		MaxUpload:    config.MaxUploadSize,
		EditInterval: config.EditInterval,
		ChunkSize:    config.ChunkSize,
		Colours:      true,
	})

	thumbnails := thumbnail.NewGenerator(logger, config.ThumbnailSize, config.ThumbnailWorker, config.BufferSize)
	if config.CustomThumbnail != "" {
		if err := thumbnails.UseCustom(config.CustomThumbnail, filepath.Join(config.DownloadDir, "thumbnails")); err != nil {
			return exitConfig, err
		}
	}

	activityRepository := repositories.NewActivityRepository(db, logger, config.ActivityTTL)
	activityLogger := activity.NewLogger(logger, config.BufferSize, config.SinkTimeout, metrics).
		Add("log", activity.NewSlogSink(logger)).
		Add("badger", activity.NewRepositorySink(activityRepository))
	if channel, ok := config.LogChannelID(); ok {
		activityLogger.Add("channel", activity.NewChannelSink(transport, channel))
	}

	engine := transfer.NewEngine(logger, transport, system, messageGuard, metrics, monitoring, transfer.EngineConfig{
		DownloadSlots:      config.DownloadSlots,
		UploadSlots:        config.UploadSlots,
		Policy:             config.ThrottlePolicy(),
		MessageMinInterval: config.MessageMinInterval,
	})

	pipeline := runtime.NewPipeline(logger, system, sessions, limiter, messageGuard, transport,
		rename.NewRenamer(logger, config.FilenameMaxLength), engine, thumbnails, activityLogger,
		metrics, monitoring, runtime.PipelineConfig{
			DownloadDir:        config.DownloadDir,
			MessageMinInterval: config.MessageMinInterval,
		})

	dispatcher := runtime.NewDispatcher(logger, sessions, limiter, messageGuard, transport, pipeline, metrics,
		runtime.DispatcherConfig{
			Shards:              config.InboundWorkers,
			BufferSize:          config.BufferSize,
			MaxFileSize:         config.MaxFileSize,
			HourlyFileLimit:     config.HourlyFileLimit,
			SupportedExtensions: config.SupportedExtensionList(),
			MessageMinInterval:  config.MessageMinInterval,
		})

	// 5. Supervision
	downloads, uploads := engine.Pools()
	expiry := workers.NewSessionExpiryWorker(logger, system, sessions, transport,
		config.AwaitFilenameTimeout, config.SessionSweepInterval, runtime.TimedOutNotice).
		WithHook(func() { limiter.Prune() }).
		WithHook(func() { messageGuard.Prune(config.RateWindow) })
	health := workers.NewHealthMonitoringWorker(logger, metrics, monitoring, sessions, config.HealthInterval,
		downloads, uploads)
	console := local.NewConsole(logger, os.Stdin, transport, dispatcher, system, consoleUser)

	supervisor := workers.NewSupervisor(logger).WithRestartInterval(config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(logger, supervisor, dispatcher).
		Add(activityLogger, thumbnails, expiry, health, console).
		Flush(activityLogger)

	// 6. Metrics endpoint
	errChan := make(chan error, 1)
	var server *http.Server
	if config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		server = &http.Server{Addr: config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("Starting metrics server", "address", config.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// 7. Run until a signal or a server failure
	done := make(chan struct{})
	go func() {
		orchestrator.Start(ctx)
		close(done)
	}()

	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		code = exitRuntime
		orchestrator.Stop()
	}
	<-done

	// 8. Final Cleanup
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	logger.Info("Program stopped cleanly")
	return code, runErr
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG).WithBypassLockGuard(true)
	}
	return options.WithLoggingLevel(badger.INFO)
}

// ActivityMapper renders an activity record for the debug inspector.
func ActivityMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	var record repositories.DiskActivity
	if err := json.Unmarshal(val, &record); err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	row.Type = record.Kind
	if record.NewName != "" {
		row.Detail = fmt.Sprintf("%s -> %s", record.OriginalName, record.NewName)
	} else {
		row.Detail = fmt.Sprintf("%s failed at %s: %s", record.OriginalName, record.Step, record.Reason)
	}
	return row
}

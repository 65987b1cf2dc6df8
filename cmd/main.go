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
	"support-chat/auth"
	"support-chat/gateway"
	"support-chat/internal"
	"support-chat/observability"
	"support-chat/repositories"
	"support-chat/runtime"
	"support-chat/runtime/workers"
	"support-chat/services"
	"support-chat/sink"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of exiting lets every deferred cleanup run, the database close included.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.Load()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, log, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Identity
	directory := auth.NewDirectory()
	issuer := auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration)

	// 4. Engine & supervised workers
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	diskSink := sink.NewDiskSink(messageRepository, log, config.PersistBufferSize)
	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(log, supervisor, directory, diskSink, config.Engine())
	orchestrator.UseHistory(diskSink)

	retention, err := workers.NewRetentionWorker(log, orchestrator, config.RetentionSweepCron)
	if err != nil {
		return exitConfig, err
	}
	monitoring := observability.NewMonitoringManager(log)
	orchestrator.Add(diskSink, retention, workers.NewHealthWorker(log, monitoring, config.HealthInterval))

	if err = orchestrator.Start(ctx); err != nil {
		return exitRuntime, fmt.Errorf("orchestrator failed to start: %w", err)
	}

	// 5. HTTP & WebSocket gateway
	options := gateway.Options{
		AllowedOrigins:  config.Origins(),
		FramesPerSecond: config.FramesPerSecond,
		FrameBurst:      config.FrameBurst,
		WriteTimeout:    config.WriteTimeout,
		PingInterval:    config.PingInterval,
		MaxFrameSize:    int64(config.MaxPayloadSize) * 4,
	}
	if config.DebugInspect {
		options.Inspect = internal.InspectHandler(db, MessageMapper, func() map[string]any {
			return map[string]any{"stats": monitoring.GetLatest()}
		})
		log.Info("Debug Badger inspector available", "path", "/debug/inspect")
	}
	server := gateway.NewServer(log, services.NewChatService(orchestrator), issuer, directory, monitoring, options)
	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", config.Address(), "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
	case err := <-errChan:
		orchestrator.Stop()
		return exitRuntime, err
	}

	// 7. Final Cleanup
	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	orchestrator.Stop()
	log.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, log *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if log.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// MessageMapper shows the author and content of a stored message in the inspector.
func MessageMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)

	var m repositories.DiskMessage
	if err := json.Unmarshal(val, &m); err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	row.Detail = fmt.Sprintf("%s: %s (%s)", m.Author, m.Content, m.At.Format(time.RFC3339))
	return row
}

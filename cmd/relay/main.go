package main

import (
	"chat-relay/contract"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/projection"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/sink"
	"chat-relay/transport/rest"
	"chat-relay/transport/ws"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the HTTP server and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Delivery engine
	var moderator *moderation.Moderator
	if config.EnableModeration {
		charReplacement, err := internal.CharacterRune(config.CharReplacement)
		if err != nil {
			return err
		}
		moderator, err = moderation.NewEmbeddedModerator(charReplacement)
		if err != nil {
			return fmt.Errorf("moderation init failed: %w", err)
		}
	}

	stats := observability.NewStats()
	registry := runtime.NewRegistry()
	messages := repositories.NewMessageLog(db, log)
	broker := runtime.NewBroker(log, registry, messages, moderator, stats, config.TelemetryBufferSize)
	timeline := projection.NewTimeline(config.TimelineCapacity)

	telemetrySinks := []contract.EventSink{timeline}
	if config.AuditFilepath != nil {
		auditFile, err := os.OpenFile(*config.AuditFilepath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("audit file opening failed: %w", err)
		}
		defer func() { _ = auditFile.Close() }()
		telemetrySinks = append(telemetrySinks, sink.NewAuditSink(auditFile, log))
	}

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewTelemetryWorker(log, broker.Telemetry(), telemetrySinks...),
		workers.NewReaperWorker(log, registry, broker, config.ResumeWindow, config.ReaperInterval),
		workers.NewHeartbeatWorker(log, registry, stats, config.MetricInterval),
	)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Start the background workers
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 6. HTTP server (websocket + operator endpoints)
	wsHandler := ws.NewHandler(log, broker, config.ConnectionBufferSize, config.ResumeWindow)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	wsHandler.RegisterRoutes(router)
	rest.RegisterRoutes(router, stats, timeline, messages)

	if config.DebugPort != nil {
		endpoint := "/inspect"
		log.Info("Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", *config.DebugPort, endpoint))
		internal.StartDebugServer(db, *config.DebugPort, endpoint, internal.RelayMapper, func() map[string]any {
			live := stats.Live()
			return map[string]any{
				"Accepted":   live.MessagesAccepted,
				"Duplicates": live.DuplicateRetries,
				"Broadcast":  live.EventsBroadcast,
				"Dropped":    live.DroppedDeliveries,
				"Sessions":   registry.Count(),
			}
		})
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: router}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting relay server", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown did not finish cleanly", "error", err)
	}
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}

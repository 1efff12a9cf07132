package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mentorlink/auth"
	"mentorlink/infrastructure/ws"
	"mentorlink/internal"
	"mentorlink/observability"
	"mentorlink/repositories"
	"mentorlink/runtime"
	"mentorlink/runtime/workers"
	"mentorlink/search"
	"mentorlink/services"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
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

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return fmt.Errorf("invalid CHARACTER_REPLACEMENT %q: %w", config.CharReplacement, err)
	}

	// 2. Storage (BadgerDB for messages and accounts, Bluge for search)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = blugeWriter.Close()
	}()

	// 3. Supervision & Orchestration
	sup := workers.NewSupervisor(log, config.RestartInterval)
	registry := runtime.NewRegistry()
	presence := runtime.NewPresence()
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	userRepository := repositories.NewUserRepository(db)

	orchestrator := runtime.NewOrchestrator(
		log, sup, registry, presence, messageRepository,
		config.BufferSize, config.SinkTimeout, charReplacement,
	)

	monitoring := observability.NewMonitoringManager(log)
	index := search.NewMessageIndex(blugeWriter, log, config.IndexBatchSize)
	orchestrator.Add(monitoring, index)
	defer func() {
		if err := index.Flush(); err != nil {
			log.Error("Final index flush failed", "error", err)
		}
	}()

	sup.Add(workers.NewTelemetry(log, monitoring, presence,
		config.MetricInterval, config.ReportInterval))

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Use an error channel to capture engine and Serve() issues
	errChan := make(chan error, 2)

	// 5. Start the Engine (Start blocks inside the supervision loop)
	go func() {
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator stopped: %w", err)
		}
	}()

	// 6. HTTP & WebSocket Server Setup
	authenticator := auth.NewAuthenticator(config.AuthSecretKey, config.AuthIssuer, config.AuthTokenDuration)
	accounts := services.NewAuthService(userRepository, authenticator)
	messaging := services.NewMessagingService(orchestrator)
	server := ws.NewServer(log, messaging, accounts, config.ConnectionBufferSize, config.WriteTimeout).
		WithMonitoring(monitoring).
		WithSearch(index)

	if config.DebugPort > 0 {
		internal.StartDebugServer(db, config.DebugPort, "/inspect", nil, func() map[string]any {
			stats := monitoring.GetLatest()
			return map[string]any{
				"messages_delivered": stats.MessagesDelivered,
				"typing_events":      stats.TypingEvents,
				"presence_events":    stats.PresenceEvents,
				"dropped_events":     stats.DroppedEvents,
				"online_users":       stats.OnlineUsers,
				"event_rate":         fmt.Sprintf("%.1f/s", stats.EventRate),
			}
		})
		log.Info("Store inspector enabled", "port", config.DebugPort)
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: server.Handler(),
	}

	go func() {
		log.Info("Starting messaging server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	orchestrator.Stop()
	log.Info("Program stopped cleanly")

	return nil
}

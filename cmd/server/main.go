// Command server runs the lock-stake reward ledger behind its HTTP API
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/lockstake-ledger/internal/config"
	"github.com/yourorg/lockstake-ledger/internal/otel"
)

// main is the entry point for the application
func main() {
	// Configure logging
	setupLogging()

	cfg, err := config.Load(os.Getenv("LEDGER_CONFIG"))
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	shutdownTracer := otel.InitTracer(cfg.OtelEndpoint)
	defer shutdownTracer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, devSeed{
		tokens: getEnvUint("DEV_SEED_TOKENS", 0),
		fund:   getEnvUint("DEV_SEED_FUND", 0),
	})
	if err != nil {
		logrus.Fatalf("Failed to start: %v", err)
	}
	a.start()

	// Start the server in a goroutine
	go func() {
		if err := a.server.Start(); err != nil {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	a.shutdown(shutdownCtx)

	logrus.Info("Server stopped")
}

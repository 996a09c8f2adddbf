package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/scorimmo/email-verifier/internal/core"
	"github.com/scorimmo/email-verifier/internal/di"
	transport "github.com/scorimmo/email-verifier/internal/transport/http"
	"go.uber.org/zap"
)

func main() {
	// Local overrides for development; absence of a .env file is fine
	_ = godotenv.Load()

	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	server *transport.Server,
	cacheRepo core.CacheRepository,
) error {
	defer logger.Sync()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	// Stop the cache if needed
	if stopper, ok := cacheRepo.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	logger.Info("Shutdown complete")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmanzanog/share-ledger/internal/application"
	"github.com/jmanzanog/share-ledger/internal/domain"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/config"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/marketdata/finnhub"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/persistence/bootstrap"
	httpHandler "github.com/jmanzanog/share-ledger/internal/interfaces/http"
	"github.com/joho/godotenv"
)

// parseLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogger configures and returns a structured logger with source information
func setupLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     parseLevel(level),
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	slog.SetDefault(logger)
	return logger
}

func retryPolicy(cfg *config.Config) application.RetryPolicy {
	return application.RetryPolicy{
		MaxRetries: cfg.TxMaxRetries,
		BaseDelay:  cfg.TxRetryBaseDelay,
	}
}

// buildServer creates and configures the HTTP server with all routes and handlers
func buildServer(cfg *config.Config, ledger httpHandler.LedgerService) *http.Server {
	router := gin.Default()
	handler := httpHandler.NewHandler(ledger)
	httpHandler.SetupRoutes(router, handler)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// buildPriceUpdater returns nil when no market data provider is configured.
func buildPriceUpdater(cfg *config.Config, store domain.Store) *application.PriceUpdater {
	switch cfg.MarketDataProvider {
	case config.MarketDataProviderFinnhub:
		client := finnhub.NewClient(cfg.FinnhubAPIKey, cfg.FinnhubRateLimit)
		refresher := application.NewCatalogPriceRefresher(store, client, retryPolicy(cfg))
		return application.NewPriceUpdater(refresher, cfg.PriceRefreshInterval)
	default:
		return nil
	}
}

// App wraps the application components for easier testing
type App struct {
	Server        *http.Server
	PriceUpdater  *application.PriceUpdater
	CancelContext context.CancelFunc
	CloseStore    bootstrap.CloseFunc
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down application...")

	if a.PriceUpdater != nil {
		a.PriceUpdater.Stop()
	}
	a.CancelContext()

	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}
	if a.CloseStore != nil {
		if err := a.CloseStore(); err != nil {
			errs = append(errs, fmt.Errorf("store close error: %w", err))
		}
	}

	return errors.Join(errs...)
}

// run contains the main application logic without os.Exit calls
// This makes it testeable
func run() error {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}

	ledger := application.NewLedgerService(store, retryPolicy(cfg))

	priceUpdater := buildPriceUpdater(cfg, store)
	if priceUpdater != nil {
		slog.Info("Using market data provider", "provider", cfg.MarketDataProvider)
		go priceUpdater.Start(ctx)
	}

	server := buildServer(cfg, ledger)

	// Create app wrapper
	app := &App{
		Server:        server,
		PriceUpdater:  priceUpdater,
		CancelContext: cancel,
		CloseStore:    closeStore,
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "host", cfg.ServerHost, "port", cfg.ServerPort, "db_driver", cfg.DBDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	// Wait for termination signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		_ = closeStore()
		return fmt.Errorf("server error: %w", err)
	case <-quit:
		slog.Info("Received shutdown signal")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("Server exited gracefully")
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}

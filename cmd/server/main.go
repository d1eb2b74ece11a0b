package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtrntr/ledgerview/internal/api"
	"github.com/xtrntr/ledgerview/internal/auth"
	"github.com/xtrntr/ledgerview/internal/config"
	"github.com/xtrntr/ledgerview/internal/db"
	"github.com/xtrntr/ledgerview/internal/exchange"
	"github.com/xtrntr/ledgerview/internal/ledger"
	"github.com/xtrntr/ledgerview/internal/views"

	"github.com/sirupsen/logrus"
)

const (
	migrationPath  = "migrations/001_init.sql"
	syncRetryDelay = 5 * time.Second
)

// Main entry point: sets up the ledger, the derived views and the HTTP server
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close(context.Background())

	schema, err := os.ReadFile(migrationPath)
	if err != nil {
		logger.Fatalf("failed to read migration: %v", err)
	}
	if err := database.Migrate(ctx, string(schema)); err != nil {
		logger.Fatalf("failed to apply migration: %v", err)
	}

	// Derivation rules for every view
	ex := exchange.NewExchange(
		exchange.WithSentinel(cfg.SentinelAddress),
		exchange.WithDecimals(cfg.TokenDecimals),
		exchange.WithLocation(cfg.ChartLocation),
	)
	store := views.NewStore(ex, logger, cfg.AccountCacheSize)

	go syncLedger(ctx, ledger.NewSyncer(database, store, logger), logger)

	authService := auth.NewAuthService(database, cfg.JWTSecret, cfg.TokenTTL)
	handler := api.NewHandler(database, store, authService, logger)

	hub := api.NewHub(store, logger)
	go hub.Run(ctx, cfg.BroadcastInterval)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: api.NewRouter(handler, hub),
	}

	go func() {
		logger.Infof("HTTP server listening on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown error: %v", err)
	}
	logger.Info("server stopped")
}

// syncLedger keeps the store mirrored, restarting the sync after failures.
// Until the first load succeeds every view reports the ledger unavailable.
func syncLedger(ctx context.Context, syncer *ledger.Syncer, logger *logrus.Logger) {
	for {
		err := syncer.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.WithError(err).Warnf("ledger sync stopped, retrying in %s", syncRetryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(syncRetryDelay):
		}
	}
}

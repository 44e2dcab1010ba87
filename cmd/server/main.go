package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/krypt-labs/krypt-gateway/internal/api"
	"github.com/krypt-labs/krypt-gateway/internal/config"
	"github.com/krypt-labs/krypt-gateway/internal/ledger"
	"github.com/krypt-labs/krypt-gateway/internal/metrics"
	"github.com/krypt-labs/krypt-gateway/internal/orchestrator"
	"github.com/krypt-labs/krypt-gateway/internal/store"
	"github.com/krypt-labs/krypt-gateway/internal/wallet"
)

func main() {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	logger, err := initLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Krypt Gateway Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("chain_name", cfg.Chain.Name),
		zap.String("ledger_contract", cfg.Chain.LedgerAddress),
		zap.Bool("counter_cache", cfg.Database.Enabled()))

	// Optional advisory counter cache
	var cache orchestrator.CounterCache
	if cfg.Database.Enabled() {
		db, err := store.Connect(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		migrationPath := "internal/store/migrations/001_schema.sql"
		if err := store.RunMigrations(db, migrationPath); err != nil {
			logger.Warn("Failed to run migrations (may already be applied)", zap.Error(err))
		} else {
			logger.Info("Database migrations applied successfully")
		}
		cache = db
	}

	// Wallet gateway; an unconfigured gateway is tolerated and every
	// write operation degrades to an instructional message
	gateway, err := wallet.NewNodeGateway(cfg, logger.Named("wallet"))
	if err != nil {
		logger.Fatal("Failed to initialize wallet gateway", zap.Error(err))
	}
	defer gateway.Close()

	contract, err := ledger.New(gateway, common.HexToAddress(cfg.Chain.LedgerAddress), logger.Named("ledger"))
	if err != nil {
		logger.Fatal("Failed to initialize ledger contract binding", zap.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	orch := orchestrator.New(gateway, contract, cache, m, logger.Named("orchestrator"))

	logger.Info("Services initialized")

	// Mirror the presentation layer's load-time behavior: pick up an
	// already-authorized session and warm the snapshots
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	orch.CheckExistingAuthorization(startupCtx)
	startupCancel()

	apiHandler := api.NewHandler(orch, cfg.Pagination.PageSize, logger.Named("api"))
	router := api.SetupRouter(apiHandler, logger.Named("http"))

	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // write ops block on chain confirmation
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", serverAddr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("HTTP server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
		httpServer.Close()
	} else {
		logger.Info("HTTP server stopped gracefully")
	}

	logger.Info("Service stopped successfully")
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENV")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

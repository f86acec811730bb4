package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fatture/internal/amqp"
	"fatture/internal/config"
	apphttp "fatture/internal/http"
	applog "fatture/internal/log"
	"fatture/internal/rates"
	"fatture/internal/rates/cached"
	"fatture/internal/rates/frankfurter"
	"fatture/internal/services"
	"fatture/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Exchange rates are optional: without a provider URL, foreign-currency
	// invoices are stored without conversion fields.
	var rateSource rates.Source
	if cfg.RatesBaseURL != "" {
		// Quotes are immutable per pair and date, so cache them and spare
		// the provider when invoices share an issue date.
		rateSource = cached.New(frankfurter.New(cfg.RatesBaseURL, cfg.RatesTimeout), 256, 12*time.Hour)
		logger.Info("Exchange rate provider enabled", "base_url", cfg.RatesBaseURL)
	} else {
		logger.Info("Exchange rate provider disabled - no RATES_BASE_URL provided")
	}

	// AMQP is optional too; without it, partial invoicing failures rely on
	// the worker's periodic backup scan alone.
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, continuing without reconcile publishing", "error", err)
		amqpClient = nil
	} else {
		defer amqpClient.Close()
	}

	invoiceService := services.NewInvoiceService(repo, rateSource, amqpClient, cfg.AccountCurrency, time.Now)
	entryService := services.NewTimeEntryService(repo, time.Now)

	srv := apphttp.NewServer(cfg.Port, invoiceService, entryService, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting fatture server",
		"port", cfg.Port,
		"account_currency", cfg.AccountCurrency)
	if err := srv.Start(ctx); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}

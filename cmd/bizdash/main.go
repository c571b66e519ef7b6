package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bizdash/internal/cache"
	"bizdash/internal/cli"
	apphttp "bizdash/internal/http"
	"bizdash/internal/log"
	"bizdash/internal/records"
	"bizdash/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.InitStore(context.Background(), logger, cfg)
	repo := records.NewRepository(store.Store, logger)

	reports := services.NewReportService(repo, services.ReportConfig{
		Options:  cfg.AggregateOptions(),
		CacheTTL: cfg.CacheTTL,
	}, logger)
	caches := cache.NewManager(logger)
	reports.RegisterCaches(caches)
	caches.StartCleanup(5 * time.Minute)

	// A nil *amqp.Client must not reach the services as a non-nil interface.
	var (
		publisher services.Publisher
		broker    apphttp.Pinger
	)
	amqpClient := cli.InitAMQP(logger, cfg)
	if amqpClient != nil {
		publisher, broker = amqpClient, amqpClient
	}
	catalog := services.NewCatalogService(repo, publisher, reports, logger)

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		Locale:             cfg.MonthLabelLocale,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, apphttp.Dependencies{
		Catalog: catalog,
		Reports: reports,
		Store:   store.Store,
		Broker:  broker,
	}, logger)
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", log.FieldError, err.Error())
			}
		}
		if err := store.Cleanup(); err != nil {
			logger.Warn("Failed to close record store", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting bizdash server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"locale", cfg.MonthLabelLocale,
		"integrity_policy", cfg.IntegrityPolicy,
		"price_policy", cfg.PricePolicy)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

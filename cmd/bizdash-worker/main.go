package main

import (
	"context"
	"errors"
	"os"
	"time"

	"bizdash/internal/cli"
	"bizdash/internal/log"
	"bizdash/internal/records"
	"bizdash/internal/services"
	"bizdash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting bizdash-worker")

	store := cli.InitStore(context.Background(), logger, cfg)
	repo := records.NewRepository(store.Store, logger)

	reports := services.NewReportService(repo, services.ReportConfig{Options: cfg.AggregateOptions()}, logger)

	exporter := cli.InitExporter(context.Background(), logger, cfg)
	if exporter == nil {
		logger.Info("Spreadsheet export disabled, snapshots are stored only")
	}

	snapshots := worker.NewSnapshotWorker(reports, repo, exporter, worker.Config{
		Schedule: cfg.SnapshotSchedule,
		Debounce: cfg.SnapshotDebounce,
	}, logger)

	amqpClient := cli.InitAMQP(logger, cfg)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := snapshots.Stop(ctx); err != nil {
			logger.Warn("Snapshot worker did not stop cleanly", log.FieldError, err.Error())
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", log.FieldError, err.Error())
			}
		}
		if err := store.Cleanup(); err != nil {
			logger.Warn("Failed to close record store", log.FieldError, err.Error())
		}
	})

	if err := snapshots.Start(ctx); err != nil {
		logger.Error("Failed to start snapshot worker", log.FieldError, err.Error())
		os.Exit(1)
	}

	// One snapshot at startup so a fresh deployment has a report before the
	// first scheduled run.
	if _, err := snapshots.Run(ctx); err != nil {
		logger.Error("Startup snapshot failed", log.FieldError, err.Error())
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeRecordChanges(ctx, snapshots.HandleRecordChanged)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Record change consumption failed", log.FieldError, err.Error())
			}
		}()
	} else {
		logger.Info("No broker configured, snapshots run on schedule only")
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}

// Package worker keeps persisted report snapshots current. It reacts to
// record-change events and to a cron schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"bizdash/internal/amqp"
	"bizdash/internal/core"
	"bizdash/internal/log"
	"bizdash/internal/records"
	"bizdash/internal/services"
	"bizdash/internal/sheets"
)

const (
	DefaultSchedule = "0 6 * * *"
	DefaultDebounce = 5 * time.Second
	runTimeout      = 2 * time.Minute
)

// Config holds the worker schedule and debounce window.
type Config struct {
	// Schedule is a standard five-field cron spec.
	Schedule string
	// Debounce collapses bursts of change events into one run.
	Debounce time.Duration
}

// SnapshotWorker recomputes the dashboard aggregate, stores it as a
// report snapshot and optionally exports it to a spreadsheet.
type SnapshotWorker struct {
	reports  *services.ReportService
	repo     *records.Repository
	exporter sheets.ReportExporter
	config   Config
	logger   *log.Logger
	now      func() time.Time

	runMu sync.Mutex

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cron    *cron.Cron
	timer   *time.Timer
	pending sync.WaitGroup
}

// NewSnapshotWorker builds a worker. exporter may be nil.
func NewSnapshotWorker(reports *services.ReportService, repo *records.Repository, exporter sheets.ReportExporter, cfg Config, logger *log.Logger) *SnapshotWorker {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SnapshotWorker{
		reports:  reports,
		repo:     repo,
		exporter: exporter,
		config:   cfg,
		logger:   logger.WithComponent(log.ComponentWorker),
		now:      time.Now,
	}
}

// Run computes and stores one snapshot, keyed by the current month.
func (w *SnapshotWorker) Run(ctx context.Context) (records.ReportSnapshot, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	dashboard, err := w.reports.BuildDashboard(ctx)
	if err != nil {
		return records.ReportSnapshot{}, fmt.Errorf("build dashboard: %w", err)
	}

	now := w.now().UTC()
	snap := records.ReportSnapshot{
		Month:       core.MonthKeyOf(now),
		GeneratedAt: now,
		Series:      dashboard.Series,
		Categories:  dashboard.Categories,
		Summary:     dashboard.Summary,
	}
	if err := w.repo.SaveReportSnapshot(ctx, snap); err != nil {
		return records.ReportSnapshot{}, err
	}

	w.logger.InfoContext(ctx, "Report snapshot stored",
		log.FieldMonth, snap.Month.String(),
		log.FieldCount, len(snap.Series.Buckets),
		log.FieldOperation, log.OpSnapshot)

	if w.exporter == nil {
		return snap, nil
	}
	ref, err := w.exporter.ExportMonthlySeries(ctx, snap.Series, snap.Categories)
	if err != nil {
		// the snapshot is already stored; a failed export is retried next run
		w.logger.ErrorContext(ctx, "Failed to export report",
			log.NewFields().WithError(err).WithErrorType(log.ErrorTypeNetwork).WithOperation(log.OpExport).ToSlice()...)
		return snap, fmt.Errorf("export report: %w", err)
	}
	w.logger.InfoContext(ctx, "Report exported", log.FieldSheetsRef, ref)
	return snap, nil
}

// Start registers the cron schedule. Change events handled before Start are
// ignored.
func (w *SnapshotWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("snapshot worker is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(w.config.Schedule, func() { w.runLogged(ctx, "schedule") }); err != nil {
		return fmt.Errorf("schedule %q: %w", w.config.Schedule, err)
	}
	c.Start()

	w.cron = c
	w.ctx = ctx
	w.running = true
	w.logger.InfoContext(ctx, "Snapshot worker started",
		"schedule", w.config.Schedule,
		"debounce", w.config.Debounce.String())
	return nil
}

// Stop cancels a pending debounced run and waits for in-flight runs.
func (w *SnapshotWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	if w.timer != nil && w.timer.Stop() {
		w.pending.Done()
	}
	w.timer = nil
	cronDone := w.cron.Stop()
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		w.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.InfoContext(ctx, "Snapshot worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Snapshot worker stop timed out")
		return ctx.Err()
	}
}

// HandleRecordChanged schedules a debounced run for changes that affect
// reports. It matches amqp.Handler.
func (w *SnapshotWorker) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	if !msg.AffectsReports() {
		w.logger.DebugContext(ctx, "Ignoring record change",
			log.FieldCollection, msg.Collection, log.FieldRecordID, msg.ID)
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	if w.timer != nil && w.timer.Stop() {
		w.pending.Done()
	}
	w.pending.Add(1)
	runCtx := w.ctx
	w.timer = time.AfterFunc(w.config.Debounce, func() {
		defer w.pending.Done()
		w.runLogged(runCtx, "change")
	})
	return nil
}

func (w *SnapshotWorker) runLogged(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	if _, err := w.Run(ctx); err != nil {
		fields := log.LogFields{"trigger": trigger}
		log.NewStructuredLogger(w.logger).LogError(ctx, "Snapshot run failed", err, log.ComponentWorker, log.OpSnapshot, fields)
	}
}

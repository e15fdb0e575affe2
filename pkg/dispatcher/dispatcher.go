// Package dispatcher runs the periodic sweep that wakes due step
// executions: fresh pending rows, scheduled delays whose time has come and
// retry backoffs.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/enroutehq/enroute/pkg/runner"
)

const defaultBatchSize = 100

// Dispatcher sweeps due executions on a cron schedule.
type Dispatcher struct {
	runner    *runner.Runner
	logger    *slog.Logger
	cronExpr  string
	batchSize int
	cron      *cron.Cron
}

// NewDispatcher creates a dispatcher. cronExpr follows the standard five
// field syntax; batchSize caps each sweep.
func NewDispatcher(r *runner.Runner, cronExpr string, batchSize int, logger *slog.Logger) (*Dispatcher, error) {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return nil, fmt.Errorf("invalid sweep cron expression: %w", err)
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Dispatcher{
		runner:    r,
		logger:    logger.With("module", "dispatcher"),
		cronExpr:  cronExpr,
		batchSize: batchSize,
	}, nil
}

// Start schedules the sweep and returns. Overlapping sweeps are skipped,
// not queued.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := d.cron.AddFunc(d.cronExpr, func() {
		d.sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	d.logger.Info("Starting dispatcher", "cron", d.cronExpr, "batch_size", d.batchSize)
	d.cron.Start()

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (d *Dispatcher) Stop() {
	if d.cron == nil {
		return
	}

	<-d.cron.Stop().Done()
	d.logger.Info("Dispatcher stopped")
}

// Sweep runs one pass immediately, outside the schedule.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	return d.runner.ProcessDue(ctx, d.batchSize)
}

func (d *Dispatcher) sweep(ctx context.Context) {
	processed, err := d.runner.ProcessDue(ctx, d.batchSize)
	if err != nil {
		d.logger.ErrorContext(ctx, "Sweep failed", "error", err)

		return
	}

	if processed > 0 {
		d.logger.InfoContext(ctx, "Sweep finished", "processed", processed)
	}
}

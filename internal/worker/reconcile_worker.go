package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saber-em-movimento/backend/internal/service"
)

// Reconciler is the job the worker runs on schedule.
type Reconciler interface {
	Run(ctx context.Context) (service.ReconcileReport, error)
}

// ReconcileWorker runs the orphaned-account reconciliation on a cron schedule.
// Runs never overlap: a tick that fires while a run is active is skipped.
type ReconcileWorker struct {
	cron       *cron.Cron
	reconciler Reconciler
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
}

// StartReconcileWorker schedules reconciler with a standard cron expression or
// a descriptor such as "@every 10m" and starts the scheduler.
func StartReconcileWorker(schedule string, reconciler Reconciler, logger *zap.Logger) (*ReconcileWorker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &ReconcileWorker{
		cron:       cron.New(),
		reconciler: reconciler,
		logger:     logger,
	}
	if _, err := w.cron.AddFunc(schedule, w.tick); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	w.cron.Start()
	logger.Info("reconcile worker started", zap.String("schedule", schedule))
	return w, nil
}

// Stop halts the scheduler and waits for an in-flight run or ctx, whichever
// finishes first.
func (w *ReconcileWorker) Stop(ctx context.Context) {
	if w == nil {
		return
	}
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		w.logger.Warn("reconcile worker stop timed out")
	}
}

func (w *ReconcileWorker) tick() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Debug("reconcile run still active, skipping tick")
		return
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	report, err := w.reconciler.Run(context.Background())
	if err != nil {
		w.logger.Error("reconcile run failed", zap.Error(err))
		return
	}
	w.logger.Info("reconcile run finished",
		zap.Int("checked", report.Checked),
		zap.Int("resolved", report.Resolved),
		zap.Int("compensated", report.Compensated),
		zap.Int("pending", report.Pending),
		zap.Int("failed", report.Failed))
}

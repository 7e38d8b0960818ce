package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"trade_engine/pkg/application/modules"
	"trade_engine/pkg/logx"
)

const TaskReconcile = "trades:reconcile"

// ReconcileTask runs a cleanup and a reconciliation pass per task. Failures
// are not retried by the queue: the next scheduled pass picks them up.
type ReconcileTask struct {
	reconciler *Reconciler
}

func NewReconcileTask(reconciler *Reconciler) *ReconcileTask {
	return &ReconcileTask{reconciler: reconciler}
}

// NewReconcileTaskPayload builds the queue task.
func NewReconcileTaskPayload() *asynq.Task {
	return asynq.NewTask(TaskReconcile, nil, asynq.MaxRetry(0))
}

func (t *ReconcileTask) Handler() modules.AsynqHandler {
	return modules.AsynqHandler{Pattern: TaskReconcile, Handle: t.Handle}
}

func (t *ReconcileTask) Schedule(cronspec string) modules.AsynqSchedule {
	return modules.AsynqSchedule{
		Cronspec: cronspec,
		Task:     NewReconcileTaskPayload(),
		Opts:     []asynq.Option{asynq.Unique(time.Minute)},
	}
}

func (t *ReconcileTask) Handle(ctx context.Context, _ *asynq.Task) error {
	if err := t.pass(ctx); err != nil {
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}
	return nil
}

func (t *ReconcileTask) pass(ctx context.Context) error {
	if _, err := t.reconciler.Cleanup(ctx); err != nil {
		logger(ctx).Warn("Pending cleanup failed", logx.Error(err))
	}

	if _, err := t.reconciler.Reconcile(ctx); err != nil {
		logger(ctx).Warn("Reconciliation failed", logx.Error(err))
		return err
	}

	return nil
}

// RunEvery reconciles on a fixed interval in-process. It is used when no
// queue is configured.
func (t *ReconcileTask) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger(ctx).Info("Reconciler started", "interval", interval.String())

	for {
		_ = t.pass(ctx)

		select {
		case <-ctx.Done():
			logger(ctx).Info("Reconciler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

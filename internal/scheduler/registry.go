package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorwatch/mirrorwatch/internal/registry"
)

// InstanceReconciler is what the registry loop needs from the reconciler.
type InstanceReconciler interface {
	Reconcile(ctx context.Context) (registry.Summary, error)
}

// RegistryLoop periodically re-reads the public instance listing and
// reconciles the fleet. A failed fetch keeps the current fleet; nothing is
// disabled on the registry's bad days.
type RegistryLoop struct {
	Logger     *zap.Logger
	Reconciler InstanceReconciler
	Interval   time.Duration
}

func (l *RegistryLoop) Run(ctx context.Context) {
	t := time.NewTicker(l.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("registry_loop_stopped")
			return
		case <-t.C:
			l.runOnce(ctx)
		}
	}
}

func (l *RegistryLoop) runOnce(ctx context.Context) {
	sum, err := l.Reconciler.Reconcile(ctx)
	if err != nil {
		l.Logger.Warn("registry_reconcile_error", zap.Error(err))
		return
	}
	l.Logger.Info("registry_reconciled",
		zap.Int("added", sum.Added),
		zap.Int("retained", sum.Retained),
		zap.Int("disabled", sum.Disabled))
}

package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorwatch/mirrorwatch/internal/repo"
	"github.com/mirrorwatch/mirrorwatch/internal/scoring"
)

// CleanupLoop enforces the retention rules: per-host error records are capped
// at KeepErrors (oldest evicted first) and health checks older than the long
// scoring window are dropped outright.
type CleanupLoop struct {
	Logger     *zap.Logger
	Instances  repo.InstanceStore
	Results    repo.ResultStore
	Errors     repo.ErrorStore
	Interval   time.Duration
	KeepErrors int
}

func (l *CleanupLoop) Run(ctx context.Context) {
	t := time.NewTicker(l.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("cleanup_loop_stopped")
			return
		case <-t.C:
			l.runOnce(ctx)
		}
	}
}

func (l *CleanupLoop) runOnce(ctx context.Context) {
	// disabled hosts keep accumulating nothing but still get trimmed
	instances, err := l.Instances.List(ctx)
	if err != nil {
		l.Logger.Warn("cleanup_list_error", zap.Error(err))
		return
	}

	var trimmed int64
	for _, inst := range instances {
		n, err := l.Errors.TrimToNewest(ctx, inst.ID, l.KeepErrors)
		if err != nil {
			l.Logger.Warn("cleanup_trim_error",
				zap.String("domain", inst.Domain),
				zap.Error(err))
			continue
		}
		trimmed += n
	}

	cutoff := time.Now().UTC().Add(-scoring.WindowLong)
	deleted, err := l.Results.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		l.Logger.Warn("cleanup_delete_error", zap.Error(err))
	}

	l.Logger.Info("cleanup_done",
		zap.Int64("errors_trimmed", trimmed),
		zap.Int64("checks_deleted", deleted))
}

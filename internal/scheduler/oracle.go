package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher is the refresh side of the upstream oracle.
type Refresher interface {
	Refresh(ctx context.Context) error
	Head() string
}

// OracleLoop keeps the upstream branch head current. Refresh failures are
// logged and skipped; classification keeps running on the last good head.
type OracleLoop struct {
	Logger   *zap.Logger
	Oracle   Refresher
	Interval time.Duration
}

func (l *OracleLoop) Run(ctx context.Context) {
	t := time.NewTicker(l.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("oracle_loop_stopped")
			return
		case <-t.C:
			l.runOnce(ctx)
		}
	}
}

func (l *OracleLoop) runOnce(ctx context.Context) {
	if err := l.Oracle.Refresh(ctx); err != nil {
		l.Logger.Warn("oracle_refresh_error", zap.Error(err))
		return
	}
	l.Logger.Debug("oracle_refreshed", zap.String("head", l.Oracle.Head()))
}

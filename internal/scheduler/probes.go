package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
	"github.com/mirrorwatch/mirrorwatch/internal/probe"
	"github.com/mirrorwatch/mirrorwatch/internal/repo"
)

// InstanceProber is what the probe loop needs from the prober.
type InstanceProber interface {
	Probe(ctx context.Context, inst domain.Instance) probe.Outcome
}

// ProbeLoop probes every enabled instance each tick, fanned out over a
// bounded worker pool. One slow or broken host never delays the others
// beyond the pool width, and the tick as a whole runs under a hard deadline.
type ProbeLoop struct {
	Logger      *zap.Logger
	Instances   repo.InstanceStore
	Results     repo.ResultStore
	Errors      repo.ErrorStore
	Prober      InstanceProber
	Interval    time.Duration
	Deadline    time.Duration
	Concurrency int
	// AutoMute drops error records for hosts that were already unhealthy at
	// the previous tick, so a long outage is one record, not hundreds.
	AutoMute bool
}

// Run starts the loop. It does an immediate pass, then runs each tick.
// Stops when ctx is cancelled.
func (l *ProbeLoop) Run(ctx context.Context) {
	t := time.NewTicker(l.Interval)
	defer t.Stop()

	l.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("probe_loop_stopped")
			return
		case <-t.C:
			l.runOnce(ctx)
		}
	}
}

func (l *ProbeLoop) runOnce(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, l.Deadline)
	defer cancel()

	instances, err := l.Instances.ListEnabled(tctx)
	if err != nil {
		l.Logger.Warn("probe_list_error", zap.Error(err))
		return
	}
	if len(instances) == 0 {
		return
	}

	// Snapshot health as of the previous tick before any result of this
	// tick lands, so the mute decision is the same for every host.
	previous := map[domain.InstanceID]domain.HealthCheckResult{}
	if l.AutoMute {
		previous, err = l.Results.LatestByInstance(tctx)
		if err != nil {
			l.Logger.Warn("probe_latest_error", zap.Error(err))
			previous = map[domain.InstanceID]domain.HealthCheckResult{}
		}
	}

	concurrency := l.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, inst := range instances {
		inst := inst
		select {
		case sem <- struct{}{}:
		case <-tctx.Done():
			l.Logger.Warn("probe_tick_deadline", zap.Int("remaining", len(instances)))
			wg.Wait()
			return
		}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()
			l.probeOne(tctx, inst, previous)
		}()
	}

	wg.Wait()
}

func (l *ProbeLoop) probeOne(ctx context.Context, inst domain.Instance, previous map[domain.InstanceID]domain.HealthCheckResult) {
	out := l.Prober.Probe(ctx, inst)

	if err := l.Results.Append(ctx, &out.Result); err != nil {
		l.Logger.Warn("probe_append_error",
			zap.String("domain", inst.Domain),
			zap.Error(err))
		return
	}
	l.Logger.Debug("probe_checked",
		zap.String("domain", inst.Domain),
		zap.Bool("healthy", out.Result.Healthy),
		zap.Bool("rss", out.Result.RSS))

	if out.Error == nil {
		return
	}
	if l.AutoMute {
		if prev, ok := previous[inst.ID]; ok && !prev.Healthy {
			l.Logger.Debug("probe_error_muted",
				zap.String("domain", inst.Domain),
				zap.String("category", string(out.Error.Category)))
			return
		}
	}
	if err := l.Errors.AppendError(ctx, out.Error); err != nil {
		l.Logger.Warn("probe_error_append_error",
			zap.String("domain", inst.Domain),
			zap.Error(err))
	}
}

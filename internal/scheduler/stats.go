package scheduler

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorwatch/mirrorwatch/internal/config"
	"github.com/mirrorwatch/mirrorwatch/internal/domain"
	"github.com/mirrorwatch/mirrorwatch/internal/fetch"
	"github.com/mirrorwatch/mirrorwatch/internal/repo"
)

// healthPayload is the self-reported stats document some instances expose.
// Older builds report "accounts", newer ones "sessions"; same numbers.
type healthPayload struct {
	Accounts *healthPool `json:"accounts"`
	Sessions *healthPool `json:"sessions"`
	Requests struct {
		Total int64 `json:"total"`
	} `json:"requests"`
}

type healthPool struct {
	Total   int `json:"total"`
	Limited int `json:"limited"`
}

// StatsLoop collects the optional self-reported stats endpoint from each
// enabled instance. The endpoint is a courtesy, most hosts don't expose it,
// so any failure here is silent and never touches health state.
type StatsLoop struct {
	Logger    *zap.Logger
	Client    *fetch.Client
	Instances repo.InstanceStore
	Stats     repo.StatsStore
	Interval  time.Duration
	Path      string
	Overrides config.Hosts
}

func (l *StatsLoop) Run(ctx context.Context) {
	t := time.NewTicker(l.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("stats_loop_stopped")
			return
		case <-t.C:
			l.runOnce(ctx)
		}
	}
}

func (l *StatsLoop) runOnce(ctx context.Context) {
	instances, err := l.Instances.ListEnabled(ctx)
	if err != nil {
		l.Logger.Warn("stats_list_error", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	collected := 0
	for _, inst := range instances {
		if ctx.Err() != nil {
			return
		}
		if l.collectOne(ctx, inst, now) {
			collected++
		}
	}
	l.Logger.Info("stats_collected",
		zap.Int("hosts", collected),
		zap.Int("fleet", len(instances)))
}

func (l *StatsLoop) collectOne(ctx context.Context, inst domain.Instance, now time.Time) bool {
	target, ok := l.statsURL(inst)
	if !ok {
		return false
	}
	over := l.Overrides.Override(inst.Domain)

	_, body, ferr := l.Client.Get(ctx, target, over.Bearer)
	if ferr != nil {
		return false
	}
	var payload healthPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		l.Logger.Debug("stats_parse_error",
			zap.String("domain", inst.Domain),
			zap.Error(err))
		return false
	}
	pool := payload.Accounts
	if pool == nil {
		pool = payload.Sessions
	}
	if pool == nil {
		return false
	}

	snap := &domain.StatsSnapshot{
		InstanceID:      inst.ID,
		At:              now,
		TotalAccounts:   pool.Total,
		LimitedAccounts: pool.Limited,
		TotalRequests:   payload.Requests.Total,
	}
	if err := l.Stats.AppendStats(ctx, snap); err != nil {
		l.Logger.Warn("stats_append_error",
			zap.String("domain", inst.Domain),
			zap.Error(err))
		return false
	}
	return true
}

func (l *StatsLoop) statsURL(inst domain.Instance) (string, bool) {
	base, err := url.Parse(inst.URL)
	if err != nil || base.Hostname() == "" {
		return "", false
	}
	over := l.Overrides.Override(inst.Domain)
	path := l.Path
	if over.StatsPath != "" {
		path = over.StatsPath
	}
	u := *base
	u.Path = path
	u.RawQuery = over.StatsQuery
	return u.String(), true
}

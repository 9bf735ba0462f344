package scoring

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
	"github.com/mirrorwatch/mirrorwatch/internal/repo"
)

// Windowed availability horizons. The long window doubles as the retention
// horizon for health checks.
const (
	WindowShort = 3 * time.Hour
	WindowMid   = 30 * 24 * time.Hour
	WindowLong  = 120 * 24 * time.Hour
)

// Weights of the score terms. Policy constants, tunable; the invariant tests
// hold is monotonicity, not the exact values.
const (
	weightShort     = 0.3
	weightMid       = 0.2
	weightLong      = 0.2
	creditLatest    = 0.1
	creditOutdated  = 0.05
	recentCheckSpan = 22
)

// CheckMark is one cell of the recent red/green strip.
type CheckMark struct {
	At      time.Time `json:"at"`
	Healthy bool      `json:"healthy"`
}

// Snapshot is the current, comparable view of one instance.
type Snapshot struct {
	Domain       string  `json:"domain"`
	URL          string  `json:"url"`
	Country      string  `json:"country"`
	IsAdditional bool    `json:"is_additional"`
	IsBadHost    bool    `json:"is_bad_host"`
	Healthy      bool    `json:"healthy"`
	Points       int     `json:"points"`

	// nil means "never seen" in that window, not zero percent
	Pct3h   *float64 `json:"pct_3h"`
	Pct30d  *float64 `json:"pct_30d"`
	Pct120d *float64 `json:"pct_120d"`

	AvgResponseMS *int64 `json:"avg_response_ms"`
	MinResponseMS *int64 `json:"min_response_ms"`
	MaxResponseMS *int64 `json:"max_response_ms"`

	Version         *string `json:"version"`
	VersionURL      *string `json:"version_url"`
	IsUpstream      bool    `json:"is_upstream"`
	IsLatestVersion bool    `json:"is_latest_version"`
	RSS             bool    `json:"rss"`
	Connectivity    string  `json:"connectivity"`

	LastHealthy  *time.Time  `json:"last_healthy"`
	RecentChecks []CheckMark `json:"recent_checks"`
}

// Overview is the ranked fleet view handed to the presentation layer.
type Overview struct {
	Hosts        []Snapshot `json:"hosts"`
	UpstreamHead string     `json:"upstream_head"`
	GeneratedAt  time.Time  `json:"generated_at"`
}

// Engine derives scores from stored history. It owns no state of its own;
// the store is the single source of truth.
type Engine struct {
	Instances repo.InstanceStore
	Results   repo.ResultStore
}

// Overview computes a ranked snapshot of every enabled instance.
func (e *Engine) Overview(ctx context.Context, upstreamHead string) (Overview, error) {
	now := time.Now().UTC()
	instances, err := e.Instances.ListEnabled(ctx)
	if err != nil {
		return Overview{}, err
	}
	ov := Overview{Hosts: make([]Snapshot, 0, len(instances)), UpstreamHead: upstreamHead, GeneratedAt: now}
	if len(instances) == 0 {
		return ov, nil
	}

	short, err := e.Results.WindowStats(ctx, now.Add(-WindowShort), now)
	if err != nil {
		return Overview{}, err
	}
	mid, err := e.Results.WindowStats(ctx, now.Add(-WindowMid), now)
	if err != nil {
		return Overview{}, err
	}
	long, err := e.Results.WindowStats(ctx, now.Add(-WindowLong), now)
	if err != nil {
		return Overview{}, err
	}
	latest, err := e.Results.LatestByInstance(ctx)
	if err != nil {
		return Overview{}, err
	}
	pings, err := e.Results.ResponseStats(ctx, now.Add(-WindowShort))
	if err != nil {
		return Overview{}, err
	}
	lastHealthy, err := e.Results.LastHealthy(ctx)
	if err != nil {
		return Overview{}, err
	}

	for _, inst := range instances {
		snap := newSnapshot(inst, short[inst.ID], mid[inst.ID], long[inst.ID])
		if last, ok := latest[inst.ID]; ok {
			applyLatest(&snap, last)
		}
		if ps, ok := pings[inst.ID]; ok {
			applyResponse(&snap, ps)
		}
		if t, ok := lastHealthy[inst.ID]; ok {
			lh := t
			snap.LastHealthy = &lh
		}
		snap.Points = Points(ratio(short[inst.ID]), ratio(mid[inst.ID]), ratio(long[inst.ID]),
			snap.IsUpstream, snap.IsLatestVersion)

		recent, err := e.Results.Recent(ctx, inst.ID, recentCheckSpan)
		if err != nil {
			return Overview{}, err
		}
		snap.RecentChecks = marks(recent)

		ov.Hosts = append(ov.Hosts, snap)
	}

	Rank(ov.Hosts)
	return ov, nil
}

// Host computes the snapshot for a single instance from per-instance queries,
// enabled or not. Disabled hosts keep rendering their history; nil only when
// the domain is unknown.
func (e *Engine) Host(ctx context.Context, dom string) (*Snapshot, error) {
	inst, err := e.Instances.GetByDomain(ctx, dom)
	if err != nil || inst == nil {
		return nil, err
	}
	now := time.Now().UTC()

	short, err := e.Results.WindowStatsFor(ctx, inst.ID, now.Add(-WindowShort), now)
	if err != nil {
		return nil, err
	}
	mid, err := e.Results.WindowStatsFor(ctx, inst.ID, now.Add(-WindowMid), now)
	if err != nil {
		return nil, err
	}
	long, err := e.Results.WindowStatsFor(ctx, inst.ID, now.Add(-WindowLong), now)
	if err != nil {
		return nil, err
	}
	snap := newSnapshot(*inst, short, mid, long)

	recent, err := e.Results.Recent(ctx, inst.ID, recentCheckSpan)
	if err != nil {
		return nil, err
	}
	if len(recent) > 0 {
		applyLatest(&snap, recent[len(recent)-1])
	}
	snap.RecentChecks = marks(recent)

	resp, err := e.Results.ResponseStatsFor(ctx, inst.ID, now.Add(-WindowShort))
	if err != nil {
		return nil, err
	}
	applyResponse(&snap, resp)

	snap.LastHealthy, err = e.Results.LastHealthyFor(ctx, inst.ID)
	if err != nil {
		return nil, err
	}

	snap.Points = Points(ratio(short), ratio(mid), ratio(long),
		snap.IsUpstream, snap.IsLatestVersion)
	return &snap, nil
}

func newSnapshot(inst domain.Instance, short, mid, long repo.WindowStats) Snapshot {
	return Snapshot{
		Domain:       inst.Domain,
		URL:          inst.URL,
		Country:      inst.Country,
		IsAdditional: inst.IsAdditional,
		IsBadHost:    inst.IsBadHost,
		Connectivity: domain.ConnUnknown.String(),
		Pct3h:        pct(short),
		Pct30d:       pct(mid),
		Pct120d:      pct(long),
	}
}

func applyLatest(s *Snapshot, last domain.HealthCheckResult) {
	s.Healthy = last.Healthy
	s.Version = last.Version
	s.VersionURL = last.VersionURL
	s.IsUpstream = last.IsUpstream
	s.IsLatestVersion = last.IsLatestVersion
	s.RSS = last.RSS
	s.Connectivity = last.Connectivity.String()
}

func applyResponse(s *Snapshot, rs repo.ResponseStats) {
	s.AvgResponseMS = rs.AvgMS
	s.MinResponseMS = rs.MinMS
	s.MaxResponseMS = rs.MaxMS
}

func marks(results []domain.HealthCheckResult) []CheckMark {
	out := make([]CheckMark, 0, len(results))
	for _, r := range results {
		out = append(out, CheckMark{At: r.CheckedAt, Healthy: r.Healthy})
	}
	return out
}

// Points combines windowed availability and version freshness into a single
// sortable score. Each ratio is in [0,1]; the whole sum is gated by the
// short-window ratio so a currently-dead host scores near zero no matter how
// good its past was. Monotone in every ratio and in the version status.
func Points(short, mid, long float64, isUpstream, isLatest bool) int {
	version := 0.0
	switch {
	case isLatest:
		version = creditLatest
	case isUpstream:
		version = creditOutdated
	}
	raw := short * (weightShort*short + weightMid*mid + weightLong*long + version)
	return int(math.Round(raw * 100))
}

// Rank orders snapshots for display: scored hosts by points (ties by long
// availability), zero-point hosts by how recently they were last healthy,
// never-healthy hosts last. Bad hosts are excluded from the comparison and
// sink to the end, their health signal is known-unreliable.
func Rank(hosts []Snapshot) {
	sort.SliceStable(hosts, func(i, j int) bool {
		a, b := hosts[i], hosts[j]
		if a.IsBadHost != b.IsBadHost {
			return !a.IsBadHost
		}
		if (a.Points > 0) != (b.Points > 0) {
			return a.Points > 0
		}
		if a.Points > 0 {
			if a.Points != b.Points {
				return a.Points > b.Points
			}
			av, bv := deref(a.Pct120d), deref(b.Pct120d)
			if av != bv {
				return av > bv
			}
			return a.Domain < b.Domain
		}
		switch {
		case a.LastHealthy == nil && b.LastHealthy == nil:
			return a.Domain < b.Domain
		case a.LastHealthy == nil:
			return false
		case b.LastHealthy == nil:
			return true
		case !a.LastHealthy.Equal(*b.LastHealthy):
			return a.LastHealthy.After(*b.LastHealthy)
		}
		return a.Domain < b.Domain
	})
}

func pct(ws repo.WindowStats) *float64 {
	if ws.Total == 0 {
		return nil
	}
	v := float64(ws.Healthy) / float64(ws.Total) * 100
	return &v
}

func ratio(ws repo.WindowStats) float64 {
	if ws.Total == 0 {
		return 0
	}
	return float64(ws.Healthy) / float64(ws.Total)
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

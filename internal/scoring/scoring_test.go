package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
	"github.com/mirrorwatch/mirrorwatch/internal/repo/memory"
)

func TestPoints_Bounds(t *testing.T) {
	grid := []float64{0, 0.25, 0.5, 0.75, 1}
	for _, s := range grid {
		for _, m := range grid {
			for _, l := range grid {
				for _, latest := range []bool{false, true} {
					p := Points(s, m, l, latest, latest)
					if p < 0 || p > 100 {
						t.Fatalf("Points(%v,%v,%v,latest=%v) = %d, want within [0,100]",
							s, m, l, latest, p)
					}
				}
			}
		}
	}
	if p := Points(1, 1, 1, true, true); p != 80 {
		t.Fatalf("perfect latest host: got %d, want 80", p)
	}
	if p := Points(0, 1, 1, true, true); p != 0 {
		t.Fatalf("currently-dead host must score 0, got %d", p)
	}
}

func TestPoints_Monotonic(t *testing.T) {
	if Points(0.9, 0.5, 0.5, false, false) < Points(0.5, 0.5, 0.5, false, false) {
		t.Fatal("more short-window availability must not lower the score")
	}
	if Points(0.5, 0.9, 0.5, false, false) < Points(0.5, 0.5, 0.5, false, false) {
		t.Fatal("more mid-window availability must not lower the score")
	}
	if Points(0.5, 0.5, 0.9, false, false) < Points(0.5, 0.5, 0.5, false, false) {
		t.Fatal("more long-window availability must not lower the score")
	}

	base := Points(0.8, 0.8, 0.8, false, false)
	outdated := Points(0.8, 0.8, 0.8, true, false)
	latest := Points(0.8, 0.8, 0.8, true, true)
	if !(base <= outdated && outdated <= latest) {
		t.Fatalf("version credit must be ordered: none=%d outdated=%d latest=%d",
			base, outdated, latest)
	}
}

func TestRank_Order(t *testing.T) {
	now := time.Now().UTC()
	older := now.Add(-2 * time.Hour)
	hosts := []Snapshot{
		{Domain: "never.example", Points: 0},
		{Domain: "recent-down.example", Points: 0, LastHealthy: &now},
		{Domain: "low.example", Points: 10},
		{Domain: "bad.example", Points: 90, IsBadHost: true},
		{Domain: "high.example", Points: 70},
		{Domain: "old-down.example", Points: 0, LastHealthy: &older},
	}
	Rank(hosts)

	want := []string{
		"high.example",
		"low.example",
		"recent-down.example",
		"old-down.example",
		"never.example",
		"bad.example",
	}
	for i, dom := range want {
		if hosts[i].Domain != dom {
			t.Fatalf("position %d: got %s, want %s", i, hosts[i].Domain, dom)
		}
	}
}

func TestRank_TieBreakByLongWindow(t *testing.T) {
	hi, lo := 99.0, 42.0
	hosts := []Snapshot{
		{Domain: "b.example", Points: 50, Pct120d: &lo},
		{Domain: "a.example", Points: 50, Pct120d: &hi},
	}
	Rank(hosts)
	if hosts[0].Domain != "a.example" {
		t.Fatalf("equal points must rank by long-window availability, got %s first", hosts[0].Domain)
	}
}

func TestOverview_FromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := &Engine{Instances: store, Results: store}

	up := domain.Instance{Domain: "up.example", URL: "https://up.example", Enabled: true}
	down := domain.Instance{Domain: "down.example", URL: "https://down.example", Enabled: true}
	off := domain.Instance{Domain: "off.example", URL: "https://off.example", Enabled: false}
	for _, inst := range []*domain.Instance{&up, &down, &off} {
		if err := store.Upsert(ctx, inst); err != nil {
			t.Fatal(err)
		}
	}

	now := time.Now().UTC()
	ms := int64(120)
	for i := 0; i < 4; i++ {
		at := now.Add(-time.Duration(i) * 10 * time.Minute)
		if err := store.Append(ctx, &domain.HealthCheckResult{
			InstanceID: up.ID, CheckedAt: at, Healthy: true, ResponseMS: &ms,
			IsUpstream: true, IsLatestVersion: true, RSS: true,
		}); err != nil {
			t.Fatal(err)
		}
		if err := store.Append(ctx, &domain.HealthCheckResult{
			InstanceID: down.ID, CheckedAt: at, Healthy: false,
		}); err != nil {
			t.Fatal(err)
		}
	}

	ov, err := eng.Overview(ctx, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if ov.UpstreamHead != "abc123" {
		t.Fatalf("upstream head: got %q", ov.UpstreamHead)
	}
	if len(ov.Hosts) != 2 {
		t.Fatalf("disabled hosts must not appear: got %d hosts", len(ov.Hosts))
	}
	if ov.Hosts[0].Domain != "up.example" {
		t.Fatalf("healthy host must rank first, got %s", ov.Hosts[0].Domain)
	}

	first := ov.Hosts[0]
	if !first.Healthy || first.Points <= 0 {
		t.Fatalf("healthy host snapshot: %+v", first)
	}
	if first.Pct3h == nil || *first.Pct3h != 100 {
		t.Fatalf("want 100%% short-window availability, got %v", first.Pct3h)
	}
	if first.AvgResponseMS == nil || *first.AvgResponseMS != ms {
		t.Fatalf("want avg response %dms, got %v", ms, first.AvgResponseMS)
	}
	if len(first.RecentChecks) != 4 {
		t.Fatalf("want 4 recent checks, got %d", len(first.RecentChecks))
	}

	second := ov.Hosts[1]
	if second.Points != 0 {
		t.Fatalf("never-healthy host must score 0, got %d", second.Points)
	}
	if second.Pct3h == nil || *second.Pct3h != 0 {
		t.Fatalf("want 0%% availability, got %v", second.Pct3h)
	}
	if second.LastHealthy != nil {
		t.Fatal("never-healthy host must have nil LastHealthy")
	}
}

func TestHost_IncludesDisabledInstances(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := &Engine{Instances: store, Results: store}

	inst := domain.Instance{Domain: "gone.example", URL: "https://gone.example", Enabled: true}
	if err := store.Upsert(ctx, &inst); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	ms := int64(150)
	for i := 0; i < 3; i++ {
		if err := store.Append(ctx, &domain.HealthCheckResult{
			InstanceID: inst.ID,
			CheckedAt:  now.Add(-time.Duration(i) * 10 * time.Minute),
			Healthy:    true,
			ResponseMS: &ms,
			RSS:        true,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.SetEnabled(ctx, inst.ID, false); err != nil {
		t.Fatal(err)
	}

	snap, err := eng.Host(ctx, "gone.example")
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil {
		t.Fatal("disabled host with history must still get a snapshot")
	}
	if snap.Domain != "gone.example" || !snap.Healthy || !snap.RSS {
		t.Fatalf("snapshot: %+v", snap)
	}
	if snap.Pct3h == nil || *snap.Pct3h != 100 {
		t.Fatalf("short-window availability: %v", snap.Pct3h)
	}
	if snap.Points <= 0 {
		t.Fatalf("points: %d", snap.Points)
	}
	if snap.AvgResponseMS == nil || *snap.AvgResponseMS != ms {
		t.Fatalf("avg response: %v", snap.AvgResponseMS)
	}
	if snap.LastHealthy == nil {
		t.Fatal("last healthy must be set")
	}
	if len(snap.RecentChecks) != 3 {
		t.Fatalf("recent checks: %d", len(snap.RecentChecks))
	}

	if snap, err := eng.Host(ctx, "nope.example"); err != nil || snap != nil {
		t.Fatalf("unknown domain must yield nil, nil: %v %v", snap, err)
	}
}

func TestOverview_NoSamplesMeansNilPercentages(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := &Engine{Instances: store, Results: store}

	inst := domain.Instance{Domain: "new.example", URL: "https://new.example", Enabled: true}
	if err := store.Upsert(ctx, &inst); err != nil {
		t.Fatal(err)
	}

	ov, err := eng.Overview(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(ov.Hosts) != 1 {
		t.Fatalf("got %d hosts", len(ov.Hosts))
	}
	h := ov.Hosts[0]
	if h.Pct3h != nil || h.Pct30d != nil || h.Pct120d != nil {
		t.Fatalf("never-probed host must report nil percentages, got %+v", h)
	}
	if h.Points != 0 {
		t.Fatalf("never-probed host must score 0, got %d", h.Points)
	}
	if h.Connectivity != "unknown" {
		t.Fatalf("want unknown connectivity, got %q", h.Connectivity)
	}
}

package repo

import (
	"context"
	"time"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
)

// Ports (interfaces) — swap in any DB adapter later.

type InstanceStore interface {
	// Upsert inserts by domain or updates URL/country/flags/enabled of the
	// existing row. The instance's ID is filled in on return.
	Upsert(ctx context.Context, inst *domain.Instance) error
	List(ctx context.Context) ([]domain.Instance, error)
	ListEnabled(ctx context.Context) ([]domain.Instance, error)
	GetByDomain(ctx context.Context, dom string) (*domain.Instance, error)
	SetEnabled(ctx context.Context, id domain.InstanceID, enabled bool) error
}

// WindowStats is the healthy/total tally for one instance inside a window.
type WindowStats struct {
	Healthy int
	Total   int
}

// ResponseStats aggregates response times of healthy checks in a window.
type ResponseStats struct {
	AvgMS *int64
	MinMS *int64
	MaxMS *int64
}

type ResultStore interface {
	Append(ctx context.Context, r *domain.HealthCheckResult) error
	// LatestByInstance returns the most recent result per instance, for
	// every instance that has at least one.
	LatestByInstance(ctx context.Context) (map[domain.InstanceID]domain.HealthCheckResult, error)
	// Recent returns the newest limit results for one instance, oldest first.
	Recent(ctx context.Context, id domain.InstanceID, limit int) ([]domain.HealthCheckResult, error)
	// Range returns results in [from, to) for one instance, oldest first.
	Range(ctx context.Context, id domain.InstanceID, from, to time.Time) ([]domain.HealthCheckResult, error)
	// WindowStats tallies healthy/total per instance over [from, to).
	WindowStats(ctx context.Context, from, to time.Time) (map[domain.InstanceID]WindowStats, error)
	// WindowStatsFor tallies healthy/total for one instance over [from, to).
	WindowStatsFor(ctx context.Context, id domain.InstanceID, from, to time.Time) (WindowStats, error)
	// ResponseStats aggregates response times of healthy checks since the
	// given time, per instance.
	ResponseStats(ctx context.Context, since time.Time) (map[domain.InstanceID]ResponseStats, error)
	// ResponseStatsFor aggregates response times of healthy checks for one
	// instance since the given time.
	ResponseStatsFor(ctx context.Context, id domain.InstanceID, since time.Time) (ResponseStats, error)
	// LastHealthy returns the time of the newest healthy result per instance.
	LastHealthy(ctx context.Context) (map[domain.InstanceID]time.Time, error)
	// LastHealthyFor returns the time of the newest healthy result for one
	// instance, nil when it has never been healthy.
	LastHealthyFor(ctx context.Context, id domain.InstanceID) (*time.Time, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type ErrorStore interface {
	AppendError(ctx context.Context, e *domain.ErrorRecord) error
	// RecentErrors returns the newest limit records for one instance, newest first.
	RecentErrors(ctx context.Context, id domain.InstanceID, limit int) ([]domain.ErrorRecord, error)
	// TrimToNewest deletes all but the newest keep records per instance and
	// returns the number deleted. Eviction is strictly oldest-first.
	TrimToNewest(ctx context.Context, id domain.InstanceID, keep int) (int64, error)
}

type StatsStore interface {
	AppendStats(ctx context.Context, s *domain.StatsSnapshot) error
	// RangeStats returns snapshots in [from, to) for one instance, oldest first.
	RangeStats(ctx context.Context, id domain.InstanceID, from, to time.Time) ([]domain.StatsSnapshot, error)
}

// Store bundles the four ports; both adapters implement all of them.
type Store interface {
	InstanceStore
	ResultStore
	ErrorStore
	StatsStore
}

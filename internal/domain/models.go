package domain

import "time"

type InstanceID int64

// Instance is one tracked mirror host. Instances are created the first time
// a reconciliation pass sees their domain and are never hard-deleted;
// disabling keeps the history attributable.
type Instance struct {
	ID           InstanceID `json:"id"`
	Domain       string     `json:"domain"`
	URL          string     `json:"url"`
	Country      string     `json:"country"`
	Enabled      bool       `json:"enabled"`
	IsAdditional bool       `json:"is_additional"`
	IsBadHost    bool       `json:"is_bad_host"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Connectivity classifies which address families a host serves.
type Connectivity int

const (
	ConnUnknown Connectivity = iota
	ConnIPv4
	ConnIPv6
	ConnDual
)

func (c Connectivity) String() string {
	switch c {
	case ConnIPv4:
		return "ipv4"
	case ConnIPv6:
		return "ipv6"
	case ConnDual:
		return "dual"
	default:
		return "unknown"
	}
}

// VersionStatus relates a version reported by an instance to the upstream
// branch tracked by the oracle.
type VersionStatus int

const (
	// VersionUnknown: no version reported or the commit can't be resolved.
	VersionUnknown VersionStatus = iota
	// VersionFork: the commit exists upstream but isn't on the tracked branch.
	VersionFork
	// VersionOutdated: on the tracked branch, behind its head.
	VersionOutdated
	// VersionLatest: equals the tracked branch head.
	VersionLatest
)

func (v VersionStatus) Upstream() bool {
	return v == VersionOutdated || v == VersionLatest
}

func (v VersionStatus) String() string {
	switch v {
	case VersionFork:
		return "fork"
	case VersionOutdated:
		return "outdated"
	case VersionLatest:
		return "latest"
	default:
		return "unknown"
	}
}

// HealthCheckResult is one probe outcome, append-only. Exactly one per
// (instance, tick); ResponseMS is nil when the host never answered.
type HealthCheckResult struct {
	ID              int64        `json:"id"`
	InstanceID      InstanceID   `json:"instance_id"`
	CheckedAt       time.Time    `json:"checked_at"`
	Healthy         bool         `json:"healthy"`
	ResponseMS      *int64       `json:"response_ms"`
	HTTPStatus      *int         `json:"http_status"`
	Version         *string      `json:"version"`
	VersionURL      *string      `json:"version_url"`
	IsUpstream      bool         `json:"is_upstream"`
	IsLatestVersion bool         `json:"is_latest_version"`
	RSS             bool         `json:"rss"`
	Connectivity    Connectivity `json:"connectivity"`
}

type ErrorCategory string

const (
	ErrTransientNetwork ErrorCategory = "transient_network"
	ErrContentMismatch  ErrorCategory = "content_mismatch"
	ErrParse            ErrorCategory = "parse_error"
	ErrKnownBadResponse ErrorCategory = "known_bad_response"
)

// ErrorRecord is one failure detail for a host, kept separate from
// HealthCheckResult so it can be retained independently (bounded per host).
type ErrorRecord struct {
	ID         int64         `json:"id"`
	InstanceID InstanceID    `json:"instance_id"`
	At         time.Time     `json:"at"`
	Category   ErrorCategory `json:"category"`
	Message    string        `json:"message"`
	HTTPStatus *int          `json:"http_status"`
	HTTPBody   *string       `json:"http_body"`
}

// StatsSnapshot is one rollup of the counters an instance self-reports on
// its stats endpoint. Never mutated after creation.
type StatsSnapshot struct {
	ID              int64      `json:"id"`
	InstanceID      InstanceID `json:"instance_id"`
	At              time.Time  `json:"at"`
	TotalAccounts   int        `json:"total_accounts"`
	LimitedAccounts int        `json:"limited_accounts"`
	TotalRequests   int64      `json:"total_requests"`
}

package postgres

import (
	"context"
	"time"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
	"github.com/mirrorwatch/mirrorwatch/internal/repo"
)

// ---- ResultStore ----

const resultCols = `instance_id, checked_at, healthy, response_ms, http_status,
	version, version_url, is_upstream, is_latest_version, rss, connectivity`

func (s *Store) Append(ctx context.Context, r *domain.HealthCheckResult) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO health_checks (`+resultCols+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		r.InstanceID, r.CheckedAt, r.Healthy, r.ResponseMS, r.HTTPStatus,
		r.Version, r.VersionURL, r.IsUpstream, r.IsLatestVersion, r.RSS, r.Connectivity)
	return row.Scan(&r.ID)
}

func (s *Store) LatestByInstance(ctx context.Context) (map[domain.InstanceID]domain.HealthCheckResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (instance_id) id, `+resultCols+`
		   FROM health_checks
		  ORDER BY instance_id, checked_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[domain.InstanceID]domain.HealthCheckResult)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out[r.InstanceID] = r
	}
	return out, rows.Err()
}

func (s *Store) Recent(ctx context.Context, id domain.InstanceID, limit int) ([]domain.HealthCheckResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, `+resultCols+` FROM (
			SELECT id, `+resultCols+`
			  FROM health_checks
			 WHERE instance_id = $1
			 ORDER BY checked_at DESC
			 LIMIT $2
		 ) newest ORDER BY checked_at ASC`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectResults(rows)
}

func (s *Store) Range(ctx context.Context, id domain.InstanceID, from, to time.Time) ([]domain.HealthCheckResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, `+resultCols+`
		   FROM health_checks
		  WHERE instance_id = $1 AND checked_at >= $2 AND checked_at < $3
		  ORDER BY checked_at ASC`, id, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectResults(rows)
}

func (s *Store) WindowStats(ctx context.Context, from, to time.Time) (map[domain.InstanceID]repo.WindowStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT instance_id,
		        COUNT(*) FILTER (WHERE healthy) AS good,
		        COUNT(*) AS total
		   FROM health_checks
		  WHERE checked_at >= $1 AND checked_at < $2
		  GROUP BY instance_id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[domain.InstanceID]repo.WindowStats)
	for rows.Next() {
		var id domain.InstanceID
		var ws repo.WindowStats
		if err := rows.Scan(&id, &ws.Healthy, &ws.Total); err != nil {
			return nil, err
		}
		out[id] = ws
	}
	return out, rows.Err()
}

func (s *Store) WindowStatsFor(ctx context.Context, id domain.InstanceID, from, to time.Time) (repo.WindowStats, error) {
	var ws repo.WindowStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE healthy), COUNT(*)
		   FROM health_checks
		  WHERE instance_id = $1 AND checked_at >= $2 AND checked_at < $3`,
		id, from, to).Scan(&ws.Healthy, &ws.Total)
	return ws, err
}

func (s *Store) ResponseStats(ctx context.Context, since time.Time) (map[domain.InstanceID]repo.ResponseStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT instance_id,
		        CAST(AVG(response_ms) AS BIGINT),
		        MIN(response_ms),
		        MAX(response_ms)
		   FROM health_checks
		  WHERE healthy AND response_ms IS NOT NULL AND checked_at >= $1
		  GROUP BY instance_id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[domain.InstanceID]repo.ResponseStats)
	for rows.Next() {
		var id domain.InstanceID
		var rs repo.ResponseStats
		if err := rows.Scan(&id, &rs.AvgMS, &rs.MinMS, &rs.MaxMS); err != nil {
			return nil, err
		}
		out[id] = rs
	}
	return out, rows.Err()
}

// ResponseStatsFor aggregates over zero rows as NULLs, which scan straight
// into the nullable stats fields.
func (s *Store) ResponseStatsFor(ctx context.Context, id domain.InstanceID, since time.Time) (repo.ResponseStats, error) {
	var rs repo.ResponseStats
	err := s.pool.QueryRow(ctx,
		`SELECT CAST(AVG(response_ms) AS BIGINT), MIN(response_ms), MAX(response_ms)
		   FROM health_checks
		  WHERE instance_id = $1 AND healthy AND response_ms IS NOT NULL AND checked_at >= $2`,
		id, since).Scan(&rs.AvgMS, &rs.MinMS, &rs.MaxMS)
	return rs, err
}

func (s *Store) LastHealthy(ctx context.Context) (map[domain.InstanceID]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT instance_id, MAX(checked_at)
		   FROM health_checks
		  WHERE healthy
		  GROUP BY instance_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[domain.InstanceID]time.Time)
	for rows.Next() {
		var id domain.InstanceID
		var t time.Time
		if err := rows.Scan(&id, &t); err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, rows.Err()
}

func (s *Store) LastHealthyFor(ctx context.Context, id domain.InstanceID) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(checked_at) FROM health_checks WHERE instance_id = $1 AND healthy`,
		id).Scan(&t)
	return t, err
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM health_checks WHERE checked_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (domain.HealthCheckResult, error) {
	var r domain.HealthCheckResult
	err := row.Scan(&r.ID, &r.InstanceID, &r.CheckedAt, &r.Healthy, &r.ResponseMS,
		&r.HTTPStatus, &r.Version, &r.VersionURL, &r.IsUpstream, &r.IsLatestVersion,
		&r.RSS, &r.Connectivity)
	return r, err
}

type resultRows interface {
	Next() bool
	Err() error
	Scan(dest ...any) error
}

func collectResults(rows resultRows) ([]domain.HealthCheckResult, error) {
	var out []domain.HealthCheckResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

package postgres

import (
	"context"
	"time"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
)

// ---- StatsStore ----

func (s *Store) AppendStats(ctx context.Context, snap *domain.StatsSnapshot) error {
	if snap.At.IsZero() {
		snap.At = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO instance_stats (instance_id, at, total_accounts, limited_accounts, total_requests)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		snap.InstanceID, snap.At, snap.TotalAccounts, snap.LimitedAccounts, snap.TotalRequests)
	return row.Scan(&snap.ID)
}

func (s *Store) RangeStats(ctx context.Context, id domain.InstanceID, from, to time.Time) ([]domain.StatsSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, instance_id, at, total_accounts, limited_accounts, total_requests
		   FROM instance_stats
		  WHERE instance_id = $1 AND at >= $2 AND at < $3
		  ORDER BY at ASC`, id, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.StatsSnapshot
	for rows.Next() {
		var snap domain.StatsSnapshot
		if err := rows.Scan(&snap.ID, &snap.InstanceID, &snap.At,
			&snap.TotalAccounts, &snap.LimitedAccounts, &snap.TotalRequests); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

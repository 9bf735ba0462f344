package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
)

// ---- InstanceStore ----

func (s *Store) Upsert(ctx context.Context, inst *domain.Instance) error {
	now := time.Now().UTC()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now
	row := s.pool.QueryRow(ctx,
		`INSERT INTO instances (domain, url, country, enabled, is_additional, is_bad_host, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (domain) DO UPDATE SET
			url = EXCLUDED.url,
			country = EXCLUDED.country,
			enabled = EXCLUDED.enabled,
			is_additional = EXCLUDED.is_additional,
			is_bad_host = EXCLUDED.is_bad_host,
			updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		inst.Domain, inst.URL, inst.Country, inst.Enabled,
		inst.IsAdditional, inst.IsBadHost, inst.CreatedAt, inst.UpdatedAt)
	return row.Scan(&inst.ID, &inst.CreatedAt)
}

func (s *Store) List(ctx context.Context) ([]domain.Instance, error) {
	return s.listWhere(ctx, ``)
}

func (s *Store) ListEnabled(ctx context.Context) ([]domain.Instance, error) {
	return s.listWhere(ctx, `WHERE enabled`)
}

func (s *Store) listWhere(ctx context.Context, where string) ([]domain.Instance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, domain, url, country, enabled, is_additional, is_bad_host, created_at, updated_at
		   FROM instances `+where+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Instance
	for rows.Next() {
		var i domain.Instance
		if err := rows.Scan(&i.ID, &i.Domain, &i.URL, &i.Country, &i.Enabled,
			&i.IsAdditional, &i.IsBadHost, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Store) GetByDomain(ctx context.Context, dom string) (*domain.Instance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, domain, url, country, enabled, is_additional, is_bad_host, created_at, updated_at
		   FROM instances WHERE domain = $1`, dom)
	var i domain.Instance
	err := row.Scan(&i.ID, &i.Domain, &i.URL, &i.Country, &i.Enabled,
		&i.IsAdditional, &i.IsBadHost, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (s *Store) SetEnabled(ctx context.Context, id domain.InstanceID, enabled bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE instances SET enabled = $2, updated_at = $3 WHERE id = $1`,
		id, enabled, time.Now().UTC())
	return err
}

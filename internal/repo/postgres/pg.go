package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirrorwatch/mirrorwatch/internal/repo"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ repo.Store = (*Store)(nil)

func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Ping(ctxPing); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: p}
	if err := s.migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.pool.Close() }

// migrate creates the schema. Scoring needs "count healthy in [t0,t1)" and
// "most recent N" per instance to be cheap, hence the composite
// (instance_id, checked_at) indexes.
func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instances (
			id            BIGSERIAL PRIMARY KEY,
			domain        TEXT NOT NULL UNIQUE,
			url           TEXT NOT NULL,
			country       TEXT NOT NULL DEFAULT '',
			enabled       BOOLEAN NOT NULL DEFAULT TRUE,
			is_additional BOOLEAN NOT NULL DEFAULT FALSE,
			is_bad_host   BOOLEAN NOT NULL DEFAULT FALSE,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS health_checks (
			id                BIGSERIAL PRIMARY KEY,
			instance_id       BIGINT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
			checked_at        TIMESTAMPTZ NOT NULL,
			healthy           BOOLEAN NOT NULL,
			response_ms       BIGINT,
			http_status       INT,
			version           TEXT,
			version_url       TEXT,
			is_upstream       BOOLEAN NOT NULL DEFAULT FALSE,
			is_latest_version BOOLEAN NOT NULL DEFAULT FALSE,
			rss               BOOLEAN NOT NULL DEFAULT FALSE,
			connectivity      INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checks_instance_time ON health_checks (instance_id, checked_at)`,
		`CREATE INDEX IF NOT EXISTS idx_checks_time ON health_checks (checked_at)`,
		`CREATE TABLE IF NOT EXISTS check_errors (
			id          BIGSERIAL PRIMARY KEY,
			instance_id BIGINT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
			at          TIMESTAMPTZ NOT NULL,
			category    TEXT NOT NULL,
			message     TEXT NOT NULL,
			http_status INT,
			http_body   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_errors_instance_time ON check_errors (instance_id, at)`,
		`CREATE TABLE IF NOT EXISTS instance_stats (
			id               BIGSERIAL PRIMARY KEY,
			instance_id      BIGINT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
			at               TIMESTAMPTZ NOT NULL,
			total_accounts   INT NOT NULL,
			limited_accounts INT NOT NULL,
			total_requests   BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stats_instance_time ON instance_stats (instance_id, at)`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

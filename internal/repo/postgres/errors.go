package postgres

import (
	"context"
	"time"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
)

// ---- ErrorStore ----

func (s *Store) AppendError(ctx context.Context, e *domain.ErrorRecord) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO check_errors (instance_id, at, category, message, http_status, http_body)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		e.InstanceID, e.At, string(e.Category), e.Message, e.HTTPStatus, e.HTTPBody)
	return row.Scan(&e.ID)
}

func (s *Store) RecentErrors(ctx context.Context, id domain.InstanceID, limit int) ([]domain.ErrorRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, instance_id, at, category, message, http_status, http_body
		   FROM check_errors
		  WHERE instance_id = $1
		  ORDER BY at DESC
		  LIMIT $2`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ErrorRecord
	for rows.Next() {
		var e domain.ErrorRecord
		var cat string
		if err := rows.Scan(&e.ID, &e.InstanceID, &e.At, &cat, &e.Message, &e.HTTPStatus, &e.HTTPBody); err != nil {
			return nil, err
		}
		e.Category = domain.ErrorCategory(cat)
		out = append(out, e)
	}
	return out, rows.Err()
}

// TrimToNewest keeps the newest keep rows for the instance. Ordered by (at, id)
// so same-second records still evict oldest-first.
func (s *Store) TrimToNewest(ctx context.Context, id domain.InstanceID, keep int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM check_errors
		  WHERE instance_id = $1 AND id NOT IN (
			SELECT id FROM check_errors
			 WHERE instance_id = $1
			 ORDER BY at DESC, id DESC
			 LIMIT $2
		 )`, id, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

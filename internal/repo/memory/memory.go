package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
	"github.com/mirrorwatch/mirrorwatch/internal/repo"
)

// Store keeps everything in process memory. It backs tests and runs without
// DATABASE_URL; history disappears with the process.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	instances map[domain.InstanceID]*domain.Instance
	byDomain  map[string]domain.InstanceID
	results   []domain.HealthCheckResult
	errors    map[domain.InstanceID][]domain.ErrorRecord
	stats     map[domain.InstanceID][]domain.StatsSnapshot
}

var _ repo.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		nextID:    1,
		instances: make(map[domain.InstanceID]*domain.Instance),
		byDomain:  make(map[string]domain.InstanceID),
		errors:    make(map[domain.InstanceID][]domain.ErrorRecord),
		stats:     make(map[domain.InstanceID][]domain.StatsSnapshot),
	}
}

// ---- InstanceStore ----

func (m *Store) Upsert(ctx context.Context, inst *domain.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if id, ok := m.byDomain[inst.Domain]; ok {
		cur := m.instances[id]
		cur.URL = inst.URL
		cur.Country = inst.Country
		cur.Enabled = inst.Enabled
		cur.IsAdditional = inst.IsAdditional
		cur.IsBadHost = inst.IsBadHost
		cur.UpdatedAt = now
		*inst = *cur
		return nil
	}
	inst.ID = domain.InstanceID(m.nextID)
	m.nextID++
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now
	cp := *inst
	m.instances[inst.ID] = &cp
	m.byDomain[inst.Domain] = inst.ID
	return nil
}

func (m *Store) List(ctx context.Context) ([]domain.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(func(*domain.Instance) bool { return true }), nil
}

func (m *Store) ListEnabled(ctx context.Context) ([]domain.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(func(i *domain.Instance) bool { return i.Enabled }), nil
}

func (m *Store) listLocked(keep func(*domain.Instance) bool) []domain.Instance {
	out := make([]domain.Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		if keep(inst) {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Store) GetByDomain(ctx context.Context, dom string) (*domain.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byDomain[dom]
	if !ok {
		return nil, nil
	}
	cp := *m.instances[id]
	return &cp, nil
}

func (m *Store) SetEnabled(ctx context.Context, id domain.InstanceID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[id]; ok {
		inst.Enabled = enabled
		inst.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// ---- ResultStore ----

func (m *Store) Append(ctx context.Context, r *domain.HealthCheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.nextID
	m.nextID++
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	m.results = append(m.results, *r)
	return nil
}

func (m *Store) LatestByInstance(ctx context.Context) (map[domain.InstanceID]domain.HealthCheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.InstanceID]domain.HealthCheckResult)
	for _, r := range m.results {
		cur, ok := out[r.InstanceID]
		if !ok || r.CheckedAt.After(cur.CheckedAt) {
			out[r.InstanceID] = r
		}
	}
	return out, nil
}

func (m *Store) Recent(ctx context.Context, id domain.InstanceID, limit int) ([]domain.HealthCheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []domain.HealthCheckResult
	for _, r := range m.results {
		if r.InstanceID == id {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CheckedAt.Before(all[j].CheckedAt) })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *Store) Range(ctx context.Context, id domain.InstanceID, from, to time.Time) ([]domain.HealthCheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.HealthCheckResult
	for _, r := range m.results {
		if r.InstanceID == id && !r.CheckedAt.Before(from) && r.CheckedAt.Before(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedAt.Before(out[j].CheckedAt) })
	return out, nil
}

func (m *Store) WindowStats(ctx context.Context, from, to time.Time) (map[domain.InstanceID]repo.WindowStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.InstanceID]repo.WindowStats)
	for _, r := range m.results {
		if r.CheckedAt.Before(from) || !r.CheckedAt.Before(to) {
			continue
		}
		ws := out[r.InstanceID]
		ws.Total++
		if r.Healthy {
			ws.Healthy++
		}
		out[r.InstanceID] = ws
	}
	return out, nil
}

func (m *Store) WindowStatsFor(ctx context.Context, id domain.InstanceID, from, to time.Time) (repo.WindowStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ws repo.WindowStats
	for _, r := range m.results {
		if r.InstanceID != id || r.CheckedAt.Before(from) || !r.CheckedAt.Before(to) {
			continue
		}
		ws.Total++
		if r.Healthy {
			ws.Healthy++
		}
	}
	return ws, nil
}

func (m *Store) ResponseStats(ctx context.Context, since time.Time) (map[domain.InstanceID]repo.ResponseStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type acc struct {
		sum, n   int64
		min, max int64
	}
	accs := make(map[domain.InstanceID]*acc)
	for _, r := range m.results {
		if !r.Healthy || r.ResponseMS == nil || r.CheckedAt.Before(since) {
			continue
		}
		a, ok := accs[r.InstanceID]
		if !ok {
			a = &acc{min: *r.ResponseMS, max: *r.ResponseMS}
			accs[r.InstanceID] = a
		}
		v := *r.ResponseMS
		a.sum += v
		a.n++
		if v < a.min {
			a.min = v
		}
		if v > a.max {
			a.max = v
		}
	}
	out := make(map[domain.InstanceID]repo.ResponseStats, len(accs))
	for id, a := range accs {
		avg := a.sum / a.n
		mn, mx := a.min, a.max
		out[id] = repo.ResponseStats{AvgMS: &avg, MinMS: &mn, MaxMS: &mx}
	}
	return out, nil
}

func (m *Store) ResponseStatsFor(ctx context.Context, id domain.InstanceID, since time.Time) (repo.ResponseStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rs repo.ResponseStats
	var sum, n int64
	for _, r := range m.results {
		if r.InstanceID != id || !r.Healthy || r.ResponseMS == nil || r.CheckedAt.Before(since) {
			continue
		}
		v := *r.ResponseMS
		sum += v
		n++
		if rs.MinMS == nil || v < *rs.MinMS {
			mn := v
			rs.MinMS = &mn
		}
		if rs.MaxMS == nil || v > *rs.MaxMS {
			mx := v
			rs.MaxMS = &mx
		}
	}
	if n > 0 {
		avg := sum / n
		rs.AvgMS = &avg
	}
	return rs, nil
}

func (m *Store) LastHealthy(ctx context.Context) (map[domain.InstanceID]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.InstanceID]time.Time)
	for _, r := range m.results {
		if r.Healthy && r.CheckedAt.After(out[r.InstanceID]) {
			out[r.InstanceID] = r.CheckedAt
		}
	}
	return out, nil
}

func (m *Store) LastHealthyFor(ctx context.Context, id domain.InstanceID) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best time.Time
	for _, r := range m.results {
		if r.InstanceID == id && r.Healthy && r.CheckedAt.After(best) {
			best = r.CheckedAt
		}
	}
	if best.IsZero() {
		return nil, nil
	}
	return &best, nil
}

func (m *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.results[:0]
	var deleted int64
	for _, r := range m.results {
		if r.CheckedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.results = kept
	return deleted, nil
}

// ---- ErrorStore ----

func (m *Store) AppendError(ctx context.Context, e *domain.ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID
	m.nextID++
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	m.errors[e.InstanceID] = append(m.errors[e.InstanceID], *e)
	return nil
}

func (m *Store) RecentErrors(ctx context.Context, id domain.InstanceID, limit int) ([]domain.ErrorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.errors[id]
	out := make([]domain.ErrorRecord, 0, limit)
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

func (m *Store) TrimToNewest(ctx context.Context, id domain.InstanceID, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.errors[id]
	if len(recs) <= keep {
		return 0, nil
	}
	deleted := int64(len(recs) - keep)
	m.errors[id] = append([]domain.ErrorRecord(nil), recs[len(recs)-keep:]...)
	return deleted, nil
}

// ---- StatsStore ----

func (m *Store) AppendStats(ctx context.Context, s *domain.StatsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextID
	m.nextID++
	if s.At.IsZero() {
		s.At = time.Now().UTC()
	}
	m.stats[s.InstanceID] = append(m.stats[s.InstanceID], *s)
	return nil
}

func (m *Store) RangeStats(ctx context.Context, id domain.InstanceID, from, to time.Time) ([]domain.StatsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.StatsSnapshot
	for _, s := range m.stats[id] {
		if !s.At.Before(from) && s.At.Before(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

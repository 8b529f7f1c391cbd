package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/diffs"
)

// ComparisonRepository keeps comparisons in process memory. Used when no
// database is configured; lookups of unknown ids return sql.ErrNoRows like
// the SQL repositories do.
type ComparisonRepository struct {
	mu   sync.RWMutex
	rows map[string]domain.Comparison
}

func NewComparisonRepository() *ComparisonRepository {
	return &ComparisonRepository{rows: make(map[string]domain.Comparison)}
}

func key(tenant string, id domain.ComparisonID) string { return tenant + "/" + string(id) }

func (r *ComparisonRepository) Save(ctx context.Context, c *domain.Comparison) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[key(c.TenantID, c.ID)] = *c
	return nil
}

func (r *ComparisonRepository) Get(ctx context.Context, tenant string, id domain.ComparisonID) (*domain.Comparison, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.rows[key(tenant, id)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r *ComparisonRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Comparison, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.RLock()
	var out []*domain.Comparison
	for _, c := range r.rows {
		if c.TenantID == tenant {
			c := c
			out = append(out, &c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TriggeredAt.Equal(out[j].TriggeredAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].TriggeredAt.After(out[j].TriggeredAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ComparisonRepository) Summary(ctx context.Context, tenant string, sinceDays int) (domain.Summary, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	r.mu.RLock()
	defer r.mu.RUnlock()
	var s domain.Summary
	for _, c := range r.rows {
		if c.TenantID != tenant || c.TriggeredAt.Before(cut) {
			continue
		}
		s.Total++
		switch c.Status {
		case domain.StatusSuccess:
			s.Success++
		case domain.StatusFailed:
			s.Failed++
		}
		s.Changed += c.Stats.Added + c.Stats.Removed + c.Stats.Changed
	}
	return s, nil
}

func (r *ComparisonRepository) UpdateStatus(ctx context.Context, tenant string, id domain.ComparisonID, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[key(tenant, id)]
	if !ok {
		return sql.ErrNoRows
	}
	c.Status = status
	r.rows[key(tenant, id)] = c
	return nil
}

func (r *ComparisonRepository) Requeue(ctx context.Context, tenant string, id domain.ComparisonID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[key(tenant, id)]
	if !ok {
		return false, sql.ErrNoRows
	}
	if c.Status == domain.StatusQueued || c.Status == domain.StatusRunning {
		return false, nil
	}
	c.Status = domain.StatusQueued
	r.rows[key(tenant, id)] = c
	return true, nil
}

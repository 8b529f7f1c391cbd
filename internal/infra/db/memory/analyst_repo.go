package memory

import (
	"context"
	"sync"

	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/analyst"
)

type AnalystRepository struct {
	mu   sync.Mutex
	rows []domain.Analysis
}

func NewAnalystRepository() *AnalystRepository { return &AnalystRepository{} }

func (r *AnalystRepository) Save(ctx context.Context, a *domain.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == a.ID {
			r.rows[i] = *a
			return nil
		}
	}
	r.rows = append(r.rows, *a)
	return nil
}

// Paginate returns newest first.
func (r *AnalystRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*domain.Analysis, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*domain.Analysis
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].TenantID == tenant {
			a := r.rows[i]
			all = append(all, &a)
		}
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, nil
	}
	end := min(start+pageSize, len(all))
	return all[start:end], nil
}

func (r *AnalystRepository) LatestByComparison(ctx context.Context, tenant string, comparisonID string) (*domain.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.rows) - 1; i >= 0; i-- {
		a := r.rows[i]
		if a.TenantID == tenant && a.ComparisonID == comparisonID {
			return &a, nil
		}
	}
	return nil, nil
}

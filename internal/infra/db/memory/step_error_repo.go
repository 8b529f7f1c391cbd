package memory

import (
	"context"
	"sync"

	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/steperrors"
)

type StepErrorRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   []domain.StepError
}

func NewStepErrorRepository() *StepErrorRepository { return &StepErrorRepository{} }

func (r *StepErrorRepository) Save(ctx context.Context, e *domain.StepError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	r.rows = append(r.rows, *e)
	return nil
}

// ListByComparison returns newest first.
func (r *StepErrorRepository) ListByComparison(ctx context.Context, tenant string, comparisonID string, limit int) ([]*domain.StepError, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StepError
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.rows[i]
		if e.TenantID == tenant && e.ComparisonID == comparisonID {
			out = append(out, &e)
		}
	}
	return out, nil
}

package steperrors

import (
	"context"
)

// Repository defines persistence for step errors
type Repository interface {
	Save(ctx context.Context, e *StepError) error
	ListByComparison(ctx context.Context, tenant string, comparisonID string, limit int) ([]*StepError, error)
}

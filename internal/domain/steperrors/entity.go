package steperrors

import "time"

// StepError represents a persisted pipeline step failure
type StepError struct {
	ID           int64     `json:"id"`
	TenantID     string    `json:"tenant_id"`
	ComparisonID string    `json:"comparison_id"`
	Step         string    `json:"step,omitempty"`
	Phase        string    `json:"phase,omitempty"` // trigger | retry
	ExitCode     int       `json:"exit_code"`
	Message      string    `json:"message"`
	DetailsJSON  string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt    time.Time `json:"created_at"`
}

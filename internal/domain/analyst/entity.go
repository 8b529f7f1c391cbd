package analyst

import "time"

// AnalysisID identifier type
type AnalysisID string

// Analysis represents an AI summary of a listing diff, stored for retrieval
type Analysis struct {
	ID           AnalysisID `json:"id"`
	TenantID     string     `json:"tenant_id"`
	ComparisonID string     `json:"comparison_id,omitempty"`
	DiffURL      string     `json:"diff_url"`
	Result       string     `json:"result"` // JSON string from AI
	CreatedAt    time.Time  `json:"created_at"`
}

package ai

import "context"

// DiffInput is what the model sees: the two binary names plus the listing diff.
type DiffInput struct {
	Primary   string
	Secondary string
	Diff      string
	Truncated bool
}

type Client interface {
	Analyze(ctx context.Context, in DiffInput) (string, error)
}

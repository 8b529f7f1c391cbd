package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrEmptyDiff is returned when there is no listing diff to analyze.
var ErrEmptyDiff = errors.New("listing diff is empty")

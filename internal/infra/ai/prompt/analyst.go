package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/automaton-bindiff/internal/domain/ai"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior reverse engineer reviewing the difference between two builds of the same program. You receive a unified or normal diff of IDA Pro listings (primary vs secondary). You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase risk values: high, medium, low, none.
- counts must match the number of entries in changes for each kind.
- changes is an array of objects; include at least kind, location and summary. Keep items concise.
- kind is one of: function, call, string, constant, data, other.
- If the diff is marked as truncated, say so in advice and do not guess about the missing part.

Schema (example with empty values):
{
  "primary": "<string>",
  "secondary": "<string>",
  "counts": {"function": 0, "call": 0, "string": 0, "constant": 0, "data": 0, "other": 0},
  "changes": [
    {
      "kind": "<function|call|string|constant|data|other>",
      "location": "<address or symbol>",
      "summary": "<string>"
    }
  ],
  "risk": "<high|medium|low|none>",
  "advice": "<string>"
}`
}

// GetUserPrompt wraps the listing diff with the binary names.
func GetUserPrompt(in ai.DiffInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Primary: %s\nSecondary: %s\n", in.Primary, in.Secondary)
	if in.Truncated {
		b.WriteString("Note: the diff below is truncated.\n")
	}
	b.WriteString("Respond with the JSON per schema. Listing diff:\n")
	b.WriteString(in.Diff)
	return b.String()
}

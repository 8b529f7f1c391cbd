package prompt

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/bryanwahyu/automaton-bindiff/internal/domain/ai"
)

type Change struct {
	Kind     string `json:"kind"`
	Location string `json:"location"`
	Summary  string `json:"summary"`
}

type Counts struct {
	Function int `json:"function"`
	Call     int `json:"call"`
	String   int `json:"string"`
	Constant int `json:"constant"`
	Data     int `json:"data"`
	Other    int `json:"other"`
}

// Report is the JSON document both the model and AnalyzeDiff produce.
type Report struct {
	Primary   string   `json:"primary"`
	Secondary string   `json:"secondary"`
	Counts    Counts   `json:"counts"`
	Changes   []Change `json:"changes"`
	Risk      string   `json:"risk"`
	Advice    string   `json:"advice"`
}

const maxChanges = 20

var (
	reAddr     = regexp.MustCompile(`^\s*(?:[\w.]+:)?([0-9A-Fa-f]{6,16})\b`)
	reFuncHead = regexp.MustCompile(`(?i)\b(proc\s+near|proc\s+far|endp)\b|^\s*(?:[\w.]+:)?[0-9A-Fa-f]+\s+;\s*=+\s*S\s*U\s*B`)
	reCall     = regexp.MustCompile(`(?i)^\s*(?:[\w.]+:[0-9A-Fa-f]+\s+)?(call|jmp)\s+(\S+)`)
	reString   = regexp.MustCompile(`(?i)\bdb\s+'|\baString\w*|"[^"]{3,}"`)
	reConst    = regexp.MustCompile(`(?i)\b(?:[0-9A-F]+h|0x[0-9a-f]+)\b`)
	reData     = regexp.MustCompile(`(?i)^\s*(?:[\w.]+:[0-9A-Fa-f]+\s+)?\w*\s*(db|dw|dd|dq)\b`)
)

// AnalyzeDiff is the offline counterpart of the model: a line-level heuristic
// over the listing diff that returns a Report in the same schema.
func AnalyzeDiff(in ai.DiffInput) string {
	out := Report{Primary: in.Primary, Secondary: in.Secondary}
	seen := map[string]bool{}

	add := func(kind, line, summary string) {
		loc := "-"
		if m := reAddr.FindStringSubmatch(line); m != nil {
			loc = m[1]
		}
		k := kind + "|" + loc + "|" + summary
		if seen[k] {
			return
		}
		seen[k] = true
		if len(out.Changes) < maxChanges {
			out.Changes = append(out.Changes, Change{Kind: kind, Location: loc, Summary: summary})
		}
	}

	for _, raw := range strings.Split(in.Diff, "\n") {
		line, side, ok := changedLine(raw)
		if !ok {
			continue
		}
		body := strings.TrimSpace(line)
		if body == "" || strings.HasPrefix(body, ";") {
			continue
		}
		switch {
		case reFuncHead.MatchString(line):
			add("function", line, side+" function boundary: "+trim(body, 64))
		case reCall.MatchString(line):
			m := reCall.FindStringSubmatch(line)
			add("call", line, side+" "+strings.ToLower(m[1])+" to "+m[2])
		case reString.MatchString(line):
			add("string", line, side+" string reference: "+trim(body, 64))
		case reData.MatchString(line):
			add("data", line, side+" data definition: "+trim(body, 64))
		case reConst.MatchString(line):
			add("constant", line, side+" immediate: "+trim(body, 64))
		default:
			add("other", line, side+" instruction: "+trim(body, 64))
		}
	}

	// counts cover the reported entries only
	for _, c := range out.Changes {
		switch c.Kind {
		case "function":
			out.Counts.Function++
		case "call":
			out.Counts.Call++
		case "string":
			out.Counts.String++
		case "constant":
			out.Counts.Constant++
		case "data":
			out.Counts.Data++
		default:
			out.Counts.Other++
		}
	}

	switch {
	case out.Counts.Function > 0 || out.Counts.Call > 0:
		out.Risk = "high"
		out.Advice = "Control flow changed: review the modified functions and call targets in BinDiff before shipping."
	case out.Counts.String > 0 || out.Counts.Constant > 0 || out.Counts.Data > 0:
		out.Risk = "medium"
		out.Advice = "Data or constants changed: confirm the new values are intended."
	case len(out.Changes) > 0:
		out.Risk = "low"
		out.Advice = "Only minor instruction changes; likely compiler noise or relocation."
	default:
		out.Risk = "none"
		out.Advice = "No listing differences found."
	}
	if in.Truncated {
		out.Advice += " The diff was truncated, so later changes are not covered."
	}
	if out.Changes == nil {
		out.Changes = []Change{}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return `{"risk":"none","advice":"analysis error","changes":[]}`
	}
	return string(b)
}

// changedLine accepts unified ("+", "-") and normal ("> ", "< ") diff lines.
func changedLine(raw string) (string, string, bool) {
	switch {
	case strings.HasPrefix(raw, "+++"), strings.HasPrefix(raw, "---"):
		return "", "", false
	case strings.HasPrefix(raw, "+"):
		return raw[1:], "added", true
	case strings.HasPrefix(raw, "-"):
		return raw[1:], "removed", true
	case strings.HasPrefix(raw, "> "):
		return raw[2:], "added", true
	case strings.HasPrefix(raw, "< "):
		return raw[2:], "removed", true
	}
	return "", "", false
}

func trim(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Offline implements ai.Client without calling a provider.
type Offline struct{}

func (Offline) Analyze(ctx context.Context, in ai.DiffInput) (string, error) {
	return AnalyzeDiff(in), nil
}

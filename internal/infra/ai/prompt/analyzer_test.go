package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/bryanwahyu/automaton-bindiff/internal/domain/ai"
)

func decode(t *testing.T, s string) Report {
	t.Helper()
	var r Report
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		t.Fatalf("invalid json %q: %v", s, err)
	}
	return r
}

func TestAnalyzeDiffCallChange(t *testing.T) {
	diff := strings.Join([]string{
		"--- a.asm",
		"+++ b.asm",
		"@@ -1,3 +1,3 @@",
		" .text:00401000                 push    ebp",
		"-.text:00401001                 call    sub_401020",
		"+.text:00401001                 call    sub_401080",
		"",
	}, "\n")

	r := decode(t, AnalyzeDiff(ai.DiffInput{Primary: "a", Secondary: "b", Diff: diff}))
	if r.Counts.Call != 2 {
		t.Fatalf("call count = %d, changes %+v", r.Counts.Call, r.Changes)
	}
	if r.Risk != "high" {
		t.Errorf("risk = %s", r.Risk)
	}
	if r.Changes[0].Location != "00401001" {
		t.Errorf("location = %s", r.Changes[0].Location)
	}
}

func TestAnalyzeDiffNormalFormat(t *testing.T) {
	diff := "3c3\n< .data:00403000 aHello db 'hello',0\n---\n> .data:00403000 aHello db 'hullo',0\n"
	r := decode(t, AnalyzeDiff(ai.DiffInput{Diff: diff}))
	if r.Counts.String != 2 || r.Risk != "medium" {
		t.Fatalf("report = %+v", r)
	}
}

func TestAnalyzeDiffEmpty(t *testing.T) {
	r := decode(t, AnalyzeDiff(ai.DiffInput{Diff: ""}))
	if r.Risk != "none" || len(r.Changes) != 0 {
		t.Fatalf("report = %+v", r)
	}
}

func TestAnalyzeDiffCapsChanges(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "+.text:%08X nop\n", 0x401000+i)
	}
	r := decode(t, AnalyzeDiff(ai.DiffInput{Diff: b.String(), Truncated: true}))
	if len(r.Changes) != maxChanges || r.Counts.Other != maxChanges {
		t.Fatalf("changes = %d, counts = %+v", len(r.Changes), r.Counts)
	}
	if !strings.Contains(r.Advice, "truncated") {
		t.Errorf("advice = %s", r.Advice)
	}
}

func TestOfflineClient(t *testing.T) {
	out, err := Offline{}.Analyze(context.Background(), ai.DiffInput{Diff: "+.text:00401000 retn\n"})
	if err != nil || !json.Valid([]byte(out)) {
		t.Fatalf("out=%q err=%v", out, err)
	}
}

func TestGetUserPrompt(t *testing.T) {
	p := GetUserPrompt(ai.DiffInput{Primary: "a.exe", Secondary: "b.exe", Diff: "DIFF", Truncated: true})
	for _, want := range []string{"Primary: a.exe", "Secondary: b.exe", "truncated", "DIFF"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q: %s", want, p)
		}
	}
}

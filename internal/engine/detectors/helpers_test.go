package detectors

import (
	"testing"
	"unicode/utf8"

	"github.com/triage-ai/inspection/configs"
	"github.com/triage-ai/inspection/internal/engine"
	"github.com/triage-ai/inspection/internal/policy"
)

func defaultPolicy(t testing.TB) *policy.Policy {
	t.Helper()
	p, err := policy.Parse(configs.DefaultPolicy, "test:"+configs.PolicyFile)
	if err != nil {
		t.Fatalf("parse default policy: %v", err)
	}
	return p
}

func parsePolicy(t testing.TB, doc string) *policy.Policy {
	t.Helper()
	p, err := policy.Parse([]byte(doc), "test")
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	return p
}

func findingTypes(findings []engine.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Type)
	}
	return out
}

func hasType(findings []engine.Finding, typ string) bool {
	for _, f := range findings {
		if f.Type == typ {
			return true
		}
	}
	return false
}

// checkSpans asserts 0 <= start <= end <= len(text) in code points.
func checkSpans(t *testing.T, text string, findings []engine.Finding) {
	t.Helper()
	n := utf8.RuneCountInString(text)
	for _, f := range findings {
		if f.Start < 0 || f.Start > f.End || f.End > n {
			t.Errorf("finding %s has invalid span [%d,%d) for text of length %d", f.Type, f.Start, f.End, n)
		}
	}
}

// substr slices text by code point offsets.
func substr(text string, start, end int) string {
	return text[engine.ByteOffset(text, start):engine.ByteOffset(text, end)]
}

package engine

import "github.com/triage-ai/inspection/internal/policy"

// Category classifies what kind of sensitive content a detector covers.
type Category int

const (
	CategoryUnspecified Category = iota
	CategorySecret
	CategoryPII
	CategoryPromptInjection
)

// String returns the lowercase category name used in logs, metrics and events.
func (c Category) String() string {
	switch c {
	case CategorySecret:
		return "secret"
	case CategoryPII:
		return "pii"
	case CategoryPromptInjection:
		return "prompt_injection"
	default:
		return "unspecified"
	}
}

// RedactedSnippet replaces secret material in finding snippets.
const RedactedSnippet = "***"

// Finding is one detected occurrence. Start and End are half-open
// code point offsets into the inspected prompt.
type Finding struct {
	Type       string
	Start      int
	End        int
	Snippet    string
	Message    string
	Severity   policy.Severity
	Confidence *float64
	Category   Category
	Detector   string
}

// Key is the identity used for deduplication.
func (f Finding) Key() FindingKey {
	return FindingKey{Type: f.Type, Start: f.Start, End: f.End}
}

// FindingKey identifies a finding by type and span.
type FindingKey struct {
	Type  string
	Start int
	End   int
}

// Confidence returns a pointer to c for Finding.Confidence.
func Confidence(c float64) *float64 { return &c }

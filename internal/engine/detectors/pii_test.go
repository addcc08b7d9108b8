package detectors

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/engine"
	"github.com/triage-ai/inspection/internal/nlp"
	"github.com/triage-ai/inspection/internal/policy"
)

type stubAnalyzer struct {
	results []nlp.Result
	err     error
	calls   int
	warmups int
	last    nlp.AnalyzeRequest
}

func (s *stubAnalyzer) Warmup(_ context.Context) error {
	s.warmups++
	return s.err
}

func (s *stubAnalyzer) Analyze(_ context.Context, req nlp.AnalyzeRequest) ([]nlp.Result, error) {
	s.calls++
	s.last = req
	return s.results, s.err
}

func TestPIIDetector_TruePositives(t *testing.T) {
	d := NewPIIDetector(defaultPolicy(t), nlp.NewRecognizerEngine(zap.NewNop()), zap.NewNop())
	ctx := context.Background()
	if err := d.Warmup(ctx); err != nil {
		t.Fatalf("warmup: %v", err)
	}

	tests := []struct {
		name     string
		payload  string
		want     string
		severity policy.Severity
	}{
		{"email", "Contact me at john.doe@example.com to proceed.", "pii_email", policy.SeverityMedium},
		{"email with plus", "Email: user+tag@company.org", "pii_email", policy.SeverityMedium},
		{"SSN with dashes", "My SSN is 123-45-6789", "pii_us_ssn", policy.SeverityHigh},
		{"visa", "Card number: 4111-1111-1111-1111", "pii_credit_card", policy.SeverityHigh},
		{"mastercard", "5500-0000-0000-0004", "pii_credit_card", policy.SeverityHigh},
		{"phone", "Phone: 555-123-4567", "pii_phone", policy.SeverityMedium},
		{"IBAN GB", "Transfer to GB29NWBK60161331926819", "pii_iban", policy.SeverityHigh},
		{"IBAN DE", "IBAN: DE89370400440532013000", "pii_iban", policy.SeverityHigh},
		{"ip address", "connect to 10.1.2.3 now", "pii_ip_address", policy.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings, err := d.Detect(ctx, tt.payload)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !hasType(findings, tt.want) {
				t.Fatalf("expected %s for payload %q, got %v", tt.want, tt.payload, findingTypes(findings))
			}
			checkSpans(t, tt.payload, findings)
			for _, f := range findings {
				if got := substr(tt.payload, f.Start, f.End); got != f.Snippet {
					t.Errorf("snippet %q does not match span text %q", f.Snippet, got)
				}
				if f.Type == tt.want && f.Severity != tt.severity {
					t.Errorf("expected severity %s, got %s", tt.severity, f.Severity)
				}
			}
		})
	}
}

func TestPIIDetector_Email(t *testing.T) {
	d := NewPIIDetector(defaultPolicy(t), nlp.NewRecognizerEngine(nil), nil)
	text := "Contact me at john.doe@example.com to proceed."

	findings, err := d.Detect(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %v", findingTypes(findings))
	}
	f := findings[0]
	if f.Type != "pii_email" || f.Start != 14 || f.End != 34 {
		t.Errorf("unexpected finding %s [%d,%d)", f.Type, f.Start, f.End)
	}
	if f.Snippet != "john.doe@example.com" {
		t.Errorf("unexpected snippet %q", f.Snippet)
	}
	if f.Confidence == nil || *f.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %v", f.Confidence)
	}
}

func TestPIIDetector_TrueNegatives(t *testing.T) {
	d := NewPIIDetector(defaultPolicy(t), nlp.NewRecognizerEngine(nil), nil)

	for _, payload := range []string{
		"Explain the concept of zero trust architecture.",
		"What is the capital of France?",
		"The meeting is at 3pm tomorrow",
		"visit https://example.com for details",
	} {
		findings, err := d.Detect(context.Background(), payload)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(findings) > 0 {
			t.Errorf("false positive for %q: %v", payload, findingTypes(findings))
		}
	}
}

func TestPIIDetector_RequestAndThresholds(t *testing.T) {
	p := parsePolicy(t, `
detection:
  secrets: {engines: {regex: {enabled: false, detectors: {}}, plugin_scanner: {enabled: false, detectors: {}}}}
  pii:
    engines:
      nlp:
        default_lang: en
        default_model: en_core_web_lg
        default_score_threshold: 0.3
        detectors:
          email: {id: pii_email, entity_type: EMAIL_ADDRESS, severity: medium, context_words: [mail]}
          phone: {id: pii_phone, entity_type: PHONE_NUMBER, severity: low, score_threshold: 0.9}
          url: {id: pii_url, entity_type: URL, severity: low, enabled: false}
  prompt_injection: {engines: {pattern: {enabled: false, detectors: {}}}}
`)
	text := "mail a@b.io or 555-123-4567"
	stub := &stubAnalyzer{results: []nlp.Result{
		{EntityType: nlp.EntityEmail, Start: 5, End: 11, Score: 0.35},
		{EntityType: nlp.EntityPhone, Start: 15, End: 27, Score: 0.8},
		{EntityType: nlp.EntityURL, Start: 7, End: 11, Score: 1.0},
	}}
	d := NewPIIDetector(p, stub, nil)

	findings, err := d.Detect(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("expected one analyzer call, got %d", stub.calls)
	}
	if stub.last.Language != "en" || stub.last.ScoreThreshold != 0.3 {
		t.Errorf("unexpected request language=%q threshold=%v", stub.last.Language, stub.last.ScoreThreshold)
	}
	if got := stub.last.Entities; len(got) != 2 || got[0] != nlp.EntityEmail || got[1] != nlp.EntityPhone {
		t.Errorf("expected enabled entities only, got %v", got)
	}
	if got := stub.last.ContextWords[nlp.EntityEmail]; len(got) != 1 || got[0] != "mail" {
		t.Errorf("expected email context words, got %v", got)
	}

	// Phone falls below its own 0.9 threshold; URL is disabled.
	if len(findings) != 1 || findings[0].Type != "pii_email" {
		t.Fatalf("expected only pii_email, got %v", findingTypes(findings))
	}
	if findings[0].Snippet != "a@b.io" {
		t.Errorf("unexpected snippet %q", findings[0].Snippet)
	}
	if *findings[0].Confidence != 0.35 {
		t.Errorf("expected score as confidence, got %v", *findings[0].Confidence)
	}
}

func TestPIIDetector_UnicodeEmail(t *testing.T) {
	d := NewPIIDetector(defaultPolicy(t), nlp.NewRecognizerEngine(zap.NewNop()), zap.NewNop())
	text := "Mail jöhn@example.com"

	findings, err := d.Detect(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 || findings[0].Type != "pii_email" {
		t.Fatalf("expected pii_email, got %v", findingTypes(findings))
	}
	f := findings[0]
	if f.Snippet != "jöhn@example.com" {
		t.Errorf("unexpected snippet %q", f.Snippet)
	}
	if f.Start != 5 || f.End != 21 {
		t.Errorf("expected code point span [5,21), got [%d,%d)", f.Start, f.End)
	}
	checkSpans(t, text, findings)
}

func TestPIIDetector_AnalyzerGetsEngineDefaultThreshold(t *testing.T) {
	p := defaultPolicy(t)
	phone, ok := p.NLP().ActiveByEntity()[nlp.EntityPhone]
	if !ok {
		t.Fatal("default policy should enable PHONE_NUMBER")
	}
	def := p.NLP().DefaultScoreThreshold()
	if th := phone.EffectiveThreshold(def); th >= def {
		t.Fatalf("test needs an entity threshold below the default, got %v >= %v", th, def)
	}

	stub := &stubAnalyzer{results: []nlp.Result{
		{EntityType: nlp.EntityPhone, Start: 12, End: 24, Score: 0.45},
	}}
	d := NewPIIDetector(p, stub, nil)

	findings, err := d.Detect(context.Background(), "reach me at 212-555-0100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.last.ScoreThreshold != def {
		t.Errorf("expected analyzer threshold %v, got %v", def, stub.last.ScoreThreshold)
	}
	// Results the analyzer returns are still checked per entity; 0.45 clears
	// the phone threshold.
	if len(findings) != 1 || findings[0].Type != "pii_phone" {
		t.Errorf("expected pii_phone, got %v", findingTypes(findings))
	}
}

func TestPIIDetector_RealAnalyzerDropsWeakPhone(t *testing.T) {
	d := NewPIIDetector(defaultPolicy(t), nlp.NewRecognizerEngine(zap.NewNop()), zap.NewNop())

	// 0.4 without a context word, below the 0.5 engine default.
	findings, err := d.Detect(context.Background(), "reach me at 212-555-0100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasType(findings, "pii_phone") {
		t.Errorf("unexpected pii_phone finding: %v", findingTypes(findings))
	}
}

func TestPIIDetector_NoEntitiesShortCircuits(t *testing.T) {
	p := parsePolicy(t, `
detection:
  secrets: {engines: {regex: {enabled: false, detectors: {}}, plugin_scanner: {enabled: false, detectors: {}}}}
  pii:
    engines:
      nlp:
        enabled: false
        default_lang: en
        default_model: en_core_web_lg
        default_score_threshold: 0.5
        detectors:
          email: {id: pii_email, entity_type: EMAIL_ADDRESS, severity: medium}
  prompt_injection: {engines: {pattern: {enabled: false, detectors: {}}}}
`)
	stub := &stubAnalyzer{err: errors.New("must not be called")}
	d := NewPIIDetector(p, stub, nil)

	if err := d.Warmup(context.Background()); err != nil {
		t.Fatalf("unexpected warmup error: %v", err)
	}
	findings, err := d.Detect(context.Background(), "john@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 0 || stub.calls != 0 || stub.warmups != 0 {
		t.Errorf("expected no analyzer use, got calls=%d warmups=%d findings=%d", stub.calls, stub.warmups, len(findings))
	}
}

func TestPIIDetector_Errors(t *testing.T) {
	boom := errors.New("analyzer down")
	d := NewPIIDetector(defaultPolicy(t), &stubAnalyzer{err: boom}, nil)

	if err := d.Warmup(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected warmup to wrap analyzer error, got %v", err)
	}
	if _, err := d.Detect(context.Background(), "hello"); !errors.Is(err, boom) {
		t.Errorf("expected detect to wrap analyzer error, got %v", err)
	}

	bad := NewPIIDetector(defaultPolicy(t), &stubAnalyzer{results: []nlp.Result{
		{EntityType: nlp.EntityEmail, Start: 2, End: 40, Score: 1},
	}}, nil)
	if _, err := bad.Detect(context.Background(), "short"); err == nil {
		t.Error("expected error for out-of-range span")
	}
}

func TestPIIDetector_Metadata(t *testing.T) {
	d := NewPIIDetector(defaultPolicy(t), &stubAnalyzer{}, nil)
	if d.Name() != "pii" {
		t.Errorf("expected name pii, got %s", d.Name())
	}
	if d.Category() != engine.CategoryPII {
		t.Errorf("expected PII category, got %v", d.Category())
	}
}

package engine

import (
	"testing"

	"github.com/triage-ai/inspection/internal/policy"
)

func finding(typ string, sev policy.Severity) Finding {
	return Finding{Type: typ, Severity: sev, Start: 0, End: 1}
}

func TestDecide_NoFindings(t *testing.T) {
	d := Decide(nil, DefaultDecisionConfig())
	if !d.Allowed {
		t.Error("expected allowed with no findings")
	}
	if d.Reason != "" {
		t.Errorf("expected empty reason, got: %s", d.Reason)
	}
	if d.MaxSeverity != "" {
		t.Errorf("expected empty max severity, got %s", d.MaxSeverity)
	}
}

func TestDecide_HighBlocks(t *testing.T) {
	findings := []Finding{
		finding("pii_email", policy.SeverityMedium),
		finding("secret_aws_access_key", policy.SeverityHigh),
	}

	d := Decide(findings, DefaultDecisionConfig())
	if d.Allowed {
		t.Error("expected blocked")
	}
	if d.Reason != "blocked: secret_aws_access_key" {
		t.Errorf("unexpected reason: %s", d.Reason)
	}
	if d.MaxSeverity != policy.SeverityHigh {
		t.Errorf("expected max severity high, got %s", d.MaxSeverity)
	}
}

func TestDecide_BelowThresholdFlags(t *testing.T) {
	findings := []Finding{
		finding("pii_email", policy.SeverityMedium),
		finding("pii_email", policy.SeverityMedium),
		finding("pii_ip_address", policy.SeverityLow),
	}

	d := Decide(findings, DefaultDecisionConfig())
	if !d.Allowed {
		t.Error("medium findings should not block at the default threshold")
	}
	if d.Reason != "flagged: pii_email, pii_ip_address" {
		t.Errorf("unexpected reason: %s", d.Reason)
	}
	if d.MaxSeverity != policy.SeverityMedium {
		t.Errorf("expected max severity medium, got %s", d.MaxSeverity)
	}
}

func TestDecide_CustomThreshold(t *testing.T) {
	findings := []Finding{finding("pii_email", policy.SeverityMedium)}

	d := Decide(findings, DecisionConfig{BlockSeverity: policy.SeverityMedium})
	if d.Allowed {
		t.Error("medium finding should block when threshold is medium")
	}
}

func TestDecide_InvalidThresholdFallsBackToHigh(t *testing.T) {
	findings := []Finding{finding("pii_email", policy.SeverityMedium)}

	d := Decide(findings, DecisionConfig{})
	if !d.Allowed {
		t.Error("zero config should behave as block_severity=high")
	}
}

// Raising any finding's severity never turns a blocked decision into allowed.
func TestDecide_SeverityMonotonic(t *testing.T) {
	severities := []policy.Severity{policy.SeverityLow, policy.SeverityMedium, policy.SeverityHigh}
	for _, threshold := range severities {
		cfg := DecisionConfig{BlockSeverity: threshold}
		for i, base := range severities {
			blocked := !Decide([]Finding{finding("x", base)}, cfg).Allowed
			for _, raised := range severities[i:] {
				if blocked && Decide([]Finding{finding("x", raised)}, cfg).Allowed {
					t.Errorf("threshold %s: raising %s to %s unblocked the prompt", threshold, base, raised)
				}
			}
		}
	}
}

func TestDecisionConfigFromPolicy_Nil(t *testing.T) {
	if got := DecisionConfigFromPolicy(nil).BlockSeverity; got != policy.SeverityHigh {
		t.Errorf("expected high, got %s", got)
	}
}

func BenchmarkDecide(b *testing.B) {
	findings := []Finding{
		finding("pii_email", policy.SeverityMedium),
		finding("secret_aws_access_key", policy.SeverityHigh),
		finding("prompt_injection_generic", policy.SeverityHigh),
	}
	cfg := DefaultDecisionConfig()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Decide(findings, cfg)
	}
}

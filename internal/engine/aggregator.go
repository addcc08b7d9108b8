package engine

import (
	"strings"

	"github.com/triage-ai/inspection/internal/policy"
)

// DecisionConfig holds the severity threshold for blocking.
type DecisionConfig struct {
	BlockSeverity policy.Severity // Findings at or above this block (default high)
}

// DefaultDecisionConfig blocks on high severity findings only.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{BlockSeverity: policy.SeverityHigh}
}

// DecisionConfigFromPolicy reads the block threshold from a loaded policy.
func DecisionConfigFromPolicy(p *policy.Policy) DecisionConfig {
	if p == nil {
		return DefaultDecisionConfig()
	}
	return DecisionConfig{BlockSeverity: p.BlockSeverity()}
}

// Decision is the allow/block outcome for a set of findings.
type Decision struct {
	Allowed     bool
	Reason      string
	MaxSeverity policy.Severity // empty when there are no findings
}

// Decide applies the block threshold to findings.
//
// Rules:
//  1. If ANY finding ranks >= BlockSeverity → blocked
//  2. Otherwise → allowed (findings below the threshold are reported only)
func Decide(findings []Finding, cfg DecisionConfig) Decision {
	threshold := cfg.BlockSeverity
	if !threshold.Valid() {
		threshold = policy.SeverityHigh
	}

	allowed := true
	var maxSev policy.Severity
	var blocking, flagged []string
	seenBlocking := make(map[string]bool)
	seenFlagged := make(map[string]bool)

	for _, f := range findings {
		maxSev = policy.MaxSeverity(maxSev, f.Severity)
		if f.Severity.Rank() >= threshold.Rank() {
			allowed = false
			if !seenBlocking[f.Type] {
				seenBlocking[f.Type] = true
				blocking = append(blocking, f.Type)
			}
			continue
		}
		if !seenFlagged[f.Type] {
			seenFlagged[f.Type] = true
			flagged = append(flagged, f.Type)
		}
	}

	reason := ""
	switch {
	case len(blocking) > 0:
		reason = "blocked: " + strings.Join(blocking, ", ")
	case len(flagged) > 0:
		reason = "flagged: " + strings.Join(flagged, ", ")
	}

	return Decision{
		Allowed:     allowed,
		Reason:      reason,
		MaxSeverity: maxSev,
	}
}

package detectors

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/engine"
	"github.com/triage-ai/inspection/internal/policy"
)

// patternDef binds a pre-compiled regex to a policy key under its engine.
type patternDef struct {
	key     string
	re      *regexp.Regexp
	message string
}

// boundPattern is a patternDef resolved against an enabled policy entry.
type boundPattern struct {
	patternDef
	cfg policy.DetectorConfig
}

func (p boundPattern) findingMessage() string {
	if p.cfg.DisplayName != "" {
		return p.cfg.DisplayName
	}
	return p.message
}

// bindPatterns keeps the definitions whose policy entry is enabled, in
// definition order.
func bindPatterns(defs []patternDef, eng policy.PatternEngine) []boundPattern {
	var out []boundPattern
	for _, def := range defs {
		cfg, ok := eng.Active(def.key)
		if !ok {
			continue
		}
		out = append(out, boundPattern{patternDef: def, cfg: cfg})
	}
	return out
}

func warnIfEmpty(logger *zap.Logger, detector string, patterns []boundPattern, section string) {
	if len(patterns) == 0 && logger != nil {
		logger.Warn("detector initialized with no active patterns",
			zap.String("detector", detector),
			zap.String("policy_section", section),
		)
	}
}

// scanPatterns reports every non-overlapping match of every pattern, in
// pattern order then position order.
func scanPatterns(ctx context.Context, text string, patterns []boundPattern, redact bool) ([]engine.Finding, error) {
	if text == "" || len(patterns) == 0 {
		return nil, nil
	}
	ix := engine.NewTextIndex(text)

	var findings []engine.Finding
	for _, p := range patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if loc[0] == loc[1] {
				continue
			}
			start, end := ix.Span(loc[0], loc[1])
			snippet := text[loc[0]:loc[1]]
			if redact {
				snippet = engine.RedactedSnippet
			}
			findings = append(findings, engine.Finding{
				Type:       p.cfg.ID,
				Start:      start,
				End:        end,
				Snippet:    snippet,
				Message:    p.findingMessage(),
				Severity:   p.cfg.Severity,
				Confidence: engine.Confidence(1.0),
			})
		}
	}
	return findings, nil
}

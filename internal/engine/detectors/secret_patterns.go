package detectors

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/engine"
	"github.com/triage-ai/inspection/internal/policy"
)

// Pre-compiled secret patterns, keyed by detection.secrets.engines.regex.detectors.
var secretPatternDefs = []patternDef{
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "Possible AWS Access Key detected."},
	{"generic", regexp.MustCompile(`[A-Za-z0-9_\-]{20,}`), "High-entropy token-like string detected."},
	{"jwt", regexp.MustCompile(`eyJ[a-zA-Z0-9_\-]+?\.[a-zA-Z0-9_\-]+?\.[a-zA-Z0-9_\-]+`), "Possible JWT token detected."},
	{"pem_block", regexp.MustCompile(`-----BEGIN (?:RSA |EC |)PRIVATE KEY-----`), "Possible private key block detected."},
}

// SecretPatternDetector matches well-known secret shapes with regexes.
type SecretPatternDetector struct {
	patterns []boundPattern
	redact   bool
}

func NewSecretPatternDetector(p *policy.Policy, logger *zap.Logger) *SecretPatternDetector {
	eng := p.SecretsRegex()
	patterns := bindPatterns(secretPatternDefs, eng)
	warnIfEmpty(logger, "secret_patterns", patterns, "detection.secrets.engines.regex")
	return &SecretPatternDetector{patterns: patterns, redact: eng.RedactSnippets()}
}

func (d *SecretPatternDetector) Name() string {
	return "secret_patterns"
}

func (d *SecretPatternDetector) Category() engine.Category {
	return engine.CategorySecret
}

func (d *SecretPatternDetector) Warmup(_ context.Context) error { return nil }

func (d *SecretPatternDetector) Detect(ctx context.Context, text string) ([]engine.Finding, error) {
	return scanPatterns(ctx, text, d.patterns, d.redact)
}

package detectors

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/engine"
	"github.com/triage-ai/inspection/internal/policy"
)

// Pre-compiled patterns, grouped by detection.prompt_injection.engines.pattern.detectors key.
var injectionPatternDefs = []patternDef{
	// generic: bypassing prior instructions or safety rules
	{"generic", regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`), "Prompt attempts to bypass prior instructions."},
	{"generic", regexp.MustCompile(`(?i)(disregard|ignore)\s+(the\s+)?(safety|security|policy|guidelines?)`), "Prompt attempts to bypass safety or security rules."},
	{"generic", regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions|rules|guidelines)`), "Prompt attempts to bypass prior instructions."},
	{"generic", regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions|context)`), "Prompt attempts to bypass prior instructions."},
	{"generic", regexp.MustCompile(`(?i)(forget\s+that\s+you\s+are|you\s+are\s+not\s+an\s+ai|act\s+as\s+a\s+human)`), "Prompt asks the model to change or hide its identity."},
	{"generic", regexp.MustCompile(`(?i)bypass\s+(the\s+)?(safety|security|content)\s+(filter|check|policy|rules)`), "Prompt attempts to bypass safety or security rules."},
	{"generic", regexp.MustCompile(`(?i)do\s+not\s+follow\s+(your|the|any)\s+(rules|guidelines|instructions|safety)`), "Prompt attempts to bypass safety or security rules."},

	// override: replacing the system role or instruction hierarchy
	{"override", regexp.MustCompile(`(?is)you\s+are\s+now\s+no\s+longer.*`), "Prompt tries to override the system role."},
	{"override", regexp.MustCompile(`(?i)(follow\s+my\s+instructions.*even\s+if|obey\s+me\s+instead\s+of|my\s+instructions\s+override)`), "Prompt explicitly tries to override higher-priority instructions."},
	{"override", regexp.MustCompile(`(?i)from\s+now\s+on\s+you\s+(are|will|must|should)`), "Prompt tries to override the system role."},
	{"override", regexp.MustCompile(`(?i)your\s+new\s+(role|identity|persona|instructions)\s+(is|are)`), "Prompt tries to override the system role."},
	{"override", regexp.MustCompile(`(?i)override\s+(the\s+)?(system|safety|security)\s+(prompt|instructions|rules|policy)`), "Prompt explicitly tries to override higher-priority instructions."},
	{"override", regexp.MustCompile(`(?i)\[SYSTEM\]|<\|im_start\|>system|###\s*(SYSTEM|NEW INSTRUCTION)\b`), "Prompt injects a fake system delimiter."},
	{"override", regexp.MustCompile(`(?i)(enter|enable)\s+(developer|debug|god|sudo|DAN)\s+mode`), "Prompt tries to switch the model into an unrestricted mode."},

	// suspicious: exfiltrating hidden context
	{"suspicious", regexp.MustCompile(`(?i)(show|reveal|print|output)\s+(your\s+|the\s+)?(system\s+prompt|hidden\s+instructions?|initial\s+instructions)`), "Prompt tries to exfiltrate the system prompt or hidden instructions."},
	{"suspicious", regexp.MustCompile(`(?i)what\s+(are|is|were)\s+your\s+(system|initial|original|hidden)\s+(prompt|instructions|rules)`), "Prompt tries to exfiltrate the system prompt or hidden instructions."},
	{"suspicious", regexp.MustCompile(`(?i)respond\s+(only\s+)?in\s+(base64|hex|rot13)`), "Prompt asks for an encoded response that may evade output checks."},
}

// InjectionPatternDetector scans prompts for prompt injection phrasing.
type InjectionPatternDetector struct {
	patterns []boundPattern
}

func NewInjectionPatternDetector(p *policy.Policy, logger *zap.Logger) *InjectionPatternDetector {
	patterns := bindPatterns(injectionPatternDefs, p.InjectionPatterns())
	warnIfEmpty(logger, "prompt_injection", patterns, "detection.prompt_injection.engines.pattern")
	return &InjectionPatternDetector{patterns: patterns}
}

func (d *InjectionPatternDetector) Name() string {
	return "prompt_injection"
}

func (d *InjectionPatternDetector) Category() engine.Category {
	return engine.CategoryPromptInjection
}

func (d *InjectionPatternDetector) Warmup(_ context.Context) error { return nil }

// Detect reports matched phrases verbatim; injection text is not redacted.
func (d *InjectionPatternDetector) Detect(ctx context.Context, text string) ([]engine.Finding, error) {
	return scanPatterns(ctx, text, d.patterns, false)
}

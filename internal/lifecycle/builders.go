package lifecycle

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/engine"
	"github.com/triage-ai/inspection/internal/engine/detectors"
	"github.com/triage-ai/inspection/internal/nlp"
	"github.com/triage-ai/inspection/internal/policy"
)

// Deps are the shared dependencies handed to every Builder.
type Deps struct {
	Analyzer nlp.Analyzer // nil when no PII entity is enabled
	Logger   *zap.Logger
}

// Builder constructs one detector from the policy.
type Builder struct {
	Name  string
	Build func(p *policy.Policy, deps Deps) (engine.Detector, error)
}

// DefaultBuilders returns the detector set in execution order: secret
// scanner, secret patterns, PII, prompt injection.
func DefaultBuilders() []Builder {
	return []Builder{
		{Name: "secret_scanner", Build: func(p *policy.Policy, deps Deps) (engine.Detector, error) {
			return detectors.NewSecretScannerDetector(p, deps.Logger), nil
		}},
		{Name: "secret_patterns", Build: func(p *policy.Policy, deps Deps) (engine.Detector, error) {
			return detectors.NewSecretPatternDetector(p, deps.Logger), nil
		}},
		{Name: "pii", Build: func(p *policy.Policy, deps Deps) (engine.Detector, error) {
			if deps.Analyzer == nil && needsAnalyzer(p) {
				return nil, errors.New("no analyzer for enabled PII entities")
			}
			return detectors.NewPIIDetector(p, deps.Analyzer, deps.Logger), nil
		}},
		{Name: "prompt_injection", Build: func(p *policy.Policy, deps Deps) (engine.Detector, error) {
			return detectors.NewInjectionPatternDetector(p, deps.Logger), nil
		}},
	}
}

// AnalyzerFactory builds the PII analyzer for the policy's NLP engine.
type AnalyzerFactory func(cfg policy.NLPEngine, logger *zap.Logger) (nlp.Analyzer, error)

// LocalAnalyzer returns the in-process recognizer engine.
func LocalAnalyzer(cfg policy.NLPEngine, logger *zap.Logger) (nlp.Analyzer, error) {
	logger.Info("using in-process PII recognizers",
		zap.String("lang", cfg.DefaultLang()),
		zap.String("model", cfg.DefaultModel()),
	)
	return nlp.NewRecognizerEngine(logger), nil
}

// RemoteAnalyzer returns a factory for a Presidio-compatible service. An
// empty endpoint falls back to LocalAnalyzer.
func RemoteAnalyzer(endpoint string, timeout time.Duration) AnalyzerFactory {
	if endpoint == "" {
		return LocalAnalyzer
	}
	return func(cfg policy.NLPEngine, logger *zap.Logger) (nlp.Analyzer, error) {
		logger.Info("using remote PII analyzer",
			zap.String("endpoint", endpoint),
			zap.String("lang", cfg.DefaultLang()),
		)
		return nlp.NewPresidioClient(endpoint, timeout, logger), nil
	}
}

func needsAnalyzer(p *policy.Policy) bool {
	return len(p.NLP().ActiveByEntity()) > 0
}

package policy

import "sort"

// Policy is a validated, read-only policy document. Accessors return copies.
type Policy struct {
	source        string
	blockSeverity Severity

	secretsRegex  PatternEngine
	pluginScanner PluginScannerEngine
	nlp           NLPEngine
	injection     PatternEngine
}

// Source is the resolved path the policy was loaded from.
func (p *Policy) Source() string { return p.source }

// BlockSeverity is the lowest severity that blocks a prompt.
func (p *Policy) BlockSeverity() Severity { return p.blockSeverity }

func (p *Policy) SecretsRegex() PatternEngine { return p.secretsRegex }

func (p *Policy) PluginScanner() PluginScannerEngine { return p.pluginScanner.clone() }

func (p *Policy) NLP() NLPEngine { return p.nlp }

func (p *Policy) InjectionPatterns() PatternEngine { return p.injection }

// DetectorConfig is the policy entry shared by every detector kind.
type DetectorConfig struct {
	ID          string
	DisplayName string
	Enabled     bool
	Severity    Severity
}

// PluginDetectorConfig binds a secret scanner plugin to a policy entry.
type PluginDetectorConfig struct {
	DetectorConfig
	Plugin string
}

// PIIDetectorConfig binds an NLP entity type to a policy entry.
type PIIDetectorConfig struct {
	DetectorConfig
	EntityType string

	scoreThreshold    float64
	hasScoreThreshold bool
	contextWords      []string
}

// ScoreThreshold returns the entry's own threshold, if set.
func (c PIIDetectorConfig) ScoreThreshold() (float64, bool) {
	return c.scoreThreshold, c.hasScoreThreshold
}

// EffectiveThreshold is the entry threshold, or fallback when unset.
func (c PIIDetectorConfig) EffectiveThreshold(fallback float64) float64 {
	if c.hasScoreThreshold {
		return c.scoreThreshold
	}
	return fallback
}

func (c PIIDetectorConfig) ContextWords() []string {
	return append([]string(nil), c.contextWords...)
}

// DetectorSet is an immutable keyed set of detector entries.
type DetectorSet[T any] struct {
	entries map[string]T
}

func newDetectorSet[T any](entries map[string]T) DetectorSet[T] {
	return DetectorSet[T]{entries: entries}
}

// Get returns the entry stored under key.
func (s DetectorSet[T]) Get(key string) (T, bool) {
	v, ok := s.entries[key]
	return v, ok
}

// Keys returns entry keys in sorted order.
func (s DetectorSet[T]) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s DetectorSet[T]) Len() int { return len(s.entries) }

// PatternEngine configures a regex-based engine.
type PatternEngine struct {
	enabled        bool
	redactSnippets bool
	detectors      DetectorSet[DetectorConfig]
}

func (e PatternEngine) Enabled() bool { return e.enabled }

// RedactSnippets reports whether matched text is replaced by a marker.
func (e PatternEngine) RedactSnippets() bool { return e.redactSnippets }

func (e PatternEngine) Detectors() DetectorSet[DetectorConfig] { return e.detectors }

// Active returns the entry for key when both the engine and the entry are
// enabled.
func (e PatternEngine) Active(key string) (DetectorConfig, bool) {
	if !e.enabled {
		return DetectorConfig{}, false
	}
	cfg, ok := e.detectors.Get(key)
	if !ok || !cfg.Enabled {
		return DetectorConfig{}, false
	}
	return cfg, true
}

// PluginScannerEngine configures the plugin-based secret scanner.
type PluginScannerEngine struct {
	enabled         bool
	disabledFilters []string
	detectors       DetectorSet[PluginDetectorConfig]
}

func (e PluginScannerEngine) clone() PluginScannerEngine {
	e.disabledFilters = append([]string(nil), e.disabledFilters...)
	return e
}

func (e PluginScannerEngine) Enabled() bool { return e.enabled }

func (e PluginScannerEngine) DisabledFilters() []string {
	return append([]string(nil), e.disabledFilters...)
}

func (e PluginScannerEngine) Detectors() DetectorSet[PluginDetectorConfig] { return e.detectors }

// ActiveByPlugin maps plugin name to its enabled entry. Empty when the
// engine is disabled.
func (e PluginScannerEngine) ActiveByPlugin() map[string]PluginDetectorConfig {
	out := make(map[string]PluginDetectorConfig)
	if !e.enabled {
		return out
	}
	for _, key := range e.detectors.Keys() {
		cfg, _ := e.detectors.Get(key)
		if cfg.Enabled {
			out[cfg.Plugin] = cfg
		}
	}
	return out
}

// NLPEngine configures the PII analyzer.
type NLPEngine struct {
	enabled               bool
	defaultLang           string
	defaultModel          string
	defaultScoreThreshold float64
	detectors             DetectorSet[PIIDetectorConfig]
}

func (e NLPEngine) Enabled() bool                  { return e.enabled }
func (e NLPEngine) DefaultLang() string            { return e.defaultLang }
func (e NLPEngine) DefaultModel() string           { return e.defaultModel }
func (e NLPEngine) DefaultScoreThreshold() float64 { return e.defaultScoreThreshold }

func (e NLPEngine) Detectors() DetectorSet[PIIDetectorConfig] { return e.detectors }

// ActiveByEntity maps entity type to its enabled entry. Empty when the
// engine is disabled.
func (e NLPEngine) ActiveByEntity() map[string]PIIDetectorConfig {
	out := make(map[string]PIIDetectorConfig)
	if !e.enabled {
		return out
	}
	for _, key := range e.detectors.Keys() {
		cfg, _ := e.detectors.Get(key)
		if cfg.Enabled {
			out[cfg.EntityType] = cfg
		}
	}
	return out
}

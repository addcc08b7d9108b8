package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type document struct {
	Decision  *decisionDoc `yaml:"decision"`
	Detection detectionDoc `yaml:"detection"`
}

type decisionDoc struct {
	BlockSeverity string `yaml:"block_severity"`
}

type detectionDoc struct {
	Secrets struct {
		Engines struct {
			Regex         *regexEngineDoc   `yaml:"regex"`
			PluginScanner *pluginScannerDoc `yaml:"plugin_scanner"`
		} `yaml:"engines"`
	} `yaml:"secrets"`
	PII struct {
		Engines struct {
			NLP *nlpEngineDoc `yaml:"nlp"`
		} `yaml:"engines"`
	} `yaml:"pii"`
	PromptInjection struct {
		Engines struct {
			Pattern *patternEngineDoc `yaml:"pattern"`
		} `yaml:"engines"`
	} `yaml:"prompt_injection"`
}

type detectorDoc struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Enabled     *bool  `yaml:"enabled"`
	Severity    string `yaml:"severity"`
}

type pluginDetectorDoc struct {
	detectorDoc `yaml:",inline"`
	Plugin      string `yaml:"plugin"`
}

type piiDetectorDoc struct {
	detectorDoc    `yaml:",inline"`
	EntityType     string   `yaml:"entity_type"`
	ScoreThreshold *float64 `yaml:"score_threshold"`
	ContextWords   []string `yaml:"context_words"`
}

type regexEngineDoc struct {
	Enabled        *bool                  `yaml:"enabled"`
	RedactSnippets *bool                  `yaml:"redact_snippets"`
	Detectors      map[string]detectorDoc `yaml:"detectors"`
}

type pluginScannerDoc struct {
	Enabled         *bool                        `yaml:"enabled"`
	DisabledFilters []string                     `yaml:"disabled_filters"`
	Detectors       map[string]pluginDetectorDoc `yaml:"detectors"`
}

type nlpEngineDoc struct {
	Enabled               *bool                     `yaml:"enabled"`
	DefaultLang           string                    `yaml:"default_lang"`
	DefaultModel          string                    `yaml:"default_model"`
	DefaultScoreThreshold *float64                  `yaml:"default_score_threshold"`
	Detectors             map[string]piiDetectorDoc `yaml:"detectors"`
}

type patternEngineDoc struct {
	Enabled   *bool                  `yaml:"enabled"`
	Detectors map[string]detectorDoc `yaml:"detectors"`
}

const (
	defaultLang           = "en"
	defaultScoreThreshold = 0.5
)

// Parse validates and decodes a policy document. source names the document
// in errors.
func Parse(data []byte, source string) (*Policy, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, &ConfigError{Source: source, Reason: "invalid YAML", Err: err}
	}
	if generic == nil {
		return nil, &ConfigError{Source: source, Reason: "document is empty"}
	}
	if _, ok := generic.(map[string]any); !ok {
		return nil, &ConfigError{Source: source, Reason: fmt.Sprintf("top level must be a mapping, got %T", generic)}
	}

	if err := validateSchema(source, generic); err != nil {
		return nil, err
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Source: source, Reason: "decode failed", Err: err}
	}

	return build(source, &doc)
}

func build(source string, doc *document) (*Policy, error) {
	p := &Policy{source: source, blockSeverity: SeverityHigh}

	if doc.Decision != nil && doc.Decision.BlockSeverity != "" {
		sev, err := ParseSeverity(doc.Decision.BlockSeverity)
		if err != nil {
			return nil, &ConfigError{Source: source, Field: "/decision/block_severity", Reason: err.Error()}
		}
		p.blockSeverity = sev
	}

	var err error
	if p.secretsRegex, err = buildRegexEngine(source, doc.Detection.Secrets.Engines.Regex); err != nil {
		return nil, err
	}
	if p.pluginScanner, err = buildPluginScanner(source, doc.Detection.Secrets.Engines.PluginScanner); err != nil {
		return nil, err
	}
	if p.nlp, err = buildNLPEngine(source, doc.Detection.PII.Engines.NLP); err != nil {
		return nil, err
	}
	if p.injection, err = buildPatternEngine(source, doc.Detection.PromptInjection.Engines.Pattern); err != nil {
		return nil, err
	}
	return p, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// idTracker rejects duplicate ids inside one engine.
type idTracker struct {
	source string
	field  string
	seen   map[string]string
}

func newIDTracker(source, field string) *idTracker {
	return &idTracker{source: source, field: field, seen: make(map[string]string)}
}

func (t *idTracker) add(key, id string) error {
	if prev, ok := t.seen[id]; ok {
		return &ConfigError{
			Source: t.source,
			Field:  t.field + "/" + key + "/id",
			Reason: fmt.Sprintf("duplicate id %q (already used by %q)", id, prev),
		}
	}
	t.seen[id] = key
	return nil
}

func buildDetector(source, field, key string, d detectorDoc) (DetectorConfig, error) {
	sev, err := ParseSeverity(d.Severity)
	if err != nil {
		return DetectorConfig{}, &ConfigError{Source: source, Field: field + "/" + key + "/severity", Reason: err.Error()}
	}
	return DetectorConfig{
		ID:          d.ID,
		DisplayName: d.DisplayName,
		Enabled:     boolOr(d.Enabled, true),
		Severity:    sev,
	}, nil
}

func buildPatternDetectors(source, field string, docs map[string]detectorDoc) (DetectorSet[DetectorConfig], error) {
	ids := newIDTracker(source, field)
	out := make(map[string]DetectorConfig, len(docs))
	for key, d := range docs {
		cfg, err := buildDetector(source, field, key, d)
		if err != nil {
			return DetectorSet[DetectorConfig]{}, err
		}
		if err := ids.add(key, cfg.ID); err != nil {
			return DetectorSet[DetectorConfig]{}, err
		}
		out[key] = cfg
	}
	return newDetectorSet(out), nil
}

func buildRegexEngine(source string, doc *regexEngineDoc) (PatternEngine, error) {
	if doc == nil {
		return PatternEngine{redactSnippets: true, detectors: newDetectorSet(map[string]DetectorConfig{})}, nil
	}
	set, err := buildPatternDetectors(source, "/detection/secrets/engines/regex/detectors", doc.Detectors)
	if err != nil {
		return PatternEngine{}, err
	}
	return PatternEngine{
		enabled:        boolOr(doc.Enabled, true),
		redactSnippets: boolOr(doc.RedactSnippets, true),
		detectors:      set,
	}, nil
}

func buildPatternEngine(source string, doc *patternEngineDoc) (PatternEngine, error) {
	if doc == nil {
		return PatternEngine{detectors: newDetectorSet(map[string]DetectorConfig{})}, nil
	}
	set, err := buildPatternDetectors(source, "/detection/prompt_injection/engines/pattern/detectors", doc.Detectors)
	if err != nil {
		return PatternEngine{}, err
	}
	return PatternEngine{enabled: boolOr(doc.Enabled, true), detectors: set}, nil
}

func buildPluginScanner(source string, doc *pluginScannerDoc) (PluginScannerEngine, error) {
	if doc == nil {
		return PluginScannerEngine{detectors: newDetectorSet(map[string]PluginDetectorConfig{})}, nil
	}
	const field = "/detection/secrets/engines/plugin_scanner/detectors"
	ids := newIDTracker(source, field)
	plugins := make(map[string]string)
	out := make(map[string]PluginDetectorConfig, len(doc.Detectors))
	for key, d := range doc.Detectors {
		base, err := buildDetector(source, field, key, d.detectorDoc)
		if err != nil {
			return PluginScannerEngine{}, err
		}
		if err := ids.add(key, base.ID); err != nil {
			return PluginScannerEngine{}, err
		}
		if prev, ok := plugins[d.Plugin]; ok {
			return PluginScannerEngine{}, &ConfigError{
				Source: source,
				Field:  field + "/" + key + "/plugin",
				Reason: fmt.Sprintf("plugin %q already bound by %q", d.Plugin, prev),
			}
		}
		plugins[d.Plugin] = key
		out[key] = PluginDetectorConfig{DetectorConfig: base, Plugin: d.Plugin}
	}
	return PluginScannerEngine{
		enabled:         boolOr(doc.Enabled, true),
		disabledFilters: append([]string(nil), doc.DisabledFilters...),
		detectors:       newDetectorSet(out),
	}, nil
}

func buildNLPEngine(source string, doc *nlpEngineDoc) (NLPEngine, error) {
	if doc == nil {
		return NLPEngine{
			defaultLang:           defaultLang,
			defaultScoreThreshold: defaultScoreThreshold,
			detectors:             newDetectorSet(map[string]PIIDetectorConfig{}),
		}, nil
	}
	const field = "/detection/pii/engines/nlp/detectors"
	ids := newIDTracker(source, field)
	entities := make(map[string]string)
	out := make(map[string]PIIDetectorConfig, len(doc.Detectors))
	for key, d := range doc.Detectors {
		base, err := buildDetector(source, field, key, d.detectorDoc)
		if err != nil {
			return NLPEngine{}, err
		}
		if err := ids.add(key, base.ID); err != nil {
			return NLPEngine{}, err
		}
		if prev, ok := entities[d.EntityType]; ok {
			return NLPEngine{}, &ConfigError{
				Source: source,
				Field:  field + "/" + key + "/entity_type",
				Reason: fmt.Sprintf("entity type %q already bound by %q", d.EntityType, prev),
			}
		}
		entities[d.EntityType] = key
		cfg := PIIDetectorConfig{
			DetectorConfig: base,
			EntityType:     d.EntityType,
			contextWords:   append([]string(nil), d.ContextWords...),
		}
		if d.ScoreThreshold != nil {
			cfg.scoreThreshold = *d.ScoreThreshold
			cfg.hasScoreThreshold = true
		}
		out[key] = cfg
	}

	eng := NLPEngine{
		enabled:               boolOr(doc.Enabled, true),
		defaultLang:           doc.DefaultLang,
		defaultModel:          doc.DefaultModel,
		defaultScoreThreshold: defaultScoreThreshold,
		detectors:             newDetectorSet(out),
	}
	if eng.defaultLang == "" {
		eng.defaultLang = defaultLang
	}
	if doc.DefaultScoreThreshold != nil {
		eng.defaultScoreThreshold = *doc.DefaultScoreThreshold
	}
	return eng, nil
}

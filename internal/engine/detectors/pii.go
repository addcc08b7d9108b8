package detectors

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/engine"
	"github.com/triage-ai/inspection/internal/nlp"
	"github.com/triage-ai/inspection/internal/policy"
)

// PIIDetector maps NLP analyzer results onto policy-configured PII findings.
type PIIDetector struct {
	analyzer  nlp.Analyzer
	lang      string
	threshold float64
	entities  []string
	byEntity  map[string]policy.PIIDetectorConfig
	context   map[string][]string
	logger    *zap.Logger
}

func NewPIIDetector(p *policy.Policy, analyzer nlp.Analyzer, logger *zap.Logger) *PIIDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	eng := p.NLP()
	byEntity := eng.ActiveByEntity()

	entities := make([]string, 0, len(byEntity))
	ctxWords := make(map[string][]string)
	for entity, cfg := range byEntity {
		entities = append(entities, entity)
		if words := cfg.ContextWords(); len(words) > 0 {
			ctxWords[entity] = words
		}
	}
	sort.Strings(entities)

	if len(entities) == 0 {
		logger.Warn("detector initialized with no active entities",
			zap.String("detector", "pii"),
			zap.String("policy_section", "detection.pii.engines.nlp"),
		)
	}

	return &PIIDetector{
		analyzer:  analyzer,
		lang:      eng.DefaultLang(),
		threshold: eng.DefaultScoreThreshold(),
		entities:  entities,
		byEntity:  byEntity,
		context:   ctxWords,
		logger:    logger,
	}
}

func (d *PIIDetector) Name() string {
	return "pii"
}

func (d *PIIDetector) Category() engine.Category {
	return engine.CategoryPII
}

// Warmup loads the analyzer. Skipped when no entity is active.
func (d *PIIDetector) Warmup(ctx context.Context) error {
	if len(d.entities) == 0 {
		return nil
	}
	if err := d.analyzer.Warmup(ctx); err != nil {
		return fmt.Errorf("pii warmup: %w", err)
	}
	return nil
}

// Detect calls the analyzer once with the engine default threshold, then
// drops results below their entity's own threshold.
func (d *PIIDetector) Detect(ctx context.Context, text string) ([]engine.Finding, error) {
	if text == "" || len(d.entities) == 0 {
		return nil, nil
	}

	results, err := d.analyzer.Analyze(ctx, nlp.AnalyzeRequest{
		Text:           text,
		Language:       d.lang,
		ScoreThreshold: d.threshold,
		Entities:       d.entities,
		ContextWords:   d.context,
	})
	if err != nil {
		return nil, fmt.Errorf("pii analyze: %w", err)
	}

	ix := engine.NewTextIndex(text)
	var findings []engine.Finding
	for _, r := range results {
		cfg, ok := d.byEntity[r.EntityType]
		if !ok {
			continue
		}
		if r.Score < cfg.EffectiveThreshold(d.threshold) {
			continue
		}
		if r.Start < 0 || r.End <= r.Start || r.End > len(text) {
			return nil, fmt.Errorf("pii analyze: invalid span [%d,%d) for %s", r.Start, r.End, r.EntityType)
		}
		start, end := ix.Span(r.Start, r.End)
		msg := cfg.DisplayName
		if msg == "" {
			msg = fmt.Sprintf("PII detected: %s", r.EntityType)
		}
		findings = append(findings, engine.Finding{
			Type:       cfg.ID,
			Start:      start,
			End:        end,
			Snippet:    text[r.Start:r.End],
			Message:    msg,
			Severity:   cfg.Severity,
			Confidence: engine.Confidence(r.Score),
		})
	}
	return findings, nil
}

package nlp

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

const (
	contextPrefixWords  = 5
	contextBoost        = 0.35
	contextMinimumScore = 0.4
	defaultLanguage     = "en"
)

// RecognizerEngine is an in-process Analyzer built from pattern
// recognizers with validation and context-word score enhancement.
type RecognizerEngine struct {
	recognizers []recognizer
	languages   map[string]bool
	logger      *zap.Logger
}

// NewRecognizerEngine returns an engine with the built-in English
// recognizers.
func NewRecognizerEngine(logger *zap.Logger) *RecognizerEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecognizerEngine{
		recognizers: builtinRecognizers,
		languages:   map[string]bool{defaultLanguage: true},
		logger:      logger,
	}
}

// SupportedEntities lists the entity types this engine can return.
func (e *RecognizerEngine) SupportedEntities() []string {
	out := make([]string, 0, len(e.recognizers))
	for _, r := range e.recognizers {
		out = append(out, r.entity)
	}
	return out
}

// Warmup runs every recognizer once over a fixed sample.
func (e *RecognizerEngine) Warmup(ctx context.Context) error {
	sample := "Contact jane@example.org or +1 212 555 0100 from 203.0.113.7"
	results, err := e.Analyze(ctx, AnalyzeRequest{Text: sample, Language: defaultLanguage})
	if err != nil {
		return fmt.Errorf("recognizer warmup: %w", err)
	}
	e.logger.Debug("recognizer engine warmed up",
		zap.Int("recognizers", len(e.recognizers)),
		zap.Int("sample_results", len(results)),
	)
	return nil
}

// Analyze returns entities scoring at or above req.ScoreThreshold, sorted
// by position.
func (e *RecognizerEngine) Analyze(ctx context.Context, req AnalyzeRequest) ([]Result, error) {
	lang := req.Language
	if lang == "" {
		lang = defaultLanguage
	}
	if !e.languages[lang] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	if req.Text == "" {
		return nil, nil
	}

	wanted := make(map[string]bool, len(req.Entities))
	for _, ent := range req.Entities {
		wanted[ent] = true
	}

	var words []word
	var results []Result
	for _, rec := range e.recognizers {
		if len(wanted) > 0 && !wanted[rec.entity] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, p := range rec.patterns {
			for _, loc := range p.re.FindAllStringIndex(req.Text, -1) {
				score := p.score
				if rec.validate != nil {
					s, ok := rec.validate(req.Text[loc[0]:loc[1]], score)
					if !ok {
						continue
					}
					score = s
				}
				if ctxWords := req.ContextWords[rec.entity]; len(ctxWords) > 0 && score < 1.0 {
					if words == nil {
						words = tokenize(req.Text)
					}
					score = enhance(score, loc[0], words, ctxWords)
				}
				results = append(results, Result{EntityType: rec.entity, Start: loc[0], End: loc[1], Score: score})
			}
		}
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Score >= req.ScoreThreshold {
			filtered = append(filtered, r)
		}
	}
	filtered = removeContained(filtered)
	sortResults(filtered)
	return filtered, nil
}

type word struct {
	text  string
	start int
}

func tokenize(text string) []word {
	var out []word
	start := -1
	for i, r := range text {
		inWord := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-'
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			out = append(out, word{text: strings.ToLower(text[start:i]), start: start})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, word{text: strings.ToLower(text[start:]), start: start})
	}
	return out
}

// enhance raises score when one of contextWords appears among the words
// just before the match.
func enhance(score float64, matchStart int, words []word, contextWords []string) float64 {
	end := 0
	for end < len(words) && words[end].start < matchStart {
		end++
	}
	begin := end - contextPrefixWords
	if begin < 0 {
		begin = 0
	}
	for _, w := range words[begin:end] {
		for _, cw := range contextWords {
			if w.text == strings.ToLower(cw) {
				boosted := score + contextBoost
				if boosted < contextMinimumScore {
					boosted = contextMinimumScore
				}
				if boosted > 1.0 {
					boosted = 1.0
				}
				return boosted
			}
		}
	}
	return score
}

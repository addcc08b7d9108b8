package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/metrics"
)

// ErrNoDetectors is returned when an orchestrator has nothing to run.
var ErrNoDetectors = errors.New("no detectors configured")

// DetectionError reports the detector that failed a run. The whole
// inspection fails with it; partial results are never returned.
type DetectionError struct {
	Detector string
	Err      error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detector %s failed: %v", e.Detector, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// Orchestrator runs a fixed, ordered set of detectors over a prompt and
// merges their findings.
type Orchestrator struct {
	detectors []Detector
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator over detectors in execution order.
func NewOrchestrator(detectors []Detector, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		detectors: append([]Detector(nil), detectors...),
		logger:    logger,
	}
}

// Detectors returns the detectors in execution order.
func (o *Orchestrator) Detectors() []Detector {
	return append([]Detector(nil), o.detectors...)
}

// Detect runs every detector sequentially and returns the deduplicated
// findings in detector order, first occurrence wins.
//
// An empty detector set is an error even for empty text. Empty text then
// returns no findings without touching any detector. The first detector
// error (or panic) aborts the run with a *DetectionError.
func (o *Orchestrator) Detect(ctx context.Context, text string) ([]Finding, error) {
	if len(o.detectors) == 0 {
		return nil, ErrNoDetectors
	}
	if text == "" {
		return nil, nil
	}

	var all []Finding
	for _, d := range o.detectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		findings, err := runDetector(ctx, d, text)
		metrics.DetectorDuration.WithLabelValues(d.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.DetectorErrors.WithLabelValues(d.Name()).Inc()
			o.logger.Error("detector failed",
				zap.String("detector", d.Name()),
				zap.String("category", d.Category().String()),
				zap.Error(err),
			)
			return nil, &DetectionError{Detector: d.Name(), Err: err}
		}

		for i := range findings {
			if findings[i].Category == CategoryUnspecified {
				findings[i].Category = d.Category()
			}
			if findings[i].Detector == "" {
				findings[i].Detector = d.Name()
			}
		}
		all = append(all, findings...)
	}

	return Dedupe(all), nil
}

func runDetector(ctx context.Context, d Detector, text string) (findings []Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Detect(ctx, text)
}

// Dedupe drops findings whose (type, start, end) was already seen.
func Dedupe(findings []Finding) []Finding {
	if len(findings) == 0 {
		return nil
	}
	seen := make(map[FindingKey]struct{}, len(findings))
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		k := f.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}

package server

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/triage-ai/inspection/internal/auth"
	"github.com/triage-ai/inspection/internal/engine"
	"github.com/triage-ai/inspection/internal/lifecycle"
	"github.com/triage-ai/inspection/internal/metrics"
	"github.com/triage-ai/inspection/internal/policy"
	"github.com/triage-ai/inspection/internal/storage"
)

// ErrNotReady is returned while warmup has not published a pipeline.
var ErrNotReady = errors.New("inspection service not ready")

// Meta is optional caller metadata. It is recorded with the event and
// otherwise opaque to detection.
type Meta struct {
	UserID string
	Source string
}

// Request is one prompt to inspect.
type Request struct {
	Prompt string
	Meta   Meta
}

// Result is the outcome of one inspection.
type Result struct {
	RequestID   string
	IsAllowed   bool
	Findings    []engine.Finding
	Reason      string
	MaxSeverity policy.Severity
	LatencyMs   float32
}

// PipelineSource publishes the warmed-up pipeline. *lifecycle.Manager
// satisfies it.
type PipelineSource interface {
	Pipeline() *lifecycle.Pipeline
}

// Options configures an InspectionServer.
type Options struct {
	MaxConcurrent int64 // Default: GOMAXPROCS
	Writer        storage.EventWriter
	Logger        *zap.Logger
}

// InspectionServer runs prompts through the published pipeline.
type InspectionServer struct {
	pipelines PipelineSource
	sem       *semaphore.Weighted
	writer    storage.EventWriter
	logger    *zap.Logger
}

func NewInspectionServer(pipelines PipelineSource, opts Options) *InspectionServer {
	n := opts.MaxConcurrent
	if n <= 0 {
		n = int64(runtime.GOMAXPROCS(0))
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := opts.Writer
	if writer == nil {
		writer = storage.NewLogWriter(logger)
	}
	return &InspectionServer{
		pipelines: pipelines,
		sem:       semaphore.NewWeighted(n),
		writer:    writer,
		logger:    logger,
	}
}

// Inspect runs detection and the block decision for one prompt.
//
// Flow:
//  1. Reject with ErrNotReady until a pipeline is published
//  2. Wait for a worker slot (ctx cancellation aborts the wait)
//  3. Detect + decide; a *engine.DetectionError fails the whole request
//  4. Fire-and-forget the inspection event
func (s *InspectionServer) Inspect(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	p := s.pipelines.Pipeline()
	if p == nil {
		metrics.Inspections.WithLabelValues("not_ready").Inc()
		return nil, ErrNotReady
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		metrics.Inspections.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.InFlight.Inc()
	findings, decision, err := p.Inspect(ctx, req.Prompt)
	metrics.InFlight.Dec()
	s.sem.Release(1)

	requestID := uuid.New().String()
	elapsed := time.Since(start)
	metrics.InspectionDuration.Observe(elapsed.Seconds())
	latencyMs := float32(float64(elapsed) / float64(time.Millisecond))

	if err != nil {
		metrics.Inspections.WithLabelValues("error").Inc()
		var detErr *engine.DetectionError
		if errors.As(err, &detErr) {
			s.writeEvent(ctx, req, p, requestID, nil, engine.Decision{Reason: "error"}, detErr.Detector, latencyMs)
		}
		return nil, err
	}

	outcome := "allowed"
	if !decision.Allowed {
		outcome = "blocked"
	}
	metrics.Inspections.WithLabelValues(outcome).Inc()
	for _, f := range findings {
		metrics.Findings.WithLabelValues(f.Category.String(), f.Severity.String()).Inc()
	}

	s.writeEvent(ctx, req, p, requestID, findings, decision, "", latencyMs)

	return &Result{
		RequestID:   requestID,
		IsAllowed:   decision.Allowed,
		Findings:    findings,
		Reason:      decision.Reason,
		MaxSeverity: decision.MaxSeverity,
		LatencyMs:   latencyMs,
	}, nil
}

func (s *InspectionServer) writeEvent(
	ctx context.Context,
	req Request,
	p *lifecycle.Pipeline,
	requestID string,
	findings []engine.Finding,
	decision engine.Decision,
	failedDetector string,
	latencyMs float32,
) {
	types := make([]string, len(findings))
	severities := make([]string, len(findings))
	categories := make([]string, len(findings))
	detectors := make([]string, len(findings))
	for i, f := range findings {
		types[i] = f.Type
		severities[i] = f.Severity.String()
		categories[i] = f.Category.String()
		detectors[i] = f.Detector
	}

	var callerID string
	if c := auth.CallerFrom(ctx); c != nil {
		callerID = c.ID
	}

	s.writer.Write(&storage.InspectionEvent{
		RequestID:         requestID,
		Timestamp:         time.Now(),
		CallerID:          callerID,
		UserID:            req.Meta.UserID,
		Source:            req.Meta.Source,
		PromptHash:        storage.HashPrompt(req.Prompt),
		PromptSize:        uint32(len(req.Prompt)),
		Allowed:           failedDetector == "" && decision.Allowed,
		Reason:            decision.Reason,
		MaxSeverity:       decision.MaxSeverity.String(),
		FindingTypes:      types,
		FindingSeverities: severities,
		FindingCategories: categories,
		FindingDetectors:  detectors,
		FailedDetector:    failedDetector,
		LatencyMs:         latencyMs,
		PolicySource:      p.Policy.Source(),
	})
}

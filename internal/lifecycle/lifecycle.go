// Package lifecycle loads the policy, builds and warms the detectors, and
// publishes the resulting pipeline once, before any request is served.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/engine"
	"github.com/triage-ai/inspection/internal/metrics"
	"github.com/triage-ai/inspection/internal/policy"
)

// State is the warmup state of a Manager.
type State int32

const (
	StateNotStarted State = iota
	StateLoading
	StateBuildingDetectors
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateLoading:
		return "loading"
	case StateBuildingDetectors:
		return "building_detectors"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DetectorConstructionError reports a detector that could not be built or
// warmed up.
type DetectorConstructionError struct {
	Detector string
	Stage    string // "build" or "warmup"
	Err      error
}

func (e *DetectorConstructionError) Error() string {
	return fmt.Sprintf("detector %s %s: %v", e.Detector, e.Stage, e.Err)
}

func (e *DetectorConstructionError) Unwrap() error { return e.Err }

// Pipeline is the immutable, warmed-up detector set plus the policy it was
// built from.
type Pipeline struct {
	Policy       *policy.Policy
	Orchestrator *engine.Orchestrator
	Decision     engine.DecisionConfig
}

// Inspect runs the detectors over text and applies the block threshold.
func (p *Pipeline) Inspect(ctx context.Context, text string) ([]engine.Finding, engine.Decision, error) {
	findings, err := p.Orchestrator.Detect(ctx, text)
	if err != nil {
		return nil, engine.Decision{}, err
	}
	return findings, engine.Decide(findings, p.Decision), nil
}

// Readiness statuses.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
)

// Readiness is the health-check view of the last known state.
type Readiness struct {
	Status  string   `json:"status"`
	Details []string `json:"details,omitempty"`
}

// Config wires a Manager.
type Config struct {
	// PolicyPath is passed to Loader; empty means env then bundled default.
	PolicyPath string
	Loader     *policy.Loader

	// NewAnalyzer builds the PII analyzer. Defaults to the in-process
	// recognizer engine.
	NewAnalyzer AnalyzerFactory

	// Builders override the detector set. Defaults to DefaultBuilders().
	Builders []Builder

	Logger        *zap.Logger
	OnStateChange func(State)
}

// Manager drives one process through the warmup state machine.
type Manager struct {
	cfg Config

	runMu    sync.Mutex
	state    atomic.Int32
	pipeline atomic.Pointer[Pipeline]

	errMu sync.RWMutex
	errs  []string
}

func New(cfg Config) *Manager {
	if cfg.Loader == nil {
		cfg.Loader = policy.NewLoader()
	}
	if cfg.NewAnalyzer == nil {
		cfg.NewAnalyzer = LocalAnalyzer
	}
	if cfg.Builders == nil {
		cfg.Builders = DefaultBuilders()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{cfg: cfg}
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

// Pipeline returns the published pipeline, or nil before Ready.
func (m *Manager) Pipeline() *Pipeline {
	return m.pipeline.Load()
}

// Errors returns the errors recorded by the last failed attempt.
func (m *Manager) Errors() []string {
	m.errMu.RLock()
	defer m.errMu.RUnlock()
	return append([]string(nil), m.errs...)
}

func (m *Manager) Readiness() Readiness {
	if m.State() == StateReady {
		return Readiness{Status: StatusReady}
	}
	details := m.Errors()
	if len(details) == 0 {
		details = []string{"state: " + m.State().String()}
	}
	return Readiness{Status: StatusDegraded, Details: details}
}

// Run performs the warmup. It is a no-op once Ready; after a failure a new
// call starts a fresh attempt.
func (m *Manager) Run(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.State() == StateReady {
		return nil
	}
	start := time.Now()
	m.setErrors(nil)

	m.transition(StateLoading)
	p, err := m.cfg.Loader.Load(m.cfg.PolicyPath)
	if err != nil {
		return m.fail(fmt.Errorf("load policy: %w", err))
	}
	m.cfg.Logger.Info("policy loaded",
		zap.String("source", p.Source()),
		zap.String("block_severity", p.BlockSeverity().String()),
	)

	m.transition(StateBuildingDetectors)
	detectors, err := m.build(ctx, p)
	if err != nil {
		return m.fail(err)
	}

	m.pipeline.Store(&Pipeline{
		Policy:       p,
		Orchestrator: engine.NewOrchestrator(detectors, m.cfg.Logger),
		Decision:     engine.DecisionConfigFromPolicy(p),
	})
	m.transition(StateReady)
	m.cfg.Logger.Info("inspection pipeline ready",
		zap.Int("detectors", len(detectors)),
		zap.Duration("warmup", time.Since(start)),
	)
	return nil
}

func (m *Manager) build(ctx context.Context, p *policy.Policy) ([]engine.Detector, error) {
	deps := Deps{Logger: m.cfg.Logger}
	if needsAnalyzer(p) {
		analyzer, err := m.cfg.NewAnalyzer(p.NLP(), m.cfg.Logger)
		if err != nil {
			return nil, &DetectorConstructionError{Detector: "pii", Stage: "build", Err: err}
		}
		deps.Analyzer = analyzer
	}

	detectors := make([]engine.Detector, 0, len(m.cfg.Builders))
	for _, b := range m.cfg.Builders {
		d, err := b.Build(p, deps)
		if err != nil {
			return nil, &DetectorConstructionError{Detector: b.Name, Stage: "build", Err: err}
		}
		detectors = append(detectors, d)
	}
	if len(detectors) == 0 {
		return nil, engine.ErrNoDetectors
	}

	for _, d := range detectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := time.Now()
		if err := d.Warmup(ctx); err != nil {
			return nil, &DetectorConstructionError{Detector: d.Name(), Stage: "warmup", Err: err}
		}
		m.cfg.Logger.Debug("detector warmed up",
			zap.String("detector", d.Name()),
			zap.Duration("took", time.Since(t)),
		)
	}
	return detectors, nil
}

func (m *Manager) fail(err error) error {
	m.setErrors([]string{err.Error()})
	m.transition(StateFailed)

	fields := []zap.Field{zap.Error(err)}
	var dce *DetectorConstructionError
	if errors.As(err, &dce) {
		fields = append(fields, zap.String("detector", dce.Detector), zap.String("stage", dce.Stage))
	}
	m.cfg.Logger.Error("warmup failed", fields...)
	return err
}

func (m *Manager) setErrors(errs []string) {
	m.errMu.Lock()
	m.errs = errs
	m.errMu.Unlock()
}

func (m *Manager) transition(s State) {
	m.state.Store(int32(s))
	metrics.LifecycleState.Set(float64(s))
	m.cfg.Logger.Debug("lifecycle transition", zap.String("state", s.String()))
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(s)
	}
}

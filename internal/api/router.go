package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/auth"
	"github.com/triage-ai/inspection/internal/chread"
	"github.com/triage-ai/inspection/internal/lifecycle"
	"github.com/triage-ai/inspection/internal/server"
)

// DefaultMaxPromptBytes caps the /inspect request body.
const DefaultMaxPromptBytes = 1 << 20

// Inspector runs one inspection. *server.InspectionServer satisfies it.
type Inspector interface {
	Inspect(ctx context.Context, req server.Request) (*server.Result, error)
}

// ReadinessSource reports warmup state. *lifecycle.Manager satisfies it.
type ReadinessSource interface {
	Readiness() lifecycle.Readiness
}

// EventReader serves inspection history. *chread.Reader satisfies it.
type EventReader interface {
	ListEvents(ctx context.Context, params chread.ListEventsParams) ([]chread.EventRow, int, error)
	GetEvent(ctx context.Context, callerID, requestID string) (*chread.EventRow, error)
	GetAnalytics(ctx context.Context, callerID string, days int) (*chread.AnalyticsResult, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Inspector      Inspector
	Readiness      ReadinessSource
	Auth           auth.Authenticator // nil disables bearer auth
	Reader         EventReader        // nil if ClickHouse unavailable
	Logger         *zap.Logger
	MaxPromptBytes int64 // Default: DefaultMaxPromptBytes
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxPromptBytes <= 0 {
		deps.MaxPromptBytes = DefaultMaxPromptBytes
	}

	r := mux.NewRouter()

	// Probes and metrics (no auth)
	r.HandleFunc("/health/live", handleLive).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", deps.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Inspection and history: 503 until Ready, then Bearer auth when configured
	protected := r.NewRoute().Subrouter()
	protected.Use(deps.readyMiddleware, deps.authMiddleware)
	protected.HandleFunc("/inspect", deps.handleInspect).Methods(http.MethodPost)
	protected.HandleFunc("/api/events", deps.handleListEvents).Methods(http.MethodGet)
	protected.HandleFunc("/api/events/{request_id}", deps.handleGetEvent).Methods(http.MethodGet)
	protected.HandleFunc("/api/analytics", deps.handleGetAnalytics).Methods(http.MethodGet)

	return corsMiddleware(requestLogging(r, deps.Logger))
}

func handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *Dependencies) handleReady(w http.ResponseWriter, _ *http.Request) {
	rd := d.Readiness.Readiness()
	status := http.StatusOK
	if rd.Status != lifecycle.StatusReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rd)
}

func (d *Dependencies) ready() bool {
	return d.Readiness.Readiness().Status == lifecycle.StatusReady
}

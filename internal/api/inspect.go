package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/engine"
	"github.com/triage-ai/inspection/internal/server"
)

// handleInspect implements POST /inspect.
// Auth middleware has already validated the Bearer token when one is required.
func (d *Dependencies) handleInspect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, d.MaxPromptBytes)

	var req InspectRequest
	if err := readJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResp{Detail: "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Prompt == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "prompt is required"})
		return
	}

	sreq := server.Request{Prompt: *req.Prompt}
	if req.Meta != nil {
		sreq.Meta = server.Meta{UserID: req.Meta.UserID, Source: req.Meta.Source}
	}

	res, err := d.Inspector.Inspect(r.Context(), sreq)
	if err != nil {
		d.writeInspectError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, NewInspectResponse(res))
}

// NewInspectResponse converts an inspection result to its wire form.
func NewInspectResponse(res *server.Result) InspectResponse {
	findings := make([]FindingResp, 0, len(res.Findings))
	for _, f := range res.Findings {
		findings = append(findings, toFindingResp(f))
	}
	var reason *string
	if res.Reason != "" {
		reason = &res.Reason
	}
	return InspectResponse{
		IsAllowed: res.IsAllowed,
		Findings:  findings,
		RequestID: res.RequestID,
		Reason:    reason,
	}
}

// writeInspectError maps inspection failures to status codes. Prompt text is
// never logged; a detector failure names the detector only.
func (d *Dependencies) writeInspectError(w http.ResponseWriter, err error) {
	var detErr *engine.DetectionError
	switch {
	case errors.Is(err, server.ErrNotReady):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Service not ready"})
	case errors.As(err, &detErr):
		d.Logger.Error("inspection failed", zap.String("detector", detErr.Detector))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Detection failed", Detector: detErr.Detector})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Inspection cancelled"})
	default:
		d.Logger.Error("inspection failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Inspection failed"})
	}
}

func toFindingResp(f engine.Finding) FindingResp {
	return FindingResp{
		Type:       f.Type,
		Start:      f.Start,
		End:        f.End,
		Snippet:    f.Snippet,
		Message:    f.Message,
		Severity:   f.Severity.String(),
		Confidence: f.Confidence,
	}
}

package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/auth"
	"github.com/triage-ai/inspection/internal/chread"
)

// callerScope returns the caller whose events a request may see. An
// authenticated caller sees only its own events; without auth the optional
// caller_id query parameter narrows the result.
func callerScope(r *http.Request) string {
	if c := auth.CallerFrom(r.Context()); c != nil {
		return c.ID
	}
	return r.URL.Query().Get("caller_id")
}

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	params := chread.ListEventsParams{
		CallerID: callerScope(r),
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.PageSize < 1 {
		params.PageSize = 50
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("allowed"); v != "" {
		b := v == "true" || v == "1"
		params.Allowed = &b
	}
	if v := q.Get("user_id"); v != "" {
		params.UserID = &v
	}
	if v := q.Get("source"); v != "" {
		params.Source = &v
	}
	if v := q.Get("finding_type"); v != "" {
		params.FindingType = &v
	}
	if v := q.Get("severity"); v != "" {
		params.Severity = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}
	if events == nil {
		events = []chread.EventRow{}
	}

	writeJSON(w, http.StatusOK, EventListResp{
		Events:   events,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

func (d *Dependencies) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	requestID := mux.Vars(r)["request_id"]
	event, err := d.Reader.GetEvent(r.Context(), callerScope(r), requestID)
	if err != nil {
		d.Logger.Error("failed to get event", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get event"})
		return
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Event not found."})
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	days := queryInt(r.URL.Query(), "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	result, err := d.Reader.GetAnalytics(r.Context(), callerScope(r), days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func queryInt(q url.Values, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

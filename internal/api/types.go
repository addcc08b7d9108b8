package api

import "github.com/triage-ai/inspection/internal/chread"

// --- POST /inspect request/response ---

// InspectMeta is optional caller metadata; it is stored with the event only.
type InspectMeta struct {
	UserID string `json:"userId,omitempty"`
	Source string `json:"source,omitempty"`
}

// InspectRequest is the JSON body for POST /inspect.
type InspectRequest struct {
	Prompt *string      `json:"prompt"`
	Meta   *InspectMeta `json:"meta,omitempty"`
}

// FindingResp is one finding. Offsets are code points into the prompt.
type FindingResp struct {
	Type       string   `json:"type"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Snippet    string   `json:"snippet"`
	Message    string   `json:"message"`
	Severity   string   `json:"severity"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// InspectResponse is the JSON body returned by POST /inspect.
type InspectResponse struct {
	IsAllowed bool          `json:"isAllowed"`
	Findings  []FindingResp `json:"findings"`
	RequestID string        `json:"requestId"`
	Reason    *string       `json:"reason,omitempty"`
}

// --- Events ---

// EventListResp is a page of inspection events.
type EventListResp struct {
	Events   []chread.EventRow `json:"events"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ErrorResp is a standard error response body. Detector is set only when a
// detector failed the request.
type ErrorResp struct {
	Detail   string `json:"detail"`
	Detector string `json:"detector,omitempty"`
}

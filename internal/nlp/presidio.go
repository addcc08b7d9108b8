package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PresidioClient is an Analyzer backed by a Presidio-compatible analyzer
// service (POST /analyze, GET /health).
type PresidioClient struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewPresidioClient creates a client for the service at endpoint
// (e.g. http://presidio-analyzer:3000).
func NewPresidioClient(endpoint string, timeout time.Duration, logger *zap.Logger) *PresidioClient {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresidioClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Warmup checks that the service answers its health endpoint.
func (c *PresidioClient) Warmup(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("presidio health: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("presidio health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("presidio health: status %d", resp.StatusCode)
	}
	return nil
}

type presidioRequest struct {
	Text           string   `json:"text"`
	Language       string   `json:"language"`
	ScoreThreshold float64  `json:"score_threshold"`
	Entities       []string `json:"entities,omitempty"`
	Context        []string `json:"context,omitempty"`
}

type presidioResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// Analyze sends one analyze call. Presidio reports code point offsets; they
// are converted to byte offsets here.
func (c *PresidioClient) Analyze(ctx context.Context, req AnalyzeRequest) ([]Result, error) {
	if req.Text == "" {
		return nil, nil
	}
	lang := req.Language
	if lang == "" {
		lang = defaultLanguage
	}

	body, err := json.Marshal(presidioRequest{
		Text:           req.Text,
		Language:       lang,
		ScoreThreshold: req.ScoreThreshold,
		Entities:       req.Entities,
		Context:        flattenContext(req.ContextWords),
	})
	if err != nil {
		return nil, fmt.Errorf("presidio analyze: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("presidio analyze: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("presidio analyze: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("presidio analyze: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var raw []presidioResult
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("presidio analyze: decode response: %w", err)
	}

	offsets := runeToByteOffsets(req.Text)
	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		if r.Start < 0 || r.End <= r.Start || r.End >= len(offsets) {
			return nil, fmt.Errorf("presidio analyze: invalid span [%d,%d) for %s", r.Start, r.End, r.EntityType)
		}
		results = append(results, Result{
			EntityType: r.EntityType,
			Start:      offsets[r.Start],
			End:        offsets[r.End],
			Score:      r.Score,
		})
	}
	sortResults(results)
	return results, nil
}

// runeToByteOffsets maps each code point index (and the end position) to
// its byte offset.
func runeToByteOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

func flattenContext(words map[string][]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range words {
		for _, w := range list {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	sort.Strings(out)
	return out
}

package detectors

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/triage-ai/inspection/internal/engine"
	"github.com/triage-ai/inspection/internal/policy"
	"github.com/triage-ai/inspection/internal/secretscan"
)

// secretScannerMu serializes every configure-then-scan sequence against the
// process-wide secretscan settings. It is the only lock on the request path.
var secretScannerMu sync.Mutex

// SecretScannerDetector runs the line-oriented secretscan plugins and maps
// their hits onto policy entries.
type SecretScannerDetector struct {
	byPlugin map[string]policy.PluginDetectorConfig
	settings secretscan.Settings
	logger   *zap.Logger
}

func NewSecretScannerDetector(p *policy.Policy, logger *zap.Logger) *SecretScannerDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	eng := p.PluginScanner()
	byPlugin := eng.ActiveByPlugin()

	plugins := make([]string, 0, len(byPlugin))
	for name := range byPlugin {
		plugins = append(plugins, name)
	}
	sort.Strings(plugins)

	if len(plugins) == 0 {
		logger.Warn("detector initialized with no active plugins",
			zap.String("detector", "secret_scanner"),
			zap.String("policy_section", "detection.secrets.engines.plugin_scanner"),
		)
	}

	return &SecretScannerDetector{
		byPlugin: byPlugin,
		settings: secretscan.Settings{Plugins: plugins, DisabledFilters: eng.DisabledFilters()},
		logger:   logger,
	}
}

func (d *SecretScannerDetector) Name() string {
	return "secret_scanner"
}

func (d *SecretScannerDetector) Category() engine.Category {
	return engine.CategorySecret
}

// Warmup rejects plugin or filter names the scanner does not know and loads
// plugin rule sets.
func (d *SecretScannerDetector) Warmup(_ context.Context) error {
	if err := d.settings.Prepare(); err != nil {
		return fmt.Errorf("secret scanner: %w", err)
	}
	d.logger.Debug("secret scanner ready",
		zap.Int("plugins", len(d.settings.Plugins)),
		zap.Strings("disabled_filters", d.settings.DisabledFilters),
	)
	return nil
}

// Detect scans text line by line. Spans are relative to the whole text and
// snippets are always redacted.
func (d *SecretScannerDetector) Detect(ctx context.Context, text string) ([]engine.Finding, error) {
	if text == "" || len(d.settings.Plugins) == 0 {
		return nil, nil
	}

	secretScannerMu.Lock()
	defer secretScannerMu.Unlock()
	restore := secretscan.Apply(d.settings)
	defer restore()

	ix := engine.NewTextIndex(text)
	var findings []engine.Finding
	offset := 0
	for _, raw := range strings.Split(text, "\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSuffix(raw, "\r")
		for _, hit := range secretscan.ScanLine(line) {
			cfg, ok := d.byPlugin[hit.Type]
			if !ok {
				continue
			}
			lo, hi := 0, len(line)
			if i := strings.Index(line, hit.Value); hit.Value != "" && i >= 0 {
				lo, hi = i, i+len(hit.Value)
			}
			start, end := ix.Span(offset+lo, offset+hi)
			msg := cfg.DisplayName
			if msg == "" {
				msg = fmt.Sprintf("Potential secret detected: %s", hit.Type)
			}
			findings = append(findings, engine.Finding{
				Type:       cfg.ID,
				Start:      start,
				End:        end,
				Snippet:    engine.RedactedSnippet,
				Message:    msg,
				Severity:   cfg.Severity,
				Confidence: engine.Confidence(1.0),
			})
		}
		offset += len(raw) + 1
	}
	return findings, nil
}

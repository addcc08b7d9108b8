package secretscan

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
	"github.com/zricethezav/gitleaks/v8/report"
)

// GitleaksPlugin is the name of the plugin backed by the gitleaks default
// rule set.
const GitleaksPlugin = "GitleaksDetector"

// preparer is implemented by plugins with expensive setup that should fail
// at warmup rather than on the first scan.
type preparer interface {
	Prepare() error
}

// gitleaksPlugin runs the gitleaks default rules over a line. The detector
// is built once, on first use.
type gitleaksPlugin struct {
	detector func() (*detect.Detector, error)
	mu       sync.Mutex
}

func newGitleaksPlugin() *gitleaksPlugin {
	return &gitleaksPlugin{detector: sync.OnceValues(detect.NewDetectorDefaultConfig)}
}

func (p *gitleaksPlugin) Name() string { return GitleaksPlugin }

func (p *gitleaksPlugin) Prepare() error {
	if _, err := p.detector(); err != nil {
		return fmt.Errorf("load gitleaks rules: %w", err)
	}
	return nil
}

func (p *gitleaksPlugin) Find(line string) []string {
	d, err := p.detector()
	if err != nil {
		return nil
	}
	p.mu.Lock()
	findings := d.DetectString(line)
	p.mu.Unlock()
	return gitleaksSecrets(findings)
}

// gitleaksSecrets orders findings by column and keeps each secret once.
func gitleaksSecrets(findings []report.Finding) []string {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].StartColumn < findings[j].StartColumn
	})
	var out []string
	seen := make(map[string]bool, len(findings))
	for _, f := range findings {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		if secret == "" || seen[secret] {
			continue
		}
		seen[secret] = true
		out = append(out, secret)
	}
	return out
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/triage-ai/inspection/internal/policy"
)

func newPolicyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Validate or display the detection policy",
	}
	cmd.AddCommand(newPolicyValidateCmd(a), newPolicyShowCmd(a))
	return cmd
}

func newPolicyValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Load and validate a policy file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPolicy(a, args)
			if err != nil {
				return err
			}
			s := summarize(p)
			fmt.Fprintf(cmd.OutOrStdout(), "policy OK: %s (%d of %d detectors active, block at %s)\n",
				s.Source, s.active(), s.total(), s.BlockSeverity)
			return nil
		},
	}
}

func newPolicyShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [path]",
		Short: "Print the resolved policy as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPolicy(a, args)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(summarize(p))
		},
	}
}

func loadPolicy(a *app, args []string) (*policy.Policy, error) {
	path := a.cfg.ConfigPath
	if len(args) == 1 {
		path = args[0]
	}
	p, err := policy.NewLoader().Load(path)
	if err != nil {
		return nil, &ExitError{Code: ExitConfig, Err: err}
	}
	return p, nil
}

type detectorSummary struct {
	Key            string   `yaml:"key"`
	ID             string   `yaml:"id"`
	DisplayName    string   `yaml:"display_name,omitempty"`
	Enabled        bool     `yaml:"enabled"`
	Severity       string   `yaml:"severity"`
	Plugin         string   `yaml:"plugin,omitempty"`
	EntityType     string   `yaml:"entity_type,omitempty"`
	ScoreThreshold *float64 `yaml:"score_threshold,omitempty"`
	ContextWords   []string `yaml:"context_words,omitempty"`
}

type engineSummary struct {
	Name            string            `yaml:"name"`
	Enabled         bool              `yaml:"enabled"`
	DisabledFilters []string          `yaml:"disabled_filters,omitempty"`
	Detectors       []detectorSummary `yaml:"detectors"`
}

type policySummary struct {
	Source        string          `yaml:"source"`
	BlockSeverity string          `yaml:"block_severity"`
	Engines       []engineSummary `yaml:"engines"`
}

func (s policySummary) total() int {
	n := 0
	for _, e := range s.Engines {
		n += len(e.Detectors)
	}
	return n
}

// active counts entries enabled both on themselves and on their engine.
func (s policySummary) active() int {
	n := 0
	for _, e := range s.Engines {
		if !e.Enabled {
			continue
		}
		for _, d := range e.Detectors {
			if d.Enabled {
				n++
			}
		}
	}
	return n
}

func summarize(p *policy.Policy) policySummary {
	return policySummary{
		Source:        p.Source(),
		BlockSeverity: p.BlockSeverity().String(),
		Engines: []engineSummary{
			patternSummary("secrets.regex", p.SecretsRegex()),
			pluginSummary(p.PluginScanner()),
			nlpSummary(p.NLP()),
			patternSummary("prompt_injection.pattern", p.InjectionPatterns()),
		},
	}
}

func baseSummary(key string, c policy.DetectorConfig) detectorSummary {
	return detectorSummary{
		Key:         key,
		ID:          c.ID,
		DisplayName: c.DisplayName,
		Enabled:     c.Enabled,
		Severity:    c.Severity.String(),
	}
}

func patternSummary(name string, e policy.PatternEngine) engineSummary {
	out := engineSummary{Name: name, Enabled: e.Enabled(), Detectors: []detectorSummary{}}
	set := e.Detectors()
	for _, key := range set.Keys() {
		c, _ := set.Get(key)
		out.Detectors = append(out.Detectors, baseSummary(key, c))
	}
	return out
}

func pluginSummary(e policy.PluginScannerEngine) engineSummary {
	out := engineSummary{
		Name:            "secrets.plugin_scanner",
		Enabled:         e.Enabled(),
		DisabledFilters: e.DisabledFilters(),
		Detectors:       []detectorSummary{},
	}
	set := e.Detectors()
	for _, key := range set.Keys() {
		c, _ := set.Get(key)
		d := baseSummary(key, c.DetectorConfig)
		d.Plugin = c.Plugin
		out.Detectors = append(out.Detectors, d)
	}
	return out
}

func nlpSummary(e policy.NLPEngine) engineSummary {
	out := engineSummary{Name: "pii.nlp", Enabled: e.Enabled(), Detectors: []detectorSummary{}}
	set := e.Detectors()
	for _, key := range set.Keys() {
		c, _ := set.Get(key)
		d := baseSummary(key, c.DetectorConfig)
		d.EntityType = c.EntityType
		threshold := c.EffectiveThreshold(e.DefaultScoreThreshold())
		d.ScoreThreshold = &threshold
		d.ContextWords = c.ContextWords()
		out.Detectors = append(out.Detectors, d)
	}
	return out
}

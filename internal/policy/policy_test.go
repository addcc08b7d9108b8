package policy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-ai/inspection/configs"
)

const minimalPolicy = `
detection:
  secrets:
    engines:
      regex:
        detectors:
          aws_access_key: {id: secret_aws_access_key, severity: high}
      plugin_scanner:
        enabled: false
        detectors: {}
  pii:
    engines:
      nlp:
        default_lang: en
        default_model: en_core_web_lg
        default_score_threshold: 0.5
        detectors:
          email:
            id: pii_email
            entity_type: EMAIL_ADDRESS
            severity: medium
            score_threshold: 0.7
            context_words: [email]
  prompt_injection:
    engines:
      pattern:
        detectors:
          generic: {id: prompt_injection_generic, severity: high, enabled: false}
`

// withChange returns minimalPolicy with from replaced by to. It panics when
// from is absent so a stale case cannot pass for the wrong reason.
func withChange(from, to string) string {
	if !strings.Contains(minimalPolicy, from) {
		panic("minimalPolicy does not contain " + from)
	}
	return strings.Replace(minimalPolicy, from, to, 1)
}

func writePolicy(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func noEnv(string) string { return "" }

func TestParse_BundledDefault(t *testing.T) {
	p, err := Parse(configs.DefaultPolicy, "bundled")
	require.NoError(t, err)

	assert.Equal(t, SeverityHigh, p.BlockSeverity())

	aws, ok := p.SecretsRegex().Active("aws_access_key")
	require.True(t, ok)
	assert.Equal(t, "secret_aws_access_key", aws.ID)
	assert.Equal(t, SeverityHigh, aws.Severity)

	_, ok = p.SecretsRegex().Active("generic")
	assert.False(t, ok, "generic token pattern ships disabled")
	assert.True(t, p.SecretsRegex().RedactSnippets())

	byPlugin := p.PluginScanner().ActiveByPlugin()
	assert.Len(t, byPlugin, 24)
	assert.Equal(t, "secret_discord_bot_token", byPlugin["DiscordBotTokenDetector"].ID)
	_, ok = byPlugin["GitleaksDetector"]
	assert.False(t, ok, "gitleaks rules ship disabled")

	byEntity := p.NLP().ActiveByEntity()
	assert.Equal(t, "pii_email", byEntity["EMAIL_ADDRESS"].ID)
	assert.Equal(t, SeverityMedium, byEntity["EMAIL_ADDRESS"].Severity)
	_, urlActive := byEntity["URL"]
	assert.False(t, urlActive)

	assert.Equal(t, 3, p.InjectionPatterns().Detectors().Len())
}

func TestParse_DefaultsApplied(t *testing.T) {
	p, err := Parse([]byte(minimalPolicy), "test")
	require.NoError(t, err)

	assert.True(t, p.SecretsRegex().Enabled())
	assert.True(t, p.SecretsRegex().RedactSnippets())
	assert.False(t, p.PluginScanner().Enabled())
	assert.Equal(t, 0.5, p.NLP().DefaultScoreThreshold())

	email, ok := p.NLP().ActiveByEntity()["EMAIL_ADDRESS"]
	require.True(t, ok)
	th, set := email.ScoreThreshold()
	assert.True(t, set)
	assert.Equal(t, 0.7, th)
	assert.Equal(t, []string{"email"}, email.ContextWords())

	_, ok = p.InjectionPatterns().Active("generic")
	assert.False(t, ok)
	cfg, ok := p.InjectionPatterns().Detectors().Get("generic")
	require.True(t, ok)
	assert.False(t, cfg.Enabled)
}

func TestParse_AccessorsReturnCopies(t *testing.T) {
	p, err := Parse([]byte(minimalPolicy), "test")
	require.NoError(t, err)

	email := p.NLP().ActiveByEntity()["EMAIL_ADDRESS"]
	words := email.ContextWords()
	words[0] = "mutated"

	again := p.NLP().ActiveByEntity()["EMAIL_ADDRESS"]
	assert.Equal(t, []string{"email"}, again.ContextWords())
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty document", "", ""},
		{"comment only", "# nothing here\n", ""},
		{"top level list", "- a\n- b\n", ""},
		{"top level scalar", "just a string\n", ""},
		{"invalid yaml", "detection: [unclosed\n", ""},
		{"missing detection", "decision: {block_severity: high}\n", ""},
		{"unknown top-level key", minimalPolicy + "extra: 1\n", ""},
		{"bad severity",
			withChange("{id: secret_aws_access_key, severity: high}", "{id: a, severity: critical}"),
			"/detection/secrets/engines/regex/detectors/aws_access_key/severity"},
		{"unknown detector field",
			withChange("{id: secret_aws_access_key, severity: high}", "{id: a, severity: high, colour: red}"), ""},
		{"missing id",
			withChange("{id: prompt_injection_generic, severity: high, enabled: false}", "{severity: high}"), ""},
		{"threshold out of range",
			withChange("default_score_threshold: 0.5", "default_score_threshold: 1.5"),
			"/detection/pii/engines/nlp/default_score_threshold"},
		{"plugin missing",
			withChange("enabled: false\n        detectors: {}", "detectors: {aws: {id: a, severity: high}}"), ""},
		{"duplicate id in engine",
			withChange("generic: {id: prompt_injection_generic, severity: high, enabled: false}",
				"generic: {id: same, severity: high}\n          override: {id: same, severity: low}"), ""},
		{"all engines missing", `
detection:
  secrets: {engines: {}}
  pii: {engines: {}}
  prompt_injection: {engines: {}}
`, ""},
		{"missing plugin_scanner engine",
			withChange("      plugin_scanner:\n        enabled: false\n        detectors: {}\n", ""),
			"/detection/secrets/engines"},
		{"engine without detectors",
			withChange("        detectors:\n          aws_access_key: {id: secret_aws_access_key, severity: high}\n", "        enabled: true\n"),
			"/detection/secrets/engines/regex"},
		{"nlp without default_model",
			withChange("        default_model: en_core_web_lg\n", ""),
			"/detection/pii/engines/nlp"},
		{"nlp without default_score_threshold",
			withChange("        default_score_threshold: 0.5\n", ""),
			"/detection/pii/engines/nlp"},
		{"missing pattern engine",
			withChange("    engines:\n      pattern:\n        detectors:\n          generic: {id: prompt_injection_generic, severity: high, enabled: false}\n", "    engines: {}\n"),
			"/detection/prompt_injection/engines"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body), "test.yml")
			require.Error(t, err)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "want ConfigError, got %T: %v", err, err)
			assert.Equal(t, "test.yml", cfgErr.Source)
			if tt.field != "" {
				assert.Equal(t, tt.field, cfgErr.Field)
			}
		})
	}
}

func TestParse_SameIDAcrossEnginesAllowed(t *testing.T) {
	body := `
detection:
  secrets:
    engines:
      regex:
        detectors:
          aws_access_key: {id: secret_aws_access_key, severity: high}
      plugin_scanner:
        detectors:
          aws: {id: secret_aws_access_key, plugin: AWSKeyDetector, severity: high}
  pii:
    engines:
      nlp: {enabled: false, default_lang: en, default_model: en_core_web_lg, default_score_threshold: 0.5, detectors: {}}
  prompt_injection: {engines: {pattern: {detectors: {}}}}
`
	_, err := Parse([]byte(body), "test")
	require.NoError(t, err)
}

func TestLoader_SamePathSameInstance(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "policy.yml", minimalPolicy)
	l := NewLoader(WithGetenv(noEnv), WithBundleDir(dir))

	first, err := l.Load(path)
	require.NoError(t, err)
	second, err := l.Load(path)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLoader_DifferentPathsIndependent(t *testing.T) {
	dir := t.TempDir()
	a := writePolicy(t, dir, "a.yml", minimalPolicy)
	b := writePolicy(t, dir, "b.yml", minimalPolicy)
	l := NewLoader(WithGetenv(noEnv))

	pa, err := l.Load(a)
	require.NoError(t, err)
	pb, err := l.Load(b)
	require.NoError(t, err)
	assert.NotSame(t, pa, pb)
	assert.NotEqual(t, pa.Source(), pb.Source())
}

func TestLoader_ReloadReplacesEntry(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "policy.yml", minimalPolicy)
	l := NewLoader(WithGetenv(noEnv))

	first, err := l.Load(path)
	require.NoError(t, err)

	writePolicy(t, dir, "policy.yml", "decision: {block_severity: medium}\n"+minimalPolicy)
	reloaded, err := l.Reload(path)
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)
	assert.Equal(t, SeverityMedium, reloaded.BlockSeverity())
	assert.Equal(t, SeverityHigh, first.BlockSeverity(), "held instance is unchanged")

	cached, err := l.Load(path)
	require.NoError(t, err)
	assert.Same(t, reloaded, cached)
}

func TestLoader_Resolution(t *testing.T) {
	dir := t.TempDir()
	bundled := writePolicy(t, dir, "policy.yml", minimalPolicy)
	fromEnv := writePolicy(t, dir, "env.yml", minimalPolicy)
	explicit := writePolicy(t, dir, "explicit.yml", minimalPolicy)

	env := map[string]string{EnvConfigPath: fromEnv}
	l := NewLoader(WithBundleDir(dir), WithGetenv(func(k string) string { return env[k] }))

	got, err := l.Resolve(explicit)
	require.NoError(t, err)
	assert.Equal(t, mustEval(t, explicit), got, "explicit argument wins")

	got, err = l.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, mustEval(t, fromEnv), got, "env var is second")

	delete(env, EnvConfigPath)
	got, err = l.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, mustEval(t, bundled), got, "bundled file is last")

	got, err = l.Resolve("explicit.yml")
	require.NoError(t, err)
	assert.Equal(t, mustEval(t, explicit), got, "relative path tried under bundle dir")
}

func TestLoader_EmbeddedFallback(t *testing.T) {
	l := NewLoader(WithBundleDir(t.TempDir()), WithGetenv(noEnv))
	p, err := l.Load("")
	require.NoError(t, err)
	assert.Equal(t, embeddedSource, p.Source())
}

func TestLoader_NotFound(t *testing.T) {
	l := NewLoader(WithBundleDir(t.TempDir()), WithGetenv(noEnv), WithBundledPolicy(nil))

	_, err := l.Load("")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "missing.yml")
}

func TestLoader_InvalidFileNotCached(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "policy.yml", "")
	l := NewLoader(WithGetenv(noEnv))

	_, err := l.Load(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)

	writePolicy(t, dir, "policy.yml", minimalPolicy)
	_, err = l.Load(path)
	require.NoError(t, err)
}

func TestSeverity(t *testing.T) {
	assert.Less(t, SeverityLow.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityMedium.Rank(), SeverityHigh.Rank())
	assert.Equal(t, 0, Severity("critical").Rank())

	s, err := ParseSeverity(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, s)
	_, err = ParseSeverity("")
	assert.Error(t, err)

	assert.Equal(t, SeverityHigh, MaxSeverity(SeverityLow, SeverityHigh))
	assert.Equal(t, SeverityMedium, MaxSeverity(SeverityMedium, SeverityLow))
}

func mustEval(t *testing.T, path string) string {
	t.Helper()
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	target, err := filepath.EvalSymlinks(abs)
	require.NoError(t, err)
	return target
}

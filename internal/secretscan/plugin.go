// Package secretscan is a line-oriented secret scanner built from named
// plugins and heuristic false-positive filters.
//
// Active plugins and disabled filters are process-wide settings (see Apply).
// They are not safe for concurrent mutation; callers that change settings
// must serialize their own scans.
package secretscan

import "regexp"

// Plugin finds candidate secret values in a single line.
type Plugin interface {
	Name() string
	// Find returns the secret values present in line, in order of appearance.
	Find(line string) []string
}

// regexPlugin matches any of its patterns. When a pattern has a capture
// group, group 1 is the secret value; otherwise the whole match is.
type regexPlugin struct {
	name     string
	patterns []*regexp.Regexp
	verify   func(secret string) bool
}

func (p *regexPlugin) Name() string { return p.name }

func (p *regexPlugin) Find(line string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, re := range p.patterns {
		for _, secret := range findSecrets(re, line) {
			if seen[secret] {
				continue
			}
			if p.verify != nil && !p.verify(secret) {
				continue
			}
			seen[secret] = true
			out = append(out, secret)
		}
	}
	return out
}

// findSecrets returns every secret re finds in line. Several patterns
// consume a delimiter after the secret; the next search resumes at the end
// of the secret so that delimiter can also lead the following candidate.
// The remainder always starts with that delimiter, so a leading ^ cannot
// match a secret that is glued to the previous one.
func findSecrets(re *regexp.Regexp, line string) []string {
	var out []string
	for start := 0; start < len(line); {
		loc := re.FindStringSubmatchIndex(line[start:])
		if loc == nil {
			break
		}
		from, to := loc[0], loc[1]
		if len(loc) >= 4 && loc[2] >= 0 && loc[3] > loc[2] {
			from, to = loc[2], loc[3]
		}
		out = append(out, line[start+from:start+to])
		if to <= 0 {
			to = 1
		}
		start += to
	}
	return out
}

func newRegexPlugin(name string, verify func(string) bool, patterns ...string) *regexPlugin {
	p := &regexPlugin{name: name, verify: verify}
	for _, expr := range patterns {
		p.patterns = append(p.patterns, regexp.MustCompile(expr))
	}
	return p
}

package secretscan

import (
	"fmt"
	"strings"
)

// Settings selects the active plugins and disabled filters.
type Settings struct {
	Plugins         []string
	DisabledFilters []string
}

// DefaultSettings enables every registered plugin and filter.
func DefaultSettings() Settings {
	return Settings{Plugins: Plugins()}
}

// Validate rejects unknown plugin or filter names.
func (s Settings) Validate() error {
	for _, name := range s.Plugins {
		if _, ok := registry[name]; !ok {
			return fmt.Errorf("unknown plugin %q", name)
		}
	}
	for _, name := range s.DisabledFilters {
		if _, ok := filters[name]; !ok {
			return fmt.Errorf("unknown filter %q", name)
		}
	}
	return nil
}

// Prepare validates s and runs the one-time setup of every selected plugin.
func (s Settings) Prepare() error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, name := range s.Plugins {
		if p, ok := registry[name].(preparer); ok {
			if err := p.Prepare(); err != nil {
				return fmt.Errorf("plugin %q: %w", name, err)
			}
		}
	}
	return nil
}

func (s Settings) clone() Settings {
	return Settings{
		Plugins:         append([]string(nil), s.Plugins...),
		DisabledFilters: append([]string(nil), s.DisabledFilters...),
	}
}

// current is process-wide and unguarded; see the package documentation.
var current = DefaultSettings()

// Current returns a copy of the active settings.
func Current() Settings { return current.clone() }

// Apply replaces the active settings and returns a function that restores
// the previous ones.
func Apply(s Settings) (restore func()) {
	prev := current
	current = s.clone()
	return func() { current = prev }
}

// PotentialSecret is one candidate found on a line.
type PotentialSecret struct {
	Type  string // plugin name
	Value string
}

// ScanLine runs the active plugins over a single line and drops candidates
// rejected by an enabled filter. Results are ordered by plugin, then by
// appearance; duplicates per (type, value) are dropped.
func ScanLine(line string) []PotentialSecret {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	disabled := make(map[string]bool, len(current.DisabledFilters))
	for _, name := range current.DisabledFilters {
		disabled[name] = true
	}
	active := make([]Filter, 0, len(filters))
	for _, name := range Filters() {
		if !disabled[name] {
			active = append(active, filters[name])
		}
	}

	var out []PotentialSecret
	for _, name := range current.Plugins {
		plugin, ok := registry[name]
		if !ok {
			continue
		}
	candidates:
		for _, secret := range plugin.Find(line) {
			for _, f := range active {
				if f(secret, line) {
					continue candidates
				}
			}
			out = append(out, PotentialSecret{Type: name, Value: secret})
		}
	}
	return out
}

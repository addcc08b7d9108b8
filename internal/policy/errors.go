package policy

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no candidate policy file exists.
var ErrNotFound = errors.New("policy file not found")

// ConfigError reports a policy document that cannot be used: bad YAML,
// a schema violation, unknown fields or duplicate ids.
type ConfigError struct {
	Source string // resolved file path or "embedded:policy.yml"
	Field  string // offending location, e.g. /detection/pii/engines/nlp
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("policy %s: %s: %s", e.Source, e.Field, e.Reason)
	}
	return fmt.Sprintf("policy %s: %s", e.Source, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

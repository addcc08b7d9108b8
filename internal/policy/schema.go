package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "inspection://policy.schema.json"

const policySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["detection"],
  "properties": {
    "decision": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "block_severity": {"$ref": "#/$defs/severity"}
      }
    },
    "detection": {
      "type": "object",
      "additionalProperties": false,
      "required": ["secrets", "pii", "prompt_injection"],
      "properties": {
        "secrets": {
          "type": "object",
          "additionalProperties": false,
          "required": ["engines"],
          "properties": {
            "engines": {
              "type": "object",
              "additionalProperties": false,
              "required": ["regex", "plugin_scanner"],
              "properties": {
                "regex": {
                  "type": "object",
                  "additionalProperties": false,
                  "required": ["detectors"],
                  "properties": {
                    "enabled": {"type": "boolean"},
                    "redact_snippets": {"type": "boolean"},
                    "detectors": {
                      "type": "object",
                      "additionalProperties": {"$ref": "#/$defs/detector"}
                    }
                  }
                },
                "plugin_scanner": {
                  "type": "object",
                  "additionalProperties": false,
                  "required": ["detectors"],
                  "properties": {
                    "enabled": {"type": "boolean"},
                    "disabled_filters": {"type": "array", "items": {"type": "string"}},
                    "detectors": {
                      "type": "object",
                      "additionalProperties": {"$ref": "#/$defs/pluginDetector"}
                    }
                  }
                }
              }
            }
          }
        },
        "pii": {
          "type": "object",
          "additionalProperties": false,
          "required": ["engines"],
          "properties": {
            "engines": {
              "type": "object",
              "additionalProperties": false,
              "required": ["nlp"],
              "properties": {
                "nlp": {
                  "type": "object",
                  "additionalProperties": false,
                  "required": ["default_lang", "default_model", "default_score_threshold", "detectors"],
                  "properties": {
                    "enabled": {"type": "boolean"},
                    "default_lang": {"type": "string", "minLength": 1},
                    "default_model": {"type": "string", "minLength": 1},
                    "default_score_threshold": {"$ref": "#/$defs/score"},
                    "detectors": {
                      "type": "object",
                      "additionalProperties": {"$ref": "#/$defs/piiDetector"}
                    }
                  }
                }
              }
            }
          }
        },
        "prompt_injection": {
          "type": "object",
          "additionalProperties": false,
          "required": ["engines"],
          "properties": {
            "engines": {
              "type": "object",
              "additionalProperties": false,
              "required": ["pattern"],
              "properties": {
                "pattern": {
                  "type": "object",
                  "additionalProperties": false,
                  "required": ["detectors"],
                  "properties": {
                    "enabled": {"type": "boolean"},
                    "detectors": {
                      "type": "object",
                      "additionalProperties": {"$ref": "#/$defs/detector"}
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  },
  "$defs": {
    "severity": {"type": "string", "enum": ["low", "medium", "high"]},
    "score": {"type": "number", "minimum": 0, "maximum": 1},
    "detectorFields": {
      "type": "object",
      "required": ["id", "severity"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "display_name": {"type": "string"},
        "enabled": {"type": "boolean"},
        "severity": {"$ref": "#/$defs/severity"}
      }
    },
    "detector": {
      "$ref": "#/$defs/detectorFields",
      "unevaluatedProperties": false
    },
    "pluginDetector": {
      "$ref": "#/$defs/detectorFields",
      "required": ["plugin"],
      "properties": {
        "plugin": {"type": "string", "minLength": 1}
      },
      "unevaluatedProperties": false
    },
    "piiDetector": {
      "$ref": "#/$defs/detectorFields",
      "required": ["entity_type"],
      "properties": {
        "entity_type": {"type": "string", "minLength": 1},
        "score_threshold": {"$ref": "#/$defs/score"},
        "context_words": {"type": "array", "items": {"type": "string"}}
      },
      "unevaluatedProperties": false
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(policySchema))
	if err != nil {
		return nil, fmt.Errorf("parse policy schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add policy schema: %w", err)
	}
	return c.Compile(schemaURL)
})

// validateSchema checks a decoded YAML document against the policy schema.
// The document is round-tripped through JSON so that YAML scalars take the
// types the validator expects.
func validateSchema(source string, doc any) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return &ConfigError{Source: source, Reason: "document is not representable as JSON (non-string keys?)", Err: err}
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return &ConfigError{Source: source, Reason: "document is not representable as JSON", Err: err}
	}

	if err := sch.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := deepestCause(ve)
			return &ConfigError{
				Source: source,
				Field:  "/" + strings.Join(leaf.InstanceLocation, "/"),
				Reason: leafMessage(leaf),
				Err:    err,
			}
		}
		return &ConfigError{Source: source, Reason: "schema validation failed", Err: err}
	}
	return nil
}

func deepestCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

func leafMessage(ve *jsonschema.ValidationError) string {
	msg := ve.Error()
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		msg = msg[i+1:]
	}
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(msg), "- "))
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/FairForge/sal/internal/engine"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is returned for policy documents that fail the schema
// or name unknown levels/providers
var ErrInvalidPolicy = errors.New("invalid policy document")

// PolicyDocument is the on-disk form of a routing table
type PolicyDocument struct {
	Policies []PolicyConfig `yaml:"policies" json:"policies"`
}

const policySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["policies"],
  "additionalProperties": false,
  "properties": {
    "policies": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["level", "primary"],
        "additionalProperties": false,
        "properties": {
          "level": {
            "type": "string",
            "pattern": "^(?i)(public|standard|confidential|secret)$"
          },
          "primary": {"$ref": "#/definitions/provider"},
          "fallback": {
            "type": "array",
            "items": {"$ref": "#/definitions/provider"}
          },
          "encryption": {"type": "boolean"},
          "compression": {"type": "boolean"}
        }
      }
    }
  },
  "definitions": {
    "provider": {
      "type": "string",
      "enum": ["s3", "lob", "local", "redis", "mongo"]
    }
  }
}`

// ParsePolicyDocument validates a YAML (or JSON) policy document against
// the schema and converts it to engine policies. Later entries for the
// same level win.
func ParsePolicyDocument(data []byte) ([]engine.RoutingPolicy, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidPolicy)
	}

	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(policySchema),
		gojsonschema.NewBytesLoader(asJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidPolicy, strings.Join(msgs, "; "))
	}

	var doc PolicyDocument
	if err := json.Unmarshal(asJSON, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	policies := make([]engine.RoutingPolicy, 0, len(doc.Policies))
	for _, pc := range doc.Policies {
		p, err := pc.RoutingPolicy()
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// LoadPolicyFile reads and validates a policy document
func LoadPolicyFile(path string) ([]engine.RoutingPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicyDocument(data)
}

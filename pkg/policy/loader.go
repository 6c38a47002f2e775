package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// EngineVersion is the semantic version of the decision engine. Policy
// documents may pin the engine range they were written for via the
// `engine` constraint.
const EngineVersion = "1.0.0"

// policySchemaJSON rejects unknown keys and out-of-range values before a
// document is ever decoded into a Policy.
const policySchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"engine": {"type": "string", "minLength": 1},
		"name": {"type": "string"},
		"expiry_required": {"type": "boolean"},
		"tracking_policy": {"enum": ["LOT_ONLY", "SERIAL_ONLY", "LOT_AND_SERIAL"]},
		"missing_gs_behavior": {"enum": ["BLOCK", "LOOKAHEAD"]},
		"accept_numeric_as_gtin": {"type": "boolean"},
		"enforce_gtin_checkdigit": {"type": "boolean"},
		"near_expiry_threshold_days": {"type": "integer", "minimum": 0},
		"near_expiry_severity": {"enum": ["WARN", "BLOCK"]},
		"allow_commit_on_warn": {"type": "boolean"},
		"no_block": {"type": "boolean"}
	}
}`

var documentSchema = jsonschema.MustCompileString("athscan://policy.schema.json", policySchemaJSON)

// Document is the on-disk form of a policy: the policy fields plus an
// optional name and an optional engine version constraint.
type Document struct {
	Engine string `yaml:"engine,omitempty" json:"engine,omitempty"`
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
	Policy `yaml:",inline"`
}

// LoadFile loads and validates a policy document from a YAML file.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read policy file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("policy file %s: %w", path, err)
	}
	return doc, nil
}

// Parse validates a YAML policy document against the embedded schema and
// the engine version constraint, then decodes it over the built-in
// defaults, so omitted fields keep their documented default values.
func Parse(data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, fmt.Errorf("empty policy document")
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("parse policy document: %w", err)
	}

	// The schema validator wants JSON-typed values, so round-trip the
	// decoded YAML through encoding/json before validating.
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return Document{}, fmt.Errorf("encode policy document: %w", err)
	}
	var jsonValue any
	if err := json.Unmarshal(jsonBytes, &jsonValue); err != nil {
		return Document{}, fmt.Errorf("decode policy document: %w", err)
	}
	if err := documentSchema.Validate(jsonValue); err != nil {
		return Document{}, fmt.Errorf("policy document invalid: %w", err)
	}

	doc := Document{Policy: Default()}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode policy document: %w", err)
	}

	if doc.Engine != "" {
		constraint, err := semver.NewConstraint(doc.Engine)
		if err != nil {
			return Document{}, fmt.Errorf("invalid engine constraint %q: %w", doc.Engine, err)
		}
		if !constraint.Check(semver.MustParse(EngineVersion)) {
			return Document{}, fmt.Errorf("policy requires engine %q, this engine is %s", doc.Engine, EngineVersion)
		}
	}

	if err := doc.Policy.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

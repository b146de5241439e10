package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://chatbridge.local/schemas/"

var inboundKinds = []string{KindMessage, KindAnnouncement, KindCommand, KindQuery}

// Validator checks inbound payloads against the embedded JSON Schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles one schema per inbound kind.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	for _, kind := range inboundKinds {
		raw, err := schemaFS.ReadFile("schemas/" + kind + ".json")
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", kind, err)
		}
		if err := compiler.AddResource(schemaBase+kind+".json", bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", kind, err)
		}
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(inboundKinds))}
	for _, kind := range inboundKinds {
		compiled, err := compiler.Compile(schemaBase + kind + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", kind, err)
		}
		v.schemas[kind] = compiled
	}
	return v, nil
}

var defaultValidator = sync.OnceValues(NewValidator)

// DefaultValidator returns a shared Validator compiled on first use.
func DefaultValidator() (*Validator, error) { return defaultValidator() }

// Validate checks raw against the schema for kind. Kinds without a schema pass.
// An empty payload is validated as JSON null. A nil Validator accepts everything.
func (v *Validator) Validate(kind string, raw []byte) error {
	if v == nil {
		return nil
	}
	compiled, ok := v.schemas[kind]
	if !ok {
		return nil
	}
	var payload any
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("malformed %s payload: %w", kind, err)
		}
	}
	if err := compiled.Validate(payload); err != nil {
		return fmt.Errorf("invalid %s payload: %w", kind, err)
	}
	return nil
}

// Decode validates raw as kind and unmarshals it into T. A nil validator
// skips schema checks.
func Decode[T any](v *Validator, kind string, raw []byte) (T, error) {
	var out T
	if err := v.Validate(kind, raw); err != nil {
		return out, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return out, nil
}

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const datePattern = `^\d{4}-\d{2}-\d{2}$`

// JSONSchema renders the schema as a JSON-Schema (draft 2020-12 subset)
// generic map. It is sent to providers as a structured-output constraint
// and compiled locally to validate their responses.
func (s *Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	var required []string

	for _, f := range s.Fields {
		var prop map[string]any
		switch f.Type {
		case TypeNumber:
			prop = map[string]any{"type": "number"}
			if f.Min != 0 || f.Max != 0 {
				prop["minimum"] = f.Min
				prop["maximum"] = f.Max
			}
		case TypeDate:
			prop = map[string]any{"type": "string", "pattern": datePattern}
		default:
			prop = map[string]any{"type": "string"}
			if f.MinLength > 0 {
				prop["minLength"] = f.MinLength
			}
			if f.Pattern != "" {
				prop["pattern"] = f.Pattern
			}
		}
		props[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}

	// Providers may annotate their own per-field confidence.
	props["confidence_scores"] = map[string]any{
		"type":                 "object",
		"additionalProperties": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

// Compile compiles the JSON-Schema form for repeated response validation.
func (s *Schema) Compile() (*jsonschema.Schema, error) {
	b, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(s.Name+".json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile(s.Name + ".json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

var compiledCache sync.Map // *Schema -> *jsonschema.Schema

// Compiled returns the memoized compiled form, compiling on first use.
func (s *Schema) Compiled() (*jsonschema.Schema, error) {
	if v, ok := compiledCache.Load(s); ok {
		return v.(*jsonschema.Schema), nil
	}
	compiled, err := s.Compile()
	if err != nil {
		return nil, err
	}
	compiledCache.Store(s, compiled)
	return compiled, nil
}

// ValidateDocument validates raw JSON against a compiled schema.
func ValidateDocument(compiled *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// Package parser reads lattice schema documents.
//
// A schema document lists tables, as JSON:
//
//	{"tables": [{"name": "posts", "fields": [{"name": "title", "type": "single-line-text"}]}]}
//
// or as the equivalent YAML:
//
//	tables:
//	  - name: posts
//	    fields:
//	      - name: title
//	        type: single-line-text
//
// YAML is converted to JSON before decoding, so both formats share the json
// struct tags of pkg/schema. A bare list of tables is accepted as well.
//
// # Basic Usage
//
//	tables, err := parser.ParseSchema("schema.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Every parsed schema has passed schema.Validate. Errors wrap
// lattice.ErrInvalidSchema; use the pkg/schema Is*Err helpers for details.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/pthm/lattice"
	"github.com/pthm/lattice/pkg/schema"
)

// ParseSchema reads a JSON or YAML schema document and returns its tables.
func ParseSchema(path string) ([]schema.Table, error) {
	content, err := os.ReadFile(path) //nolint:gosec // path is from trusted source
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}

	return ParseSchemaBytes(content)
}

// ParseSchemaString parses a JSON or YAML schema document.
func ParseSchemaString(content string) ([]schema.Table, error) {
	return ParseSchemaBytes([]byte(content))
}

// ParseSchemaBytes parses a JSON or YAML schema document.
func ParseSchemaBytes(content []byte) ([]schema.Table, error) {
	tables, err := Decode(content)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(tables); err != nil {
		return nil, fmt.Errorf("%w: %w", lattice.ErrInvalidSchema, err)
	}
	return tables, nil
}

// Decode decodes a schema document without validating it.
// Unknown properties are rejected so that typos do not silently drop rules.
func Decode(content []byte) ([]schema.Table, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("%w: empty document", lattice.ErrInvalidSchema)
	}

	data, err := yaml.YAMLToJSON(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lattice.ErrInvalidSchema, err)
	}
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '[' {
		var tables []schema.Table
		if err := decodeStrict(data, &tables); err != nil {
			return nil, err
		}
		return tables, nil
	}

	var doc schema.Schema
	if err := decodeStrict(data, &doc); err != nil {
		return nil, err
	}
	if doc.Tables == nil {
		return nil, fmt.Errorf("%w: document has no tables property", lattice.ErrInvalidSchema)
	}
	return doc.Tables, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: %s must be %s, got %s", lattice.ErrInvalidSchema, typeErr.Field, typeErr.Type, typeErr.Value)
		}
		return fmt.Errorf("%w: %v", lattice.ErrInvalidSchema, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected content after the document", lattice.ErrInvalidSchema)
	}
	return nil
}

// Encode renders tables as an indented JSON schema document.
func Encode(tables []schema.Table) ([]byte, error) {
	return json.MarshalIndent(schema.Schema{Tables: tables}, "", "  ")
}

// EncodeYAML renders tables as a YAML schema document.
func EncodeYAML(tables []schema.Table) ([]byte, error) {
	return yaml.Marshal(schema.Schema{Tables: tables})
}

// Package validate checks JSON and YAML documents against JSON schemas.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Error reports a document that does not conform to a schema.
type Error struct {
	Schema string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Schema, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Schema is a compiled JSON schema. It is safe for concurrent use.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// Compile compiles the JSON schema document def under name.
func Compile(name string, def []byte) (*Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(def))
	if err != nil {
		return nil, fmt.Errorf("parse schema %q: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	// The name goes in the path: hosts reject spaces and escapes.
	loc := "schema:///" + url.PathEscape(name) + ".json"
	if err := c.AddResource(loc, doc); err != nil {
		return nil, fmt.Errorf("add schema %q: %w", name, err)
	}
	compiled, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustCompile is Compile for schemas embedded in the binary.
func MustCompile(name string, def []byte) *Schema {
	s, err := Compile(name, def)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the name the schema was compiled under.
func (s *Schema) Name() string { return s.name }

// ValidateJSON validates a raw JSON document.
func (s *Schema) ValidateJSON(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &Error{Schema: s.name, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	return s.validate(doc)
}

// Validate validates an already decoded document, such as the result of
// unmarshaling YAML into an any. The value is normalized through JSON
// first so numbers and maps have the shapes the validator expects.
func (s *Schema) Validate(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &Error{Schema: s.name, Err: fmt.Errorf("encode document: %w", err)}
	}
	return s.ValidateJSON(raw)
}

func (s *Schema) validate(doc any) error {
	if err := s.compiled.Validate(doc); err != nil {
		return &Error{Schema: s.name, Err: err}
	}
	return nil
}

package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	SchemaCommand      = "command.schema.json"
	SchemaResult       = "result.schema.json"
	SchemaNotification = "notification.schema.json"
)

const schemaBaseURL = "mem://kittyledger/"

// Validator holds the compiled wire schemas. Safe for concurrent use.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	names := []string{SchemaCommand, SchemaResult, SchemaNotification}
	for _, name := range names {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := c.AddResource(schemaBaseURL+name, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := c.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

// Validate checks an already decoded JSON value (the output of json.Unmarshal into any).
func (v *Validator) Validate(schema string, doc any) error {
	s, ok := v.schemas[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q", schema)
	}
	return s.Validate(doc)
}

func (v *Validator) ValidateJSON(schema string, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return v.Validate(schema, doc)
}

// ValidateValue round-trips x through JSON and validates the result.
func (v *Validator) ValidateValue(schema string, x any) error {
	raw, err := json.Marshal(x)
	if err != nil {
		return err
	}
	return v.ValidateJSON(schema, raw)
}

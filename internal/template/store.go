package template

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"gradecard/internal/checkpoint"
)

//go:embed schema.json
var schemaJSON []byte

// ErrInvalidTemplate is returned when a template file fails schema validation.
var ErrInvalidTemplate = errors.New("invalid coordinate template")

var templateSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("template: load schema: %v", err))
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		panic(fmt.Sprintf("template: compile schema: %v", err))
	}
	return schema
}

// Save writes the template as indented JSON, atomically replacing path.
func (t *CoordinateTemplate) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "    ")
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	if err := checkpoint.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write template %s: %w", path, err)
	}
	return nil
}

// Load reads a template and validates it against the embedded schema.
func Load(path string) (*CoordinateTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	return t, nil
}

// Parse validates and decodes a JSON template.
func Parse(data []byte) (*CoordinateTemplate, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if err := templateSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	var t CoordinateTemplate
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return &t, nil
}

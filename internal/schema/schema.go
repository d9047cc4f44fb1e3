// Package schema defines the field specifications a document extraction must
// satisfy, and validates/normalizes extracted values against them.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/maiphh/ocr/internal/common"
)

// FieldType is the tagged type of a schema field.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeDate   FieldType = "date"
	TypeNumber FieldType = "number"
)

// FormatISODate asks the validator to re-emit date values as YYYY-MM-DD.
const FormatISODate = "iso-date"

// FieldSpec describes one extractable field. Immutable once handed to a
// pipeline run; the schema as a whole is swappable between runs only.
type FieldSpec struct {
	Type        FieldType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	Nullable    bool      `json:"nullable,omitempty"`
	Format      string    `json:"format,omitempty"`
	Regex       string    `json:"regex,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Description string    `json:"description,omitempty"`
	Example     string    `json:"example,omitempty"`

	re *regexp.Regexp // compiled at load time when Regex is set
}

// Schema is an ordered mapping of field name -> FieldSpec. Field declaration
// order is preserved because it drives CSV/table/export column order.
type Schema struct {
	fields map[string]FieldSpec
	order  []string
}

// New builds a schema from fields in the given order. Names absent from the
// fields map are ignored; fields absent from the order are appended last.
func New(fields map[string]FieldSpec, order []string) (*Schema, error) {
	s := &Schema{fields: make(map[string]FieldSpec, len(fields))}
	seen := make(map[string]bool, len(fields))
	for _, name := range order {
		if _, ok := fields[name]; !ok || seen[name] {
			continue
		}
		seen[name] = true
		s.order = append(s.order, name)
	}
	for name := range fields {
		if !seen[name] {
			s.order = append(s.order, name)
		}
	}
	for name, spec := range fields {
		compiled, err := compileSpec(name, spec)
		if err != nil {
			return nil, err
		}
		s.fields[name] = compiled
	}
	return s, nil
}

func compileSpec(name string, spec FieldSpec) (FieldSpec, error) {
	switch spec.Type {
	case TypeString, TypeDate, TypeNumber:
	case "":
		spec.Type = TypeString
	default:
		return spec, common.InvalidInputf("field %q: unknown type %q", name, spec.Type)
	}
	if spec.Regex != "" {
		re, err := regexp.Compile(spec.Regex)
		if err != nil {
			return spec, common.InvalidInputf("field %q: bad regex: %v", name, err)
		}
		spec.re = re
	}
	for _, v := range spec.Enum {
		if v == "" {
			return spec, common.InvalidInputf("field %q: empty enum value", name)
		}
	}
	return spec, nil
}

// Parse decodes a schema exchange document (field name -> spec mapping),
// preserving the key order of the JSON object.
func Parse(data []byte) (*Schema, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var fields map[string]FieldSpec
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, common.InvalidInputf("decode schema: %v", err)
	}
	order, err := objectKeyOrder(data)
	if err != nil {
		return nil, err
	}
	return New(fields, order)
}

// objectKeyOrder walks the top-level JSON object tokens to recover the key
// declaration order, which encoding/json maps discard.
func objectKeyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, common.InvalidInputf("decode schema: %v", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, common.InvalidInputf("schema must be a JSON object")
	}
	var order []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, common.InvalidInputf("decode schema: %v", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, common.InvalidInputf("schema keys must be strings")
		}
		order = append(order, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, common.InvalidInputf("decode schema field %q: %v", key, err)
		}
	}
	return order, nil
}

// metaSchema constrains schema exchange documents at load time, so a malformed
// upload is rejected before it can reach a pipeline run.
func metaSchema() map[string]any {
	return map[string]any{
		"type":          "object",
		"minProperties": 1,
		"additionalProperties": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type":        map[string]any{"type": "string", "enum": []string{"string", "date", "number"}},
				"required":    map[string]any{"type": "boolean"},
				"nullable":    map[string]any{"type": "boolean"},
				"format":      map[string]any{"type": "string"},
				"regex":       map[string]any{"type": "string"},
				"enum":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"description": map[string]any{"type": "string"},
				"example":     map[string]any{},
			},
		},
	}
}

// validateDocument validates a raw schema document against the meta-schema.
func validateDocument(data []byte) error {
	b, err := json.Marshal(metaSchema())
	if err != nil {
		return fmt.Errorf("marshal meta-schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add meta-schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile meta-schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return common.InvalidInputf("schema is not valid JSON: %v", err)
	}
	if err := compiled.Validate(v); err != nil {
		return common.InvalidInputf("schema does not match the expected shape: %v", err)
	}
	return nil
}

// Fields returns the field names in declaration order.
func (s *Schema) Fields() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Spec returns the field spec for name.
func (s *Schema) Spec(name string) (FieldSpec, bool) {
	spec, ok := s.fields[name]
	return spec, ok
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.order) }

// Has reports whether the schema declares name.
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// AddField appends a new field. Duplicate names are rejected.
func (s *Schema) AddField(name string, spec FieldSpec) error {
	if name == "" {
		return common.InvalidInputf("field name cannot be empty")
	}
	if _, ok := s.fields[name]; ok {
		return common.InvalidInputf("field %q already exists", name)
	}
	compiled, err := compileSpec(name, spec)
	if err != nil {
		return err
	}
	s.fields[name] = compiled
	s.order = append(s.order, name)
	return nil
}

// DeleteField removes a field by name.
func (s *Schema) DeleteField(name string) error {
	if _, ok := s.fields[name]; !ok {
		return common.NotFoundf("field %q not found", name)
	}
	delete(s.fields, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clone returns an independent copy; pipeline runs snapshot the schema so
// concurrent edits never affect an in-flight run.
func (s *Schema) Clone() *Schema {
	c := &Schema{
		fields: make(map[string]FieldSpec, len(s.fields)),
		order:  make([]string, len(s.order)),
	}
	for name, spec := range s.fields {
		spec.Enum = append([]string(nil), spec.Enum...)
		c.fields[name] = spec
	}
	copy(c.order, s.order)
	return c
}

// MarshalJSON emits the schema as an object with fields in declaration order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		spec, err := json.Marshal(s.fields[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(spec)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// JSONIndent renders the schema for prompt embedding.
func (s *Schema) JSONIndent() (string, error) {
	raw, err := s.MarshalJSON()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}

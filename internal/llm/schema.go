package llm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/sashabaranov/go-openai/jsonschema"
	"google.golang.org/genai"
)

var schemaCache sync.Map // reflect.Type -> *jsonschema.Definition

// SchemaPatcher is implemented by outputs that need schema constraints the
// struct tags cannot express, such as enums.
type SchemaPatcher interface {
	PatchSchema(def *jsonschema.Definition)
}

// SchemaFor returns the JSON schema generated from Out's json and description
// struct tags, then applies Out's PatchSchema if it has one. Fields tagged
// omitempty are optional.
func SchemaFor[Out any]() (*jsonschema.Definition, error) {
	var zero Out
	t := reflect.TypeOf(zero)
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*jsonschema.Definition), nil
	}
	def, err := jsonschema.GenerateSchemaForType(zero)
	if err != nil {
		return nil, fmt.Errorf("generate schema for %s: %w", t, err)
	}
	if p, ok := any(&zero).(SchemaPatcher); ok {
		p.PatchSchema(def)
	}
	schemaCache.Store(t, def)
	return def, nil
}

// decodeOutput extracts the JSON object from the model text, checks it
// against the schema and unmarshals it into out.
func decodeOutput(text string, schema *jsonschema.Definition, out any) error {
	raw, err := extractJSONObject(text)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelResponseInvalid, err)
	}
	raw, err = dropNulls(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed JSON: %w", ErrModelResponseInvalid, err)
	}
	if err := schema.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %w (response: %s)", ErrModelResponseInvalid, err, raw)
	}
	return nil
}

// schemaInstruction is appended to every structured prompt so providers
// without native response schemas still know the expected shape.
func schemaInstruction(schema *jsonschema.Definition) (string, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return "\n\nRespond ONLY with a JSON object matching this JSON schema, no markdown or other text:\n" + string(b), nil
}

// toGenaiSchema converts a JSON schema definition into Gemini's schema type.
func toGenaiSchema(d *jsonschema.Definition) *genai.Schema {
	if d == nil {
		return nil
	}
	s := &genai.Schema{
		Description: d.Description,
		Enum:        d.Enum,
		Required:    d.Required,
	}
	switch d.Type {
	case jsonschema.Object:
		s.Type = genai.TypeObject
	case jsonschema.Array:
		s.Type = genai.TypeArray
	case jsonschema.String:
		s.Type = genai.TypeString
	case jsonschema.Number:
		s.Type = genai.TypeNumber
	case jsonschema.Integer:
		s.Type = genai.TypeInteger
	case jsonschema.Boolean:
		s.Type = genai.TypeBoolean
	case jsonschema.Null:
		s.Type = genai.TypeNULL
	}
	if len(d.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(d.Properties))
		keys := make([]string, 0, len(d.Properties))
		for k, prop := range d.Properties {
			s.Properties[k] = toGenaiSchema(&prop)
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.PropertyOrdering = keys
	}
	if d.Items != nil {
		s.Items = toGenaiSchema(d.Items)
	}
	return s
}

package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Schema declares the expected shape of a structured call's reply.
// The document is standard JSON Schema; it drives three things: the
// shape hint appended to the prompt, the coercion pass, and final
// validation.
type Schema struct {
	Name string
	raw  json.RawMessage
	doc  map[string]any
}

// NewSchema parses a JSON Schema document.
func NewSchema(name string, raw string) (Schema, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Schema{}, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	return Schema{Name: name, raw: json.RawMessage(raw), doc: doc}, nil
}

// MustSchema is NewSchema that panics on error. For package-level schemas.
func MustSchema(name, raw string) Schema {
	s, err := NewSchema(name, raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Raw returns the schema document.
func (s Schema) Raw() json.RawMessage { return s.raw }

// Doc returns the parsed schema document.
func (s Schema) Doc() map[string]any { return s.doc }

// Hint renders a deterministic JSON-shape hint for the prompt, including
// enum value lists, plus the directive to return bare JSON.
func (s Schema) Hint() string {
	var b strings.Builder
	b.WriteString("Respond with ONLY a JSON value matching this shape. ")
	b.WriteString("No code fences, no prose, no explanation.\n\n")
	b.WriteString(shapeOf(s.doc))
	return b.String()
}

// shapeOf renders a compact example shape for a schema node.
// Object keys are emitted in sorted order so hints are stable.
func shapeOf(node map[string]any) string {
	if enum, ok := node["enum"].([]any); ok {
		parts := make([]string, 0, len(enum))
		for _, v := range enum {
			parts = append(parts, fmt.Sprintf("%v", v))
		}
		return `"` + strings.Join(parts, "|") + `"`
	}

	switch schemaType(node) {
	case "object":
		props, _ := node["properties"].(map[string]any)
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var parts []string
		for _, k := range keys {
			child, _ := props[k].(map[string]any)
			parts = append(parts, fmt.Sprintf("%q: %s", k, shapeOf(child)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case "array":
		items, _ := node["items"].(map[string]any)
		return "[" + shapeOf(items) + ", ...]"
	case "number":
		return "<number>"
	case "integer":
		return "<integer>"
	case "boolean":
		return "<true|false>"
	default:
		return `"<string>"`
	}
}

// schemaType returns the declared type of a node, or "" if absent.
func schemaType(node map[string]any) string {
	if node == nil {
		return ""
	}
	switch t := node["type"].(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// enumValues returns the node's enum values as strings, or nil.
func enumValues(node map[string]any) []string {
	raw, ok := node["enum"].([]any)
	if !ok {
		return nil
	}
	vals := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			vals = append(vals, s)
		}
	}
	return vals
}

package llm

import (
	"reflect"
	"testing"
)

func TestCoerceKeysAndEnums(t *testing.T) {
	schema := MustSchema("evaluation", `{
		"type": "object",
		"properties": {
			"label": {"type": "string", "enum": ["core_insight", "supporting_insight", "redundant", "filler"]},
			"score": {"type": "number"}
		}
	}`)

	c := &Coercer{}
	got := c.Apply(map[string]any{
		"Label": "Core Insight",
		"Score": "0.8",
	}, schema, false)

	want := map[string]any{
		"label": "core_insight",
		"score": 0.8,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply() = %#v, want %#v", got, want)
	}
}

func TestCoerceBooleanConfidenceWords(t *testing.T) {
	schema := MustSchema("toc", `{
		"type": "object",
		"properties": {
			"has_toc": {"type": "boolean"}
		}
	}`)

	tests := []struct {
		in   any
		want any
	}{
		{"medium", true},
		{"high", true},
		{"low", false},
		{"none", false},
		{"true", true},
		{"false", false},
		{true, true},
	}

	c := &Coercer{}
	for _, tt := range tests {
		got := c.Apply(map[string]any{"has_toc": tt.in}, schema, false)
		obj, ok := got.(map[string]any)
		if !ok {
			t.Fatalf("Apply() returned %T, want map", got)
		}
		if obj["has_toc"] != tt.want {
			t.Errorf("has_toc=%v coerced to %v, want %v", tt.in, obj["has_toc"], tt.want)
		}
	}
}

func TestCoerceNumericAbsent(t *testing.T) {
	schema := MustSchema("page", `{
		"type": "object",
		"properties": {
			"page_number": {"type": "integer"}
		}
	}`)

	c := &Coercer{}
	got := c.Apply(map[string]any{"page_number": "not specified"}, schema, false)
	obj := got.(map[string]any)
	if _, present := obj["page_number"]; present {
		t.Errorf("expected absent page_number, got %v", obj["page_number"])
	}

	got = c.Apply(map[string]any{"page_number": "12"}, schema, false)
	obj = got.(map[string]any)
	if obj["page_number"] != 12.0 {
		t.Errorf("page_number = %v, want 12", obj["page_number"])
	}
}

func TestCoerceEnumFallback(t *testing.T) {
	schema := MustSchema("claim", `{
		"type": "object",
		"properties": {
			"type": {"type": "string", "enum": ["principle", "rule", "recommendation", "constraint", "causal"]}
		}
	}`)

	c := &Coercer{}

	// Alias table.
	got := c.Apply(map[string]any{"type": "Suggestion"}, schema, false).(map[string]any)
	if got["type"] != "recommendation" {
		t.Errorf("alias: type = %v, want recommendation", got["type"])
	}

	// Fuzzy containment.
	got = c.Apply(map[string]any{"type": "causal relationship"}, schema, true).(map[string]any)
	if got["type"] != "causal" {
		t.Errorf("fuzzy: type = %v, want causal", got["type"])
	}

	// Last resort: first enum value so processing can continue.
	got = c.Apply(map[string]any{"type": "completely unrelated"}, schema, false).(map[string]any)
	if got["type"] != "principle" {
		t.Errorf("fallback: type = %v, want principle", got["type"])
	}
}

func TestCoerceNested(t *testing.T) {
	schema := MustSchema("claims", `{
		"type": "object",
		"properties": {
			"claims": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"claim": {"type": "string"},
						"type": {"type": "string", "enum": ["principle", "rule"]}
					}
				}
			}
		}
	}`)

	c := &Coercer{}
	got := c.Apply(map[string]any{
		"Claims": []any{
			map[string]any{"Claim": "Deep work compounds.", "Type": "Principle"},
		},
	}, schema, false)

	want := map[string]any{
		"claims": []any{
			map[string]any{"claim": "Deep work compounds.", "type": "principle"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply() = %#v, want %#v", got, want)
	}
}

func TestSnakeCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Label", "label"},
		{"pageNumber", "page_number"},
		{"NormalizedTitle", "normalized_title"},
		{"already_snake", "already_snake"},
		{"has_toc", "has_toc"},
	}
	for _, tt := range tests {
		if got := snakeCase(tt.in); got != tt.want {
			t.Errorf("snakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

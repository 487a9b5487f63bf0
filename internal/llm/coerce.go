package llm

import (
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

// enumAliases maps normalized model spellings to canonical enum values.
// An alias only applies when the canonical value is in the field's enum.
var enumAliases = map[string]string{
	"core":               "core_insight",
	"coreinsight":        "core_insight",
	"key_insight":        "core_insight",
	"supporting":         "supporting_insight",
	"supportinginsight":  "supporting_insight",
	"secondary":          "supporting_insight",
	"duplicate":          "redundant",
	"repetitive":         "redundant",
	"noise":              "filler",
	"padding":            "filler",
	"positive":           "happy",
	"good":               "happy",
	"principal":          "principle",
	"recommend":          "recommendation",
	"suggestion":         "recommendation",
	"cause":              "causal",
	"cause_effect":       "causal",
	"limit":              "constraint",
	"limitation":         "constraint",
	"clarifies":          "clarifies_application",
	"example":            "clarifies_application",
	"disambiguates":      "removes_ambiguity",
}

// absent strings for numeric fields are dropped rather than failing the call.
var absentValues = map[string]bool{
	"not specified": true,
	"unspecified":   true,
	"unknown":       true,
	"n/a":           true,
	"na":            true,
	"none":          true,
	"null":          true,
	"":              true,
}

// Coercer normalizes loosely-typed model output against a declared schema
// before validation. Models drift on key casing, enum spelling, and scalar
// types; a single mislabeled claim must not abort a whole book.
type Coercer struct {
	Logger *slog.Logger
}

// Apply rewrites value according to the schema. With fuzzy set, enum
// matching additionally tries substring containment before falling back
// to the first enum value.
func (c *Coercer) Apply(value any, schema Schema, fuzzy bool) any {
	return c.coerce(value, schema.doc, fuzzy)
}

func (c *Coercer) coerce(value any, node map[string]any, fuzzy bool) any {
	if node == nil {
		return value
	}

	if enum := enumValues(node); len(enum) > 0 {
		return c.coerceEnum(value, enum, fuzzy)
	}

	switch schemaType(node) {
	case "object":
		return c.coerceObject(value, node, fuzzy)
	case "array":
		return c.coerceArray(value, node, fuzzy)
	case "number", "integer":
		return coerceNumber(value)
	case "boolean":
		return coerceBool(value)
	default:
		return value
	}
}

func (c *Coercer) coerceObject(value any, node map[string]any, fuzzy bool) any {
	obj, ok := value.(map[string]any)
	if !ok {
		return value
	}
	props, _ := node["properties"].(map[string]any)

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		key := snakeCase(k)
		child, _ := props[key].(map[string]any)
		coerced := c.coerce(v, child, fuzzy)
		if coerced == nil && v != nil {
			// Dropped value ("not specified" etc.) - leave the key absent.
			continue
		}
		out[key] = coerced
	}
	return out
}

func (c *Coercer) coerceArray(value any, node map[string]any, fuzzy bool) any {
	arr, ok := value.([]any)
	if !ok {
		return value
	}
	items, _ := node["items"].(map[string]any)

	out := make([]any, len(arr))
	for i, v := range arr {
		out[i] = c.coerce(v, items, fuzzy)
	}
	return out
}

// coerceEnum resolves a value against an enum: exact, then normalized
// (lowercase, spaces to underscores), then the alias table, then fuzzy
// containment, finally the first enum value as a logged substitute.
func (c *Coercer) coerceEnum(value any, enum []string, fuzzy bool) any {
	s, ok := value.(string)
	if !ok {
		return value
	}

	members := make(map[string]bool, len(enum))
	for _, e := range enum {
		members[e] = true
	}

	if members[s] {
		return s
	}

	normalized := normalizeEnum(s)
	if members[normalized] {
		return normalized
	}

	if alias, ok := enumAliases[normalized]; ok && members[alias] {
		return alias
	}

	if fuzzy {
		for _, e := range enum {
			if strings.Contains(normalized, e) || strings.Contains(e, normalized) {
				return e
			}
		}
	}

	if c.Logger != nil {
		c.Logger.Warn("enum substitution", "value", s, "substituted", enum[0])
	}
	return enum[0]
}

// coerceNumber parses numeric strings and drops absent markers.
// Returns nil when the value should be treated as unset.
func coerceNumber(value any) any {
	switch v := value.(type) {
	case float64, int, int64:
		return v
	case string:
		trimmed := strings.TrimSpace(strings.ToLower(v))
		if absentValues[trimmed] {
			return nil
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
		return nil
	default:
		return value
	}
}

// coerceBool accepts booleans, "true"/"false", and confidence words:
// high/medium read as true, low/none as false.
func coerceBool(value any) any {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.TrimSpace(strings.ToLower(v)) {
		case "true", "yes", "high", "medium":
			return true
		case "false", "no", "low", "none":
			return false
		}
	}
	return value
}

// normalizeEnum lowercases and replaces separators with underscores.
func normalizeEnum(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// snakeCase converts camelCase/PascalCase keys to snake_case.
// Keys already in snake_case pass through unchanged.
func snakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 && s[i-1] != '_' {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// InvokeOptions tunes a single structured call.
type InvokeOptions struct {
	System      string
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

// Invoke performs a structured call: the schema's shape hint is appended
// to the prompt, the reply is parsed, coerced, and validated, and the
// result is decoded into T. A validation failure triggers one more
// coercion pass with fuzzy enum matching before the call fails with
// a schema-validation error carrying the raw reply.
func Invoke[T any](ctx context.Context, c Client, schema Schema, prompt string, tier Tier, opts *InvokeOptions) (T, error) {
	var zero T
	if opts == nil {
		opts = &InvokeOptions{}
	}
	system := opts.System
	if system == "" {
		system = DefaultSystemMessage
	}

	fullPrompt := prompt + "\n\n" + schema.Hint()

	result, err := c.Chat(ctx, &ChatRequest{
		Tier:        tier,
		System:      system,
		Prompt:      fullPrompt,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		if _, ok := err.(*Error); ok {
			return zero, err
		}
		return zero, transportErr(err)
	}

	parsed, err := extractJSON(result.Content)
	if err != nil {
		return zero, schemaErr(fmt.Errorf("extracting JSON: %w", err), result.Content)
	}

	coercer := &Coercer{Logger: opts.Logger}

	coerced := coercer.Apply(parsed, schema, false)
	if verr := validate(schema, coerced); verr != nil {
		// Second pass: fuzzy enum matching.
		coerced = coercer.Apply(parsed, schema, true)
		if verr = validate(schema, coerced); verr != nil {
			return zero, schemaErr(fmt.Errorf("reply does not match %s schema: %w", schema.Name, verr), result.Content)
		}
	}

	out, err := decodeAs[T](coerced)
	if err != nil {
		return zero, schemaErr(fmt.Errorf("decoding %s reply: %w", schema.Name, err), result.Content)
	}
	return out, nil
}

// InvokeText performs a plain text call and returns the reply verbatim.
func InvokeText(ctx context.Context, c Client, prompt string, tier Tier, opts *InvokeOptions) (string, error) {
	if opts == nil {
		opts = &InvokeOptions{}
	}
	system := opts.System
	if system == "" {
		system = DefaultSystemMessage
	}

	result, err := c.Chat(ctx, &ChatRequest{
		Tier:        tier,
		System:      system,
		Prompt:      prompt,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		if _, ok := err.(*Error); ok {
			return "", err
		}
		return "", transportErr(err)
	}
	return result.Content, nil
}

// validate checks a coerced value tree against the declared schema.
func validate(schema Schema, value any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema.raw)); err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}
	return compiled.Validate(value)
}

// decodeAs round-trips a coerced value tree into the target type.
func decodeAs[T any](value any) (T, error) {
	var out T
	b, err := json.Marshal(value)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, err
	}
	return out, nil
}

package llm

import (
	"errors"
	"fmt"
)

// Kind classifies a failed LLM call.
type Kind string

const (
	// KindTransport covers network and endpoint failures.
	KindTransport Kind = "llm_transport"

	// KindSchemaValidation means the model output could not be coerced to
	// the declared schema.
	KindSchemaValidation Kind = "schema_validation"
)

// Error is a classified LLM failure. Raw carries the model's reply for
// diagnostics when the failure is schema-related.
type Error struct {
	Kind Kind
	Err  error
	Raw  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransport reports whether err is a transport-kind LLM error.
func IsTransport(err error) bool {
	var le *Error
	return errors.As(err, &le) && le.Kind == KindTransport
}

// IsSchemaValidation reports whether err is a schema-validation LLM error.
func IsSchemaValidation(err error) bool {
	var le *Error
	return errors.As(err, &le) && le.Kind == KindSchemaValidation
}

func transportErr(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

func schemaErr(err error, raw string) *Error {
	return &Error{Kind: KindSchemaValidation, Err: err, Raw: raw}
}

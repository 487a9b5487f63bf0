package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

var claimsSchema = MustSchema("claims", `{
	"type": "object",
	"properties": {
		"claims": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"claim": {"type": "string"},
					"type": {"type": "string", "enum": ["principle", "rule", "recommendation", "constraint", "causal"]}
				},
				"required": ["claim", "type"]
			}
		}
	},
	"required": ["claims"]
}`)

type claimsReply struct {
	Claims []struct {
		Claim string `json:"claim"`
		Type  string `json:"type"`
	} `json:"claims"`
}

func TestInvokeCoercesDriftedReply(t *testing.T) {
	mock := NewMockClient()
	mock.Handler = func(req *ChatRequest) (string, error) {
		// Drifted: fenced, PascalCase keys, capitalized enum.
		return "```json\n{\"Claims\": [{\"Claim\": \"a\", \"Type\": \"Principle\"}]}\n```", nil
	}

	got, err := Invoke[claimsReply](context.Background(), mock, claimsSchema, "extract claims", TierExtraction, nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(got.Claims) != 1 {
		t.Fatalf("got %d claims, want 1", len(got.Claims))
	}
	if got.Claims[0].Claim != "a" || got.Claims[0].Type != "principle" {
		t.Errorf("claim = %+v", got.Claims[0])
	}
}

func TestInvokeAppendsShapeHint(t *testing.T) {
	mock := NewMockClient()
	mock.Handler = func(req *ChatRequest) (string, error) {
		if !strings.Contains(req.Prompt, "extract claims") {
			t.Errorf("prompt missing caller text: %q", req.Prompt)
		}
		if !strings.Contains(req.Prompt, "principle|rule|recommendation|constraint|causal") {
			t.Errorf("prompt missing enum list: %q", req.Prompt)
		}
		if !strings.Contains(req.Prompt, "No code fences") {
			t.Errorf("prompt missing bare-JSON directive")
		}
		return `{"claims": []}`, nil
	}

	if _, err := Invoke[claimsReply](context.Background(), mock, claimsSchema, "extract claims", TierExtraction, nil); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
}

func TestInvokeSchemaFailureCarriesRaw(t *testing.T) {
	mock := NewMockClient()
	mock.Handler = func(req *ChatRequest) (string, error) {
		return `{"claims": "not an array"}`, nil
	}

	_, err := Invoke[claimsReply](context.Background(), mock, claimsSchema, "extract", TierExtraction, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var le *Error
	if !errors.As(err, &le) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if le.Kind != KindSchemaValidation {
		t.Errorf("kind = %s, want %s", le.Kind, KindSchemaValidation)
	}
	if !strings.Contains(le.Raw, "not an array") {
		t.Errorf("raw reply not preserved: %q", le.Raw)
	}
}

func TestInvokeTransportError(t *testing.T) {
	mock := NewMockClient()
	mock.Handler = func(req *ChatRequest) (string, error) {
		return "", errors.New("connection reset")
	}

	_, err := Invoke[claimsReply](context.Background(), mock, claimsSchema, "extract", TierExtraction, nil)
	if !IsTransport(err) {
		t.Errorf("IsTransport = false for %v", err)
	}
}

func TestInvokeTextVerbatim(t *testing.T) {
	mock := NewMockClient()
	mock.ResponseText = "# Title\n\nSome markdown.\n"

	got, err := InvokeText(context.Background(), mock, "reconstruct", TierReasoning, nil)
	if err != nil {
		t.Fatalf("InvokeText() error = %v", err)
	}
	if got != mock.ResponseText {
		t.Errorf("InvokeText() = %q, want verbatim reply", got)
	}
}

func TestInvokeDefaultSystemMessage(t *testing.T) {
	mock := NewMockClient()
	mock.Handler = func(req *ChatRequest) (string, error) {
		return `{"claims": []}`, nil
	}

	if _, err := Invoke[claimsReply](context.Background(), mock, claimsSchema, "p", TierExtraction, nil); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].System != DefaultSystemMessage {
		t.Errorf("system = %q, want default system message", calls[0].System)
	}
}

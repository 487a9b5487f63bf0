// Package llm provides the structured LLM client used by the distillation
// pipelines. A Client wraps a chat-completions endpoint; Invoke layers JSON
// extraction, schema coercion, and validation on top of it.
package llm

import (
	"context"
	"time"
)

// Tier names a model by role rather than by identifier. The pipelines choose
// a tier per call; the client resolves it to a configured model.
type Tier string

const (
	// TierExtraction is the cheap, high-volume model (claim extraction,
	// TOC detection, density analysis).
	TierExtraction Tier = "extraction"

	// TierFiltering is the mid-range model (claim filtering).
	TierFiltering Tier = "filtering"

	// TierReasoning is the strongest model (clustering, expansion,
	// reconstruction, chapter compression, assembly).
	TierReasoning Tier = "reasoning"
)

// DefaultSystemMessage is sent when a call does not override it.
const DefaultSystemMessage = "You are not a summarizer. You are a signal extraction system. " +
	"If removing something does not reduce understanding, remove it."

// ChatRequest is a single chat-completion request.
type ChatRequest struct {
	Tier          Tier
	System        string
	Prompt        string
	Temperature   float64
	MaxTokens     int
	RequestID     string
	Timeout       time.Duration
}

// ChatResult is the reply from a chat-completion call.
type ChatResult struct {
	Content          string
	ModelUsed        string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ExecutionTime    time.Duration
}

// Client is the transport interface for chat completions.
type Client interface {
	// Chat sends a chat completion request and returns the reply text.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Name returns the client identifier (e.g., "openai").
	Name() string
}

package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const MockClientName = "mock"

// MockClient is a Client for testing. Replies are produced by Handler;
// when Handler is nil the client returns ResponseText for every call.
type MockClient struct {
	Latency      time.Duration
	ResponseText string

	// Handler, when set, decides the reply per request. Returning an
	// error simulates a transport failure.
	Handler func(req *ChatRequest) (string, error)

	mu    sync.Mutex
	calls []ChatRequest
}

// NewMockClient creates a mock client with defaults.
func NewMockClient() *MockClient {
	return &MockClient{ResponseText: "mock response"}
}

// Name returns the client identifier.
func (c *MockClient) Name() string { return MockClientName }

// Chat records the request and returns the scripted reply.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	c.mu.Lock()
	c.calls = append(c.calls, *req)
	c.mu.Unlock()

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, transportErr(ctx.Err())
		}
	}

	content := c.ResponseText
	if c.Handler != nil {
		var err error
		content, err = c.Handler(req)
		if err != nil {
			return nil, transportErr(err)
		}
	}

	promptTokens := len(req.Prompt) / 4
	completionTokens := len(content) / 4

	return &ChatResult{
		Content:          content,
		ModelUsed:        fmt.Sprintf("mock-%s", req.Tier),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		ExecutionTime:    time.Since(start),
	}, nil
}

// Calls returns a copy of all recorded requests.
func (c *MockClient) Calls() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatRequest, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns the number of requests seen.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Verify interface
var _ Client = (*MockClient)(nil)

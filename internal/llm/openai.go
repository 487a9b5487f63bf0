package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName = "openai"

	defaultTimeout     = 120 * time.Second
	defaultTemperature = 0.2
	defaultMaxRetries  = 3
	defaultRetryDelay  = time.Second
)

// OpenAIConfig configures the OpenAI-compatible chat client.
// BaseURL may point at any compatible endpoint (OpenAI, OpenRouter, vLLM).
type OpenAIConfig struct {
	APIKey  string
	BaseURL string

	// Model identifiers per tier.
	ExtractionModel string
	FilteringModel  string
	ReasoningModel  string

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// RequestsPerMinute caps outbound calls. 0 disables limiting.
	RequestsPerMinute int

	Logger *slog.Logger
}

// OpenAIClient implements Client over an OpenAI-compatible endpoint.
type OpenAIClient struct {
	client  openai.Client
	models  map[Tier]string
	timeout time.Duration

	maxRetries int
	retryDelay time.Duration

	limiter *RateLimiter
	logger  *slog.Logger
}

// NewOpenAIClient creates a chat client from config.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: API key is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are handled here so rate limiting sees every attempt.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	models := map[Tier]string{
		TierExtraction: cfg.ExtractionModel,
		TierFiltering:  cfg.FilteringModel,
		TierReasoning:  cfg.ReasoningModel,
	}
	for tier, model := range models {
		if model == "" {
			return nil, fmt.Errorf("llm: no model configured for %s tier", tier)
		}
	}

	var limiter *RateLimiter
	if cfg.RequestsPerMinute > 0 {
		limiter = NewRateLimiter(cfg.RequestsPerMinute)
	}

	return &OpenAIClient{
		client:     openai.NewClient(opts...),
		models:     models,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		limiter:    limiter,
		logger:     cfg.Logger.With("client", OpenAIName),
	}, nil
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string { return OpenAIName }

// Chat sends a chat completion request with retry on retryable statuses.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	model, ok := c.models[req.Tier]
	if !ok || model == "" {
		return nil, transportErr(fmt.Errorf("no model for tier %q", req.Tier))
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	system := req.System
	if system == "" {
		system = DefaultSystemMessage
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}

	var resp *openai.ChatCompletion
	err := retry.Do(
		func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return retry.Unrecoverable(err)
				}
			}

			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			var callErr error
			resp, callErr = c.client.Chat.Completions.New(callCtx, params)
			if callErr == nil {
				return nil
			}
			if !retryableAPIError(callErr) {
				return retry.Unrecoverable(callErr)
			}
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("chat retry", "request_id", requestID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, transportErr(fmt.Errorf("chat completion failed: %w", err))
	}

	if len(resp.Choices) == 0 {
		return nil, transportErr(errors.New("no choices in response"))
	}

	return &ChatResult{
		Content:          resp.Choices[0].Message.Content,
		ModelUsed:        resp.Model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		ExecutionTime:    time.Since(start),
	}, nil
}

// retryableAPIError reports whether the error is worth retrying:
// rate limiting, server errors, or plain network failures.
func retryableAPIError(err error) bool {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == 429 || apierr.StatusCode >= 500
	}
	// Non-API errors are transport-level (timeouts, connection resets).
	return !errors.Is(err, context.Canceled)
}

// Verify interface
var _ Client = (*OpenAIClient)(nil)

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAIConfig holds configuration for the OpenAI chat client.
type OpenAIConfig struct {
	APIKey     string
	Model      string        // "gpt-4o-mini" (default)
	RateLimit  int           // Requests per minute
	MaxRetries int           // Retry attempts for SDK transport
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIClient implements LLMClient using the official OpenAI SDK.
type OpenAIClient struct {
	model   string
	limiter *RateLimiter
	client  openai.Client
}

// NewOpenAIClient creates a new OpenAI chat client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 150
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:   cfg.Model,
		limiter: NewRateLimiter(cfg.RateLimit),
		client:  openai.NewClient(opts...),
	}, nil
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Model returns the configured default model.
func (c *OpenAIClient) Model() string {
	return c.model
}

// LimiterStatus exposes rate limiter state for the admin surface.
func (c *OpenAIClient) LimiterStatus() RateLimiterStatus {
	return c.limiter.Status()
}

// Chat sends a chat completion request. When req.ResponseFormat is set, the
// response is parsed and validated against the schema, with up to
// maxStructuredRepairAttempts follow-up turns asking the model to fix
// non-conforming output.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	result := &ChatResult{
		Provider:  OpenAIName,
		ModelUsed: req.Model,
	}
	if result.ModelUsed == "" {
		result.ModelUsed = c.model
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	attempts := 0
	for {
		attempts++

		content, usage, err := c.complete(ctx, result.ModelUsed, messages, req)
		result.PromptTokens += int(usage.PromptTokens)
		result.CompletionTokens += int(usage.CompletionTokens)
		result.TotalTokens += int(usage.TotalTokens)
		if err != nil {
			result.Success = false
			result.ErrorType = classifyOpenAIError(err)
			result.ErrorMessage = err.Error()
			result.ExecutionTime = time.Since(start)
			return result, err
		}

		result.Content = content

		if req.ResponseFormat == nil {
			result.Success = true
			result.ExecutionTime = time.Since(start)
			return result, nil
		}

		parsed, perr := parseStructuredJSON(content)
		if perr == nil {
			perr = validateStructuredJSON(req.ResponseFormat.JSONSchema, parsed)
		}
		if perr == nil {
			result.ParsedJSON = parsed
			result.Success = true
			result.ExecutionTime = time.Since(start)
			return result, nil
		}

		if attempts > maxStructuredRepairAttempts {
			result.Success = false
			result.ErrorType = ErrorTypeParse
			result.ErrorMessage = perr.Error()
			result.ExecutionTime = time.Since(start)
			return result, fmt.Errorf("structured output failed after %d attempts: %w", attempts, perr)
		}

		messages = append(messages,
			openai.AssistantMessage(content),
			openai.UserMessage(structuredRepairPrompt(req.ResponseFormat.JSONSchema, content, perr)),
		)
	}
}

type openAIUsage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

func (c *OpenAIClient) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessageParamUnion, req *ChatRequest) (string, openAIUsage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", openAIUsage{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.ResponseFormat != nil {
		schemaParam, err := jsonSchemaParam(req.ResponseFormat)
		if err != nil {
			return "", openAIUsage{}, err
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: schemaParam,
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", openAIUsage{}, mapOpenAIError(err)
	}

	usage := openAIUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if len(resp.Choices) == 0 {
		return "", usage, fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func jsonSchemaParam(rf *ResponseFormat) (*shared.ResponseFormatJSONSchemaParam, error) {
	var schema map[string]any
	if err := json.Unmarshal(rf.JSONSchema, &schema); err != nil {
		return nil, fmt.Errorf("invalid response schema: %w", err)
	}
	name := rf.Name
	if name == "" {
		name = "response"
	}
	return &shared.ResponseFormatJSONSchemaParam{
		JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   name,
			Schema: schema,
			Strict: openai.Bool(true),
		},
	}, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("OpenAI rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if apiErr.Message != "" {
			return fmt.Errorf("OpenAI error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("OpenAI error (status %d)", apiErr.StatusCode)
	}
	return err
}

// classifyOpenAIError maps a transport error to a ChatResult error type.
func classifyOpenAIError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return ErrorTypeRateLimit
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 {
			return ErrorTypeServer
		}
		return ErrorTypeBadRequest
	}
	msg := err.Error()
	if strings.Contains(msg, "status 5") {
		return ErrorTypeServer
	}
	return ErrorTypeBadRequest
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// RateLimitError carries rate limit details including server-suggested backoff.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

var _ LLMClient = (*OpenAIClient)(nil)

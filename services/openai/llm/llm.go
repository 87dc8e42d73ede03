package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"voicedoc/core"

	"github.com/sashabaranov/go-openai"
)

// Config holds the settings for one OpenAI-compatible chat endpoint.
// BaseURL selects the provider; empty means api.openai.com.
type Config struct {
	APIKey         string  `json:"api_key" yaml:"api_key"`
	BaseURL        string  `json:"base_url" yaml:"base_url"`
	Model          string  `json:"model" yaml:"model"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature    float32 `json:"temperature" yaml:"temperature"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
}

const (
	defaultModel       = "gpt-4o-mini"
	defaultMaxTokens   = 500
	defaultTemperature = 0.7
	defaultTimeout     = 30 * time.Second
)

// OpenAILLMService implements core.CompletionService with a single
// non-streaming chat completion per call.
type OpenAILLMService struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *core.Logger
}

// NewOpenAILLMService builds the client. It does not contact the provider.
func NewOpenAILLMService(config Config, logger *core.Logger) (*OpenAILLMService, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("openai llm: api key is required")
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}
	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
	}
	timeout := defaultTimeout
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}
	if logger == nil {
		logger = core.GetLogger()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAILLMService{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		logger:      logger.With(map[string]any{"service": "openai_llm", "model": config.Model}),
	}, nil
}

// Complete sends messages in order and returns the first choice's content.
func (s *OpenAILLMService) Complete(ctx context.Context, messages []core.CompletionMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    convertMessages(messages),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}

	started := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai llm: complete: %w: no choices in response", core.ErrCompletionMalformed)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai llm: complete: %w: empty content (finish_reason=%s)", core.ErrCompletionMalformed, resp.Choices[0].FinishReason)
	}

	s.logger.Debug("completion received",
		"latency_ms", time.Since(started).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return content, nil
}

func convertMessages(messages []core.CompletionMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    convertRole(msg.Role),
			Content: msg.Content,
		})
	}
	return out
}

func convertRole(role core.CompletionRole) string {
	switch role {
	case core.CompletionRoleSystem:
		return openai.ChatMessageRoleSystem
	case core.CompletionRoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// classifyError maps transport and API failures onto the core sentinels.
// A body that cannot be decoded is malformed; everything else means the
// provider could not serve the request.
func classifyError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("openai llm: complete: %w: %v", core.ErrCompletionMalformed, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai llm: complete: %w: status %d: %s", core.ErrCompletionUnavailable, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("openai llm: complete: %w: status %d: %v", core.ErrCompletionUnavailable, reqErr.HTTPStatusCode, reqErr.Err)
	}
	return fmt.Errorf("openai llm: complete: %w: %v", core.ErrCompletionUnavailable, err)
}

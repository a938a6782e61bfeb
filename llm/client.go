package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"supportdesk_back/apperr"
	"supportdesk_back/config"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelID   = "gpt-4.1-mini"
	defaultMaxTokens = 600
)

// Completion is the first choice of a chat completion.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Options configures a ChatClient. Zero values fall back to the defaults.
type Options struct {
	APIKey            string
	BaseURL           string
	ModelID           string
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// ChatClient wraps an OpenAI compatible chat completions API.
type ChatClient struct {
	client    *openai.Client
	modelID   string
	maxTokens int
	limiter   *rate.Limiter
}

// NewChatClientFromEnv constructs a ChatClient using environment variables.
//
// Expected variables:
//   - LLM_API_KEY: API key for the provider (falls back to OPENAI_API_KEY)
//   - LLM_BASE_URL: optional override for the API base URL
//   - LLM_MODEL_ID: optional override for the target model (defaults to gpt-4.1-mini)
//   - LLM_MAX_TOKENS: completion token cap (defaults to 600)
//   - LLM_TIMEOUT, LLM_RPS: request timeout and client-side rate limit
func NewChatClientFromEnv() (*ChatClient, error) {
	apiKey := config.String("LLM_API_KEY", config.String("OPENAI_API_KEY", ""))
	if apiKey == "" {
		return nil, errors.New("llm: LLM_API_KEY environment variable is required")
	}
	return NewChatClient(Options{
		APIKey:            apiKey,
		BaseURL:           config.String("LLM_BASE_URL", defaultBaseURL),
		ModelID:           config.String("LLM_MODEL_ID", defaultModelID),
		MaxTokens:         config.Int("LLM_MAX_TOKENS", defaultMaxTokens),
		Timeout:           config.Duration("LLM_TIMEOUT", 30*time.Second),
		RequestsPerSecond: config.Float("LLM_RPS", 2),
	})
}

func NewChatClient(opts Options) (*ChatClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("llm: api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("llm: invalid base URL %q", baseURL)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = baseURL
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg.HTTPClient = httpClient

	modelID := strings.TrimSpace(opts.ModelID)
	if modelID == "" {
		modelID = defaultModelID
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &ChatClient{
		client:    openai.NewClientWithConfig(cfg),
		modelID:   modelID,
		maxTokens: maxTokens,
		limiter:   limiter,
	}, nil
}

// Model is the configured model id.
func (c *ChatClient) Model() string {
	if c == nil {
		return ""
	}
	return c.modelID
}

// MaxTokens is the default completion cap.
func (c *ChatClient) MaxTokens() int {
	if c == nil {
		return defaultMaxTokens
	}
	return c.maxTokens
}

// Complete sends one system and one user message and returns the first
// choice. maxTokens <= 0 uses the configured cap. Blank content fails with
// apperr.ErrEmptyModelOutput; transport and API failures wrap
// apperr.ErrProvider. Nothing is retried.
func (c *ChatClient) Complete(ctx context.Context, system, user string, maxTokens int) (Completion, error) {
	if c == nil || c.client == nil {
		return Completion{}, fmt.Errorf("llm: client is nil: %w", apperr.ErrProvider)
	}
	if strings.TrimSpace(user) == "" {
		return Completion{}, fmt.Errorf("llm: prompt cannot be empty: %w", apperr.ErrValidation)
	}
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Completion{}, fmt.Errorf("llm: rate limit wait: %w: %w", apperr.ErrProvider, err)
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               c.modelID,
		Messages:            messages,
		MaxCompletionTokens: maxTokens,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("llm: chat completion failed: %w: %w", apperr.ErrProvider, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("llm: response contains no choices: %w", apperr.ErrEmptyModelOutput)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return Completion{}, fmt.Errorf("llm: model returned empty content: %w", apperr.ErrEmptyModelOutput)
	}

	model := resp.Model
	if model == "" {
		model = c.modelID
	}
	return Completion{
		Content:          content,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Package completion wraps the chat-completion API that turns retrieved
// context into a final answer. The assistant makes exactly one completion
// call per document question, so the gateway is a single bounded request
// rather than a streaming client.
package completion

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1"
	defaultModel       = "openai/gpt-4o-mini"
	defaultMaxTokens   = 1024
	defaultTemperature = 0.2
	defaultTimeout     = 90 * time.Second
)

// Gateway is the interface for generating an answer from a system
// instruction and a user prompt. Implementations must be safe for
// concurrent use.
type Gateway interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config holds the settings for constructing an OpenAIGateway.
type Config struct {
	// BaseURL is the OpenAI-compatible API base URL (default: OpenRouter).
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Model is the completion model identifier.
	Model string

	// MaxTokens caps the generated answer length; 0 uses the default.
	MaxTokens int

	// Temperature controls sampling randomness.
	Temperature float32

	// Timeout bounds each completion call; 0 uses the default.
	Timeout time.Duration
}

// OpenAIGateway implements Gateway against any OpenAI-compatible chat API.
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// New constructs an OpenAIGateway from the given config.
func New(cfg *Config) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("completion: API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	if clientCfg.BaseURL == "" {
		clientCfg.BaseURL = defaultBaseURL
	}

	g := &OpenAIGateway{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
	if g.model == "" {
		g.model = defaultModel
	}
	if g.maxTokens <= 0 {
		g.maxTokens = defaultMaxTokens
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	return g, nil
}

// NewFromEnv constructs an OpenAIGateway from the environment. The API key
// comes from OPENROUTER_API_KEY, falling back to OPENAI_API_KEY.
func NewFromEnv() (*OpenAIGateway, error) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("completion: set OPENROUTER_API_KEY or OPENAI_API_KEY")
	}

	cfg := &Config{
		BaseURL:     os.Getenv("COMPLETION_BASE_URL"),
		APIKey:      apiKey,
		Model:       os.Getenv("COMPLETION_MODEL"),
		Temperature: defaultTemperature,
	}
	if v := os.Getenv("COMPLETION_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTokens = n
		}
	}
	if v := os.Getenv("COMPLETION_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.Temperature = float32(f)
		}
	}
	return New(cfg)
}

// Complete sends one chat-completion request and returns the generated text.
// The call is bounded by the gateway timeout regardless of the caller's
// context.
func (g *OpenAIGateway) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion: model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Ping verifies connectivity to the completion API by listing models. Used
// by the readiness probe.
func (g *OpenAIGateway) Ping(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("completion: ping: %w", err)
	}
	return nil
}

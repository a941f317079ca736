package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"
	openaigo "github.com/sashabaranov/go-openai"
)

var log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

// ErrGenerationFailed is returned when the AI backend could not produce text.
var ErrGenerationFailed = errors.New("AI text generation failed")

// Provider selects the text-generation backend.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderOllama     Provider = "ollama"
)

// GenerationParams tunes a single request. Pointers distinguish "unset" from
// zero values.
type GenerationParams struct {
	Temperature *float32
	MaxTokens   *int
	TopP        *float32
}

// UsageInfo reports token consumption for one request. For backends without
// usage reporting the counts are estimated with tiktoken.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client generates text via an OpenAI-compatible endpoint or a local Ollama
// instance.
//
//go:generate mockery --name Client --output ./mocks --outpkg mocks --case=underscore
type Client interface {
	// GenerateText sends the system prompt and user input to the backend and
	// returns the raw completion text.
	GenerateText(ctx context.Context, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error)
}

// Config holds the AI client settings.
type Config struct {
	Provider Provider
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// NewClient builds the client for the configured provider.
func NewClient(cfg Config) (Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("AI model name is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	switch cfg.Provider {
	case ProviderOllama:
		return newOllamaClient(cfg)
	case ProviderOpenRouter, "":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown AI provider: %q", cfg.Provider)
	}
}

type openAIClient struct {
	client  *openaigo.Client
	model   string
	timeout time.Duration
}

func newOpenAIClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("AI API key is required for the OpenRouter provider")
	}

	clientConfig := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	log.Info().Str("baseURL", clientConfig.BaseURL).Str("model", cfg.Model).Msg("OpenAI-compatible AI client created")

	return &openAIClient{
		client:  openaigo.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// GenerateText performs a single chat completion request.
func (c *openAIClient) GenerateText(ctx context.Context, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	usage := UsageInfo{}

	if strings.TrimSpace(systemPrompt) == "" {
		return "", usage, fmt.Errorf("%w: system prompt is empty", ErrGenerationFailed)
	}

	req := openaigo.ChatCompletionRequest{
		Model: c.model,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
		},
	}
	if userInput != "" {
		req.Messages = append(req.Messages, openaigo.ChatCompletionMessage{
			Role: openaigo.ChatMessageRoleUser, Content: userInput,
		})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(requestCtx, req)
	duration := time.Since(startTime)

	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", duration).Msg("AI request failed")
		return "", usage, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", usage, fmt.Errorf("%w: response contains no choices", ErrGenerationFailed)
	}

	usage.PromptTokens = resp.Usage.PromptTokens
	usage.CompletionTokens = resp.Usage.CompletionTokens
	usage.TotalTokens = resp.Usage.TotalTokens

	content := resp.Choices[0].Message.Content
	log.Debug().Str("model", c.model).Dur("duration", duration).Int("totalTokens", usage.TotalTokens).Msg("AI request completed")
	return content, usage, nil
}

type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

func newOllamaClient(cfg Config) (Client, error) {
	// api.NewClient expects a base URL without the /v1 suffix.
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/v1")
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Ollama base URL %q: %w", baseURL, err)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	client := api.NewClient(parsedURL, httpClient)

	log.Info().Str("baseURL", baseURL).Str("model", cfg.Model).Msg("Ollama AI client created")

	return &ollamaClient{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// GenerateText performs a single non-streaming chat request against Ollama.
func (c *ollamaClient) GenerateText(ctx context.Context, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	usage := UsageInfo{}

	if strings.TrimSpace(systemPrompt) == "" {
		return "", usage, fmt.Errorf("%w: system prompt is empty", ErrGenerationFailed)
	}

	messages := []api.Message{{Role: "system", Content: systemPrompt}}
	if userInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: userInput})
	}

	options := map[string]interface{}{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Msg("Ollama request failed")
		return "", usage, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	content := resp.Message.Content
	// Ollama does not report usage for chat; estimate with tiktoken so the
	// numbers stay comparable across providers.
	if tke, encErr := tiktoken.GetEncoding("cl100k_base"); encErr == nil {
		usage.PromptTokens = len(tke.Encode(systemPrompt, nil, nil)) + len(tke.Encode(userInput, nil, nil))
		usage.CompletionTokens = len(tke.Encode(content, nil, nil))
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return content, usage, nil
}

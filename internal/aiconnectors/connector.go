package aiconnectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/cohere"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/livereview/reviewbridge/internal/config"
)

// Provider represents a model backend type
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
	ProviderCohere    Provider = "cohere"
	ProviderOllama    Provider = "ollama"
)

const defaultOllamaURL = "http://localhost:11434"

// ErrEmptyResponse is returned when the backend answers with no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

// ModelConfig contains the configuration for a specific model
type ModelConfig struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Model       string  `json:"model,omitempty"`
}

// ConnectorOptions contains options for creating a connector
type ConnectorOptions struct {
	Provider    Provider    `json:"provider"`
	APIKey      string      `json:"api_key"`
	BaseURL     string      `json:"base_url,omitempty"`
	ModelConfig ModelConfig `json:"model_config,omitempty"`
}

// OptionsFromConfig maps the llm config section onto connector options.
func OptionsFromConfig(cfg config.LLMConfig) ConnectorOptions {
	return ConnectorOptions{
		Provider: Provider(cfg.Provider),
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		ModelConfig: ModelConfig{
			Temperature: cfg.Temperature,
			Model:       cfg.Model,
		},
	}
}

// Connector is a configured model backend.
type Connector struct {
	provider   Provider
	llm        llms.Model
	options    ConnectorOptions
	httpClient *http.Client
}

// NewConnector creates a new connector for the specified provider
func NewConnector(ctx context.Context, options ConnectorOptions) (*Connector, error) {
	var model llms.Model
	var err error

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.ModelConfig.Model).
		Float64("temperature", options.ModelConfig.Temperature).
		Msg("Creating new connector")

	switch options.Provider {
	case ProviderOpenAI:
		model, err = createOpenAIModel(options)
	case ProviderGemini:
		model, err = createGeminiModel(ctx, options)
	case ProviderAnthropic:
		model, err = createAnthropicModel(options)
	case ProviderCohere:
		model, err = createCohereModel(options)
	case ProviderOllama:
		model, err = createOllamaModel(options)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	return &Connector{
		provider:   options.Provider,
		llm:        model,
		options:    options,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func createOpenAIModel(options ConnectorOptions) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(options.ModelConfig.Model),
		openai.WithToken(options.APIKey),
	}
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}
	return openai.New(opts...)
}

func createGeminiModel(ctx context.Context, options ConnectorOptions) (llms.Model, error) {
	opts := []googleai.Option{
		googleai.WithAPIKey(options.APIKey),
	}
	if options.ModelConfig.Model != "" {
		opts = append(opts, googleai.WithDefaultModel(options.ModelConfig.Model))
	}
	return googleai.New(ctx, opts...)
}

func createAnthropicModel(options ConnectorOptions) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(options.APIKey),
		anthropic.WithModel(options.ModelConfig.Model),
	}
	if options.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(options.BaseURL))
	}
	return anthropic.New(opts...)
}

func createCohereModel(options ConnectorOptions) (llms.Model, error) {
	opts := []cohere.Option{
		cohere.WithToken(options.APIKey),
		cohere.WithModel(options.ModelConfig.Model),
	}
	if options.BaseURL != "" {
		opts = append(opts, cohere.WithBaseURL(options.BaseURL))
	}
	return cohere.New(opts...)
}

func createOllamaModel(options ConnectorOptions) (llms.Model, error) {
	opts := []ollama.Option{
		ollama.WithServerURL(ollamaURL(options.BaseURL)),
		ollama.WithModel(options.ModelConfig.Model),
	}
	return ollama.New(opts...)
}

func ollamaURL(baseURL string) string {
	if baseURL == "" {
		return defaultOllamaURL
	}
	return baseURL
}

// Complete sends a system instruction and a user prompt and returns the text
// of the first choice.
func (c *Connector) Complete(ctx context.Context, system, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	callOptions := []llms.CallOption{
		llms.WithTemperature(c.options.ModelConfig.Temperature),
	}
	if c.options.ModelConfig.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(c.options.ModelConfig.MaxTokens))
	}
	if c.provider == ProviderGemini && c.options.ModelConfig.Model != "" {
		callOptions = append(callOptions, llms.WithModel(c.options.ModelConfig.Model))
	}

	resp, err := c.llm.GenerateContent(ctx, messages, callOptions...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// Check reports whether the backend is usable. Hosted providers are considered
// ready once constructed; an Ollama server must list at least one model.
func (c *Connector) Check(ctx context.Context) error {
	if c.provider != ProviderOllama {
		return nil
	}
	return ValidateOllamaConnection(ctx, c.httpClient, ollamaURL(c.options.BaseURL), c.options.APIKey)
}

// GetProvider returns the provider of this connector
func (c *Connector) GetProvider() Provider {
	return c.provider
}

// GetModel returns the model name from the config
func (c *Connector) GetModel() string {
	return c.options.ModelConfig.Model
}

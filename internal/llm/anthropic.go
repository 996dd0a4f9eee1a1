package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultMaxTokens      = 2048
	defaultTimeout        = 60 * time.Second
)

// Anthropic — Generator поверх Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *slog.Logger
}

// AnthropicConfig — конфигурация Anthropic.
type AnthropicConfig struct {
	APIKey string

	// BaseURL — альтернативный endpoint (прокси, тесты).
	BaseURL string

	// Model — модель (default: claude-sonnet-4-5).
	Model string

	// MaxTokens — лимит токенов ответа (default: 2048).
	MaxTokens int

	// Timeout — таймаут запроса (default: 60s).
	Timeout time.Duration

	Logger *slog.Logger
}

// NewAnthropic создаёт клиента. Повторы SDK отключены:
// ими управляет diagnostics.Retrier.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrNoAPIKey)
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &Anthropic{
		client:    client,
		model:     model,
		maxTokens: int64(maxTokens),
		logger:    logger,
	}, nil
}

// Generate отправляет один запрос Messages API.
func (a *Anthropic) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	a.logger.Debug("anthropic response",
		"model", a.model,
		"tokens_in", message.Usage.InputTokens,
		"tokens_out", message.Usage.OutputTokens,
		"cache_read", message.Usage.CacheReadInputTokens,
	)

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic: %w", ErrEmptyResponse)
}

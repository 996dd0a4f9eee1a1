package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI — Generator поверх Chat Completions API.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// OpenAIConfig — конфигурация OpenAI.
type OpenAIConfig struct {
	APIKey string

	// BaseURL — альтернативный endpoint, совместимый с OpenAI.
	BaseURL string

	// Model — модель (default: gpt-4o-mini).
	Model string

	// MaxTokens — лимит токенов ответа (default: 2048).
	MaxTokens int

	Logger *slog.Logger
}

// NewOpenAI создаёт клиента.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrNoAPIKey)
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

// Generate отправляет один запрос Chat Completions.
func (o *OpenAI) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxCompletionTokens: o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}

	o.logger.Debug("openai response",
		"model", o.model,
		"finish_reason", resp.Choices[0].FinishReason,
		"tokens_total", resp.Usage.TotalTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

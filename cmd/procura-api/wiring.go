package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Procura/internal/config"
	"github.com/shaiso/Procura/internal/llm"
	"github.com/shaiso/Procura/internal/repo"
	"github.com/shaiso/Procura/internal/taxonomy"
)

// loadTaxonomy читает справочник из файла или берёт встроенный.
func loadTaxonomy(path string) (*taxonomy.MemoryIndex, error) {
	if path == "" {
		return taxonomy.Default(), nil
	}
	index, err := taxonomy.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}
	return index, nil
}

// seedTaxonomy заполняет таблицу справочника, если она пуста.
func seedTaxonomy(ctx context.Context, pool *pgxpool.Pool, path string, logger *slog.Logger) (*repo.TaxonomyRepo, error) {
	taxRepo := repo.NewTaxonomyRepo(pool)

	n, err := taxRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count taxonomy: %w", err)
	}
	if n > 0 {
		return taxRepo, nil
	}

	index, err := loadTaxonomy(path)
	if err != nil {
		return nil, err
	}
	entries := index.Entries()
	if err := taxRepo.Seed(ctx, entries); err != nil {
		return nil, fmt.Errorf("seed taxonomy: %w", err)
	}
	logger.Info("taxonomy seeded", "entries", len(entries))
	return taxRepo, nil
}

// newGenerator собирает клиента модели: основной провайдер и,
// если задан ключ второго, запасной.
func newGenerator(cfg config.LLMConfig, logger *slog.Logger) (llm.Generator, error) {
	anthropic := func(model string) (llm.Generator, error) {
		return llm.NewAnthropic(llm.AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
			Logger:    logger,
		})
	}
	openai := func(model string) (llm.Generator, error) {
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     model,
			MaxTokens: cfg.MaxTokens,
			Logger:    logger,
		})
	}

	primary, secondary := anthropic, openai
	primaryKey, secondaryKey := cfg.AnthropicAPIKey, cfg.OpenAIAPIKey
	if cfg.Provider == config.ProviderOpenAI {
		primary, secondary = openai, anthropic
		primaryKey, secondaryKey = cfg.OpenAIAPIKey, cfg.AnthropicAPIKey
	}

	if primaryKey == "" {
		// Anthropic без ключа: работаем только через OpenAI
		logger.Warn("primary provider has no api key, using fallback only", "provider", cfg.Provider)
		return secondary(cfg.FallbackModel)
	}

	gen, err := primary(cfg.Model)
	if err != nil {
		return nil, err
	}
	if secondaryKey == "" {
		return gen, nil
	}

	fallback, err := secondary(cfg.FallbackModel)
	if err != nil {
		return nil, err
	}
	return llm.NewFallback(gen, fallback, logger), nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Хранилища чекпоинтов.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Провайдеры моделей.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const defaultConfigPath = "config.yaml"

// Config — конфигурация процесса.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Cache     CacheConfig     `yaml:"cache"`
	LLM       LLMConfig       `yaml:"llm"`
	Governor  GovernorConfig  `yaml:"governor"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

type StoreConfig struct {
	// Driver — postgres или memory (без внешних зависимостей).
	Driver      string `yaml:"driver" validate:"oneof=postgres memory"`
	DatabaseURL string `yaml:"database_url"`
}

type RabbitMQConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`

	// PublishTimeout — таймаут публикации событий.
	PublishTimeout time.Duration `yaml:"publish_timeout" validate:"gt=0"`
	Prefetch       int           `yaml:"prefetch" validate:"gte=1"`
}

type CacheConfig struct {
	// RedisAddr — адрес Redis; пусто — кэш в памяти процесса.
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
	TTL           time.Duration `yaml:"ttl" validate:"gt=0"`

	VendorDiscount      float64 `yaml:"vendor_discount" validate:"gt=0,lte=1"`
	VendorMinConfidence float64 `yaml:"vendor_min_confidence" validate:"gte=0,lte=100"`
}

type LLMConfig struct {
	Provider      string        `yaml:"provider" validate:"oneof=anthropic openai"`
	Model         string        `yaml:"model"`
	FallbackModel string        `yaml:"fallback_model"`
	MaxTokens     int           `yaml:"max_tokens" validate:"gte=0"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
}

type GovernorConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=1"`
	MaxInFlight       int           `yaml:"max_in_flight" validate:"gte=0"`
	BatchSize         int           `yaml:"batch_size" validate:"gte=1"`
	MinBatchSize      int           `yaml:"min_batch_size" validate:"gte=1,ltefield=BatchSize"`
	MaxConcurrency    int           `yaml:"max_concurrency" validate:"gte=1"`
	InterBatchDelay   time.Duration `yaml:"inter_batch_delay" validate:"gte=0"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay" validate:"gt=0"`
}

type PipelineConfig struct {
	AutoEnrich   bool          `yaml:"auto_enrich"`
	StopOnError  bool          `yaml:"stop_on_error"`
	MaxSteps     int           `yaml:"max_steps" validate:"gte=0"`
	CancelGrace  time.Duration `yaml:"cancel_grace" validate:"gte=0"`
	TaxonomyPath string        `yaml:"taxonomy_path"`
}

type SchedulerConfig struct {
	Addr      string        `yaml:"addr" validate:"required"`
	SweepSpec string        `yaml:"sweep_spec" validate:"required"`
	PurgeSpec string        `yaml:"purge_spec" validate:"required"`
	Retention time.Duration `yaml:"checkpoint_retention" validate:"gt=0"`
	LockKey   int64         `yaml:"lock_key"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver: StorePostgres,
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:        true,
			PublishTimeout: 5 * time.Second,
			Prefetch:       1,
		},
		Cache: CacheConfig{
			TTL:                 24 * time.Hour,
			VendorDiscount:      0.9,
			VendorMinConfidence: 80,
		},
		LLM: LLMConfig{
			Provider: ProviderAnthropic,
			Timeout:  60 * time.Second,
		},
		Governor: GovernorConfig{
			RequestsPerSecond: 5,
			Burst:             5,
			BatchSize:         10,
			MinBatchSize:      1,
			MaxConcurrency:    3,
			InterBatchDelay:   500 * time.Millisecond,
			MaxRetryDelay:     30 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxSteps:    32,
			CancelGrace: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Addr:      ":8081",
			SweepSpec: "*/5 * * * *",
			PurgeSpec: "@hourly",
			Retention: 7 * 24 * time.Hour,
			LockKey:   424242,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load читает конфигурацию из CONFIG_PATH (или config.yaml) и окружения.
// Отсутствующий файл по умолчанию не ошибка, явно указанный — ошибка.
func Load() (Config, error) {
	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет конфигурацию.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// RequireKeys проверяет, что для выбранного провайдера задан ключ.
// Нужен только процессам, которые вызывают модель.
func (c LLMConfig) RequireKeys() error {
	switch c.Provider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" && c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: no model api key configured", ErrInvalidConfig)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for provider openai", ErrInvalidConfig)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error

	envOverride(&cfg.Server.Addr, "PROCURA_HTTP_ADDR")
	envOverride(&cfg.Scheduler.Addr, "PROCURA_SCHEDULER_ADDR")

	envOverride(&cfg.Store.Driver, "PROCURA_STORE")
	envOverride(&cfg.Store.DatabaseURL, "DB_URL")

	envOverride(&cfg.RabbitMQ.URL, "RABBITMQ_URL")
	errs = append(errs, envOverrideBool(&cfg.RabbitMQ.Enabled, "PROCURA_MQ_ENABLED"))

	envOverride(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	envOverride(&cfg.Cache.RedisPassword, "REDIS_PASSWORD")
	errs = append(errs, envOverrideDuration(&cfg.Cache.TTL, "PROCURA_CACHE_TTL"))

	envOverride(&cfg.LLM.Provider, "PROCURA_LLM_PROVIDER")
	envOverride(&cfg.LLM.Model, "PROCURA_LLM_MODEL")
	envOverride(&cfg.LLM.FallbackModel, "PROCURA_LLM_FALLBACK_MODEL")
	envOverride(&cfg.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLM.OpenAIAPIKey, "OPENAI_API_KEY")

	errs = append(errs,
		envOverrideFloat(&cfg.Governor.RequestsPerSecond, "PROCURA_REQUESTS_PER_SECOND"),
		envOverrideInt(&cfg.Governor.BatchSize, "PROCURA_BATCH_SIZE"),
		envOverrideInt(&cfg.Governor.MaxConcurrency, "PROCURA_MAX_CONCURRENCY"),
		envOverrideBool(&cfg.Pipeline.AutoEnrich, "PROCURA_AUTO_ENRICH"),
		envOverrideBool(&cfg.Pipeline.StopOnError, "PROCURA_STOP_ON_ERROR"),
		envOverrideDuration(&cfg.Pipeline.CancelGrace, "PROCURA_CANCEL_GRACE"),
		envOverrideDuration(&cfg.Scheduler.Retention, "PROCURA_CHECKPOINT_RETENTION"),
	)
	envOverride(&cfg.Pipeline.TaxonomyPath, "PROCURA_TAXONOMY_PATH")

	envOverride(&cfg.Log.Level, "LOG_LEVEL")
	envOverride(&cfg.Log.Format, "LOG_FORMAT")

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func envOverride(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envOverrideFloat(dst *float64, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envOverrideBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func envOverrideDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "procura:cache:"

// RedisStore — Store поверх Redis.
//
// Используется, когда несколько реплик процесса должны делить кэш
// классификаций. Истечение выполняет сам Redis, Sweep ничего не делает.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
}

// RedisConfig — конфигурация RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Prefix — префикс ключей (default: "procura:cache:").
	Prefix string

	// DefaultTTL — TTL по умолчанию (default: 24h).
	DefaultTTL time.Duration
}

// NewRedisStore подключается к Redis и проверяет соединение.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg), nil
}

// NewRedisStoreFromClient оборачивает готовый клиент.
func NewRedisStoreFromClient(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, defaultTTL: ttl}
}

// Get возвращает значение ключа или ErrMiss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

// Set записывает значение с TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete удаляет ключ.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Sweep — Redis удаляет истёкшие ключи сам.
func (s *RedisStore) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

// Close закрывает клиент.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

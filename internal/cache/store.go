package cache

import (
	"context"
	"time"
)

// Store — key-value хранилище с TTL.
//
// Значение перезаписывается целиком; чтение истёкшего ключа возвращает
// ErrMiss, а не устаревшее значение.
type Store interface {
	// Get возвращает значение ключа или ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set записывает значение с TTL. ttl <= 0 — TTL хранилища по умолчанию.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ. Отсутствие ключа ошибкой не считается.
	Delete(ctx context.Context, key string) error

	// Sweep удаляет истёкшие записи и возвращает их число.
	Sweep(ctx context.Context) (int, error)
}

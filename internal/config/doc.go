// Package config загружает конфигурацию процессов Procura.
//
// Порядок применения: значения по умолчанию, затем YAML-файл
// (CONFIG_PATH, по умолчанию config.yaml), затем переменные окружения.
// Итоговая структура проверяется validator.
//
// Переменные окружения:
//
//	PROCURA_HTTP_ADDR, PROCURA_SCHEDULER_ADDR
//	PROCURA_STORE (postgres | memory), DB_URL
//	RABBITMQ_URL, PROCURA_MQ_ENABLED
//	REDIS_ADDR, REDIS_PASSWORD, PROCURA_CACHE_TTL
//	PROCURA_LLM_PROVIDER, PROCURA_LLM_MODEL, PROCURA_LLM_FALLBACK_MODEL
//	ANTHROPIC_API_KEY, OPENAI_API_KEY
//	PROCURA_REQUESTS_PER_SECOND, PROCURA_BATCH_SIZE, PROCURA_MAX_CONCURRENCY
//	PROCURA_AUTO_ENRICH, PROCURA_STOP_ON_ERROR, PROCURA_TAXONOMY_PATH
//	PROCURA_CHECKPOINT_RETENTION
//	LOG_LEVEL, LOG_FORMAT
package config

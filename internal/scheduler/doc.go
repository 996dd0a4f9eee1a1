// Package scheduler выполняет обслуживающие задачи по cron-расписанию.
//
// Задачи:
//   - cache_sweep      — удаление истёкших записей кэша классификаций
//   - checkpoint_purge — удаление чекпоинтов старше Retention и отчёт
//     о сессиях, остановленных невосстановимой ошибкой
//
// Структура:
//   - scheduler.go — Scheduler (Start, Stop, Sweep, Purge)
//   - cron.go      — парсинг cron-выражений и вычисление следующего запуска
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Checkpoints: checkpointRepo,
//	    Sweeper:     cacheStore,
//	    Leader:      repo.NewLeader(pool, lockKey),
//	    Retention:   7 * 24 * time.Hour,
//	    Logger:      logger,
//	})
//	if err := sched.Start(ctx); err != nil { ... }
//	defer sched.Stop()
//
// Leader Election:
//
// При нескольких репликах задачи выполняет только держатель
// pg_try_advisory_lock. Без Leader задачи идут на каждой реплике.
package scheduler

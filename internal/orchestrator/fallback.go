package orchestrator

import (
	"log/slog"

	"github.com/shaiso/Procura/internal/diagnostics"
	"github.com/shaiso/Procura/internal/governor"
)

// ReduceBatchOnTokenLimit — хук diagnostics.RetrierConfig.OnFallback:
// на действие reduce_batch_size уменьшает размер чанка governor.
// Новый размер действует со следующей стадии.
func ReduceBatchOnTokenLimit(g *governor.Governor, logger *slog.Logger) func(diagnostics.Diagnosis) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(d diagnostics.Diagnosis) {
		if d.Fallback != diagnostics.FallbackReduceBatchSize {
			return
		}
		size := g.ReduceBatchSize()
		logger.Info("batch size reduced after error",
			"category", d.Category,
			"batch_size", size,
		)
	}
}

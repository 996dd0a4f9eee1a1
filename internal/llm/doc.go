// Package llm — коллаборатор генерации текста.
//
// Конвейер видит одну операцию: Generate(ctx, systemPrompt, userPrompt).
// Реализации:
//   - Anthropic — anthropic-sdk-go
//   - OpenAI — go-openai
//   - Governed — обёртка, пропускающая вызовы через governor.Governor
//     и пишущая латентность в метрики
//   - Fallback — переключение на резервную модель при ошибке
//     с действием use_fallback_model
//
// ExtractJSON извлекает строгий JSON-объект из ответа модели.
package llm

package domain

import "time"

// InputRecord — закупочная запись, поданная в сессию.
//
// ID неизменен. Запись не мутирует после слияния в состояние,
// кроме явной нормализации, которая кладёт новое значение под тем же ID.
type InputRecord struct {
	// ID — идентификатор записи, уникальный в пределах сессии.
	ID string `json:"id" validate:"required"`

	// Vendor — поставщик.
	Vendor string `json:"vendor"`

	// Description — описание закупки.
	Description string `json:"description" validate:"required"`

	// Amount — сумма закупки.
	Amount float64 `json:"amount" validate:"gte=0"`

	// Currency — код валюты (ISO 4217), опционально.
	Currency string `json:"currency,omitempty"`

	// Date — дата закупки в исходном формате.
	Date string `json:"date,omitempty"`

	// Department — подразделение-заказчик.
	Department string `json:"department,omitempty"`

	// Attributes — прочие бизнес-поля из исходного файла.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Classification — результат классификации одной записи.
//
// Создаётся ровно один раз на RecordID (моделью или из кэша) и больше
// не меняется: исправления оформляются отдельным HITLDecision.
type Classification struct {
	// RecordID — ссылка на InputRecord.
	RecordID string `json:"record_id"`

	// Code — код UNSPSC (8 цифр).
	Code string `json:"code"`

	// Title — название кода.
	Title string `json:"title"`

	// Confidence — уверенность модели в диапазоне [0,100].
	Confidence float64 `json:"confidence"`

	// Reasoning — обоснование.
	Reasoning string `json:"reasoning"`

	// Source — источник: модель или один из уровней кэша.
	Source ClassificationSource `json:"source"`

	// Retries — число повторов вызова модели до успеха.
	Retries int `json:"retries,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// ClampConfidence приводит уверенность к диапазону [0,100].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}

// Enrichment — обогащение финальной классификации записи.
type Enrichment struct {
	RecordID string `json:"record_id"`

	// Code и Title — итоговый код с учётом решения человека.
	Code  string `json:"code"`
	Title string `json:"title"`

	// Иерархия UNSPSC: сегмент, семейство, класс.
	SegmentCode string `json:"segment_code"`
	SegmentName string `json:"segment_name,omitempty"`
	FamilyCode  string `json:"family_code"`
	FamilyName  string `json:"family_name,omitempty"`
	ClassCode   string `json:"class_code"`
	ClassName   string `json:"class_name,omitempty"`

	// SpendBand — диапазон суммы: small, medium, large, strategic.
	SpendBand string `json:"spend_band"`

	EnrichedAt time.Time `json:"enriched_at"`
}

// AnalysisReport — аналитический отчёт по сессии.
type AnalysisReport struct {
	// Intent — текст запроса, на который построен отчёт.
	Intent string `json:"intent"`

	// RecordCount — число записей на момент построения.
	RecordCount int `json:"record_count"`

	// TotalSpend — суммарная сумма классифицированных записей.
	TotalSpend float64 `json:"total_spend"`

	// SpendBySegment — сумма по сегментам UNSPSC (код сегмента → сумма).
	SpendBySegment map[string]float64 `json:"spend_by_segment"`

	// VerdictCounts — число QA-результатов по вердиктам.
	VerdictCounts map[Verdict]int `json:"verdict_counts"`

	PendingReview int `json:"pending_review"`
	Errors        int `json:"errors"`
	Unclassified  int `json:"unclassified"`

	// Narrative — текстовое резюме от модели; пусто, если вызов не удался.
	Narrative string `json:"narrative,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

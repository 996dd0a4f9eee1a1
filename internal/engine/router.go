package engine

import (
	"regexp"

	"github.com/shaiso/Procura/internal/domain"
)

var (
	analysisIntent   = regexp.MustCompile(`(?i)\b(analy[sz]e|analysis|summar(y|ize|ise)|report|breakdown)\b`)
	enrichmentIntent = regexp.MustCompile(`(?i)\benrich(ment|ed|ing)?\b`)
)

// AnalysisIntent — запрос пользователя просит аналитику.
func AnalysisIntent(text string) bool {
	return analysisIntent.MatchString(text)
}

// EnrichmentIntent — запрос пользователя просит обогащение.
func EnrichmentIntent(text string) bool {
	return enrichmentIntent.MatchString(text)
}

// Router выбирает следующую стадию по состоянию сессии.
// Не имеет состояния, кроме настроек: повторный вызов на неизменённом
// состоянии даёт тот же результат.
type Router struct {
	// AutoEnrich — обогащать без явного запроса в тексте.
	AutoEnrich bool
}

// NextStage — Router с настройками по умолчанию.
func NextStage(s *domain.SessionState) domain.Stage {
	return Router{}.Next(s)
}

// Next возвращает следующую стадию.
//
// Порядок: classifying → qa → hitl → enriching → analyzing → respond.
// Стадия hitl с нерешёнными элементами завершает ход (respond),
// дальше сессия ждёт решения человека. Стадия error без Fatal
// маршрутизируется как обычная.
func (r Router) Next(s *domain.SessionState) domain.Stage {
	if s.Stage == domain.StageError && s.Fatal != nil {
		if !s.Fatal.Recoverable {
			return domain.StageError
		}
		return domain.StageRespond
	}

	if len(s.InputRecords) == 0 {
		return domain.StageComplete
	}
	if len(Unclassified(s)) > 0 {
		return domain.StageClassifying
	}
	if len(MissingQA(s)) > 0 {
		return domain.StageQA
	}
	if len(NeedsReview(s)) > 0 {
		return domain.StageHITL
	}
	if s.PendingHITL() > 0 {
		if s.Stage == domain.StageHITL {
			return domain.StageRespond
		}
		return domain.StageHITL
	}
	if len(r.EnrichmentPending(s)) > 0 {
		return domain.StageEnriching
	}
	if AnalysisPending(s) {
		return domain.StageAnalyzing
	}
	return domain.StageRespond
}

// Unclassified — ID записей без классификации и без ошибки классификации.
func Unclassified(s *domain.SessionState) []string {
	var out []string
	for _, rec := range s.InputRecords {
		if _, ok := s.Classification(rec.ID); ok {
			continue
		}
		if s.HasError(domain.StageClassifying, rec.ID) {
			continue
		}
		out = append(out, rec.ID)
	}
	return out
}

// MissingQA — ID классификаций без оценки и без ошибки оценки.
func MissingQA(s *domain.SessionState) []string {
	var out []string
	for _, c := range s.Classifications {
		if _, ok := s.QAResult(c.RecordID); ok {
			continue
		}
		if s.HasError(domain.StageQA, c.RecordID) {
			continue
		}
		out = append(out, c.RecordID)
	}
	return out
}

// NeedsReview — ID записей, которым нужен элемент HITL, но его ещё нет:
// вердикт flagged/rejected или уверенность ниже 50.
func NeedsReview(s *domain.SessionState) []string {
	var out []string
	for _, qa := range s.QAResults {
		if _, ok := s.HITLItemForRecord(qa.ClassificationID); ok {
			continue
		}
		c, ok := s.Classification(qa.ClassificationID)
		if !ok {
			continue
		}
		if qa.Verdict.NeedsReview() || c.Confidence < LowConfidence {
			out = append(out, qa.ClassificationID)
		}
	}
	return out
}

// LowConfidence — уверенность, ниже которой запись всегда идёт на проверку.
const LowConfidence = 50.0

// EnrichmentPending — ID записей с итоговой классификацией, ещё не обогащённых.
// Пусто, если обогащение не запрошено.
func (r Router) EnrichmentPending(s *domain.SessionState) []string {
	if !r.AutoEnrich && !s.EnrichmentRequested {
		return nil
	}

	var out []string
	for _, rec := range s.InputRecords {
		if _, ok := s.FinalClassification(rec.ID); !ok {
			continue
		}
		if _, ok := s.Enrichment(rec.ID); ok {
			continue
		}
		if s.HasError(domain.StageEnriching, rec.ID) {
			continue
		}
		out = append(out, rec.ID)
	}
	return out
}

// AnalysisPending — запрос просит аналитику, а отчёта для текущего
// запроса и числа записей нет. Полноту обработки батча проверяет Next.
func AnalysisPending(s *domain.SessionState) bool {
	if !AnalysisIntent(s.Intent) {
		return false
	}
	if a := s.Analysis; a != nil && a.Intent == s.Intent && a.RecordCount == len(s.InputRecords) {
		return false
	}
	return true
}

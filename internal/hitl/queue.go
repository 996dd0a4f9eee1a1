package hitl

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/engine"
	"github.com/shaiso/Procura/internal/taxonomy"
)

// Пороги приоритета.
const (
	highConfidence   = 50.0
	mediumConfidence = 70.0
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AssignPriority вычисляет приоритет и причину элемента.
//
// Правила по порядку:
//   - rejected → high
//   - confidence < 50 → high; < 70 → не ниже medium
//   - замечание amount_anomaly → high
//   - замечание vendor_unknown → не ниже medium
func AssignPriority(qa domain.QAResult, confidence float64) (domain.Priority, string) {
	priority := domain.PriorityLow
	var reasons []string

	raise := func(p domain.Priority) {
		if p.Rank() > priority.Rank() {
			priority = p
		}
	}

	switch {
	case confidence < highConfidence:
		raise(domain.PriorityHigh)
		reasons = append(reasons, fmt.Sprintf("low classification confidence: %.0f", confidence))
	case confidence < mediumConfidence:
		raise(domain.PriorityMedium)
		reasons = append(reasons, fmt.Sprintf("moderate classification confidence: %.0f", confidence))
	}

	switch qa.Verdict {
	case domain.VerdictRejected:
		raise(domain.PriorityHigh)
		reasons = append(reasons, fmt.Sprintf("rubric verdict rejected (score %.1f)", qa.WeightedScore))
	case domain.VerdictFlagged:
		reasons = append(reasons, fmt.Sprintf("rubric verdict flagged (score %.1f)", qa.WeightedScore))
	}

	if qa.HasIssue(domain.IssueAmountAnomaly) {
		raise(domain.PriorityHigh)
		reasons = append(reasons, "amount anomaly")
	}
	if qa.HasIssue(domain.IssueVendorUnknown) {
		raise(domain.PriorityMedium)
		reasons = append(reasons, "vendor inconsistent with code")
	}

	return priority, strings.Join(reasons, "; ")
}

// Collect создаёт элементы для записей, которым нужна проверка
// и у которых ещё нет элемента. Состояние не меняет.
func Collect(s *domain.SessionState, now time.Time) []domain.HITLItem {
	var items []domain.HITLItem
	for _, recordID := range engine.NeedsReview(s) {
		qa, ok := s.QAResult(recordID)
		if !ok {
			continue
		}
		c, ok := s.Classification(recordID)
		if !ok {
			continue
		}

		priority, reason := AssignPriority(*qa, c.Confidence)
		items = append(items, domain.HITLItem{
			ID:         uuid.NewString(),
			RecordID:   recordID,
			Priority:   priority,
			Reason:     reason,
			Status:     domain.HITLStatusPending,
			Verdict:    qa.Verdict,
			Confidence: c.Confidence,
			CreatedAt:  now,
		})
	}
	return items
}

// ValidateDecision проверяет решение против состояния сессии.
func ValidateDecision(s *domain.SessionState, d domain.HITLDecision) error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	if d.Action == domain.ActionModify && !taxonomy.IsCode(d.Code) {
		return fmt.Errorf("%w: modify code %q is not an 8-digit code", ErrInvalidDecision, d.Code)
	}

	item, ok := s.HITLItem(d.ItemID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, d.ItemID)
	}
	if !item.IsPending() {
		return fmt.Errorf("%w: %s", ErrItemAlreadyDecided, d.ItemID)
	}
	return nil
}

// Apply проверяет решение и записывает его в состояние:
// элемент переходит в decided, решение добавляется в журнал.
func Apply(s *domain.SessionState, d domain.HITLDecision, now time.Time) (domain.HITLItem, error) {
	if err := ValidateDecision(s, d); err != nil {
		return domain.HITLItem{}, err
	}

	item, _ := s.HITLItem(d.ItemID)
	decided := *item
	decided.Status = domain.HITLStatusDecided
	decided.DecidedAt = &now

	if d.DecidedAt.IsZero() {
		d.DecidedAt = now
	}
	d.Code = strings.TrimSpace(d.Code)

	s.Apply(domain.Update{
		HITLItems: []domain.HITLItem{decided},
		Decisions: []domain.HITLDecision{d},
	})
	return decided, nil
}

// PendingCount — число элементов без решения.
func PendingCount(s *domain.SessionState) int {
	return s.PendingHITL()
}

// Pending возвращает нерешённые элементы от высокого приоритета к низкому,
// при равенстве — по времени создания.
func Pending(s *domain.SessionState) []domain.HITLItem {
	var out []domain.HITLItem
	for _, item := range s.HITLQueue {
		if item.IsPending() {
			out = append(out, item)
		}
	}
	sortItems(out)
	return out
}

// Resolved — запись не ждёт решения человека.
func Resolved(s *domain.SessionState, recordID string) bool {
	item, ok := s.HITLItemForRecord(recordID)
	return !ok || !item.IsPending()
}

func sortItems(items []domain.HITLItem) {
	slices.SortStableFunc(items, func(a, b domain.HITLItem) int {
		if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/taxonomy"
)

// Диапазоны суммы.
const (
	BandSmall     = "small"
	BandMedium    = "medium"
	BandLarge     = "large"
	BandStrategic = "strategic"
)

// Enricher строит Enrichment по итоговой классификации.
type Enricher struct {
	search taxonomy.Searcher
	logger *slog.Logger
}

// New создаёт Enricher. search == nil — без названий уровней.
func New(search taxonomy.Searcher, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{search: search, logger: logger}
}

// Enrich обогащает запись. Ошибка поиска названия возвращается
// вызывающему, который решает, повторять ли вызов.
func (e *Enricher) Enrich(ctx context.Context, rec domain.InputRecord, cls domain.Classification) (domain.Enrichment, error) {
	segment, family, class, err := Hierarchy(cls.Code)
	if err != nil {
		return domain.Enrichment{}, err
	}

	out := domain.Enrichment{
		RecordID:    rec.ID,
		Code:        cls.Code,
		Title:       cls.Title,
		SegmentCode: segment,
		FamilyCode:  family,
		ClassCode:   class,
		SpendBand:   SpendBand(rec.Amount),
		EnrichedAt:  time.Now(),
	}

	if e.search == nil {
		return out, nil
	}
	if out.SegmentName, err = e.title(ctx, segment); err != nil {
		return domain.Enrichment{}, err
	}
	if out.FamilyName, err = e.title(ctx, family); err != nil {
		return domain.Enrichment{}, err
	}
	if out.ClassName, err = e.title(ctx, class); err != nil {
		return domain.Enrichment{}, err
	}
	return out, nil
}

func (e *Enricher) title(ctx context.Context, code string) (string, error) {
	found, err := e.search.Search(ctx, code, 1)
	if err != nil {
		return "", fmt.Errorf("taxonomy lookup %s: %w", code, err)
	}
	if len(found) == 0 || found[0].Code != code {
		e.logger.Debug("taxonomy code without title", "code", code)
		return "", nil
	}
	return found[0].Title, nil
}

// Hierarchy возвращает коды сегмента, семейства и класса для 8-значного кода.
func Hierarchy(code string) (segment, family, class string, err error) {
	if !taxonomy.IsCode(code) {
		return "", "", "", fmt.Errorf("invalid classification code %q", code)
	}
	return code[:2] + "000000", code[:4] + "0000", code[:6] + "00", nil
}

// SpendBand относит сумму к диапазону.
func SpendBand(amount float64) string {
	switch {
	case amount < 1_000:
		return BandSmall
	case amount < 10_000:
		return BandMedium
	case amount < 100_000:
		return BandLarge
	default:
		return BandStrategic
	}
}

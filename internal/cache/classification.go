package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/telemetry"
)

// Level — уровень, на котором найдена классификация.
type Level string

const (
	LevelExact  Level = "exact"
	LevelVendor Level = "vendor"
	LevelMiss   Level = "miss"
)

// Default configuration values.
const (
	defaultDescriptionLength   = 50
	defaultVendorDiscount      = 0.9
	defaultVendorMinConfidence = 80.0
)

// vendorSuffixes — юридические формы, не влияющие на идентичность поставщика.
var vendorSuffixes = map[string]bool{
	"inc": true, "llc": true, "ltd": true, "corp": true, "co": true,
	"corporation": true, "company": true, "gmbh": true, "plc": true, "sa": true,
}

// cachedClassification — значение, хранимое в Store.
type cachedClassification struct {
	Code       string  `json:"code"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ClassificationCache — двухуровневый кэш классификаций.
//
// Уровни:
//   - exact  — нормализованный поставщик + усечённое описание
//   - vendor — только нормализованный поставщик; попадание засчитывается,
//     если закэшированная уверенность не ниже VendorMinConfidence,
//     и уверенность умножается на VendorDiscount
//
// Промах ведёт к вызову модели, после успеха пишутся оба уровня.
type ClassificationCache struct {
	store               Store
	ttl                 time.Duration
	descriptionLength   int
	vendorDiscount      float64
	vendorMinConfidence float64
	metrics             *telemetry.Metrics
	logger              *slog.Logger
}

// ClassificationConfig — конфигурация ClassificationCache.
type ClassificationConfig struct {
	Store Store

	// TTL — время жизни записей (default: TTL хранилища).
	TTL time.Duration

	// DescriptionLength — длина описания в точном ключе (default: 50).
	DescriptionLength int

	// VendorDiscount — множитель уверенности для уровня vendor (default: 0.9).
	VendorDiscount float64

	// VendorMinConfidence — минимальная закэшированная уверенность
	// для попадания на уровне vendor (default: 80).
	VendorMinConfidence float64

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewClassificationCache создаёт кэш классификаций.
func NewClassificationCache(cfg ClassificationConfig) *ClassificationCache {
	descLen := cfg.DescriptionLength
	if descLen <= 0 {
		descLen = defaultDescriptionLength
	}
	discount := cfg.VendorDiscount
	if discount <= 0 || discount > 1 {
		discount = defaultVendorDiscount
	}
	minConf := cfg.VendorMinConfidence
	if minConf <= 0 {
		minConf = defaultVendorMinConfidence
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ClassificationCache{
		store:               cfg.Store,
		ttl:                 cfg.TTL,
		descriptionLength:   descLen,
		vendorDiscount:      discount,
		vendorMinConfidence: minConf,
		metrics:             cfg.Metrics,
		logger:              logger,
	}
}

// Lookup ищет классификацию записи: сначала точный ключ, затем ключ поставщика.
// Ошибки хранилища логируются и считаются промахом.
func (c *ClassificationCache) Lookup(ctx context.Context, rec domain.InputRecord) (domain.Classification, Level) {
	if cached, ok := c.get(ctx, c.ExactKey(rec.Vendor, rec.Description)); ok {
		c.metrics.CacheLookup(string(LevelExact), "hit")
		return c.toClassification(rec, cached, domain.SourceCacheExact, 1), LevelExact
	}
	c.metrics.CacheLookup(string(LevelExact), "miss")

	vendorKey := VendorKey(rec.Vendor)
	if vendorKey == "" {
		return domain.Classification{}, LevelMiss
	}

	cached, ok := c.get(ctx, vendorKey)
	if !ok || cached.Confidence < c.vendorMinConfidence {
		c.metrics.CacheLookup(string(LevelVendor), "miss")
		return domain.Classification{}, LevelMiss
	}
	c.metrics.CacheLookup(string(LevelVendor), "hit")

	return c.toClassification(rec, cached, domain.SourceCacheVendor, c.vendorDiscount), LevelVendor
}

// Remember записывает классификацию на оба уровня.
func (c *ClassificationCache) Remember(ctx context.Context, rec domain.InputRecord, cls domain.Classification) error {
	value, err := json.Marshal(cachedClassification{
		Code:       cls.Code,
		Title:      cls.Title,
		Confidence: cls.Confidence,
		Reasoning:  cls.Reasoning,
	})
	if err != nil {
		return err
	}

	var errs []error
	if err := c.store.Set(ctx, c.ExactKey(rec.Vendor, rec.Description), value, c.ttl); err != nil {
		errs = append(errs, err)
	}
	if vendorKey := VendorKey(rec.Vendor); vendorKey != "" {
		if err := c.store.Set(ctx, vendorKey, value, c.ttl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Correct приводит кэш в соответствие с решением человека по записи rec.
// Отклонённый код удаляется с тех уровней, где он лежит; исправленный
// записывается на оба уровня с уверенностью 100. Одобрение кэш не меняет.
func (c *ClassificationCache) Correct(ctx context.Context, rec domain.InputRecord, original domain.Classification, d domain.HITLDecision) error {
	switch d.Action {
	case domain.ActionReject:
		return c.forget(ctx, rec, original.Code)
	case domain.ActionModify:
		corrected := original
		corrected.Code = d.Code
		corrected.Title = d.Title
		corrected.Confidence = 100
		corrected.Reasoning = "corrected by reviewer"
		return c.Remember(ctx, rec, corrected)
	default:
		return nil
	}
}

// forget удаляет ключи записи, если в них лежит code.
func (c *ClassificationCache) forget(ctx context.Context, rec domain.InputRecord, code string) error {
	keys := []string{c.ExactKey(rec.Vendor, rec.Description)}
	if vendorKey := VendorKey(rec.Vendor); vendorKey != "" {
		keys = append(keys, vendorKey)
	}

	var errs []error
	for _, key := range keys {
		cached, ok := c.get(ctx, key)
		if !ok || cached.Code != code {
			continue
		}
		if err := c.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExactKey — ключ точного уровня.
func (c *ClassificationCache) ExactKey(vendor, description string) string {
	desc := normalize(description)
	if runes := []rune(desc); len(runes) > c.descriptionLength {
		desc = strings.TrimSpace(string(runes[:c.descriptionLength]))
	}
	return "exact:" + normalizeVendor(vendor) + "|" + desc
}

// VendorKey — ключ уровня поставщика; пустой, если поставщик не указан.
func VendorKey(vendor string) string {
	v := normalizeVendor(vendor)
	if v == "" {
		return ""
	}
	return "vendor:" + v
}

func (c *ClassificationCache) get(ctx context.Context, key string) (cachedClassification, bool) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return cachedClassification{}, false
	}

	var cached cachedClassification
	if err := json.Unmarshal(raw, &cached); err != nil {
		c.logger.Warn("cache entry corrupted", "key", key, "error", err)
		return cachedClassification{}, false
	}
	return cached, true
}

func (c *ClassificationCache) toClassification(rec domain.InputRecord, cached cachedClassification, source domain.ClassificationSource, factor float64) domain.Classification {
	return domain.Classification{
		RecordID:   rec.ID,
		Code:       cached.Code,
		Title:      cached.Title,
		Confidence: domain.ClampConfidence(cached.Confidence * factor),
		Reasoning:  cached.Reasoning,
		Source:     source,
		CreatedAt:  time.Now(),
	}
}

// normalize приводит текст к нижнему регистру, убирает пунктуацию
// и схлопывает пробелы.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case !space:
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// normalizeVendor дополнительно отбрасывает юридическую форму.
func normalizeVendor(vendor string) string {
	words := strings.Fields(normalize(vendor))
	for len(words) > 1 && vendorSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

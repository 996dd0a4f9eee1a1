package rubric

import (
	"fmt"
	"math"

	"github.com/shaiso/Procura/internal/domain"
)

// Dimension — измерение рубрики.
type Dimension struct {
	Name        string
	Weight      float64
	Description string
}

// Имена измерений.
const (
	DimAccuracy              = "accuracy"
	DimLevelAppropriateness  = "level_appropriateness"
	DimConfidenceCalibration = "confidence_calibration"
	DimDescriptionMatch      = "description_match"
	DimVendorConsistency     = "vendor_consistency"
	DimAmountReasonableness  = "amount_reasonableness"
)

// Dimensions — фиксированный набор измерений в порядке вывода.
var Dimensions = []Dimension{
	{DimAccuracy, 0.30, "the code correctly describes the purchased goods or service"},
	{DimLevelAppropriateness, 0.15, "the code is at commodity level, not a broad segment or family"},
	{DimConfidenceCalibration, 0.15, "the stated confidence matches the strength of the evidence"},
	{DimDescriptionMatch, 0.20, "the code title matches the record description"},
	{DimVendorConsistency, 0.10, "the code is plausible for what this vendor sells"},
	{DimAmountReasonableness, 0.10, "the amount is plausible for this category"},
}

// Пороги.
const (
	ApprovedThreshold     = 75.0
	FlaggedThreshold      = 50.0
	LowConfidence         = 50.0
	ReviewConfidence      = 70.0
	IssueThreshold        = 50.0
	HighSeverityThreshold = 30.0
	MissingScore          = 50.0
)

const missingRationale = "dimension missing from evaluator response, defaulted to 50"

// RawScore — оценка измерения из ответа модели.
type RawScore struct {
	Score     float64
	Rationale string
}

// Outcome — результат расчёта рубрики.
type Outcome struct {
	Dimensions    []domain.DimensionScore
	WeightedScore float64
	Verdict       domain.Verdict
	Issues        []domain.Issue
	Degraded      bool
}

// Score рассчитывает взвешенную оценку, вердикт и замечания.
// Отсутствующее измерение получает MissingScore и помечает результат Degraded.
func Score(raw map[string]RawScore, confidence float64) Outcome {
	var out Outcome
	out.Dimensions = make([]domain.DimensionScore, 0, len(Dimensions))

	var sum float64
	for _, dim := range Dimensions {
		ds := domain.DimensionScore{Name: dim.Name, Weight: dim.Weight}

		if r, ok := raw[dim.Name]; ok && !math.IsNaN(r.Score) {
			ds.Score = domain.ClampConfidence(r.Score)
			ds.Rationale = r.Rationale
		} else {
			ds.Score = MissingScore
			ds.Rationale = missingRationale
			out.Degraded = true
		}

		sum += ds.Score * ds.Weight
		out.Dimensions = append(out.Dimensions, ds)

		if issue, ok := issueFor(ds); ok {
			out.Issues = append(out.Issues, issue)
		}
	}

	// 6 знаков после запятой
	out.WeightedScore = math.Round(sum*1e6) / 1e6
	out.Verdict = Verdict(out.WeightedScore, confidence)
	return out
}

// Verdict отображает взвешенную оценку в вердикт и применяет поправки
// по уверенности. Поправки только понижают вердикт.
func Verdict(score, confidence float64) domain.Verdict {
	var v domain.Verdict
	switch {
	case score >= ApprovedThreshold:
		v = domain.VerdictApproved
	case score >= FlaggedThreshold:
		v = domain.VerdictFlagged
	default:
		v = domain.VerdictRejected
	}

	if confidence < LowConfidence && v == domain.VerdictApproved {
		v = domain.VerdictFlagged
	}
	if v == domain.VerdictApproved && confidence < ReviewConfidence {
		v = domain.VerdictFlagged
	}
	return v
}

// WeightSum — сумма весов измерений.
func WeightSum() float64 {
	var s float64
	for _, d := range Dimensions {
		s += d.Weight
	}
	return s
}

func issueFor(ds domain.DimensionScore) (domain.Issue, bool) {
	if ds.Score >= IssueThreshold {
		return domain.Issue{}, false
	}

	severity := domain.SeverityMedium
	if ds.Score < HighSeverityThreshold {
		severity = domain.SeverityHigh
	}

	return domain.Issue{
		Type:     issueType(ds.Name),
		Severity: severity,
		Message:  fmt.Sprintf("%s scored %.1f, below %.0f", ds.Name, ds.Score, IssueThreshold),
	}, true
}

func issueType(dimension string) string {
	switch dimension {
	case DimAmountReasonableness:
		return domain.IssueAmountAnomaly
	case DimVendorConsistency:
		return domain.IssueVendorUnknown
	default:
		return dimension + "_low"
	}
}

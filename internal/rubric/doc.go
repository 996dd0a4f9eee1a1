// Package rubric оценивает классификацию по фиксированной рубрике
// из шести взвешенных измерений и выносит вердикт.
//
// Измерения и веса (сумма 1.0):
//
//	accuracy                0.30
//	level_appropriateness   0.15
//	confidence_calibration  0.15
//	description_match       0.20
//	vendor_consistency      0.10
//	amount_reasonableness   0.10
//
// Вердикт по взвешенной оценке: ≥75 approved, ≥50 flagged, иначе rejected.
// Затем поправки по уверенности классификации, только понижающие:
//  1. confidence < 50 — не выше flagged
//  2. approved при confidence < 70 — flagged
//
// Score — чистая функция: одинаковые оценки и уверенность дают
// одинаковые вердикт и набор замечаний.
package rubric

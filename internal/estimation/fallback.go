package estimation

import (
	"math"

	"crowdcount/internal/domain"
)

// Fallback builds a complete result from the baseline alone. Its shape matches
// the model path; only the notes tell them apart.
func Fallback(in domain.CanonicalInput, c domain.Classification, b domain.BaselineEstimate, t Tuning, reason FallbackReason) domain.EstimateResult {
	count := roundInt(b.Expected)
	c64 := float64(count)
	return domain.EstimateResult{
		Count:       count,
		Confidence:  t.FallbackConfidence,
		Range:       domain.Range{Min: int64(math.Floor(c64 * 0.65)), Max: int64(math.Ceil(c64 * 1.35))},
		Assumptions: fallbackAssumptions(c.TargetLang, in, c, b),
		Notes:       []string{fallbackNote(c.TargetLang, reason)},
	}
}

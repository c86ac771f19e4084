package estimation

import (
	"math"

	"crowdcount/internal/domain"
)

// Validation reports what the band validator did.
type Validation struct {
	Clamped   bool
	Direction string // "low", "high" or "none"
	Original  int64
}

// IntegerBand widens the real-valued band to the integers that bracket it, so
// a count can always satisfy it even when the expectation is below one person.
func IntegerBand(b domain.Band) (int64, int64) {
	lo := int64(math.Floor(math.Max(0, b.Low)))
	hi := int64(math.Ceil(math.Max(0, b.High)))
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Validate clamps res.Count into the baseline's band and leaves a note either
// way. Running it on its own output does not move the count.
func Validate(res domain.EstimateResult, b domain.BaselineEstimate, l domain.Lang) (domain.EstimateResult, Validation) {
	lo, hi := IntegerBand(b.Band)
	v := Validation{Direction: "none", Original: res.Count}

	count := res.Count
	if count < 0 {
		count = 0
	}
	switch {
	case count < lo:
		count, v.Clamped, v.Direction = lo, true, "low"
	case count > hi:
		count, v.Clamped, v.Direction = hi, true, "high"
	}

	out := domain.EstimateResult{
		Count:       count,
		Confidence:  clamp01(res.Confidence),
		Range:       res.Range,
		Assumptions: capFront(res.Assumptions, domain.MaxAssumptions),
		Notes:       append([]string(nil), res.Notes...),
	}

	if v.Clamped {
		out.Range = spreadRange(count, 0.35, 2)
		out.Notes = append(out.Notes, correctedNote(l, v.Original, count, b, lo, hi))
	} else {
		out.Range = bracket(out.Range, count)
		out.Notes = append(out.Notes, passedNote(l, b, lo, hi))
	}
	if len(out.Notes) > domain.MaxNotes {
		out.Notes = out.Notes[len(out.Notes)-domain.MaxNotes:]
	}
	if out.Assumptions == nil {
		out.Assumptions = []string{}
	}
	return out, v
}

// spreadRange is count ± pct plus a small additive margin.
func spreadRange(count int64, pct float64, margin int64) domain.Range {
	c := float64(count)
	lo := int64(math.Floor(c*(1-pct))) - margin
	if lo < 0 {
		lo = 0
	}
	return domain.Range{Min: lo, Max: int64(math.Ceil(c*(1+pct))) + margin}
}

func bracket(r domain.Range, count int64) domain.Range {
	if r.Min < 0 {
		r.Min = 0
	}
	if r.Min > count {
		r.Min = count
	}
	if r.Max < count {
		r.Max = count
	}
	return r
}

func capFront(s []string, n int) []string {
	if len(s) <= n {
		return append([]string(nil), s...)
	}
	return append([]string(nil), s[:n]...)
}

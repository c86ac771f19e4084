package estimation

import (
	"math"

	"crowdcount/internal/domain"
)

// Baseline computes the local order-of-magnitude expectation. It is pure so the
// prompt and the validator can each call it and see identical numbers.
func Baseline(in domain.CanonicalInput, c domain.Classification, t Tuning) domain.BaselineEstimate {
	radiusKm := float64(in.RadiusM) / 1000
	area := math.Pi * radiusKm * radiusKm

	timeF := TimeFactor(c, t)
	crowdF := factorOr(t.CrowdFactors, in.Crowd, 1)
	natF := factorOr(t.NationalityFactors, c.Nationality, 1)

	people := accumulatePeople(area, factorOr(t.Densities, c.PlaceType, t.Densities[domain.PlaceGeneric]), t)
	expected := people * timeF * crowdF * natF

	// Never expect more people than exist; the effective density absorbs the cap
	// so the product identity still holds.
	if ceiling := t.WorldPopulation * natF; t.WorldPopulation > 0 && expected > ceiling {
		expected = ceiling
	}
	expected = math.Max(0, expected)

	var density float64
	if denom := area * timeF * crowdF * natF; denom > 0 {
		density = expected / denom
	}

	b := domain.BaselineEstimate{
		Expected:          expected,
		AreaKm2:           area,
		BaseDensity:       density,
		TimeFactor:        timeF,
		CrowdFactor:       crowdF,
		NationalityFactor: natF,
		PlaceType:         c.PlaceType,
		TimeSlot:          c.TimeSlot,
	}
	b.Band = PlausibilityBand(b, t)
	return b
}

// PlausibilityBand is [expected*BandLow, expected*BandHigh], with the upper
// bound held at the world population.
func PlausibilityBand(b domain.BaselineEstimate, t Tuning) domain.Band {
	low := b.Expected * t.BandLow
	high := b.Expected * t.BandHigh
	if ceiling := t.WorldPopulation * b.NationalityFactor; t.WorldPopulation > 0 && high > ceiling {
		high = math.Max(ceiling, low)
	}
	return domain.Band{Low: low, High: high}
}

// TimeFactor multiplies the slot factor (place override first) by the weekend
// factor of the place type when the timestamp is known.
func TimeFactor(c domain.Classification, t Tuning) float64 {
	f, ok := t.SlotOverrides[c.PlaceType][c.TimeSlot]
	if !ok {
		f = factorOr(t.SlotFactors, c.TimeSlot, 1)
	}
	if c.TimeKnown && c.Weekend {
		f *= factorOr(t.WeekendFactors, c.PlaceType, 1)
	}
	return f
}

// accumulatePeople integrates density over concentric area tiers: the place
// density covers the core, then each tier's density up to its outer area.
// Each step adds a non-negative amount, so the result never shrinks as area
// grows.
func accumulatePeople(area, coreDensity float64, t Tuning) float64 {
	core := math.Min(area, t.CoreAreaKm2)
	people := core * coreDensity
	inner := t.CoreAreaKm2
	for _, tier := range t.Tiers {
		if area <= inner {
			break
		}
		span := math.Min(area, tier.UpToKm2) - inner
		people += span * tier.Density
		inner = tier.UpToKm2
	}
	return people
}

func factorOr[K comparable](m map[K]float64, k K, def float64) float64 {
	if v, ok := m[k]; ok {
		return v
	}
	return def
}

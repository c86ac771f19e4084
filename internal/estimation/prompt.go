package estimation

import (
	"fmt"
	"strings"

	"crowdcount/internal/domain"
)

const (
	countryCeilingRadiusM = 50_000
	worldCeilingRadiusM   = 1_000_000
)

// BuildPrompt renders the single instruction sent to the model. It is the
// model's whole contract: units, enum codes and the JSON-only rule are spelled
// out explicitly.
func BuildPrompt(in domain.CanonicalInput, c domain.Classification, b domain.BaselineEstimate, t Tuning) string {
	var sb strings.Builder
	w := func(format string, args ...any) { fmt.Fprintf(&sb, format+"\n", args...) }

	w("You estimate how many people matching a description are present inside a circular area.")
	w("Reply with ONE JSON object and nothing else: no markdown, no code fences, no prose before or after it.")
	w("")
	w("## Output schema")
	w(`{"count": <integer >= 0>, "confidence": <number 0..1>, "range": {"min": <integer >= 0>, "max": <integer >= min>}, "assumptions": [<string>, ...], "notes": [<string>, ...]}`)
	w("- count: people matching the feature inside the circle at the given time.")
	w("- range: your uncertainty interval; it must satisfy min <= count <= max.")
	w("- assumptions: at most %d short items. notes: at most %d short items.", domain.MaxAssumptions, domain.MaxNotes)
	w("- Write every assumptions and notes string in %s.", langName(c.TargetLang))
	w("")
	w("## Request")
	w("- address: %q", in.Address)
	w("- feature (who to count): %q", in.Feature)
	w("- radius: %d meters (= %.3f km). The radius is in METERS, not kilometers.", in.RadiusM, float64(in.RadiusM)/1000)
	w("- crowd level code: %s (one of empty | normal | crowded; this is an internal code, not a translation)", in.Crowd)
	if in.LocalTimeISO != "" {
		w("- local time: %s", in.LocalTimeISO)
	} else {
		w("- local time: not given; assume a typical time of day")
	}
	w("")
	w("## Derived context")
	w("- place type: %s", c.PlaceType)
	w("- time slot: %s", c.TimeSlot)
	if c.TimeKnown {
		w("- weekday: %d (0=Sunday), weekend: %t", c.Weekday, c.Weekend)
	}
	w("- nationality filter: %s", c.Nationality)
	w("")
	w("## Baseline computed by the server")
	w("- area: %.4f km²", b.AreaKm2)
	w("- base density: %.1f people/km²", b.BaseDensity)
	w("- time factor: %.2f, crowd factor: %.2f, nationality factor: %.2f", b.TimeFactor, b.CrowdFactor, b.NationalityFactor)
	w("- expected count: %.0f", b.Expected)
	w("- allowed band: %.0f to %.0f. Answers outside this band are corrected by the server.", b.Band.Low, b.Band.High)
	if in.RadiusM >= countryCeilingRadiusM {
		w("")
		w("## Population ceiling")
		w("- The circle covers a region-scale area. The whole population of %s is about %.0f people;", t.CountryName, t.CountryPopulation)
		w("  a count inside one country can never exceed that.")
		if in.RadiusM >= worldCeilingRadiusM {
			w("- The circle is continent-scale. The world population is about %.0f people; count can never exceed it.", t.WorldPopulation)
		}
	}
	w("")
	w("## Self-check before answering")
	w("1. Compute count / %.4f km² and confirm the implied density is plausible for a %s.", b.AreaKm2, c.PlaceType)
	w("2. Compare count with the expected count %.0f. If it is below %.1fx or above %.1fx of that, reconsider.", b.Expected, t.BandLow, t.BandHigh)
	w("3. For large radii, confirm count stays below the population that actually lives in the area.")
	w("4. Confirm range.min <= count <= range.max and all numbers are non-negative integers.")
	w("5. Output only the JSON object.")
	return sb.String()
}

func langName(l domain.Lang) string {
	if l == domain.LangJA {
		return "Japanese"
	}
	return "English"
}

package estimation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdcount/internal/domain"
	"crowdcount/internal/estimation"
)

func baselineFor(t *testing.T, in domain.CanonicalInput, tun estimation.Tuning) (domain.Classification, domain.BaselineEstimate) {
	t.Helper()
	c := estimation.Classify(in, "")
	return c, estimation.Baseline(in, c, tun)
}

func TestValidate_ClampsImplausibleCount(t *testing.T) {
	in := input("Setagaya residential area", "residents", domain.CrowdNormal, 200)
	_, b := baselineFor(t, in, estimation.DefaultTuning())
	require.Equal(t, domain.PlaceResidential, b.PlaceType)

	res := domain.EstimateResult{Count: 50_000_000, Confidence: 0.9, Range: domain.Range{Min: 40_000_000, Max: 60_000_000}}
	out, v := estimation.Validate(res, b, domain.LangEN)

	assert.True(t, v.Clamped)
	assert.Equal(t, "high", v.Direction)
	lo, hi := estimation.IntegerBand(b.Band)
	assert.Equal(t, hi, out.Count)
	assert.GreaterOrEqual(t, out.Count, lo)
	assert.Less(t, out.Count, int64(5_000), "a few hundred to low thousands")
	assert.LessOrEqual(t, out.Range.Min, out.Count)
	assert.GreaterOrEqual(t, out.Range.Max, out.Count)
	require.NotEmpty(t, out.Notes)
	assert.Contains(t, out.Notes[len(out.Notes)-1], "50000000")
	assert.Contains(t, out.Notes[len(out.Notes)-1], "corrected")
}

func TestValidate_LowCountJapaneseNote(t *testing.T) {
	in := input("渋谷駅", "通勤客", domain.CrowdCrowded, 500)
	_, b := baselineFor(t, in, estimation.DefaultTuning())

	out, v := estimation.Validate(domain.EstimateResult{Count: 1}, b, domain.LangJA)
	assert.True(t, v.Clamped)
	assert.Equal(t, "low", v.Direction)
	assert.True(t, strings.Contains(out.Notes[0], "補正"))
}

func TestValidate_PassesAndIsIdempotent(t *testing.T) {
	tun := estimation.DefaultTuning()
	in := input("Shibuya Station", "commuters", domain.CrowdCrowded, 500)
	_, b := baselineFor(t, in, tun)

	start := domain.EstimateResult{Count: int64(b.Expected), Confidence: 0.7, Range: domain.Range{Min: 10, Max: 20}}
	first, v := estimation.Validate(start, b, domain.LangEN)
	assert.False(t, v.Clamped)
	assert.Equal(t, start.Count, first.Count)
	assert.LessOrEqual(t, first.Range.Min, first.Count)
	assert.GreaterOrEqual(t, first.Range.Max, first.Count, "range widened to bracket count")
	assert.Contains(t, first.Notes[0], "passed validation")

	second, v2 := estimation.Validate(first, b, domain.LangEN)
	assert.False(t, v2.Clamped)
	assert.Equal(t, first.Count, second.Count)
}

func TestValidate_PropertiesAcrossInputs(t *testing.T) {
	for _, mode := range []string{estimation.BandModeDefault, estimation.BandModeStrict} {
		tun := estimation.DefaultTuning().WithBandMode(mode)
		for _, radius := range []int{10, 75, 500, 5_000, 80_000, 2_000_000, domain.MaxRadiusM} {
			for _, count := range []int64{0, 1, 999, 123_456, 9_000_000_000_000} {
				in := input("Ueno Park", "people", domain.CrowdEmpty, radius)
				_, b := baselineFor(t, in, tun)
				lo, hi := estimation.IntegerBand(b.Band)

				out, _ := estimation.Validate(domain.EstimateResult{Count: count, Confidence: 0.5}, b, domain.LangEN)
				require.GreaterOrEqual(t, out.Count, lo)
				require.LessOrEqual(t, out.Count, hi)
				require.GreaterOrEqual(t, out.Range.Min, int64(0))
				require.LessOrEqual(t, out.Range.Min, out.Count)
				require.GreaterOrEqual(t, out.Range.Max, out.Count)

				again, _ := estimation.Validate(out, b, domain.LangEN)
				require.Equal(t, out.Count, again.Count, "mode=%s radius=%d count=%d", mode, radius, count)
			}
		}
	}
}

func TestValidate_NotesCappedDroppingOldest(t *testing.T) {
	in := input("Shibuya Station", "commuters", domain.CrowdNormal, 500)
	_, b := baselineFor(t, in, estimation.DefaultTuning())

	notes := make([]string, domain.MaxNotes)
	for i := range notes {
		notes[i] = string(rune('a' + i))
	}
	out, _ := estimation.Validate(domain.EstimateResult{Count: int64(b.Expected), Notes: notes}, b, domain.LangEN)
	require.Len(t, out.Notes, domain.MaxNotes)
	assert.Equal(t, "b", out.Notes[0])
	assert.Contains(t, out.Notes[domain.MaxNotes-1], "passed validation")
}

func TestFallback_ShapeAndValues(t *testing.T) {
	tun := estimation.DefaultTuning()
	in := input("Shibuya Station", "commuters", domain.CrowdCrowded, 500)
	c, b := baselineFor(t, in, tun)

	res := estimation.Fallback(in, c, b, tun, estimation.ReasonNotConfigured)
	assert.InDelta(t, b.Expected, float64(res.Count), 0.5)
	assert.InDelta(t, 0.55, res.Confidence, 1e-9)
	assert.InDelta(t, float64(res.Count)*0.65, float64(res.Range.Min), 1)
	assert.InDelta(t, float64(res.Count)*1.35, float64(res.Range.Max), 1)
	assert.NotEmpty(t, res.Assumptions)
	assert.LessOrEqual(t, len(res.Assumptions), domain.MaxAssumptions)
	require.Len(t, res.Notes, 1)

	out, v := estimation.Validate(res, b, c.TargetLang)
	assert.False(t, v.Clamped, "fallback result always sits inside the band")
	assert.Equal(t, res.Count, out.Count)
}

func TestFallback_JapaneseText(t *testing.T) {
	tun := estimation.DefaultTuning()
	in := input("代々木公園", "外国人観光客", domain.CrowdNormal, 800)
	c, b := baselineFor(t, in, tun)
	require.Equal(t, domain.LangJA, c.TargetLang)

	res := estimation.Fallback(in, c, b, tun, estimation.ReasonUpstream)
	assert.Contains(t, res.Notes[0], "ヒューリスティック")
	assert.Contains(t, res.Assumptions[0], "公園")
}

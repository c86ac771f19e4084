package app_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdcount/internal/app"
	"crowdcount/internal/domain"
	"crowdcount/internal/estimation"
)

// scriptedLLM replays replies in order; a nil-error empty reply blocks until
// the attempt's deadline.
type scriptedLLM struct {
	calls   int32
	replies []reply
}

type reply struct {
	text  string
	err   error
	block bool
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	i := int(atomic.AddInt32(&s.calls, 1)) - 1
	r := s.replies[min(i, len(s.replies)-1)]
	if r.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.text, r.err
}

func (s *scriptedLLM) Name() string { return "scripted" }

var shibuya = domain.CanonicalInput{
	Address: "Shibuya Station",
	Crowd:   domain.CrowdCrowded,
	Feature: "commuters",
	RadiusM: 500,
	Lang:    domain.LangEN,
}

func hasNote(r domain.EstimateResult, sub string) bool {
	for _, n := range r.Notes {
		if strings.Contains(n, sub) {
			return true
		}
	}
	return false
}

func TestEstimate_NoGatewayUsesFallback(t *testing.T) {
	svc := app.NewEstimateService(nil, estimation.DefaultTuning(), time.Second)
	res := svc.Estimate(context.Background(), shibuya, "")

	assert.InDelta(t, 0.55, res.Confidence, 1e-9)
	assert.True(t, hasNote(res, "No language model is configured"))
	assert.True(t, hasNote(res, "passed validation"))
	assert.NotEmpty(t, res.Assumptions)
}

func TestEstimate_ModelAnswerInsideBandIsKept(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{{text: "Sure!\n```json\n{\"count\": 9000, \"confidence\": 0.7, \"range\": {\"min\": 7000, \"max\": 11000}, \"assumptions\": [\"rush hour\"], \"notes\": []}\n```"}}}
	svc := app.NewEstimateService(llm, estimation.DefaultTuning(), time.Second)
	res := svc.Estimate(context.Background(), shibuya, "")

	assert.Equal(t, int64(9000), res.Count)
	assert.Equal(t, domain.Range{Min: 7000, Max: 11000}, res.Range)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
	assert.Equal(t, []string{"rush hour"}, res.Assumptions)
	assert.EqualValues(t, 1, llm.calls)
}

func TestEstimate_TimeoutRetriesOnceThenFallsBack(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{{block: true}}}
	svc := app.NewEstimateService(llm, estimation.DefaultTuning(), 50*time.Millisecond)

	start := time.Now()
	res := svc.Estimate(context.Background(), shibuya, "")
	elapsed := time.Since(start)

	assert.EqualValues(t, 2, atomic.LoadInt32(&llm.calls))
	assert.Less(t, elapsed, time.Second)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.InDelta(t, 0.55, res.Confidence, 1e-9)
	assert.True(t, hasNote(res, "unavailable"))
}

func TestEstimate_RetrySucceeds(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{
		{err: errors.New("connection reset")},
		{text: `{"count": 12000, "confidence": 0.65}`},
	}}
	svc := app.NewEstimateService(llm, estimation.DefaultTuning(), time.Second)
	res := svc.Estimate(context.Background(), shibuya, "")

	assert.EqualValues(t, 2, llm.calls)
	assert.Equal(t, int64(12000), res.Count)
	assert.LessOrEqual(t, res.Range.Min, res.Count)
	assert.GreaterOrEqual(t, res.Range.Max, res.Count)
}

func TestEstimate_CancelledCallerIsNotRetried(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{{block: true}}}
	svc := app.NewEstimateService(llm, estimation.DefaultTuning(), time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res := svc.Estimate(ctx, shibuya, "")

	assert.EqualValues(t, 1, atomic.LoadInt32(&llm.calls))
	assert.InDelta(t, 0.55, res.Confidence, 1e-9)
}

func TestEstimate_UnparsableReplyFallsBack(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{{text: "I'm sorry, I can't estimate crowds."}}}
	svc := app.NewEstimateService(llm, estimation.DefaultTuning(), time.Second)
	res := svc.Estimate(context.Background(), shibuya, "")

	assert.True(t, hasNote(res, "could not be parsed"))
	assert.InDelta(t, 0.55, res.Confidence, 1e-9)
	assert.EqualValues(t, 1, llm.calls)
}

func TestEstimate_ClampsImplausibleAnswer(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{{text: `{"count": 50000000, "confidence": 0.9}`}}}
	svc := app.NewEstimateService(llm, estimation.DefaultTuning(), time.Second)
	in := domain.CanonicalInput{Address: "residential area in Setagaya", Crowd: domain.CrowdNormal, Feature: "residents", RadiusM: 200, Lang: domain.LangEN}
	res := svc.Estimate(context.Background(), in, "")

	c := estimation.Classify(in, "")
	lo, hi := estimation.IntegerBand(estimation.Baseline(in, c, estimation.DefaultTuning()).Band)
	assert.Equal(t, hi, res.Count)
	assert.GreaterOrEqual(t, res.Count, lo)
	assert.True(t, hasNote(res, "corrected"))
	assert.LessOrEqual(t, res.Range.Min, res.Count)
	assert.GreaterOrEqual(t, res.Range.Max, res.Count)
}

func TestEstimate_JapaneseNotesFromAcceptLanguage(t *testing.T) {
	in := shibuya
	in.Lang = ""
	svc := app.NewEstimateService(nil, estimation.DefaultTuning(), time.Second)
	res := svc.Estimate(context.Background(), in, "ja-JP,ja;q=0.9,en;q=0.5")

	require.NotEmpty(t, res.Notes)
	assert.True(t, hasNote(res, "ヒューリスティック"))
}

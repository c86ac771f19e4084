package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"crowdcount/internal/adapters/observability"
	"crowdcount/internal/domain"
	"crowdcount/internal/estimation"
)

type EstimateService struct {
	llm     domain.LLMGateway // nil routes every request to the heuristic fallback
	tuning  estimation.Tuning
	timeout time.Duration
}

func NewEstimateService(llm domain.LLMGateway, t estimation.Tuning, timeout time.Duration) *EstimateService {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &EstimateService{llm: llm, tuning: t, timeout: timeout}
}

// Estimate runs the whole pipeline and always returns a validated result.
func (s *EstimateService) Estimate(ctx context.Context, in domain.CanonicalInput, acceptLanguage string) domain.EstimateResult {
	c := estimation.Classify(in, acceptLanguage)
	b := estimation.Baseline(in, c, s.tuning)

	res, path := s.candidate(ctx, in, c, b)

	// the band always comes from a fresh baseline
	check := estimation.Baseline(in, c, s.tuning)
	out, v := estimation.Validate(res, check, c.TargetLang)

	observability.ObserveEstimate(path, v.Direction)
	ev := log.Info()
	if v.Clamped {
		ev = log.Warn()
	}
	ev.Str("path", path).
		Str("place_type", string(c.PlaceType)).
		Str("time_slot", string(c.TimeSlot)).
		Int("radius_m", in.RadiusM).
		Float64("expected", b.Expected).
		Int64("model_count", v.Original).
		Int64("count", out.Count).
		Bool("clamped", v.Clamped).
		Msg("estimate")
	return out
}

// candidate returns the model's repaired answer or a fallback, plus the label
// of the path taken.
func (s *EstimateService) candidate(ctx context.Context, in domain.CanonicalInput, c domain.Classification, b domain.BaselineEstimate) (domain.EstimateResult, string) {
	if s.llm == nil {
		return estimation.Fallback(in, c, b, s.tuning, estimation.ReasonNotConfigured), "fallback_" + string(estimation.ReasonNotConfigured)
	}

	prompt := estimation.BuildPrompt(in, c, b, s.tuning)
	raw, err := s.complete(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Str("gateway", s.llm.Name()).Msg("llm call failed; using heuristic fallback")
		return estimation.Fallback(in, c, b, s.tuning, estimation.ReasonUpstream), "fallback_" + string(estimation.ReasonUpstream)
	}

	res, ok := estimation.Repair(raw)
	if !ok {
		log.Warn().Str("gateway", s.llm.Name()).Int("bytes", len(raw)).Msg("llm reply had no JSON object; using heuristic fallback")
		return estimation.Fallback(in, c, b, s.tuning, estimation.ReasonUnparsable), "fallback_" + string(estimation.ReasonUnparsable)
	}
	return res, "llm"
}

// complete makes one attempt bounded by the timeout and, if it fails while the
// caller is still waiting, one retry with a fresh budget.
func (s *EstimateService) complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if ctx.Err() != nil {
			break
		}
		actx, cancel := context.WithTimeout(ctx, s.timeout)
		raw, err := s.llm.Complete(actx, prompt)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err
		log.Debug().Err(err).Int("attempt", attempt+1).Msg("llm attempt failed")
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		observability.ObserveTimeout(s.llm.Name())
	}
	return "", lastErr
}

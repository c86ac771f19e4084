package estimation

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"crowdcount/internal/domain"
)

// ExtractStrategy tries to pull one JSON object out of model text.
type ExtractStrategy struct {
	Name    string
	Extract func(text string) (map[string]any, bool)
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\n?```")

// Strategies are tried in order; the first that yields an object wins.
var Strategies = []ExtractStrategy{
	{Name: "fenced_block", Extract: extractFenced},
	{Name: "brace_span", Extract: extractBraceSpan},
	{Name: "verbatim", Extract: extractVerbatim},
}

func extractFenced(text string) (map[string]any, bool) {
	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		if obj, ok := parseObject(m[1]); ok {
			return obj, true
		}
	}
	return nil, false
}

func extractBraceSpan(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return parseObject(text[start : end+1])
}

// extractVerbatim is a backstop: any text it accepts is already accepted by
// extractBraceSpan, so it only wins if the chain is reordered.
func extractVerbatim(text string) (map[string]any, bool) { return parseObject(text) }

func parseObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// ExtractJSON runs the strategy chain and reports which strategy succeeded.
func ExtractJSON(text string) (map[string]any, string, bool) {
	for _, s := range Strategies {
		if obj, ok := s.Extract(text); ok {
			return obj, s.Name, true
		}
	}
	return nil, "", false
}

const defaultConfidence = 0.6

// Repair turns raw model text into a coerced EstimateResult. ok is false only
// when no strategy could extract a JSON object.
func Repair(text string) (domain.EstimateResult, bool) {
	obj, _, ok := ExtractJSON(text)
	if !ok {
		return domain.EstimateResult{}, false
	}
	return Coerce(obj), true
}

// Coerce maps a loosely shaped object onto the estimate contract.
func Coerce(obj map[string]any) domain.EstimateResult {
	count := int64(0)
	if f, ok := toFloat(obj["count"]); ok && f > 0 {
		count = roundInt(f)
	}

	conf := defaultConfidence
	if f, ok := toFloat(obj["confidence"]); ok {
		conf = clamp01(f)
	}

	r := domain.Range{Min: roundInt(float64(count) * 0.7), Max: roundInt(float64(count) * 1.4)}
	if rm, ok := obj["range"].(map[string]any); ok {
		lo, okLo := toFloat(rm["min"])
		hi, okHi := toFloat(rm["max"])
		if okLo && okHi && lo >= 0 && hi >= lo {
			r = domain.Range{Min: roundInt(lo), Max: roundInt(hi)}
		}
	}

	return domain.EstimateResult{
		Count:       count,
		Confidence:  conf,
		Range:       r,
		Assumptions: stringList(obj["assumptions"], domain.MaxAssumptions),
		Notes:       stringList(obj["notes"], domain.MaxAssumptions),
	}
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		s := strings.NewReplacer(",", "", "_", "", " ", "").Replace(strings.TrimSpace(x))
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringList(v any, limit int) []string {
	arr, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, min(len(arr), limit))
	for _, e := range arr {
		s, ok := e.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(s))
		if len(out) == limit {
			break
		}
	}
	return out
}

func clamp01(f float64) float64 { return math.Max(0, math.Min(1, f)) }

// roundInt saturates instead of overflowing for absurd model answers.
func roundInt(f float64) int64 {
	if f >= math.MaxInt64/2 {
		return math.MaxInt64 / 2
	}
	if f <= 0 {
		return 0
	}
	return int64(math.Round(f))
}

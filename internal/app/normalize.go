package app

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"crowdcount/internal/domain"
	"crowdcount/internal/estimation"
)

/********** alias registries (single source of truth) **********/

var inputAliases = map[string][]string{
	"address": {"address", "location.address", "location", "place"},
	"feature": {"feature", "target", "who", "description"},
	"crowd":   {"crowd", "crowd_level", "crowdLevel", "density"},
	"radius":  {"radius_m", "radius", "radiusM", "radius_meters"},
	"time":    {"local_time_iso", "time", "localTime", "local_time"},
	"lang":    {"lang", "ui_lang", "uiLang", "language"},
}

// crowdLabels is the one bidirectional crowd table: every accepted label maps
// to an internal code, and each code maps back to its display labels.
var crowdLabels = []struct {
	code    domain.CrowdLevel
	en, ja  string
	aliases []string
}{
	{domain.CrowdEmpty, "empty", "空いている", []string{"empty", "quiet", "sparse", "low", "空いている", "空き", "すいている", "空いてる", "閑散", "ガラガラ"}},
	{domain.CrowdNormal, "normal", "普通", []string{"normal", "moderate", "medium", "average", "usual", "普通", "ふつう", "通常", "やや混雑", "まあまあ"}},
	{domain.CrowdCrowded, "crowded", "混雑", []string{"crowded", "busy", "packed", "high", "full", "混雑", "混んでいる", "混雑している", "混んでる", "満員", "大混雑"}},
}

var crowdByAlias = func() map[string]domain.CrowdLevel {
	m := make(map[string]domain.CrowdLevel, 32)
	for _, row := range crowdLabels {
		for _, a := range row.aliases {
			m[strings.ToLower(a)] = row.code
		}
	}
	return m
}()

// ParseCrowd maps an English or Japanese label onto the internal code.
func ParseCrowd(s string) (domain.CrowdLevel, bool) {
	c, ok := crowdByAlias[strings.ToLower(clean(s))]
	return c, ok
}

// CrowdLabel renders an internal code for display in the given language.
func CrowdLabel(c domain.CrowdLevel, l domain.Lang) string {
	for _, row := range crowdLabels {
		if row.code == c {
			if l == domain.LangJA {
				return row.ja
			}
			return row.en
		}
	}
	return string(c)
}

// Issue is a validation problem found while normalizing; loose mode ignores it.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string { return i.Field + ": " + i.Message }

const (
	defaultAddress = "unknown"
	defaultFeature = "people"
)

// Normalize never fails: it always returns a CanonicalInput satisfying its
// invariants, plus the issues a strict caller may want to reject on.
func Normalize(raw []byte) (domain.CanonicalInput, []Issue) {
	var issues []Issue
	m, err := decodePayload(raw)
	if err != nil {
		issues = append(issues, Issue{Field: "body", Message: err.Error()})
		m = map[string]any{}
	}

	in := domain.CanonicalInput{RadiusM: domain.DefaultRadiusM, Crowd: domain.CrowdEmpty}

	in.Address, issues = boundedText(m, "address", defaultAddress, domain.MaxAddressRunes, issues)
	in.Feature, issues = boundedText(m, "feature", defaultFeature, domain.MaxFeatureRunes, issues)

	if v := firstAlias(m, "radius"); v == nil {
		issues = append(issues, Issue{Field: "radius_m", Message: "missing"})
	} else if r, ok := parseRadius(v); !ok {
		issues = append(issues, Issue{Field: "radius_m", Message: fmt.Sprintf("not a number: %v", v)})
	} else {
		if r < domain.MinRadiusM || r > domain.MaxRadiusM {
			issues = append(issues, Issue{Field: "radius_m", Message: fmt.Sprintf("out of range [%d, %d]", domain.MinRadiusM, domain.MaxRadiusM)})
		}
		in.RadiusM = clampRadius(r)
	}

	if s, ok := firstAlias(m, "crowd").(string); ok {
		if c, ok := ParseCrowd(s); ok {
			in.Crowd = c
		} else {
			issues = append(issues, Issue{Field: "crowd", Message: fmt.Sprintf("unknown crowd level %q", s)})
		}
	} else {
		issues = append(issues, Issue{Field: "crowd", Message: "missing"})
	}

	for _, key := range []string{"address", "feature", "crowd"} {
		if s, ok := firstAlias(m, key).(string); ok && estimation.ContainsCJK(s) {
			in.HasCJK = true
		}
	}

	if s, ok := firstAlias(m, "time").(string); ok {
		in.LocalTimeISO = clean(s)
	}
	if s, ok := firstAlias(m, "lang").(string); ok {
		in.Lang = parseLang(s)
	}
	return in, issues
}

// decodePayload accepts an object, or a JSON string holding an object.
func decodePayload(raw []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	for i := 0; i < 2; i++ {
		s, ok := v.(string)
		if !ok {
			break
		}
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("invalid JSON string payload: %w", err)
		}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload is %T, want object", v)
	}
	return m, nil
}

func boundedText(m map[string]any, key, def string, maxRunes int, issues []Issue) (string, []Issue) {
	s, _ := firstAlias(m, key).(string)
	s = clean(s)
	if s == "" {
		return def, append(issues, Issue{Field: key, Message: "missing"})
	}
	if utf8.RuneCountInString(s) > maxRunes {
		issues = append(issues, Issue{Field: key, Message: fmt.Sprintf("longer than %d characters", maxRunes)})
		s = string([]rune(s)[:maxRunes])
	}
	return s, issues
}

var radiusRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*(km|m|meters?|metres?|キロ|メートル)?$`)

func parseRadius(v any) (int, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		s := strings.ToLower(strings.ReplaceAll(clean(x), ",", ""))
		mm := radiusRe.FindStringSubmatch(s)
		if mm == nil {
			return 0, false
		}
		n, err := strconv.ParseFloat(mm[1], 64)
		if err != nil {
			return 0, false
		}
		f = n
		if mm[2] == "km" || mm[2] == "キロ" {
			f *= 1000
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if f < math.MinInt32 {
		return math.MinInt32, true
	}
	return int(math.Round(f)), true
}

func clampRadius(r int) int {
	return max(domain.MinRadiusM, min(domain.MaxRadiusM, r))
}

func parseLang(s string) domain.Lang {
	s = strings.ToLower(clean(s))
	switch {
	case strings.HasPrefix(s, "ja"), s == "日本語":
		return domain.LangJA
	case strings.HasPrefix(s, "en"):
		return domain.LangEN
	}
	return ""
}

/********** tiny helpers **********/

// clean folds full-width characters (NFKC) and trims.
func clean(s string) string { return strings.TrimSpace(norm.NFKC.String(s)) }

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// firstAlias returns the first non-nil value among a key's aliases.
func firstAlias(m map[string]any, key string) any {
	for _, p := range inputAliases[key] {
		if v := lookupAny(m, p); v != nil {
			return v
		}
	}
	return nil
}

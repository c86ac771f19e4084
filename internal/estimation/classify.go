package estimation

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/language"

	"crowdcount/internal/domain"
)

type placeRule struct {
	place domain.PlaceType
	re    *regexp.Regexp
}

// Ordered by priority; the first match wins.
var placeRules = []placeRule{
	{domain.PlaceStation, regexp.MustCompile(`(?i)駅|改札|\bstation\b|\bsubway\b|\bmetro\b|\bjr\b`)},
	{domain.PlaceAirport, regexp.MustCompile(`(?i)空港|\bairport\b|羽田|成田|\bhaneda\b|\bnarita\b`)},
	{domain.PlaceMall, regexp.MustCompile(`(?i)モール|ショッピング|百貨店|デパート|商店街|アウトレット|\bmall\b|\bshopping\b|department store|\boutlet\b`)},
	{domain.PlacePark, regexp.MustCompile(`(?i)公園|庭園|\bpark\b|\bgardens?\b`)},
	{domain.PlaceResidential, regexp.MustCompile(`(?i)住宅|マンション|団地|\bresidential\b|\bapartments?\b|\bhousing\b|\bneighbou?rhood\b`)},
	{domain.PlaceOffice, regexp.MustCompile(`(?i)オフィス|ビジネス街|本社|会社|\boffices?\b|business district|\bheadquarters\b`)},
	{domain.PlaceSchool, regexp.MustCompile(`(?i)学校|大学|高校|小学校|中学校|キャンパス|\bschool\b|\buniversity\b|\bcollege\b|\bcampus\b`)},
	{domain.PlaceTourist, regexp.MustCompile(`(?i)観光|神社|寺院|お寺|浅草寺|清水寺|金閣寺|銀閣寺|(^|[^宮茨])城(跡|址|$|\s)|天守|名所|博物館|美術館|タワー|\btourist|\btemple\b|\bshrine\b|\bcastle\b|\bmuseum\b|\blandmark\b|\btower\b`)},
}

var (
	foreignerRe = regexp.MustCompile(`(?i)外国人|外国籍|非日本人|訪日|インバウンド|海外からの|\bforeign(ers?)?\b|\binbound\b|\boverseas\b|\binternational (visitors?|tourists?|travell?ers?)\b|\bexpats?\b|\bnon-japanese\b`)
	japaneseRe  = regexp.MustCompile(`(?i)(^|[^非])日本人|邦人|国内客|国内旅行者|(^|[^-])\bjapanese\b`)
)

// Classify derives the categorical context of a request. acceptLanguage is the
// raw Accept-Language header and may be empty.
func Classify(in domain.CanonicalInput, acceptLanguage string) domain.Classification {
	c := domain.Classification{
		PlaceType:   DetectPlaceType(in.Address + " " + in.Feature),
		Nationality: DetectNationality(in.Feature),
		TargetLang:  DetectTargetLang(in, acceptLanguage),
		TimeSlot:    domain.SlotUnknown,
	}
	if t, ok := ParseLocalTime(in.LocalTimeISO); ok {
		c.TimeSlot = SlotForHour(t.Hour())
		c.Weekday = int(t.Weekday())
		c.Weekend = t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
		c.TimeKnown = true
	}
	return c
}

func DetectPlaceType(text string) domain.PlaceType {
	for _, r := range placeRules {
		if r.re.MatchString(text) {
			return r.place
		}
	}
	return domain.PlaceGeneric
}

// DetectNationality looks only at explicit terms in the feature text.
func DetectNationality(feature string) domain.NationalityFilter {
	foreign := foreignerRe.MatchString(feature)
	japanese := japaneseRe.MatchString(feature)
	switch {
	case foreign && !japanese:
		return domain.NationalityForeigners
	case japanese && !foreign:
		return domain.NationalityJapanese
	default:
		return domain.NationalityAll
	}
}

var langMatcher = language.NewMatcher([]language.Tag{language.English, language.Japanese})

// DetectTargetLang: explicit field > Accept-Language > CJK in input > English.
func DetectTargetLang(in domain.CanonicalInput, acceptLanguage string) domain.Lang {
	if in.Lang == domain.LangJA || in.Lang == domain.LangEN {
		return in.Lang
	}
	if l, ok := langFromHeader(acceptLanguage); ok {
		return l
	}
	if in.HasCJK || ContainsCJK(in.Address) || ContainsCJK(in.Feature) {
		return domain.LangJA
	}
	return domain.LangEN
}

func langFromHeader(h string) (domain.Lang, bool) {
	if strings.TrimSpace(h) == "" {
		return "", false
	}
	tags, _, err := language.ParseAcceptLanguage(h)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, idx, conf := langMatcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	if idx == 1 {
		return domain.LangJA, true
	}
	return domain.LangEN, true
}

// ContainsCJK reports Han, Hiragana or Katakana anywhere in s.
func ContainsCJK(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return true
		}
	}
	return false
}

var localLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseLocalTime reads the wall clock as written. A zone offset, when present,
// is kept so Hour and Weekday stay those of the caller's local time.
func ParseLocalTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range localLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func SlotForHour(h int) domain.TimeSlot {
	switch {
	case h >= 7 && h <= 9:
		return domain.SlotMorningCommute
	case h >= 11 && h <= 13:
		return domain.SlotLunch
	case h >= 17 && h <= 20:
		return domain.SlotEveningCommute
	case h >= 22 || h <= 4:
		return domain.SlotNight
	case h >= 5 && h <= 6:
		return domain.SlotEarlyMorning
	case h >= 10 && h <= 16:
		return domain.SlotDaytime
	default:
		return domain.SlotOther
	}
}

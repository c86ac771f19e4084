package domain

// CrowdLevel is the locale-free crowd hint. Localized labels are mapped onto
// these codes at the request boundary only.
type CrowdLevel string

const (
	CrowdEmpty   CrowdLevel = "empty"
	CrowdNormal  CrowdLevel = "normal"
	CrowdCrowded CrowdLevel = "crowded"
)

type Lang string

const (
	LangJA Lang = "ja"
	LangEN Lang = "en"
)

const (
	MinRadiusM     = 10
	MaxRadiusM     = 40_075_000 // Earth's equatorial circumference
	DefaultRadiusM = 500

	MaxAddressRunes = 300
	MaxFeatureRunes = 140
)

// CanonicalInput is a request after loose normalization. Every field satisfies
// its documented range regardless of what the caller sent.
type CanonicalInput struct {
	Address      string     `json:"address"`
	Crowd        CrowdLevel `json:"crowd"`
	Feature      string     `json:"feature"`
	RadiusM      int        `json:"radius_m"`
	LocalTimeISO string     `json:"local_time_iso,omitempty"`
	Lang         Lang       `json:"lang,omitempty"` // explicit lang/ui_lang field, if any
	// HasCJK records whether any raw text field, crowd label included, was
	// written in Japanese script before normalization replaced it with a code.
	HasCJK bool `json:"-"`
}

type PlaceType string

const (
	PlaceStation     PlaceType = "station"
	PlaceAirport     PlaceType = "airport"
	PlaceMall        PlaceType = "mall"
	PlacePark        PlaceType = "park"
	PlaceResidential PlaceType = "residential"
	PlaceOffice      PlaceType = "office"
	PlaceSchool      PlaceType = "school"
	PlaceTourist     PlaceType = "tourist_site"
	PlaceGeneric     PlaceType = "generic"
)

type TimeSlot string

const (
	SlotMorningCommute TimeSlot = "morning_commute"
	SlotLunch          TimeSlot = "lunch"
	SlotEveningCommute TimeSlot = "evening_commute"
	SlotNight          TimeSlot = "night"
	SlotEarlyMorning   TimeSlot = "early_morning"
	SlotDaytime        TimeSlot = "daytime"
	SlotOther          TimeSlot = "other"
	SlotUnknown        TimeSlot = "unknown"
)

type NationalityFilter string

const (
	NationalityAll        NationalityFilter = "all"
	NationalityJapanese   NationalityFilter = "japanese_only"
	NationalityForeigners NationalityFilter = "foreigner_only"
)

// Classification is the categorical context derived once per request.
// Weekday and Weekend are meaningful only when TimeKnown is true.
type Classification struct {
	PlaceType   PlaceType         `json:"place_type"`
	TimeSlot    TimeSlot          `json:"time_slot"`
	Weekday     int               `json:"weekday"` // 0=Sunday .. 6=Saturday
	Weekend     bool              `json:"weekend"`
	TimeKnown   bool              `json:"time_known"`
	Nationality NationalityFilter `json:"nationality_filter"`
	TargetLang  Lang              `json:"target_lang"`
}

// Band is the plausibility interval a final count must fall into.
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// BaselineEstimate satisfies
// Expected = AreaKm2 * BaseDensity * TimeFactor * CrowdFactor * NationalityFactor.
type BaselineEstimate struct {
	Expected          float64   `json:"expected"`
	AreaKm2           float64   `json:"area_km2"`
	BaseDensity       float64   `json:"base_density"`
	TimeFactor        float64   `json:"time_factor"`
	CrowdFactor       float64   `json:"crowd_factor"`
	NationalityFactor float64   `json:"nationality_factor"`
	PlaceType         PlaceType `json:"place_type"`
	TimeSlot          TimeSlot  `json:"time_slot"`
	Band              Band      `json:"band"`
}

type Range struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// EstimateResult is the response contract of the estimate endpoint.
type EstimateResult struct {
	Count       int64    `json:"count"`
	Confidence  float64  `json:"confidence"`
	Range       Range    `json:"range"`
	Assumptions []string `json:"assumptions"`
	Notes       []string `json:"notes"`
}

const (
	MaxAssumptions = 8
	MaxNotes       = 10
)

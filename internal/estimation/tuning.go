package estimation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"crowdcount/internal/domain"
)

// Tuning holds every calibration constant of the baseline and the validator.
// The numbers came out of experimentation; none of them is a contract.
type Tuning struct {
	// people per km² at the core of each place type
	Densities map[domain.PlaceType]float64 `yaml:"densities"`

	// Beyond the core area people are accumulated tier by tier at a lower
	// density. Tiers must be ordered by UpToKm2.
	CoreAreaKm2 float64       `yaml:"core_area_km2"`
	Tiers       []DensityTier `yaml:"tiers"`

	SlotFactors    map[domain.TimeSlot]float64                      `yaml:"slot_factors"`
	SlotOverrides  map[domain.PlaceType]map[domain.TimeSlot]float64 `yaml:"slot_overrides"`
	WeekendFactors map[domain.PlaceType]float64                     `yaml:"weekend_factors"`

	CrowdFactors       map[domain.CrowdLevel]float64        `yaml:"crowd_factors"`
	NationalityFactors map[domain.NationalityFilter]float64 `yaml:"nationality_factors"`

	BandLow  float64 `yaml:"band_low"`
	BandHigh float64 `yaml:"band_high"`

	WorldPopulation   float64 `yaml:"world_population"`
	CountryPopulation float64 `yaml:"country_population"`
	CountryName       string  `yaml:"country_name"`

	FallbackConfidence float64 `yaml:"fallback_confidence"`
}

type DensityTier struct {
	UpToKm2 float64 `yaml:"up_to_km2"`
	Density float64 `yaml:"density"`
}

const (
	earthSurfaceKm2 = 510_072_000.0

	BandModeDefault = "default"
	BandModeStrict  = "strict"
)

func DefaultTuning() Tuning {
	return Tuning{
		Densities: map[domain.PlaceType]float64{
			domain.PlaceStation:     8000,
			domain.PlaceAirport:     4000,
			domain.PlaceMall:        6000,
			domain.PlacePark:        700,
			domain.PlaceResidential: 5000,
			domain.PlaceOffice:      7000,
			domain.PlaceSchool:      3500,
			domain.PlaceTourist:     4500,
			domain.PlaceGeneric:     3000,
		},
		CoreAreaKm2: 3,
		Tiers: []DensityTier{
			{UpToKm2: 1_000, Density: 2_000},
			{UpToKm2: 400_000, Density: 300},
			{UpToKm2: earthSurfaceKm2, Density: 15},
		},
		SlotFactors: map[domain.TimeSlot]float64{
			domain.SlotMorningCommute: 1.3,
			domain.SlotLunch:          1.1,
			domain.SlotEveningCommute: 1.3,
			domain.SlotNight:          0.3,
			domain.SlotEarlyMorning:   0.5,
			domain.SlotDaytime:        1.0,
			domain.SlotOther:          0.8,
			domain.SlotUnknown:        1.0,
		},
		SlotOverrides: map[domain.PlaceType]map[domain.TimeSlot]float64{
			domain.PlaceStation: {domain.SlotMorningCommute: 1.8, domain.SlotEveningCommute: 1.8},
			domain.PlaceOffice:  {domain.SlotNight: 0.1, domain.SlotEarlyMorning: 0.2},
			domain.PlacePark:    {domain.SlotNight: 0.1},
			domain.PlaceSchool:  {domain.SlotNight: 0.05, domain.SlotOther: 0.2},
			domain.PlaceMall:    {domain.SlotNight: 0.1, domain.SlotEarlyMorning: 0.1},
		},
		WeekendFactors: map[domain.PlaceType]float64{
			domain.PlaceStation:     0.8,
			domain.PlaceAirport:     1.1,
			domain.PlaceMall:        1.3,
			domain.PlacePark:        1.5,
			domain.PlaceResidential: 1.2,
			domain.PlaceOffice:      0.35,
			domain.PlaceSchool:      0.25,
			domain.PlaceTourist:     1.4,
			domain.PlaceGeneric:     1.0,
		},
		CrowdFactors: map[domain.CrowdLevel]float64{
			domain.CrowdEmpty:   0.4,
			domain.CrowdNormal:  1.0,
			domain.CrowdCrowded: 1.8,
		},
		NationalityFactors: map[domain.NationalityFilter]float64{
			domain.NationalityAll:        1.0,
			domain.NationalityJapanese:   0.85,
			domain.NationalityForeigners: 0.15,
		},
		BandLow:            0.5,
		BandHigh:           2.0,
		WorldPopulation:    8_100_000_000,
		CountryPopulation:  124_000_000,
		CountryName:        "Japan",
		FallbackConfidence: 0.55,
	}
}

// WithBandMode switches to the tighter [0.6, 1.8] band for "strict".
func (t Tuning) WithBandMode(mode string) Tuning {
	if mode == BandModeStrict {
		t.BandLow, t.BandHigh = 0.6, 1.8
	}
	return t
}

// LoadTuning returns the defaults overlaid with the YAML file at path.
// Keys absent from the file keep their default. An empty path is not an error.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning file: %w", err)
	}
	var over Tuning
	if err := yaml.Unmarshal(b, &over); err != nil {
		return t, fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	t.merge(over)
	if err := t.Validate(); err != nil {
		return DefaultTuning(), fmt.Errorf("tuning file %s: %w", path, err)
	}
	return t, nil
}

func (t *Tuning) merge(o Tuning) {
	mergeMap(t.Densities, o.Densities)
	mergeMap(t.SlotFactors, o.SlotFactors)
	mergeMap(t.WeekendFactors, o.WeekendFactors)
	mergeMap(t.CrowdFactors, o.CrowdFactors)
	mergeMap(t.NationalityFactors, o.NationalityFactors)
	for place, slots := range o.SlotOverrides {
		if t.SlotOverrides[place] == nil {
			t.SlotOverrides[place] = map[domain.TimeSlot]float64{}
		}
		mergeMap(t.SlotOverrides[place], slots)
	}
	if o.CoreAreaKm2 > 0 {
		t.CoreAreaKm2 = o.CoreAreaKm2
	}
	if len(o.Tiers) > 0 {
		t.Tiers = o.Tiers
	}
	if o.BandLow > 0 {
		t.BandLow = o.BandLow
	}
	if o.BandHigh > 0 {
		t.BandHigh = o.BandHigh
	}
	if o.WorldPopulation > 0 {
		t.WorldPopulation = o.WorldPopulation
	}
	if o.CountryPopulation > 0 {
		t.CountryPopulation = o.CountryPopulation
	}
	if o.CountryName != "" {
		t.CountryName = o.CountryName
	}
	if o.FallbackConfidence > 0 {
		t.FallbackConfidence = o.FallbackConfidence
	}
}

func mergeMap[K comparable](dst, src map[K]float64) {
	for k, v := range src {
		dst[k] = v
	}
}

func (t Tuning) Validate() error {
	if t.BandLow <= 0 || t.BandLow > 1 {
		return fmt.Errorf("band_low must be in (0,1], got %v", t.BandLow)
	}
	if t.BandHigh < 1 {
		return fmt.Errorf("band_high must be >= 1, got %v", t.BandHigh)
	}
	prev := t.CoreAreaKm2
	for i, tier := range t.Tiers {
		if tier.UpToKm2 <= prev {
			return fmt.Errorf("tier %d: up_to_km2 must increase (got %v after %v)", i, tier.UpToKm2, prev)
		}
		if tier.Density < 0 {
			return fmt.Errorf("tier %d: negative density", i)
		}
		prev = tier.UpToKm2
	}
	for place, d := range t.Densities {
		if d < 0 {
			return fmt.Errorf("density for %s is negative", place)
		}
	}
	if t.FallbackConfidence < 0 || t.FallbackConfidence > 1 {
		return fmt.Errorf("fallback_confidence must be in [0,1]")
	}
	return nil
}

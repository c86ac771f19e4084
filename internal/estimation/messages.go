package estimation

import (
	"fmt"

	"crowdcount/internal/domain"
)

var placeLabels = map[domain.PlaceType][2]string{ // [en, ja]
	domain.PlaceStation:     {"station", "駅"},
	domain.PlaceAirport:     {"airport", "空港"},
	domain.PlaceMall:        {"shopping area", "商業施設"},
	domain.PlacePark:        {"park", "公園"},
	domain.PlaceResidential: {"residential area", "住宅地"},
	domain.PlaceOffice:      {"office district", "オフィス街"},
	domain.PlaceSchool:      {"school", "学校"},
	domain.PlaceTourist:     {"tourist site", "観光地"},
	domain.PlaceGeneric:     {"general area", "一般的な地域"},
}

var slotLabels = map[domain.TimeSlot][2]string{
	domain.SlotMorningCommute: {"morning commute", "朝の通勤時間帯"},
	domain.SlotLunch:          {"lunch time", "昼食時間帯"},
	domain.SlotEveningCommute: {"evening commute", "夕方の帰宅時間帯"},
	domain.SlotNight:          {"night", "深夜"},
	domain.SlotEarlyMorning:   {"early morning", "早朝"},
	domain.SlotDaytime:        {"daytime", "日中"},
	domain.SlotOther:          {"evening", "夜間"},
	domain.SlotUnknown:        {"unspecified time", "時刻指定なし"},
}

func label(l domain.Lang, pair [2]string) string {
	if l == domain.LangJA {
		return pair[1]
	}
	return pair[0]
}

func PlaceLabel(l domain.Lang, p domain.PlaceType) string { return label(l, placeLabels[p]) }
func SlotLabel(l domain.Lang, s domain.TimeSlot) string   { return label(l, slotLabels[s]) }

func correctedNote(l domain.Lang, original, corrected int64, b domain.BaselineEstimate, lo, hi int64) string {
	if l == domain.LangJA {
		return fmt.Sprintf("推定値 %d は許容範囲 [%d, %d]（基準値 約%.0f人）の外にあったため %d に補正しました。",
			original, lo, hi, b.Expected, corrected)
	}
	return fmt.Sprintf("The estimate %d was outside the allowed band [%d, %d] (baseline ≈ %.0f people) and was corrected to %d.",
		original, lo, hi, b.Expected, corrected)
}

func passedNote(l domain.Lang, b domain.BaselineEstimate, lo, hi int64) string {
	if l == domain.LangJA {
		return fmt.Sprintf("推定値は基準値 約%.0f人 に基づく許容範囲 [%d, %d] 内にあり、検証を通過しました。", b.Expected, lo, hi)
	}
	return fmt.Sprintf("The estimate passed validation against the band [%d, %d] around the baseline of ≈ %.0f people.", lo, hi, b.Expected)
}

// FallbackReason says why the model answer was not used.
type FallbackReason string

const (
	ReasonNotConfigured FallbackReason = "not_configured"
	ReasonUpstream      FallbackReason = "upstream_error"
	ReasonUnparsable    FallbackReason = "unparsable"
)

func fallbackNote(l domain.Lang, r FallbackReason) string {
	if l == domain.LangJA {
		switch r {
		case ReasonNotConfigured:
			return "AIモデルが未設定のため、ヒューリスティックによる推定値を返しています。"
		case ReasonUnparsable:
			return "AIモデルの応答を解析できなかったため、ヒューリスティックによる推定値を返しています。"
		default:
			return "AIモデルに接続できなかったため、ヒューリスティックによる推定値を返しています。"
		}
	}
	switch r {
	case ReasonNotConfigured:
		return "No language model is configured; this is a heuristic estimate."
	case ReasonUnparsable:
		return "The language model reply could not be parsed; this is a heuristic estimate."
	default:
		return "The language model was unavailable; this is a heuristic estimate."
	}
}

func fallbackAssumptions(l domain.Lang, in domain.CanonicalInput, c domain.Classification, b domain.BaselineEstimate) []string {
	if l == domain.LangJA {
		return []string{
			fmt.Sprintf("場所の種類を「%s」と判定し、人口密度 約%.0f人/km² を仮定しました。", PlaceLabel(l, c.PlaceType), b.BaseDensity),
			fmt.Sprintf("時間帯は「%s」として係数 %.2f を適用しました。", SlotLabel(l, c.TimeSlot), b.TimeFactor),
			fmt.Sprintf("混雑度 %s に対して係数 %.2f を適用しました。", in.Crowd, b.CrowdFactor),
			fmt.Sprintf("半径 %dm の円（約%.3f km²）を対象としています。", in.RadiusM, b.AreaKm2),
		}
	}
	return []string{
		fmt.Sprintf("Classified the location as a %s with a density of ≈ %.0f people/km².", PlaceLabel(l, c.PlaceType), b.BaseDensity),
		fmt.Sprintf("Applied a time factor of %.2f for %s.", b.TimeFactor, SlotLabel(l, c.TimeSlot)),
		fmt.Sprintf("Applied a crowd factor of %.2f for crowd level %s.", b.CrowdFactor, in.Crowd),
		fmt.Sprintf("Area is a circle of radius %d m (≈ %.3f km²).", in.RadiusM, b.AreaKm2),
	}
}

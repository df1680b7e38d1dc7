package plan

import (
	"math"

	"github.com/gravacoach/server/pkg/types"
)

// Tone is the intended intensity of a day's ride.
type Tone string

const (
	ToneEasy     Tone = "easy"
	ToneModerate Tone = "moderate"
	ToneHard     Tone = "hard"
	ToneRest     Tone = "rest"
)

// EstimateDurationHours estimates ride time from distance, climbing and tone.
// Speed assumptions are flat-road averages, slowed ~3% per 1000ft of gain.
func EstimateDurationHours(miles, elevFt float64, tone Tone) float64 {
	if miles == 0 || tone == ToneRest {
		return 0
	}
	var mph float64
	switch tone {
	case ToneEasy:
		mph = 15
	case ToneModerate:
		mph = 16.5
	default:
		mph = 18
	}
	slow := 1 + (elevFt/1000)*0.03
	return (miles / mph) * slow
}

// PerHour returns the in-ride fueling targets for a tone.
func PerHour(tone Tone) types.PerHourTargets {
	switch tone {
	case ToneEasy:
		return types.PerHourTargets{CarbsG: 40, FluidsL: 0.5, SodiumMg: 400}
	case ToneModerate:
		return types.PerHourTargets{CarbsG: 60, FluidsL: 0.7, SodiumMg: 600}
	case ToneHard:
		return types.PerHourTargets{CarbsG: 80, FluidsL: 0.9, SodiumMg: 800}
	default:
		return types.PerHourTargets{}
	}
}

// Totals are absolute intake amounts for a window of the day.
type Totals struct {
	CarbsG     float64 `json:"carbs_g"`
	ProteinG   float64 `json:"protein_g,omitempty"`
	FluidsL    float64 `json:"fluids_l"`
	SodiumMg   float64 `json:"sodium_mg"`
	CaffeineMg float64 `json:"caffeine_mg,omitempty"`
}

// RideNutrition is the in-ride portion of a day's fueling.
type RideNutrition struct {
	DurationHours float64              `json:"duration_hours"`
	PerHour       types.PerHourTargets `json:"per_hour"`
	During        Totals               `json:"during"`
}

// DayRideNutrition computes in-ride fueling. Rides with heavy climbing get a
// bump since grades push intensity above the nominal tone.
func DayRideNutrition(miles, elevFt float64, tone Tone) RideNutrition {
	durH := EstimateDurationHours(miles, elevFt, tone)
	perHour := PerHour(tone)

	ftPerMi := 0.0
	if miles > 0 {
		ftPerMi = elevFt / miles
	}
	elevBump := 1.00
	if ftPerMi > 150 {
		elevBump = 1.10
	} else if ftPerMi > 100 {
		elevBump = 1.05
	}

	return RideNutrition{
		DurationHours: durH,
		PerHour:       perHour,
		During: Totals{
			CarbsG:   perHour.CarbsG * durH * elevBump,
			FluidsL:  perHour.FluidsL * durH * elevBump,
			SodiumMg: perHour.SodiumMg * durH * elevBump,
		},
	}
}

// PrePostGuidance returns pre- and post-ride intake scaled to body mass.
func PrePostGuidance(tone Tone, bodyKg float64) (pre, post Totals) {
	if bodyKg == 0 {
		bodyKg = 75
	}
	if tone == ToneRest {
		pre = Totals{FluidsL: 0.3, SodiumMg: 200}
		post = Totals{CarbsG: 0.5 * bodyKg, ProteinG: 0.25 * bodyKg, FluidsL: 0.3, SodiumMg: 300}
		return pre, post
	}

	preCHO := 0.6 * bodyKg
	postCHO := 0.8 * bodyKg
	caffeine := 100.0
	if tone == ToneHard {
		preCHO = 1.0 * bodyKg
		postCHO = 1.2 * bodyKg
		caffeine = 150
	}

	pre = Totals{CarbsG: preCHO, FluidsL: 0.3, SodiumMg: 300, CaffeineMg: caffeine}
	post = Totals{CarbsG: postCHO, ProteinG: 0.3 * bodyKg, FluidsL: 0.5, SodiumMg: 500}
	return pre, post
}

// FullDayNutrition rolls pre, during and post intake into day totals.
type FullDayNutrition struct {
	Ride   RideNutrition `json:"ride"`
	Pre    Totals        `json:"pre"`
	Post   Totals        `json:"post"`
	Totals Totals        `json:"totals"`
}

func DayNutrition(miles, elevFt float64, tone Tone, bodyKg float64) FullDayNutrition {
	ride := DayRideNutrition(miles, elevFt, tone)
	pre, post := PrePostGuidance(tone, bodyKg)

	return FullDayNutrition{
		Ride: ride,
		Pre:  pre,
		Post: post,
		Totals: Totals{
			CarbsG:   math.Round(pre.CarbsG + ride.During.CarbsG + post.CarbsG),
			ProteinG: math.Round(post.ProteinG),
			FluidsL:  math.Round((pre.FluidsL+ride.During.FluidsL+post.FluidsL)*10) / 10,
			SodiumMg: math.Round(pre.SodiumMg + ride.During.SodiumMg + post.SodiumMg),
		},
	}
}

package plan

import (
	"math"

	"github.com/gravacoach/server/pkg/types"
)

// DayPlan is one day of the deterministic weekly schedule.
type DayPlan struct {
	Day       string           `json:"day"`
	Miles     float64          `json:"miles"`
	ElevFt    float64          `json:"elev_ft"`
	Tone      Tone             `json:"tone"`
	Note      string           `json:"note"`
	Nutrition FullDayNutrition `json:"nutrition"`
}

var weekDays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// BuildWeekPlan lays out a 7-day schedule from the weekly focus and preferred
// long-ride day. Weekly base mileage scales with focus; the long-ride day
// carries the bulk of it.
func BuildWeekPlan(goal *types.Goal) []DayPlan {
	focus := types.FocusBalanced
	longDay := "Sat"
	goalText := ""
	if goal != nil {
		if goal.WeeklyFocus != "" {
			focus = goal.WeeklyFocus
		}
		if goal.LongRideDay == "Sun" {
			longDay = "Sun"
		}
		goalText = goal.Text
	}

	var base float64
	switch focus {
	case types.FocusClimbing:
		base = 55
	case types.FocusEndurance:
		base = 60
	case types.FocusSpeed:
		base = 45
	default:
		base = 50
	}

	weights := map[string]float64{
		"Mon": 0.10, "Tue": 0.18, "Wed": 0.14, "Thu": 0.18, "Fri": 0.10,
		"Sat": 0.24, "Sun": 0.06,
	}
	if longDay == "Sun" {
		weights["Sat"] = 0.14
		weights["Sun"] = 0.26
	}

	elevPerMile := 80.0
	if focus == types.FocusClimbing {
		elevPerMile = 110
	}

	plans := make([]DayPlan, 0, len(weekDays))
	for _, d := range weekDays {
		miles := math.Round(base*weights[d]*2) / 2

		tone := ToneModerate
		if d == "Mon" || d == "Fri" {
			tone = ToneEasy
		}
		if d == longDay {
			tone = ToneHard
		}
		if focus == types.FocusSpeed && (d == "Tue" || d == "Thu") {
			tone = ToneHard
		}
		if focus == types.FocusClimbing && d == "Wed" {
			tone = ToneHard
		}

		elev := math.Round(miles * elevPerMile)

		note := "Steady aerobic."
		if tone == ToneHard {
			note = "Quality session; fuel 60-90g/h."
		}
		if goalText != "" {
			note = "Goal-aware: " + goalText
		}

		plans = append(plans, DayPlan{
			Day:       d,
			Miles:     miles,
			ElevFt:    elev,
			Tone:      tone,
			Note:      note,
			Nutrition: DayNutrition(miles, elev, tone, 75),
		})
	}

	return plans
}

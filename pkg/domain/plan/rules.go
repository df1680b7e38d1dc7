// Package plan holds the deterministic, rule-based side of coaching: the
// fallback workout/fueling recommendation driven by readiness thresholds, the
// ride nutrition math, and the weekly plan builder. Used directly for week
// plans and as the fallback whenever the model-backed generator fails or
// returns something unusable.
package plan

import (
	"fmt"
	"math"

	"github.com/gravacoach/server/pkg/types"
)

// Readiness gates. These mirror the thresholds the model is prompted with so
// the fallback and the model disagree as little as possible.
const (
	recoveryHighMin     = 80.0
	recoveryModerateMin = 60.0
	recoveryEasyMin     = 40.0
	sleepDebtHardMaxH   = 1.0
	loadBalanceHardMax  = 2.0
)

// BuildPlan produces the rule-based recommendation from a signal snapshot.
// It never fails: missing signals push the plan toward the conservative end.
func BuildPlan(snap types.Snapshot, goal *types.Goal) *types.Plan {
	tone, label, why := classify(snap)

	var workout types.Workout
	switch tone {
	case ToneHard:
		workout = types.Workout{
			Label:       label,
			DurationMin: 75,
			Zones:       "Z2 base with Z4 blocks",
			Intervals:   "4x8min @ Z4, 5min Z2 between",
			Notes:       "Quality session; fuel 60-90g carbs per hour.",
		}
	case ToneModerate:
		workout = types.Workout{
			Label:       label,
			DurationMin: 90,
			Zones:       "Z2, optional short Z3 tempo",
			Intervals:   "2x10min tempo if feeling good, otherwise steady",
			Notes:       "Steady aerobic ride; keep effort conversational.",
		}
	case ToneEasy:
		workout = types.Workout{
			Label:       label,
			DurationMin: 45,
			Zones:       "Z1 only",
			Intervals:   "none",
			Notes:       "Recovery spin; high cadence, minimal resistance.",
		}
	default: // rest
		workout = types.Workout{
			Label:       label,
			DurationMin: 0,
			Zones:       "off the bike",
			Intervals:   "none",
			Notes:       "Rest or light mobility work only.",
		}
	}

	hours := workout.DurationMin / 60
	perHour := PerHour(tone)
	fueling := types.Fueling{
		CarbsG:   round1(perHour.CarbsG * hours),
		FluidsL:  round1(perHour.FluidsL * hours),
		SodiumMg: round1(perHour.SodiumMg * hours),
		PerHour:  perHour,
	}

	var flags []string
	if snap.RecoveryScore == nil {
		flags = append(flags, "no recovery data; defaulting to endurance")
	}
	if snap.SleepDebtHours >= 2 {
		flags = append(flags, "significant sleep debt")
	}
	if snap.Monotony != nil && *snap.Monotony > 2 {
		flags = append(flags, "high training monotony")
	}
	if goal != nil && goal.Text != "" {
		flags = append(flags, "goal: "+goal.Text)
	}

	return &types.Plan{
		Workout:   workout,
		Fueling:   fueling,
		Rationale: why,
		Flags:     flags,
		Source:    "rules",
	}
}

// classify picks the day's tone from the readiness signals. High intensity
// requires high recovery, non-declining HRV, little sleep debt, and a load
// balance that is not running hot; each missing signal blocks escalation
// rather than permitting it.
func classify(snap types.Snapshot) (Tone, string, string) {
	if snap.RecoveryScore == nil {
		return ToneModerate, "Endurance", "No recovery score available; defaulting to moderate endurance."
	}
	score := *snap.RecoveryScore

	switch {
	case score >= recoveryHighMin:
		if snap.HRVTrend != types.HRVTrendDown &&
			snap.SleepDebtHours < sleepDebtHardMaxH &&
			snap.LoadBalance != nil && *snap.LoadBalance <= loadBalanceHardMax {
			return ToneHard, "Intervals / Tempo", fmt.Sprintf(
				"Recovery %.0f with HRV %s, %.1fh sleep debt and load balance %.1f supports quality work.",
				score, snap.HRVTrend, snap.SleepDebtHours, *snap.LoadBalance)
		}
		return ToneModerate, "Endurance", fmt.Sprintf(
			"Recovery %.0f is high but HRV/sleep/load do not all clear the bar for intensity.", score)
	case score >= recoveryModerateMin:
		return ToneModerate, "Endurance", fmt.Sprintf("Recovery %.0f supports steady aerobic work.", score)
	case score >= recoveryEasyMin:
		return ToneEasy, "Recovery Spin", fmt.Sprintf("Recovery %.0f; keep it to an easy spin.", score)
	default:
		return ToneRest, "Rest", fmt.Sprintf("Recovery %.0f; take the day off.", score)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

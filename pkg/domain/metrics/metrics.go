// Package metrics derives readiness and training-load signals from
// normalized wearable records. Everything here is a pure function of its
// inputs and "now": no I/O, fully deterministic, so the thresholds that gate
// downstream recommendations stay reproducible under test.
package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/gravacoach/server/pkg/types"
)

const (
	// hrvMinSamples is the minimum HRV history for a trend call.
	hrvMinSamples = 10
	// hrvFlatBand is the absolute mean delta (ms) under which the trend is
	// classified flat. Part of the contract: changing it changes every
	// downstream recommendation.
	hrvFlatBand = 2.0

	// sleepBaselineHours is the nightly sleep target debt is measured from.
	sleepBaselineHours = 8.0

	acuteWindowDays   = 7
	chronicWindowDays = 28
)

// Derive computes the signal snapshot for one request. Missing inputs
// degrade to nil/zero fields rather than failing: the aggregator must
// tolerate partial record sets.
func Derive(now time.Time, cycles []types.CycleRecord, recoveries []types.RecoveryRecord, sleeps []types.SleepRecord) types.Snapshot {
	snap := types.Snapshot{Date: now}

	recSorted := sortedRecoveries(recoveries)
	if len(recSorted) > 0 {
		snap.RecoveryScore = recSorted[len(recSorted)-1].Score
	}
	snap.HRVTrend = hrvTrend(recSorted)
	snap.SleepDebtHours = sleepDebt(sleeps)

	snap.DailyStrain = DailyStrainSeries(cycles)
	last7 := lastN(snap.DailyStrain, acuteWindowDays)
	last28 := lastN(snap.DailyStrain, chronicWindowDays)

	if len(last7) > 0 {
		snap.AcuteLoad = ptr(round2(mean(last7)))
	}
	if len(last28) > 0 {
		snap.ChronicLoad = ptr(round2(mean(last28)))
	}
	if snap.AcuteLoad != nil && snap.ChronicLoad != nil {
		snap.LoadBalance = ptr(round2(*snap.AcuteLoad - *snap.ChronicLoad))
	}
	if len(last7) > 0 {
		sd := stddev(last7)
		if sd == 0 {
			// Degenerate case: one data point or all equal. Guard the
			// divisor so monotony collapses to the mean.
			sd = 1
		}
		snap.Monotony = ptr(round2(mean(last7) / sd))
	}

	return snap
}

// hrvTrend compares the mean of the last 7 HRV samples against the mean of
// the prior window (samples 8-14 back). Requires at least 10 samples.
func hrvTrend(recSorted []types.RecoveryRecord) types.HRVTrend {
	var vals []float64
	for _, r := range recSorted {
		if r.HRVMilli != nil {
			vals = append(vals, *r.HRVMilli)
		}
	}
	if len(vals) < hrvMinSamples {
		return types.HRVTrendUnknown
	}

	last7 := vals[len(vals)-7:]
	prevStart := len(vals) - 14
	if prevStart < 0 {
		prevStart = 0
	}
	prev := vals[prevStart : len(vals)-7]

	delta := mean(last7) - mean(prev)
	switch {
	case math.Abs(delta) < hrvFlatBand:
		return types.HRVTrendFlat
	case delta > 0:
		return types.HRVTrendUp
	default:
		return types.HRVTrendDown
	}
}

// sleepDebt derives last night's shortfall against the 8-hour baseline.
// Sleep hours come from the performance percentage when present, otherwise
// from total in-bed time. A record with neither yields zero debt; that is a
// documented simplification, not an error.
func sleepDebt(sleeps []types.SleepRecord) float64 {
	if len(sleeps) == 0 {
		return 0
	}
	sorted := make([]types.SleepRecord, len(sleeps))
	copy(sorted, sleeps)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	last := sorted[len(sorted)-1]

	hours := sleepBaselineHours
	switch {
	case last.PerformancePct != nil:
		hours = sleepBaselineHours * (*last.PerformancePct / 100)
	case last.InBedMilli != nil:
		hours = float64(*last.InBedMilli) / 3_600_000
	}

	return math.Max(0, sleepBaselineHours-hours)
}

// DailyStrainSeries groups cycles by the UTC calendar date of their start and
// keeps the day's peak strain. A day with multiple cycles counts once, at its
// maximum. The result is chronological, one value per distinct day present.
func DailyStrainSeries(cycles []types.CycleRecord) []float64 {
	if len(cycles) == 0 {
		return nil
	}

	byDay := make(map[string]float64)
	for _, c := range cycles {
		day := c.Start.UTC().Format("2006-01-02")
		if s, ok := byDay[day]; !ok || c.Strain > s {
			byDay[day] = c.Strain
		}
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	series := make([]float64, 0, len(days))
	for _, d := range days {
		series = append(series, byDay[d])
	}
	return series
}

func sortedRecoveries(recoveries []types.RecoveryRecord) []types.RecoveryRecord {
	sorted := make([]types.RecoveryRecord, len(recoveries))
	copy(sorted, recoveries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

func lastN(vals []float64, n int) []float64 {
	if len(vals) <= n {
		return vals
	}
	return vals[len(vals)-n:]
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	sumSq := 0.0
	for _, v := range vals {
		sumSq += (v - m) * (v - m)
	}
	return math.Sqrt(sumSq / float64(len(vals)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 {
	return &v
}

package whoop

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gravacoach/server/pkg/types"
)

// Normalization maps provider field variants (two possible HRV field names,
// nested score objects) into the canonical record shapes so that aggregation
// logic sees a single stable schema. Records whose timestamps cannot be
// parsed are dropped here: they are unusable for window math, not an error.

type rawCycle struct {
	ID        int64  `json:"id"`
	Start     string `json:"start"`
	CreatedAt string `json:"created_at"`
	Score     struct {
		Strain float64 `json:"strain"`
	} `json:"score"`
}

type rawRecovery struct {
	CycleID   int64  `json:"cycle_id"`
	CreatedAt string `json:"created_at"`
	Score     struct {
		RecoveryScore *float64 `json:"recovery_score"`
		HRVMillis     *float64 `json:"hrv_rmssd_millis"`
		HRVMilliLong  *float64 `json:"heart_rate_variability_rmssd_milliseconds"`
	} `json:"score"`
}

type rawSleep struct {
	ID        string `json:"id"`
	Start     string `json:"start"`
	CreatedAt string `json:"created_at"`
	Score     struct {
		SleepPerformancePercentage *float64 `json:"sleep_performance_percentage"`
		StageSummary               struct {
			TotalInBedTimeMilli *int64 `json:"total_in_bed_time_milli"`
		} `json:"stage_summary"`
	} `json:"score"`
}

type rawWorkout struct {
	ID        string `json:"id"`
	Start     string `json:"start"`
	CreatedAt string `json:"created_at"`
	SportName string `json:"sport_name"`
	Score     struct {
		Strain    float64 `json:"strain"`
		Kilojoule float64 `json:"kilojoule"`
	} `json:"score"`
}

// parseTime accepts the RFC3339 timestamps WHOOP emits. Returns zero time on
// failure.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// effectiveTime is created_at when present, otherwise start.
func effectiveTime(createdAt, start string) time.Time {
	if t := parseTime(createdAt); !t.IsZero() {
		return t
	}
	return parseTime(start)
}

func NormalizeCycles(raw []json.RawMessage) []types.CycleRecord {
	out := make([]types.CycleRecord, 0, len(raw))
	for _, r := range raw {
		var c rawCycle
		if err := json.Unmarshal(r, &c); err != nil {
			continue
		}
		start := parseTime(c.Start)
		if start.IsZero() {
			// Strain is attributed to the start day; without it the
			// record cannot be bucketed.
			continue
		}
		ts := effectiveTime(c.CreatedAt, c.Start)
		out = append(out, types.CycleRecord{
			ID:        strconv.FormatInt(c.ID, 10),
			Start:     start,
			Timestamp: ts,
			Strain:    c.Score.Strain,
		})
	}
	return out
}

func NormalizeRecoveries(raw []json.RawMessage) []types.RecoveryRecord {
	out := make([]types.RecoveryRecord, 0, len(raw))
	for _, r := range raw {
		var rec rawRecovery
		if err := json.Unmarshal(r, &rec); err != nil {
			continue
		}
		ts := parseTime(rec.CreatedAt)
		if ts.IsZero() {
			continue
		}
		hrv := rec.Score.HRVMillis
		if hrv == nil {
			hrv = rec.Score.HRVMilliLong
		}
		out = append(out, types.RecoveryRecord{
			ID:        strconv.FormatInt(rec.CycleID, 10),
			Timestamp: ts,
			Score:     rec.Score.RecoveryScore,
			HRVMilli:  hrv,
		})
	}
	return out
}

func NormalizeSleeps(raw []json.RawMessage) []types.SleepRecord {
	out := make([]types.SleepRecord, 0, len(raw))
	for _, r := range raw {
		var s rawSleep
		if err := json.Unmarshal(r, &s); err != nil {
			continue
		}
		ts := effectiveTime(s.CreatedAt, s.Start)
		if ts.IsZero() {
			continue
		}
		out = append(out, types.SleepRecord{
			ID:             s.ID,
			Timestamp:      ts,
			PerformancePct: s.Score.SleepPerformancePercentage,
			InBedMilli:     s.Score.StageSummary.TotalInBedTimeMilli,
		})
	}
	return out
}

func NormalizeWorkouts(raw []json.RawMessage) []types.WorkoutRecord {
	out := make([]types.WorkoutRecord, 0, len(raw))
	for _, r := range raw {
		var w rawWorkout
		if err := json.Unmarshal(r, &w); err != nil {
			continue
		}
		start := parseTime(w.Start)
		ts := effectiveTime(w.CreatedAt, w.Start)
		if ts.IsZero() {
			continue
		}
		out = append(out, types.WorkoutRecord{
			ID:        w.ID,
			Start:     start,
			Timestamp: ts,
			SportName: w.SportName,
			Strain:    w.Score.Strain,
			Kilojoule: w.Score.Kilojoule,
		})
	}
	return out
}

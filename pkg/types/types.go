// Package types holds the shared data shapes of the coach server: the
// persisted credential record, canonical wearable records, and the derived
// signal snapshot consumed by planners.
package types

import "time"

// CredentialRecord is the persisted OAuth credential for one (user, provider)
// pair. It is created by the account-link callback and mutated only by the
// token refresh path.
type CredentialRecord struct {
	UserID       string
	Provider     string
	AccessToken  string
	RefreshToken string
	// ExpiresAt is unix seconds; 0 means unknown (treat the token as
	// non-expiring until the upstream says otherwise).
	ExpiresAt       int64
	TokenType       string
	Scope           string
	LinkedAt        time.Time
	LastRefreshedAt time.Time
}

// Expired reports whether the access token should be refreshed before use.
// A safety margin keeps us from sending a token that dies mid-request.
func (c *CredentialRecord) Expired(now time.Time, margin time.Duration) bool {
	if c.ExpiresAt == 0 {
		return false
	}
	return c.ExpiresAt <= now.Add(margin).Unix()
}

// --- Canonical wearable records ---
//
// The upstream client normalizes provider field variants into these shapes;
// everything downstream (metrics, planners) sees only this schema. Records
// whose timestamps could not be parsed never make it here.

type CycleRecord struct {
	ID string
	// Start is the cycle start; it determines the calendar day a strain
	// value is attributed to.
	Start time.Time
	// Timestamp is the effective ordering timestamp (created_at when
	// present, otherwise start).
	Timestamp time.Time
	Strain    float64
}

type RecoveryRecord struct {
	ID        string
	Timestamp time.Time
	Score     *float64
	HRVMilli  *float64
}

type SleepRecord struct {
	ID             string
	Timestamp      time.Time
	PerformancePct *float64
	InBedMilli     *int64
}

type WorkoutRecord struct {
	ID        string
	Start     time.Time
	Timestamp time.Time
	SportName string
	Strain    float64
	Kilojoule float64
}

type Profile struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// --- Derived signals ---

type HRVTrend string

const (
	HRVTrendUp      HRVTrend = "up"
	HRVTrendDown    HRVTrend = "down"
	HRVTrendFlat    HRVTrend = "flat"
	HRVTrendUnknown HRVTrend = "unknown"
)

// Snapshot is the derived signal set for one request. It is recomputed every
// time and never persisted. Pointer fields are nil when the underlying data
// was absent, which is distinct from zero.
type Snapshot struct {
	Date           time.Time `json:"date"`
	RecoveryScore  *float64  `json:"recovery_score"`
	HRVTrend       HRVTrend  `json:"hrv_trend"`
	SleepDebtHours float64   `json:"sleep_debt_hours"`
	DailyStrain    []float64 `json:"daily_strain"`
	AcuteLoad      *float64  `json:"acute_load"`
	ChronicLoad    *float64  `json:"chronic_load"`
	LoadBalance    *float64  `json:"load_balance"`
	Monotony       *float64  `json:"monotony"`
}

// --- Coach contracts ---

type WeeklyFocus string

const (
	FocusEndurance WeeklyFocus = "endurance"
	FocusClimbing  WeeklyFocus = "climbing"
	FocusSpeed     WeeklyFocus = "speed"
	FocusBalanced  WeeklyFocus = "balanced"
)

// Goal is the optional free-form training goal supplied by the user.
type Goal struct {
	Text        string      `json:"goal_text,omitempty"`
	EventDate   string      `json:"event_date,omitempty"`
	WeeklyFocus WeeklyFocus `json:"weekly_focus,omitempty"`
	LongRideDay string      `json:"long_ride_day,omitempty"` // Sat, Sun or Either
}

type PerHourTargets struct {
	CarbsG   float64 `json:"carbs_g"`
	FluidsL  float64 `json:"fluids_l"`
	SodiumMg float64 `json:"sodium_mg"`
}

type Fueling struct {
	CarbsG   float64        `json:"carbs_g"`
	FluidsL  float64        `json:"fluids_l"`
	SodiumMg float64        `json:"sodium_mg"`
	PerHour  PerHourTargets `json:"per_hour"`
}

type Workout struct {
	Label       string  `json:"label"`
	DurationMin float64 `json:"duration_min"`
	Zones       string  `json:"zones"`
	Intervals   string  `json:"intervals"`
	Notes       string  `json:"notes"`
}

// Plan is the structured recommendation returned to the caller. Source
// records whether it came from the model or the deterministic rules.
type Plan struct {
	Workout   Workout  `json:"workout"`
	Fueling   Fueling  `json:"fueling"`
	Rationale string   `json:"rationale"`
	Flags     []string `json:"flags"`
	Source    string   `json:"source,omitempty"`
}

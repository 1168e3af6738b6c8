package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Record is one typed health data point pulled from the source. The natural
// key is assigned by the source (activity ID or calendar date) so re-synced
// windows overwrite rather than duplicate.
type Record interface {
	Stream() StreamID
	NaturalKey() string
	Day() time.Time
}

// Activity is a single recorded workout, keyed by the Garmin activity ID.
type Activity struct {
	ID                      int64
	ActivityType            *string
	ActivityName            *string
	StartTime               time.Time
	DurationSeconds         *float64
	DistanceMeters          *float64
	AvgHR                   *int
	MaxHR                   *int
	AvgSpeed                *float64
	MaxSpeed                *float64
	Calories                *float64
	Cadence                 *float64
	VO2Max                  *float64
	TrainingEffectAerobic   *float64
	TrainingEffectAnaerobic *float64
	ElevationGain           *float64
	Raw                     json.RawMessage
}

func (a Activity) Stream() StreamID   { return StreamActivities }
func (a Activity) NaturalKey() string { return strconv.FormatInt(a.ID, 10) }
func (a Activity) Day() time.Time     { return DateOnly(a.StartTime) }

// Sleep is one night's sleep summary, keyed by calendar date.
type Sleep struct {
	CalendarDate      time.Time
	SleepStart        *time.Time
	SleepEnd          *time.Time
	TotalSleepSeconds *int
	DeepSeconds       *int
	LightSeconds      *int
	RemSeconds        *int
	AwakeSeconds      *int
	SleepScore        *int
	AvgRespiration    *float64
	AvgSpO2           *float64
	Raw               json.RawMessage
}

func (s Sleep) Stream() StreamID   { return StreamSleep }
func (s Sleep) NaturalKey() string { return s.CalendarDate.Format(DateFormat) }
func (s Sleep) Day() time.Time     { return DateOnly(s.CalendarDate) }

// DailySummary aggregates one day of wellness stats, keyed by calendar date.
type DailySummary struct {
	CalendarDate        time.Time
	Steps               *int
	TotalDistanceMeters *float64
	ActiveCalories      *float64
	TotalCalories       *float64
	RestingHR           *int
	MaxHR               *int
	AvgStress           *int
	MaxStress           *int
	BodyBatteryHigh     *int
	BodyBatteryLow      *int
	FloorsClimbed       *int
	IntensityMinutes    *int
	Raw                 json.RawMessage
}

func (d DailySummary) Stream() StreamID   { return StreamDaily }
func (d DailySummary) NaturalKey() string { return d.CalendarDate.Format(DateFormat) }
func (d DailySummary) Day() time.Time     { return DateOnly(d.CalendarDate) }

// HeartRate is one day's heart rate summary, keyed by calendar date.
type HeartRate struct {
	CalendarDate time.Time
	RestingHR    *int
	MaxHR        *int
	MinHR        *int
	Raw          json.RawMessage
}

func (h HeartRate) Stream() StreamID   { return StreamHeartRate }
func (h HeartRate) NaturalKey() string { return h.CalendarDate.Format(DateFormat) }
func (h HeartRate) Day() time.Time     { return DateOnly(h.CalendarDate) }

// BodyComposition is one weigh-in day, keyed by calendar date.
type BodyComposition struct {
	CalendarDate time.Time
	WeightKg     *float64
	BMI          *float64
	BodyFatPct   *float64
	MuscleMassKg *float64
	BoneMassKg   *float64
	BodyWaterPct *float64
	Raw          json.RawMessage
}

func (b BodyComposition) Stream() StreamID   { return StreamBody }
func (b BodyComposition) NaturalKey() string { return b.CalendarDate.Format(DateFormat) }
func (b BodyComposition) Day() time.Time     { return DateOnly(b.CalendarDate) }

// DateFormat is the calendar-date wire and key format.
const DateFormat = "2006-01-02"

// DateOnly truncates t to midnight UTC so calendar arithmetic is stable.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package api

import (
	"errors"
	"time"

	"example.com/healthsync/internal/domain"
)

// TriggerResponse reports which streams a sync trigger actually started.
type TriggerResponse struct {
	Started []domain.StreamID `json:"started"`
}

// SyncStatusView is one stream's row on the status board.
type SyncStatusView struct {
	Stream         string     `json:"stream"`
	Status         string     `json:"status"`
	Progress       string     `json:"progress,omitempty"`
	LastSyncedDate *string    `json:"last_synced_date,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// DashboardResponse bundles recent data from every stream for one page load.
type DashboardResponse struct {
	Activities []ActivityView  `json:"activities"`
	Sleep      []SleepView     `json:"sleep"`
	Daily      []DailyView     `json:"daily"`
	HeartRate  []HeartRateView `json:"heart_rate"`
	Body       []BodyView      `json:"body"`
}

// ActivityView is the JSON representation of one workout.
type ActivityView struct {
	ID                      int64     `json:"id"`
	ActivityType            *string   `json:"activity_type,omitempty"`
	ActivityName            *string   `json:"activity_name,omitempty"`
	StartTime               time.Time `json:"start_time"`
	DurationSeconds         *float64  `json:"duration_seconds,omitempty"`
	DistanceMeters          *float64  `json:"distance_meters,omitempty"`
	AvgHR                   *int      `json:"avg_hr,omitempty"`
	MaxHR                   *int      `json:"max_hr,omitempty"`
	AvgSpeed                *float64  `json:"avg_speed,omitempty"`
	MaxSpeed                *float64  `json:"max_speed,omitempty"`
	Calories                *float64  `json:"calories,omitempty"`
	Cadence                 *float64  `json:"cadence,omitempty"`
	VO2Max                  *float64  `json:"vo2_max,omitempty"`
	TrainingEffectAerobic   *float64  `json:"training_effect_aerobic,omitempty"`
	TrainingEffectAnaerobic *float64  `json:"training_effect_anaerobic,omitempty"`
	ElevationGain           *float64  `json:"elevation_gain,omitempty"`
}

// SleepView is the JSON representation of one night's sleep.
type SleepView struct {
	CalendarDate      string     `json:"calendar_date"`
	SleepStart        *time.Time `json:"sleep_start,omitempty"`
	SleepEnd          *time.Time `json:"sleep_end,omitempty"`
	TotalSleepSeconds *int       `json:"total_sleep_seconds,omitempty"`
	DeepSeconds       *int       `json:"deep_seconds,omitempty"`
	LightSeconds      *int       `json:"light_seconds,omitempty"`
	RemSeconds        *int       `json:"rem_seconds,omitempty"`
	AwakeSeconds      *int       `json:"awake_seconds,omitempty"`
	SleepScore        *int       `json:"sleep_score,omitempty"`
	AvgRespiration    *float64   `json:"avg_respiration,omitempty"`
	AvgSpO2           *float64   `json:"avg_spo2,omitempty"`
}

// DailyView is the JSON representation of one day's wellness summary.
type DailyView struct {
	CalendarDate        string   `json:"calendar_date"`
	Steps               *int     `json:"steps,omitempty"`
	TotalDistanceMeters *float64 `json:"total_distance_meters,omitempty"`
	ActiveCalories      *float64 `json:"active_calories,omitempty"`
	TotalCalories       *float64 `json:"total_calories,omitempty"`
	RestingHR           *int     `json:"resting_hr,omitempty"`
	MaxHR               *int     `json:"max_hr,omitempty"`
	AvgStress           *int     `json:"avg_stress,omitempty"`
	MaxStress           *int     `json:"max_stress,omitempty"`
	BodyBatteryHigh     *int     `json:"body_battery_high,omitempty"`
	BodyBatteryLow      *int     `json:"body_battery_low,omitempty"`
	FloorsClimbed       *int     `json:"floors_climbed,omitempty"`
	IntensityMinutes    *int     `json:"intensity_minutes,omitempty"`
}

// HeartRateView is the JSON representation of one day's heart rate summary.
type HeartRateView struct {
	CalendarDate string `json:"calendar_date"`
	RestingHR    *int   `json:"resting_hr,omitempty"`
	MaxHR        *int   `json:"max_hr,omitempty"`
	MinHR        *int   `json:"min_hr,omitempty"`
}

// BodyView is the JSON representation of one weigh-in day.
type BodyView struct {
	CalendarDate string   `json:"calendar_date"`
	WeightKg     *float64 `json:"weight_kg,omitempty"`
	BMI          *float64 `json:"bmi,omitempty"`
	BodyFatPct   *float64 `json:"body_fat_pct,omitempty"`
	MuscleMassKg *float64 `json:"muscle_mass_kg,omitempty"`
	BoneMassKg   *float64 `json:"bone_mass_kg,omitempty"`
	BodyWaterPct *float64 `json:"body_water_pct,omitempty"`
}

// JournalView is the JSON representation of one journal entry.
type JournalView struct {
	ID        string    `json:"id"`
	EntryDate string    `json:"entry_date"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	Rating    *int      `json:"rating,omitempty"`
	Tags      *string   `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JournalCreateRequest is the POST /v1/journal payload.
type JournalCreateRequest struct {
	EntryDate string  `json:"entry_date"`
	Category  string  `json:"category"`
	Content   string  `json:"content"`
	Rating    *int    `json:"rating"`
	Tags      *string `json:"tags"`
}

// Validate checks required fields and formats.
func (r JournalCreateRequest) Validate() error {
	if r.EntryDate == "" {
		return errors.New("entry_date is required")
	}
	if _, err := time.Parse(domain.DateFormat, r.EntryDate); err != nil {
		return errors.New("entry_date must be YYYY-MM-DD")
	}
	if r.Content == "" {
		return errors.New("content is required")
	}
	if r.Rating != nil && (*r.Rating < 1 || *r.Rating > 5) {
		return errors.New("rating must be between 1 and 5")
	}
	return nil
}

// JournalUpdateRequest is the PUT /v1/journal/{id} payload. All fields are
// optional; absent fields keep their current values.
type JournalUpdateRequest struct {
	EntryDate *string `json:"entry_date"`
	Category  *string `json:"category"`
	Content   *string `json:"content"`
	Rating    *int    `json:"rating"`
	Tags      *string `json:"tags"`
}

func toActivityViews(items []domain.Activity) []ActivityView {
	out := make([]ActivityView, 0, len(items))
	for _, item := range items {
		out = append(out, ActivityView{
			ID:                      item.ID,
			ActivityType:            item.ActivityType,
			ActivityName:            item.ActivityName,
			StartTime:               item.StartTime,
			DurationSeconds:         item.DurationSeconds,
			DistanceMeters:          item.DistanceMeters,
			AvgHR:                   item.AvgHR,
			MaxHR:                   item.MaxHR,
			AvgSpeed:                item.AvgSpeed,
			MaxSpeed:                item.MaxSpeed,
			Calories:                item.Calories,
			Cadence:                 item.Cadence,
			VO2Max:                  item.VO2Max,
			TrainingEffectAerobic:   item.TrainingEffectAerobic,
			TrainingEffectAnaerobic: item.TrainingEffectAnaerobic,
			ElevationGain:           item.ElevationGain,
		})
	}
	return out
}

func toSleepViews(items []domain.Sleep) []SleepView {
	out := make([]SleepView, 0, len(items))
	for _, item := range items {
		out = append(out, SleepView{
			CalendarDate:      item.CalendarDate.Format(domain.DateFormat),
			SleepStart:        item.SleepStart,
			SleepEnd:          item.SleepEnd,
			TotalSleepSeconds: item.TotalSleepSeconds,
			DeepSeconds:       item.DeepSeconds,
			LightSeconds:      item.LightSeconds,
			RemSeconds:        item.RemSeconds,
			AwakeSeconds:      item.AwakeSeconds,
			SleepScore:        item.SleepScore,
			AvgRespiration:    item.AvgRespiration,
			AvgSpO2:           item.AvgSpO2,
		})
	}
	return out
}

func toDailyViews(items []domain.DailySummary) []DailyView {
	out := make([]DailyView, 0, len(items))
	for _, item := range items {
		out = append(out, DailyView{
			CalendarDate:        item.CalendarDate.Format(domain.DateFormat),
			Steps:               item.Steps,
			TotalDistanceMeters: item.TotalDistanceMeters,
			ActiveCalories:      item.ActiveCalories,
			TotalCalories:       item.TotalCalories,
			RestingHR:           item.RestingHR,
			MaxHR:               item.MaxHR,
			AvgStress:           item.AvgStress,
			MaxStress:           item.MaxStress,
			BodyBatteryHigh:     item.BodyBatteryHigh,
			BodyBatteryLow:      item.BodyBatteryLow,
			FloorsClimbed:       item.FloorsClimbed,
			IntensityMinutes:    item.IntensityMinutes,
		})
	}
	return out
}

func toHeartRateViews(items []domain.HeartRate) []HeartRateView {
	out := make([]HeartRateView, 0, len(items))
	for _, item := range items {
		out = append(out, HeartRateView{
			CalendarDate: item.CalendarDate.Format(domain.DateFormat),
			RestingHR:    item.RestingHR,
			MaxHR:        item.MaxHR,
			MinHR:        item.MinHR,
		})
	}
	return out
}

func toBodyViews(items []domain.BodyComposition) []BodyView {
	out := make([]BodyView, 0, len(items))
	for _, item := range items {
		out = append(out, BodyView{
			CalendarDate: item.CalendarDate.Format(domain.DateFormat),
			WeightKg:     item.WeightKg,
			BMI:          item.BMI,
			BodyFatPct:   item.BodyFatPct,
			MuscleMassKg: item.MuscleMassKg,
			BoneMassKg:   item.BoneMassKg,
			BodyWaterPct: item.BodyWaterPct,
		})
	}
	return out
}

func toJournalView(entry domain.JournalEntry) JournalView {
	return JournalView{
		ID:        entry.ID,
		EntryDate: entry.EntryDate.Format(domain.DateFormat),
		Category:  entry.Category,
		Content:   entry.Content,
		Rating:    entry.Rating,
		Tags:      entry.Tags,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	}
}

func toJournalViews(entries []domain.JournalEntry) []JournalView {
	out := make([]JournalView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toJournalView(entry))
	}
	return out
}
